package service

import "errors"

var (
	// ErrNotStarted is returned when runs are submitted before Start.
	ErrNotStarted = errors.New("service not started")
	// ErrQueueFull is returned when the run queue rejects a submission.
	ErrQueueFull = errors.New("run queue is full")
)
