package metric

import "errors"

var (
	// ErrUnknown is returned for an unregistered metric name.
	ErrUnknown = errors.New("unknown metric")
	// ErrLength is returned when predictions and targets differ in length.
	ErrLength = errors.New("length mismatch")
	// ErrEmpty is returned when there is nothing to score.
	ErrEmpty = errors.New("no samples to score")
)
