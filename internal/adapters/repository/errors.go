package repository

import "errors"

// Sentinel kinds for run repository errors.
var (
	ErrNotFound      = errors.New("run not found")
	ErrInvalidLimit  = errors.New("invalid list limit")
	ErrInvalidRecord = errors.New("invalid run record")
)
