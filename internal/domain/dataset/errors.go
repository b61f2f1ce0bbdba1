package dataset

import "errors"

// Sentinel error kinds for this package.
var (
	ErrShape = errors.New("invalid table shape")
	ErrSplit = errors.New("cannot split table")
)
