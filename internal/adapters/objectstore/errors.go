package objectstore

import "errors"

// Sentinel kinds for object store errors.
var (
	ErrNotFound   = errors.New("object not found")
	ErrInvalidKey = errors.New("invalid object key")
	ErrLocked     = errors.New("object is locked")
)
