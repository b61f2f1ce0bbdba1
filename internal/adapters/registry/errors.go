package registry

import "errors"

// Sentinel kinds for registry errors.
var (
	ErrVersionNotFound = errors.New("model version not found")
	ErrCorruptBundle   = errors.New("corrupt model bundle")
	ErrUnknownPolicy   = errors.New("unknown conflict policy")
)
