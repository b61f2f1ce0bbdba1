package schema

import "errors"

// Sentinel error kinds for this package.
var (
	ErrInvalid = errors.New("invalid schema")
	ErrLoad    = errors.New("load schema failed")
)
