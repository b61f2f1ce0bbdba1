package source

import "errors"

// Sentinel kinds for source errors.
var (
	ErrUnsupported = errors.New("unsupported source")
	ErrRead        = errors.New("source read failed")
	ErrDecode      = errors.New("cannot decode document")
)
