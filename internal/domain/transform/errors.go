package transform

import "errors"

var (
	// ErrMissingColumn is returned when an input lacks a fitted feature column.
	ErrMissingColumn = errors.New("missing feature column")
	// ErrBadValue is returned for a cell that cannot be encoded.
	ErrBadValue = errors.New("invalid feature value")
	// ErrFormat is returned when a serialized transformer cannot be decoded.
	ErrFormat = errors.New("invalid transformer encoding")
	// ErrEmpty is returned when fitting on a table without usable rows.
	ErrEmpty = errors.New("no rows to fit")
)
