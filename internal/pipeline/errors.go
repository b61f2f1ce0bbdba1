package pipeline

import "errors"

// Sentinel kinds for orchestration errors.
var (
	ErrArtifact = errors.New("cannot persist run artifact")
	ErrConfig   = errors.New("invalid pipeline configuration")
)
