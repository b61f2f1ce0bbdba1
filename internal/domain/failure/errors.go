// Package failure defines the error kinds surfaced by the training pipeline
// and the prediction path.
package failure

import (
	"errors"
	"fmt"
)

// Sentinel error kinds. Callers classify with errors.Is.
var (
	ErrSchemaViolation   = errors.New("schema violation")
	ErrDataIntegrity     = errors.New("data integrity error")
	ErrTrainingFailure   = errors.New("training failure")
	ErrEvaluationFailure = errors.New("evaluation failure")
	ErrRegistryConflict  = errors.New("registry conflict")
	ErrNoModelAvailable  = errors.New("no model available")
	ErrMalformedInput    = errors.New("malformed input")
	ErrIngestion         = errors.New("ingestion failure")
)

// StageError attaches the originating pipeline stage and an error kind to a cause.
type StageError struct {
	Stage string
	Kind  error
	Err   error
}

// New builds a StageError. A nil cause is replaced by the kind itself.
func New(stage string, kind, err error) *StageError {
	if err == nil {
		err = kind
	}
	return &StageError{Stage: stage, Kind: kind, Err: err}
}

func (e *StageError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err == nil || errors.Is(e.Err, e.Kind) && e.Err.Error() == e.Kind.Error() {
		return fmt.Sprintf("%s: %v", e.Stage, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Stage, e.Kind, e.Err)
}

// Unwrap exposes both the kind and the cause to errors.Is/As.
func (e *StageError) Unwrap() []error {
	if e == nil {
		return nil
	}
	return []error{e.Kind, e.Err}
}

// Kind returns the sentinel kind of err, or nil when err carries none.
func Kind(err error) error {
	for _, k := range []error{
		ErrSchemaViolation,
		ErrDataIntegrity,
		ErrTrainingFailure,
		ErrEvaluationFailure,
		ErrRegistryConflict,
		ErrNoModelAvailable,
		ErrMalformedInput,
		ErrIngestion,
	} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// Label returns a short metric/log label for the kind of err.
func Label(err error) string {
	switch Kind(err) {
	case ErrSchemaViolation:
		return "schema_violation"
	case ErrDataIntegrity:
		return "data_integrity"
	case ErrTrainingFailure:
		return "training_failure"
	case ErrEvaluationFailure:
		return "evaluation_failure"
	case ErrRegistryConflict:
		return "registry_conflict"
	case ErrNoModelAvailable:
		return "no_model"
	case ErrMalformedInput:
		return "malformed_input"
	case ErrIngestion:
		return "ingestion"
	default:
		return "unknown"
	}
}
