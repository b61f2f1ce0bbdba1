package estimator

import "errors"

var (
	// ErrUnknownKind is returned for an unregistered estimator kind.
	ErrUnknownKind = errors.New("unknown estimator kind")
	// ErrParam is returned for an unknown or invalid hyperparameter.
	ErrParam = errors.New("invalid hyperparameter")
	// ErrNotFitted is returned when predicting before Fit.
	ErrNotFitted = errors.New("estimator not fitted")
	// ErrShape is returned for inconsistent or empty training data.
	ErrShape = errors.New("invalid training data shape")
	// ErrSingular is returned when the normal equations cannot be solved.
	ErrSingular = errors.New("singular system")
	// ErrFormat is returned when a serialized estimator cannot be decoded.
	ErrFormat = errors.New("invalid estimator encoding")
)
