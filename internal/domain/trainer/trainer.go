// Package trainer fits an estimator on a transformed training matrix.
package trainer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/autotrain/internal/domain/estimator"
	"github.com/okian/autotrain/internal/domain/failure"
	"github.com/okian/autotrain/internal/domain/metric"
	"github.com/okian/autotrain/internal/domain/model"
	"github.com/okian/autotrain/internal/domain/transform"
)

// Config selects and parameterizes the estimator.
type Config struct {
	Estimator       string
	Hyperparameters estimator.Params
	RandomSeed      int64
	Metric          string
}

// Option configures a training call.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock overrides the clock used for TrainedAt.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// Train fits cfg's estimator on data and scores it on the same rows. It is a
// pure function of data and cfg apart from the timestamp. An absent or
// constant target fails with failure.ErrDataIntegrity before any fitting;
// estimator problems fail with failure.ErrTrainingFailure.
func Train(ctx context.Context, data transform.Matrix, cfg Config, opts ...Option) (model.ModelArtifact, error) {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	if len(data.Y) == 0 {
		return model.ModelArtifact{}, fmt.Errorf("%w: target is absent", failure.ErrDataIntegrity)
	}
	if constant(data.Y) {
		return model.ModelArtifact{}, fmt.Errorf("%w: target is constant (%v) over %d rows", failure.ErrDataIntegrity, data.Y[0], len(data.Y))
	}

	m, err := metric.Lookup(cfg.Metric)
	if err != nil {
		return model.ModelArtifact{}, fmt.Errorf("%w: %w", failure.ErrTrainingFailure, err)
	}
	est, err := estimator.New(cfg.Estimator, cfg.Hyperparameters, cfg.RandomSeed)
	if err != nil {
		return model.ModelArtifact{}, fmt.Errorf("%w: %w", failure.ErrTrainingFailure, err)
	}
	if err := est.Fit(ctx, data.X, data.Y); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return model.ModelArtifact{}, err
		}
		return model.ModelArtifact{}, fmt.Errorf("%w: fit %s: %w", failure.ErrTrainingFailure, est.Kind(), err)
	}

	pred, err := est.Predict(data.X)
	if err != nil {
		return model.ModelArtifact{}, fmt.Errorf("%w: predict %s: %w", failure.ErrTrainingFailure, est.Kind(), err)
	}
	score, err := m.Score(data.Y, pred)
	if err != nil {
		return model.ModelArtifact{}, fmt.Errorf("%w: score: %w", failure.ErrTrainingFailure, err)
	}

	return model.ModelArtifact{
		Estimator:      est,
		Kind:           est.Kind(),
		Params:         est.Params(),
		Seed:           cfg.RandomSeed,
		Metric:         m.Name,
		TrainingMetric: score,
		FeatureNames:   append([]string(nil), data.FeatureNames...),
		TrainedAt:      o.now().UTC(),
	}, nil
}

func constant(y []float64) bool {
	for _, v := range y[1:] {
		if v != y[0] {
			return false
		}
	}
	return true
}
