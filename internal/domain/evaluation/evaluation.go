// Package evaluation scores a candidate bundle against the promoted one and
// produces the promotion verdict. It never writes anything.
package evaluation

import (
	"context"
	"errors"
	"fmt"

	"github.com/okian/autotrain/internal/domain/dataset"
	"github.com/okian/autotrain/internal/domain/failure"
	"github.com/okian/autotrain/internal/domain/metric"
	"github.com/okian/autotrain/internal/domain/model"
)

// tolerance absorbs float rounding when comparing a delta with min_delta.
const tolerance = 1e-9

// Baseline supplies the currently promoted bundle. Current returns an error
// wrapping failure.ErrNoModelAvailable when nothing has been promoted.
type Baseline interface {
	Current(ctx context.Context) (model.RegistryEntry, error)
	Load(ctx context.Context, version string) (model.Bundle, error)
}

// Input is everything needed to judge a candidate.
type Input struct {
	Candidate model.Bundle
	Test      *dataset.Table
	Metric    string
	MinDelta  float64
}

// Evaluate scores the candidate on the raw test table with its own
// transformer. Without a promoted bundle the candidate is accepted. Otherwise
// the same raw table is transformed with the promoted bundle's transformer
// and scored with the promoted model, and the candidate is accepted only on
// a strict improvement of at least MinDelta.
func Evaluate(ctx context.Context, in Input, baseline Baseline) (model.EvaluationVerdict, error) {
	m, err := metric.Lookup(in.Metric)
	if err != nil {
		return model.EvaluationVerdict{}, fmt.Errorf("%w: %w", failure.ErrEvaluationFailure, err)
	}
	if in.MinDelta < 0 {
		return model.EvaluationVerdict{}, fmt.Errorf("%w: min_delta %v is negative", failure.ErrEvaluationFailure, in.MinDelta)
	}

	newScore, err := Score(in.Candidate, in.Test, m)
	if err != nil {
		return model.EvaluationVerdict{}, fmt.Errorf("%w: candidate: %w", failure.ErrEvaluationFailure, err)
	}
	v := model.EvaluationVerdict{Metric: m.Name, NewScore: newScore, MinDelta: in.MinDelta}

	if err := ctx.Err(); err != nil {
		return model.EvaluationVerdict{}, err
	}
	entry, err := baseline.Current(ctx)
	switch {
	case errors.Is(err, failure.ErrNoModelAvailable):
		v.IsImproved, v.Accepted = true, true
		return v, nil
	case err != nil:
		return model.EvaluationVerdict{}, fmt.Errorf("%w: read current entry: %w", failure.ErrEvaluationFailure, err)
	}

	current, err := baseline.Load(ctx, entry.Version)
	if err != nil {
		return model.EvaluationVerdict{}, fmt.Errorf("%w: load current bundle %s: %w", failure.ErrEvaluationFailure, entry.Version, err)
	}
	curScore, err := Score(current, in.Test, m)
	if err != nil {
		return model.EvaluationVerdict{}, fmt.Errorf("%w: score current bundle %s: %w", failure.ErrEvaluationFailure, entry.Version, err)
	}

	v.CurrentScore = &curScore
	v.BaselineVersion = entry.Version
	v.Delta, v.IsImproved, v.Accepted = Decide(m, newScore, curScore, in.MinDelta)
	return v, nil
}

// Decide compares two scores in the metric's direction. A candidate is
// improved when it is strictly better and accepted when the improvement
// also reaches minDelta.
func Decide(m metric.Metric, newScore, currentScore, minDelta float64) (delta float64, improved, accepted bool) {
	delta = m.Improvement(newScore, currentScore)
	improved = delta > 0
	accepted = improved && delta >= minDelta-tolerance
	return delta, improved, accepted
}

// Score transforms the raw table with the bundle's own transformer and
// scores the bundle's model on it.
func Score(b model.Bundle, test *dataset.Table, m metric.Metric) (float64, error) {
	if b.Model.Estimator == nil || b.Transformer.Transformer == nil {
		return 0, errors.New("incomplete bundle")
	}
	data, err := b.Transformer.Transformer.Transform(test)
	if err != nil {
		return 0, fmt.Errorf("transform: %w", err)
	}
	if len(data.Y) == 0 {
		return 0, fmt.Errorf("test data has no target values for %q", b.Transformer.Transformer.Target())
	}
	pred, err := b.Model.Estimator.Predict(data.X)
	if err != nil {
		return 0, fmt.Errorf("predict: %w", err)
	}
	return m.Score(data.Y, pred)
}
