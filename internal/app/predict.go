package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/autotrain/internal/domain/dataset"
	"github.com/okian/autotrain/internal/domain/failure"
	"github.com/okian/autotrain/internal/domain/model"
	"github.com/okian/autotrain/pkg/logger"
	"github.com/okian/autotrain/pkg/metrics"
)

// RunPrediction scores one raw row with the current model. It fails with
// failure.ErrNoModelAvailable before the first promotion and with
// failure.ErrMalformedInput when the row does not fit the transformer.
func (s *Service) RunPrediction(ctx context.Context, row dataset.Record) (model.Prediction, error) {
	out, err := s.PredictBatch(ctx, []dataset.Record{row})
	if err != nil {
		return model.Prediction{}, err
	}
	return out[0], nil
}

// PredictBatch scores rows with one bundle so every output carries the same
// version. A malformed row fails the whole batch.
func (s *Service) PredictBatch(ctx context.Context, rows []dataset.Record) (_ []model.Prediction, err error) {
	start := time.Now()
	defer func() {
		metrics.RecordPrediction(predictionOutcome(err))
		metrics.RecordPredictionLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: no rows", failure.ErrMalformedInput)
	}
	entry, err := s.models.Current(ctx)
	if err != nil {
		return nil, err
	}
	b, err := s.bundle(ctx, entry.Version)
	if err != nil {
		return nil, err
	}

	X := make([][]float64, len(rows))
	for i, row := range rows {
		if row == nil {
			return nil, fmt.Errorf("%w: row %d is empty", failure.ErrMalformedInput, i)
		}
		x, err := b.Transformer.Transformer.TransformRow(row)
		if err != nil {
			if len(rows) > 1 {
				return nil, fmt.Errorf("row %d: %w", i, err)
			}
			return nil, err
		}
		X[i] = x
	}

	y, err := b.Model.Estimator.Predict(X)
	if err != nil {
		return nil, fmt.Errorf("predict with %s: %w", entry.Version, err)
	}
	out := make([]model.Prediction, len(y))
	for i, v := range y {
		out[i] = model.Prediction{Value: v, Version: entry.Version}
	}
	return out, nil
}

func predictionOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, failure.ErrNoModelAvailable):
		return "no_model"
	case errors.Is(err, failure.ErrMalformedInput):
		return "malformed"
	default:
		return "error"
	}
}

// bundle returns the decoded bundle of version, loading it at most once
// however many requests ask for it concurrently. Only the latest version
// loaded stays cached.
func (s *Service) bundle(ctx context.Context, version string) (model.Bundle, error) {
	s.bundleMu.RLock()
	b, ok := s.bundles[version]
	s.bundleMu.RUnlock()
	if ok {
		return b, nil
	}

	v, err, _ := s.loads.Do(version, func() (any, error) {
		s.bundleMu.RLock()
		b, ok := s.bundles[version]
		s.bundleMu.RUnlock()
		if ok {
			return b, nil
		}

		b, err := s.models.Load(ctx, version)
		if err != nil {
			return model.Bundle{}, err
		}
		metrics.RecordBundleLoad()

		s.bundleMu.Lock()
		s.bundles = map[string]model.Bundle{version: b}
		s.bundleMu.Unlock()

		s.logger.Info(ctx, "model bundle loaded",
			logger.String("version", version),
			logger.String("estimator", b.Model.Kind),
			logger.Int("features", len(b.Transformer.FeatureNames)),
		)
		return b, nil
	})
	if err != nil {
		return model.Bundle{}, fmt.Errorf("load bundle %s: %w", version, err)
	}
	return v.(model.Bundle), nil
}
