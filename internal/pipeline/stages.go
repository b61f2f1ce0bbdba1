package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/okian/autotrain/internal/adapters/source"
	"github.com/okian/autotrain/internal/domain/dataset"
	"github.com/okian/autotrain/internal/domain/dedupe"
	"github.com/okian/autotrain/internal/domain/evaluation"
	"github.com/okian/autotrain/internal/domain/failure"
	"github.com/okian/autotrain/internal/domain/model"
	"github.com/okian/autotrain/internal/domain/trainer"
	"github.com/okian/autotrain/internal/domain/transform"
	"github.com/okian/autotrain/internal/domain/validation"
	"github.com/okian/autotrain/pkg/logger"
	"github.com/okian/autotrain/pkg/metrics"
)

func artifactKey(runID string, stage model.Stage, name string) string {
	return "runs/" + runID + "/" + string(stage) + "/" + name
}

func (p *Pipeline) putJSON(ctx context.Context, key string, v any) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode %s: %w", ErrArtifact, key, err)
	}
	if err := p.artifacts.Put(ctx, key, raw); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrArtifact, key, err)
	}
	return nil
}

// ingest fetches raw records, cleans them and splits them into train and test.
func (p *Pipeline) ingest(ctx context.Context, runID string) (model.DatasetPair, error) {
	raw, err := p.source.FetchRecords(ctx, p.cfg.Query)
	if err != nil {
		if isCancel(err) {
			return model.DatasetPair{}, err
		}
		return model.DatasetPair{}, fmt.Errorf("%w: fetch %q: %w", failure.ErrIngestion, p.cfg.Query.Collection, err)
	}

	text := false
	if ts, ok := p.source.(source.Textual); ok {
		text = ts.Textual()
	}

	seen := dedupe.NewInMemoryDeduper()
	records := make([]dataset.Record, 0, len(raw))
	for _, rec := range raw {
		clean := p.clean(rec, text)
		if seen.SeenAndRecord(ctx, dedupe.Fingerprint(clean)) {
			continue
		}
		records = append(records, clean)
	}
	duplicates := len(raw) - len(records)
	metrics.RecordIngested(len(records), duplicates)
	if len(records) == 0 {
		return model.DatasetPair{}, fmt.Errorf("%w: collection %q returned no records", failure.ErrDataIntegrity, p.cfg.Query.Collection)
	}

	train, test, err := dataset.FromRecords(records).Split(p.cfg.TestRatio, p.cfg.SplitSeed)
	if err != nil {
		return model.DatasetPair{}, fmt.Errorf("%w: %w", failure.ErrDataIntegrity, err)
	}

	now := p.now().UTC()
	pair := model.DatasetPair{
		Train: model.DatasetArtifact{Name: "train", Table: train, Key: artifactKey(runID, model.StageIngestion, "train.csv"), CreatedAt: now},
		Test:  model.DatasetArtifact{Name: "test", Table: test, Key: artifactKey(runID, model.StageIngestion, "test.csv"), CreatedAt: now},
	}
	for _, ds := range []model.DatasetArtifact{pair.Train, pair.Test} {
		b, err := ds.Table.CSV()
		if err != nil {
			return model.DatasetPair{}, fmt.Errorf("%w: %s: %w", ErrArtifact, ds.Key, err)
		}
		if err := p.artifacts.Put(ctx, ds.Key, b); err != nil {
			return model.DatasetPair{}, fmt.Errorf("%w: %s: %w", ErrArtifact, ds.Key, err)
		}
	}

	p.log.Info(ctx, "ingested",
		logger.String("run_id", runID),
		logger.Int("fetched", len(raw)),
		logger.Int("duplicates", duplicates),
		logger.Int("distinct", int(seen.Size())),
		logger.Int("train_rows", train.Len()),
		logger.Int("test_rows", test.Len()),
	)
	return pair, nil
}

// clean drops the store identity and maps null tokens to nil. For text
// sources, cells of declared string columns that parsed as numbers or
// booleans are restored to their text form.
func (p *Pipeline) clean(rec dataset.Record, text bool) dataset.Record {
	out := make(dataset.Record, len(rec))
	for k, v := range rec {
		if k == source.IDField {
			continue
		}
		if s, ok := v.(string); ok {
			if _, null := p.nulls[strings.TrimSpace(s)]; null {
				v = nil
			}
		}
		if _, str := p.textCols[k]; text && str && v != nil {
			if _, ok := v.(string); !ok {
				v = dataset.FormatCell(dataset.Normalize(v))
			}
		}
		out[k] = v
	}
	return out
}

// validate checks both halves against the contract. The reports are kept
// on the run and persisted even when validation fails.
func (p *Pipeline) validate(ctx context.Context, r *run, pair model.DatasetPair) error {
	reports := []model.ValidationReport{
		validation.Validate(pair.Train, p.contract),
		validation.Validate(pair.Test, p.contract),
	}
	r.rec.Reports = reports
	for _, rep := range reports {
		metrics.RecordValidation(rep.Dataset, string(rep.Status))
	}
	if err := p.putJSON(ctx, artifactKey(r.rec.ID, model.StageValidation, "report.json"), reports); err != nil {
		return err
	}
	for _, rep := range reports {
		if err := validation.Err(rep); err != nil {
			r.log.Warn(ctx, "validation failed",
				logger.String("dataset", rep.Dataset),
				logger.String("messages", strings.Join(rep.Messages, "; ")),
			)
			return err
		}
	}
	return nil
}

type prepared struct {
	transformer *transform.Transformer
	train       transform.Matrix
}

// transform fits the transformer on the training half only.
func (p *Pipeline) transform(ctx context.Context, runID string, pair model.DatasetPair) (prepared, error) {
	tr, train, err := transform.FitTransform(pair.Train.Table, p.contract)
	if err != nil {
		return prepared{}, fmt.Errorf("%w: fit transformer: %w", failure.ErrDataIntegrity, err)
	}
	test, err := tr.Transform(pair.Test.Table)
	if err != nil {
		return prepared{}, fmt.Errorf("%w: transform test: %w", failure.ErrDataIntegrity, err)
	}
	if err := p.putJSON(ctx, artifactKey(runID, model.StageTransformation, "transformer.json"), tr); err != nil {
		return prepared{}, err
	}
	p.log.Info(ctx, "transformed",
		logger.String("run_id", runID),
		logger.Int("features", len(train.FeatureNames)),
		logger.Int("train_rows", train.Rows()),
		logger.Int("test_rows", test.Rows()),
		logger.Int("dropped_rows", train.DroppedRows+test.DroppedRows),
	)
	return prepared{transformer: tr, train: train}, nil
}

type trainingSummary struct {
	Estimator      string   `json:"estimator"`
	Metric         string   `json:"metric"`
	TrainingMetric float64  `json:"training_metric"`
	Seed           int64    `json:"seed"`
	Params         any      `json:"params"`
	FeatureNames   []string `json:"feature_names"`
}

func (p *Pipeline) train(ctx context.Context, runID string, in prepared) (model.Bundle, error) {
	art, err := trainer.Train(ctx, in.train, p.cfg.Model, trainer.WithClock(p.now))
	if err != nil {
		return model.Bundle{}, err
	}
	if err := p.putJSON(ctx, artifactKey(runID, model.StageTraining, "summary.json"), trainingSummary{
		Estimator:      art.Kind,
		Metric:         art.Metric,
		TrainingMetric: art.TrainingMetric,
		Seed:           art.Seed,
		Params:         art.Params,
		FeatureNames:   art.FeatureNames,
	}); err != nil {
		return model.Bundle{}, err
	}
	p.log.Info(ctx, "trained",
		logger.String("run_id", runID),
		logger.String("estimator", art.Kind),
		logger.Float64(art.Metric, art.TrainingMetric),
	)
	return model.Bundle{Model: art, Transformer: model.NewTransformerArtifact(in.transformer), RunID: runID}, nil
}

func (p *Pipeline) evaluate(ctx context.Context, runID string, b model.Bundle, test model.DatasetArtifact) (model.EvaluationVerdict, error) {
	v, err := evaluation.Evaluate(ctx, evaluation.Input{
		Candidate: b,
		Test:      test.Table,
		Metric:    p.cfg.Model.Metric,
		MinDelta:  p.cfg.MinDelta,
	}, p.registry)
	if err != nil {
		return model.EvaluationVerdict{}, err
	}
	metrics.SetCandidateScore(v.Metric, v.NewScore)
	if err := p.putJSON(ctx, artifactKey(runID, model.StageEvaluation, "verdict.json"), v); err != nil {
		return model.EvaluationVerdict{}, err
	}

	fields := []logger.Field{
		logger.String("run_id", runID),
		logger.Float64("new_score", v.NewScore),
		logger.Bool("accepted", v.Accepted),
	}
	if v.CurrentScore != nil {
		fields = append(fields,
			logger.Float64("current_score", *v.CurrentScore),
			logger.String("baseline", v.BaselineVersion),
			logger.Float64("delta", v.Delta),
		)
	}
	p.log.Info(ctx, "evaluated", fields...)
	return v, nil
}

func (p *Pipeline) register(ctx context.Context, r *run, b model.Bundle, v model.EvaluationVerdict) error {
	res, err := p.registry.Promote(ctx, b, v)
	if err != nil {
		return err
	}
	r.rec.Promoted = res.Promoted
	if res.Promoted {
		r.rec.Version = res.Entry.Version
	}
	// The alias has already moved; a missing audit file must not fail the run.
	if err := p.putJSON(ctx, artifactKey(r.rec.ID, model.StageRegistration, "result.json"), res); err != nil {
		r.log.Warn(ctx, "registration result not persisted", logger.Error(err))
	}
	return nil
}
