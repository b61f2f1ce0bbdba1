// Package pipeline runs the training pipeline as a state machine:
//
//	INGESTING -> VALIDATING -> TRANSFORMING -> TRAINING -> EVALUATING -> REGISTERING -> SUCCEEDED
//
// Any stage error moves the run to FAILED with the stage recorded. Stages are
// never retried. Every stage artifact is written under runs/<run-id>/.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/okian/autotrain/internal/adapters/objectstore"
	"github.com/okian/autotrain/internal/adapters/registry"
	"github.com/okian/autotrain/internal/adapters/source"
	"github.com/okian/autotrain/internal/domain/dataset"
	"github.com/okian/autotrain/internal/domain/evaluation"
	"github.com/okian/autotrain/internal/domain/metric"
	"github.com/okian/autotrain/internal/domain/model"
	"github.com/okian/autotrain/internal/domain/schema"
	"github.com/okian/autotrain/internal/domain/trainer"
	"github.com/okian/autotrain/pkg/logger"
)

// Registry is what the pipeline needs from the model registry.
type Registry interface {
	evaluation.Baseline
	Promote(ctx context.Context, b model.Bundle, v model.EvaluationVerdict) (registry.PromotionResult, error)
}

// Config holds the per-run settings.
type Config struct {
	Query source.Query
	// TestRatio is the share of rows held out for evaluation.
	TestRatio float64
	SplitSeed int64
	// NullTokens are text values read as missing. Nil uses the dataset defaults.
	NullTokens []string
	Model      trainer.Config
	MinDelta   float64
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		Query:     source.Query{Collection: "vehicles"},
		TestRatio: 0.2,
		SplitSeed: 42,
		Model: trainer.Config{
			Estimator:  "linear",
			RandomSeed: 42,
			Metric:     "r2",
		},
		MinDelta: 0,
	}
}

func (c Config) validate() error {
	if !(c.TestRatio > 0 && c.TestRatio < 1) {
		return fmt.Errorf("%w: test ratio %v must be in (0, 1)", ErrConfig, c.TestRatio)
	}
	if c.MinDelta < 0 {
		return fmt.Errorf("%w: min delta %v is negative", ErrConfig, c.MinDelta)
	}
	if _, err := metric.Lookup(c.Model.Metric); err != nil {
		return fmt.Errorf("%w: %w", ErrConfig, err)
	}
	return nil
}

// Result is the outcome of one run.
type Result struct {
	RunID       string                   `json:"run_id"`
	Status      model.RunState           `json:"status"`
	FailedStage model.Stage              `json:"failed_stage,omitempty"`
	Reason      string                   `json:"reason,omitempty"`
	Promoted    bool                     `json:"promoted"`
	Version     string                   `json:"version,omitempty"`
	Verdict     *model.EvaluationVerdict `json:"verdict,omitempty"`
	Reports     []model.ValidationReport `json:"reports,omitempty"`
	// Err is the stage error of a failed run.
	Err error `json:"-"`
}

// Succeeded reports whether the run reached SUCCEEDED.
func (r Result) Succeeded() bool { return r.Status == model.StateSucceeded }

// Pipeline wires the stages to their collaborators. It is safe to run
// several pipelines concurrently against the same registry.
type Pipeline struct {
	source    source.Source
	contract  *schema.Contract
	registry  Registry
	artifacts objectstore.Store
	cfg       Config
	nulls     map[string]struct{}
	// textCols are the declared string columns, restored to text when the
	// source reads untyped text.
	textCols  map[string]struct{}

	log       logger.Logger
	now       func() time.Time
	newID     func() string
	observers []func(context.Context, model.RunRecord)
}

// New validates cfg and builds a pipeline.
func New(src source.Source, contract *schema.Contract, reg Registry, artifacts objectstore.Store, cfg Config, opts ...Option) (*Pipeline, error) {
	if src == nil || contract == nil || reg == nil || artifacts == nil {
		return nil, fmt.Errorf("%w: source, contract, registry and artifact store are required", ErrConfig)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	p := &Pipeline{
		source:    src,
		contract:  contract,
		registry:  reg,
		artifacts: artifacts,
		cfg:       cfg,
		nulls:     dataset.DefaultNullTokens(),
		textCols:  make(map[string]struct{}),
		log:       logger.Get().Named("pipeline"),
		now:       time.Now,
		newID:     uuid.NewString,
	}
	if cfg.NullTokens != nil {
		p.nulls = make(map[string]struct{}, len(cfg.NullTokens))
		for _, t := range cfg.NullTokens {
			p.nulls[t] = struct{}{}
		}
	}
	for _, col := range contract.Columns() {
		if col.Type == schema.TypeString {
			p.textCols[col.Name] = struct{}{}
		}
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Config returns the run settings.
func (p *Pipeline) Config() Config { return p.cfg }

// Run executes one run with a fresh id.
func (p *Pipeline) Run(ctx context.Context) Result {
	return p.Execute(ctx, model.RunRequest{ID: p.newID(), Trigger: "manual", EnqueuedAt: p.now()})
}

// Execute runs every stage for req and returns the final result. It never
// panics on stage errors; failures are reported in the result.
func (p *Pipeline) Execute(ctx context.Context, req model.RunRequest) Result {
	if req.ID == "" {
		req.ID = p.newID()
	}
	r := p.start(ctx, req)
	defer r.finish(ctx)

	pair, ok := stage(ctx, r, model.StageIngestion, func(ctx context.Context) (model.DatasetPair, error) {
		return p.ingest(ctx, r.rec.ID)
	})
	if !ok {
		return r.result()
	}
	if _, ok = stage(ctx, r, model.StageValidation, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, p.validate(ctx, r, pair)
	}); !ok {
		return r.result()
	}
	prepared, ok := stage(ctx, r, model.StageTransformation, func(ctx context.Context) (prepared, error) {
		return p.transform(ctx, r.rec.ID, pair)
	})
	if !ok {
		return r.result()
	}
	bundle, ok := stage(ctx, r, model.StageTraining, func(ctx context.Context) (model.Bundle, error) {
		return p.train(ctx, r.rec.ID, prepared)
	})
	if !ok {
		return r.result()
	}
	verdict, ok := stage(ctx, r, model.StageEvaluation, func(ctx context.Context) (model.EvaluationVerdict, error) {
		return p.evaluate(ctx, r.rec.ID, bundle, pair.Test)
	})
	if !ok {
		return r.result()
	}
	r.rec.Verdict = &verdict
	if _, ok = stage(ctx, r, model.StageRegistration, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, p.register(ctx, r, bundle, verdict)
	}); !ok {
		return r.result()
	}
	r.succeed(ctx)
	return r.result()
}
