package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/okian/autotrain/internal/adapters/registry"
	"github.com/okian/autotrain/internal/domain/estimator"
	"github.com/okian/autotrain/internal/domain/metric"
)

// Validate checks the configuration and reports every problem at once.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if strings.TrimSpace(c.SchemaPath) == "" {
		add("schema_path must not be empty")
	}

	switch c.Source.Kind {
	case SourceFile:
		if c.Source.Path == "" {
			add("source.path is required for the file source")
		}
	case SourcePostgres:
		if c.Source.DSN == "" {
			add("source.dsn is required for the postgres source")
		}
	case SourceSynthetic:
		if c.Source.SyntheticRows < 1 {
			add("source.synthetic_rows must be positive, got %d", c.Source.SyntheticRows)
		}
	default:
		add("unknown source.kind %q", c.Source.Kind)
	}
	if c.Source.Limit < 0 {
		add("source.limit must not be negative, got %d", c.Source.Limit)
	}

	switch c.Artifacts.Kind {
	case ArtifactsFS:
		if c.Artifacts.Dir == "" {
			add("artifacts.dir is required for the fs store")
		}
	case ArtifactsMemory:
	default:
		add("unknown artifacts.kind %q", c.Artifacts.Kind)
	}

	if !(c.Pipeline.TestRatio > 0 && c.Pipeline.TestRatio < 1) {
		add("pipeline.test_ratio must be in (0, 1), got %v", c.Pipeline.TestRatio)
	}
	if _, err := estimator.New(c.Model.Estimator, c.Model.Hyperparameters, c.Model.RandomSeed); err != nil {
		add("model: %w", err)
	}
	if _, err := metric.Lookup(c.Model.Metric); err != nil {
		add("model.metric: %w", err)
	}
	if c.Model.MinDelta < 0 {
		add("model.min_delta must not be negative, got %v", c.Model.MinDelta)
	}
	if _, err := registry.ParsePolicy(c.Registry.ConflictPolicy); err != nil {
		add("registry.conflict_policy: %w", err)
	}

	if c.Serve.Addr == "" {
		add("serve.addr must not be empty")
	}
	if c.Serve.WorkerCount < 1 {
		add("serve.worker_count must be positive, got %d", c.Serve.WorkerCount)
	}
	if c.Serve.QueueSize < 1 {
		add("serve.queue_size must be positive, got %d", c.Serve.QueueSize)
	}
	if c.Serve.RunTimeout < 0 || c.Serve.RetrainInterval < 0 {
		add("serve durations must not be negative")
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
}
