// Package config defines process configuration and its layered loading.
//
// Conventions:
// - New(ctx) returns a Config holding every default.
// - Load layers a .env file, a YAML file and AUTOTRAIN_* variables over it.
// - Validate reports every problem wrapped in ErrInvalidConfig.
package config

import (
	"context"
	"time"
)

// Source kinds.
const (
	SourceFile      = "file"
	SourcePostgres  = "postgres"
	SourceSynthetic = "synthetic"
)

// Artifact store kinds.
const (
	ArtifactsFS     = "fs"
	ArtifactsMemory = "memory"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat is text or json.
	LogFormat string `koanf:"log_format"`

	// SchemaPath points at the YAML schema contract.
	SchemaPath string `koanf:"schema_path"`

	Source    SourceConfig    `koanf:"source"`
	Artifacts ArtifactsConfig `koanf:"artifacts"`
	Pipeline  PipelineConfig  `koanf:"pipeline"`
	Model     ModelConfig     `koanf:"model"`
	Registry  RegistryConfig  `koanf:"registry"`
	Serve     ServeConfig     `koanf:"serve"`
}

// SourceConfig selects the document store records are fetched from.
type SourceConfig struct {
	// Kind is file, postgres or synthetic.
	Kind string `koanf:"kind"`
	// Path is the CSV or XLSX file for the file kind.
	Path string `koanf:"path"`
	// DSN and Table configure the postgres kind.
	DSN   string `koanf:"dsn"`
	Table string `koanf:"table"`
	// Collection names the collection, table partition or sheet to read.
	Collection string         `koanf:"collection"`
	Filter     map[string]any `koanf:"filter"`
	Limit      int            `koanf:"limit"`
	// NullTokens are text values read as missing. Empty keeps the defaults.
	NullTokens []string `koanf:"null_tokens"`
	// SyntheticRows and SyntheticSeed size the synthetic kind.
	SyntheticRows int    `koanf:"synthetic_rows"`
	SyntheticSeed uint64 `koanf:"synthetic_seed"`
}

// ArtifactsConfig selects the object store behind the registry and run artifacts.
type ArtifactsConfig struct {
	// Kind is fs or memory.
	Kind string `koanf:"kind"`
	Dir  string `koanf:"dir"`
}

// PipelineConfig holds per-run pipeline settings.
type PipelineConfig struct {
	TestRatio float64 `koanf:"test_ratio"`
	SplitSeed int64   `koanf:"split_seed"`
}

// ModelConfig selects and parameterizes the estimator and the promotion rule.
type ModelConfig struct {
	Estimator       string         `koanf:"estimator"`
	Hyperparameters map[string]any `koanf:"hyperparameters"`
	RandomSeed      int64          `koanf:"random_seed"`
	Metric          string         `koanf:"metric"`
	MinDelta        float64        `koanf:"min_delta"`
}

// RegistryConfig configures promotion.
type RegistryConfig struct {
	// ConflictPolicy is reject or recheck.
	ConflictPolicy string `koanf:"conflict_policy"`
}

// ServeConfig configures the HTTP server and the run workers.
type ServeConfig struct {
	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr        string `koanf:"addr"`
	WorkerCount int    `koanf:"worker_count"`
	QueueSize   int    `koanf:"queue_size"`
	// RunTimeout bounds each queued run.
	RunTimeout time.Duration `koanf:"run_timeout"`
	// RetrainInterval schedules a run every interval. Zero disables it.
	RetrainInterval time.Duration `koanf:"retrain_interval"`
	// BootstrapOnStart runs the pipeline once when serving with no model.
	BootstrapOnStart bool `koanf:"bootstrap_on_start"`
}

// New creates a Config holding the defaults. Context is accepted first to
// satisfy the project-wide convention.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:   "info",
		LogFormat:  "text",
		SchemaPath: "config/schema.yaml",
		Source: SourceConfig{
			Kind:          SourceSynthetic,
			Table:         "documents",
			Collection:    "vehicles",
			SyntheticRows: 1000,
			SyntheticSeed: 7,
		},
		Artifacts: ArtifactsConfig{
			Kind: ArtifactsFS,
			Dir:  "artifacts",
		},
		Pipeline: PipelineConfig{
			TestRatio: 0.2,
			SplitSeed: 42,
		},
		Model: ModelConfig{
			Estimator:  "linear",
			RandomSeed: 42,
			Metric:     "r2",
			MinDelta:   0,
		},
		Registry: RegistryConfig{
			ConflictPolicy: "reject",
		},
		Serve: ServeConfig{
			Addr:        ":9080",
			WorkerCount: 1,
			QueueSize:   16,
			RunTimeout:  30 * time.Minute,
		},
	}
}
