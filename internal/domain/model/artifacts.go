// Package model contains the artifacts passed between pipeline stages and
// the records the registry and run history keep about them.
package model

import (
	"time"

	"github.com/okian/autotrain/internal/domain/dataset"
	"github.com/okian/autotrain/internal/domain/estimator"
	"github.com/okian/autotrain/internal/domain/transform"
)

// DatasetArtifact references a table produced by a stage. The table is never
// mutated after creation.
type DatasetArtifact struct {
	Name      string
	Table     *dataset.Table
	Key       string // object-store key of the persisted copy, if any
	CreatedAt time.Time
}

// Rows returns the row count.
func (d DatasetArtifact) Rows() int {
	if d.Table == nil {
		return 0
	}
	return d.Table.Len()
}

// Columns returns the column names.
func (d DatasetArtifact) Columns() []string {
	if d.Table == nil {
		return nil
	}
	return d.Table.Names()
}

// DatasetPair is the train/test output of ingestion.
type DatasetPair struct {
	Train DatasetArtifact
	Test  DatasetArtifact
}

// ReportStatus is the outcome of a validation run.
type ReportStatus string

// Validation outcomes.
const (
	StatusPass ReportStatus = "pass"
	StatusFail ReportStatus = "fail"
)

// Mismatch records a column whose inferred type does not satisfy the contract.
type Mismatch struct {
	Column   string `json:"column"`
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
}

// ValidationReport is the immutable result of checking a dataset against the
// schema contract.
type ValidationReport struct {
	Dataset        string       `json:"dataset"`
	Status         ReportStatus `json:"status"`
	Messages       []string     `json:"messages"`
	MissingColumns []string     `json:"missing_columns"`
	TypeMismatches []Mismatch   `json:"type_mismatches"`
	Rows           int          `json:"rows"`
	CheckedAt      time.Time    `json:"checked_at"`
}

// Passed reports whether the dataset may continue down the pipeline.
func (r ValidationReport) Passed() bool { return r.Status == StatusPass }

// TransformerArtifact is a fitted transformer plus the exact output features.
type TransformerArtifact struct {
	Transformer  *transform.Transformer
	FeatureNames []string
}

// NewTransformerArtifact wraps a fitted transformer.
func NewTransformerArtifact(t *transform.Transformer) TransformerArtifact {
	return TransformerArtifact{Transformer: t, FeatureNames: t.FeatureNames()}
}

// ModelArtifact is a fitted estimator with its training metadata.
type ModelArtifact struct {
	Estimator      estimator.Estimator
	Kind           string
	Params         estimator.Params
	Seed           int64
	Metric         string
	TrainingMetric float64
	FeatureNames   []string
	TrainedAt      time.Time
}

// Bundle is a model and the transformer that produced its inputs. The two are
// stored and promoted as one unit.
type Bundle struct {
	Model       ModelArtifact
	Transformer TransformerArtifact
	RunID       string
}

// EvaluationVerdict is the evaluator's accept/reject recommendation.
type EvaluationVerdict struct {
	Metric          string   `json:"metric"`
	NewScore        float64  `json:"new_score"`
	CurrentScore    *float64 `json:"current_score,omitempty"`
	Delta           float64  `json:"delta"`
	MinDelta        float64  `json:"min_delta"`
	IsImproved      bool     `json:"is_improved"`
	Accepted        bool     `json:"accepted"`
	BaselineVersion string   `json:"baseline_version,omitempty"`
}

// Bootstrap reports whether the verdict was made without a current model.
func (v EvaluationVerdict) Bootstrap() bool { return v.CurrentScore == nil }

// RegistryEntry identifies the promoted bundle behind the current alias.
type RegistryEntry struct {
	Version    string    `json:"version"`
	PromotedAt time.Time `json:"promoted_at"`
	Metric     string    `json:"metric"`
	Score      float64   `json:"score"`
	RunID      string    `json:"run_id,omitempty"`
	Kind       string    `json:"estimator"`
}
