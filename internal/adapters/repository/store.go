// Package repository keeps the history of pipeline runs.
package repository

import (
	"context"

	"github.com/okian/autotrain/internal/domain/model"
)

// Store provides read/write access to run records.
type Store interface {
	// Save inserts or replaces the record with the same ID.
	Save(ctx context.Context, rec model.RunRecord) error

	// Get returns the record for id.
	// Returns ErrNotFound if the run is unknown.
	Get(ctx context.Context, id string) (model.RunRecord, error)

	// List returns up to limit records, most recently started first.
	List(ctx context.Context, limit int) ([]model.RunRecord, error)

	// Count returns the number of runs retained.
	Count(ctx context.Context) int
}
