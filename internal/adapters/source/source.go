// Package source reads raw vehicle records from a document store.
//
// Sources are read-only and schema-agnostic: they return whatever fields a
// document carries and leave typing to the dataset and validation layers.
package source

import (
	"context"
	"reflect"

	"github.com/okian/autotrain/internal/domain/dataset"
)

// IDField is the store identity field stripped at ingestion.
const IDField = "_id"

// Query selects documents from a collection.
type Query struct {
	Collection string
	// Filter keeps documents whose fields equal every given value.
	Filter map[string]any
	// Limit caps the number of documents; zero means no limit.
	Limit int
}

// Source fetches raw records.
type Source interface {
	FetchRecords(ctx context.Context, q Query) ([]dataset.Record, error)
}

// Textual is implemented by sources that read untyped text. Their cells
// are typed by dataset.ParseCell, so a text value such as the model name
// "500" arrives as a number.
type Textual interface {
	Textual() bool
}

// matches reports whether rec satisfies every filter field. Values are
// compared after normalization so 2015 and 2015.0 are equal.
func matches(rec dataset.Record, filter map[string]any) bool {
	for k, want := range filter {
		got, ok := rec[k]
		if !ok {
			return false
		}
		if !reflect.DeepEqual(dataset.Normalize(got), dataset.Normalize(want)) {
			return false
		}
	}
	return true
}

// apply filters and truncates records in order.
func apply(records []dataset.Record, q Query) []dataset.Record {
	out := make([]dataset.Record, 0, len(records))
	for _, r := range records {
		if !matches(r, q.Filter) {
			continue
		}
		out = append(out, r)
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return out
}
