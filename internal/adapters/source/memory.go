package source

import (
	"context"
	"maps"
	"sync"

	"github.com/okian/autotrain/internal/domain/dataset"
)

// Memory serves fixed records grouped by collection.
type Memory struct {
	mu   sync.RWMutex
	docs map[string][]dataset.Record
}

var _ Source = (*Memory)(nil)

// NewMemory creates an empty in-memory source.
func NewMemory() *Memory {
	return &Memory{docs: make(map[string][]dataset.Record)}
}

// Add appends copies of records to a collection.
func (m *Memory) Add(collection string, records ...dataset.Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range records {
		m.docs[collection] = append(m.docs[collection], maps.Clone(r))
	}
}

// FetchRecords returns copies of the matching records in insertion order.
func (m *Memory) FetchRecords(ctx context.Context, q Query) ([]dataset.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := apply(m.docs[q.Collection], q)
	for i, r := range out {
		out[i] = maps.Clone(r)
	}
	return out, nil
}
