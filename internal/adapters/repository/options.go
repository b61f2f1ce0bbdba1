package repository

import (
	"github.com/okian/autotrain/internal/adapters/objectstore"
	"github.com/okian/autotrain/pkg/logger"
)

// Option applies a configuration option to the RunStore.
type Option func(*RunStore)

// WithCapacity bounds how many runs are kept in memory. The oldest finished
// runs are evicted first. Zero keeps everything.
func WithCapacity(n int) Option {
	return func(s *RunStore) {
		if n >= 0 {
			s.capacity = n
		}
	}
}

// WithPersistence mirrors every saved record to runs/<id>/run.json in the
// object store. Get falls back to the store for evicted runs.
func WithPersistence(store objectstore.Store) Option {
	return func(s *RunStore) { s.blobs = store }
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *RunStore) {
		if l != nil {
			s.log = l
		}
	}
}
