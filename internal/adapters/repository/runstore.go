package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/okian/autotrain/internal/adapters/objectstore"
	"github.com/okian/autotrain/internal/domain/model"
	"github.com/okian/autotrain/pkg/logger"
)

// RunStore is an in-memory Store, optionally mirrored to an object store.
//
// Reads of the listing go through an immutable snapshot published after
// every write, so List never contends with Save.
type RunStore struct {
	mu       sync.RWMutex
	byID     map[string]model.RunRecord
	capacity int
	blobs    objectstore.Store
	log      logger.Logger

	// snapshot holds records sorted by StartedAt desc, then ID asc.
	snapshot atomic.Pointer[[]model.RunRecord]
}

var _ Store = (*RunStore)(nil)

// NewRunStore constructs a run store with configuration options.
func NewRunStore(opts ...Option) *RunStore {
	s := &RunStore{
		byID:     make(map[string]model.RunRecord),
		capacity: 1000,
		log:      logger.Get().Named("repository"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.snapshot.Store(&[]model.RunRecord{})
	return s
}

func blobKey(id string) string { return "runs/" + id + "/run.json" }

// Save implements Store.Save.
func (s *RunStore) Save(ctx context.Context, rec model.RunRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("%w: empty run id", ErrInvalidRecord)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	rec = rec.Clone()

	if s.blobs != nil {
		raw, err := json.MarshalIndent(rec, "", "  ")
		if err != nil {
			return fmt.Errorf("encode run %s: %w", rec.ID, err)
		}
		if err := s.blobs.Put(ctx, blobKey(rec.ID), raw); err != nil {
			return fmt.Errorf("persist run %s: %w", rec.ID, err)
		}
	}

	s.mu.Lock()
	s.byID[rec.ID] = rec
	s.evictLocked()
	s.publishLocked()
	s.mu.Unlock()
	return nil
}

// evictLocked drops the oldest finished runs above capacity. Runs still in
// progress are never evicted.
func (s *RunStore) evictLocked() {
	if s.capacity == 0 || len(s.byID) <= s.capacity {
		return
	}
	finished := make([]model.RunRecord, 0, len(s.byID))
	for _, r := range s.byID {
		if r.State.Terminal() {
			finished = append(finished, r)
		}
	}
	sortRecords(finished)
	for i := len(finished) - 1; i >= 0 && len(s.byID) > s.capacity; i-- {
		delete(s.byID, finished[i].ID)
	}
}

func (s *RunStore) publishLocked() {
	list := make([]model.RunRecord, 0, len(s.byID))
	for _, r := range s.byID {
		list = append(list, r)
	}
	sortRecords(list)
	s.snapshot.Store(&list)
}

func sortRecords(list []model.RunRecord) {
	sort.Slice(list, func(i, j int) bool {
		if !list[i].StartedAt.Equal(list[j].StartedAt) {
			return list[i].StartedAt.After(list[j].StartedAt)
		}
		return list[i].ID < list[j].ID
	})
}

// Get implements Store.Get.
func (s *RunStore) Get(ctx context.Context, id string) (model.RunRecord, error) {
	if err := ctx.Err(); err != nil {
		return model.RunRecord{}, err
	}
	s.mu.RLock()
	rec, ok := s.byID[id]
	s.mu.RUnlock()
	if ok {
		return rec.Clone(), nil
	}
	if s.blobs == nil || id == "" {
		return model.RunRecord{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	raw, err := s.blobs.Get(ctx, blobKey(id))
	if errors.Is(err, objectstore.ErrNotFound) || errors.Is(err, objectstore.ErrInvalidKey) {
		return model.RunRecord{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return model.RunRecord{}, fmt.Errorf("load run %s: %w", id, err)
	}
	if err := json.Unmarshal(raw, &rec); err != nil {
		s.log.Warn(ctx, "stored run is unreadable", logger.String("run_id", id), logger.Error(err))
		return model.RunRecord{}, fmt.Errorf("%w: %s: %w", ErrInvalidRecord, id, err)
	}
	return rec, nil
}

// List implements Store.List.
func (s *RunStore) List(ctx context.Context, limit int) ([]model.RunRecord, error) {
	if limit < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLimit, limit)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	snap := *s.snapshot.Load()
	if limit == 0 || limit > len(snap) {
		limit = len(snap)
	}
	out := make([]model.RunRecord, limit)
	for i := range out {
		out[i] = snap[i].Clone()
	}
	return out, nil
}

// Count implements Store.Count.
func (s *RunStore) Count(ctx context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}
