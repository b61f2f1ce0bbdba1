package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/okian/autotrain/internal/adapters/objectstore"
	"github.com/okian/autotrain/internal/domain/model"
	"github.com/okian/autotrain/pkg/logger"
)

func init() {
	_ = logger.Init()
}

var epoch = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

func run(id string, offset int, state model.RunState) model.RunRecord {
	return model.RunRecord{
		ID:        id,
		State:     state,
		StartedAt: epoch.Add(time.Duration(offset) * time.Minute),
	}
}

func TestRunStore_BasicOperations(t *testing.T) {
	ctx := context.Background()
	store := NewRunStore()

	if count := store.Count(ctx); count != 0 {
		t.Errorf("expected count 0, got %d", count)
	}
	if _, err := store.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	rec := run("r1", 0, model.StateIngesting)
	if err := store.Save(ctx, rec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rec.State = model.StateFailed
	rec.FailedStage = model.StageValidation
	rec.Reason = "missing column price"
	if err := store.Save(ctx, rec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if count := store.Count(ctx); count != 1 {
		t.Errorf("expected count 1, got %d", count)
	}
	got, err := store.Get(ctx, "r1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.State != model.StateFailed || got.FailedStage != model.StageValidation {
		t.Errorf("expected failed at validation, got %s at %q", got.State, got.FailedStage)
	}

	if err := store.Save(ctx, model.RunRecord{}); !errors.Is(err, ErrInvalidRecord) {
		t.Errorf("expected ErrInvalidRecord, got %v", err)
	}
}

func TestRunStore_ListOrder(t *testing.T) {
	ctx := context.Background()
	store := NewRunStore()
	for i, id := range []string{"b", "a", "c"} {
		if err := store.Save(ctx, run(id, i%2, model.StateSucceeded)); err != nil {
			t.Fatalf("save %s: %v", id, err)
		}
	}

	list, err := store.List(ctx, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"a", "b", "c"}
	if len(list) != len(want) {
		t.Fatalf("expected %d runs, got %d", len(want), len(list))
	}
	for i, id := range want {
		if list[i].ID != id {
			t.Errorf("position %d: expected %s, got %s", i, id, list[i].ID)
		}
	}

	top, err := store.List(ctx, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(top) != 1 || top[0].ID != "a" {
		t.Errorf("expected [a], got %v", top)
	}

	if _, err := store.List(ctx, -1); !errors.Is(err, ErrInvalidLimit) {
		t.Errorf("expected ErrInvalidLimit, got %v", err)
	}
}

func TestRunStore_Isolation(t *testing.T) {
	ctx := context.Background()
	store := NewRunStore()
	rec := run("r1", 0, model.StateSucceeded)
	rec.Transitions = []model.Transition{{From: model.StatePending, To: model.StateIngesting, At: epoch}}
	if err := store.Save(ctx, rec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rec.Transitions[0].To = model.StateFailed
	got, _ := store.Get(ctx, "r1")
	if got.Transitions[0].To != model.StateIngesting {
		t.Errorf("stored record changed through caller slice: %v", got.Transitions)
	}
	got.Transitions[0].To = model.StateFailed
	again, _ := store.Get(ctx, "r1")
	if again.Transitions[0].To != model.StateIngesting {
		t.Errorf("stored record changed through returned slice: %v", again.Transitions)
	}
}

func TestRunStore_Eviction(t *testing.T) {
	ctx := context.Background()
	store := NewRunStore(WithCapacity(2))

	_ = store.Save(ctx, run("running", 0, model.StateTraining))
	_ = store.Save(ctx, run("old", 1, model.StateSucceeded))
	_ = store.Save(ctx, run("new", 2, model.StateFailed))

	if count := store.Count(ctx); count != 2 {
		t.Errorf("expected count 2, got %d", count)
	}
	if _, err := store.Get(ctx, "old"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected old run evicted, got %v", err)
	}
	if _, err := store.Get(ctx, "running"); err != nil {
		t.Errorf("in-progress run must not be evicted: %v", err)
	}
}

func TestRunStore_Persistence(t *testing.T) {
	ctx := context.Background()
	blobs := objectstore.NewMemory()
	store := NewRunStore(WithCapacity(1), WithPersistence(blobs))

	first := run("first", 0, model.StateSucceeded)
	first.Promoted = true
	first.Version = "v1"
	_ = store.Save(ctx, first)
	_ = store.Save(ctx, run("second", 1, model.StateSucceeded))

	got, err := store.Get(ctx, "first")
	if err != nil {
		t.Fatalf("expected evicted run from persistence, got %v", err)
	}
	if !got.Promoted || got.Version != "v1" {
		t.Errorf("unexpected persisted record: %+v", got)
	}
	if ok, _ := blobs.Exists(ctx, "runs/second/run.json"); !ok {
		t.Error("expected second run persisted")
	}
	if _, err := store.Get(ctx, "../escape"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for invalid id, got %v", err)
	}
}

func TestRunStore_Concurrent(t *testing.T) {
	ctx := context.Background()
	store := NewRunStore(WithCapacity(0))
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				id := fmt.Sprintf("w%d-%d", w, i)
				if err := store.Save(ctx, run(id, i, model.StateSucceeded)); err != nil {
					t.Errorf("save %s: %v", id, err)
				}
				if _, err := store.List(ctx, 5); err != nil {
					t.Errorf("list: %v", err)
				}
			}
		}(w)
	}
	wg.Wait()

	if count := store.Count(ctx); count != 400 {
		t.Errorf("expected 400 runs, got %d", count)
	}
}
