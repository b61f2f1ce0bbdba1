package objectstore_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okian/autotrain/internal/adapters/objectstore"
)

type store interface {
	objectstore.Store
	objectstore.Swapper
}

func stores(t *testing.T) map[string]store {
	t.Helper()
	fsStore, err := objectstore.NewFS(t.TempDir(), objectstore.WithLockRetry(time.Millisecond))
	require.NoError(t, err)
	return map[string]store{
		"memory": objectstore.NewMemory(),
		"fs":     fsStore,
	}
}

func TestPutGetExists(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ok, err := s.Exists(ctx, "models/v1/model.json")
			require.NoError(t, err)
			assert.False(t, ok)

			_, err = s.Get(ctx, "models/v1/model.json")
			assert.ErrorIs(t, err, objectstore.ErrNotFound)

			require.NoError(t, s.Put(ctx, "models/v1/model.json", []byte(`{"a":1}`)))
			require.NoError(t, s.Put(ctx, "models/v1/model.json", []byte(`{"a":2}`)))

			got, err := s.Get(ctx, "models/v1/model.json")
			require.NoError(t, err)
			assert.Equal(t, `{"a":2}`, string(got))

			ok, err = s.Exists(ctx, "models/v1/model.json")
			require.NoError(t, err)
			assert.True(t, ok)

			ok, err = s.Exists(ctx, "models/v1")
			require.NoError(t, err)
			assert.False(t, ok, "a key prefix is not an object")
		})
	}
}

func TestInvalidKeys(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			for _, key := range []string{"", "/abs", "../escape", "a/../../b", "a//b", "a\\b", "."} {
				assert.ErrorIs(t, s.Put(ctx, key, []byte("x")), objectstore.ErrInvalidKey, key)
			}
		})
	}
}

func TestCompareAndSwap(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			swapped, err := s.CompareAndSwap(ctx, "models/current", nil, []byte("v1"))
			require.NoError(t, err)
			assert.True(t, swapped, "create when absent")

			swapped, err = s.CompareAndSwap(ctx, "models/current", nil, []byte("v2"))
			require.NoError(t, err)
			assert.False(t, swapped, "nil old requires absence")

			swapped, err = s.CompareAndSwap(ctx, "models/current", []byte("v0"), []byte("v2"))
			require.NoError(t, err)
			assert.False(t, swapped, "stale old value")

			swapped, err = s.CompareAndSwap(ctx, "models/current", []byte("v1"), []byte("v2"))
			require.NoError(t, err)
			assert.True(t, swapped)

			got, err := s.Get(ctx, "models/current")
			require.NoError(t, err)
			assert.Equal(t, "v2", string(got))
		})
	}
}

func TestConcurrentCompareAndSwap(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Put(ctx, "alias", []byte("base")))

			const writers = 8
			var wg sync.WaitGroup
			results := make(chan bool, writers)
			for i := 0; i < writers; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					ok, err := s.CompareAndSwap(ctx, "alias", []byte("base"), []byte{byte('a' + i)})
					assert.NoError(t, err)
					results <- ok
				}(i)
			}
			wg.Wait()
			close(results)

			wins := 0
			for ok := range results {
				if ok {
					wins++
				}
			}
			assert.Equal(t, 1, wins)
		})
	}
}

func TestFSLocks(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	t.Run("held lock blocks until the context ends", func(t *testing.T) {
		s, err := objectstore.NewFS(dir, objectstore.WithLockRetry(time.Millisecond))
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(dir, "held.lock"), []byte("1"), 0o600))

		cctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
		defer cancel()
		_, err = s.CompareAndSwap(cctx, "held", nil, []byte("x"))
		assert.ErrorIs(t, err, objectstore.ErrLocked)
	})

	t.Run("stale lock is broken", func(t *testing.T) {
		s, err := objectstore.NewFS(dir, objectstore.WithStaleLockAge(time.Millisecond))
		require.NoError(t, err)
		lock := filepath.Join(dir, "stale.lock")
		require.NoError(t, os.WriteFile(lock, []byte("1"), 0o600))
		old := time.Now().Add(-time.Hour)
		require.NoError(t, os.Chtimes(lock, old, old))

		ok, err := s.CompareAndSwap(ctx, "stale", nil, []byte("x"))
		require.NoError(t, err)
		assert.True(t, ok)
		_, err = os.Stat(lock)
		assert.True(t, os.IsNotExist(err), "lock removed after swap")
	})

	t.Run("stale lock is broken by one process at a time", func(t *testing.T) {
		sub := t.TempDir()
		lock := filepath.Join(sub, "alias.lock")

		for round := 0; round < 20; round++ {
			require.NoError(t, os.RemoveAll(filepath.Join(sub, "alias")))
			require.NoError(t, os.WriteFile(lock, []byte("1"), 0o600))
			old := time.Now().Add(-time.Hour)
			require.NoError(t, os.Chtimes(lock, old, old))

			const procs = 6
			var wg sync.WaitGroup
			results := make(chan bool, procs)
			for i := 0; i < procs; i++ {
				// separate stores share only the directory, like separate processes
				s, err := objectstore.NewFS(sub,
					objectstore.WithStaleLockAge(50*time.Millisecond),
					objectstore.WithLockRetry(time.Millisecond))
				require.NoError(t, err)
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					ok, err := s.CompareAndSwap(ctx, "alias", nil, []byte{byte('a' + i)})
					assert.NoError(t, err)
					results <- ok
				}(i)
			}
			wg.Wait()
			close(results)

			wins := 0
			for ok := range results {
				if ok {
					wins++
				}
			}
			require.Equal(t, 1, wins, "round %d", round)
		}
	})

	t.Run("writes leave no temporary files", func(t *testing.T) {
		s, err := objectstore.NewFS(dir)
		require.NoError(t, err)
		require.NoError(t, s.Put(ctx, "runs/r1/report.json", []byte("{}")))
		entries, err := os.ReadDir(filepath.Join(dir, "runs", "r1"))
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "report.json", entries[0].Name())
	})
}
