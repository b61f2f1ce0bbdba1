package objectstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteSyncsParentDirAfterRename(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFS(dir)
	require.NoError(t, err)

	var synced []string
	orig := syncDir
	syncDir = func(d string) error {
		_, statErr := os.Stat(filepath.Join(d, "model.json"))
		assert.NoError(t, statErr, "target is in place before the directory is synced")
		synced = append(synced, d)
		return orig(d)
	}
	t.Cleanup(func() { syncDir = orig })

	require.NoError(t, s.Put(context.Background(), "models/v1/model.json", []byte("{}")))
	assert.Equal(t, []string{filepath.Join(dir, "models", "v1")}, synced)
}

func TestWriteReportsDirSyncFailure(t *testing.T) {
	s, err := NewFS(t.TempDir())
	require.NoError(t, err)

	orig := syncDir
	syncDir = func(string) error { return os.ErrPermission }
	t.Cleanup(func() { syncDir = orig })

	err = s.Put(context.Background(), "k", []byte("x"))
	assert.ErrorIs(t, err, os.ErrPermission)
}

func TestBreakStaleKeepsReplacedLock(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFS(dir, WithStaleLockAge(time.Millisecond))
	require.NoError(t, err)
	lockPath := filepath.Join(dir, "alias.lock")

	require.NoError(t, os.WriteFile(lockPath, []byte("1"), 0o600))
	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(lockPath, old, old))
	seen, err := os.Stat(lockPath)
	require.NoError(t, err)

	// another waiter broke the stale lock and took a fresh one
	require.NoError(t, os.Remove(lockPath))
	require.NoError(t, os.WriteFile(lockPath, []byte("2"), 0o600))

	assert.False(t, s.breakStale(lockPath, seen))
	b, err := os.ReadFile(lockPath)
	require.NoError(t, err)
	assert.Equal(t, "2", string(b), "fresh lock left in place")
	_, err = os.Stat(lockPath + ".break")
	assert.True(t, os.IsNotExist(err), "breaker released")
}

func TestBreakStaleWaitsForActiveBreaker(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFS(dir, WithStaleLockAge(time.Hour))
	require.NoError(t, err)
	lockPath := filepath.Join(dir, "alias.lock")
	require.NoError(t, os.WriteFile(lockPath, []byte("1"), 0o600))
	require.NoError(t, os.WriteFile(lockPath+".break", nil, 0o600))
	seen, err := os.Stat(lockPath)
	require.NoError(t, err)

	assert.False(t, s.breakStale(lockPath, seen))
	_, err = os.Stat(lockPath)
	assert.NoError(t, err, "lock untouched while another breaker holds")
}
