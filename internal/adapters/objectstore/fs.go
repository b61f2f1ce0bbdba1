package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FS stores objects as files below a root directory. Writes go to a
// temporary file in the target directory and are renamed into place, so a
// key is either absent, its old value, or its complete new value.
// CompareAndSwap serializes writers across processes with an exclusive
// lock file next to the target.
type FS struct {
	root         string
	staleLockAge time.Duration
	lockRetry    time.Duration
	mu           sync.Mutex
}

var (
	_ Store   = (*FS)(nil)
	_ Swapper = (*FS)(nil)
)

// NewFS creates a store rooted at dir, creating it if needed.
func NewFS(dir string, opts ...Option) (*FS, error) {
	s := &FS{
		root:         dir,
		staleLockAge: 30 * time.Second,
		lockRetry:    10 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store root %s: %w", dir, err)
	}
	return s, nil
}

// Root returns the root directory.
func (s *FS) Root() string { return s.root }

func (s *FS) path(key string) (string, error) {
	k, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.root, filepath.FromSlash(k)), nil
}

func (s *FS) Put(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := s.path(key)
	if err != nil {
		return err
	}
	return writeAtomic(p, data)
}

func writeAtomic(p string, data []byte) error {
	dir := filepath.Dir(p)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	f, err := os.CreateTemp(dir, "."+filepath.Base(p)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", p, err)
	}
	tmp := f.Name()
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("sync %s: %w", tmp, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("close %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, p); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename %s: %w", p, err)
	}
	if err := syncDir(dir); err != nil {
		return fmt.Errorf("sync dir %s: %w", dir, err)
	}
	return nil
}

// syncDir flushes a directory entry so a completed rename survives a crash.
var syncDir = func(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	if err := d.Sync(); err != nil {
		_ = d.Close()
		return err
	}
	return d.Close()
}

func (s *FS) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return b, nil
}

func (s *FS) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	p, err := s.path(key)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(p)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", key, err)
	}
	return !info.IsDir(), nil
}

func (s *FS) CompareAndSwap(ctx context.Context, key string, old, data []byte) (bool, error) {
	p, err := s.path(key)
	if err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	unlock, err := s.lock(ctx, p)
	if err != nil {
		return false, err
	}
	defer unlock()

	cur, err := os.ReadFile(p)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if old != nil {
			return false, nil
		}
	case err != nil:
		return false, fmt.Errorf("read %s: %w", key, err)
	default:
		if old == nil || !bytes.Equal(cur, old) {
			return false, nil
		}
	}
	if err := writeAtomic(p, data); err != nil {
		return false, err
	}
	return true, nil
}

// lock takes an exclusive lock file for p, waiting until ctx is done.
func (s *FS) lock(ctx context.Context, p string) (func(), error) {
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir for lock: %w", err)
	}
	lockPath := p + ".lock"
	for {
		f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err == nil {
			_, _ = fmt.Fprintf(f, "%d\n", os.Getpid())
			_ = f.Close()
			return func() { _ = os.Remove(lockPath) }, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("create lock %s: %w", lockPath, err)
		}
		if info, statErr := os.Stat(lockPath); statErr == nil && time.Since(info.ModTime()) > s.staleLockAge {
			if s.breakStale(lockPath, info) {
				continue
			}
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s: %w", ErrLocked, lockPath, ctx.Err())
		case <-time.After(s.lockRetry):
		}
	}
}

// breakStale removes lockPath only if it is still the stale file described
// by seen. Breakers serialize on a second lock file so a waiter that stat'd
// an old lock cannot remove the fresh one another waiter just created.
func (s *FS) breakStale(lockPath string, seen fs.FileInfo) bool {
	breaker := lockPath + ".break"
	f, err := os.OpenFile(breaker, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		if info, statErr := os.Stat(breaker); statErr == nil && time.Since(info.ModTime()) > s.staleLockAge {
			_ = os.Remove(breaker)
		}
		return false
	}
	_ = f.Close()
	defer func() { _ = os.Remove(breaker) }()

	cur, err := os.Stat(lockPath)
	if errors.Is(err, fs.ErrNotExist) {
		return true
	}
	if err != nil || !os.SameFile(cur, seen) || !cur.ModTime().Equal(seen.ModTime()) {
		return false
	}
	return os.Remove(lockPath) == nil
}
