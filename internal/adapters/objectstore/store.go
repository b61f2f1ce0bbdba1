// Package objectstore persists opaque blobs under slash-separated keys.
package objectstore

import (
	"context"
	"fmt"
	"path"
	"strings"
)

// Store is the minimal blob store the registry and pipeline depend on.
type Store interface {
	// Put writes data under key, replacing any previous value. Readers never
	// observe a partially written value.
	Put(ctx context.Context, key string, data []byte) error
	// Get returns the value under key or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Exists reports whether key holds a value.
	Exists(ctx context.Context, key string) (bool, error)
}

// Swapper is implemented by stores that can replace a value atomically
// when it still holds the expected content. A nil old value means the key
// must not exist yet.
type Swapper interface {
	CompareAndSwap(ctx context.Context, key string, old, data []byte) (bool, error)
}

// cleanKey rejects keys that would escape the store root.
func cleanKey(key string) (string, error) {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	c := path.Clean(key)
	if c != key || c == "." || c == ".." || strings.HasPrefix(c, "../") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return c, nil
}
