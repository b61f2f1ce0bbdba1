// Package dedupe tracks record fingerprints so ingestion keeps each distinct
// record once.
package dedupe

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"sync"

	"github.com/okian/autotrain/internal/domain/dataset"
)

// Deduper records seen fingerprints.
type Deduper interface {
	// SeenAndRecord atomically checks if key was seen and records it if not.
	// Returns true if key was already seen.
	SeenAndRecord(ctx context.Context, key string) bool

	// Size returns the number of distinct keys recorded.
	Size() int64
}

// inMemoryDeduper keeps every fingerprint for the lifetime of one ingestion,
// so duplicates are caught however far apart they sit in the input.
type inMemoryDeduper struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewInMemoryDeduper creates a new in-memory deduper.
func NewInMemoryDeduper() Deduper {
	return &inMemoryDeduper{seen: make(map[string]struct{})}
}

func (d *inMemoryDeduper) SeenAndRecord(ctx context.Context, key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[key]; ok {
		return true
	}
	d.seen[key] = struct{}{}
	return false
}

func (d *inMemoryDeduper) Size() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return int64(len(d.seen))
}

// Fingerprint returns a stable hash of a record's normalized cells. Two
// records with the same keys and equal cell values share a fingerprint
// regardless of key order or numeric representation.
func Fingerprint(rec dataset.Record) string {
	keys := make([]string, 0, len(rec))
	for k := range rec {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha256.New()
	for _, k := range keys {
		h.Write([]byte(k))
		h.Write([]byte{0})
		v := dataset.Normalize(rec[k])
		switch v.(type) {
		case nil:
			h.Write([]byte{'n'})
		case bool:
			h.Write([]byte{'b'})
		case float64:
			h.Write([]byte{'f'})
		default:
			h.Write([]byte{'s'})
		}
		h.Write([]byte(dataset.FormatCell(v)))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
