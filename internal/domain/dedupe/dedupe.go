// Package dedupe provides the run-scoped index of accepted content digests.
package dedupe

import (
	"context"
	"sync"

	"github.com/okian/curator/internal/domain/digest"
)

// Deduper records seen content digests so that each content is accepted once.
type Deduper interface {
	// SeenAndRecord atomically checks whether d was seen and records it if not.
	// It returns true when d was already recorded, along with the owner that
	// recorded it first. Otherwise owner is stored and false is returned.
	SeenAndRecord(ctx context.Context, d digest.Digest, owner string) (first string, seen bool)

	Size() int64
}

// inMemoryDeduper implements Deduper with a mutex-guarded map. It is unbounded:
// entries live until the run ends.
type inMemoryDeduper struct {
	mu   sync.Mutex
	seen map[digest.Digest]string
}

// NewInMemoryDeduper creates a new in-memory deduper.
func NewInMemoryDeduper(opts ...Option) Deduper {
	cfg := options{}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &inMemoryDeduper{
		seen: make(map[digest.Digest]string, cfg.sizeHint),
	}
}

func (d *inMemoryDeduper) SeenAndRecord(_ context.Context, key digest.Digest, owner string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if first, ok := d.seen[key]; ok {
		return first, true
	}
	d.seen[key] = owner
	return owner, false
}

// Size returns the current number of recorded digests.
func (d *inMemoryDeduper) Size() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return int64(len(d.seen))
}
