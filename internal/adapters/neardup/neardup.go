// Package neardup reports perceptually similar accepted images using a
// difference hash. It only reports; exact-content dedup decides acceptance.
package neardup

import (
	"image"
	"sync"

	"github.com/corona10/goimagehash"

	"github.com/okian/curator/internal/domain/digest"
)

// Hash computes the perceptual hash of img. It is safe to call concurrently.
func Hash(img image.Image) (*goimagehash.ImageHash, error) {
	return goimagehash.DifferenceHash(img)
}

// Match identifies the earlier image a new one resembles.
type Match struct {
	Digest   digest.Digest
	Path     string
	Distance int
}

type entry struct {
	digest digest.Digest
	path   string
	hash   *goimagehash.ImageHash
}

// Detector keeps the hashes of admitted images. It is safe for concurrent use,
// but results depend on call order, so callers admit images in a fixed order.
type Detector struct {
	mu        sync.Mutex
	threshold int
	entries   []entry
}

// New creates a Detector. Two images are near duplicates when the Hamming
// distance of their hashes is below threshold; zero disables detection.
func New(threshold int) *Detector {
	return &Detector{threshold: threshold}
}

// Enabled reports whether detection is on.
func (d *Detector) Enabled() bool {
	return d != nil && d.threshold > 0
}

// Check compares h with every earlier image and records it. A nil hash is
// ignored, as is every call on a disabled detector.
func (d *Detector) Check(id digest.Digest, path string, h *goimagehash.ImageHash) (Match, bool) {
	if !d.Enabled() || h == nil {
		return Match{}, false
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	best := Match{Distance: -1}
	for _, e := range d.entries {
		dist, err := h.Distance(e.hash)
		if err != nil || dist >= d.threshold {
			continue
		}
		if best.Distance < 0 || dist < best.Distance {
			best = Match{Digest: e.digest, Path: e.path, Distance: dist}
		}
	}

	d.entries = append(d.entries, entry{digest: id, path: path, hash: h})
	return best, best.Distance >= 0
}

// Len returns the number of recorded hashes.
func (d *Detector) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}
