// Package digest computes content digests used as the global identity of an image.
package digest

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
)

// shortLen is the number of hex characters used in output file names.
const shortLen = 8

// ErrRead is returned when a candidate file cannot be read for hashing.
var ErrRead = errors.New("read for hashing failed")

// Digest is the SHA-256 of a file's raw bytes. Equal digests mean identical content.
type Digest [sha256.Size]byte

// Sum returns the digest of b.
func Sum(b []byte) Digest {
	return Digest(sha256.Sum256(b))
}

// Read hashes r to EOF without buffering it.
func Read(r io.Reader) (Digest, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return Digest{}, fmt.Errorf("%w: %w", ErrRead, err)
	}
	var d Digest
	copy(d[:], h.Sum(nil))
	return d, nil
}

// File streams path through the hash. Memory use does not depend on the
// file size.
func File(path string) (Digest, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from the scanner
	if err != nil {
		return Digest{}, fmt.Errorf("%w: %s: %w", ErrRead, path, err)
	}
	defer f.Close()
	d, err := Read(f)
	if err != nil {
		return Digest{}, fmt.Errorf("%s: %w", path, err)
	}
	return d, nil
}

// Load reads path and returns its digest together with the bytes read. Use it
// only for files already known to be within a size bound.
func Load(path string) (Digest, []byte, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from the scanner
	if err != nil {
		return Digest{}, nil, fmt.Errorf("%w: %s: %w", ErrRead, path, err)
	}
	return Sum(data), data, nil
}

// Hex returns the full lowercase hex encoding.
func (d Digest) Hex() string {
	return hex.EncodeToString(d[:])
}

// Short returns the first eight hex characters.
func (d Digest) Short() string {
	return d.Hex()[:shortLen]
}

// String implements fmt.Stringer.
func (d Digest) String() string { return d.Hex() }

// Seed folds the leading bytes of the digest into an int64, used to derive
// per-image random sources that do not depend on processing order.
func (d Digest) Seed() int64 {
	return int64(binary.BigEndian.Uint64(d[:8])) //nolint:gosec // bit reinterpretation is intended
}

// Less orders digests bytewise.
func (d Digest) Less(o Digest) bool {
	for i := range d {
		if d[i] != o[i] {
			return d[i] < o[i]
		}
	}
	return false
}

// IsZero reports whether d is the zero digest.
func (d Digest) IsZero() bool {
	return d == Digest{}
}
