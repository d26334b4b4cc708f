// Package normalize re-encodes accepted images into the canonical output form:
// upright, plain RGB, long edge bounded, JPEG.
package normalize

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"

	"github.com/okian/curator/internal/domain/category"
	"github.com/okian/curator/internal/domain/digest"
	"github.com/okian/curator/internal/domain/model"
	"github.com/okian/curator/pkg/logger"
)

// Default normalizer configuration constants.
const (
	DefaultQuality = 95
	DefaultMaxEdge = 1024
)

// Result describes a written image.
type Result struct {
	Path        string
	Width       int
	Height      int
	Orientation int
	Resized     bool
}

// Normalizer converts and writes images. It holds no mutable state and is
// safe for concurrent use.
type Normalizer struct {
	quality int
	maxEdge int
	logger  logger.Logger
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithQuality sets the JPEG quality, 1..100.
func WithQuality(q int) Option {
	return func(n *Normalizer) {
		if q >= 1 && q <= 100 {
			n.quality = q
		}
	}
}

// WithMaxEdge sets the long-edge bound. Larger images are downsampled.
func WithMaxEdge(px int) Option {
	return func(n *Normalizer) {
		if px > 0 {
			n.maxEdge = px
		}
	}
}

// WithLogger sets the logger used for metadata diagnostics.
func WithLogger(l logger.Logger) Option {
	return func(n *Normalizer) {
		if l != nil {
			n.logger = l
		}
	}
}

// New creates a Normalizer.
func New(opts ...Option) *Normalizer {
	n := &Normalizer{quality: DefaultQuality, maxEdge: DefaultMaxEdge}
	for _, opt := range opts {
		opt(n)
	}
	if n.logger == nil {
		n.logger = logger.Get().Named("normalizer")
	}
	return n
}

// FileName returns the deterministic output name {category}_{digest8}_{seq}.jpg.
func FileName(c category.Category, d digest.Digest, seq int) string {
	return fmt.Sprintf("%s_%s_%d.jpg", c, d.Short(), seq)
}

// OutputPath returns {root}/{split}/{category}/{FileName}.
func OutputPath(root string, split model.Split, c category.Category, d digest.Digest, seq int) string {
	return filepath.Join(root, string(split), c.String(), FileName(c, d, seq))
}

// Normalize reads src and writes the normalized JPEG to dst.
func (n *Normalizer) Normalize(ctx context.Context, src, dst string) (Result, error) {
	data, err := os.ReadFile(src) //nolint:gosec // path comes from the scanner
	if err != nil {
		return Result{}, fmt.Errorf("%w: %s: %w", ErrDecode, src, err)
	}
	return n.NormalizeBytes(ctx, data, dst)
}

// NormalizeBytes normalizes already-read image bytes and writes them to dst.
func (n *Normalizer) NormalizeBytes(ctx context.Context, data []byte, dst string) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrDecode, err)
	}

	res := Result{Path: dst}
	res.Orientation, err = Orientation(data)
	if err != nil {
		n.logger.Debug(ctx, "orientation unavailable",
			logger.String("path", dst),
			logger.Error(err),
		)
	}
	img = Orient(img, res.Orientation)

	rgb := toRGB(img)

	var out image.Image = rgb
	if b := rgb.Bounds(); max(b.Dx(), b.Dy()) > n.maxEdge {
		out = imaging.Fit(rgb, n.maxEdge, n.maxEdge, imaging.Lanczos)
		res.Resized = true
	}
	res.Width, res.Height = out.Bounds().Dx(), out.Bounds().Dy()

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, out, imaging.JPEG, imaging.JPEGQuality(n.quality)); err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrEncode, err)
	}

	if err := writeAtomic(dst, buf.Bytes()); err != nil {
		return Result{}, err
	}
	return res, nil
}

// toRGB returns an opaque NRGBA copy. Alpha is dropped and the stored colour
// kept; grayscale is expanded to three channels by the copy itself.
func toRGB(img image.Image) *image.NRGBA {
	dst := imaging.Clone(img)
	for i := 3; i < len(dst.Pix); i += 4 {
		dst.Pix[i] = 0xff
	}
	return dst
}

// writeAtomic writes data next to dst and renames it into place, so readers
// never observe a partial file.
func writeAtomic(dst string, data []byte) error {
	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrWrite, dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".normalize-*.jpg")
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrWrite, dir, err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("%w: %s: %w", ErrWrite, dst, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("%w: %s: %w", ErrWrite, dst, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil { //nolint:gosec // dataset images are world-readable
		cleanup()
		return fmt.Errorf("%w: %s: %w", ErrWrite, dst, err)
	}
	if err := os.Rename(tmpName, dst); err != nil {
		cleanup()
		return fmt.Errorf("%w: %s: %w", ErrWrite, dst, err)
	}
	return nil
}
