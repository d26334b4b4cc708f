// Package validate decides whether a candidate file is a usable raster image.
//
// Checks run in order and stop at the first failure:
//  1. file size within the configured bound
//  2. full decode succeeds (not just the header)
//  3. decoded format is whitelisted
//  4. both dimensions reach the configured minimum
//  5. colour mode is RGB, RGBA or grayscale
package validate

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // decoded so GIF content is reported as unsupported, not corrupt
	_ "image/jpeg" // register decoder
	_ "image/png"  // register decoder
	"strings"

	_ "golang.org/x/image/bmp"  // register decoder
	_ "golang.org/x/image/tiff" // register decoder
	_ "golang.org/x/image/webp" // decoded so WebP content is reported as unsupported
)

// Default validation bounds.
const (
	DefaultMaxBytes  = 10 * 1024 * 1024
	DefaultMinWidth  = 100
	DefaultMinHeight = 100
	// DefaultMaxPixels rejects decompression bombs before allocating pixel buffers.
	DefaultMaxPixels = 2 * 89_478_485
)

// DefaultFormats is the default decoded-format whitelist.
var DefaultFormats = []string{"jpeg", "png", "bmp", "tiff"}

// Info describes a validated image.
type Info struct {
	Format    string
	Width     int
	Height    int
	ColorMode ColorMode
}

// Validator is a read-only probe; it holds no mutable state and is safe for
// concurrent use.
type Validator struct {
	maxBytes  int64
	minWidth  int
	minHeight int
	maxPixels int
	formats   map[string]bool
}

// New creates a Validator with defaults overridden by opts.
func New(opts ...Option) *Validator {
	v := &Validator{
		maxBytes:  DefaultMaxBytes,
		minWidth:  DefaultMinWidth,
		minHeight: DefaultMinHeight,
		maxPixels: DefaultMaxPixels,
	}
	WithFormats(DefaultFormats...)(v)
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// CheckSize rejects a file of size bytes before any of it is read.
func (v *Validator) CheckSize(path string, size int64) error {
	if size > v.maxBytes {
		return reject(ReasonTooLarge, path, fmt.Sprintf("%.2fMB", float64(size)/(1024*1024)), nil)
	}
	return nil
}

// Check validates bytes already read from path and returns the decoded image
// on success so callers can reuse it.
func (v *Validator) Check(path string, data []byte) (Info, image.Image, error) {
	if int64(len(data)) > v.maxBytes {
		return Info{}, nil, reject(ReasonTooLarge, path, fmt.Sprintf("%.2fMB", float64(len(data))/(1024*1024)), nil)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Info{}, nil, reject(ReasonCorrupt, path, "header", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return Info{}, nil, reject(ReasonCorrupt, path, fmt.Sprintf("%dx%d", cfg.Width, cfg.Height), nil)
	}
	if cfg.Width*cfg.Height > v.maxPixels {
		return Info{}, nil, reject(ReasonTooLarge, path, fmt.Sprintf("%dx%d pixels", cfg.Width, cfg.Height), nil)
	}

	// A full decode walks every block, so truncated or damaged bodies fail here.
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Info{}, nil, reject(ReasonCorrupt, path, "decode", err)
	}

	if !v.formats[format] {
		return Info{}, nil, reject(ReasonUnsupportedFormat, path, format, nil)
	}

	b := img.Bounds()
	info := Info{Format: format, Width: b.Dx(), Height: b.Dy(), ColorMode: ModeOf(img)}

	if info.Width < v.minWidth || info.Height < v.minHeight {
		return Info{}, nil, reject(ReasonTooSmall, path, fmt.Sprintf("%dx%d", info.Width, info.Height), nil)
	}

	if !info.ColorMode.Accepted() {
		return Info{}, nil, reject(ReasonUnsupportedColorMode, path, string(info.ColorMode), nil)
	}

	return info, img, nil
}

// Option configures a Validator.
type Option func(*Validator)

// WithMaxBytes sets the file size bound.
func WithMaxBytes(n int64) Option {
	return func(v *Validator) {
		if n > 0 {
			v.maxBytes = n
		}
	}
}

// WithMinSize sets the minimum accepted width and height.
func WithMinSize(width, height int) Option {
	return func(v *Validator) {
		if width > 0 {
			v.minWidth = width
		}
		if height > 0 {
			v.minHeight = height
		}
	}
}

// WithMaxPixels sets the decoded pixel-count bound.
func WithMaxPixels(n int) Option {
	return func(v *Validator) {
		if n > 0 {
			v.maxPixels = n
		}
	}
}

// WithFormats replaces the format whitelist. Names are decoder names as
// reported by image.Decode ("jpeg", "png", "bmp", "tiff"); "jpg" and "tif"
// are accepted as aliases.
func WithFormats(formats ...string) Option {
	return func(v *Validator) {
		if len(formats) == 0 {
			return
		}
		v.formats = make(map[string]bool, len(formats))
		for _, f := range formats {
			v.formats[canonicalFormat(f)] = true
		}
	}
}

func canonicalFormat(f string) string {
	f = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(f), "."))
	switch f {
	case "jpg":
		return "jpeg"
	case "tif":
		return "tiff"
	default:
		return f
	}
}
