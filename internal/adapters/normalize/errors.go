package normalize

import "errors"

// Sentinel errors for normalization. All of them drop only the affected image.
var (
	ErrDecode = errors.New("normalize: decode failed")
	ErrEncode = errors.New("normalize: encode failed")
	ErrWrite  = errors.New("normalize: write failed")

	// ErrMetadata is informational: the image is still written upright as stored.
	ErrMetadata = errors.New("normalize: metadata unreadable")
)
