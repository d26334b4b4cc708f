package normalize

import (
	"bytes"
	"fmt"
	"image"

	"github.com/bep/imagemeta"
	"github.com/disintegration/imaging"
)

// metaFormats maps image.DecodeConfig format names to the containers imagemeta
// can walk. BMP carries no EXIF.
var metaFormats = map[string]imagemeta.ImageFormat{
	"jpeg": imagemeta.JPEG,
	"png":  imagemeta.PNG,
	"tiff": imagemeta.TIFF,
	"webp": imagemeta.WebP,
}

// Orientation reads the EXIF Orientation tag (1..8). Missing or out-of-range
// values yield 1. A non-nil error (wrapping ErrMetadata) means the metadata
// could not be read; the returned orientation is still usable.
func Orientation(data []byte) (int, error) {
	if len(data) == 0 {
		return 1, nil
	}
	_, name, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 1, fmt.Errorf("%w: %w", ErrMetadata, err)
	}
	format, ok := metaFormats[name]
	if !ok {
		return 1, nil
	}

	orientation := 1
	_, err = imagemeta.Decode(imagemeta.Options{
		R:           bytes.NewReader(data),
		ImageFormat: format,
		Sources:     imagemeta.EXIF,
		ShouldHandleTag: func(ti imagemeta.TagInfo) bool {
			return ti.Tag == "Orientation"
		},
		HandleTag: func(ti imagemeta.TagInfo) error {
			if v, ok := toInt(ti.Value); ok && v >= 1 && v <= 8 {
				orientation = v
			}
			return imagemeta.ErrStopWalking
		},
	})
	if err != nil {
		return orientation, fmt.Errorf("%w: %s: %w", ErrMetadata, name, err)
	}
	return orientation, nil
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int8:
		return int(n), true
	case int16:
		return int(n), true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case uint:
		return int(n), true //nolint:gosec // tag values are tiny
	case uint8:
		return int(n), true
	case uint16:
		return int(n), true
	case uint32:
		return int(n), true
	case uint64:
		return int(n), true //nolint:gosec // tag values are tiny
	default:
		return 0, false
	}
}

// Orient transforms img so that orientation 1 holds.
func Orient(img image.Image, orientation int) image.Image {
	switch orientation {
	case 2:
		return imaging.FlipH(img)
	case 3:
		return imaging.Rotate180(img)
	case 4:
		return imaging.FlipV(img)
	case 5:
		return imaging.Transpose(img)
	case 6:
		return imaging.Rotate270(img)
	case 7:
		return imaging.Transverse(img)
	case 8:
		return imaging.Rotate90(img)
	default:
		return img
	}
}
