package validate

import "image"

// ColorMode is the colour layout of a decoded image.
type ColorMode string

// Colour modes recognised by the validator.
const (
	RGB       ColorMode = "RGB"
	RGBA      ColorMode = "RGBA"
	Grayscale ColorMode = "L"
	Palette   ColorMode = "P"
	CMYK      ColorMode = "CMYK"
	Other     ColorMode = "other"
)

// Accepted reports whether the normalizer can turn m into plain RGB.
func (m ColorMode) Accepted() bool {
	switch m {
	case RGB, RGBA, Grayscale:
		return true
	default:
		return false
	}
}

type opaquer interface {
	Opaque() bool
}

// ModeOf maps a decoded image to its colour mode. Paletted and CMYK images are
// reported as such and rejected.
func ModeOf(img image.Image) ColorMode {
	switch m := img.(type) {
	case *image.YCbCr:
		return RGB
	case *image.Gray, *image.Gray16:
		return Grayscale
	case *image.RGBA, *image.NRGBA, *image.RGBA64, *image.NRGBA64:
		if o, ok := m.(opaquer); ok && o.Opaque() {
			return RGB
		}
		return RGBA
	case *image.NYCbCrA:
		return RGBA
	case *image.Paletted:
		return Palette
	case *image.CMYK:
		return CMYK
	default:
		return Other
	}
}
