package synth

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/okian/curator/internal/domain/category"
	"github.com/okian/curator/pkg/logger"
)

// Generation constants.
const (
	defaultSize    = 160
	undersizedEdge = 40
	blockGrid      = 8
	jpegQuality    = 90
	pngEvery       = 3
	dirPermission  = 0o750
	filePermission = 0o644
)

// Generate writes a synthetic raw tree. Output is a pure function of cfg:
// the same config always produces byte-identical files.
func Generate(ctx context.Context, cfg Config) (Stats, error) {
	if cfg.Size <= 0 {
		cfg.Size = defaultSize
	}
	var st Stats
	rng := rand.New(rand.NewSource(cfg.Seed)) //nolint:gosec // synthetic content

	logger.Get().Info(ctx, "generating synthetic raw tree",
		logger.String("root", cfg.Root),
		logger.Int("per_category", cfg.PerCategory),
		logger.Int("duplicates", cfg.Duplicates),
		logger.Int("corrupt", cfg.Corrupt),
		logger.Int("undersized", cfg.Undersized),
	)

	var written []string
	for _, c := range category.All() {
		for i := 0; i < cfg.PerCategory; i++ {
			if err := ctx.Err(); err != nil {
				return st, err
			}
			img := blocks(rng, cfg.Size)
			name := fmt.Sprintf("%s_%03d", c, i)
			var data []byte
			var err error
			if i%pngEvery == 0 {
				name += ".png"
				data, err = encodePNG(img)
			} else {
				name += ".jpg"
				data, err = encodeJPEG(img)
			}
			if err != nil {
				return st, err
			}
			path := filepath.Join(cfg.Root, c.String(), name)
			if err := writeFile(path, data); err != nil {
				return st, err
			}
			written = append(written, path)
			st.Unique++
		}
	}

	all := category.All()
	for i := 0; i < cfg.Duplicates && len(written) > 0; i++ {
		src := written[i%len(written)]
		data, err := os.ReadFile(src) //nolint:gosec // generated path
		if err != nil {
			return st, fmt.Errorf("read %s: %w", src, err)
		}
		c := all[(i+1)%len(all)]
		if err := writeFile(filepath.Join(cfg.Root, c.String(), fmt.Sprintf("copy_%03d%s", i, filepath.Ext(src))), data); err != nil {
			return st, err
		}
		st.Duplicates++
	}

	for i := 0; i < cfg.Corrupt; i++ {
		data, err := encodeJPEG(blocks(rng, cfg.Size))
		if err != nil {
			return st, err
		}
		c := all[i%len(all)]
		if err := writeFile(filepath.Join(cfg.Root, c.String(), fmt.Sprintf("corrupt_%03d.jpg", i)), data[:len(data)/2]); err != nil {
			return st, err
		}
		st.Corrupt++
	}

	for i := 0; i < cfg.Undersized; i++ {
		data, err := encodePNG(blocks(rng, undersizedEdge))
		if err != nil {
			return st, err
		}
		c := all[i%len(all)]
		if err := writeFile(filepath.Join(cfg.Root, c.String(), fmt.Sprintf("small_%03d.png", i)), data); err != nil {
			return st, err
		}
		st.Undersized++
	}

	logger.Get().Info(ctx, "synthetic raw tree written", logger.Int("files", st.Files()))
	return st, nil
}

// blocks draws a grid of random colour blocks. Each image has unrelated
// content and an unrelated perceptual hash.
func blocks(rng *rand.Rand, size int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	cell := max(size/blockGrid, 1)
	for by := 0; by*cell < size; by++ {
		for bx := 0; bx*cell < size; bx++ {
			c := color.RGBA{R: uint8(rng.Intn(256)), G: uint8(rng.Intn(256)), B: uint8(rng.Intn(256)), A: 255}
			for y := by * cell; y < min((by+1)*cell, size); y++ {
				for x := bx * cell; x < min((bx+1)*cell, size); x++ {
					img.SetRGBA(x, y, c)
				}
			}
		}
	}
	return img
}

func encodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), dirPermission); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, data, filePermission); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
