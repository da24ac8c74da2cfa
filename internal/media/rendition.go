package media

import (
	"fmt"
	"os"
	"path/filepath"

	"lorairo/internal/logging"

	"github.com/disintegration/imaging"
)

// RenditionExt is the file extension of processed renditions.
const RenditionExt = ".png"

// Rendition describes a processed image written by CreateRendition.
type Rendition struct {
	Width  int
	Height int
	Mode   string
}

// CreateRendition writes dst, a PNG copy of src whose long edge is at most
// resolution. Smaller images are written at their own size; they are
// never upscaled.
func CreateRendition(src, dst string, resolution int) (Rendition, error) {
	if resolution <= 0 {
		return Rendition{}, fmt.Errorf("invalid rendition resolution %d", resolution)
	}

	img, err := LoadImageConstrained(src, MaxImageDimension, MaxImagePixels)
	if err != nil {
		return Rendition{}, fmt.Errorf("failed to decode %s: %w", src, err)
	}

	out := imaging.Fit(img, resolution, resolution, imaging.Lanczos)

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return Rendition{}, fmt.Errorf("failed to create rendition directory: %w", err)
	}
	if err := imaging.Save(out, dst); err != nil {
		return Rendition{}, fmt.Errorf("failed to write rendition %s: %w", dst, err)
	}

	b := out.Bounds()
	logging.Debug("Wrote %dx%d rendition of %s to %s", b.Dx(), b.Dy(), filepath.Base(src), dst)
	return Rendition{Width: b.Dx(), Height: b.Dy(), Mode: ColorMode(img)}, nil
}
