package media

import (
	"fmt"
	"image"
	"image/color"
	"strings"

	"lorairo/internal/filesystem"
	"lorairo/internal/logging"

	// Image format decoders
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp" // WebP format support
)

const (
	// MaxImageDimension is the maximum width or height decoded at full size.
	// Larger images are downscaled right after decoding.
	MaxImageDimension = 4096

	// MaxImagePixels caps the decoded pixel count (~80MB as RGBA).
	MaxImagePixels = 20_000_000
)

// Info is what the importer records about an image file.
type Info struct {
	Width  int
	Height int
	// Format is the upper-case codec name, e.g. "PNG".
	Format string
}

// ReadInfo returns the dimensions and format of an image without decoding
// its pixels.
func ReadInfo(path string) (Info, error) {
	file, err := filesystem.Open(path)
	if err != nil {
		return Info{}, err
	}
	defer func() {
		if err := file.Close(); err != nil {
			logging.Warn("failed to close image file %s: %v", path, err)
		}
	}()

	config, format, err := image.DecodeConfig(file)
	if err != nil {
		return Info{}, fmt.Errorf("failed to read image header of %s: %w", path, err)
	}
	return Info{Width: config.Width, Height: config.Height, Format: strings.ToUpper(format)}, nil
}

// LoadImageConstrained decodes an image with EXIF orientation applied and
// downscales it when it exceeds maxDimension or maxPixels.
func LoadImageConstrained(path string, maxDimension, maxPixels int) (image.Image, error) {
	info, err := ReadInfo(path)
	if err != nil {
		logging.Debug("Could not read image header of %s: %v, decoding anyway", path, err)
		return openOriented(path)
	}

	width, height := info.Width, info.Height
	if width <= maxDimension && height <= maxDimension && width*height <= maxPixels {
		return openOriented(path)
	}

	targetWidth, targetHeight := constrain(width, height, maxDimension, maxPixels)
	logging.Info("Constraining large image %s from %dx%d to %dx%d", path, width, height, targetWidth, targetHeight)

	img, err := openOriented(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	return imaging.Resize(img, targetWidth, targetHeight, imaging.Lanczos), nil
}

// constrain scales width x height down to fit maxDimension and maxPixels,
// keeping the aspect ratio.
func constrain(width, height, maxDimension, maxPixels int) (int, int) {
	w, h := width, height
	if w > maxDimension || h > maxDimension {
		if w > h {
			h = h * maxDimension / w
			w = maxDimension
		} else {
			w = w * maxDimension / h
			h = maxDimension
		}
	}
	if pixels := w * h; pixels > maxPixels {
		scale := float64(maxPixels) / float64(pixels)
		w = int(float64(w) * scale)
		h = int(float64(h) * scale)
	}
	return max(w, 1), max(h, 1)
}

// ColorMode names the channel layout of img the way the project database
// records it: "L", "RGB" or "RGBA".
func ColorMode(img image.Image) string {
	switch img.ColorModel() {
	case color.GrayModel, color.Gray16Model:
		return "L"
	}
	if o, ok := img.(interface{ Opaque() bool }); ok && !o.Opaque() {
		return "RGBA"
	}
	return "RGB"
}

// openOriented decodes path with its EXIF orientation applied.
func openOriented(path string) (image.Image, error) {
	file, err := filesystem.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = file.Close() }()
	return imaging.Decode(file, imaging.AutoOrientation(true))
}
