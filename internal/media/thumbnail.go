package media

import (
	"bytes"
	"fmt"
	"path/filepath"
	"time"

	"lorairo/internal/filesystem"
	"lorairo/internal/logging"
	"lorairo/internal/metrics"

	"github.com/disintegration/imaging"
)

// DefaultThumbnailSize is the bounding box of a thumbnail when none is
// configured.
const DefaultThumbnailSize = 256

// ThumbnailContentType is the MIME type of rendered thumbnails.
const ThumbnailContentType = "image/jpeg"

// Thumbnail is an encoded JPEG thumbnail.
type Thumbnail struct {
	Data   []byte
	Width  int
	Height int
}

// Renderer renders JPEG thumbnails that fit a square bounding box.
type Renderer struct {
	size    int
	quality int
}

// NewRenderer returns a Renderer for size x size thumbnails.
func NewRenderer(size int) *Renderer {
	if size <= 0 {
		size = DefaultThumbnailSize
	}
	return &Renderer{size: size, quality: 80}
}

// Size returns the bounding box edge.
func (r *Renderer) Size() int {
	return r.size
}

// Render decodes the image at path and returns its thumbnail. processed
// only labels the render metrics: it says whether path is a processed
// rendition or the original.
func (r *Renderer) Render(path string, processed bool) (Thumbnail, error) {
	start := time.Now()
	source := "original"
	if processed {
		source = "processed"
	}

	thumb, err := r.render(path)
	if err != nil {
		metrics.ThumbnailRenderErrors.Inc()
		return Thumbnail{}, err
	}
	metrics.ThumbnailRenderDuration.WithLabelValues(source).Observe(time.Since(start).Seconds())
	return thumb, nil
}

func (r *Renderer) render(path string) (Thumbnail, error) {
	if _, err := filesystem.Stat(path); err != nil {
		return Thumbnail{}, fmt.Errorf("file not accessible: %w", err)
	}

	img, err := LoadImageConstrained(path, MaxImageDimension, MaxImagePixels)
	if err != nil {
		if format, sniffErr := DetectFormat(path); sniffErr == nil {
			logging.Debug("Decode of %s failed, detected format %s", path, format)
		}
		return Thumbnail{}, fmt.Errorf("thumbnail generation failed for %s: %w", filepath.Base(path), err)
	}

	thumb := imaging.Fit(img, r.size, r.size, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.JPEG, imaging.JPEGQuality(r.quality)); err != nil {
		return Thumbnail{}, fmt.Errorf("failed to encode thumbnail: %w", err)
	}

	b := thumb.Bounds()
	return Thumbnail{Data: buf.Bytes(), Width: b.Dx(), Height: b.Dy()}, nil
}
