package media

import (
	"bytes"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRendererFitsBoundingBox(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	tests := []struct {
		name          string
		width, height int
		wantW, wantH  int
	}{
		{"landscape", 800, 400, 128, 64},
		{"portrait", 300, 600, 64, 128},
		{"smaller than box", 50, 40, 50, 40},
	}

	r := NewRenderer(128)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			path := filepath.Join(dir, tt.name+".png")
			createTestImage(t, path, tt.width, tt.height, "png")

			thumb, err := r.Render(path, false)
			require.NoError(t, err)
			assert.Equal(t, tt.wantW, thumb.Width)
			assert.Equal(t, tt.wantH, thumb.Height)

			decoded, err := jpeg.Decode(bytes.NewReader(thumb.Data))
			require.NoError(t, err)
			assert.Equal(t, tt.wantW, decoded.Bounds().Dx())
		})
	}
}

func TestRendererErrors(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	r := NewRenderer(64)

	_, err := r.Render(filepath.Join(dir, "missing.jpg"), true)
	assert.Error(t, err)

	corrupt := filepath.Join(dir, "corrupt.jpg")
	require.NoError(t, os.WriteFile(corrupt, []byte{0xFF, 0xD8, 0xFF, 0x00}, 0o644))
	_, err = r.Render(corrupt, false)
	assert.Error(t, err)
}

func TestNewRendererDefaultSize(t *testing.T) {
	t.Parallel()
	assert.Equal(t, DefaultThumbnailSize, NewRenderer(0).Size())
}

func TestCreateRendition(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	src := filepath.Join(dir, "src.jpg")
	createTestImage(t, src, 1024, 768, "jpeg")

	dst := filepath.Join(dir, "image_dataset", "512", "2024", "01", "src_512"+RenditionExt)
	r, err := CreateRendition(src, dst, 512)
	require.NoError(t, err)
	assert.Equal(t, Rendition{Width: 512, Height: 384, Mode: "RGB"}, r)

	info, err := ReadInfo(dst)
	require.NoError(t, err)
	assert.Equal(t, "PNG", info.Format)
	assert.Equal(t, 512, info.Width)

	// Small images keep their size.
	small := filepath.Join(dir, "small.png")
	createTestImage(t, small, 200, 100, "png")
	r, err = CreateRendition(small, filepath.Join(dir, "small_512.png"), 512)
	require.NoError(t, err)
	assert.Equal(t, 200, r.Width)

	_, err = CreateRendition(src, filepath.Join(dir, "x.png"), 0)
	assert.Error(t, err)
}

func TestDetectFormat(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	tests := []struct {
		name   string
		header []byte
		want   string
	}{
		{"jpeg", []byte{0xFF, 0xD8, 0xFF, 0xE0}, "jpeg"},
		{"png", []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A}, "png"},
		{"gif", []byte("GIF89a"), "gif"},
		{"webp", []byte("RIFF\x00\x00\x00\x00WEBPVP8 "), "webp"},
		{"bmp", []byte("BM\x00\x00"), "bmp"},
		{"tiff", []byte{'I', 'I', 0x2A, 0x00}, "tiff"},
		{"short", []byte{0x00}, "unknown"},
		{"text", []byte("hello world!"), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			path := filepath.Join(dir, tt.name)
			require.NoError(t, os.WriteFile(path, tt.header, 0o644))
			got, err := DetectFormat(path)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIsImage(t *testing.T) {
	t.Parallel()

	for _, p := range []string{"a.jpg", "b.JPEG", "c.png", "d.webp", "e.tif"} {
		assert.True(t, IsImage(p), p)
	}
	for _, p := range []string{"a.txt", "b.caption", "c", "d.mp4", "e.svg"} {
		assert.False(t, IsImage(p), p)
	}
}
