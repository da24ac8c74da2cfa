package media

import (
	"fmt"
	"image"
	"math/bits"

	"github.com/disintegration/imaging"
)

// DHash returns the 64-bit difference hash of img: the image is reduced to
// 9x8 grayscale and each bit records whether a pixel is brighter than its
// right neighbour. Visually similar images have hashes a small Hamming
// distance apart.
func DHash(img image.Image) uint64 {
	small := imaging.Grayscale(imaging.Resize(img, 9, 8, imaging.Box))

	var h uint64
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			left := small.Pix[small.PixOffset(x, y)]
			right := small.Pix[small.PixOffset(x+1, y)]
			h <<= 1
			if left > right {
				h |= 1
			}
		}
	}
	return h
}

// FormatHash renders a hash as 16 lower-case hex digits, the form stored
// in the phash column.
func FormatHash(h uint64) string {
	return fmt.Sprintf("%016x", h)
}

// HammingDistance counts the differing bits of two hashes.
func HammingDistance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}

// HashFile decodes path and returns its formatted dHash.
func HashFile(path string) (string, error) {
	img, err := LoadImageConstrained(path, MaxImageDimension, MaxImagePixels)
	if err != nil {
		return "", fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return FormatHash(DHash(img)), nil
}
