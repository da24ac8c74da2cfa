package media

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ImageExtensions lists the file extensions the importer accepts. Every
// entry can be decoded by the registered image codecs.
var ImageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".bmp":  true,
	".webp": true,
	".tiff": true,
	".tif":  true,
}

// IsImage reports whether path has a supported image extension.
func IsImage(path string) bool {
	return ImageExtensions[strings.ToLower(filepath.Ext(path))]
}

// DetectFormat sniffs the container format of a file from its first bytes.
// It returns "unknown" for anything it does not recognize.
func DetectFormat(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	header := make([]byte, 12)
	n, err := io.ReadFull(file, header)
	if err != nil && err != io.ErrUnexpectedEOF {
		return "", err
	}
	return sniff(header[:n]), nil
}

func sniff(header []byte) string {
	switch {
	case bytes.HasPrefix(header, []byte{0xFF, 0xD8, 0xFF}):
		return "jpeg"
	case bytes.HasPrefix(header, []byte{0x89, 'P', 'N', 'G'}):
		return "png"
	case bytes.HasPrefix(header, []byte("GIF8")):
		return "gif"
	case len(header) >= 12 && bytes.HasPrefix(header, []byte("RIFF")) && string(header[8:12]) == "WEBP":
		return "webp"
	case bytes.HasPrefix(header, []byte("BM")):
		return "bmp"
	case bytes.HasPrefix(header, []byte{'I', 'I', 0x2A, 0x00}), bytes.HasPrefix(header, []byte{'M', 'M', 0x00, 0x2A}):
		return "tiff"
	}
	return "unknown"
}
