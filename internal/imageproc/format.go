package imageproc

import (
	"bytes"
	"strings"
)

// DetectFormat inspects the raw bytes and returns the image format:
// "jpeg", "png", "gif", "webp", "bmp", "tiff", or "" if unknown.
func DetectFormat(data []byte) string {
	switch {
	// JPEG: starts with FF D8 FF
	case len(data) >= 3 && data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF:
		return "jpeg"
	// PNG: starts with 89 50 4E 47 0D 0A 1A 0A
	case len(data) >= 8 && bytes.Equal(data[:8], []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}):
		return "png"
	// GIF: starts with GIF87a or GIF89a
	case len(data) >= 6 && (bytes.Equal(data[:6], []byte("GIF87a")) || bytes.Equal(data[:6], []byte("GIF89a"))):
		return "gif"
	// WebP: starts with RIFF....WEBP
	case len(data) >= 12 && bytes.Equal(data[:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WEBP")):
		return "webp"
	// BMP: "BM", file size, then four reserved zero bytes; 26 bytes covers
	// the file header plus the smallest DIB header.
	case len(data) >= 26 && data[0] == 'B' && data[1] == 'M' && bytes.Equal(data[6:10], []byte{0, 0, 0, 0}):
		return "bmp"
	case len(data) >= 4 && (bytes.Equal(data[:4], []byte("II*\x00")) || bytes.Equal(data[:4], []byte("MM\x00*"))):
		return "tiff"
	}
	return ""
}

// ContentType maps an image format string to its MIME type.
func ContentType(format string) string {
	switch format {
	case "jpeg", "png", "gif", "webp", "bmp", "tiff":
		return "image/" + format
	default:
		return "application/octet-stream"
	}
}

// IsImageMIME reports whether a declared MIME type names an image.
func IsImageMIME(mime string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(mime)), "image/")
}
