package ingest

import (
	"net/http"
	"strings"

	"github.com/leca/studio-images/internal/imageproc"
)

const (
	// ServerMaxBytes is the local server's multipart ceiling (30 MiB).
	ServerMaxBytes int64 = 30 << 20
	// CloudinaryMaxBytes is the third-party transcode API ceiling (10 MiB).
	CloudinaryMaxBytes int64 = 10 << 20
)

// ValidateFile checks a file's declared type and size against limit.
func ValidateFile(mime string, size, limit int64) error {
	if !imageproc.IsImageMIME(mime) {
		return &ValidationError{Kind: InvalidFileType, MIME: mime, Size: size, Limit: limit}
	}
	if size > limit {
		return &ValidationError{Kind: FileTooLarge, MIME: mime, Size: size, Limit: limit}
	}
	return nil
}

// SniffMIME derives a MIME type from content, never from the filename.
func SniffMIME(data []byte) string {
	if f := imageproc.DetectFormat(data); f != "" {
		return imageproc.ContentType(f)
	}
	mime := http.DetectContentType(data)
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = mime[:i]
	}
	return mime
}
