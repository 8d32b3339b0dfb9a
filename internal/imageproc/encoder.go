//go:build !vips

package imageproc

import (
	"bytes"
	"image"

	"github.com/gen2brain/webp"
)

// WebPEncoder encodes lossy WebP without cgo.
type WebPEncoder struct{}

// EncodeWebP implements Encoder.
func (WebPEncoder) EncodeWebP(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := webp.Encode(&buf, img, webp.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DefaultEncoder returns the encoder compiled into this build.
func DefaultEncoder() Encoder {
	return WebPEncoder{}
}
