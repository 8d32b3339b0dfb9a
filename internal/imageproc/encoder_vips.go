//go:build vips

package imageproc

import (
	"bytes"
	"image"
	"image/png"

	"github.com/disintegration/imaging"
	"github.com/h2non/bimg"
)

// VipsEncoder encodes WebP through libvips. Build with -tags vips.
type VipsEncoder struct{}

// EncodeWebP implements Encoder. The image is handed to libvips as a
// lossless PNG so the only lossy step is the final WebP encode.
func (VipsEncoder) EncodeWebP(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG, imaging.PNGCompressionLevel(png.BestSpeed)); err != nil {
		return nil, err
	}
	return bimg.NewImage(buf.Bytes()).Process(bimg.Options{
		Type:          bimg.WEBP,
		Quality:       quality,
		StripMetadata: true,
	})
}

// DefaultEncoder returns the encoder compiled into this build.
func DefaultEncoder() Encoder {
	return VipsEncoder{}
}
