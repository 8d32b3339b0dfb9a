package imageproc

import (
	"bytes"
	"errors"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

// ErrUnsupportedFormat is returned when the input bytes are not a
// recognized raster image.
var ErrUnsupportedFormat = errors.New("unsupported or unrecognized image format")

// Envelope bounds the output of Normalize.
type Envelope struct {
	MaxWidth  int
	MaxHeight int
	Quality   int
}

// DefaultEnvelope is the 1920x1080 WebP q85 envelope used for uploads.
var DefaultEnvelope = Envelope{MaxWidth: 1920, MaxHeight: 1080, Quality: 85}

// Encoder writes an image as WebP.
type Encoder interface {
	EncodeWebP(img image.Image, quality int) ([]byte, error)
}

// Result is a normalized image.
type Result struct {
	Data   []byte
	Width  int
	Height int
	// SourceFormat is the sniffed format of the input.
	SourceFormat string
}

// Normalizer re-encodes arbitrary raster input into the upload envelope.
type Normalizer struct {
	env Envelope
	enc Encoder
}

// NewNormalizer returns a Normalizer. Zero envelope fields fall back to
// DefaultEnvelope, a nil encoder to DefaultEncoder().
func NewNormalizer(env Envelope, enc Encoder) *Normalizer {
	if env.MaxWidth <= 0 {
		env.MaxWidth = DefaultEnvelope.MaxWidth
	}
	if env.MaxHeight <= 0 {
		env.MaxHeight = DefaultEnvelope.MaxHeight
	}
	if env.Quality <= 0 || env.Quality > 100 {
		env.Quality = DefaultEnvelope.Quality
	}
	if enc == nil {
		enc = DefaultEncoder()
	}
	return &Normalizer{env: env, enc: enc}
}

// Envelope returns the effective envelope.
func (n *Normalizer) Envelope() Envelope {
	return n.env
}

// Normalize sniffs the format from content, decodes, shrinks the image to
// fit inside the envelope (never enlarging) and encodes it as WebP.
// Unknown formats return ErrUnsupportedFormat; decode and encode faults are
// returned wrapped.
func (n *Normalizer) Normalize(data []byte) (*Result, error) {
	format := DetectFormat(data)
	if format == "" {
		return nil, ErrUnsupportedFormat
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if errors.Is(err, image.ErrFormat) {
		return nil, ErrUnsupportedFormat
	}
	if err != nil {
		return nil, fmt.Errorf("decoding %s image: %w", format, err)
	}

	img = fitInside(img, n.env.MaxWidth, n.env.MaxHeight)

	out, err := n.enc.EncodeWebP(img, n.env.Quality)
	if err != nil {
		return nil, fmt.Errorf("encoding webp: %w", err)
	}

	b := img.Bounds()
	return &Result{Data: out, Width: b.Dx(), Height: b.Dy(), SourceFormat: format}, nil
}

// FitInside returns the dimensions of a w x h image scaled to fit inside
// maxW x maxH with its aspect ratio preserved. Images that already fit are
// returned unchanged.
func FitInside(w, h, maxW, maxH int) (int, int) {
	if w <= 0 || h <= 0 || (w <= maxW && h <= maxH) {
		return w, h
	}
	scale := min(float64(maxW)/float64(w), float64(maxH)/float64(h))
	nw := int(float64(w)*scale + 0.5)
	nh := int(float64(h)*scale + 0.5)
	return max(1, min(nw, maxW)), max(1, min(nh, maxH))
}

// fitInside only shrinks, never enlarges.
func fitInside(img image.Image, maxW, maxH int) image.Image {
	b := img.Bounds()
	w, h := FitInside(b.Dx(), b.Dy(), maxW, maxH)
	if w == b.Dx() && h == b.Dy() {
		return img
	}
	return imaging.Resize(img, w, h, imaging.Lanczos)
}
