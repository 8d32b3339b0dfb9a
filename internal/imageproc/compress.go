package imageproc

import (
	"bytes"
	"fmt"
	"image"
	"math"

	"github.com/disintegration/imaging"
)

const (
	// DefaultCompressQuality is the first rung of the quality ladder.
	DefaultCompressQuality = 0.8

	compressTargetRatio = 0.8 // absorbs re-encoding overhead
	minCompressedSide   = 300
	qualityFloor        = 30 // percent
	qualityStep         = 10 // percent
	shrinkFactor        = 0.8
	maxCompressAttempts = 10
)

// CompressStats describes what CompressIfNeeded did.
type CompressStats struct {
	InputBytes  int
	OutputBytes int
	Width       int
	Height      int
	Quality     int
	Attempts    int
}

// CompressIfNeeded shrinks an image until it fits in maxBytes. Input that
// already fits is returned unchanged.
//
// The first resize uses a linear ratio of sqrt(0.8*maxBytes/len(data)),
// keeping the smaller side at 300px or more. JPEG quality then steps down
// from quality to 0.3; when the ladder bottoms out the dimensions shrink by
// 0.8 and the ladder restarts. At most 10 encodes are attempted. The result
// is the first encode that fits, otherwise the smallest one produced, and
// is never larger than the input.
func CompressIfNeeded(data []byte, maxBytes int64, quality float64) ([]byte, error) {
	out, _, err := Compress(data, maxBytes, quality)
	return out, err
}

// Compress is CompressIfNeeded that also reports what was done.
func Compress(data []byte, maxBytes int64, quality float64) ([]byte, CompressStats, error) {
	stats := CompressStats{InputBytes: len(data), OutputBytes: len(data)}
	if int64(len(data)) <= maxBytes {
		return data, stats, nil
	}
	if maxBytes <= 0 {
		return nil, stats, fmt.Errorf("invalid size limit %d", maxBytes)
	}
	if quality <= 0 || quality > 1 {
		quality = DefaultCompressQuality
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, stats, fmt.Errorf("decoding image: %w", err)
	}
	b := img.Bounds()
	stats.Width, stats.Height = b.Dx(), b.Dy()

	target := float64(maxBytes) * compressTargetRatio
	w, h := scaleDims(b.Dx(), b.Dy(), math.Sqrt(target/float64(len(data))))

	best := data
	startQ := max(qualityFloor, int(math.Round(quality*100)))
	for stats.Attempts < maxCompressAttempts {
		resized := imaging.Resize(img, w, h, imaging.Lanczos)
		for q := startQ; q >= qualityFloor && stats.Attempts < maxCompressAttempts; q -= qualityStep {
			out, err := encodeJPEG(resized, q)
			stats.Attempts++
			if err != nil {
				return nil, stats, fmt.Errorf("encoding jpeg at quality %d: %w", q, err)
			}
			if len(out) < len(best) {
				best = out
				stats.OutputBytes, stats.Width, stats.Height, stats.Quality = len(out), w, h, q
			}
			if int64(len(out)) <= maxBytes {
				return out, stats, nil
			}
		}

		nw, nh := scaleDims(w, h, shrinkFactor)
		if nw == w && nh == h {
			break
		}
		w, h = nw, nh
	}
	return best, stats, nil
}

// scaleDims applies a linear scale, keeping the smaller side at or above
// minCompressedSide unless the image was already smaller than that.
func scaleDims(w, h int, scale float64) (int, int) {
	if scale >= 1 {
		return w, h
	}
	short := min(w, h)
	floor := min(short, minCompressedSide)
	if float64(short)*scale < float64(floor) {
		scale = float64(floor) / float64(short)
	}
	return max(1, int(math.Round(float64(w)*scale))), max(1, int(math.Round(float64(h)*scale)))
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
