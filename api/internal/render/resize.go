package render

import (
	"bytes"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// Downscale fits img inside maxSide x maxSide and encodes it as JPEG for model
// payloads. Images already small enough are encoded as they are.
func Downscale(img image.Image, maxSide int) ([]byte, error) {
	b := img.Bounds()
	var out image.Image = img
	if maxSide > 0 && (b.Dx() > maxSide || b.Dy() > maxSide) {
		out = imaging.Fit(img, maxSide, maxSide, imaging.Lanczos)
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, out, imaging.JPEG, imaging.JPEGQuality(90)); err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return buf.Bytes(), nil
}
