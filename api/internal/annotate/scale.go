package annotate

import (
	"fmt"
	"math"
)

// Scale converts a normalized box to pixels with round(v*dim). It does not clamp;
// callers clamp with PixelBox.Clamp.
func Scale(n NormalizedBox, width, height int) (PixelBox, error) {
	if width <= 0 || height <= 0 {
		return PixelBox{}, fmt.Errorf("%w: image %dx%d", ErrScaling, width, height)
	}
	for _, v := range []float64{n.XMin, n.YMin, n.XMax, n.YMax} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return PixelBox{}, fmt.Errorf("%w: non-finite coordinate", ErrScaling)
		}
	}
	return PixelBox{
		XMin: int(math.Round(n.XMin * float64(width))),
		YMin: int(math.Round(n.YMin * float64(height))),
		XMax: int(math.Round(n.XMax * float64(width))),
		YMax: int(math.Round(n.YMax * float64(height))),
	}, nil
}

// ScaleAndClamp scales, clamps to the image and rejects degenerate results.
func ScaleAndClamp(n NormalizedBox, width, height int) (PixelBox, error) {
	b, err := Scale(n, width, height)
	if err != nil {
		return PixelBox{}, err
	}
	b = b.Clamp(width, height)
	if !b.Valid() {
		return PixelBox{}, fmt.Errorf("%w: degenerate box %+v", ErrScaling, b)
	}
	return b, nil
}
