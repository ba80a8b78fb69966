package render

import (
	"hash/fnv"
	"image/color"

	"github.com/lucasb-eyer/go-colorful"
)

// Palette hands out a stable border colour per category. A fixed colour, when
// set, wins for every category.
type Palette struct {
	fixed *color.RGBA
}

// NewPalette parses hex ("#RRGGBB"); an empty or invalid value leaves the
// palette in per-category mode.
func NewPalette(hex string) *Palette {
	p := &Palette{}
	if hex == "" {
		return p
	}
	if c, err := colorful.Hex(hex); err == nil {
		rgba := toRGBA(c)
		p.fixed = &rgba
	}
	return p
}

// For derives a saturated colour from the category name.
func (p *Palette) For(category string) color.RGBA {
	if p != nil && p.fixed != nil {
		return *p.fixed
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(category))
	hue := float64(h.Sum32() % 360)
	return toRGBA(colorful.Hsv(hue, 0.85, 0.95))
}

func toRGBA(c colorful.Color) color.RGBA {
	r, g, b := c.Clamped().RGB255()
	return color.RGBA{R: r, G: g, B: b, A: 255}
}
