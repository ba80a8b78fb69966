package render

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"sort"

	"github.com/anthonynsimon/bild/clone"
	"github.com/anthonynsimon/bild/imgio"

	"ui-annotator/api/internal/annotate"
	"ui-annotator/api/internal/logger"
)

const (
	DefaultBorderWidth = 2
	defaultVeilAlpha   = 96
)

// Compositor draws border-only boxes over a dimmed copy of the screenshot.
type Compositor struct {
	BorderWidth int
	// Veil is the semi-transparent colour laid over everything outside the boxes.
	Veil color.RGBA
}

func NewCompositor(borderWidth int) *Compositor {
	if borderWidth <= 0 {
		borderWidth = DefaultBorderWidth
	}
	return &Compositor{
		BorderWidth: borderWidth,
		Veil:        color.RGBA{0, 0, 0, defaultVeilAlpha},
	}
}

// Render returns the PNG of base with boxes drawn in border, or nil when
// anything goes wrong. name is only used for logging.
func (c *Compositor) Render(base image.Image, boxes []annotate.PixelBox, border color.Color, name string) (out []byte) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("render", "component %q: %v: %v", name, annotate.ErrComposite, r)
			out = nil
		}
	}()
	img, err := c.Composite(base, boxes, border)
	if err != nil {
		logger.Error("render", "component %q: %v", name, err)
		return nil
	}
	var buf bytes.Buffer
	if err := imgio.PNGEncoder()(&buf, img); err != nil {
		logger.Error("render", "component %q: %v: encode: %v", name, annotate.ErrComposite, err)
		return nil
	}
	return buf.Bytes()
}

// Composite builds the annotated image in memory.
func (c *Compositor) Composite(base image.Image, boxes []annotate.PixelBox, border color.Color) (*image.RGBA, error) {
	if base == nil {
		return nil, fmt.Errorf("%w: nil base image", annotate.ErrComposite)
	}
	bounds := base.Bounds()
	if bounds.Empty() {
		return nil, fmt.Errorf("%w: empty base image", annotate.ErrComposite)
	}

	overlay := image.NewRGBA(bounds)
	draw.Draw(overlay, bounds, &image.Uniform{C: c.Veil}, image.Point{}, draw.Src)

	// larger boxes first so clearing an interior never erases a smaller box's border
	sorted := append([]annotate.PixelBox(nil), boxes...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Area() > sorted[j].Area() })

	stroke := &image.Uniform{C: border}
	for _, b := range sorted {
		r := image.Rect(b.XMin, b.YMin, b.XMax, b.YMax).Add(bounds.Min).Intersect(bounds)
		if r.Empty() {
			continue
		}
		c.drawBorder(overlay, r, stroke)
		inner := r.Inset(c.BorderWidth)
		if !inner.Empty() {
			draw.Draw(overlay, inner, image.Transparent, image.Point{}, draw.Src)
		}
	}

	dst := clone.AsRGBA(base)
	draw.Draw(dst, dst.Bounds(), overlay, bounds.Min, draw.Over)
	return dst, nil
}

func (c *Compositor) drawBorder(dst *image.RGBA, r image.Rectangle, stroke image.Image) {
	w := c.BorderWidth
	edges := []image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+w), // top
		image.Rect(r.Min.X, r.Max.Y-w, r.Max.X, r.Max.Y), // bottom
		image.Rect(r.Min.X, r.Min.Y, r.Min.X+w, r.Max.Y), // left
		image.Rect(r.Max.X-w, r.Min.Y, r.Max.X, r.Max.Y), // right
	}
	for _, e := range edges {
		draw.Draw(dst, e.Intersect(r), stroke, image.Point{}, draw.Src)
	}
}
