package annotate

import (
	"errors"
	"strings"
	"time"
)

var (
	ErrDecode     = errors.New("image decode failed")
	ErrDetection  = errors.New("detection failed")
	ErrScaling    = errors.New("coordinate scaling failed")
	ErrComposite  = errors.New("composite failed")
	ErrMergeParse = errors.New("merge payload malformed")
)

type ElementStatus string

const (
	StatusDetected    ElementStatus = "Detected"
	StatusNotDetected ElementStatus = "NotDetected"
	StatusError       ElementStatus = "Error"
	StatusOverwrite   ElementStatus = "Overwrite"
)

// ParseElementStatus is lenient about case and spacing; anything unknown is Error.
func ParseElementStatus(s string) ElementStatus {
	k := strings.ToLower(strings.NewReplacer(" ", "", "_", "", "-", "").Replace(strings.TrimSpace(s)))
	switch k {
	case "detected":
		return StatusDetected
	case "notdetected":
		return StatusNotDetected
	case "overwrite":
		return StatusOverwrite
	default:
		return StatusError
	}
}

// HasBox reports whether an element in this status must carry a bounding box.
func (s ElementStatus) HasBox() bool {
	return s == StatusDetected || s == StatusOverwrite
}

type ComponentStatus string

const (
	ComponentSuccess ComponentStatus = "success"
	ComponentPartial ComponentStatus = "partial"
	ComponentFailed  ComponentStatus = "failed"
)

// NormalizedBox holds detector coordinates in [0,1].
type NormalizedBox struct {
	XMin float64 `json:"x_min"`
	YMin float64 `json:"y_min"`
	XMax float64 `json:"x_max"`
	YMax float64 `json:"y_max"`
}

// PixelBox is an absolute box; (XMin,YMin) inclusive, (XMax,YMax) exclusive.
type PixelBox struct {
	XMin int `json:"x_min"`
	YMin int `json:"y_min"`
	XMax int `json:"x_max"`
	YMax int `json:"y_max"`
}

func (b PixelBox) Width() int  { return b.XMax - b.XMin }
func (b PixelBox) Height() int { return b.YMax - b.YMin }

func (b PixelBox) Area() int {
	if b.Width() <= 0 || b.Height() <= 0 {
		return 0
	}
	return b.Width() * b.Height()
}

// Valid reports a box with positive width and height.
func (b PixelBox) Valid() bool { return b.Width() > 0 && b.Height() > 0 }

// Clamp limits the box to [0,w]x[0,h].
func (b PixelBox) Clamp(w, h int) PixelBox {
	return PixelBox{
		XMin: clampInt(b.XMin, 0, w),
		YMin: clampInt(b.YMin, 0, h),
		XMax: clampInt(b.XMax, 0, w),
		YMax: clampInt(b.YMax, 0, h),
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ElementDetectionItem is one label's record. Detection fills the first block,
// the accuracy merge the second, the metadata merge MetadataBlob.
type ElementDetectionItem struct {
	Label           string        `json:"label"`
	Description     string        `json:"description"`
	BoundingBox     *PixelBox     `json:"bounding_box"`
	Status          ElementStatus `json:"status"`
	ModelName       string        `json:"model_name"`
	InferenceTimeMs int64         `json:"inference_time_ms"`
	Error           string        `json:"error,omitempty"`

	AccuracyScore *float64  `json:"accuracy_score,omitempty"`
	SuggestedBox  *PixelBox `json:"suggested_box,omitempty"`
	Hidden        *bool     `json:"hidden,omitempty"`
	Explanation   string    `json:"explanation,omitempty"`

	// MetadataBlob stays nil until enrichment matched this label.
	MetadataBlob *string `json:"metadata_blob,omitempty"`
}

type ComponentMetadata struct {
	PatternName    string   `json:"patternName,omitempty"`
	FacetTags      []string `json:"facetTags,omitempty"`
	States         []string `json:"states,omitempty"`
	Interaction    string   `json:"interaction,omitempty"`
	UserFlowImpact string   `json:"userFlowImpact,omitempty"`
}

type ComponentDetectionResult struct {
	ID                   string                 `json:"id"`
	ScreenshotID         string                 `json:"screenshot_id"`
	ComponentName        string                 `json:"component_name"`
	AnnotatedImage       []byte                 `json:"annotated_image,omitempty"`
	OriginalImage        []byte                 `json:"original_image,omitempty"`
	Description          string                 `json:"description"`
	Status               ComponentStatus        `json:"status"`
	TotalInferenceTimeMs int64                  `json:"total_inference_time_ms"`
	Elements             []ElementDetectionItem `json:"elements"`
	Metadata             *ComponentMetadata     `json:"metadata,omitempty"`
	CreatedAt            time.Time              `json:"created_at"`
}

// DetectedBoxes returns the pixel boxes of elements that carry one.
func (c *ComponentDetectionResult) DetectedBoxes() []PixelBox {
	out := make([]PixelBox, 0, len(c.Elements))
	for _, el := range c.Elements {
		if el.Status == StatusDetected && el.BoundingBox != nil {
			out = append(out, *el.BoundingBox)
		}
	}
	return out
}

// WithoutImages returns shallow copies of comps with both image buffers cleared.
func WithoutImages(comps []ComponentDetectionResult) []ComponentDetectionResult {
	out := make([]ComponentDetectionResult, len(comps))
	for i, c := range comps {
		c.AnnotatedImage, c.OriginalImage = nil, nil
		out[i] = c
	}
	return out
}
