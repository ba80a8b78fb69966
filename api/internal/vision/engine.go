package vision

import (
	"context"
	"fmt"
	"strings"

	"ui-annotator/api/internal/annotate"
)

// Detector locates one described element on a screenshot. An empty slice means
// the element is not on the image.
type Detector interface {
	Name() string
	ModelName() string
	Detect(ctx context.Context, in DetectRequest) ([]annotate.NormalizedBox, error)
}

// Validator judges the boxes drawn on an annotated component image and returns
// the raw model reply; parsing belongs to the merge stage.
type Validator interface {
	Name() string
	Validate(ctx context.Context, in ReviewRequest) (string, error)
}

// Enricher describes a component and its elements; the raw reply is returned.
type Enricher interface {
	Name() string
	Enrich(ctx context.Context, in ReviewRequest) (string, error)
}

type DetectRequest struct {
	Image       []byte
	MIME        string
	Label       string
	Description string
}

// ElementBrief is what a reviewer model gets to see about one element.
type ElementBrief struct {
	Label       string                 `json:"label"`
	Description string                 `json:"description"`
	Status      annotate.ElementStatus `json:"status"`
	BoundingBox *annotate.PixelBox     `json:"bounding_box,omitempty"`
}

type ReviewRequest struct {
	ComponentName string
	Description   string
	Image         []byte
	MIME          string
	Width         int
	Height        int
	Elements      []ElementBrief
}

// Briefs converts a component's elements for a reviewer request.
func Briefs(elements []annotate.ElementDetectionItem) []ElementBrief {
	out := make([]ElementBrief, 0, len(elements))
	for _, el := range elements {
		out = append(out, ElementBrief{
			Label:       el.Label,
			Description: el.Description,
			Status:      el.Status,
			BoundingBox: el.BoundingBox,
		})
	}
	return out
}

// Engine is a backend that can do all three jobs.
type Engine interface {
	Detector
	Validator
	Enricher
}

// Reviewer is a backend that can validate and enrich but not detect.
type Reviewer interface {
	Validator
	Enricher
}

type Engines struct {
	Gemini Engine
	OpenAI Reviewer
}

func (e *Engines) GetDetector(name string) (Detector, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "gemini", "google":
		if e.Gemini == nil {
			return nil, fmt.Errorf("detector %q is not configured", name)
		}
		return e.Gemini, nil
	default:
		return nil, fmt.Errorf("unknown detector %q; use 'gemini'", name)
	}
}

func (e *Engines) GetValidator(name string) (Validator, error) {
	r, err := e.reviewer(name)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (e *Engines) GetEnricher(name string) (Enricher, error) {
	r, err := e.reviewer(name)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (e *Engines) reviewer(name string) (Reviewer, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "gemini", "google":
		if e.Gemini == nil {
			return nil, fmt.Errorf("engine %q is not configured", name)
		}
		return e.Gemini, nil
	case "openai", "gpt":
		if e.OpenAI == nil {
			return nil, fmt.Errorf("engine %q is not configured", name)
		}
		return e.OpenAI, nil
	default:
		return nil, fmt.Errorf("unknown engine %q; use 'gemini' or 'openai'", name)
	}
}
