package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"ui-annotator/api/internal/annotate"
	"ui-annotator/api/internal/logger"
	"ui-annotator/api/internal/util"
	"ui-annotator/api/internal/vision"
)

const maxAttempts = 3

type Engine struct {
	APIKey string
	Model  string
}

func New(apiKey, model string) *Engine {
	return &Engine{
		APIKey: strings.TrimSpace(apiKey),
		Model:  strings.TrimSpace(model),
	}
}

func (e *Engine) Name() string      { return "gemini" }
func (e *Engine) ModelName() string { return e.Model }

// Detect asks for every occurrence of one element and converts box_2d
// ([ymin,xmin,ymax,xmax] on 0-1000) to normalised boxes.
func (e *Engine) Detect(ctx context.Context, in vision.DetectRequest) ([]annotate.NormalizedBox, error) {
	txt, err := e.generate(ctx, "detect", vision.DetectSystem,
		genai.Text(vision.DetectUser(in.Label, in.Description)),
		&genai.Blob{MIMEType: util.PickMIME(in.MIME, "", in.Image), Data: in.Image},
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", annotate.ErrDetection, err)
	}
	boxes, err := parseBoxes(txt)
	if err != nil {
		return nil, fmt.Errorf("%w: gemini detect: %v", annotate.ErrDetection, err)
	}
	return boxes, nil
}

func (e *Engine) Validate(ctx context.Context, in vision.ReviewRequest) (string, error) {
	return e.generate(ctx, "validate", vision.ValidateSystem,
		genai.Text(vision.ReviewUser(in)),
		&genai.Blob{MIMEType: util.PickMIME(in.MIME, "", in.Image), Data: in.Image},
	)
}

func (e *Engine) Enrich(ctx context.Context, in vision.ReviewRequest) (string, error) {
	return e.generate(ctx, "enrich", vision.EnrichSystem,
		genai.Text(vision.ReviewUser(in)),
		&genai.Blob{MIMEType: util.PickMIME(in.MIME, "", in.Image), Data: in.Image},
	)
}

// generate opens a client per call, requests JSON output and retries
// transient failures with a growing pause.
func (e *Engine) generate(ctx context.Context, op, system string, parts ...genai.Part) (string, error) {
	if e.APIKey == "" {
		return "", errors.New("GEMINI_API_KEY is empty")
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(e.APIKey))
	if err != nil {
		return "", err
	}
	defer cl.Close()

	m := cl.GenerativeModel(e.Model)
	if m == nil {
		return "", fmt.Errorf("gemini: model is nil")
	}
	m.GenerationConfig = genai.GenerationConfig{
		Temperature:      ptrFloat32(0),
		ResponseMIMEType: "application/json",
	}
	m.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		resp, err := m.GenerateContent(ctx, parts...)
		if err != nil {
			lastErr = err
			logger.Debug("gemini", "%s attempt %d: %v", op, attempt, err)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(time.Duration(attempt) * 300 * time.Millisecond):
			}
			continue
		}
		txt := util.StripCodeFences(strings.TrimSpace(firstText(resp)))
		if txt == "" {
			return "", fmt.Errorf("gemini %s: empty response", op)
		}
		return txt, nil
	}
	return "", fmt.Errorf("gemini %s: %w", op, lastErr)
}

type box2D struct {
	Box   []float64 `json:"box_2d"`
	Label string    `json:"label,omitempty"`
}

// parseBoxes reads {"boxes":[...]}, a bare array of box_2d objects or a single
// {"box_2d":[...]} object. Any other object is an error so that failure replies
// are not mistaken for "nothing found". Entries without four coordinates are
// skipped.
func parseBoxes(txt string) ([]annotate.NormalizedBox, error) {
	raw := []byte(util.ExtractJSON(txt))

	var items []box2D
	if err := json.Unmarshal(raw, &items); err != nil {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, fmt.Errorf("bad JSON: %w", err)
		}
		if boxes, ok := obj["boxes"]; ok {
			if err := json.Unmarshal(boxes, &items); err != nil {
				return nil, fmt.Errorf("bad boxes: %w", err)
			}
		} else if _, ok := obj["box_2d"]; ok {
			var one box2D
			if err := json.Unmarshal(raw, &one); err != nil {
				return nil, fmt.Errorf("bad box_2d: %w", err)
			}
			items = []box2D{one}
		} else {
			return nil, fmt.Errorf("bad JSON: no boxes in %s", util.Truncate(string(raw), 200))
		}
	}

	out := make([]annotate.NormalizedBox, 0, len(items))
	for _, it := range items {
		if len(it.Box) != 4 {
			continue
		}
		ymin, xmin, ymax, xmax := it.Box[0], it.Box[1], it.Box[2], it.Box[3]
		out = append(out, annotate.NormalizedBox{
			XMin: xmin / 1000,
			YMin: ymin / 1000,
			XMax: xmax / 1000,
			YMax: ymax / 1000,
		})
	}
	return out, nil
}

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	for _, c := range resp.Candidates {
		if c.Content == nil {
			continue
		}
		for _, p := range c.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				return string(t)
			}
		}
	}
	return ""
}

func ptrFloat32(v float32) *float32 { return &v }
