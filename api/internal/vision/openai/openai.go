package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"ui-annotator/api/internal/logger"
	"ui-annotator/api/internal/util"
	"ui-annotator/api/internal/vision"
)

const defaultEndpoint = "https://api.openai.com/v1/responses"

// Engine talks to the Responses API. It validates and enriches; detection
// stays with engines that return native boxes.
type Engine struct {
	APIKey   string
	Model    string
	Endpoint string
	httpc    *http.Client
}

func New(key, model string) *Engine {
	return &Engine{
		APIKey:   key,
		Model:    model,
		Endpoint: defaultEndpoint,
		// no client timeout: long bodies are bounded by the request context
		httpc: &http.Client{Transport: newTransport()},
	}
}

// newTransport keeps the default dialer and proxy settings but waits longer
// for the first response byte, since review calls think before answering.
func newTransport() *http.Transport {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.ResponseHeaderTimeout = 2 * time.Minute
	tr.MaxIdleConnsPerHost = 16
	return tr
}

// WithHTTPClient overrides the internal HTTP client.
func (e *Engine) WithHTTPClient(c *http.Client) *Engine {
	if c != nil {
		e.httpc = c
	}
	return e
}

func (e *Engine) Name() string      { return "openai" }
func (e *Engine) ModelName() string { return e.Model }

func (e *Engine) Validate(ctx context.Context, in vision.ReviewRequest) (string, error) {
	return e.respond(ctx, "validate", vision.ValidateSystem, in)
}

func (e *Engine) Enrich(ctx context.Context, in vision.ReviewRequest) (string, error) {
	return e.respond(ctx, "enrich", vision.EnrichSystem, in)
}

type inputPart struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
}

type inputMessage struct {
	Type    string      `json:"type,omitempty"`
	Role    string      `json:"role"`
	Content []inputPart `json:"content"`
}

type reviewCall struct {
	Model       string         `json:"model"`
	Input       []inputMessage `json:"input"`
	Temperature float64        `json:"temperature"`
}

// newReviewCall pairs the system prompt with one user turn carrying the
// component brief and its screenshot.
func (e *Engine) newReviewCall(system string, in vision.ReviewRequest, mime string) reviewCall {
	call := reviewCall{
		Model: e.Model,
		Input: []inputMessage{
			{Role: "system", Content: []inputPart{{Type: "input_text", Text: system}}},
			{Type: "message", Role: "user", Content: []inputPart{
				{Type: "input_text", Text: vision.ReviewUser(in)},
				{Type: "input_image", ImageURL: util.MakeDataURL(mime, in.Image)},
			}},
		},
	}
	// gpt-5 models only accept the default temperature
	if strings.Contains(e.Model, "gpt-5") {
		call.Temperature = 1
	}
	return call
}

func (e *Engine) respond(ctx context.Context, op, system string, in vision.ReviewRequest) (string, error) {
	if e.APIKey == "" {
		return "", fmt.Errorf("OPENAI_API_KEY not set")
	}
	mime, ok := reviewMIME(util.PickMIME(in.MIME, "", in.Image))
	if !ok {
		return "", fmt.Errorf("openai %s: unsupported MIME %s (need jpeg, png or webp)", op, mime)
	}

	payload, err := json.Marshal(e.newReviewCall(system, in, mime))
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.APIKey)

	start := time.Now()
	resp, err := e.httpc.Do(req)
	logger.Debug("openai", "%s component %q took %s", op, in.ComponentName, time.Since(start))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("openai %s: read body: %w", op, err)
	}
	var reply responsesReply
	jsonErr := json.Unmarshal(raw, &reply)
	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(util.Truncate(string(raw), 1024))
		if jsonErr == nil && reply.Error != nil && reply.Error.Message != "" {
			msg = reply.Error.Message
		}
		return "", fmt.Errorf("openai %s %d: %s", op, resp.StatusCode, msg)
	}
	if jsonErr != nil {
		return "", fmt.Errorf("openai %s: bad reply: %w", op, jsonErr)
	}
	out := util.StripCodeFences(reply.Text())
	if out == "" {
		return "", fmt.Errorf("openai %s: empty output; body=%s", op, util.Truncate(string(raw), 1024))
	}
	return out, nil
}

type replyPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type responsesReply struct {
	OutputText string `json:"output_text"`
	Output     []struct {
		Content []replyPart `json:"content"`
	} `json:"output"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Text returns output_text when the API filled it, else the text parts of
// every output message joined by newlines. Refusals and tool parts are skipped.
func (r *responsesReply) Text() string {
	if s := strings.TrimSpace(r.OutputText); s != "" {
		return s
	}
	var parts []string
	for _, o := range r.Output {
		for _, p := range o.Content {
			switch p.Type {
			case "output_text", "text", "":
				if t := strings.TrimSpace(p.Text); t != "" {
					parts = append(parts, t)
				}
			}
		}
	}
	return strings.Join(parts, "\n")
}

var reviewMIMEs = map[string]string{
	"image/jpeg": "image/jpeg",
	"image/jpg":  "image/jpeg",
	"image/png":  "image/png",
	"image/webp": "image/webp",
}

// reviewMIME normalises m to a MIME the API accepts as input_image.
func reviewMIME(m string) (string, bool) {
	m = strings.ToLower(strings.TrimSpace(m))
	if canon, ok := reviewMIMEs[m]; ok {
		return canon, true
	}
	return m, false
}
