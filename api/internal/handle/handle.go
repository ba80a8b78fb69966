package handle

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"ui-annotator/api/internal/annotate"
	"ui-annotator/api/internal/pipeline"
)

// Pipeline is the coordinator surface the handlers drive.
type Pipeline interface {
	Annotate(ctx context.Context, job pipeline.Job) ([]annotate.ComponentDetectionResult, error)
	Validate(ctx context.Context, comps []annotate.ComponentDetectionResult) []pipeline.MergeOutcome
	Enrich(ctx context.Context, base []byte, comps []annotate.ComponentDetectionResult) []pipeline.MergeOutcome
}

type Repo interface {
	SaveAll(ctx context.Context, comps []annotate.ComponentDetectionResult) error
	FindByScreenshot(ctx context.Context, screenshotID string, withImages bool) ([]annotate.ComponentDetectionResult, error)
	UpdateMerged(ctx context.Context, c *annotate.ComponentDetectionResult) error
}

type Notifier interface {
	AnnotationDone(screenshotID string, comps []annotate.ComponentDetectionResult) error
	ValidationDone(screenshotID string, comps []annotate.ComponentDetectionResult, outcomes []pipeline.MergeOutcome) error
}

type Fetcher interface {
	Fetch(ctx context.Context, path string) ([]byte, error)
}

// Handle serves the JSON API. Repo, Notifier and Fetcher are optional.
type Handle struct {
	pipe     Pipeline
	repo     Repo
	notifier Notifier
	fetcher  Fetcher
}

type Option func(*Handle)

func WithRepo(r Repo) Option         { return func(h *Handle) { h.repo = r } }
func WithNotifier(n Notifier) Option { return func(h *Handle) { h.notifier = n } }
func WithFetcher(f Fetcher) Option   { return func(h *Handle) { h.fetcher = f } }

func New(p Pipeline, opts ...Option) *Handle {
	h := &Handle{pipe: p}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Routes registers every endpoint on mux.
func (h *Handle) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/annotate", h.Annotate)
	mux.HandleFunc("/v1/validate", h.Validate)
	mux.HandleFunc("/v1/enrich", h.Enrich)
	mux.HandleFunc("/v1/components", h.Components)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func stripDataURL(b64 string) string {
	s := strings.TrimSpace(b64)
	if i := strings.Index(s, ","); i != -1 && strings.HasPrefix(strings.ToLower(s[:i]), "data:") {
		return s[i+1:]
	}
	return s
}

// requestContext applies X-Request-Timeout (or ?timeoutSec) in seconds, default 180s.
func requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	deadline := 180 * time.Second
	if ts := r.Header.Get("X-Request-Timeout"); ts != "" {
		if v, _ := strconv.Atoi(ts); v > 0 {
			deadline = time.Duration(v) * time.Second
		}
	} else if ts := r.URL.Query().Get("timeoutSec"); ts != "" {
		if v, _ := strconv.Atoi(ts); v > 0 {
			deadline = time.Duration(v) * time.Second
		}
	}
	return context.WithTimeout(r.Context(), deadline)
}
