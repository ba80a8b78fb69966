package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/google/uuid"

	"ui-annotator/api/internal/annotate"
	"ui-annotator/api/internal/logger"
	"ui-annotator/api/internal/merge"
	"ui-annotator/api/internal/metrics"
	"ui-annotator/api/internal/pool"
	"ui-annotator/api/internal/render"
	"ui-annotator/api/internal/vision"
)

// Job is one screenshot with its flat label -> description dictionary.
type Job struct {
	ScreenshotID string
	Image        []byte
	Labels       map[string]string
}

// MergeOutcome reports one component's validation or enrichment.
type MergeOutcome struct {
	ComponentName string
	Report        merge.MergeReport
	Err           error
}

func (o MergeOutcome) MarshalJSON() ([]byte, error) {
	v := struct {
		Component string   `json:"component"`
		Matched   int      `json:"matched"`
		Unmatched []string `json:"unmatched,omitempty"`
		Error     string   `json:"error,omitempty"`
	}{Component: o.ComponentName, Matched: o.Report.Matched, Unmatched: o.Report.Unmatched}
	if o.Err != nil {
		v.Error = o.Err.Error()
	}
	return json.Marshal(v)
}

type Coordinator struct {
	Detection  *DetectionStage
	Validator  vision.Validator
	Enricher   vision.Enricher
	Compositor *render.Compositor
	Palette    *render.Palette
	Metrics    *metrics.Metrics

	ValidateLimit int
	EnrichLimit   int
	// MaxSide bounds the longer side of images sent to models; 0 keeps them as is.
	MaxSide int
	// Timeout bounds each Annotate, Validate and Enrich call; 0 means none.
	Timeout time.Duration
	// KeepOriginal stores the decoded screenshot bytes on the first component
	// only; readers look for the one component that carries them.
	KeepOriginal bool

	now func() time.Time
}

func (c *Coordinator) withDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.Timeout > 0 {
		return context.WithTimeout(ctx, c.Timeout)
	}
	return context.WithCancel(ctx)
}

func (c *Coordinator) clock() time.Time {
	if c.now != nil {
		return c.now()
	}
	return time.Now().UTC()
}

// Annotate runs decode, grouping, detection and rendering for one screenshot.
// An undecodable image yields an empty result and a nil error.
func (c *Coordinator) Annotate(ctx context.Context, job Job) ([]annotate.ComponentDetectionResult, error) {
	if c.Detection == nil {
		return nil, errors.New("pipeline: no detection stage")
	}
	ctx, cancel := c.withDeadline(ctx)
	defer cancel()
	defer c.Metrics.RunStarted()()

	shot, err := render.Decode(job.Image)
	if err != nil {
		logger.Warn("pipeline", "screenshot %s abandoned: %v", job.ScreenshotID, err)
		return []annotate.ComponentDetectionResult{}, nil
	}
	if len(job.Labels) == 0 {
		return []annotate.ComponentDetectionResult{}, nil
	}

	labels := annotate.SortedLabels(job.Labels)
	entries := make([]Entry, len(labels))
	for i, l := range labels {
		entries[i] = Entry{Label: l, Description: job.Labels[l]}
	}

	start := time.Now()
	items := c.Detection.DetectAll(ctx, c.detectInput(shot), entries)
	c.Metrics.ObserveStage("detect", time.Since(start))

	assign := annotate.Group(labels)
	byCategory := map[string][]annotate.ElementDetectionItem{}
	for _, it := range items {
		cat := assign[it.Label]
		byCategory[cat] = append(byCategory[cat], it)
	}

	created := c.clock()
	categories := annotate.Categories(assign)
	comps := make([]annotate.ComponentDetectionResult, len(categories))
	for i, cat := range categories {
		els := byCategory[cat]
		comps[i] = annotate.ComponentDetectionResult{
			ID:                   uuid.NewString(),
			ScreenshotID:         job.ScreenshotID,
			ComponentName:        cat,
			Status:               annotate.DeriveStatus(els),
			TotalInferenceTimeMs: annotate.TotalInferenceTime(els),
			Elements:             els,
			CreatedAt:            created,
		}
		if c.KeepOriginal && i == 0 {
			comps[i].OriginalImage = shot.Bytes
		}
		c.Metrics.ObserveComponent(string(comps[i].Status))
	}

	start = time.Now()
	c.renderAll(ctx, shot, comps)
	c.Metrics.ObserveStage("render", time.Since(start))

	logger.Info("pipeline", "screenshot %s: %d labels in %d components", job.ScreenshotID, len(labels), len(comps))
	return comps, nil
}

func (c *Coordinator) detectInput(shot *render.Screenshot) DetectInput {
	in := DetectInput{Payload: shot.Bytes, MIME: shot.MIME, Width: shot.Width(), Height: shot.Height()}
	if c.MaxSide <= 0 {
		return in
	}
	payload, err := render.Downscale(shot.Image, c.MaxSide)
	if err != nil {
		logger.Warn("pipeline", "payload downscale failed, sending original: %v", err)
		return in
	}
	in.Payload, in.MIME = payload, "image/jpeg"
	return in
}

func (c *Coordinator) renderAll(ctx context.Context, shot *render.Screenshot, comps []annotate.ComponentDetectionResult) {
	compositor := c.Compositor
	if compositor == nil {
		compositor = render.NewCompositor(render.DefaultBorderWidth)
	}
	tasks := make([]pool.Task[[]byte], len(comps))
	for i := range comps {
		comp := &comps[i]
		tasks[i] = func(context.Context) ([]byte, error) {
			return compositor.Render(shot.Image, comp.DetectedBoxes(), c.Palette.For(comp.ComponentName), comp.ComponentName), nil
		}
	}
	// rendering ignores the run deadline
	for i, o := range pool.Run(context.WithoutCancel(ctx), runtime.NumCPU(), tasks) {
		if o.Err != nil {
			logger.Error("render", "component %q: %v", comps[i].ComponentName, o.Err)
			continue
		}
		comps[i].AnnotatedImage = o.Value
	}
}

// Validate sends every component's annotated image to the validator and merges
// the verdicts into its elements. Components without an annotated image are
// skipped with an error outcome.
func (c *Coordinator) Validate(ctx context.Context, comps []annotate.ComponentDetectionResult) []MergeOutcome {
	if c.Validator == nil {
		return failAll(comps, errors.New("pipeline: no validator configured"))
	}
	ctx, cancel := c.withDeadline(ctx)
	defer cancel()

	tasks := make([]pool.Task[merge.MergeReport], len(comps))
	for i := range comps {
		comp := &comps[i]
		tasks[i] = func(ctx context.Context) (merge.MergeReport, error) {
			if len(comp.AnnotatedImage) == 0 {
				return merge.MergeReport{}, fmt.Errorf("component %q has no annotated image", comp.ComponentName)
			}
			shot, err := render.Decode(comp.AnnotatedImage)
			if err != nil {
				return merge.MergeReport{}, err
			}
			req := c.reviewRequest(comp, shot)
			start := time.Now()
			raw, err := c.Validator.Validate(ctx, req)
			c.Metrics.ObserveInference("validate", c.Validator.Name(), time.Since(start))
			if err != nil {
				return merge.MergeReport{}, err
			}
			return merge.MergeAccuracy(comp.Elements, raw)
		}
	}

	start := time.Now()
	out := c.collect("accuracy", comps, pool.Run(ctx, c.ValidateLimit, tasks))
	c.Metrics.ObserveStage("validate", time.Since(start))
	return out
}

// Enrich sends the unannotated screenshot with each component's element list to
// the enricher and merges the reply.
func (c *Coordinator) Enrich(ctx context.Context, base []byte, comps []annotate.ComponentDetectionResult) []MergeOutcome {
	if c.Enricher == nil {
		return failAll(comps, errors.New("pipeline: no enricher configured"))
	}
	shot, err := render.Decode(base)
	if err != nil {
		return failAll(comps, err)
	}
	ctx, cancel := c.withDeadline(ctx)
	defer cancel()

	tasks := make([]pool.Task[merge.MergeReport], len(comps))
	for i := range comps {
		comp := &comps[i]
		tasks[i] = func(ctx context.Context) (merge.MergeReport, error) {
			req := c.reviewRequest(comp, shot)
			start := time.Now()
			raw, err := c.Enricher.Enrich(ctx, req)
			c.Metrics.ObserveInference("enrich", c.Enricher.Name(), time.Since(start))
			if err != nil {
				return merge.MergeReport{}, err
			}
			return merge.MergeMetadata(comp, raw)
		}
	}

	start := time.Now()
	out := c.collect("metadata", comps, pool.Run(ctx, c.EnrichLimit, tasks))
	c.Metrics.ObserveStage("enrich", time.Since(start))
	return out
}

func (c *Coordinator) reviewRequest(comp *annotate.ComponentDetectionResult, shot *render.Screenshot) vision.ReviewRequest {
	req := vision.ReviewRequest{
		ComponentName: comp.ComponentName,
		Description:   comp.Description,
		Image:         shot.Bytes,
		MIME:          shot.MIME,
		Width:         shot.Width(),
		Height:        shot.Height(),
		Elements:      vision.Briefs(comp.Elements),
	}
	if c.MaxSide > 0 {
		if payload, err := render.Downscale(shot.Image, c.MaxSide); err == nil {
			req.Image, req.MIME = payload, "image/jpeg"
		}
	}
	return req
}

func (c *Coordinator) collect(kind string, comps []annotate.ComponentDetectionResult, outcomes []pool.Outcome[merge.MergeReport]) []MergeOutcome {
	out := make([]MergeOutcome, len(outcomes))
	for i, o := range outcomes {
		out[i] = MergeOutcome{ComponentName: comps[i].ComponentName, Report: o.Value, Err: o.Err}
		switch {
		case o.Err == nil:
			c.Metrics.ObserveMerge(kind, "ok")
		case errors.Is(o.Err, annotate.ErrMergeParse):
			logger.Warn("pipeline", "%s merge for %q left unchanged: %v", kind, comps[i].ComponentName, o.Err)
			c.Metrics.ObserveMerge(kind, "malformed")
		default:
			logger.Warn("pipeline", "%s for %q failed: %v", kind, comps[i].ComponentName, o.Err)
			c.Metrics.ObserveMerge(kind, "failed")
		}
	}
	return out
}

func failAll(comps []annotate.ComponentDetectionResult, err error) []MergeOutcome {
	out := make([]MergeOutcome, len(comps))
	for i := range comps {
		out[i] = MergeOutcome{ComponentName: comps[i].ComponentName, Err: err}
	}
	return out
}
