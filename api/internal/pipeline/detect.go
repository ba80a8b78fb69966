package pipeline

import (
	"context"
	"errors"
	"time"

	"golang.org/x/time/rate"

	"ui-annotator/api/internal/annotate"
	"ui-annotator/api/internal/logger"
	"ui-annotator/api/internal/metrics"
	"ui-annotator/api/internal/pool"
	"ui-annotator/api/internal/vision"
)

// Entry is one label of the input dictionary.
type Entry struct {
	Label       string
	Description string
}

// DetectInput is the image the detector sees. Width and Height are the
// dimensions of the original screenshot; Payload may be a downscaled copy
// because detector boxes are normalised.
type DetectInput struct {
	Payload []byte
	MIME    string
	Width   int
	Height  int
}

type DetectionStage struct {
	Detector vision.Detector
	Limit    int
	// Limiter paces detector calls across the stage; nil means no pacing.
	Limiter *rate.Limiter
	Metrics *metrics.Metrics
}

func NewDetectionStage(d vision.Detector, limit int, rps float64, m *metrics.Metrics) *DetectionStage {
	s := &DetectionStage{Detector: d, Limit: limit, Metrics: m}
	if rps > 0 {
		s.Limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
	return s
}

// DetectAll resolves every entry to exactly one element, in input order.
// Failures are recorded on the element and never abort the stage.
func (s *DetectionStage) DetectAll(ctx context.Context, in DetectInput, entries []Entry) []annotate.ElementDetectionItem {
	tasks := make([]pool.Task[annotate.ElementDetectionItem], len(entries))
	for i, e := range entries {
		tasks[i] = func(ctx context.Context) (annotate.ElementDetectionItem, error) {
			return s.detectOne(ctx, in, e), nil
		}
	}

	outcomes := pool.Run(ctx, s.Limit, tasks)
	items := make([]annotate.ElementDetectionItem, len(entries))
	for i, o := range outcomes {
		if o.OK() {
			items[i] = o.Value
		} else {
			items[i] = s.failed(entries[i], o.Err)
		}
		s.Metrics.ObserveElement(string(items[i].Status))
	}
	return items
}

func (s *DetectionStage) detectOne(ctx context.Context, in DetectInput, e Entry) annotate.ElementDetectionItem {
	if s.Limiter != nil {
		if err := s.Limiter.Wait(ctx); err != nil {
			return s.failed(e, err)
		}
	}

	item := annotate.ElementDetectionItem{
		Label:       e.Label,
		Description: e.Description,
		ModelName:   s.Detector.ModelName(),
	}
	start := time.Now()
	boxes, err := s.Detector.Detect(ctx, vision.DetectRequest{
		Image:       in.Payload,
		MIME:        in.MIME,
		Label:       e.Label,
		Description: e.Description,
	})
	took := time.Since(start)
	item.InferenceTimeMs = took.Milliseconds()
	s.Metrics.ObserveInference("detect", item.ModelName, took)

	switch {
	case err != nil:
		logger.Warn("detect", "label %q: %v", e.Label, err)
		item.Status = annotate.StatusError
		item.Error = err.Error()
	case len(boxes) == 0:
		item.Status = annotate.StatusNotDetected
	default:
		if len(boxes) > 1 {
			logger.Info("detect", "label %q: %d boxes returned, keeping the first", e.Label, len(boxes))
		}
		b, err := annotate.ScaleAndClamp(boxes[0], in.Width, in.Height)
		if err != nil {
			logger.Warn("detect", "label %q: %v", e.Label, err)
			item.Status = annotate.StatusError
			item.Error = annotate.ErrScaling.Error()
			break
		}
		item.Status = annotate.StatusDetected
		item.BoundingBox = &b
	}
	return item
}

func (s *DetectionStage) failed(e Entry, err error) annotate.ElementDetectionItem {
	var pe *pool.PanicError
	if errors.As(err, &pe) {
		logger.Error("detect", "label %q: %v\n%s", e.Label, pe, pe.Stack)
	}
	model := ""
	if s.Detector != nil {
		model = s.Detector.ModelName()
	}
	return annotate.ElementDetectionItem{
		Label:       e.Label,
		Description: e.Description,
		ModelName:   model,
		Status:      annotate.StatusError,
		Error:       err.Error(),
	}
}
