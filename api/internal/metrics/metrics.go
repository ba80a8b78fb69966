package metrics

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the pipeline collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Run tracking
	RunsStarted  atomic.Uint64
	RunsFinished atomic.Uint64
	InFlight     atomic.Int64

	elements   *prometheus.CounterVec
	components *prometheus.CounterVec
	merges     *prometheus.CounterVec
	inference  *prometheus.HistogramVec
	stage      *prometheus.HistogramVec

	registry *prometheus.Registry
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		elements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "annotator_elements_total",
			Help: "Detected elements by status",
		}, []string{"status"}),
		components: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "annotator_components_total",
			Help: "Component results by status",
		}, []string{"status"}),
		merges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "annotator_merges_total",
			Help: "Merge attempts by kind and result",
		}, []string{"kind", "result"}),
		inference: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "annotator_inference_seconds",
			Help:    "Model call latency",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 8),
		}, []string{"op", "model"}),
		stage: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "annotator_stage_seconds",
			Help:    "Wall time of a pipeline stage",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 9),
		}, []string{"stage"}),
	}
	m.registry.MustRegister(m.elements, m.components, m.merges, m.inference, m.stage)

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "annotator_runs_started_total",
			Help: "Annotation runs started",
		},
		func() float64 { return float64(m.RunsStarted.Load()) },
	))
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "annotator_runs_finished_total",
			Help: "Annotation runs finished",
		},
		func() float64 { return float64(m.RunsFinished.Load()) },
	))
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "annotator_runs_in_flight",
			Help: "Annotation runs currently executing",
		},
		func() float64 { return float64(m.InFlight.Load()) },
	))
	return m
}

// RunStarted marks a run as begun and returns the func that ends it.
func (m *Metrics) RunStarted() func() {
	if m == nil {
		return func() {}
	}
	m.RunsStarted.Add(1)
	m.InFlight.Add(1)
	return func() {
		m.InFlight.Add(-1)
		m.RunsFinished.Add(1)
	}
}

func (m *Metrics) ObserveElement(status string) {
	if m == nil {
		return
	}
	m.elements.WithLabelValues(status).Inc()
}

func (m *Metrics) ObserveComponent(status string) {
	if m == nil {
		return
	}
	m.components.WithLabelValues(status).Inc()
}

// ObserveMerge counts a merge; kind is accuracy|metadata, result ok|malformed|failed.
func (m *Metrics) ObserveMerge(kind, result string) {
	if m == nil {
		return
	}
	m.merges.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) ObserveInference(op, model string, d time.Duration) {
	if m == nil {
		return
	}
	m.inference.WithLabelValues(op, model).Observe(d.Seconds())
}

func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stage.WithLabelValues(stage).Observe(d.Seconds())
}

// Handler returns the Prometheus HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
