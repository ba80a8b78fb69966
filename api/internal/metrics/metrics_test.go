package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()
	m.ObserveElement("Detected")
	m.ObserveElement("Detected")
	m.ObserveElement("Error")
	m.ObserveComponent("partial")
	m.ObserveMerge("accuracy", "malformed")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.elements.WithLabelValues("Detected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.elements.WithLabelValues("Error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.components.WithLabelValues("partial")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.merges.WithLabelValues("accuracy", "malformed")))
}

func TestRunStarted(t *testing.T) {
	m := New()
	done := m.RunStarted()
	assert.Equal(t, int64(1), m.InFlight.Load())
	done()
	assert.Equal(t, int64(0), m.InFlight.Load())
	assert.Equal(t, uint64(1), m.RunsFinished.Load())
}

func TestNilSafe(t *testing.T) {
	var m *Metrics
	m.ObserveElement("Detected")
	m.ObserveInference("detect", "x", time.Second)
	m.ObserveStage("detect", time.Second)
	m.RunStarted()()
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObserveInference("detect", "gemini-2.5-flash", 700*time.Millisecond)
	m.ObserveStage("detect", 2*time.Second)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `annotator_inference_seconds_count{model="gemini-2.5-flash",op="detect"} 1`)
	assert.Contains(t, string(body), "annotator_runs_in_flight 0")
	assert.Contains(t, string(body), `annotator_stage_seconds_count{stage="detect"} 1`)
}
