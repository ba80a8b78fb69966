package vision

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ui-annotator/api/internal/annotate"
)

type fakeEngine struct{ name string }

func (f fakeEngine) Name() string      { return f.name }
func (f fakeEngine) ModelName() string { return "fake-1" }
func (f fakeEngine) Detect(context.Context, DetectRequest) ([]annotate.NormalizedBox, error) {
	return nil, nil
}
func (f fakeEngine) Validate(context.Context, ReviewRequest) (string, error) { return "[]", nil }
func (f fakeEngine) Enrich(context.Context, ReviewRequest) (string, error)   { return "{}", nil }

func TestEngines(t *testing.T) {
	e := &Engines{Gemini: fakeEngine{"gemini"}, OpenAI: fakeEngine{"openai"}}

	d, err := e.GetDetector(" Gemini ")
	require.NoError(t, err)
	assert.Equal(t, "gemini", d.Name())

	_, err = e.GetDetector("openai")
	assert.Error(t, err)

	v, err := e.GetValidator("gpt")
	require.NoError(t, err)
	assert.Equal(t, "openai", v.Name())

	en, err := e.GetEnricher("gemini")
	require.NoError(t, err)
	assert.Equal(t, "gemini", en.Name())

	_, err = (&Engines{}).GetEnricher("openai")
	assert.ErrorContains(t, err, "not configured")

	_, err = e.GetValidator("claude")
	assert.ErrorContains(t, err, "unknown engine")
}

func TestReviewUser(t *testing.T) {
	box := &annotate.PixelBox{XMin: 1, YMin: 2, XMax: 3, YMax: 4}
	els := []annotate.ElementDetectionItem{
		{Label: "Header > Logo", Description: "brand mark", Status: annotate.StatusDetected, BoundingBox: box},
		{Label: "Header > Nav", Status: annotate.StatusNotDetected},
	}
	s := ReviewUser(ReviewRequest{ComponentName: "Header", Width: 800, Height: 600, Elements: Briefs(els)})

	assert.True(t, strings.HasPrefix(s, "INPUT_JSON:\n"))
	assert.Contains(t, s, `"component":"Header"`)
	assert.Contains(t, s, `"bounding_box":{"x_min":1,"y_min":2,"x_max":3,"y_max":4}`)
	assert.Contains(t, s, `"width":800`)
	assert.Contains(t, DetectUser("Header > Logo", "brand mark"), "brand mark")
}
