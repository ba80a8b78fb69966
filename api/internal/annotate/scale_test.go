package annotate

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScale_FullImage(t *testing.T) {
	b, err := Scale(NormalizedBox{0, 0, 1, 1}, 800, 600)
	require.NoError(t, err)
	assert.Equal(t, PixelBox{0, 0, 800, 600}, b)
}

func TestScale_Rounds(t *testing.T) {
	b, err := Scale(NormalizedBox{0.1234, 0.5, 0.4996, 0.75}, 1000, 3)
	require.NoError(t, err)
	assert.Equal(t, PixelBox{123, 2, 500, 2}, b)
}

func TestScale_NoClamp(t *testing.T) {
	b, err := Scale(NormalizedBox{-0.1, -0.1, 1.2, 1.5}, 100, 100)
	require.NoError(t, err)
	assert.Equal(t, PixelBox{-10, -10, 120, 150}, b)
	assert.Equal(t, PixelBox{0, 0, 100, 100}, b.Clamp(100, 100))
}

func TestScale_InvalidInput(t *testing.T) {
	tests := []struct {
		name string
		box  NormalizedBox
		w, h int
	}{
		{"nan", NormalizedBox{math.NaN(), 0, 1, 1}, 10, 10},
		{"inf", NormalizedBox{0, 0, math.Inf(1), 1}, 10, 10},
		{"zero width image", NormalizedBox{0, 0, 1, 1}, 0, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Scale(tt.box, tt.w, tt.h)
			assert.True(t, errors.Is(err, ErrScaling))
		})
	}
}

func TestScaleAndClamp_Degenerate(t *testing.T) {
	_, err := ScaleAndClamp(NormalizedBox{1.1, 0.2, 1.3, 0.4}, 100, 100)
	assert.ErrorIs(t, err, ErrScaling)

	_, err = ScaleAndClamp(NormalizedBox{0.5, 0.5, 0.5, 0.9}, 100, 100)
	assert.ErrorIs(t, err, ErrScaling)

	b, err := ScaleAndClamp(NormalizedBox{0.9, 0.9, 1.2, 1.2}, 100, 100)
	require.NoError(t, err)
	assert.Equal(t, PixelBox{90, 90, 100, 100}, b)
}

func TestDeriveStatus(t *testing.T) {
	el := func(s ElementStatus) ElementDetectionItem { return ElementDetectionItem{Status: s} }
	tests := []struct {
		name string
		in   []ElementDetectionItem
		want ComponentStatus
	}{
		{"all detected", []ElementDetectionItem{el(StatusDetected), el(StatusDetected)}, ComponentSuccess},
		{"detected and missing", []ElementDetectionItem{el(StatusDetected), el(StatusNotDetected)}, ComponentSuccess},
		{"detected and error", []ElementDetectionItem{el(StatusDetected), el(StatusError)}, ComponentPartial},
		{"all missing", []ElementDetectionItem{el(StatusNotDetected)}, ComponentFailed},
		{"all error", []ElementDetectionItem{el(StatusError)}, ComponentFailed},
		{"empty", nil, ComponentFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveStatus(tt.in))
		})
	}
}

func TestParseElementStatus(t *testing.T) {
	assert.Equal(t, StatusDetected, ParseElementStatus("detected"))
	assert.Equal(t, StatusNotDetected, ParseElementStatus("Not Detected"))
	assert.Equal(t, StatusNotDetected, ParseElementStatus("not_detected"))
	assert.Equal(t, StatusOverwrite, ParseElementStatus("OVERWRITE"))
	assert.Equal(t, StatusError, ParseElementStatus(""))
	assert.Equal(t, StatusError, ParseElementStatus("maybe"))
}
