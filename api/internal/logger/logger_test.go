package logger

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLogger_FiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(WARN, &buf)

	l.Info("pipeline", "hidden %d", 1)
	l.Warn("pipeline", "shown %d", 2)
	l.Error("", "bare")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "[WARN] [pipeline] shown 2")
	assert.Contains(t, out, "[ERROR] bare")
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]Level{"debug": DEBUG, "INFO": INFO, "": INFO, "warning": WARN, "Error": ERROR, "none": SILENT} {
		got, err := ParseLevel(in)
		assert.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseLevel("loud")
	assert.Error(t, err)
}
