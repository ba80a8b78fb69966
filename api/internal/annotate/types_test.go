package annotate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWithoutImages(t *testing.T) {
	comps := []ComponentDetectionResult{{ComponentName: "Header", AnnotatedImage: []byte{1}, OriginalImage: []byte{2}}}
	out := WithoutImages(comps)
	assert.Nil(t, out[0].AnnotatedImage)
	assert.Nil(t, out[0].OriginalImage)
	assert.Equal(t, "Header", out[0].ComponentName)
	assert.Equal(t, []byte{1}, comps[0].AnnotatedImage, "input is not modified")
}

func TestDetectedBoxes(t *testing.T) {
	c := ComponentDetectionResult{Elements: []ElementDetectionItem{
		{Status: StatusDetected, BoundingBox: &PixelBox{1, 2, 3, 4}},
		{Status: StatusNotDetected},
		{Status: StatusOverwrite, BoundingBox: &PixelBox{5, 6, 7, 8}},
	}}
	assert.Equal(t, []PixelBox{{1, 2, 3, 4}}, c.DetectedBoxes())
}
