package notify

import (
	"errors"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ui-annotator/api/internal/annotate"
	"ui-annotator/api/internal/pipeline"
)

type recorder struct {
	sent []tgbotapi.Chattable
	fail bool
}

func (r *recorder) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if r.fail {
		return tgbotapi.Message{}, errors.New("network down")
	}
	r.sent = append(r.sent, c)
	return tgbotapi.Message{}, nil
}

func components() []annotate.ComponentDetectionResult {
	acc := 90.0
	return []annotate.ComponentDetectionResult{
		{
			ComponentName:  "Footer",
			Status:         annotate.ComponentFailed,
			Elements:       []annotate.ElementDetectionItem{{Label: "Footer > Button", Status: annotate.StatusError}},
			AnnotatedImage: nil,
		},
		{
			ComponentName:        "Cart_Item 1",
			Status:               annotate.ComponentSuccess,
			TotalInferenceTimeMs: 420,
			Elements: []annotate.ElementDetectionItem{
				{Label: "Cart_Item 1 > Price", Status: annotate.StatusDetected, AccuracyScore: &acc},
			},
			AnnotatedImage: []byte{0x89, 'P', 'N', 'G'},
		},
	}
}

func TestAnnotationDone(t *testing.T) {
	rec := &recorder{}
	n := &Telegram{Bot: rec, ChatID: 42}

	require.NoError(t, n.AnnotationDone("shot_1", components()))
	require.Len(t, rec.sent, 2, "summary plus one photo")

	msg, ok := rec.sent[0].(tgbotapi.MessageConfig)
	require.True(t, ok)
	assert.Equal(t, int64(42), msg.ChatID)
	assert.Equal(t, "Markdown", msg.ParseMode)
	assert.Contains(t, msg.Text, "shot\\_1")
	assert.Contains(t, msg.Text, "Footer: 0/1 detected, 1 errors")
	assert.Contains(t, msg.Text, "Cart\\_Item 1: 1/1 detected, 0 errors, 420ms")

	photo, ok := rec.sent[1].(tgbotapi.PhotoConfig)
	require.True(t, ok)
	assert.Equal(t, "Cart_Item 1", photo.Caption)
	fb, ok := photo.File.(tgbotapi.FileBytes)
	require.True(t, ok)
	assert.Equal(t, "Cart_Item_1.png", fb.Name)
}

func TestValidationDone(t *testing.T) {
	rec := &recorder{}
	n := &Telegram{Bot: rec, ChatID: 1}
	outcomes := []pipeline.MergeOutcome{
		{ComponentName: "Footer", Err: annotate.ErrMergeParse},
		{ComponentName: "Cart_Item 1"},
	}
	require.NoError(t, n.ValidationDone("s", components(), outcomes))
	msg := rec.sent[0].(tgbotapi.MessageConfig)
	assert.Contains(t, msg.Text, "Footer: no scores")
	assert.Contains(t, msg.Text, "mean 90.0 ± 0.0 over 1")
	assert.Contains(t, msg.Text, "unchanged: Footer")
}

func TestSendError(t *testing.T) {
	n := &Telegram{Bot: &recorder{fail: true}}
	assert.ErrorContains(t, n.AnnotationDone("s", nil), "network down")
}
