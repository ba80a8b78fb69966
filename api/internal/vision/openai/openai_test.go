package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ui-annotator/api/internal/vision"
)

var pngMagic = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0, 0, 0, 0}

func replyText(t *testing.T, raw string) string {
	t.Helper()
	var r responsesReply
	require.NoError(t, json.Unmarshal([]byte(raw), &r))
	return r.Text()
}

func TestResponsesReply_Text(t *testing.T) {
	assert.Equal(t, "[1]", replyText(t, `{"output_text":" [1] "}`))
	assert.Equal(t, "a\nb", replyText(t, `{"output":[{"content":[{"type":"output_text","text":"a"},{"type":"refusal","text":"x"}]},{"content":[{"type":"text","text":"b"}]}]}`))
	assert.Equal(t, "", replyText(t, `{"output":[]}`))
}

func TestReviewMIME(t *testing.T) {
	m, ok := reviewMIME(" Image/JPG ")
	assert.True(t, ok)
	assert.Equal(t, "image/jpeg", m)

	_, ok = reviewMIME("image/gif")
	assert.False(t, ok)
}

func TestRespond_APIErrorMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limit reached"}}`))
	}))
	defer srv.Close()

	e := New("sk-test", "gpt-5-mini")
	e.Endpoint = srv.URL
	_, err := e.Validate(context.Background(), vision.ReviewRequest{Image: pngMagic})
	assert.ErrorContains(t, err, "openai validate 429: rate limit reached")
}

func TestNewReviewCall_Temperature(t *testing.T) {
	assert.Equal(t, 1.0, New("k", "gpt-5-mini").newReviewCall("sys", vision.ReviewRequest{}, "image/png").Temperature)
	call := New("k", "gpt-4.1-mini").newReviewCall("sys", vision.ReviewRequest{Image: []byte{1}}, "image/png")
	assert.Zero(t, call.Temperature)
	require.Len(t, call.Input, 2)
	assert.Equal(t, "data:image/png;base64,AQ==", call.Input[1].Content[1].ImageURL)
}

func TestValidate_RoundTrip(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		b, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(b, &got))
		_, _ = w.Write([]byte(`{"output":[{"content":[{"type":"output_text","text":"` + "```json\\n[]\\n```" + `"}]}]}`))
	}))
	defer srv.Close()

	e := New("sk-test", "gpt-4.1-mini")
	e.Endpoint = srv.URL
	e.WithHTTPClient(srv.Client())

	out, err := e.Validate(context.Background(), vision.ReviewRequest{
		ComponentName: "Header",
		Image:         pngMagic,
		Elements:      []vision.ElementBrief{{Label: "Header > Logo"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "[]", out)
	assert.Equal(t, "gpt-4.1-mini", got["model"])
}

func TestValidate_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	e := New("sk-test", "gpt-4.1-mini")
	e.Endpoint = srv.URL

	_, err := e.Enrich(context.Background(), vision.ReviewRequest{Image: pngMagic})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")

	_, err = e.Enrich(context.Background(), vision.ReviewRequest{Image: []byte("plain text")})
	assert.ErrorContains(t, err, "unsupported MIME")

	_, err = New("", "m").Validate(context.Background(), vision.ReviewRequest{})
	assert.ErrorContains(t, err, "OPENAI_API_KEY")
}
