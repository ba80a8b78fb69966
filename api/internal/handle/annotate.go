package handle

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"ui-annotator/api/internal/logger"
	"ui-annotator/api/internal/pipeline"
)

type AnnotateRequest struct {
	ScreenshotID string            `json:"screenshot_id"`
	ImageB64     string            `json:"image_b64"`
	StoragePath  string            `json:"storage_path"`
	Labels       map[string]string `json:"labels"`
}

func (h *Handle) Annotate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST only")
		return
	}
	var req AnnotateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad json: "+err.Error())
		return
	}
	if len(req.Labels) == 0 {
		writeError(w, http.StatusBadRequest, "labels are required")
		return
	}
	if strings.TrimSpace(req.ScreenshotID) == "" {
		req.ScreenshotID = uuid.NewString()
	}

	ctx, cancel := requestContext(r)
	defer cancel()

	img, code, msg := h.loadImage(ctx, req.ImageB64, req.StoragePath)
	if code != 0 {
		writeError(w, code, msg)
		return
	}

	comps, err := h.pipe.Annotate(ctx, pipeline.Job{ScreenshotID: req.ScreenshotID, Image: img, Labels: req.Labels})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "annotate error: "+err.Error())
		return
	}
	if h.repo != nil && len(comps) > 0 {
		if err := h.repo.SaveAll(ctx, comps); err != nil {
			writeError(w, http.StatusInternalServerError, "store error: "+err.Error())
			return
		}
	}
	if h.notifier != nil && len(comps) > 0 {
		if err := h.notifier.AnnotationDone(req.ScreenshotID, comps); err != nil {
			logger.Warn("handle", "notify %s: %v", req.ScreenshotID, err)
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"screenshot_id": req.ScreenshotID,
		"components":    comps,
	})
}

// loadImage returns a non-zero status code with a message on failure.
func (h *Handle) loadImage(ctx context.Context, b64, path string) ([]byte, int, string) {
	if s := stripDataURL(b64); s != "" {
		img, err := base64.StdEncoding.DecodeString(s)
		if err != nil || len(img) == 0 {
			return nil, http.StatusBadRequest, "bad image_b64"
		}
		return img, 0, ""
	}
	if strings.TrimSpace(path) == "" {
		return nil, http.StatusBadRequest, "image_b64 or storage_path is required"
	}
	if h.fetcher == nil {
		return nil, http.StatusServiceUnavailable, "storage is not configured"
	}
	img, err := h.fetcher.Fetch(ctx, path)
	if err != nil {
		return nil, http.StatusBadGateway, "fetch error: " + err.Error()
	}
	return img, 0, ""
}
