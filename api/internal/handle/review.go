package handle

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"ui-annotator/api/internal/annotate"
	"ui-annotator/api/internal/logger"
	"ui-annotator/api/internal/pipeline"
)

type ReviewRequest struct {
	ScreenshotID string `json:"screenshot_id"`
	// ImageB64 or StoragePath give the unannotated screenshot for enrichment;
	// without them the stored original is used.
	ImageB64    string `json:"image_b64,omitempty"`
	StoragePath string `json:"storage_path,omitempty"`
}

func (h *Handle) Validate(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, true, func(ctx context.Context, _ ReviewRequest, comps []annotate.ComponentDetectionResult) ([]pipeline.MergeOutcome, int, string) {
		return h.pipe.Validate(ctx, comps), 0, ""
	})
}

func (h *Handle) Enrich(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, false, func(ctx context.Context, req ReviewRequest, comps []annotate.ComponentDetectionResult) ([]pipeline.MergeOutcome, int, string) {
		var base []byte
		if req.ImageB64 != "" || req.StoragePath != "" {
			img, code, msg := h.loadImage(ctx, req.ImageB64, req.StoragePath)
			if code != 0 {
				return nil, code, msg
			}
			base = img
		} else {
			for _, c := range comps {
				if len(c.OriginalImage) > 0 {
					base = c.OriginalImage
					break
				}
			}
		}
		if len(base) == 0 {
			return nil, http.StatusBadRequest, "no original image stored; send image_b64 or storage_path"
		}
		return h.pipe.Enrich(ctx, base, comps), 0, ""
	})
}

type reviewFunc func(ctx context.Context, req ReviewRequest, comps []annotate.ComponentDetectionResult) ([]pipeline.MergeOutcome, int, string)

// review loads the stored components, runs one merge stage and writes back
// the components whose merge succeeded. notify sends the validation summary.
func (h *Handle) review(w http.ResponseWriter, r *http.Request, notify bool, run reviewFunc) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST only")
		return
	}
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "store is not configured")
		return
	}
	var req ReviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad json: "+err.Error())
		return
	}
	if strings.TrimSpace(req.ScreenshotID) == "" {
		writeError(w, http.StatusBadRequest, "screenshot_id is required")
		return
	}

	ctx, cancel := requestContext(r)
	defer cancel()

	comps, err := h.repo.FindByScreenshot(ctx, req.ScreenshotID, true)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "store error: "+err.Error())
		return
	}
	if len(comps) == 0 {
		writeError(w, http.StatusNotFound, "no components for screenshot")
		return
	}

	outcomes, code, msg := run(ctx, req, comps)
	if code != 0 {
		writeError(w, code, msg)
		return
	}

	var saveErrs []error
	for i, o := range outcomes {
		if o.Err != nil {
			continue
		}
		if err := h.repo.UpdateMerged(ctx, &comps[i]); err != nil {
			saveErrs = append(saveErrs, err)
		}
	}
	if err := errors.Join(saveErrs...); err != nil {
		writeError(w, http.StatusInternalServerError, "store error: "+err.Error())
		return
	}
	if notify && h.notifier != nil {
		if err := h.notifier.ValidationDone(req.ScreenshotID, comps, outcomes); err != nil {
			logger.Warn("handle", "notify %s: %v", req.ScreenshotID, err)
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"screenshot_id": req.ScreenshotID,
		"outcomes":      outcomes,
		"components":    annotate.WithoutImages(comps),
	})
}

func (h *Handle) Components(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "GET only")
		return
	}
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "store is not configured")
		return
	}
	id := strings.TrimSpace(r.URL.Query().Get("screenshot_id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "screenshot_id is required")
		return
	}
	withImages := r.URL.Query().Get("images") == "1"
	comps, err := h.repo.FindByScreenshot(r.Context(), id, withImages)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "store error: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"screenshot_id": id, "components": comps})
}
