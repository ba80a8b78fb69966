package merge

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"ui-annotator/api/internal/annotate"
	"ui-annotator/api/internal/logger"
	"ui-annotator/api/internal/util"
)

// ValidationEntry is one judged element from the accuracy validator. Nil
// pointers mean the validator left the field out.
type ValidationEntry struct {
	Label        string
	Accuracy     *float64
	Hidden       *bool
	SuggestedBox *annotate.PixelBox
	Status       *string
	Explanation  string
}

type rawValidation struct {
	Label       string          `json:"label"`
	Accuracy    json.RawMessage `json:"accuracy"`
	Hidden      json.RawMessage `json:"hidden"`
	Suggested   json.RawMessage `json:"suggested_coordinates"`
	Status      *string         `json:"status"`
	Explanation string          `json:"explanation"`
}

// MergeReport describes what a merge touched.
type MergeReport struct {
	Matched   int
	Unmatched []string
}

// ParseValidation reads the validator reply. Anything that is not a JSON array
// (after fences and surrounding prose are dropped) is annotate.ErrMergeParse.
// Individual entries that cannot be read, or carry no label, are skipped.
func ParseValidation(raw string) ([]ValidationEntry, error) {
	var items []json.RawMessage
	if err := json.Unmarshal([]byte(util.ExtractJSON(raw)), &items); err != nil {
		return nil, fmt.Errorf("%w: validation payload is not an array: %v", annotate.ErrMergeParse, err)
	}
	out := make([]ValidationEntry, 0, len(items))
	for i, it := range items {
		var rv rawValidation
		if err := json.Unmarshal(it, &rv); err != nil {
			logger.Warn("merge", "validation entry %d skipped: %v", i, err)
			continue
		}
		label := strings.TrimSpace(rv.Label)
		if label == "" {
			logger.Warn("merge", "validation entry %d has no label", i)
			continue
		}
		out = append(out, ValidationEntry{
			Label:        label,
			Accuracy:     looseFloat(rv.Accuracy),
			Hidden:       looseBool(rv.Hidden),
			SuggestedBox: looseBox(rv.Suggested),
			Status:       rv.Status,
			Explanation:  rv.Explanation,
		})
	}
	return out, nil
}

// MergeAccuracy parses raw and applies it. On a parse error the elements are
// left exactly as they were.
func MergeAccuracy(elements []annotate.ElementDetectionItem, raw string) (MergeReport, error) {
	entries, err := ParseValidation(raw)
	if err != nil {
		return MergeReport{}, err
	}
	return ApplyAccuracy(elements, entries), nil
}

// ApplyAccuracy overwrites the validation fields of elements whose label
// matches an entry exactly. Missing fields take neutral values: status Error,
// accuracy 0, hidden false. When a label repeats in the payload the last entry
// wins and the label counts once.
func ApplyAccuracy(elements []annotate.ElementDetectionItem, entries []ValidationEntry) MergeReport {
	index := make(map[string]int, len(elements))
	for i, el := range elements {
		index[el.Label] = i
	}
	last := make(map[string]int, len(entries))
	for j, e := range entries {
		if _, dup := last[e.Label]; dup {
			logger.Info("merge", "validation label %q repeated; keeping the last entry", e.Label)
		}
		last[e.Label] = j
	}

	var rep MergeReport
	for j, e := range entries {
		if last[e.Label] != j {
			continue
		}
		i, ok := index[e.Label]
		if !ok {
			rep.Unmatched = append(rep.Unmatched, e.Label)
			continue
		}
		rep.Matched++
		applyOne(&elements[i], e)
	}
	if len(rep.Unmatched) > 0 {
		logger.Info("merge", "validation labels without element: %s", strings.Join(rep.Unmatched, ", "))
	}
	return rep
}

func applyOne(el *annotate.ElementDetectionItem, e ValidationEntry) {
	status := annotate.StatusError
	if e.Status != nil {
		status = annotate.ParseElementStatus(*e.Status)
	}
	acc := 0.0
	if e.Accuracy != nil {
		acc = *e.Accuracy
	}
	hidden := false
	if e.Hidden != nil {
		hidden = *e.Hidden
	}

	el.Status = status
	if status != annotate.StatusError {
		el.Error = ""
	}
	el.AccuracyScore = &acc
	el.Hidden = &hidden
	el.Explanation = e.Explanation
	el.SuggestedBox = nil
	if e.SuggestedBox != nil {
		b := *e.SuggestedBox
		el.SuggestedBox = &b
	}
	reconcileBox(el)
}

// reconcileBox keeps BoundingBox set exactly for Detected and Overwrite.
func reconcileBox(el *annotate.ElementDetectionItem) {
	switch el.Status {
	case annotate.StatusOverwrite:
		if el.SuggestedBox != nil {
			b := *el.SuggestedBox
			el.BoundingBox = &b
		}
		if el.BoundingBox == nil {
			el.Status = annotate.StatusError
			el.Error = "overwrite without coordinates"
		}
	case annotate.StatusDetected:
		if el.BoundingBox == nil && el.SuggestedBox != nil {
			b := *el.SuggestedBox
			el.BoundingBox = &b
		}
		if el.BoundingBox == nil {
			el.Status = annotate.StatusNotDetected
		}
	default:
		el.BoundingBox = nil
	}
}

func looseFloat(raw json.RawMessage) *float64 {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return &f
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		s = strings.TrimSuffix(strings.TrimSpace(s), "%")
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return &f
		}
	}
	return nil
}

func looseBool(raw json.RawMessage) *bool {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return &b
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return &b
		}
	}
	return nil
}

// looseBox accepts {"x_min":..,"y_min":..,"x_max":..,"y_max":..} or a
// [x_min, y_min, x_max, y_max] array in pixels.
func looseBox(raw json.RawMessage) *annotate.PixelBox {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var obj struct {
		XMin *float64 `json:"x_min"`
		YMin *float64 `json:"y_min"`
		XMax *float64 `json:"x_max"`
		YMax *float64 `json:"y_max"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.XMin != nil && obj.YMin != nil && obj.XMax != nil && obj.YMax != nil {
		return toBox(*obj.XMin, *obj.YMin, *obj.XMax, *obj.YMax)
	}
	var arr []float64
	if err := json.Unmarshal(raw, &arr); err == nil && len(arr) == 4 {
		return toBox(arr[0], arr[1], arr[2], arr[3])
	}
	return nil
}

func toBox(x1, y1, x2, y2 float64) *annotate.PixelBox {
	b := annotate.PixelBox{XMin: int(x1 + 0.5), YMin: int(y1 + 0.5), XMax: int(x2 + 0.5), YMax: int(y2 + 0.5)}
	if !b.Valid() {
		return nil
	}
	return &b
}
