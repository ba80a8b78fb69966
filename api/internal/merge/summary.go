package merge

import (
	"gonum.org/v1/gonum/stat"

	"ui-annotator/api/internal/annotate"
)

// AccuracySummary aggregates the validator's verdicts for one component.
type AccuracySummary struct {
	Scored      int     `json:"scored"`
	Mean        float64 `json:"mean"`
	StdDev      float64 `json:"std_dev"`
	Hidden      int     `json:"hidden"`
	Overwritten int     `json:"overwritten"`
}

func Summarize(elements []annotate.ElementDetectionItem) AccuracySummary {
	var s AccuracySummary
	scores := make([]float64, 0, len(elements))
	for _, el := range elements {
		if el.AccuracyScore != nil {
			scores = append(scores, *el.AccuracyScore)
		}
		if el.Hidden != nil && *el.Hidden {
			s.Hidden++
		}
		if el.Status == annotate.StatusOverwrite {
			s.Overwritten++
		}
	}
	s.Scored = len(scores)
	switch {
	case len(scores) == 1:
		s.Mean = scores[0]
	case len(scores) > 1:
		s.Mean, s.StdDev = stat.MeanStdDev(scores, nil)
	}
	return s
}
