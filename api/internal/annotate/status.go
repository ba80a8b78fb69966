package annotate

// DeriveStatus: success when something was detected and nothing errored,
// partial when both happened, failed otherwise (all NotDetected included).
func DeriveStatus(elements []ElementDetectionItem) ComponentStatus {
	var detected, errored int
	for _, el := range elements {
		switch el.Status {
		case StatusDetected:
			detected++
		case StatusError:
			errored++
		}
	}
	switch {
	case detected > 0 && errored == 0:
		return ComponentSuccess
	case detected > 0:
		return ComponentPartial
	default:
		return ComponentFailed
	}
}

func TotalInferenceTime(elements []ElementDetectionItem) int64 {
	var total int64
	for _, el := range elements {
		total += el.InferenceTimeMs
	}
	return total
}
