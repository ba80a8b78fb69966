package util

import (
	"encoding/json"
	"strings"
)

// ExtractJSON pulls the JSON document out of a model reply. Code fences are
// stripped; when prose surrounds the payload, every '[' or '{' is tried as a
// start and the longest complete value wins, so bracketed prose before or
// after the payload is skipped. Without any value the input comes back as is.
func ExtractJSON(s string) string {
	s = StripCodeFences(s)
	if json.Valid([]byte(s)) {
		return s
	}
	best := ""
	for i := 0; i < len(s); i++ {
		if s[i] != '[' && s[i] != '{' {
			continue
		}
		dec := json.NewDecoder(strings.NewReader(s[i:]))
		var v json.RawMessage
		if err := dec.Decode(&v); err != nil {
			continue
		}
		if len(v) > len(best) {
			best = string(v)
		}
		// values nested in this one are shorter
		i += int(dec.InputOffset()) - 1
	}
	if best == "" {
		return s
	}
	return best
}
