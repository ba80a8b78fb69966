package merge

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"ui-annotator/api/internal/annotate"
	"ui-annotator/api/internal/logger"
	"ui-annotator/api/internal/util"
)

// Enrichment is the enricher reply for one component, split once at the
// boundary into component fields and per-label element blobs.
type Enrichment struct {
	Component   annotate.ComponentMetadata
	Description string
	// Elements maps an element label to its compact JSON sub-object.
	Elements map[string]string
}

const (
	keyPatternName    = "patternName"
	keyFacetTags      = "facetTags"
	keyStates         = "states"
	keyInteraction    = "interaction"
	keyUserFlowImpact = "userFlowImpact"
	keyComponentDesc  = "componentDescription"
	keyDescription    = "description"
)

// ParseEnrichment finds componentName in the payload (exact, then trimmed
// case-insensitive) and splits its entry. A payload without that component,
// or one that is not a JSON object, is annotate.ErrMergeParse.
func ParseEnrichment(raw, componentName string) (Enrichment, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal([]byte(util.ExtractJSON(raw)), &top); err != nil {
		return Enrichment{}, fmt.Errorf("%w: enrichment payload is not an object: %v", annotate.ErrMergeParse, err)
	}
	entry, ok := top[componentName]
	if !ok {
		want := strings.ToLower(strings.TrimSpace(componentName))
		for k, v := range top {
			if strings.ToLower(strings.TrimSpace(k)) == want {
				entry, ok = v, true
				break
			}
		}
	}
	if !ok {
		return Enrichment{}, fmt.Errorf("%w: component %q missing from enrichment", annotate.ErrMergeParse, componentName)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(entry, &fields); err != nil {
		return Enrichment{}, fmt.Errorf("%w: component %q entry is not an object: %v", annotate.ErrMergeParse, componentName, err)
	}

	e := Enrichment{Elements: map[string]string{}}
	for k, v := range fields {
		switch k {
		case keyPatternName:
			e.Component.PatternName = looseString(v)
		case keyFacetTags:
			e.Component.FacetTags = looseStrings(v)
		case keyStates:
			e.Component.States = looseStrings(v)
		case keyInteraction:
			e.Component.Interaction = looseString(v)
		case keyUserFlowImpact:
			e.Component.UserFlowImpact = looseString(v)
		case keyComponentDesc, keyDescription:
			if s := looseString(v); s != "" {
				e.Description = s
			}
		default:
			var buf bytes.Buffer
			if err := json.Compact(&buf, v); err != nil {
				logger.Warn("merge", "component %q: element %q metadata unreadable: %v", componentName, k, err)
				continue
			}
			e.Elements[k] = buf.String()
		}
	}
	return e, nil
}

// MergeMetadata parses raw for c and applies it; on error c is untouched.
func MergeMetadata(c *annotate.ComponentDetectionResult, raw string) (MergeReport, error) {
	e, err := ParseEnrichment(raw, c.ComponentName)
	if err != nil {
		return MergeReport{}, err
	}
	return ApplyEnrichment(c, e), nil
}

// ApplyEnrichment sets the component metadata and the MetadataBlob of every
// element whose label has an entry. Other elements keep a nil blob.
func ApplyEnrichment(c *annotate.ComponentDetectionResult, e Enrichment) MergeReport {
	meta := e.Component
	c.Metadata = &meta
	if e.Description != "" {
		c.Description = e.Description
	}

	index := make(map[string]int, len(c.Elements))
	for i, el := range c.Elements {
		index[el.Label] = i
	}
	var rep MergeReport
	for label, blob := range e.Elements {
		i, ok := index[label]
		if !ok {
			rep.Unmatched = append(rep.Unmatched, label)
			continue
		}
		s := blob
		c.Elements[i].MetadataBlob = &s
		rep.Matched++
	}
	sort.Strings(rep.Unmatched)
	if len(rep.Unmatched) > 0 {
		logger.Info("merge", "component %q: metadata keys without element: %s", c.ComponentName, strings.Join(rep.Unmatched, ", "))
	}
	return rep
}

func looseString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	if string(raw) == "null" {
		return ""
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return ""
	}
	return buf.String()
}

func looseStrings(raw json.RawMessage) []string {
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list
	}
	var anyList []any
	if err := json.Unmarshal(raw, &anyList); err == nil {
		out := make([]string, 0, len(anyList))
		for _, v := range anyList {
			out = append(out, fmt.Sprint(v))
		}
		return out
	}
	if s := looseString(raw); s != "" {
		parts := strings.Split(s, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return nil
}
