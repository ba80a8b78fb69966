package vision

import (
	"encoding/json"
	"fmt"
)

const DetectSystem = `You locate user interface elements on a screenshot.
You are given the label and description of ONE element. Find it on the image.
Return only JSON: {"boxes":[{"box_2d":[ymin,xmin,ymax,xmax]}]} with coordinates normalised to 0-1000.
If the element is not visible return {"boxes":[]}. Never invent elements.`

const ValidateSystem = `You review bounding boxes drawn on a screenshot of one UI component.
Every listed element was searched for; boxes are drawn with a coloured border.
For each element return an object:
{"label": string, "accuracy": number 0-100, "hidden": boolean, "status": "Detected"|"NotDetected"|"Overwrite",
 "suggested_coordinates": {"x_min":int,"y_min":int,"x_max":int,"y_max":int} | null, "explanation": string}
Use "Overwrite" with pixel suggested_coordinates when the box is wrong but the element is visible.
Return only a JSON array, one entry per label, labels copied exactly.`

const EnrichSystem = `You describe a UI component and its elements for a design pattern catalogue.
Return only JSON shaped as
{"<component name>": {"patternName": string, "facetTags": [string], "states": [string],
 "interaction": string, "userFlowImpact": string, "componentDescription": string,
 "<element label>": {...free-form element metadata...}}}
Use the component name and element labels exactly as given.`

// DetectUser is the per-element instruction.
func DetectUser(label, description string) string {
	return fmt.Sprintf("Element label: %s\nDescription: %s\nReturn the JSON only.", label, description)
}

// ReviewUser serialises the request context shared by validation and enrichment.
func ReviewUser(in ReviewRequest) string {
	payload := map[string]any{
		"component":   in.ComponentName,
		"description": in.Description,
		"image_size":  map[string]int{"width": in.Width, "height": in.Height},
		"elements":    in.Elements,
	}
	b, _ := json.Marshal(payload)
	return "INPUT_JSON:\n" + string(b)
}
