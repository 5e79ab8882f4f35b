package extract

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// codeBlockRe strips markdown code fences from LLM output.
var codeBlockRe = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(.*?)\\n?```")

// rawEntity is the untrusted JSON shape of one Phase-1 entity.
type rawEntity struct {
	Type       string         `json:"type"`
	Text       string         `json:"text"`
	Properties map[string]any `json:"properties"`
}

// rawTriple is the untrusted JSON shape of one Phase-2 relationship.
type rawTriple struct {
	SourceText       string  `json:"source_text"`
	TargetText       string  `json:"target_text"`
	RelationshipName string  `json:"relationship_name"`
	Confidence       float64 `json:"confidence"`
}

// extractJSONArray finds a JSON array in raw model output. It tolerates the
// usual model quirks: markdown code fences, prose before/after the JSON, and
// the array being wrapped in a single-key object.
func extractJSONArray(raw string) (string, error) {
	if m := codeBlockRe.FindStringSubmatch(raw); len(m) > 1 {
		raw = m[1]
	}
	raw = strings.TrimSpace(raw)

	if strings.HasPrefix(raw, "[") {
		return raw, nil
	}

	// Some models wrap the array in an object like {"entities": [...]}.
	if strings.HasPrefix(raw, "{") {
		var wrapper map[string]json.RawMessage
		if err := json.Unmarshal([]byte(raw), &wrapper); err == nil {
			for _, v := range wrapper {
				s := strings.TrimSpace(string(v))
				if strings.HasPrefix(s, "[") {
					return s, nil
				}
			}
		}
	}

	start := strings.Index(raw, "[")
	end := strings.LastIndex(raw, "]")
	if start >= 0 && end > start {
		return raw[start : end+1], nil
	}

	return "", fmt.Errorf("no JSON array found in response")
}

// parseEntities parses untrusted Phase-1 output into raw entities.
func parseEntities(raw string) ([]rawEntity, error) {
	jsonStr, err := extractJSONArray(raw)
	if err != nil {
		return nil, err
	}
	var entities []rawEntity
	if err := json.Unmarshal([]byte(jsonStr), &entities); err != nil {
		return nil, fmt.Errorf("unmarshalling entity array: %w", err)
	}
	return entities, nil
}

// parseTriples parses untrusted Phase-2 output into raw triples.
func parseTriples(raw string) ([]rawTriple, error) {
	jsonStr, err := extractJSONArray(raw)
	if err != nil {
		return nil, err
	}
	var triples []rawTriple
	if err := json.Unmarshal([]byte(jsonStr), &triples); err != nil {
		return nil, fmt.Errorf("unmarshalling relationship array: %w", err)
	}
	return triples, nil
}
