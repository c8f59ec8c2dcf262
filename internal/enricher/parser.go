package enricher

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rand/mnemosyne/pkg/types"
)

// rawEnrichmentResponse mirrors the JSON shape requested in enrichmentPrompt.
type rawEnrichmentResponse struct {
	Summary    string   `json:"summary"`
	Keywords   []string `json:"keywords"`
	Tags       []string `json:"tags"`
	MemoryType string   `json:"memory_type"`
	Importance int      `json:"importance"`
	Confidence float64  `json:"confidence"`
}

type parsedEnrichment struct {
	Summary    string
	Keywords   []string
	Tags       []string
	MemoryType types.MemoryType
	Importance int
	Confidence float64
}

// parseEnrichmentResponse parses and validates the model's JSON reply,
// tolerating surrounding prose/markdown fences but rejecting payloads that
// violate the contract's ranges rather than silently coercing them.
func parseEnrichmentResponse(response string) (*parsedEnrichment, error) {
	clean := extractJSON(response)

	var raw rawEnrichmentResponse
	if err := json.Unmarshal([]byte(clean), &raw); err != nil {
		return nil, fmt.Errorf("enricher: failed to parse response JSON: %w", err)
	}

	if !types.IsValidMemoryType(types.MemoryType(raw.MemoryType)) {
		return nil, fmt.Errorf("enricher: invalid memory_type %q", raw.MemoryType)
	}
	if raw.Importance < 1 || raw.Importance > 10 {
		return nil, fmt.Errorf("enricher: importance %d out of range [1,10]", raw.Importance)
	}
	if raw.Confidence < 0.0 || raw.Confidence > 1.0 {
		return nil, fmt.Errorf("enricher: confidence %f out of range [0,1]", raw.Confidence)
	}

	return &parsedEnrichment{
		Summary:    strings.TrimSpace(raw.Summary),
		Keywords:   raw.Keywords,
		Tags:       raw.Tags,
		MemoryType: types.MemoryType(raw.MemoryType),
		Importance: raw.Importance,
		Confidence: raw.Confidence,
	}, nil
}

// extractJSON pulls the first balanced {...} object out of text that may
// carry markdown fences or leading/trailing prose despite the prompt's
// strict-JSON instruction.
func extractJSON(text string) string {
	text = strings.ReplaceAll(text, "```json", "")
	text = strings.ReplaceAll(text, "```", "")
	text = strings.TrimSpace(text)

	start := strings.Index(text, "{")
	if start == -1 {
		return text
	}

	depth := 0
	inString := false
	escape := false

	for i := start; i < len(text); i++ {
		c := text[i]
		if escape {
			escape = false
			continue
		}
		if c == '\\' {
			escape = true
			continue
		}
		if c == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}
		switch c {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return text
}
