package enricher

import (
	"fmt"
	"strings"

	"github.com/rand/mnemosyne/pkg/types"
)

// enrichmentPrompt builds the single-call, strict-JSON enrichment prompt.
// The memory type list mirrors pkg/types.ValidMemoryTypes so the model is
// never asked to choose outside the closed set.
func enrichmentPrompt(req Request) string {
	var typeNames []string
	for _, t := range types.ValidMemoryTypes {
		typeNames = append(typeNames, string(t))
	}

	contextSection := ""
	if req.Context != "" {
		contextSection = fmt.Sprintf("\nADDITIONAL CONTEXT:\n%s\n", req.Context)
	}

	return fmt.Sprintf(`TASK: Summarize and classify a development memory.
OUTPUT: ONLY valid JSON. NO markdown. NO code blocks. NO backticks.

MEMORY TYPE (choose exactly one): %s

Produce:
- summary: one concise sentence describing the content
- keywords: array of 3-8 important single or multi-word terms
- tags: array of 1-5 short free-form topical tags
- memory_type: one of the types listed above
- importance: integer 1-10, how significant this is to remember
- confidence: float 0.0-1.0, your confidence in this classification
%s
CONTENT:
%s

Return ONLY a JSON object, nothing else:
{"summary":"...","keywords":["..."],"tags":["..."],"memory_type":"...","importance":5,"confidence":0.8}`,
		strings.Join(typeNames, ", "), contextSection, req.Content)
}
