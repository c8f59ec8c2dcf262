package evolution

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rand/mnemosyne/pkg/types"
)

// consolidationPrompt asks the model to resolve one candidate pair into
// exactly one of the three §4.5.1 outcomes.
func consolidationPrompt(a, b *types.Memory) string {
	return fmt.Sprintf(`Two memories in the same project look like they may be duplicates or closely related. Decide how to resolve them. Return ONLY valid JSON, no markdown, no commentary.

Memory A (importance %d):
%s

Memory B (importance %d):
%s

Choose exactly one:
- "merge": the two describe the same underlying fact/insight and should become one memory; provide "combined_content" with the unified text.
- "supersede": one fully replaces the other (e.g. B corrects or obsoletes A); no combined_content needed.
- "keep_both": related but each retains independent value; no combined_content needed.

Return ONLY JSON:
{"decision":"merge","combined_content":"..."}`, a.Importance, truncate(a.Content, 400), b.Importance, truncate(b.Content, 400))
}

type rawVerdict struct {
	Decision        string `json:"decision"`
	CombinedContent string `json:"combined_content"`
}

// parseConsolidationVerdict parses the model's reply, defaulting to
// DecisionKeepBoth on any malformed or unrecognized response, per the
// "never fail the job, just skip this pair" degrade contract.
func parseConsolidationVerdict(response string) Verdict {
	clean := extractJSON(response)

	var raw rawVerdict
	if err := json.Unmarshal([]byte(clean), &raw); err != nil {
		return Verdict{Decision: DecisionKeepBoth}
	}

	switch Decision(strings.ToLower(strings.TrimSpace(raw.Decision))) {
	case DecisionMerge:
		return Verdict{Decision: DecisionMerge, CombinedContent: strings.TrimSpace(raw.CombinedContent)}
	case DecisionSupersede:
		return Verdict{Decision: DecisionSupersede}
	default:
		return Verdict{Decision: DecisionKeepBoth}
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
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
