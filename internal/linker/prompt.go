package linker

import (
	"fmt"
	"strings"

	"github.com/rand/mnemosyne/pkg/types"
)

// edgeProposalPrompt builds a strict-JSON prompt asking the model to judge
// zero or more typed edges from m to the listed candidates. Candidate content
// is truncated defensively; the model is told to reference candidates by
// their list index rather than echoing UUIDs, since models reliably mangle
// long identifiers.
func edgeProposalPrompt(m *types.Memory, candidates []*types.Memory) string {
	var list strings.Builder
	for i, c := range candidates {
		fmt.Fprintf(&list, "[%d] (%s) %s\n", i, c.MemoryType, truncate(c.Content, 240))
	}

	return fmt.Sprintf(`Decide whether the new memory below relates to any of the candidate memories. Return ONLY valid JSON, no markdown, no code blocks, no explanation.

Link types (use ONLY these):
- extends: the new memory builds on or refines a candidate
- contradicts: the new memory conflicts with a candidate
- implements: the new memory is a concrete instance of a candidate's guidance
- references: the new memory mentions or depends on a candidate without the above
- supersedes: the new memory fully replaces a candidate

New memory:
%s

Candidates (referenced by index):
%s

For each candidate worth linking to the new memory, emit one object with the
candidate's index, the link type, a strength in [0,1] reflecting confidence,
and a short reason. Omit candidates with no meaningful relationship.

Return ONLY JSON, nothing else:
{"edges":[{"candidate_index":0,"link_type":"extends","strength":0.8,"reason":"..."}]}
If no candidate relates to the new memory, return {"edges":[]}`, truncate(m.Content, 500), list.String())
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
