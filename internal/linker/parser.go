package linker

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rand/mnemosyne/pkg/types"
)

type rawEdge struct {
	CandidateIndex int     `json:"candidate_index"`
	LinkType       string  `json:"link_type"`
	Strength       float64 `json:"strength"`
	Reason         string  `json:"reason"`
}

type rawEdgeResponse struct {
	Edges []rawEdge `json:"edges"`
}

// parseEdgeProposals parses the model's JSON reply, resolving each
// candidate_index back to the matching candidate's ID and dropping any edge
// with an out-of-range index, invalid link type, or out-of-range strength
// rather than failing the whole batch.
func parseEdgeProposals(response string, candidates []*types.Memory) ([]ProposedEdge, error) {
	clean := extractJSON(response)

	var raw rawEdgeResponse
	if err := json.Unmarshal([]byte(clean), &raw); err != nil {
		return nil, fmt.Errorf("linker: failed to parse response JSON: %w", err)
	}

	edges := make([]ProposedEdge, 0, len(raw.Edges))
	for _, e := range raw.Edges {
		if e.CandidateIndex < 0 || e.CandidateIndex >= len(candidates) {
			continue
		}
		linkType := types.LinkType(e.LinkType)
		if !types.IsValidLinkType(linkType) {
			continue
		}
		if e.Strength < 0.0 || e.Strength > 1.0 {
			continue
		}
		edges = append(edges, ProposedEdge{
			TargetID: candidates[e.CandidateIndex].ID,
			LinkType: linkType,
			Strength: e.Strength,
			Reason:   strings.TrimSpace(e.Reason),
		})
	}
	return edges, nil
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
