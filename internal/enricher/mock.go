package enricher

import (
	"context"
	"sort"
	"strings"

	"github.com/rand/mnemosyne/pkg/types"
)

// mockEnricher is a deterministic stand-in for the LLM-backed Enricher,
// selected when MNEMOSYNE_TEST_MODE=regression or MNEMOSYNE_ENRICHMENT=mock.
// It never calls out to a model: summary is the content's first sentence,
// keywords are its most frequent tokens, and every other field falls back
// to the caller-supplied hints.
type mockEnricher struct{}

// NewMock constructs the deterministic test-mode Enricher.
func NewMock() Enricher {
	return mockEnricher{}
}

func (mockEnricher) Enrich(_ context.Context, req Request) Result {
	summary := firstSentence(req.Content)
	keywords := topTokens(req.Content, 5)

	memType := req.MemoryTypeHint
	if memType == "" {
		memType = types.MemoryTypeInsight
	}
	importance := req.ImportanceHint
	if importance < 1 || importance > 10 {
		importance = 5
	}

	return Result{
		Summary:    summary,
		Keywords:   keywords,
		Tags:       keywords[:min(2, len(keywords))],
		MemoryType: memType,
		Importance: importance,
		Confidence: 1.0,
	}
}

func firstSentence(content string) string {
	content = strings.TrimSpace(content)
	if content == "" {
		return ""
	}
	// A terminator ends the sentence only at the end of the content or before
	// whitespace, so dotted identifiers like "context.Context" stay whole.
	for i := 0; i < len(content); i++ {
		c := content[i]
		atBoundary := i+1 == len(content) || strings.ContainsRune(" \t\r\n", rune(content[i+1]))
		if c == '\n' || (strings.ContainsRune(".!?", rune(c)) && atBoundary) {
			return strings.TrimSpace(content[:i+1])
		}
	}
	if len(content) > 120 {
		return content[:120]
	}
	return content
}

var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "of": true,
	"to": true, "in": true, "is": true, "for": true, "on": true, "with": true,
	"this": true, "that": true, "it": true, "as": true, "be": true, "are": true,
}

// topTokens returns the n most frequent non-stopword tokens, ties broken by
// first appearance order for determinism.
func topTokens(content string, n int) []string {
	fields := strings.Fields(strings.ToLower(content))
	counts := make(map[string]int)
	var order []string
	for _, f := range fields {
		f = strings.Trim(f, ".,!?;:\"'()[]{}")
		if f == "" || stopwords[f] || len(f) < 3 {
			continue
		}
		if counts[f] == 0 {
			order = append(order, f)
		}
		counts[f]++
	}

	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})

	if len(order) > n {
		order = order[:n]
	}
	return order
}
