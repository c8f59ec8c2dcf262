package evolution

import (
	"context"

	"github.com/rand/mnemosyne/pkg/types"
)

// mockConsolidator is a deterministic stand-in for the LLM-backed
// Consolidator, selected in test mode: identical content merges, a large
// importance gap supersedes (higher wins), otherwise keep both.
type mockConsolidator struct{}

// NewMockConsolidator constructs the deterministic test-mode Consolidator.
func NewMockConsolidator() Consolidator {
	return mockConsolidator{}
}

func (mockConsolidator) Judge(_ context.Context, a, b *types.Memory) (Verdict, error) {
	if a.Content == b.Content {
		return Verdict{Decision: DecisionMerge, CombinedContent: a.Content}, nil
	}
	gap := a.Importance - b.Importance
	if gap < 0 {
		gap = -gap
	}
	if gap >= 3 {
		return Verdict{Decision: DecisionSupersede}, nil
	}
	return Verdict{Decision: DecisionKeepBoth}, nil
}
