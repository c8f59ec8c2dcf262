package linker

import (
	"context"

	"github.com/rand/mnemosyne/pkg/types"
)

// mockLinker is a deterministic stand-in for the LLM-backed Linker,
// selected when MNEMOSYNE_TEST_MODE=regression or MNEMOSYNE_LINKING=mock. It
// proposes a references edge to every candidate whose tag Jaccard overlap
// with the anchor memory meets the accept threshold, with strength equal to
// the overlap score itself.
type mockLinker struct{}

// NewMock constructs the deterministic test-mode Linker.
func NewMock() Linker {
	return mockLinker{}
}

func (mockLinker) Propose(_ context.Context, req Request) ([]ProposedEdge, error) {
	var edges []ProposedEdge
	for _, c := range req.Candidates {
		strength := tagJaccard(req.Memory.Tags, c.Tags)
		if strength < AcceptThreshold {
			continue
		}
		edges = append(edges, ProposedEdge{
			TargetID: c.ID,
			LinkType: types.LinkReferences,
			Strength: strength,
			Reason:   "shared tags",
		})
	}
	return edges, nil
}
