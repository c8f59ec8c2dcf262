package linker

import (
	"context"

	"github.com/rand/mnemosyne/internal/merrors"
	"github.com/rand/mnemosyne/internal/storage"
	"github.com/rand/mnemosyne/pkg/types"
)

// Run selects candidates for m, asks linker to propose edges, and writes the
// accepted ones (strength >= AcceptThreshold, deduplicated by max strength
// per target/type) via linkStore. It returns the number of links written.
// search may be nil (recency-only candidate selection).
func Run(ctx context.Context, store storage.MemoryStore, search storage.SearchProvider, linkStore storage.LinkStore, linker Linker, m *types.Memory) (int, error) {
	candidates, err := SelectCandidates(ctx, store, search, m, MaxCandidates)
	if err != nil {
		return 0, err
	}
	if len(candidates) == 0 {
		return 0, nil
	}

	proposed, err := linker.Propose(ctx, Request{Memory: m, Candidates: candidates})
	if err != nil {
		return 0, err
	}

	accepted := Accepted(proposed)
	written := 0
	for _, e := range accepted {
		link := ToLink(m.ID, e)
		if err := linkStore.CreateLink(ctx, link); err != nil {
			if merrors.Is(err, merrors.KindConflict) {
				continue
			}
			return written, err
		}
		written++
	}
	return written, nil
}
