package postgres

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/rand/mnemosyne/internal/storage"
)

// Traverse performs bounded breadth-first search over memory_links starting
// at id. Each hop expands via both outgoing and incoming links; a memory is
// recorded at the hop distance it was first discovered at and never
// revisited (cycle-safe). Archived memories are still expanded through but
// are omitted from the results. Results are returned sorted by hop distance
// ascending, then importance descending.
func (s *MemoryStore) Traverse(ctx context.Context, id uuid.UUID, bounds storage.GraphBounds) ([]storage.TraversalResult, error) {
	bounds.Normalize()

	visited := map[uuid.UUID]bool{id: true}
	results := make(map[uuid.UUID]storage.TraversalResult)

	frontier := []uuid.UUID{id}
	for hop := 1; hop <= bounds.MaxHops && len(frontier) > 0; hop++ {
		var next []uuid.UUID

		for _, cur := range frontier {
			outgoing, err := s.LinksFrom(ctx, cur, nil)
			if err != nil {
				return nil, err
			}
			incoming, err := s.LinksTo(ctx, cur)
			if err != nil {
				return nil, err
			}

			for _, l := range outgoing {
				if visited[l.TargetID] {
					continue
				}
				visited[l.TargetID] = true
				results[l.TargetID] = storage.TraversalResult{HopDistance: hop, ViaLinkType: l.LinkType, Strength: l.Strength}
				next = append(next, l.TargetID)
			}
			for _, l := range incoming {
				if visited[l.SourceID] {
					continue
				}
				visited[l.SourceID] = true
				results[l.SourceID] = storage.TraversalResult{HopDistance: hop, ViaLinkType: l.LinkType, Strength: l.Strength}
				next = append(next, l.SourceID)
			}
		}

		frontier = next
	}

	if len(results) == 0 {
		return nil, nil
	}

	out := make([]storage.TraversalResult, 0, len(results))
	for memID, r := range results {
		row := s.db.QueryRowContext(ctx, memorySelectSQL+" WHERE id = $1 AND is_archived = FALSE", memID.String())
		m, err := scanMemory(row)
		if err != nil {
			continue
		}
		r.Memory = m
		out = append(out, r)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].HopDistance != out[j].HopDistance {
			return out[i].HopDistance < out[j].HopDistance
		}
		return out[i].Memory.Importance > out[j].Memory.Importance
	})

	if len(out) > bounds.Limit {
		out = out[:bounds.Limit]
	}

	return out, nil
}
