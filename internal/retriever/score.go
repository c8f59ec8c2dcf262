package retriever

import (
	"context"
	"math"

	"github.com/google/uuid"

	"github.com/rand/mnemosyne/internal/storage"
	"github.com/rand/mnemosyne/pkg/types"
)

// normalizeKeywordScores divides each raw inverted-index score by the top
// raw score in the window, per §4.4's keyword-signal normalization.
func normalizeKeywordScores(matches []storage.ScoredMemory) []float64 {
	out := make([]float64, len(matches))
	if len(matches) == 0 {
		return out
	}
	top := matches[0].Score
	for _, m := range matches {
		if m.Score > top {
			top = m.Score
		}
	}
	if top <= 0 {
		return out
	}
	for i, m := range matches {
		out[i] = m.Score / top
	}
	return out
}

// graphScores expands each keyword-matched seed up to graphHops via the
// link graph, summing strength(s→n) × 0.5^(hops-1) contributions per
// neighbor across all seeds, clamped to [0,1].
func (r *Retriever) graphScores(ctx context.Context, keywordMatches []storage.ScoredMemory) map[uuid.UUID]float64 {
	seeds := keywordMatches
	if len(seeds) > seedWindow {
		seeds = seeds[:seedWindow]
	}

	contributions := make(map[uuid.UUID]float64)
	for _, seed := range seeds {
		results, err := r.graph.Traverse(ctx, seed.Memory.ID, storage.GraphBounds{MaxHops: graphHops, Limit: 200})
		if err != nil {
			continue
		}
		for _, res := range results {
			contribution := res.Strength * math.Pow(0.5, float64(res.HopDistance-1))
			contributions[res.Memory.ID] += contribution
		}
	}
	for id, score := range contributions {
		if score > 1.0 {
			contributions[id] = 1.0
		}
	}
	return contributions
}

// namespacePriority returns the §4.4 boost multiplier for a memory's
// namespace against the query's scoping namespace: 1.0 for an exact match,
// 0.8 for an ancestor (parent-scope) match, 0.6 for Global when scoping was
// widened past it, 1.0 unconditionally when scoping was not widened (strict
// scoping already guarantees an exact match).
func namespacePriority(candidate, query types.Namespace, widened bool) float64 {
	if !widened || candidate.Equal(query) {
		return 1.0
	}
	for cur, ok := query.Parent(); ok; cur, ok = cur.Parent() {
		if candidate.Equal(cur) {
			if cur.Kind == types.NamespaceGlobal {
				return 0.6
			}
			return 0.8
		}
	}
	return 1.0
}

func applyNamespacePriorityBoost(scores map[uuid.UUID]float64, memories map[uuid.UUID]*types.Memory, queryNamespace types.Namespace, widened bool) {
	if !widened {
		return
	}
	for id, m := range memories {
		scores[id] *= namespacePriority(m.Namespace, queryNamespace, widened)
	}
}
