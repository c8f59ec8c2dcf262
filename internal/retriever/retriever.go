// Package retriever implements the weighted hybrid recall algorithm:
// keyword, graph, and vector signals combined with fixed weights, renormalized
// when vector search is unavailable, then ranked with a deterministic
// tie-break.
package retriever

import (
	"context"
	"log"
	"sort"

	"github.com/google/uuid"

	"github.com/rand/mnemosyne/internal/llm"
	"github.com/rand/mnemosyne/internal/storage"
	"github.com/rand/mnemosyne/pkg/types"
)

// Fixed signal weights per the scoring algorithm. When vector is
// unavailable, keyword/graph renormalize to keywordOnlyWeight/graphOnlyWeight.
const (
	keywordWeight = 0.2
	graphWeight   = 0.1
	vectorWeight  = 0.7

	keywordOnlyWeight = 0.67
	graphOnlyWeight    = 0.33
)

// graphHops bounds how far graph expansion follows keyword-matched seeds.
const graphHops = 2

// seedWindow bounds how many keyword/graph seeds feed graph expansion, kept
// well under SearchOptions.Limit's cap so a broad query doesn't fan out into
// an expensive traversal.
const seedWindow = 20

// Result pairs a memory with its final combined score.
type Result struct {
	Memory *types.Memory
	Score  float64
}

// Options configures a single Recall call.
type Options struct {
	Limit           int
	MinImportance   int
	IncludeGraph    bool
	IncludeVector   bool
	IncludeArchived bool
	WidenNamespace  bool
}

// Normalize applies Recall's documented defaults.
func (o *Options) Normalize() {
	if o.Limit < 1 {
		o.Limit = 10
	}
	if o.MinImportance < 1 {
		o.MinImportance = 1
	}
}

// Retriever composes the storage providers needed for hybrid recall.
type Retriever struct {
	memories   storage.MemoryStore
	search     storage.SearchProvider
	graph      storage.GraphProvider
	embeddings storage.EmbeddingProvider
	embedder   llm.EmbeddingGenerator
}

// New constructs a Retriever. embedder may be nil (vector scoring is then
// always skipped and weights renormalize); graph may be nil likewise.
func New(memories storage.MemoryStore, search storage.SearchProvider, graph storage.GraphProvider, embeddings storage.EmbeddingProvider, embedder llm.EmbeddingGenerator) *Retriever {
	return &Retriever{
		memories:   memories,
		search:     search,
		graph:      graph,
		embeddings: embeddings,
		embedder:   embedder,
	}
}

// Recall implements the public recall(query, namespace, options) contract.
// query may be empty ("no keyword predicate"); namespace scopes the search,
// optionally widened per opts.WidenNamespace with priority-boosted scoring.
func (r *Retriever) Recall(ctx context.Context, query string, namespace types.Namespace, opts Options) ([]Result, error) {
	opts.Normalize()

	searchOpts := storage.SearchOptions{
		Namespace:       namespace,
		WidenNamespace:  opts.WidenNamespace,
		Limit:           200,
		MinImportance:   opts.MinImportance,
		IncludeArchived: true, // filtered after ranking, per §4.4
	}
	searchOpts.Normalize()

	memories := make(map[uuid.UUID]*types.Memory)
	keywordScores := make(map[uuid.UUID]float64)
	graphScoreMap := make(map[uuid.UUID]float64)
	vectorScores := make(map[uuid.UUID]float64)

	var keywordMatches []storage.ScoredMemory
	if query != "" {
		var err error
		keywordMatches, err = r.search.FullTextSearch(ctx, query, searchOpts)
		if err != nil {
			return nil, err
		}
	}
	keywordNorm := normalizeKeywordScores(keywordMatches)
	for i, sm := range keywordMatches {
		memories[sm.Memory.ID] = sm.Memory
		keywordScores[sm.Memory.ID] = keywordNorm[i]
	}

	if opts.IncludeGraph && r.graph != nil {
		graphScoreMap = r.graphScores(ctx, keywordMatches)
		for id := range graphScoreMap {
			if _, ok := memories[id]; !ok {
				if m, err := r.memories.Get(ctx, id, true); err == nil {
					memories[id] = m
				}
			}
		}
	}

	vectorAvailable := false
	if opts.IncludeVector && query != "" && r.embedder != nil {
		queryEmbedding, err := r.embedder.Embed(ctx, query)
		if err == nil && len(queryEmbedding) > 0 {
			vectorMatches, err := r.search.VectorSearch(ctx, queryEmbedding, searchOpts)
			if err == nil {
				vectorAvailable = true
				model := r.embedder.GetModel()
				for _, sm := range vectorMatches {
					// Skip memories embedded under a different model: their
					// vectors live in an incompatible space and a raw cosine
					// score against them is meaningless (§9).
					if sm.Memory.EmbeddingModel != "" && sm.Memory.EmbeddingModel != model {
						continue
					}
					memories[sm.Memory.ID] = sm.Memory
					vScore := sm.Score
					if vScore < 0 {
						vScore = 0
					}
					vectorScores[sm.Memory.ID] = vScore
				}
			}
		}
	}

	kw, gw := keywordWeight, graphWeight
	vw := vectorWeight
	if !vectorAvailable {
		kw, gw, vw = keywordOnlyWeight, graphOnlyWeight, 0
	}

	scores := make(map[uuid.UUID]float64)
	for id := range memories {
		scores[id] = kw*keywordScores[id] + gw*graphScoreMap[id] + vw*vectorScores[id]
	}

	applyNamespacePriorityBoost(scores, memories, namespace, opts.WidenNamespace)

	results := make([]Result, 0, len(scores))
	for id, score := range scores {
		m, ok := memories[id]
		if !ok {
			continue
		}
		if !opts.IncludeArchived && m.IsArchived {
			continue
		}
		if m.Importance < opts.MinImportance {
			continue
		}
		results = append(results, Result{Memory: m, Score: score})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if results[i].Memory.Importance != results[j].Memory.Importance {
			return results[i].Memory.Importance > results[j].Memory.Importance
		}
		if !results[i].Memory.LastAccessedAt.Equal(results[j].Memory.LastAccessedAt) {
			return results[i].Memory.LastAccessedAt.After(results[j].Memory.LastAccessedAt)
		}
		return results[i].Memory.ID.String() < results[j].Memory.ID.String()
	})

	if len(results) > opts.Limit {
		results = results[:opts.Limit]
	}

	r.touchAsync(results)
	return results, nil
}

// touchAsync increments access_count/last_accessed_at for every returned
// memory without blocking the read; failures are logged, not surfaced,
// per §4.4's "this update is dispatched asynchronously" side effect.
func (r *Retriever) touchAsync(results []Result) {
	if len(results) == 0 {
		return
	}
	ids := make([]uuid.UUID, len(results))
	for i, res := range results {
		ids[i] = res.Memory.ID
	}
	go func() {
		ctx := context.Background()
		for _, id := range ids {
			if err := r.memories.IncrementAccessCount(ctx, id); err != nil {
				log.Printf("retriever: failed to record access for %s: %v", id, err)
			}
		}
	}()
}
