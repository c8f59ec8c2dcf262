package linker

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/rand/mnemosyne/internal/storage"
	"github.com/rand/mnemosyne/pkg/types"
)

// recentWindow and keywordWindow bound how many memories are pulled from
// storage before scoring, independent of MaxCandidates (the post-scoring cap
// sent to the LLM).
const (
	recentWindow  = 30
	keywordWindow = 30
)

// SelectCandidates picks up to limit memories from m's namespace that are
// either recently stored or overlap m on tags/entities, ranked by a cheap
// local score. search may be nil; keyword-overlap candidates are skipped in
// that case and recency alone drives selection.
func SelectCandidates(ctx context.Context, store storage.MemoryStore, search storage.SearchProvider, m *types.Memory, limit int) ([]*types.Memory, error) {
	pool := make(map[string]*types.Memory)

	recent, err := store.List(ctx, storage.ListOptions{
		Namespace: m.Namespace,
		Page:      1,
		Limit:     recentWindow,
		SortBy:    "created_at",
		SortOrder: "desc",
	})
	if err != nil {
		return nil, err
	}
	for i := range recent.Items {
		c := &recent.Items[i]
		if c.ID == m.ID {
			continue
		}
		pool[c.ID.String()] = c
	}

	if search != nil {
		query := keywordQuery(m)
		if query != "" {
			scored, err := search.FullTextSearch(ctx, query, storage.SearchOptions{
				Namespace: m.Namespace,
				Limit:     keywordWindow,
			})
			if err == nil {
				for _, sm := range scored {
					if sm.Memory.ID == m.ID {
						continue
					}
					pool[sm.Memory.ID.String()] = sm.Memory
				}
			}
		}
	}

	mEntities := extractEntities(m.Content)
	type candidateScore struct {
		memory *types.Memory
		score  float64
	}
	scored := make([]candidateScore, 0, len(pool))
	for _, c := range pool {
		score := tagJaccard(m.Tags, c.Tags) + 0.5*entityOverlap(mEntities, extractEntities(c.Content))
		scored = append(scored, candidateScore{memory: c, score: score})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].score != scored[j].score {
			return scored[i].score > scored[j].score
		}
		return scored[i].memory.CreatedAt.After(scored[j].memory.CreatedAt)
	})

	if len(scored) > limit {
		scored = scored[:limit]
	}
	out := make([]*types.Memory, len(scored))
	for i, s := range scored {
		out[i] = s.memory
	}
	return out, nil
}

func keywordQuery(m *types.Memory) string {
	terms := make([]string, 0, len(m.Keywords)+len(m.Tags))
	terms = append(terms, m.Keywords...)
	terms = append(terms, m.Tags...)
	return strings.Join(terms, " ")
}

// tagJaccard computes |A∩B| / |A∪B| over two tag sets, 0 if either is empty.
func tagJaccard(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	setA := toSet(a)
	setB := toSet(b)
	intersection := 0
	for t := range setA {
		if setB[t] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, i := range items {
		set[strings.ToLower(i)] = true
	}
	return set
}

// entityOverlap returns the Jaccard overlap of two extracted-entity name
// sets, used as a secondary candidate-discovery signal alongside tag
// Jaccard.
func entityOverlap(a, b []types.ExtractedEntity) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	names := func(es []types.ExtractedEntity) []string {
		out := make([]string, len(es))
		for i, e := range es {
			out[i] = e.Name
		}
		return out
	}
	return tagJaccard(names(a), names(b))
}

var (
	camelOrPathPattern = regexp.MustCompile(`\b[A-Za-z][A-Za-z0-9_]*(?:[./][A-Za-z0-9_]+)+\b|\b[a-z]+[A-Z][A-Za-z0-9]*\b|\b[A-Z][a-z0-9]+[A-Z][A-Za-z0-9]*\b`)
	capitalizedWord    = regexp.MustCompile(`\b[A-Z][a-zA-Z0-9]{2,}\b`)
)

// extractEntities is a cheap, local heuristic for candidate discovery: it
// pulls out file-path-like tokens, identifiers (camelCase/PascalCase/
// snake_case with a dot or slash), and capitalized words as stand-ins for
// named entities. This runs for every stored memory, so it avoids a second
// LLM round-trip; the Linker's own edge-proposal call is the only LLM call
// in this package.
func extractEntities(content string) []types.ExtractedEntity {
	seen := make(map[string]bool)
	var out []types.ExtractedEntity

	add := func(name string) {
		key := strings.ToLower(name)
		if seen[key] {
			return
		}
		seen[key] = true
		out = append(out, types.ExtractedEntity{Name: name})
	}

	for _, match := range camelOrPathPattern.FindAllString(content, -1) {
		add(match)
	}
	for _, match := range capitalizedWord.FindAllString(content, -1) {
		add(match)
	}
	return out
}
