package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/rand/mnemosyne/internal/merrors"
	"github.com/rand/mnemosyne/internal/storage"
	"github.com/rand/mnemosyne/pkg/types"
)

// FullTextSearch queries the memories_fts virtual table, which is kept in
// sync with memories by the triggers in migrations/002_fts_index.up.sql.
// FTS5 rank is negative (more negative is a better match), so ordering by
// rank ASC surfaces the best matches first.
func (s *MemoryStore) FullTextSearch(ctx context.Context, query string, opts storage.SearchOptions) ([]storage.ScoredMemory, error) {
	opts.Normalize()

	ftsQuery := sanitizeFTSQuery(query)
	if ftsQuery == "" {
		return nil, nil
	}

	nsCondition, nsArgs := namespaceCondition(opts)

	sql := fmt.Sprintf(`
		SELECT m.id, m.namespace, m.content, m.summary, m.keywords, m.tags, m.context,
			m.memory_type, m.importance, m.confidence, m.related_files, m.related_entities,
			m.access_count, m.last_accessed_at, m.created_at, m.updated_at, m.expires_at,
			m.is_archived, m.archived_at, m.superseded_by, m.embedding_model,
			fts.rank
		FROM memories_fts fts
		JOIN memories m ON m.rowid = fts.rowid
		WHERE memories_fts MATCH ? %s
		ORDER BY fts.rank
		LIMIT ?
	`, nsCondition)

	args := append([]any{ftsQuery}, nsArgs...)
	args = append(args, opts.Limit)

	rows, err := s.db.QueryContext(ctx, sql, args...)
	if err != nil {
		return nil, merrors.Wrap(merrors.KindStorageUnavailable, "full text search", err)
	}
	defer rows.Close()

	var results []storage.ScoredMemory
	for rows.Next() {
		m, rank, err := scanMemoryWithRank(rows)
		if err != nil {
			return nil, merrors.Wrap(merrors.KindStorageUnavailable, "scan search result", err)
		}
		if m.IsArchived && !opts.IncludeArchived {
			continue
		}
		if m.Importance < opts.MinImportance {
			continue
		}
		// rank is negative; invert and normalize roughly into (0, 1].
		score := 1.0 / (1.0 + (-rank))
		results = append(results, storage.ScoredMemory{Memory: m, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, merrors.Wrap(merrors.KindStorageUnavailable, "iterate search results", err)
	}
	return results, nil
}

// vectorSearchMaxCandidates bounds how many embeddings are loaded into Go
// memory for a brute-force cosine scan. Adequate for personal/team-scale
// deployments; larger corpora should run the Postgres+pgvector backend.
const vectorSearchMaxCandidates = 10_000

func (s *MemoryStore) VectorSearch(ctx context.Context, queryEmbedding []float32, opts storage.SearchOptions) ([]storage.ScoredMemory, error) {
	opts.Normalize()
	if len(queryEmbedding) == 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT v.memory_id, v.embedding, v.dimension
		FROM vec_memories v
		JOIN memories m ON m.id = v.memory_id
		ORDER BY m.created_at DESC
		LIMIT ?
	`, vectorSearchMaxCandidates)
	if err != nil {
		return nil, merrors.Wrap(merrors.KindStorageUnavailable, "load embeddings", err)
	}

	type candidate struct {
		id    string
		score float64
	}
	var candidates []candidate
	for rows.Next() {
		var memID string
		var blob []byte
		var dim int
		if err := rows.Scan(&memID, &blob, &dim); err != nil {
			continue
		}

		var embedding []float32
		parsedID, parseErr := uuid.Parse(memID)
		if parseErr == nil {
			if cached, ok := s.embedCache.Get(parsedID); ok {
				embedding = cached
			}
		}
		if embedding == nil {
			var err error
			embedding, err = deserializeEmbedding(blob, dim)
			if err != nil {
				continue
			}
			if parseErr == nil {
				s.embedCache.Add(parsedID, embedding)
			}
		}

		candidates = append(candidates, candidate{memID, cosineSimilarity(queryEmbedding, embedding)})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, merrors.Wrap(merrors.KindStorageUnavailable, "iterate embeddings", err)
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })

	var results []storage.ScoredMemory
	for _, c := range candidates {
		if len(results) >= opts.Limit {
			break
		}
		row := s.db.QueryRowContext(ctx, memorySelectSQL+" WHERE id = ?", c.id)
		m, err := scanMemory(row)
		if err != nil {
			continue
		}
		if m.IsArchived && !opts.IncludeArchived {
			continue
		}
		if m.Importance < opts.MinImportance {
			continue
		}
		if !namespaceMatches(m.Namespace, opts) {
			continue
		}
		results = append(results, storage.ScoredMemory{Memory: m, Score: c.score})
	}
	return results, nil
}

func namespaceMatches(ns types.Namespace, opts storage.SearchOptions) bool {
	if opts.WidenNamespace {
		for cur := opts.Namespace; ; {
			if ns.Equal(cur) {
				return true
			}
			parent, ok := cur.Parent()
			if !ok {
				return false
			}
			cur = parent
		}
	}
	return ns.Equal(opts.Namespace)
}

// namespaceCondition builds the SQL fragment and args restricting a query to
// opts.Namespace, optionally widened to its ancestor scopes per §3.2.
func namespaceCondition(opts storage.SearchOptions) (string, []any) {
	if !opts.WidenNamespace {
		nsJSON, _ := json.Marshal(opts.Namespace)
		return "AND m.namespace = ?", []any{string(nsJSON)}
	}

	var namespaces []types.Namespace
	for cur := opts.Namespace; ; {
		namespaces = append(namespaces, cur)
		parent, ok := cur.Parent()
		if !ok {
			break
		}
		cur = parent
	}

	placeholders := make([]string, len(namespaces))
	args := make([]any, len(namespaces))
	for i, ns := range namespaces {
		nsJSON, _ := json.Marshal(ns)
		placeholders[i] = "?"
		args[i] = string(nsJSON)
	}
	return fmt.Sprintf("AND m.namespace IN (%s)", strings.Join(placeholders, ", ")), args
}

func scanMemoryWithRank(rows interface {
	Scan(dest ...any) error
}) (*types.Memory, float64, error) {
	var rank float64
	m, err := scanMemoryScannerWithExtra(rows, &rank)
	return m, rank, err
}

// sanitizeFTSQuery converts free-form user text into a safe FTS5 MATCH
// expression: strips FTS5-special characters and builds an OR'd prefix
// query from the remaining words so one bad term doesn't zero out a match.
func sanitizeFTSQuery(query string) string {
	replacer := strings.NewReplacer(`"`, " ", `'`, " ", `(`, " ", `)`, " ", `*`, " ", `-`, " ", `^`, " ", `?`, " ", `:`, " ")
	cleaned := replacer.Replace(query)

	words := strings.Fields(strings.ToLower(cleaned))
	var terms []string
	for _, w := range words {
		if len(w) >= 2 {
			terms = append(terms, w+"*")
		}
	}
	if len(terms) == 0 {
		return ""
	}
	return strings.Join(terms, " OR ")
}
