package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	pgvector "github.com/pgvector/pgvector-go"

	"github.com/google/uuid"

	"github.com/rand/mnemosyne/internal/merrors"
	"github.com/rand/mnemosyne/internal/storage"
	"github.com/rand/mnemosyne/pkg/types"
)

var _ storage.SearchProvider = (*MemoryStore)(nil)

// FullTextSearch queries the content_tsv column maintained by the trigger in
// migrations/002_fts_index.up.sql, ranked with ts_rank.
func (s *MemoryStore) FullTextSearch(ctx context.Context, query string, opts storage.SearchOptions) ([]storage.ScoredMemory, error) {
	opts.Normalize()

	tsQuery := sanitizeTSQuery(query)
	if tsQuery == "" {
		return nil, nil
	}

	nsCondition, nsArgs, next := namespaceCondition(opts, 2)

	sqlQuery := fmt.Sprintf(`
		SELECT m.id, m.namespace, m.content, m.summary, m.keywords, m.tags, m.context,
			m.memory_type, m.importance, m.confidence, m.related_files, m.related_entities,
			m.access_count, m.last_accessed_at, m.created_at, m.updated_at, m.expires_at,
			m.is_archived, m.archived_at, m.superseded_by, m.embedding_model,
			ts_rank(m.content_tsv, plainto_tsquery('english', $1)) AS rank
		FROM memories m
		WHERE m.content_tsv @@ plainto_tsquery('english', $1) %s
		ORDER BY rank DESC
		LIMIT $%d
	`, nsCondition, next)

	args := append([]any{tsQuery}, nsArgs...)
	args = append(args, opts.Limit)

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, merrors.Wrap(merrors.KindStorageUnavailable, "full text search", err)
	}
	defer rows.Close()

	var results []storage.ScoredMemory
	for rows.Next() {
		var rank float64
		m, err := scanMemoryScannerWithExtra(rows, &rank)
		if err != nil {
			return nil, merrors.Wrap(merrors.KindStorageUnavailable, "scan search result", err)
		}
		if m.IsArchived && !opts.IncludeArchived {
			continue
		}
		if m.Importance < opts.MinImportance {
			continue
		}
		results = append(results, storage.ScoredMemory{Memory: m, Score: rank})
	}
	if err := rows.Err(); err != nil {
		return nil, merrors.Wrap(merrors.KindStorageUnavailable, "iterate search results", err)
	}
	return results, nil
}

// vectorSearchMaxCandidates bounds the brute-force BYTEA fallback scan, same
// cap as the sqlite backend, used only when pgvector is unavailable.
const vectorSearchMaxCandidates = 10_000

// VectorSearch uses pgvector's cosine-distance operator when the extension
// was detected at Open time; otherwise it falls back to a brute-force scan
// over the portable BYTEA embeddings, mirroring the sqlite backend.
func (s *MemoryStore) VectorSearch(ctx context.Context, queryEmbedding []float32, opts storage.SearchOptions) ([]storage.ScoredMemory, error) {
	opts.Normalize()
	if len(queryEmbedding) == 0 {
		return nil, nil
	}

	if s.pgvectorAvailable {
		return s.vectorSearchPgvector(ctx, queryEmbedding, opts)
	}
	return s.vectorSearchBruteForce(ctx, queryEmbedding, opts)
}

func (s *MemoryStore) vectorSearchPgvector(ctx context.Context, queryEmbedding []float32, opts storage.SearchOptions) ([]storage.ScoredMemory, error) {
	vec := pgvector.NewVector(queryEmbedding)

	rows, err := s.db.QueryContext(ctx, `
		SELECT v.memory_id, 1 - (v.embedding_vec <=> $1) AS score
		FROM vec_memories v
		JOIN memories m ON m.id = v.memory_id
		WHERE v.embedding_vec IS NOT NULL AND m.is_archived = FALSE
		ORDER BY v.embedding_vec <=> $1
		LIMIT $2
	`, vec, opts.Limit*4)
	if err != nil {
		// Extension may have been dropped after Open detected it; degrade
		// rather than fail the whole search.
		return s.vectorSearchBruteForce(ctx, queryEmbedding, opts)
	}
	defer rows.Close()

	var results []storage.ScoredMemory
	for rows.Next() {
		var memID string
		var score float64
		if err := rows.Scan(&memID, &score); err != nil {
			continue
		}
		row := s.db.QueryRowContext(ctx, memorySelectSQL+" WHERE id = $1", memID)
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
		results = append(results, storage.ScoredMemory{Memory: m, Score: score})
		if len(results) >= opts.Limit {
			break
		}
	}
	return results, nil
}

func (s *MemoryStore) vectorSearchBruteForce(ctx context.Context, queryEmbedding []float32, opts storage.SearchOptions) ([]storage.ScoredMemory, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT v.memory_id, v.embedding, v.dimension
		FROM vec_memories v
		JOIN memories m ON m.id = v.memory_id
		ORDER BY m.created_at DESC
		LIMIT $1
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
		row := s.db.QueryRowContext(ctx, memorySelectSQL+" WHERE id = $1", c.id)
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
// opts.Namespace, optionally widened to its ancestor scopes. startArg is the
// placeholder index ($N) to begin numbering from; it returns the next free
// index so callers can append further placeholders (e.g. LIMIT).
func namespaceCondition(opts storage.SearchOptions, startArg int) (string, []any, int) {
	var namespaces []types.Namespace
	if !opts.WidenNamespace {
		namespaces = []types.Namespace{opts.Namespace}
	} else {
		for cur := opts.Namespace; ; {
			namespaces = append(namespaces, cur)
			parent, ok := cur.Parent()
			if !ok {
				break
			}
			cur = parent
		}
	}

	placeholders := make([]string, len(namespaces))
	args := make([]any, len(namespaces))
	for i, ns := range namespaces {
		nsJSON, _ := json.Marshal(ns)
		placeholders[i] = fmt.Sprintf("$%d::jsonb", startArg+i)
		args[i] = string(nsJSON)
	}
	return fmt.Sprintf("AND m.namespace IN (%s)", strings.Join(placeholders, ", ")), args, startArg + len(namespaces)
}

// sanitizeTSQuery strips characters meaningful to plainto_tsquery's input
// parser; plainto_tsquery already tokenizes and ANDs terms, so unlike the
// sqlite FTS5 backend no OR-prefix construction is needed here.
func sanitizeTSQuery(query string) string {
	replacer := strings.NewReplacer(`'`, " ", `\`, " ")
	cleaned := strings.Join(strings.Fields(replacer.Replace(query)), " ")
	return cleaned
}
