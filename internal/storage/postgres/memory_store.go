// Package postgres implements the storage interfaces on PostgreSQL, for
// deployments that outgrow the embedded SQLite backend: pgvector ANN search
// instead of a brute-force cosine scan, and tsvector/GIN full text search
// instead of FTS5.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"log"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/rand/mnemosyne/internal/merrors"
	"github.com/rand/mnemosyne/internal/storage"
	"github.com/rand/mnemosyne/pkg/types"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// embeddingCacheSize bounds the in-process deserialized-embedding cache used
// by the BYTEA brute-force fallback scan to avoid repeatedly decoding the
// same embedding across searches. Unused when pgvector handles the ANN
// search itself.
const embeddingCacheSize = 10_000

// MemoryStore implements storage.MemoryStore, storage.LinkStore, and
// storage.EmbeddingProvider on PostgreSQL. pgvectorAvailable is detected at
// Open time and gates whether VectorSearch uses an ivfflat index or falls
// back to the BYTEA brute-force scan shared with the sqlite backend.
type MemoryStore struct {
	db                *sql.DB
	pgvectorAvailable bool
	embedCache        *lru.Cache[uuid.UUID, []float32]
}

// Open connects to dsn, applies pending migrations, and probes for the
// pgvector extension.
func Open(ctx context.Context, dsn string) (*MemoryStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	migrationsFS, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: migrations fs: %w", err)
	}
	mgr, err := storage.NewMigrationManager(db, migrationsFS)
	if err != nil {
		db.Close()
		return nil, err
	}
	if err := mgr.Up(); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: migration up: %w", err)
	}

	cache, err := lru.New[uuid.UUID, []float32](embeddingCacheSize)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: embed cache: %w", err)
	}

	s := &MemoryStore{db: db, embedCache: cache}
	s.ensurePgvector(ctx)
	return s, nil
}

// ensurePgvector attempts to enable the pgvector extension and add an ANN
// index; failure is logged and degrades to brute-force cosine scan rather
// than failing Open, since pgvector is an optional accelerant, not a
// required dependency.
func (s *MemoryStore) ensurePgvector(ctx context.Context) {
	if _, err := s.db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		log.Printf("postgres: pgvector extension not available (vector search uses brute-force scan): %v", err)
		return
	}
	if _, err := s.db.ExecContext(ctx, `
		DO $$
		BEGIN
			IF NOT EXISTS (
				SELECT 1 FROM information_schema.columns
				WHERE table_name = 'vec_memories' AND column_name = 'embedding_vec'
			) THEN
				ALTER TABLE vec_memories ADD COLUMN embedding_vec vector;
			END IF;
		END
		$$;
	`); err != nil {
		log.Printf("postgres: failed to add embedding_vec column: %v", err)
		return
	}
	if _, err := s.db.ExecContext(ctx, `
		DO $$
		BEGIN
			IF NOT EXISTS (SELECT 1 FROM pg_indexes WHERE indexname = 'idx_vec_memories_cosine') THEN
				IF EXISTS (SELECT 1 FROM vec_memories LIMIT 1) THEN
					EXECUTE 'CREATE INDEX idx_vec_memories_cosine ON vec_memories USING ivfflat (embedding_vec vector_cosine_ops) WITH (lists = 100)';
				END IF;
			END IF;
		END
		$$;
	`); err != nil {
		log.Printf("postgres: failed to create ivfflat index: %v", err)
		return
	}
	s.pgvectorAvailable = true
}

func (s *MemoryStore) Close() error { return s.db.Close() }

const memorySelectSQL = `
	SELECT id, namespace, content, summary, keywords, tags, context,
		memory_type, importance, confidence, related_files, related_entities,
		access_count, last_accessed_at, created_at, updated_at, expires_at,
		is_archived, archived_at, superseded_by, embedding_model
	FROM memories
`

func (s *MemoryStore) Store(ctx context.Context, m *types.Memory) error {
	if err := m.Validate(); err != nil {
		return merrors.Wrap(merrors.KindInvalidParams, "invalid memory", err)
	}

	nsJSON, _ := json.Marshal(m.Namespace)
	keywordsJSON, _ := json.Marshal(m.Keywords)
	tagsJSON, _ := json.Marshal(m.Tags)
	filesJSON, _ := json.Marshal(m.RelatedFiles)
	entitiesJSON, _ := json.Marshal(m.RelatedEntities)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return merrors.Wrap(merrors.KindStorageUnavailable, "begin tx", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO memories (
			id, namespace, content, summary, keywords, tags, context,
			memory_type, importance, confidence, related_files, related_entities,
			access_count, last_accessed_at, created_at, updated_at, expires_at,
			is_archived, archived_at, superseded_by, embedding_model
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)
	`, m.ID.String(), string(nsJSON), m.Content, m.Summary, string(keywordsJSON), string(tagsJSON), m.Context,
		string(m.MemoryType), m.Importance, m.Confidence, string(filesJSON), string(entitiesJSON),
		m.AccessCount, m.LastAccessedAt, m.CreatedAt, m.UpdatedAt, nullableTime(m.ExpiresAt),
		m.IsArchived, nullableTime(m.ArchivedAt), nullableUUID(m.SupersededBy), m.EmbeddingModel)
	if err != nil {
		return merrors.Wrap(merrors.KindStorageUnavailable, "insert memory", err)
	}

	if err := insertAudit(ctx, tx, types.AuditCreate, &m.ID, "{}"); err != nil {
		return err
	}
	return commitOrWrap(tx)
}

func (s *MemoryStore) Get(ctx context.Context, id uuid.UUID, includeArchived bool) (*types.Memory, error) {
	query := memorySelectSQL + " WHERE id = $1"
	if !includeArchived {
		query += " AND is_archived = FALSE"
	}
	row := s.db.QueryRowContext(ctx, query, id.String())
	m, err := scanMemory(row)
	if err == sql.ErrNoRows {
		return nil, merrors.New(merrors.KindNotFound, "memory not found")
	}
	if err != nil {
		return nil, merrors.Wrap(merrors.KindStorageUnavailable, "get memory", err)
	}
	return m, nil
}

func (s *MemoryStore) List(ctx context.Context, opts storage.ListOptions) (*storage.PaginatedResult[types.Memory], error) {
	opts.Normalize()

	nsJSON, _ := json.Marshal(opts.Namespace)
	query := memorySelectSQL + " WHERE namespace = $1::jsonb"
	args := []any{string(nsJSON)}
	argN := 2

	if !opts.IncludeArchived {
		query += " AND is_archived = FALSE"
	}
	if opts.MemoryType != "" {
		query += fmt.Sprintf(" AND memory_type = $%d", argN)
		args = append(args, opts.MemoryType)
		argN++
	}
	if opts.MinImportance > 0 {
		query += fmt.Sprintf(" AND importance >= $%d", argN)
		args = append(args, opts.MinImportance)
		argN++
	}

	query += fmt.Sprintf(" ORDER BY %s %s LIMIT $%d OFFSET $%d", opts.SortBy, opts.SortOrder, argN, argN+1)
	args = append(args, opts.Limit, (opts.Page-1)*opts.Limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, merrors.Wrap(merrors.KindStorageUnavailable, "list memories", err)
	}

	items, err := scanMemoryRows(rows)
	if err != nil {
		return nil, err
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM memories WHERE namespace = $1::jsonb"
	if !opts.IncludeArchived {
		countQuery += " AND is_archived = FALSE"
	}
	if err := s.db.QueryRowContext(ctx, countQuery, string(nsJSON)).Scan(&total); err != nil {
		return nil, merrors.Wrap(merrors.KindStorageUnavailable, "count memories", err)
	}

	return &storage.PaginatedResult[types.Memory]{Items: items, Total: total, Page: opts.Page, Limit: opts.Limit}, nil
}

func (s *MemoryStore) Update(ctx context.Context, id uuid.UUID, patch storage.MemoryPatch) (*types.Memory, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, merrors.Wrap(merrors.KindStorageUnavailable, "begin tx", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, memorySelectSQL+" WHERE id = $1 FOR UPDATE", id.String())
	m, err := scanMemory(row)
	if err == sql.ErrNoRows {
		return nil, merrors.New(merrors.KindNotFound, "memory not found")
	}
	if err != nil {
		return nil, merrors.Wrap(merrors.KindStorageUnavailable, "get memory for update", err)
	}

	if patch.Content != nil {
		m.Content = *patch.Content
	}
	if patch.Importance != nil {
		m.Importance = *patch.Importance
	}
	if patch.Tags != nil {
		m.Tags = patch.Tags
	}
	if patch.RelatedFiles != nil {
		m.RelatedFiles = patch.RelatedFiles
	}
	if patch.RelatedEntities != nil {
		m.RelatedEntities = patch.RelatedEntities
	}
	m.UpdatedAt = time.Now().UTC()

	if err := m.Validate(); err != nil {
		return nil, merrors.Wrap(merrors.KindInvalidParams, "invalid patch", err)
	}

	tagsJSON, _ := json.Marshal(m.Tags)
	filesJSON, _ := json.Marshal(m.RelatedFiles)
	entitiesJSON, _ := json.Marshal(m.RelatedEntities)

	_, err = tx.ExecContext(ctx, `
		UPDATE memories SET content = $1, importance = $2, tags = $3,
			related_files = $4, related_entities = $5, updated_at = $6
		WHERE id = $7
	`, m.Content, m.Importance, string(tagsJSON), string(filesJSON), string(entitiesJSON), m.UpdatedAt, id.String())
	if err != nil {
		return nil, merrors.Wrap(merrors.KindStorageUnavailable, "update memory", err)
	}

	if err := insertAudit(ctx, tx, types.AuditUpdate, &id, "{}"); err != nil {
		return nil, err
	}
	if err := commitOrWrap(tx); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *MemoryStore) ApplyEnrichment(ctx context.Context, id uuid.UUID, patch storage.EnrichmentPatch) (*types.Memory, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, merrors.Wrap(merrors.KindStorageUnavailable, "begin tx", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, memorySelectSQL+" WHERE id = $1 FOR UPDATE", id.String())
	m, err := scanMemory(row)
	if err == sql.ErrNoRows {
		return nil, merrors.New(merrors.KindNotFound, "memory not found")
	}
	if err != nil {
		return nil, merrors.Wrap(merrors.KindStorageUnavailable, "get memory for enrichment", err)
	}

	m.Summary = patch.Summary
	m.Keywords = patch.Keywords
	m.Tags = patch.Tags
	m.MemoryType = patch.MemoryType
	m.Importance = patch.Importance
	m.Confidence = patch.Confidence
	m.UpdatedAt = time.Now().UTC()

	if err := m.Validate(); err != nil {
		return nil, merrors.Wrap(merrors.KindInvalidParams, "invalid enrichment", err)
	}

	keywordsJSON, _ := json.Marshal(m.Keywords)
	tagsJSON, _ := json.Marshal(m.Tags)

	_, err = tx.ExecContext(ctx, `
		UPDATE memories SET summary = $1, keywords = $2, tags = $3, memory_type = $4,
			importance = $5, confidence = $6, updated_at = $7
		WHERE id = $8
	`, m.Summary, string(keywordsJSON), string(tagsJSON), string(m.MemoryType),
		m.Importance, m.Confidence, m.UpdatedAt, id.String())
	if err != nil {
		return nil, merrors.Wrap(merrors.KindStorageUnavailable, "apply enrichment", err)
	}

	if err := insertAudit(ctx, tx, types.AuditUpdate, &id, "{}"); err != nil {
		return nil, err
	}
	if err := commitOrWrap(tx); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *MemoryStore) Archive(ctx context.Context, id uuid.UUID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return merrors.Wrap(merrors.KindStorageUnavailable, "begin tx", err)
	}
	defer tx.Rollback()

	var alreadyArchived bool
	err = tx.QueryRowContext(ctx, "SELECT is_archived FROM memories WHERE id = $1", id.String()).Scan(&alreadyArchived)
	if err == sql.ErrNoRows {
		return merrors.New(merrors.KindNotFound, "memory not found")
	}
	if err != nil {
		return merrors.Wrap(merrors.KindStorageUnavailable, "check archived state", err)
	}
	if alreadyArchived {
		return tx.Commit()
	}

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx, `
		UPDATE memories SET is_archived = TRUE, archived_at = $1, updated_at = $1 WHERE id = $2
	`, now, id.String()); err != nil {
		return merrors.Wrap(merrors.KindStorageUnavailable, "archive memory", err)
	}

	if err := insertAudit(ctx, tx, types.AuditArchive, &id, "{}"); err != nil {
		return err
	}
	return commitOrWrap(tx)
}

func (s *MemoryStore) Supersede(ctx context.Context, newID, oldID uuid.UUID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return merrors.Wrap(merrors.KindStorageUnavailable, "begin tx", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx, `
		UPDATE memories SET is_archived = TRUE, archived_at = $1, superseded_by = $2, updated_at = $1
		WHERE id = $3 AND is_archived = FALSE
	`, now, newID.String(), oldID.String())
	if err != nil {
		return merrors.Wrap(merrors.KindStorageUnavailable, "supersede memory", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return merrors.New(merrors.KindNotFound, "memory not found or already archived")
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO memory_links (source_id, target_id, link_type, strength, reason, created_at, user_created)
		VALUES ($1, $2, 'supersedes', 1.0, '', $3, TRUE)
		ON CONFLICT (source_id, target_id, link_type) DO NOTHING
	`, newID.String(), oldID.String(), now); err != nil {
		return merrors.Wrap(merrors.KindStorageUnavailable, "create supersedes link", err)
	}

	if err := insertAudit(ctx, tx, types.AuditSupersede, &oldID, "{}"); err != nil {
		return err
	}
	if err := insertAudit(ctx, tx, types.AuditLinkCreate, &newID, "{}"); err != nil {
		return err
	}
	return commitOrWrap(tx)
}

func (s *MemoryStore) HardDelete(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM memories WHERE id = $1", id.String())
	if err != nil {
		return merrors.Wrap(merrors.KindStorageUnavailable, "hard delete memory", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return merrors.New(merrors.KindNotFound, "memory not found")
	}
	return nil
}

func (s *MemoryStore) IncrementAccessCount(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE memories SET access_count = access_count + 1, last_accessed_at = $1 WHERE id = $2
	`, time.Now().UTC(), id.String())
	if err != nil {
		return merrors.Wrap(merrors.KindStorageUnavailable, "increment access count", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return merrors.New(merrors.KindNotFound, "memory not found")
	}
	return nil
}

func (s *MemoryStore) AllNonArchived(ctx context.Context, pageSize int, visit func(*types.Memory) bool) error {
	if pageSize < 1 {
		pageSize = 100
	}
	lastID := ""
	for {
		rows, err := s.db.QueryContext(ctx, memorySelectSQL+`
			WHERE is_archived = FALSE AND id > $1 ORDER BY id LIMIT $2
		`, lastID, pageSize)
		if err != nil {
			return merrors.Wrap(merrors.KindStorageUnavailable, "scan non-archived memories", err)
		}
		batch, err := scanMemoryRows(rows)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}
		for _, m := range batch {
			if !visit(m) {
				return nil
			}
		}
		lastID = batch[len(batch)-1].ID.String()
	}
}

func (s *MemoryStore) RecordImportanceChange(ctx context.Context, h types.ImportanceHistory) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return merrors.Wrap(merrors.KindStorageUnavailable, "begin tx", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO importance_history (memory_id, timestamp, old_importance, new_importance, reason)
		VALUES ($1,$2,$3,$4,$5)
	`, h.MemoryID.String(), h.Timestamp, h.OldImportance, h.NewImportance, h.Reason)
	if err != nil {
		return merrors.Wrap(merrors.KindStorageUnavailable, "record importance change", err)
	}

	if err := insertAudit(ctx, tx, types.AuditUpdate, &h.MemoryID, "{}"); err != nil {
		return err
	}
	return commitOrWrap(tx)
}

func (s *MemoryStore) FirstImportance(ctx context.Context, id uuid.UUID) (int, error) {
	var importance int
	err := s.db.QueryRowContext(ctx, `
		SELECT old_importance FROM importance_history WHERE memory_id = $1 ORDER BY timestamp ASC LIMIT 1
	`, id.String()).Scan(&importance)
	if err == sql.ErrNoRows {
		return s.currentImportance(ctx, id)
	}
	if err != nil {
		return 0, merrors.Wrap(merrors.KindStorageUnavailable, "first importance", err)
	}
	return importance, nil
}

func (s *MemoryStore) currentImportance(ctx context.Context, id uuid.UUID) (int, error) {
	var importance int
	err := s.db.QueryRowContext(ctx, "SELECT importance FROM memories WHERE id = $1", id.String()).Scan(&importance)
	if err == sql.ErrNoRows {
		return 0, merrors.New(merrors.KindNotFound, "memory not found")
	}
	if err != nil {
		return 0, merrors.Wrap(merrors.KindStorageUnavailable, "current importance", err)
	}
	return importance, nil
}

func insertAudit(ctx context.Context, tx *sql.Tx, op types.AuditOperation, memoryID *uuid.UUID, metadata string) error {
	var idStr *string
	if memoryID != nil {
		s := memoryID.String()
		idStr = &s
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO audit_log (id, timestamp, operation, memory_id, metadata) VALUES ($1,$2,$3,$4,$5)
	`, uuid.New().String(), time.Now().UTC(), string(op), idStr, metadata)
	if err != nil {
		return merrors.Wrap(merrors.KindStorageUnavailable, "insert audit row", err)
	}
	return nil
}

func commitOrWrap(tx *sql.Tx) error {
	if err := tx.Commit(); err != nil {
		return merrors.Wrap(merrors.KindStorageUnavailable, "commit tx", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMemory(row rowScanner) (*types.Memory, error) {
	return scanMemoryScannerWithExtra(row)
}

func scanMemoryRows(rows *sql.Rows) ([]*types.Memory, error) {
	defer rows.Close()
	var out []*types.Memory
	for rows.Next() {
		m, err := scanMemoryScannerWithExtra(rows)
		if err != nil {
			return nil, merrors.Wrap(merrors.KindStorageUnavailable, "scan memory row", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, merrors.Wrap(merrors.KindStorageUnavailable, "iterate memory rows", err)
	}
	return out, nil
}

// scanMemoryScannerWithExtra scans the 21 standard memorySelectSQL columns
// plus any trailing extra destinations (e.g. a search rank column).
func scanMemoryScannerWithExtra(row rowScanner, extra ...any) (*types.Memory, error) {
	var m types.Memory
	var idStr, nsJSON, keywordsJSON, tagsJSON, filesJSON, entitiesJSON string
	var memType string
	var expiresAt, archivedAt sql.NullTime
	var supersededBy sql.NullString

	dest := []any{
		&idStr, &nsJSON, &m.Content, &m.Summary, &keywordsJSON, &tagsJSON, &m.Context,
		&memType, &m.Importance, &m.Confidence, &filesJSON, &entitiesJSON,
		&m.AccessCount, &m.LastAccessedAt, &m.CreatedAt, &m.UpdatedAt, &expiresAt,
		&m.IsArchived, &archivedAt, &supersededBy, &m.EmbeddingModel,
	}
	dest = append(dest, extra...)

	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("corrupt memory id %q: %w", idStr, err)
	}
	m.ID = id
	m.MemoryType = types.MemoryType(memType)

	if err := json.Unmarshal([]byte(nsJSON), &m.Namespace); err != nil {
		return nil, fmt.Errorf("corrupt namespace JSON: %w", err)
	}
	_ = json.Unmarshal([]byte(keywordsJSON), &m.Keywords)
	_ = json.Unmarshal([]byte(tagsJSON), &m.Tags)
	_ = json.Unmarshal([]byte(filesJSON), &m.RelatedFiles)
	_ = json.Unmarshal([]byte(entitiesJSON), &m.RelatedEntities)

	if expiresAt.Valid {
		t := expiresAt.Time
		m.ExpiresAt = &t
	}
	if archivedAt.Valid {
		t := archivedAt.Time
		m.ArchivedAt = &t
	}
	if supersededBy.Valid {
		parsed, err := uuid.Parse(supersededBy.String)
		if err == nil {
			m.SupersededBy = &parsed
		}
	}

	return &m, nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func nullableUUID(id *uuid.UUID) any {
	if id == nil {
		return nil
	}
	return id.String()
}
