// Package sqlite implements the storage interfaces on an embedded
// modernc.org/sqlite database: single-writer pool, WAL mode, and startup
// recovery from a stale WAL left by a crashed prior process.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"log"
	"net/url"
	"os"
	"os/exec"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/rand/mnemosyne/internal/merrors"
	"github.com/rand/mnemosyne/internal/storage"
	"github.com/rand/mnemosyne/pkg/types"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// embeddingCacheSize bounds the in-process deserialized-embedding cache used
// by VectorSearch's brute-force scan to avoid repeatedly decoding the same
// BLOB across searches.
const embeddingCacheSize = 10_000

// MemoryStore implements storage.MemoryStore, storage.LinkStore, and
// storage.EmbeddingProvider using SQLite.
type MemoryStore struct {
	db         *sql.DB
	embedCache *lru.Cache[uuid.UUID, []float32]
}

// Open opens a SQLite database at dsn, configuring WAL mode and a
// single-writer pool, applies pending migrations, and recovers from a
// stale WAL left by a crashed prior process if the initial open fails.
func Open(ctx context.Context, dsn string) (*MemoryStore, error) {
	store, err := open(dsn)
	if err == nil {
		return finishOpen(ctx, store)
	}

	if !isRecoverableWALError(err) {
		return nil, err
	}

	dbPath := dbPathFromDSN(dsn)
	if dbPath == "" || !isWALStale(dbPath) {
		return nil, err
	}

	removeStaleWAL(dbPath)

	store, retryErr := open(dsn)
	if retryErr != nil {
		return nil, fmt.Errorf("sqlite: open failed after WAL recovery: %w (original: %v)", retryErr, err)
	}

	log.Printf("sqlite: recovered from stale WAL files for %s", dbPath)
	return finishOpen(ctx, store)
}

func finishOpen(ctx context.Context, store *MemoryStore) (*MemoryStore, error) {
	migrationsFS, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		store.db.Close()
		return nil, fmt.Errorf("sqlite: migrations fs: %w", err)
	}
	mgr, err := storage.NewMigrationManager(store.db, migrationsFS)
	if err != nil {
		store.db.Close()
		return nil, err
	}
	if err := mgr.Up(); err != nil {
		store.db.Close()
		return nil, fmt.Errorf("sqlite: migration up: %w", err)
	}
	_ = ctx
	return store, nil
}

func open(dsn string) (*MemoryStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}

	// SQLite has exactly one writer at a time; a single pooled connection
	// serializes mutations while WAL mode lets reads proceed without
	// blocking on the writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite: %s: %w", pragma, err)
		}
	}

	cache, err := lru.New[uuid.UUID, []float32](embeddingCacheSize)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: embed cache: %w", err)
	}

	return &MemoryStore{db: db, embedCache: cache}, nil
}

// Close checkpoints the WAL back into the main database file (TRUNCATE mode
// removes the -shm/-wal files) so a subsequent process opening the same
// database never observes stale WAL state.
func (s *MemoryStore) Close() error {
	if s.db == nil {
		return nil
	}
	if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		log.Printf("sqlite: WAL checkpoint on close failed (non-fatal): %v", err)
	}
	return s.db.Close()
}

func (s *MemoryStore) Store(ctx context.Context, m *types.Memory) error {
	if err := m.Validate(); err != nil {
		return merrors.Wrap(merrors.KindInvalidParams, "invalid memory", err)
	}

	nsJSON, err := json.Marshal(m.Namespace)
	if err != nil {
		return merrors.Wrap(merrors.KindInternalError, "marshal namespace", err)
	}
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
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		m.ID.String(), string(nsJSON), m.Content, m.Summary, string(keywordsJSON), string(tagsJSON), m.Context,
		string(m.MemoryType), m.Importance, m.Confidence, string(filesJSON), string(entitiesJSON),
		m.AccessCount, timeString(m.LastAccessedAt), timeString(m.CreatedAt), timeString(m.UpdatedAt), nullableTimeString(m.ExpiresAt),
		boolToInt(m.IsArchived), nullableTimeString(m.ArchivedAt), nullableUUIDString(m.SupersededBy), m.EmbeddingModel,
	)
	if err != nil {
		return merrors.Wrap(merrors.KindStorageUnavailable, "insert memory", err)
	}

	if err := insertAudit(ctx, tx, types.AuditCreate, &m.ID, "{}"); err != nil {
		return err
	}

	return commitOrWrap(tx)
}

func (s *MemoryStore) Get(ctx context.Context, id uuid.UUID, includeArchived bool) (*types.Memory, error) {
	row := s.db.QueryRowContext(ctx, memorySelectSQL+" WHERE id = ?", id.String())
	m, err := scanMemory(row)
	if err == sql.ErrNoRows {
		return nil, merrors.New(merrors.KindNotFound, "memory not found")
	}
	if err != nil {
		return nil, merrors.Wrap(merrors.KindStorageUnavailable, "get memory", err)
	}
	if m.IsArchived && !includeArchived {
		return nil, merrors.New(merrors.KindNotFound, "memory is archived")
	}
	return m, nil
}

func (s *MemoryStore) List(ctx context.Context, opts storage.ListOptions) (*storage.PaginatedResult[types.Memory], error) {
	opts.Normalize()

	var conditions []string
	var args []any

	nsJSON, _ := json.Marshal(opts.Namespace)
	conditions = append(conditions, "namespace = ?")
	args = append(args, string(nsJSON))

	if !opts.IncludeArchived {
		conditions = append(conditions, "is_archived = 0")
	}
	if opts.MemoryType != "" {
		conditions = append(conditions, "memory_type = ?")
		args = append(args, opts.MemoryType)
	}
	if opts.MinImportance > 1 {
		conditions = append(conditions, "importance >= ?")
		args = append(args, opts.MinImportance)
	}

	where := " WHERE " + strings.Join(conditions, " AND ")
	query := memorySelectSQL + where + fmt.Sprintf(" ORDER BY %s %s", opts.SortBy, strings.ToUpper(opts.SortOrder))
	query += " LIMIT ? OFFSET ?"
	args = append(args, opts.Limit, opts.Offset())

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, merrors.Wrap(merrors.KindStorageUnavailable, "list memories", err)
	}
	defer rows.Close()

	var items []types.Memory
	for rows.Next() {
		m, err := scanMemoryRows(rows)
		if err != nil {
			return nil, merrors.Wrap(merrors.KindStorageUnavailable, "scan memory", err)
		}
		items = append(items, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, merrors.Wrap(merrors.KindStorageUnavailable, "iterate memories", err)
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM memories" + where
	if err := s.db.QueryRowContext(ctx, countQuery, args[:len(args)-2]...).Scan(&total); err != nil {
		return nil, merrors.Wrap(merrors.KindStorageUnavailable, "count memories", err)
	}

	return &storage.PaginatedResult[types.Memory]{
		Items:    items,
		Total:    total,
		Page:     opts.Page,
		PageSize: opts.Limit,
		HasMore:  opts.Offset()+len(items) < total,
	}, nil
}

func (s *MemoryStore) Update(ctx context.Context, id uuid.UUID, patch storage.MemoryPatch) (*types.Memory, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, merrors.Wrap(merrors.KindStorageUnavailable, "begin tx", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, memorySelectSQL+" WHERE id = ?", id.String())
	existing, err := scanMemory(row)
	if err == sql.ErrNoRows {
		return nil, merrors.New(merrors.KindNotFound, "memory not found")
	}
	if err != nil {
		return nil, merrors.Wrap(merrors.KindStorageUnavailable, "get memory for update", err)
	}

	if patch.Content != nil {
		existing.Content = *patch.Content
	}
	if patch.Importance != nil {
		existing.Importance = *patch.Importance
	}
	if patch.Tags != nil {
		existing.Tags = patch.Tags
	}
	if patch.RelatedFiles != nil {
		existing.RelatedFiles = patch.RelatedFiles
	}
	if patch.RelatedEntities != nil {
		existing.RelatedEntities = patch.RelatedEntities
	}
	existing.UpdatedAt = time.Now().UTC()

	if err := existing.Validate(); err != nil {
		return nil, merrors.Wrap(merrors.KindInvalidParams, "invalid update", err)
	}

	tagsJSON, _ := json.Marshal(existing.Tags)
	filesJSON, _ := json.Marshal(existing.RelatedFiles)
	entitiesJSON, _ := json.Marshal(existing.RelatedEntities)

	_, err = tx.ExecContext(ctx, `
		UPDATE memories SET content = ?, importance = ?, tags = ?, related_files = ?,
			related_entities = ?, updated_at = ?
		WHERE id = ?
	`, existing.Content, existing.Importance, string(tagsJSON), string(filesJSON), string(entitiesJSON),
		timeString(existing.UpdatedAt), id.String())
	if err != nil {
		return nil, merrors.Wrap(merrors.KindStorageUnavailable, "update memory", err)
	}

	if err := insertAudit(ctx, tx, types.AuditUpdate, &id, "{}"); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, merrors.Wrap(merrors.KindStorageUnavailable, "commit update", err)
	}
	return existing, nil
}

func (s *MemoryStore) ApplyEnrichment(ctx context.Context, id uuid.UUID, patch storage.EnrichmentPatch) (*types.Memory, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, merrors.Wrap(merrors.KindStorageUnavailable, "begin tx", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, memorySelectSQL+" WHERE id = ?", id.String())
	existing, err := scanMemory(row)
	if err == sql.ErrNoRows {
		return nil, merrors.New(merrors.KindNotFound, "memory not found")
	}
	if err != nil {
		return nil, merrors.Wrap(merrors.KindStorageUnavailable, "get memory for enrichment", err)
	}

	existing.Summary = patch.Summary
	existing.Keywords = patch.Keywords
	existing.Tags = patch.Tags
	existing.MemoryType = patch.MemoryType
	existing.Importance = patch.Importance
	existing.Confidence = patch.Confidence
	existing.UpdatedAt = time.Now().UTC()

	if err := existing.Validate(); err != nil {
		return nil, merrors.Wrap(merrors.KindInvalidParams, "invalid enrichment", err)
	}

	keywordsJSON, _ := json.Marshal(existing.Keywords)
	tagsJSON, _ := json.Marshal(existing.Tags)

	_, err = tx.ExecContext(ctx, `
		UPDATE memories SET summary = ?, keywords = ?, tags = ?, memory_type = ?,
			importance = ?, confidence = ?, updated_at = ?
		WHERE id = ?
	`, existing.Summary, string(keywordsJSON), string(tagsJSON), string(existing.MemoryType),
		existing.Importance, existing.Confidence, timeString(existing.UpdatedAt), id.String())
	if err != nil {
		return nil, merrors.Wrap(merrors.KindStorageUnavailable, "apply enrichment", err)
	}

	if err := insertAudit(ctx, tx, types.AuditUpdate, &id, "{}"); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, merrors.Wrap(merrors.KindStorageUnavailable, "commit enrichment", err)
	}
	return existing, nil
}

func (s *MemoryStore) Archive(ctx context.Context, id uuid.UUID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return merrors.Wrap(merrors.KindStorageUnavailable, "begin tx", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE memories SET is_archived = 1, archived_at = ? WHERE id = ? AND is_archived = 0`,
		timeString(time.Now().UTC()), id.String())
	if err != nil {
		return merrors.Wrap(merrors.KindStorageUnavailable, "archive memory", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		// Idempotent: already archived or missing. Distinguish by existence.
		var exists int
		_ = tx.QueryRowContext(ctx, "SELECT 1 FROM memories WHERE id = ?", id.String()).Scan(&exists)
		if exists == 0 {
			return merrors.New(merrors.KindNotFound, "memory not found")
		}
		return tx.Commit()
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

	res, err := tx.ExecContext(ctx,
		`UPDATE memories SET is_archived = 1, archived_at = ?, superseded_by = ? WHERE id = ? AND is_archived = 0`,
		timeString(time.Now().UTC()), newID.String(), oldID.String())
	if err != nil {
		return merrors.Wrap(merrors.KindStorageUnavailable, "supersede memory", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return merrors.New(merrors.KindNotFound, "superseded memory not found or already archived")
	}

	if err := insertAudit(ctx, tx, types.AuditSupersede, &oldID, "{}"); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO memory_links (source_id, target_id, link_type, strength, reason, created_at, user_created)
		VALUES (?, ?, 'supersedes', 1.0, 'supersession', ?, 1)
		ON CONFLICT(source_id, target_id, link_type) DO NOTHING
	`, newID.String(), oldID.String(), timeString(time.Now().UTC()))
	if err != nil {
		return merrors.Wrap(merrors.KindStorageUnavailable, "create supersedes link", err)
	}

	if err := insertAudit(ctx, tx, types.AuditLinkCreate, &newID, "{}"); err != nil {
		return err
	}

	return commitOrWrap(tx)
}

func (s *MemoryStore) HardDelete(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM memories WHERE id = ?", id.String())
	if err != nil {
		return merrors.Wrap(merrors.KindStorageUnavailable, "hard delete memory", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return merrors.New(merrors.KindNotFound, "memory not found")
	}
	return nil
}

// IncrementAccessCount uses a single atomic UPDATE so concurrent accesses
// cannot race on a read-modify-write of access_count.
func (s *MemoryStore) IncrementAccessCount(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE memories SET access_count = access_count + 1, last_accessed_at = ?
		WHERE id = ? AND is_archived = 0
	`, timeString(time.Now().UTC()), id.String())
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
	var lastID string
	for {
		query := memorySelectSQL + " WHERE is_archived = 0 AND id > ? ORDER BY id LIMIT ?"
		rows, err := s.db.QueryContext(ctx, query, lastID, pageSize)
		if err != nil {
			return merrors.Wrap(merrors.KindStorageUnavailable, "scan non-archived memories", err)
		}

		var page []*types.Memory
		for rows.Next() {
			m, err := scanMemoryRows(rows)
			if err != nil {
				rows.Close()
				return merrors.Wrap(merrors.KindStorageUnavailable, "scan memory", err)
			}
			page = append(page, m)
		}
		rows.Close()

		if len(page) == 0 {
			return nil
		}
		for _, m := range page {
			if !visit(m) {
				return nil
			}
		}
		lastID = page[len(page)-1].ID.String()
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
		VALUES (?, ?, ?, ?, ?)
	`, h.MemoryID.String(), timeString(h.Timestamp), h.OldImportance, h.NewImportance, h.Reason)
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
		SELECT old_importance FROM importance_history WHERE memory_id = ? ORDER BY timestamp ASC LIMIT 1
	`, id.String()).Scan(&importance)
	if err == sql.ErrNoRows {
		err = s.db.QueryRowContext(ctx, "SELECT importance FROM memories WHERE id = ?", id.String()).Scan(&importance)
		if err == sql.ErrNoRows {
			return 0, merrors.New(merrors.KindNotFound, "memory not found")
		}
	}
	if err != nil {
		return 0, merrors.Wrap(merrors.KindStorageUnavailable, "first importance", err)
	}
	return importance, nil
}

func insertAudit(ctx context.Context, tx *sql.Tx, op types.AuditOperation, memoryID *uuid.UUID, metadata string) error {
	var midStr any
	if memoryID != nil {
		midStr = memoryID.String()
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO audit_log (id, timestamp, operation, memory_id, metadata) VALUES (?, ?, ?, ?, ?)
	`, uuid.New().String(), timeString(time.Now().UTC()), string(op), midStr, metadata)
	if err != nil {
		return merrors.Wrap(merrors.KindStorageUnavailable, "insert audit row", err)
	}
	return nil
}

func commitOrWrap(tx *sql.Tx) error {
	if err := tx.Commit(); err != nil {
		return merrors.Wrap(merrors.KindStorageUnavailable, "commit transaction", err)
	}
	return nil
}

const memorySelectSQL = `
	SELECT id, namespace, content, summary, keywords, tags, context,
		memory_type, importance, confidence, related_files, related_entities,
		access_count, last_accessed_at, created_at, updated_at, expires_at,
		is_archived, archived_at, superseded_by, embedding_model
	FROM memories
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMemory(row *sql.Row) (*types.Memory, error) {
	return scanMemoryScanner(row)
}

func scanMemoryRows(rows *sql.Rows) (*types.Memory, error) {
	return scanMemoryScanner(rows)
}

// scanMemoryScannerWithExtra scans the standard memory column set plus one
// trailing numeric column (e.g. FTS5 rank) into extra.
func scanMemoryScannerWithExtra(s rowScanner, extra *float64) (*types.Memory, error) {
	var m types.Memory
	var idStr, nsJSON, keywordsJSON, tagsJSON, filesJSON, entitiesJSON string
	var lastAccessed, createdAt, updatedAt string
	var expiresAt, archivedAt, supersededBy sql.NullString
	var isArchived int

	err := s.Scan(
		&idStr, &nsJSON, &m.Content, &m.Summary, &keywordsJSON, &tagsJSON, &m.Context,
		&m.MemoryType, &m.Importance, &m.Confidence, &filesJSON, &entitiesJSON,
		&m.AccessCount, &lastAccessed, &createdAt, &updatedAt, &expiresAt,
		&isArchived, &archivedAt, &supersededBy, &m.EmbeddingModel,
		extra,
	)
	if err != nil {
		return nil, err
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("corrupt memory id %q: %w", idStr, err)
	}
	m.ID = id

	if err := json.Unmarshal([]byte(nsJSON), &m.Namespace); err != nil {
		m.Namespace = types.Global()
	}
	_ = json.Unmarshal([]byte(keywordsJSON), &m.Keywords)
	_ = json.Unmarshal([]byte(tagsJSON), &m.Tags)
	_ = json.Unmarshal([]byte(filesJSON), &m.RelatedFiles)
	_ = json.Unmarshal([]byte(entitiesJSON), &m.RelatedEntities)

	m.LastAccessedAt = parseTime(lastAccessed)
	m.CreatedAt = parseTime(createdAt)
	m.UpdatedAt = parseTime(updatedAt)
	if expiresAt.Valid {
		t := parseTime(expiresAt.String)
		m.ExpiresAt = &t
	}
	m.IsArchived = isArchived != 0
	if archivedAt.Valid {
		t := parseTime(archivedAt.String)
		m.ArchivedAt = &t
	}
	if supersededBy.Valid {
		if u, err := uuid.Parse(supersededBy.String); err == nil {
			m.SupersededBy = &u
		}
	}

	return &m, nil
}

func scanMemoryScanner(s rowScanner) (*types.Memory, error) {
	var m types.Memory
	var idStr, nsJSON, keywordsJSON, tagsJSON, filesJSON, entitiesJSON string
	var lastAccessed, createdAt, updatedAt string
	var expiresAt, archivedAt, supersededBy sql.NullString
	var isArchived int

	err := s.Scan(
		&idStr, &nsJSON, &m.Content, &m.Summary, &keywordsJSON, &tagsJSON, &m.Context,
		&m.MemoryType, &m.Importance, &m.Confidence, &filesJSON, &entitiesJSON,
		&m.AccessCount, &lastAccessed, &createdAt, &updatedAt, &expiresAt,
		&isArchived, &archivedAt, &supersededBy, &m.EmbeddingModel,
	)
	if err != nil {
		return nil, err
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("corrupt memory id %q: %w", idStr, err)
	}
	m.ID = id

	if err := json.Unmarshal([]byte(nsJSON), &m.Namespace); err != nil {
		m.Namespace = types.Global()
	}
	_ = json.Unmarshal([]byte(keywordsJSON), &m.Keywords)
	_ = json.Unmarshal([]byte(tagsJSON), &m.Tags)
	_ = json.Unmarshal([]byte(filesJSON), &m.RelatedFiles)
	_ = json.Unmarshal([]byte(entitiesJSON), &m.RelatedEntities)

	m.LastAccessedAt = parseTime(lastAccessed)
	m.CreatedAt = parseTime(createdAt)
	m.UpdatedAt = parseTime(updatedAt)
	if expiresAt.Valid {
		t := parseTime(expiresAt.String)
		m.ExpiresAt = &t
	}
	m.IsArchived = isArchived != 0
	if archivedAt.Valid {
		t := parseTime(archivedAt.String)
		m.ArchivedAt = &t
	}
	if supersededBy.Valid {
		if u, err := uuid.Parse(supersededBy.String); err == nil {
			m.SupersededBy = &u
		}
	}

	return &m, nil
}

func timeString(t time.Time) string {
	if t.IsZero() {
		t = time.Now().UTC()
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func nullableTimeString(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return timeString(*t)
}

func nullableUUIDString(u *uuid.UUID) any {
	if u == nil {
		return nil
	}
	return u.String()
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// dbPathFromDSN extracts the filesystem path from a SQLite DSN, handling
// bare paths and file: URIs. Returns "" for in-memory databases.
func dbPathFromDSN(dsn string) string {
	if dsn == ":memory:" || dsn == "" {
		return ""
	}
	if strings.HasPrefix(dsn, "file:") {
		u, err := url.Parse(dsn)
		if err != nil {
			return ""
		}
		path := u.Path
		if path == "" {
			path = u.Opaque
		}
		if path == ":memory:" {
			return ""
		}
		return path
	}
	return dsn
}

// isRecoverableWALError matches errors caused by stale WAL files left behind
// by a process killed without a clean checkpoint.
func isRecoverableWALError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "disk I/O error") || strings.Contains(msg, "database is locked")
}

// isWALStale reports whether -shm/-wal files exist and no other process
// holds them open (checked via lsof). Conservative: assumes "not stale" if
// lsof is unavailable, so a live WAL is never deleted out from under a
// running process.
func isWALStale(dbPath string) bool {
	shmPath := dbPath + "-shm"
	walPath := dbPath + "-wal"

	if !fileExists(shmPath) && !fileExists(walPath) {
		return false
	}

	lsofPath, err := exec.LookPath("lsof")
	if err != nil {
		return false
	}

	cmd := exec.Command(lsofPath, "-t", dbPath, shmPath, walPath)
	output, err := cmd.Output()
	if err != nil {
		return true
	}
	return strings.TrimSpace(string(output)) == ""
}

func removeStaleWAL(dbPath string) {
	for _, suffix := range []string{"-shm", "-wal"} {
		path := dbPath + suffix
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.Printf("sqlite: failed to remove stale %s: %v", path, err)
		}
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
