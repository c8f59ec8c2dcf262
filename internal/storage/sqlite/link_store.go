package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/rand/mnemosyne/internal/merrors"
	"github.com/rand/mnemosyne/pkg/types"
)

func (s *MemoryStore) CreateLink(ctx context.Context, link *types.Link) error {
	if err := link.Validate(); err != nil {
		return merrors.Wrap(merrors.KindInvalidParams, "invalid link", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return merrors.Wrap(merrors.KindStorageUnavailable, "begin tx", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO memory_links (source_id, target_id, link_type, strength, reason, created_at, user_created)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source_id, target_id, link_type) DO NOTHING
	`, link.SourceID.String(), link.TargetID.String(), string(link.LinkType), link.Strength, link.Reason,
		timeString(link.CreatedAt), boolToInt(link.UserCreated))
	if err != nil {
		return merrors.Wrap(merrors.KindStorageUnavailable, "insert link", err)
	}

	n, _ := res.RowsAffected()
	if n == 0 {
		// Duplicate (source, target, link_type) key: treated as a conflict
		// no-op by the caller, not surfaced as a hard error.
		return merrors.New(merrors.KindConflict, "link already exists")
	}

	if err := insertAudit(ctx, tx, types.AuditLinkCreate, &link.SourceID, "{}"); err != nil {
		return err
	}
	return commitOrWrap(tx)
}

func (s *MemoryStore) UpdateLinkStrength(ctx context.Context, sourceID, targetID uuid.UUID, linkType types.LinkType, newStrength float64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return merrors.Wrap(merrors.KindStorageUnavailable, "begin tx", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE memory_links SET strength = ? WHERE source_id = ? AND target_id = ? AND link_type = ?
	`, newStrength, sourceID.String(), targetID.String(), string(linkType))
	if err != nil {
		return merrors.Wrap(merrors.KindStorageUnavailable, "update link strength", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return merrors.New(merrors.KindNotFound, "link not found")
	}

	if err := insertAudit(ctx, tx, types.AuditLinkUpdate, &sourceID, "{}"); err != nil {
		return err
	}
	return commitOrWrap(tx)
}

func (s *MemoryStore) DeleteLink(ctx context.Context, sourceID, targetID uuid.UUID, linkType types.LinkType) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return merrors.Wrap(merrors.KindStorageUnavailable, "begin tx", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		DELETE FROM memory_links WHERE source_id = ? AND target_id = ? AND link_type = ?
	`, sourceID.String(), targetID.String(), string(linkType))
	if err != nil {
		return merrors.Wrap(merrors.KindStorageUnavailable, "delete link", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return merrors.New(merrors.KindNotFound, "link not found")
	}

	if err := insertAudit(ctx, tx, types.AuditLinkDelete, &sourceID, "{}"); err != nil {
		return err
	}
	return commitOrWrap(tx)
}

func (s *MemoryStore) LinksFrom(ctx context.Context, id uuid.UUID, linkType *types.LinkType) ([]*types.Link, error) {
	query := `SELECT source_id, target_id, link_type, strength, reason, created_at, last_traversed_at, user_created
		FROM memory_links WHERE source_id = ?`
	args := []any{id.String()}
	if linkType != nil {
		query += " AND link_type = ?"
		args = append(args, string(*linkType))
	}
	return s.queryLinks(ctx, query, args...)
}

func (s *MemoryStore) LinksTo(ctx context.Context, id uuid.UUID) ([]*types.Link, error) {
	query := `SELECT source_id, target_id, link_type, strength, reason, created_at, last_traversed_at, user_created
		FROM memory_links WHERE target_id = ?`
	return s.queryLinks(ctx, query, id.String())
}

func (s *MemoryStore) AllDecayable(ctx context.Context, pageSize int, visit func(*types.Link) bool) error {
	if pageSize < 1 {
		pageSize = 100
	}
	offset := 0
	for {
		query := `SELECT source_id, target_id, link_type, strength, reason, created_at, last_traversed_at, user_created
			FROM memory_links WHERE user_created = 0 AND strength > 0.1
			ORDER BY source_id, target_id, link_type LIMIT ? OFFSET ?`
		links, err := s.queryLinks(ctx, query, pageSize, offset)
		if err != nil {
			return err
		}
		if len(links) == 0 {
			return nil
		}
		for _, l := range links {
			if !visit(l) {
				return nil
			}
		}
		offset += len(links)
	}
}

func (s *MemoryStore) NeighborCount(ctx context.Context, id uuid.UUID, minStrength float64) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM memory_links ml
		JOIN memories m ON m.id = CASE WHEN ml.source_id = ? THEN ml.target_id ELSE ml.source_id END
		WHERE (ml.source_id = ? OR ml.target_id = ?) AND ml.strength >= ? AND m.is_archived = 0
	`, id.String(), id.String(), id.String(), minStrength).Scan(&count)
	if err != nil {
		return 0, merrors.Wrap(merrors.KindStorageUnavailable, "neighbor count", err)
	}
	return count, nil
}

func (s *MemoryStore) queryLinks(ctx context.Context, query string, args ...any) ([]*types.Link, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, merrors.Wrap(merrors.KindStorageUnavailable, "query links", err)
	}
	defer rows.Close()

	var links []*types.Link
	for rows.Next() {
		link, err := scanLink(rows)
		if err != nil {
			return nil, merrors.Wrap(merrors.KindStorageUnavailable, "scan link", err)
		}
		links = append(links, link)
	}
	if err := rows.Err(); err != nil {
		return nil, merrors.Wrap(merrors.KindStorageUnavailable, "iterate links", err)
	}
	return links, nil
}

func scanLink(rows *sql.Rows) (*types.Link, error) {
	var l types.Link
	var sourceID, targetID, linkType string
	var createdAt string
	var lastTraversed sql.NullString
	var userCreated int

	if err := rows.Scan(&sourceID, &targetID, &linkType, &l.Strength, &l.Reason, &createdAt, &lastTraversed, &userCreated); err != nil {
		return nil, err
	}

	src, err := uuid.Parse(sourceID)
	if err != nil {
		return nil, fmt.Errorf("corrupt source_id %q: %w", sourceID, err)
	}
	tgt, err := uuid.Parse(targetID)
	if err != nil {
		return nil, fmt.Errorf("corrupt target_id %q: %w", targetID, err)
	}

	l.SourceID = src
	l.TargetID = tgt
	l.LinkType = types.LinkType(linkType)
	l.CreatedAt = parseTime(createdAt)
	if lastTraversed.Valid {
		t := parseTime(lastTraversed.String)
		l.LastTraversedAt = &t
	}
	l.UserCreated = userCreated != 0

	return &l, nil
}
