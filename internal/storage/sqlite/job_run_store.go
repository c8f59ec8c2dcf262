package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/rand/mnemosyne/internal/merrors"
	"github.com/rand/mnemosyne/pkg/types"
)

func (s *MemoryStore) StartJobRun(ctx context.Context, jobName types.JobName, startedAt time.Time) (uuid.UUID, error) {
	id := uuid.New()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO evolution_job_runs (id, job_name, started_at, status, memories_processed, changes_made)
		VALUES (?, ?, ?, 'running', 0, 0)
	`, id.String(), string(jobName), timeString(startedAt))
	if err != nil {
		return uuid.Nil, merrors.Wrap(merrors.KindStorageUnavailable, "start job run", err)
	}
	return id, nil
}

func (s *MemoryStore) FinishJobRun(ctx context.Context, id uuid.UUID, status types.JobStatus, processed, changed int, errMsg string, completedAt time.Time) error {
	var errVal any
	if errMsg != "" {
		errVal = errMsg
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE evolution_job_runs
		SET status = ?, memories_processed = ?, changes_made = ?, error_message = ?, completed_at = ?
		WHERE id = ?
	`, string(status), processed, changed, errVal, timeString(completedAt), id.String())
	if err != nil {
		return merrors.Wrap(merrors.KindStorageUnavailable, "finish job run", err)
	}
	return nil
}

func (s *MemoryStore) LastRun(ctx context.Context, jobName types.JobName) (*types.JobRun, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, job_name, started_at, completed_at, status, memories_processed, changes_made, error_message
		FROM evolution_job_runs WHERE job_name = ? ORDER BY started_at DESC LIMIT 1
	`, string(jobName))
	run, err := scanJobRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, merrors.Wrap(merrors.KindStorageUnavailable, "last job run", err)
	}
	return run, nil
}

func (s *MemoryStore) RecentRuns(ctx context.Context, limit int) ([]types.JobRun, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, job_name, started_at, completed_at, status, memories_processed, changes_made, error_message
		FROM evolution_job_runs ORDER BY started_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, merrors.Wrap(merrors.KindStorageUnavailable, "recent job runs", err)
	}
	defer rows.Close()

	var out []types.JobRun
	for rows.Next() {
		run, err := scanJobRun(rows)
		if err != nil {
			return nil, merrors.Wrap(merrors.KindStorageUnavailable, "scan job run", err)
		}
		out = append(out, *run)
	}
	return out, rows.Err()
}

func scanJobRun(row rowScanner) (*types.JobRun, error) {
	var (
		run          types.JobRun
		id           string
		startedAt    string
		completedAt  sql.NullString
		errorMessage sql.NullString
	)
	if err := row.Scan(&id, &run.JobName, &startedAt, &completedAt, &run.Status, &run.MemoriesProcessed, &run.ChangesMade, &errorMessage); err != nil {
		return nil, err
	}
	parsedID, err := uuid.Parse(id)
	if err != nil {
		return nil, err
	}
	run.ID = parsedID
	run.StartedAt = parseTime(startedAt)
	if completedAt.Valid {
		t := parseTime(completedAt.String)
		run.CompletedAt = &t
	}
	run.ErrorMessage = errorMessage.String
	return &run, nil
}
