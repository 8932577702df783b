package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/rezkam/shiftengine/internal/engine"
)

var _ engine.SessionCoordinator = (*Store)(nil)

// Begin implements the cross-process mutex over scheduler_session, modeled
// on the reference tree's lease-acquisition pattern (TryAcquireExclusiveRun):
// an upsert that only succeeds if no unexpired lease is held.
func (s *Store) Begin(ctx context.Context, runID string, startedAt time.Time, jobName string, leaseTTL time.Duration) (bool, error) {
	expiresAt := startedAt.Add(leaseTTL)

	tag, err := s.db.Exec(ctx, `
		INSERT INTO scheduler_session (job_name, run_id, started_at, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (job_name) DO UPDATE
		SET run_id = EXCLUDED.run_id, started_at = EXCLUDED.started_at, expires_at = EXCLUDED.expires_at
		WHERE scheduler_session.expires_at < $3`,
		jobName, runID, startedAt, expiresAt)
	if err != nil {
		return false, fmt.Errorf("acquire session: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Complete releases the session token by pushing expires_at into the past so
// the next Begin always succeeds. elapsed is not stored here; the run's
// duration is written to run_summary by UpdateRunSummary.
func (s *Store) Complete(ctx context.Context, jobName string, endedAt time.Time, elapsed time.Duration) error {
	_, err := s.db.Exec(ctx, `
		UPDATE scheduler_session SET expires_at = $2
		WHERE job_name = $1`,
		jobName, endedAt.Add(-time.Second))
	if err != nil {
		return fmt.Errorf("release session: %w", err)
	}
	return nil
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
