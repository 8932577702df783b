package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/rezkam/shiftengine/internal/domain"
)

func (s *Store) AdvanceWeeklyLastRun(ctx context.Context, templateIDs []int64, now time.Time) error {
	if len(templateIDs) == 0 {
		return nil
	}
	_, err := s.db.Exec(ctx, `UPDATE template SET last_run = $2 WHERE template_id = ANY($1)`, templateIDs, now)
	if err != nil {
		return fmt.Errorf("advance weekly last_run: %w", err)
	}
	return nil
}

func (s *Store) AdvanceMonthlyLastRun(ctx context.Context, templateIDs []int64, firstOfNextMonth time.Time) error {
	if len(templateIDs) == 0 {
		return nil
	}
	_, err := s.db.Exec(ctx, `UPDATE template SET last_run = $2 WHERE template_id = ANY($1)`, templateIDs, firstOfNextMonth)
	if err != nil {
		return fmt.Errorf("advance monthly last_run: %w", err)
	}
	return nil
}

func (s *Store) UpdateTrackingNextDate(ctx context.Context, templateID int64, nextDate time.Time, changedThisRun, editMode bool) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO multi_week_tracking (template_id, next_date, changed_this_run, edit_mode)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (template_id) DO UPDATE
		SET next_date = EXCLUDED.next_date, changed_this_run = EXCLUDED.changed_this_run, edit_mode = EXCLUDED.edit_mode`,
		templateID, nextDate, changedThisRun, editMode)
	if err != nil {
		return fmt.Errorf("update tracking next_date: %w", err)
	}
	return nil
}

func (s *Store) FlushAudit(ctx context.Context, rows []domain.AuditRow) error {
	if len(rows) == 0 {
		return nil
	}
	return s.withTx(ctx, func(tx *Store) error {
		for _, r := range rows {
			_, err := tx.db.Exec(ctx, `
				INSERT INTO audit_log (run_id, template_id, instance_id, employee_id, client_id, start_ts, end_ts, outcome, error_desc, kind, pattern)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
				r.RunID, r.TemplateID, r.InstanceID, nil, nil, r.StartTS, r.EndTS, r.Outcome.String(), nullIfEmpty(r.ErrorDesc), r.Kind.String(), r.RecurrencePattern)
			if err != nil {
				return fmt.Errorf("insert audit row: %w", err)
			}
		}
		return nil
	})
}

func (s *Store) FlushConflicts(ctx context.Context, rows []domain.ConflictRow) error {
	if len(rows) == 0 {
		return nil
	}
	return s.withTx(ctx, func(tx *Store) error {
		for _, r := range rows {
			_, err := tx.db.Exec(ctx, `
				INSERT INTO conflict_log (
					run_id, template_id, employee_id, blocked_client_id, blocked_start_ts, blocked_end_ts,
					colliding_instance_id, colliding_template_id, colliding_client_id, colliding_start_ts, colliding_end_ts, detected_at
				) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
				r.RunID, r.TemplateID, r.EmployeeID, r.BlockedClientID, r.BlockedStartTS, r.BlockedEndTS,
				r.CollidingInstanceID, r.CollidingTemplateID, r.CollidingClientID, r.CollidingStartTS, r.CollidingEndTS, r.DetectedAt)
			if err != nil {
				return fmt.Errorf("insert conflict row: %w", err)
			}
		}
		return nil
	})
}

func (s *Store) PruneAudit(ctx context.Context, olderThan time.Time) error {
	_, err := s.db.Exec(ctx, `DELETE FROM audit_log WHERE created_at < $1`, olderThan)
	if err != nil {
		return fmt.Errorf("prune audit: %w", err)
	}
	return nil
}

func (s *Store) CreateRunSummary(ctx context.Context, summary domain.RunSummary) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO run_summary (run_id, started_at, status)
		VALUES ($1, $2, $3)
		ON CONFLICT (run_id) DO NOTHING`,
		summary.RunID, summary.StartedAt, summary.Status.String())
	if err != nil {
		return fmt.Errorf("create run summary: %w", err)
	}
	return nil
}

func (s *Store) UpdateRunSummary(ctx context.Context, summary domain.RunSummary) error {
	var errMsg *string
	if summary.Error != "" {
		errMsg = &summary.Error
	}
	_, err := s.db.Exec(ctx, `
		UPDATE run_summary SET
			completed_at = $2, duration_s = $3, status = $4,
			created = $5, duplicate = $6, overlap = $7, error_count = $8, error = $9
		WHERE run_id = $1`,
		summary.RunID, summary.CompletedAt, summary.Elapsed().Seconds(), summary.Status.String(),
		summary.Totals.Created, summary.Totals.Duplicate, summary.Totals.Overlap, summary.Totals.Error, errMsg)
	if err != nil {
		return fmt.Errorf("update run summary: %w", err)
	}
	return nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
