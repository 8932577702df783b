package postgres

import (
	"context"
	"fmt"
	"time"
)

// FindCleanupEligibleInstanceIDs implements §4.2 phase A: the conjunctive
// eligibility predicate over strictly-future, unlinked, unclaimed instances
// whose template no longer justifies them.
func (s *Store) FindCleanupEligibleInstanceIDs(ctx context.Context, today time.Time) ([]int64, error) {
	rows, err := s.db.Query(ctx, `
		SELECT i.instance_id
		FROM instance i
		LEFT JOIN template t ON t.template_id = i.template_id
		WHERE i.start_ts::date >= $1 + INTERVAL '1 day'
		  AND (i.external_timecard_ref IS NULL OR i.external_timecard_ref = '')
		  AND NOT EXISTS (SELECT 1 FROM instance_claim ic WHERE ic.instance_id = i.instance_id)
		  AND (t.template_id IS NULL OR t.is_reset OR NOT t.is_active)`,
		today)
	if err != nil {
		return nil, fmt.Errorf("find cleanup eligible instances: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan cleanup eligible instance: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) DeleteInstancesBatch(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.db.Exec(ctx, `UPDATE instance SET is_active = FALSE, updated_at = now() WHERE instance_id = ANY($1)`, ids)
	if err != nil {
		return fmt.Errorf("soft-delete instances: %w", err)
	}
	return nil
}

func (s *Store) FindResetMultiWeekTemplateIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.db.Query(ctx, `SELECT template_id FROM template WHERE is_reset AND week_stride > 1`)
	if err != nil {
		return nil, fmt.Errorf("find reset templates: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan reset template id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) LastConfirmedHistoricalDate(ctx context.Context, templateID int64) (*time.Time, error) {
	var d *time.Time
	err := s.db.QueryRow(ctx, `
		SELECT MAX(start_ts::date) FROM instance
		WHERE template_id = $1 AND is_active AND start_ts::date < CURRENT_DATE`,
		templateID).Scan(&d)
	if err != nil {
		return nil, fmt.Errorf("last confirmed historical date: %w", err)
	}
	return d, nil
}

func (s *Store) SetTrackingForReset(ctx context.Context, templateID int64, nextDate time.Time) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO multi_week_tracking (template_id, next_date, edit_mode, changed_this_run)
		VALUES ($1, $2, TRUE, FALSE)
		ON CONFLICT (template_id) DO UPDATE
		SET next_date = EXCLUDED.next_date, edit_mode = TRUE`,
		templateID, nextDate)
	if err != nil {
		return fmt.Errorf("set tracking for reset: %w", err)
	}
	return nil
}

func (s *Store) ClearTemplateReset(ctx context.Context, templateID int64, lastRun time.Time) error {
	_, err := s.db.Exec(ctx, `UPDATE template SET is_reset = FALSE, last_run = $2 WHERE template_id = $1`, templateID, lastRun)
	if err != nil {
		return fmt.Errorf("clear template reset: %w", err)
	}
	return nil
}

func (s *Store) PruneWorkingState(ctx context.Context, olderThan time.Time) error {
	_, err := s.db.Exec(ctx, `DELETE FROM instance WHERE NOT is_active AND start_ts::date < $1`, olderThan)
	if err != nil {
		return fmt.Errorf("prune working state: %w", err)
	}
	return nil
}
