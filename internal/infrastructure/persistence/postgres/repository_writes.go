package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/rezkam/shiftengine/internal/domain"
)

// InsertInstancesBatch inserts a batch of instances in one statement and
// returns their assigned ids in the same order, for the audit linkage
// flushBucket performs afterward.
func (s *Store) InsertInstancesBatch(ctx context.Context, batch []domain.Instance) ([]int64, error) {
	if len(batch) == 0 {
		return nil, nil
	}

	args := make([]any, 0, len(batch)*8)
	values := ""
	for i, inst := range batch {
		if i > 0 {
			values += ", "
		}
		base := i * 8
		values += fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, TRUE)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8)
		args = append(args, inst.TemplateID, inst.ClientID, inst.EmployeeID, inst.CompanyID, inst.GroupID, inst.StartTS, inst.EndTS, string(inst.Note))
	}

	query := fmt.Sprintf(`
		INSERT INTO instance (template_id, client_id, employee_id, company_id, group_id, start_ts, end_ts, note, is_active)
		VALUES %s
		RETURNING instance_id`, values)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("insert instances batch: %w", err)
	}
	defer rows.Close()

	ids := make([]int64, 0, len(batch))
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan inserted instance id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) InsertInstanceSingle(ctx context.Context, inst domain.Instance) (int64, error) {
	var id int64
	err := s.db.QueryRow(ctx, `
		INSERT INTO instance (template_id, client_id, employee_id, company_id, group_id, start_ts, end_ts, note, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, TRUE)
		RETURNING instance_id`,
		inst.TemplateID, inst.ClientID, inst.EmployeeID, inst.CompanyID, inst.GroupID, inst.StartTS, inst.EndTS, string(inst.Note),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert instance: %w", err)
	}
	return id, nil
}

func (s *Store) CopyScanAreas(ctx context.Context, templateID, employeeID int64, targetDate time.Time, newInstanceID int64) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO instance_scan_area (instance_id, scan_area_id)
		SELECT $3, scan_area_id FROM scan_area_template_link WHERE template_id = $1 AND employee_id = $2
		ON CONFLICT DO NOTHING`,
		templateID, employeeID, newInstanceID)
	if err != nil {
		return fmt.Errorf("copy scan areas: %w", err)
	}
	return nil
}

func (s *Store) CopyClaims(ctx context.Context, templateID, employeeID int64, targetDate time.Time, newInstanceID int64) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO instance_claim (instance_id, claim_id)
		SELECT $3, claim_id FROM claim_template_link WHERE template_id = $1 AND employee_id = $2
		ON CONFLICT DO NOTHING`,
		templateID, employeeID, newInstanceID)
	if err != nil {
		return fmt.Errorf("copy claims: %w", err)
	}
	return nil
}

// MaterializeGroupRow implements the clone-or-create duality: weekly runs
// clone the representative's existing group row (kind and the
// employee/client-schedule flags carried over unchanged), monthly runs
// always create a fresh one with is_employee_schedule = TRUE,
// is_client_schedule = FALSE.
func (s *Store) MaterializeGroupRow(ctx context.Context, kind domain.RecurringKind, existingGroupID int64) (int64, error) {
	if kind == domain.RecurringWeekly && existingGroupID != 0 {
		var newID int64
		err := s.db.QueryRow(ctx, `
			INSERT INTO schedule_group (kind, is_employee_schedule, is_client_schedule)
			SELECT kind, is_employee_schedule, is_client_schedule FROM schedule_group WHERE group_id = $1
			RETURNING group_id`,
			existingGroupID).Scan(&newID)
		if err != nil {
			return 0, fmt.Errorf("clone group row: %w", err)
		}
		return newID, nil
	}

	var newID int64
	err := s.db.QueryRow(ctx, `
		INSERT INTO schedule_group (kind, is_employee_schedule, is_client_schedule)
		VALUES ($1, TRUE, FALSE)
		RETURNING group_id`,
		kind.String()).Scan(&newID)
	if err != nil {
		return 0, fmt.Errorf("create group row: %w", err)
	}
	return newID, nil
}
