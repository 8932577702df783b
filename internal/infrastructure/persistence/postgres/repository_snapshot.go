package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/rezkam/shiftengine/internal/dedup"
	"github.com/rezkam/shiftengine/internal/domain"
	"github.com/rezkam/shiftengine/internal/engine"
)

// LoadTemplates loads candidate templates for one recurring kind, inner-joined
// against the external client and company tables to pick up their is_active
// flags: a template whose client or company row is missing or inactive is
// excluded from the result set entirely, the same fail-closed treatment a
// dangling or deactivated reference gets everywhere else in this schema.
// Neither client nor company is created by this package's migrations; like
// template itself, they're owned by the surrounding application.
func (s *Store) LoadTemplates(ctx context.Context, kind domain.RecurringKind, filter engine.NarrowingFilter) ([]domain.Template, error) {
	query := `
		SELECT ` + templateColumns + `, client.is_active, company.is_active
		FROM template
		JOIN client ON client.client_id = template.client_id
		JOIN company ON company.company_id = template.company_id
		WHERE template.recurring_kind = $1`
	args := []any{int(kind)}

	if filter.CompanyID != nil {
		args = append(args, *filter.CompanyID)
		query += fmt.Sprintf(" AND template.company_id = $%d", len(args))
	}
	if filter.TemplateID != nil {
		args = append(args, *filter.TemplateID)
		query += fmt.Sprintf(" AND template.template_id = $%d", len(args))
	}
	query += " ORDER BY template.template_id"

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("load templates: %w", err)
	}
	defer rows.Close()

	var templates []domain.Template
	for rows.Next() {
		var clientActive, companyActive bool
		t, err := scanTemplate(rows, &clientActive, &companyActive)
		if err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		t.ClientActive = clientActive
		t.CompanyActive = companyActive
		templates = append(templates, t)
	}
	return templates, rows.Err()
}

func (s *Store) LoadStdKeys(ctx context.Context, start, end time.Time) ([]domain.StdKey, error) {
	rows, err := s.db.Query(ctx, `
		SELECT client_id, employee_id, start_ts, end_ts FROM instance
		WHERE is_active AND start_ts >= $1 AND start_ts < $2`,
		start, end)
	if err != nil {
		return nil, fmt.Errorf("load std keys: %w", err)
	}
	defer rows.Close()

	var keys []domain.StdKey
	for rows.Next() {
		var clientID, employeeID int64
		var s0, e0 time.Time
		if err := rows.Scan(&clientID, &employeeID, &s0, &e0); err != nil {
			return nil, fmt.Errorf("scan std key: %w", err)
		}
		keys = append(keys, domain.StdKeyOf(clientID, employeeID, s0, e0))
	}
	return keys, rows.Err()
}

func (s *Store) LoadOpenKeys(ctx context.Context, start, end time.Time) ([]domain.OpenKey, error) {
	rows, err := s.db.Query(ctx, `
		SELECT template_id, client_id, employee_id, start_ts, end_ts FROM instance
		WHERE is_active AND start_ts >= $1 AND start_ts < $2`,
		start, end)
	if err != nil {
		return nil, fmt.Errorf("load open keys: %w", err)
	}
	defer rows.Close()

	var keys []domain.OpenKey
	for rows.Next() {
		var templateID, clientID, employeeID int64
		var s0, e0 time.Time
		if err := rows.Scan(&templateID, &clientID, &employeeID, &s0, &e0); err != nil {
			return nil, fmt.Errorf("scan open key: %w", err)
		}
		keys = append(keys, domain.OpenKeyOf(templateID, clientID, employeeID, s0, e0))
	}
	return keys, rows.Err()
}

func (s *Store) LoadOverlapIntervals(ctx context.Context, start, end time.Time) (map[int64][]dedup.Interval, error) {
	rows, err := s.db.Query(ctx, `
		SELECT employee_id, start_ts, end_ts, client_id, instance_id, template_id FROM instance
		WHERE is_active AND employee_id <> 0 AND start_ts >= $1 AND start_ts < $2`,
		start, end)
	if err != nil {
		return nil, fmt.Errorf("load overlap intervals: %w", err)
	}
	defer rows.Close()

	byEmployee := make(map[int64][]dedup.Interval)
	for rows.Next() {
		var employeeID int64
		var iv dedup.Interval
		if err := rows.Scan(&employeeID, &iv.StartTS, &iv.EndTS, &iv.ClientID, &iv.InstanceID, &iv.TemplateID); err != nil {
			return nil, fmt.Errorf("scan overlap interval: %w", err)
		}
		byEmployee[employeeID] = append(byEmployee[employeeID], iv)
	}
	return byEmployee, rows.Err()
}

func (s *Store) LoadScanAreaTemplateIDs(ctx context.Context) (map[int64]bool, error) {
	return s.loadDistinctTemplateIDs(ctx, "scan_area_template_link")
}

func (s *Store) LoadClaimTemplateIDs(ctx context.Context) (map[int64]bool, error) {
	return s.loadDistinctTemplateIDs(ctx, "claim_template_link")
}

func (s *Store) loadDistinctTemplateIDs(ctx context.Context, table string) (map[int64]bool, error) {
	rows, err := s.db.Query(ctx, fmt.Sprintf(`SELECT DISTINCT template_id FROM %s`, table))
	if err != nil {
		return nil, fmt.Errorf("load distinct template ids from %s: %w", table, err)
	}
	defer rows.Close()

	out := make(map[int64]bool)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan template id: %w", err)
		}
		out[id] = true
	}
	return out, rows.Err()
}

func (s *Store) LoadTrackingRows(ctx context.Context) (map[int64]domain.TrackingRow, error) {
	rows, err := s.db.Query(ctx, `SELECT template_id, next_date, changed_this_run, edit_mode FROM multi_week_tracking`)
	if err != nil {
		return nil, fmt.Errorf("load tracking rows: %w", err)
	}
	defer rows.Close()

	out := make(map[int64]domain.TrackingRow)
	for rows.Next() {
		var tr domain.TrackingRow
		var nextDate *time.Time
		if err := rows.Scan(&tr.TemplateID, &nextDate, &tr.ChangedThisRun, &tr.EditMode); err != nil {
			return nil, fmt.Errorf("scan tracking row: %w", err)
		}
		if nextDate != nil {
			tr.NextDate = *nextDate
		}
		out[tr.TemplateID] = tr
	}
	return out, rows.Err()
}

func (s *Store) LastExistingInstanceDate(ctx context.Context, templateID int64) (*time.Time, error) {
	var d *time.Time
	err := s.db.QueryRow(ctx, `SELECT MAX(start_ts::date) FROM instance WHERE template_id = $1 AND is_active`, templateID).Scan(&d)
	if err != nil {
		return nil, fmt.Errorf("last existing instance date: %w", err)
	}
	return d, nil
}

func (s *Store) LastHistoricalMatchDate(ctx context.Context, templateID int64) (*time.Time, error) {
	var d *time.Time
	err := s.db.QueryRow(ctx, `
		SELECT MAX(start_ts::date) FROM instance
		WHERE template_id = $1 AND is_active AND start_ts::date < CURRENT_DATE`,
		templateID).Scan(&d)
	if err != nil {
		return nil, fmt.Errorf("last historical match date: %w", err)
	}
	return d, nil
}
