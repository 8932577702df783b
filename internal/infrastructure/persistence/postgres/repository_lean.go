package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/rezkam/shiftengine/internal/domain"
)

// FindTemplateUnlinkedFutureInstanceIDs backs the lean path's optional
// "delete future unlinked instances for this template" step. It mirrors the
// cleanup predicate's future/unlinked/unclaimed conjuncts, narrowed to one
// template and without consulting the template's own is_active/is_reset
// state (the caller already knows which template it's regenerating).
func (s *Store) FindTemplateUnlinkedFutureInstanceIDs(ctx context.Context, templateID int64, today time.Time) ([]int64, error) {
	rows, err := s.db.Query(ctx, `
		SELECT instance_id FROM instance
		WHERE template_id = $1
		  AND start_ts::date >= $2 + INTERVAL '1 day'
		  AND (external_timecard_ref IS NULL OR external_timecard_ref = '')
		  AND NOT EXISTS (SELECT 1 FROM instance_claim ic WHERE ic.instance_id = instance.instance_id)`,
		templateID, today)
	if err != nil {
		return nil, fmt.Errorf("find template unlinked future instances: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan unlinked instance id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) LoadTemplateByID(ctx context.Context, templateID int64) (domain.Template, error) {
	row := s.db.QueryRow(ctx, `SELECT `+templateColumns+` FROM template WHERE template.template_id = $1`, templateID)
	t, err := scanTemplate(row)
	if err != nil {
		if isNoRows(err) {
			return domain.Template{}, domain.ErrTemplateNotFound
		}
		return domain.Template{}, fmt.Errorf("load template by id: %w", err)
	}
	return t, nil
}
