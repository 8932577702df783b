package postgres

import (
	"time"

	"github.com/rezkam/shiftengine/internal/domain"
)

// scanTemplate scans the fixed template columns plus any caller-supplied
// extra destinations appended to the same row, in column order. LoadTemplates
// passes pointers for the joined client/company active flags; LoadTemplateByID
// passes none, leaving ClientActive/CompanyActive at their zero value since
// the lean path never consults template eligibility.
func scanTemplate(row rowScanner, extraDest ...any) (domain.Template, error) {
	var t domain.Template
	var recurringKind, scheduleKind int
	var daysOfWeek int
	var endDate, lastRun, restrictionDate *time.Time

	dest := []any{
		&t.TemplateID, &recurringKind, &t.WeekStride, &t.NthWeekday, &daysOfWeek,
		&t.StartDate, &endDate, &lastRun,
		&t.TimeIn, &t.TimeOut, &t.DaySpan, &t.Duration,
		&t.ClientID, &t.EmployeeID, &t.CompanyID, &t.GroupID, &scheduleKind,
		&t.IsActive, &t.IsReset, &t.HasScanAreas, &t.HasClaims, &restrictionDate,
	}
	dest = append(dest, extraDest...)

	err := row.Scan(dest...)
	if err != nil {
		return domain.Template{}, err
	}

	t.RecurringKind = domain.RecurringKind(recurringKind)
	t.Kind = domain.ScheduleKind(scheduleKind)
	t.DaysOfWeek = domain.Weekday(daysOfWeek)
	t.EndDate = endDate
	t.LastRun = lastRun
	t.RestrictionDate = restrictionDate
	return t, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

// templateColumns qualifies every column with the template table name so
// the list stays unambiguous once LoadTemplates joins in client/company
// (both of which also carry an is_active column); the plain `FROM template`
// in LoadTemplateByID resolves template.-qualified names just as well.
const templateColumns = `
	template.template_id, template.recurring_kind, template.week_stride, template.nth_weekday, template.days_of_week,
	template.start_date, template.end_date, template.last_run,
	template.time_in, template.time_out, template.day_span, template.duration,
	template.client_id, template.employee_id, template.company_id, template.group_id, template.schedule_kind,
	template.is_active, template.is_reset, template.has_scan_areas, template.has_claims, template.restriction_date`

