// Package domain holds the types the scheduler engine reads and writes:
// templates, the instances expanded from them, and the bookkeeping rows
// (tracking, audit, conflict, run summary) a run produces along the way.
package domain

import "time"

// RecurringKind selects which expansion algorithm a template is subject to.
type RecurringKind int

const (
	RecurringWeekly RecurringKind = iota
	RecurringMonthly
)

func (k RecurringKind) String() string {
	switch k {
	case RecurringWeekly:
		return "WEEKLY"
	case RecurringMonthly:
		return "MONTHLY"
	default:
		return "UNKNOWN"
	}
}

// ScheduleKind controls assignment semantics and which dedup key a
// candidate instance is probed against.
type ScheduleKind int

const (
	ScheduleIndividual ScheduleKind = iota
	ScheduleOpenClaim
	ScheduleSelectClaim
	ScheduleTeam
)

func (k ScheduleKind) String() string {
	switch k {
	case ScheduleIndividual:
		return "INDIVIDUAL"
	case ScheduleOpenClaim:
		return "OPEN_CLAIM"
	case ScheduleSelectClaim:
		return "SELECT_CLAIM"
	case ScheduleTeam:
		return "TEAM"
	default:
		return "UNKNOWN"
	}
}

// Weekday is a Sun..Sat flag set, bit i set means day-of-week i (time.Sunday == 0) is active.
type Weekday uint8

func (w Weekday) Has(d time.Weekday) bool {
	return w&(1<<uint(d)) != 0
}

func WeekdaySet(days ...time.Weekday) Weekday {
	var w Weekday
	for _, d := range days {
		w |= 1 << uint(d)
	}
	return w
}

// Template is the external, read-mostly recurrence specification the engine
// expands into instances. The engine never creates or deletes templates; it
// only reads them and advances LastRun.
type Template struct {
	TemplateID int64

	RecurringKind RecurringKind
	WeekStride    int // 1 = weekly, 2 = biweekly, ...
	NthWeekday    int // 0..3 for monthly ("4th" == 3, overflows to last); 4 accepted as an explicit "last" alias
	DaysOfWeek    Weekday

	StartDate time.Time
	EndDate   *time.Time // nil means no end date (the 0001-01-01 sentinel is normalized away at the repository boundary)
	LastRun   *time.Time

	TimeIn   time.Duration // offset from local midnight
	TimeOut  time.Duration
	DaySpan  int // additional whole days added to the shift span; time_out <= time_in implies an overnight shift already, DaySpan is on top of that
	Duration time.Duration

	ClientID   int64
	EmployeeID int64 // 0 = unassigned
	CompanyID  int64
	GroupID    int64 // 0 = not grouped
	Kind       ScheduleKind

	IsActive        bool
	IsReset         bool
	HasScanAreas    bool
	HasClaims       bool
	RestrictionDate *time.Time // opaque carry-over, only consulted via recurrence anchor resolution

	// ClientActive and CompanyActive mirror the is_active flag of the
	// template's client and company, joined in from those external tables
	// at snapshot load time. Zero value (false) excludes the template from
	// eligibility, so callers that build a Template without populating
	// these (e.g. the lean path's single-template lookup, which never
	// checks eligibility) must not rely on EligibleForWeekly/EligibleForMonthly.
	ClientActive  bool
	CompanyActive bool
}

// IsOvernight reports whether the shift crosses midnight.
func (t Template) IsOvernight() bool {
	return t.TimeOut <= t.TimeIn
}

// ShiftSpan returns the absolute duration between start and end of one instance of this template.
func (t Template) ShiftSpan() time.Duration {
	span := time.Duration(t.DaySpan) * 24 * time.Hour
	if t.IsOvernight() {
		span += 24 * time.Hour
	}
	span += t.TimeOut - t.TimeIn
	return span
}

// EligibleForWeekly reports whether the template participates in a weekly/multi-week run at T0.
func (t Template) EligibleForWeekly(today time.Time) bool {
	if !t.IsActive || !t.ClientActive || !t.CompanyActive {
		return false
	}
	if t.EndDate != nil && t.EndDate.Before(today) {
		return false
	}
	if t.LastRun != nil && !t.LastRun.Before(today) {
		return false
	}
	return true
}

// EligibleForMonthly reports whether the template participates in a monthly run for the given
// base date T0 and the target month's last day.
func (t Template) EligibleForMonthly(t0, lastDayOfTargetMonth time.Time) bool {
	if !t.IsActive || !t.ClientActive || !t.CompanyActive {
		return false
	}
	if t.EndDate != nil && t.EndDate.Before(t0) {
		return false
	}
	if t.LastRun != nil && t.LastRun.After(lastDayOfTargetMonth) {
		return false
	}
	return true
}
