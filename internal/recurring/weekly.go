// Package recurring implements the date math the expansion stage drives:
// weekly/multi-week anchor resolution and valid-date computation, and the
// monthly Nth-weekday calculator.
package recurring

import (
	"time"

	"github.com/rezkam/shiftengine/internal/domain"
)

// AnchorInput is the snapshot state the anchor/restriction-date table in the
// weekly/multi-week recurrence rule consults. Exactly one of the "situation"
// combinations applies per template, resolved by Resolve in the table's order.
type AnchorInput struct {
	NeverRan                  bool // template.LastRun == nil
	TrackingEditMode          bool
	TrackingNextDate          time.Time
	LastHistoricalDate        *time.Time // last historical date with a matching instance
	LastExistingInstanceDate  *time.Time // last existing instance date (any time)
	StartDate                 time.Time
	Today                     time.Time
}

// Anchor is the resolved (anchor, restrictionDate) pair a multi-week walk starts from.
type Anchor struct {
	Anchor          time.Time
	RestrictionDate time.Time
}

// Resolve implements the anchor/restriction-date table.
func Resolve(in AnchorInput) Anchor {
	switch {
	case in.NeverRan:
		return Anchor{Anchor: in.StartDate, RestrictionDate: in.Today.AddDate(0, 0, -1)}
	case in.TrackingEditMode:
		return Anchor{Anchor: in.TrackingNextDate, RestrictionDate: in.Today}
	case in.LastExistingInstanceDate == nil:
		// ran before, no instances remain
		return Anchor{Anchor: in.StartDate, RestrictionDate: in.StartDate.AddDate(0, 0, -1)}
	case in.LastHistoricalDate != nil:
		return Anchor{Anchor: *in.LastHistoricalDate, RestrictionDate: *in.LastExistingInstanceDate}
	default:
		return Anchor{Anchor: in.TrackingNextDate, RestrictionDate: *in.LastExistingInstanceDate}
	}
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// MultiWeekValidDates computes the union, over cycles of 7*stride days starting at anchor,
// of every day matching one of days that falls strictly after restrictionDate and on or
// before horizonEnd. For stride == 1 this degenerates to "every matching weekday", which
// callers can compute directly without consulting this set (see WeeklyMatchesDay).
func MultiWeekValidDates(anchor, restrictionDate time.Time, stride int, days domain.Weekday, horizonEnd time.Time) map[time.Time]bool {
	anchor = dateOnly(anchor)
	restrictionDate = dateOnly(restrictionDate)
	horizonEnd = dateOnly(horizonEnd)

	valid := make(map[time.Time]bool)
	if stride < 1 {
		stride = 1
	}
	cycleLen := 7 * stride

	totalDays := int(horizonEnd.Sub(anchor).Hours()/24) + cycleLen
	if totalDays < cycleLen {
		totalDays = cycleLen
	}
	numCycles := totalDays/cycleLen + 1

	for i := 0; i < numCycles; i++ {
		weekStart := anchor.AddDate(0, 0, 7*stride*i)
		for dow := 0; dow < 7; dow++ {
			d := weekStart.AddDate(0, 0, dow)
			if d.After(horizonEnd) {
				continue
			}
			if !d.After(restrictionDate) {
				continue
			}
			if days.Has(d.Weekday()) {
				valid[d] = true
			}
		}
	}
	return valid
}

// WeeklyMatchesDay reports whether date d (stride == 1 templates) falls strictly after
// restrictionDate and matches one of the template's day-of-week flags.
func WeeklyMatchesDay(d, restrictionDate time.Time, days domain.Weekday) bool {
	d = dateOnly(d)
	restrictionDate = dateOnly(restrictionDate)
	return d.After(restrictionDate) && days.Has(d.Weekday())
}
