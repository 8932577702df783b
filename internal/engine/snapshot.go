package engine

import (
	"context"
	"time"

	"github.com/rezkam/shiftengine/internal/dedup"
	"github.com/rezkam/shiftengine/internal/domain"
)

// Snapshot is the bounded set of bulk reads the expansion stage consults
// instead of per-candidate round-trips (§4.3). It is built once per run and
// owned entirely by that run.
type Snapshot struct {
	WeeklyTemplates  []domain.Template
	MonthlyTemplates []domain.Template

	Keys    *dedup.KeySet
	Overlap *dedup.OverlapIndex

	HasScanAreas map[int64]bool
	HasClaims    map[int64]bool

	Tracking map[int64]domain.TrackingRow
}

// LoadSnapshot performs every bulk read §4.3 names, for the window [t0, tEnd].
func LoadSnapshot(ctx context.Context, repo Repository, t0, tEnd time.Time, filter NarrowingFilter) (*Snapshot, error) {
	weekly, err := repo.LoadTemplates(ctx, domain.RecurringWeekly, filter)
	if err != nil {
		return nil, Transient(err)
	}
	monthly, err := repo.LoadTemplates(ctx, domain.RecurringMonthly, filter)
	if err != nil {
		return nil, Transient(err)
	}

	stdKeys, err := repo.LoadStdKeys(ctx, t0, tEnd)
	if err != nil {
		return nil, Transient(err)
	}
	openKeys, err := repo.LoadOpenKeys(ctx, t0, tEnd)
	if err != nil {
		return nil, Transient(err)
	}
	keys := dedup.NewKeySet(len(stdKeys), len(openKeys))
	keys.LoadStd(stdKeys)
	keys.LoadOpen(openKeys)

	overlapByEmployee, err := repo.LoadOverlapIntervals(ctx, t0, tEnd)
	if err != nil {
		return nil, Transient(err)
	}
	overlap := dedup.NewOverlapIndex()
	for employeeID, ivs := range overlapByEmployee {
		overlap.Load(employeeID, ivs)
	}

	hasScanAreas, err := repo.LoadScanAreaTemplateIDs(ctx)
	if err != nil {
		return nil, Transient(err)
	}
	hasClaims, err := repo.LoadClaimTemplateIDs(ctx)
	if err != nil {
		return nil, Transient(err)
	}
	tracking, err := repo.LoadTrackingRows(ctx)
	if err != nil {
		return nil, Transient(err)
	}

	return &Snapshot{
		WeeklyTemplates:  weekly,
		MonthlyTemplates: monthly,
		Keys:             keys,
		Overlap:          overlap,
		HasScanAreas:     hasScanAreas,
		HasClaims:        hasClaims,
		Tracking:         tracking,
	}, nil
}

// ExpansionWindowEnd computes T_end = max(T0+Dw, T0+Mm months) + 1 day (§4.3).
func ExpansionWindowEnd(t0 time.Time, advanceDays, monthlyMonthsAhead int) time.Time {
	weeklyEnd := t0.AddDate(0, 0, advanceDays)
	monthlyEnd := t0.AddDate(0, monthlyMonthsAhead, 0)
	end := weeklyEnd
	if monthlyEnd.After(end) {
		end = monthlyEnd
	}
	return end.AddDate(0, 0, 1)
}
