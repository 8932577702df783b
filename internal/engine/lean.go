package engine

import (
	"context"
	"time"

	"github.com/rezkam/shiftengine/internal/dedup"
	"github.com/rezkam/shiftengine/internal/domain"
	"github.com/rezkam/shiftengine/internal/recurring"
)

// LeanResult is the abbreviated outcome of the single-template lean path: no
// audit, no conflicts, just what got created.
type LeanResult struct {
	Created []domain.Instance
}

// RunLean implements §4.9: a UI-initiated "regenerate this template now"
// action that bypasses cleanup, audit, overlap detection, and the
// concurrency guard entirely. It shares the §4.4/§4.5 recurrence and
// candidate-building primitives but short-circuits everything else.
func RunLean(ctx context.Context, repo Repository, templateID int64, t0 time.Time, deleteFutureUnlinked bool) (*LeanResult, error) {
	template, err := repo.LoadTemplateByID(ctx, templateID)
	if err != nil {
		return nil, err
	}

	today := dateOnly(t0)

	if deleteFutureUnlinked {
		ids, err := repo.FindTemplateUnlinkedFutureInstanceIDs(ctx, templateID, today)
		if err != nil {
			return nil, err
		}
		if len(ids) > 0 {
			if err := repo.DeleteInstancesBatch(ctx, ids); err != nil {
				return nil, err
			}
		}
	}

	stdKeys, err := repo.LoadStdKeys(ctx, today, today.AddDate(1, 0, 0))
	if err != nil {
		return nil, err
	}
	openKeys, err := repo.LoadOpenKeys(ctx, today, today.AddDate(1, 0, 0))
	if err != nil {
		return nil, err
	}
	keys := dedup.NewKeySet(len(stdKeys), len(openKeys))
	keys.LoadStd(stdKeys)
	keys.LoadOpen(openKeys)

	result := &LeanResult{}

	emit := func(targetDate time.Time) error {
		startTS := targetDate.Add(template.TimeIn)
		endTS := startTS.Add(template.ShiftSpan())
		std := domain.StdKeyOf(template.ClientID, template.EmployeeID, startTS, endTS)
		open := domain.OpenKeyOf(template.TemplateID, template.ClientID, template.EmployeeID, startTS, endTS)

		duplicate := keys.HasStd(std)
		if template.Kind == domain.ScheduleOpenClaim {
			duplicate = keys.HasOpen(open)
		}
		if duplicate {
			return nil
		}
		keys.Commit(std, open)

		note := domain.NoteWeekly
		if template.RecurringKind == domain.RecurringMonthly {
			note = domain.NoteMonthly
		}
		inst := domain.Instance{
			TemplateID: template.TemplateID, ClientID: template.ClientID, EmployeeID: template.EmployeeID,
			CompanyID: template.CompanyID, GroupID: template.GroupID, StartTS: startTS, EndTS: endTS,
			IsActive: true, Note: note,
		}
		id, err := repo.InsertInstanceSingle(ctx, inst)
		if err != nil {
			return err
		}
		inst.InstanceID = id
		result.Created = append(result.Created, inst)
		return nil
	}

	if template.RecurringKind == domain.RecurringWeekly {
		advanceEnd := today.AddDate(0, 0, 45)

		var valid map[time.Time]bool
		if template.WeekStride > 1 {
			tracking, err := repo.LoadTrackingRows(ctx)
			if err != nil {
				return result, err
			}
			tr := tracking[template.TemplateID]
			lastExisting, err := repo.LastExistingInstanceDate(ctx, template.TemplateID)
			if err != nil {
				return result, err
			}
			lastHistorical, err := repo.LastHistoricalMatchDate(ctx, template.TemplateID)
			if err != nil {
				return result, err
			}
			anchor := recurring.Resolve(recurring.AnchorInput{
				NeverRan:                 template.LastRun == nil,
				TrackingEditMode:         tr.EditMode,
				TrackingNextDate:         tr.NextDate,
				LastHistoricalDate:       lastHistorical,
				LastExistingInstanceDate: lastExisting,
				StartDate:                dateOnly(template.StartDate),
				Today:                    today,
			})
			valid = recurring.MultiWeekValidDates(anchor.Anchor, anchor.RestrictionDate, template.WeekStride, template.DaysOfWeek, advanceEnd)
		}

		for d := 0; d <= 45; d++ {
			targetDate := today.AddDate(0, 0, d)

			if template.WeekStride <= 1 {
				if !template.DaysOfWeek.Has(targetDate.Weekday()) {
					continue
				}
			} else if !valid[targetDate] {
				continue
			}

			if !effectiveOn(template, today, targetDate, false) {
				continue
			}

			if err := emit(targetDate); err != nil {
				return result, err
			}
		}
	} else {
		dow, ok := firstFlaggedDow(template.DaysOfWeek)
		if ok {
			monthStart := firstOfMonth(today)
			if targetDate, ok := recurring.NthWeekdayOfMonth(monthStart, dow, template.NthWeekday); ok {
				if !targetDate.Before(today) {
					if err := emit(targetDate); err != nil {
						return result, err
					}
				}
			}
		}
	}

	if template.RecurringKind == domain.RecurringMonthly {
		if err := repo.AdvanceMonthlyLastRun(ctx, []int64{template.TemplateID}, firstOfMonth(today).AddDate(0, 1, 0)); err != nil {
			return result, err
		}
	} else {
		if err := repo.AdvanceWeeklyLastRun(ctx, []int64{template.TemplateID}, t0); err != nil {
			return result, err
		}
	}

	return result, nil
}
