package engine

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/rezkam/shiftengine/internal/dedup"
	"github.com/rezkam/shiftengine/internal/domain"
	"github.com/rezkam/shiftengine/internal/recurring"
)

// ExpansionConfig holds the knobs the expansion stage reads from the
// configuration profile (§6).
type ExpansionConfig struct {
	AdvanceDays         int
	MonthlyMonthsAhead  int
	InsertBatchSize     int
	SleepBetweenBatches time.Duration
	RetryConfig         RetryConfig
}

// ExpansionResult carries everything the finalization stage needs plus the
// audit trail for the conservation/idempotence invariants.
type ExpansionResult struct {
	Totals    domain.RunTotals
	Audit     []domain.AuditRow
	Conflicts []domain.ConflictRow

	WeeklyLoadedTemplateIDs  []int64
	MonthlyLoadedByMonth     map[time.Time][]int64
	MultiWeekLastInstanceDate map[int64]time.Time
}

// Expansion drives the weekly/multi-week and monthly expansion described in §4.5.
type Expansion struct {
	repo   Repository
	cfg    ExpansionConfig
	logger *slog.Logger
}

func NewExpansion(repo Repository, cfg ExpansionConfig, logger *slog.Logger) *Expansion {
	if logger == nil {
		logger = slog.Default()
	}
	return &Expansion{repo: repo, cfg: cfg, logger: logger}
}

type pendingInstance struct {
	inst       domain.Instance
	template   domain.Template
	targetDate time.Time
	pattern    string
	kind       domain.RecurringKind
	auditIndex int
}

type batches struct {
	bulkOnly  []pendingInstance
	scanAreas []pendingInstance
	claims    []pendingInstance
}

// Run executes the whole expansion stage (weekly then monthly) for base date t0.
func (e *Expansion) Run(ctx context.Context, snapshot *Snapshot, runID string, t0 time.Time) (*ExpansionResult, error) {
	today := dateOnly(t0)
	result := &ExpansionResult{
		MonthlyLoadedByMonth:      make(map[time.Time][]int64),
		MultiWeekLastInstanceDate: make(map[int64]time.Time),
	}
	b := &batches{}

	// Precompute multi-week valid-date sets for stride>1 templates, once per template.
	multiWeekValid := make(map[int64]map[time.Time]bool)
	advanceEnd := today.AddDate(0, 0, e.cfg.AdvanceDays)

	sort.Slice(snapshot.WeeklyTemplates, func(i, j int) bool {
		return snapshot.WeeklyTemplates[i].TemplateID < snapshot.WeeklyTemplates[j].TemplateID
	})
	for _, t := range snapshot.WeeklyTemplates {
		result.WeeklyLoadedTemplateIDs = append(result.WeeklyLoadedTemplateIDs, t.TemplateID)
		if t.WeekStride > 1 {
			tr := snapshot.Tracking[t.TemplateID]
			lastHistorical, lastExisting, err := e.resolveMultiWeekHistory(ctx, t, tr)
			if err != nil {
				return nil, err
			}
			anchor := recurring.Resolve(recurring.AnchorInput{
				NeverRan:                 t.LastRun == nil,
				TrackingEditMode:         tr.EditMode,
				TrackingNextDate:         tr.NextDate,
				LastHistoricalDate:       lastHistorical,
				LastExistingInstanceDate: lastExisting,
				StartDate:                dateOnly(t.StartDate),
				Today:                    today,
			})
			multiWeekValid[t.TemplateID] = recurring.MultiWeekValidDates(anchor.Anchor, anchor.RestrictionDate, t.WeekStride, t.DaysOfWeek, advanceEnd)
		}
	}

	for day := 0; day <= e.cfg.AdvanceDays; day++ {
		targetDate := today.AddDate(0, 0, day)
		if err := e.expandWeeklyDay(ctx, snapshot, runID, today, targetDate, multiWeekValid, b, result); err != nil {
			return nil, err
		}
	}

	for month := 0; month < e.cfg.MonthlyMonthsAhead; month++ {
		monthStart := firstOfMonth(today).AddDate(0, month, 0)
		if err := e.expandMonth(ctx, snapshot, runID, today, monthStart, b, result); err != nil {
			return nil, err
		}
	}

	if err := e.flushAll(ctx, runID, b, result); err != nil {
		return nil, err
	}

	return result, nil
}

// resolveMultiWeekHistory reads the two anchor-resolution dates a stride>1
// template needs, retried transiently like every other bulk read this stage
// depends on; a failure here would otherwise resolve the wrong anchor or
// restriction date for the rest of the run, so it aborts the run rather than
// proceeding on a nil value the caller can't tell apart from "no history".
func (e *Expansion) resolveMultiWeekHistory(ctx context.Context, t domain.Template, tr domain.TrackingRow) (lastHistorical, lastExisting *time.Time, err error) {
	err = WithRetry(ctx, e.cfg.RetryConfig, func(ctx context.Context) error {
		var innerErr error
		lastExisting, innerErr = e.repo.LastExistingInstanceDate(ctx, t.TemplateID)
		return Transient(innerErr)
	})
	if err != nil {
		return nil, nil, err
	}

	err = WithRetry(ctx, e.cfg.RetryConfig, func(ctx context.Context) error {
		var innerErr error
		lastHistorical, innerErr = e.repo.LastHistoricalMatchDate(ctx, t.TemplateID)
		return Transient(innerErr)
	})
	if err != nil {
		return nil, nil, err
	}

	return lastHistorical, lastExisting, nil
}

func (e *Expansion) expandWeeklyDay(ctx context.Context, snapshot *Snapshot, runID string, today, targetDate time.Time, multiWeekValid map[int64]map[time.Time]bool, b *batches, result *ExpansionResult) error {
	groups := map[int64][]domain.Template{}

	for _, t := range snapshot.WeeklyTemplates {
		if !t.EligibleForWeekly(today) {
			continue
		}

		// Day-of-week filter. For stride == 1 no cycle arithmetic or restriction
		// date applies: every matching day-of-week in the window is valid.
		if t.WeekStride <= 1 {
			if !t.DaysOfWeek.Has(targetDate.Weekday()) {
				continue
			}
		} else {
			valid := multiWeekValid[t.TemplateID]
			if !valid[targetDate] {
				continue
			}
		}

		// Effectivity filter.
		if !effectiveOn(t, today, targetDate, false) {
			continue
		}

		if t.GroupID != 0 {
			groups[t.GroupID] = append(groups[t.GroupID], t)
			continue
		}

		if err := e.evaluateCandidate(ctx, snapshot, runID, t, targetDate, domain.RecurringWeekly, b, result); err != nil {
			return err
		}
	}

	return e.processGroups(ctx, snapshot, runID, domain.RecurringWeekly, targetDate, groups, result)
}

func (e *Expansion) expandMonth(ctx context.Context, snapshot *Snapshot, runID string, today, monthStart time.Time, b *batches, result *ExpansionResult) error {
	groups := map[time.Time]map[int64][]domain.Template{}
	var loadedIDs []int64
	lastDay := lastDayOfMonth(monthStart)

	for _, t := range snapshot.MonthlyTemplates {
		if !t.EligibleForMonthly(today, lastDay) {
			continue
		}
		loadedIDs = append(loadedIDs, t.TemplateID)

		targetDow, ok := firstFlaggedDow(t.DaysOfWeek)
		if !ok {
			result.Audit = append(result.Audit, domain.AuditRow{
				RunID: runID, TemplateID: t.TemplateID, Outcome: domain.OutcomeError,
				Kind: domain.RecurringMonthly, ErrorDesc: "monthly template has no weekday flag set",
			})
			result.Totals.Error++
			continue
		}
		targetDate, ok := recurring.NthWeekdayOfMonth(monthStart, targetDow, t.NthWeekday)
		if !ok {
			continue
		}
		if targetDate.Before(dateOnly(t.StartDate)) {
			continue
		}
		if !effectiveOn(t, today, targetDate, true) {
			continue
		}

		if t.GroupID != 0 {
			if groups[targetDate] == nil {
				groups[targetDate] = map[int64][]domain.Template{}
			}
			groups[targetDate][t.GroupID] = append(groups[targetDate][t.GroupID], t)
			continue
		}

		if err := e.evaluateCandidate(ctx, snapshot, runID, t, targetDate, domain.RecurringMonthly, b, result); err != nil {
			return err
		}
	}

	result.MonthlyLoadedByMonth[monthStart] = append(result.MonthlyLoadedByMonth[monthStart], loadedIDs...)
	dates := make([]time.Time, 0, len(groups))
	for d := range groups {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	for _, d := range dates {
		if err := e.processGroups(ctx, snapshot, runID, domain.RecurringMonthly, d, groups[d], result); err != nil {
			return err
		}
	}
	return nil
}

// effectiveOn implements step 2's effectivity filter.
func effectiveOn(t domain.Template, today, targetDate time.Time, monthly bool) bool {
	if dateOnly(t.StartDate).After(today) {
		return false
	}
	if t.EndDate != nil && dateOnly(*t.EndDate).Before(targetDate) {
		return false
	}
	if monthly && targetDate.Before(dateOnly(t.StartDate)) {
		return false
	}
	return true
}

func firstFlaggedDow(days domain.Weekday) (time.Weekday, bool) {
	for d := time.Sunday; d <= time.Saturday; d++ {
		if days.Has(d) {
			return d, true
		}
	}
	return time.Sunday, false
}

// evaluateCandidate implements steps 4-7 for one non-grouped candidate.
func (e *Expansion) evaluateCandidate(ctx context.Context, snapshot *Snapshot, runID string, t domain.Template, targetDate time.Time, kind domain.RecurringKind, b *batches, result *ExpansionResult) error {
	startTS := targetDate.Add(t.TimeIn)
	endTS := startTS.Add(t.ShiftSpan())

	std := domain.StdKeyOf(t.ClientID, t.EmployeeID, startTS, endTS)
	open := domain.OpenKeyOf(t.TemplateID, t.ClientID, t.EmployeeID, startTS, endTS)

	duplicate := false
	if t.Kind == domain.ScheduleOpenClaim {
		duplicate = snapshot.Keys.HasOpen(open)
	} else {
		duplicate = snapshot.Keys.HasStd(std)
	}
	if duplicate {
		result.Audit = append(result.Audit, auditRow(runID, t, kind, startTS, endTS, domain.OutcomeDuplicate, ""))
		result.Totals.Duplicate++
		return nil
	}

	if collision, ok := snapshot.Overlap.Probe(t.EmployeeID, t.ClientID, startTS, endTS); ok {
		result.Audit = append(result.Audit, auditRow(runID, t, kind, startTS, endTS, domain.OutcomeOverlap, ""))
		result.Conflicts = append(result.Conflicts, domain.ConflictRow{
			RunID: runID, TemplateID: t.TemplateID, EmployeeID: t.EmployeeID,
			BlockedClientID: t.ClientID, BlockedStartTS: startTS, BlockedEndTS: endTS,
			CollidingInstanceID: collision.InstanceID, CollidingTemplateID: collision.TemplateID,
			CollidingClientID: collision.ClientID, CollidingStartTS: collision.StartTS, CollidingEndTS: collision.EndTS,
			DetectedAt: time.Now(),
		})
		result.Totals.Overlap++
		return nil
	}

	snapshot.Keys.Commit(std, open)
	snapshot.Overlap.Register(t.EmployeeID, dedup.Interval{StartTS: startTS, EndTS: endTS, ClientID: t.ClientID, TemplateID: t.TemplateID})
	result.Totals.Created++
	if kind == domain.RecurringWeekly && t.WeekStride > 1 {
		if existing, ok := result.MultiWeekLastInstanceDate[t.TemplateID]; !ok || targetDate.After(existing) {
			result.MultiWeekLastInstanceDate[t.TemplateID] = targetDate
		}
	}

	note := domain.NoteWeekly
	if kind == domain.RecurringMonthly {
		note = domain.NoteMonthly
	}
	inst := domain.Instance{
		TemplateID: t.TemplateID, ClientID: t.ClientID, EmployeeID: t.EmployeeID,
		CompanyID: t.CompanyID, GroupID: t.GroupID, StartTS: startTS, EndTS: endTS,
		IsActive: true, Note: note,
	}
	result.Audit = append(result.Audit, auditRow(runID, t, kind, startTS, endTS, domain.OutcomeCreated, ""))
	pi := pendingInstance{inst: inst, template: t, targetDate: targetDate, kind: kind, auditIndex: len(result.Audit) - 1}

	switch {
	case kind == domain.RecurringWeekly && snapshot.HasClaims[t.TemplateID]:
		b.claims = append(b.claims, pi)
	case snapshot.HasScanAreas[t.TemplateID]:
		b.scanAreas = append(b.scanAreas, pi)
	default:
		b.bulkOnly = append(b.bulkOnly, pi)
	}

	return e.maybeFlush(ctx, runID, b, result)
}

// processGroups implements step 7's Group routing: templates sharing a
// group_id are deduplicated to one representative (lowest template id)
// before the clone-or-create dispatch, then every member not already
// present in the dedup sets gets its own instance against the same group row.
func (e *Expansion) processGroups(ctx context.Context, snapshot *Snapshot, runID string, kind domain.RecurringKind, targetDate time.Time, groups map[int64][]domain.Template, result *ExpansionResult) error {
	groupIDs := make([]int64, 0, len(groups))
	for gid := range groups {
		groupIDs = append(groupIDs, gid)
	}
	sort.Slice(groupIDs, func(i, j int) bool { return groupIDs[i] < groupIDs[j] })

	for _, gid := range groupIDs {
		members := groups[gid]
		sort.Slice(members, func(i, j int) bool { return members[i].TemplateID < members[j].TemplateID })
		representative := members[0]

		newGroupID, err := e.repo.MaterializeGroupRow(ctx, kind, representative.GroupID)
		if err != nil {
			result.Audit = append(result.Audit, domain.AuditRow{
				RunID: runID, TemplateID: representative.TemplateID, Outcome: domain.OutcomeError,
				Kind: kind, ErrorDesc: err.Error(),
			})
			result.Totals.Error++
			continue
		}

		for _, t := range members {
			startTS := targetDate.Add(t.TimeIn)
			endTS := startTS.Add(t.ShiftSpan())
			std := domain.StdKeyOf(t.ClientID, t.EmployeeID, startTS, endTS)
			open := domain.OpenKeyOf(t.TemplateID, t.ClientID, t.EmployeeID, startTS, endTS)

			alreadyPresent := snapshot.Keys.HasStd(std)
			if t.Kind == domain.ScheduleOpenClaim {
				alreadyPresent = snapshot.Keys.HasOpen(open)
			}
			if alreadyPresent {
				result.Audit = append(result.Audit, auditRow(runID, t, kind, startTS, endTS, domain.OutcomeDuplicate, ""))
				result.Totals.Duplicate++
				continue
			}
			if collision, ok := snapshot.Overlap.Probe(t.EmployeeID, t.ClientID, startTS, endTS); ok {
				result.Audit = append(result.Audit, auditRow(runID, t, kind, startTS, endTS, domain.OutcomeOverlap, ""))
				result.Conflicts = append(result.Conflicts, domain.ConflictRow{
					RunID: runID, TemplateID: t.TemplateID, EmployeeID: t.EmployeeID,
					BlockedClientID: t.ClientID, BlockedStartTS: startTS, BlockedEndTS: endTS,
					CollidingInstanceID: collision.InstanceID, CollidingTemplateID: collision.TemplateID,
					CollidingClientID: collision.ClientID, CollidingStartTS: collision.StartTS, CollidingEndTS: collision.EndTS,
					DetectedAt: time.Now(),
				})
				result.Totals.Overlap++
				continue
			}

			note := domain.NoteWeekly
			if kind == domain.RecurringMonthly {
				note = domain.NoteMonthly
			}
			inst := domain.Instance{
				TemplateID: t.TemplateID, ClientID: t.ClientID, EmployeeID: t.EmployeeID,
				CompanyID: t.CompanyID, GroupID: newGroupID, StartTS: startTS, EndTS: endTS,
				IsActive: true, Note: note,
			}
			id, err := e.repo.InsertInstanceSingle(ctx, inst)
			if err != nil {
				result.Audit = append(result.Audit, domain.AuditRow{
					RunID: runID, TemplateID: t.TemplateID, Outcome: domain.OutcomeError, Kind: kind, ErrorDesc: err.Error(),
				})
				result.Totals.Error++
				continue
			}
			snapshot.Keys.Commit(std, open)
			snapshot.Overlap.Register(t.EmployeeID, dedup.Interval{StartTS: startTS, EndTS: endTS, ClientID: t.ClientID, TemplateID: t.TemplateID, InstanceID: id})
			result.Totals.Created++
			row := auditRow(runID, t, kind, startTS, endTS, domain.OutcomeCreated, "")
			row.InstanceID = &id
			result.Audit = append(result.Audit, row)
		}
	}
	return nil
}

func (e *Expansion) maybeFlush(ctx context.Context, runID string, b *batches, result *ExpansionResult) error {
	size := e.cfg.InsertBatchSize
	if size <= 0 {
		size = 1000
	}
	if len(b.bulkOnly) >= size {
		if err := e.flushBucket(ctx, runID, &b.bulkOnly, false, false, result); err != nil {
			return err
		}
	}
	if len(b.scanAreas) >= size {
		if err := e.flushBucket(ctx, runID, &b.scanAreas, true, false, result); err != nil {
			return err
		}
	}
	if len(b.claims) >= size {
		if err := e.flushBucket(ctx, runID, &b.claims, true, true, result); err != nil {
			return err
		}
	}
	return nil
}

func (e *Expansion) flushAll(ctx context.Context, runID string, b *batches, result *ExpansionResult) error {
	if err := e.flushBucket(ctx, runID, &b.bulkOnly, false, false, result); err != nil {
		return err
	}
	if err := e.flushBucket(ctx, runID, &b.scanAreas, true, false, result); err != nil {
		return err
	}
	if err := e.flushBucket(ctx, runID, &b.claims, true, true, result); err != nil {
		return err
	}
	return nil
}

// flushBucket inserts one batch and, for buckets that carry scan-area/claim
// links, copies them onto the newly assigned instance ids. The batch insert
// itself is abort-on-exhaustion: every audit row already queued for this
// bucket points at an instance that would otherwise never exist. The
// per-instance copy calls are retried the same way but, once retries are
// exhausted, downgrade to an error-outcome audit row instead of aborting the
// run: the instance is already committed, so failing to copy its scan areas
// or claims is a defect in that one instance, not a reason to lose every
// other instance still queued behind it.
func (e *Expansion) flushBucket(ctx context.Context, runID string, bucket *[]pendingInstance, copyScanAreas, copyClaims bool, result *ExpansionResult) error {
	items := *bucket
	if len(items) == 0 {
		return nil
	}
	*bucket = nil

	insts := make([]domain.Instance, len(items))
	for i, pi := range items {
		insts[i] = pi.inst
	}

	var ids []int64
	err := WithRetry(ctx, e.cfg.RetryConfig, func(ctx context.Context) error {
		var err error
		ids, err = e.repo.InsertInstancesBatch(ctx, insts)
		return Transient(err)
	})
	if err != nil {
		return err
	}

	for i, pi := range items {
		id := ids[i]
		result.Audit[pi.auditIndex].InstanceID = &id

		if copyScanAreas {
			if err := WithRetry(ctx, e.cfg.RetryConfig, func(ctx context.Context) error {
				return Transient(e.repo.CopyScanAreas(ctx, pi.template.TemplateID, pi.template.EmployeeID, pi.targetDate, id))
			}); err != nil {
				e.logger.Error("copy scan areas failed", "template_id", pi.template.TemplateID, "instance_id", id, "error", err)
				result.Audit = append(result.Audit, domain.AuditRow{
					RunID: runID, TemplateID: pi.template.TemplateID, InstanceID: &id, Kind: pi.kind,
					Outcome: domain.OutcomeError, ErrorDesc: "copy scan areas: " + err.Error(),
				})
				result.Totals.Error++
			}
		}
		if copyClaims {
			if err := WithRetry(ctx, e.cfg.RetryConfig, func(ctx context.Context) error {
				return Transient(e.repo.CopyClaims(ctx, pi.template.TemplateID, pi.template.EmployeeID, pi.targetDate, id))
			}); err != nil {
				e.logger.Error("copy claims failed", "template_id", pi.template.TemplateID, "instance_id", id, "error", err)
				result.Audit = append(result.Audit, domain.AuditRow{
					RunID: runID, TemplateID: pi.template.TemplateID, InstanceID: &id, Kind: pi.kind,
					Outcome: domain.OutcomeError, ErrorDesc: "copy claims: " + err.Error(),
				})
				result.Totals.Error++
			}
		}
	}

	select {
	case <-time.After(e.cfg.SleepBetweenBatches):
	case <-ctx.Done():
		return &CancelledError{Reason: ctx.Err().Error()}
	}
	return nil
}

func auditRow(runID string, t domain.Template, kind domain.RecurringKind, start, end time.Time, outcome domain.Outcome, errDesc string) domain.AuditRow {
	return domain.AuditRow{
		RunID: runID, TemplateID: t.TemplateID, StartTS: start, EndTS: end,
		Outcome: outcome, Kind: kind, RecurrencePattern: recurrencePattern(t), ErrorDesc: errDesc,
	}
}

func recurrencePattern(t domain.Template) string {
	if t.RecurringKind == domain.RecurringMonthly {
		return "Monthly"
	}
	if t.WeekStride > 1 {
		return "Multi-week"
	}
	return "Weekly"
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func firstOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

func lastDayOfMonth(monthStart time.Time) time.Time {
	return firstOfMonth(monthStart).AddDate(0, 1, -1)
}
