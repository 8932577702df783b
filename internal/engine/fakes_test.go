package engine

import (
	"context"
	"sync"
	"time"

	"github.com/rezkam/shiftengine/internal/dedup"
	"github.com/rezkam/shiftengine/internal/domain"
)

// fakeRepository is an in-memory Repository stand-in shared by every
// engine test, following the teacher's func-field mock-repository shape
// (internal/application/worker/worker_test.go): a function field per
// method, overridden per test, with a reasonable zero-value default.
type fakeRepository struct {
	mu sync.Mutex

	templates []domain.Template
	instances []domain.Instance
	nextID    int64

	findCleanupEligibleFunc func(ctx context.Context, today time.Time) ([]int64, error)
	deleteInstancesFunc     func(ctx context.Context, ids []int64) error

	loadTemplatesFunc func(ctx context.Context, kind domain.RecurringKind, filter NarrowingFilter) ([]domain.Template, error)

	insertBatchFunc func(ctx context.Context, batch []domain.Instance) ([]int64, error)

	createRunSummaryErr error
	updateRunSummaryErr error

	loadTemplateByIDFunc func(ctx context.Context, templateID int64) (domain.Template, error)

	findResetMultiWeekTemplateIDsFunc func(ctx context.Context) ([]int64, error)
	lastConfirmedHistoricalDateFunc    func(ctx context.Context, templateID int64) (*time.Time, error)
	setTrackingForResetFunc            func(ctx context.Context, templateID int64, nextDate time.Time) error
	clearTemplateResetFunc             func(ctx context.Context, templateID int64, lastRun time.Time) error
	pruneWorkingStateFunc              func(ctx context.Context, olderThan time.Time) error

	flushAuditFunc func(ctx context.Context, rows []domain.AuditRow) error
	pruneAuditFunc func(ctx context.Context, olderThan time.Time) error

	advanceWeeklyLastRunFunc   func(ctx context.Context, templateIDs []int64, now time.Time) error
	advanceMonthlyLastRunFunc  func(ctx context.Context, templateIDs []int64, firstOfNextMonth time.Time) error
	updateTrackingNextDateFunc func(ctx context.Context, templateID int64, nextDate time.Time, changedThisRun, editMode bool) error

	copyScanAreasFunc           func(ctx context.Context, templateID, employeeID int64, targetDate time.Time, newInstanceID int64) error
	copyClaimsFunc              func(ctx context.Context, templateID, employeeID int64, targetDate time.Time, newInstanceID int64) error
	lastExistingInstanceDateFunc func(ctx context.Context, templateID int64) (*time.Time, error)
	lastHistoricalMatchDateFunc  func(ctx context.Context, templateID int64) (*time.Time, error)
	loadTrackingRowsFunc         func(ctx context.Context) (map[int64]domain.TrackingRow, error)
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{nextID: 1}
}

func (f *fakeRepository) FindCleanupEligibleInstanceIDs(ctx context.Context, today time.Time) ([]int64, error) {
	if f.findCleanupEligibleFunc != nil {
		return f.findCleanupEligibleFunc(ctx, today)
	}
	return nil, nil
}

func (f *fakeRepository) DeleteInstancesBatch(ctx context.Context, ids []int64) error {
	if f.deleteInstancesFunc != nil {
		return f.deleteInstancesFunc(ctx, ids)
	}
	return nil
}

func (f *fakeRepository) FindResetMultiWeekTemplateIDs(ctx context.Context) ([]int64, error) {
	if f.findResetMultiWeekTemplateIDsFunc != nil {
		return f.findResetMultiWeekTemplateIDsFunc(ctx)
	}
	return nil, nil
}

func (f *fakeRepository) LastConfirmedHistoricalDate(ctx context.Context, templateID int64) (*time.Time, error) {
	if f.lastConfirmedHistoricalDateFunc != nil {
		return f.lastConfirmedHistoricalDateFunc(ctx, templateID)
	}
	return nil, nil
}

func (f *fakeRepository) SetTrackingForReset(ctx context.Context, templateID int64, nextDate time.Time) error {
	if f.setTrackingForResetFunc != nil {
		return f.setTrackingForResetFunc(ctx, templateID, nextDate)
	}
	return nil
}

func (f *fakeRepository) ClearTemplateReset(ctx context.Context, templateID int64, lastRun time.Time) error {
	if f.clearTemplateResetFunc != nil {
		return f.clearTemplateResetFunc(ctx, templateID, lastRun)
	}
	return nil
}

func (f *fakeRepository) PruneWorkingState(ctx context.Context, olderThan time.Time) error {
	if f.pruneWorkingStateFunc != nil {
		return f.pruneWorkingStateFunc(ctx, olderThan)
	}
	return nil
}

func (f *fakeRepository) LoadTemplates(ctx context.Context, kind domain.RecurringKind, filter NarrowingFilter) ([]domain.Template, error) {
	if f.loadTemplatesFunc != nil {
		return f.loadTemplatesFunc(ctx, kind, filter)
	}
	var out []domain.Template
	for _, t := range f.templates {
		if t.RecurringKind == kind {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeRepository) LoadStdKeys(ctx context.Context, start, end time.Time) ([]domain.StdKey, error) {
	return nil, nil
}

func (f *fakeRepository) LoadOpenKeys(ctx context.Context, start, end time.Time) ([]domain.OpenKey, error) {
	return nil, nil
}

func (f *fakeRepository) LoadOverlapIntervals(ctx context.Context, start, end time.Time) (map[int64][]dedup.Interval, error) {
	return map[int64][]dedup.Interval{}, nil
}

func (f *fakeRepository) LoadScanAreaTemplateIDs(ctx context.Context) (map[int64]bool, error) {
	return map[int64]bool{}, nil
}

func (f *fakeRepository) LoadClaimTemplateIDs(ctx context.Context) (map[int64]bool, error) {
	return map[int64]bool{}, nil
}

func (f *fakeRepository) LoadTrackingRows(ctx context.Context) (map[int64]domain.TrackingRow, error) {
	if f.loadTrackingRowsFunc != nil {
		return f.loadTrackingRowsFunc(ctx)
	}
	return map[int64]domain.TrackingRow{}, nil
}

func (f *fakeRepository) LastExistingInstanceDate(ctx context.Context, templateID int64) (*time.Time, error) {
	if f.lastExistingInstanceDateFunc != nil {
		return f.lastExistingInstanceDateFunc(ctx, templateID)
	}
	return nil, nil
}

func (f *fakeRepository) LastHistoricalMatchDate(ctx context.Context, templateID int64) (*time.Time, error) {
	if f.lastHistoricalMatchDateFunc != nil {
		return f.lastHistoricalMatchDateFunc(ctx, templateID)
	}
	return nil, nil
}

func (f *fakeRepository) InsertInstancesBatch(ctx context.Context, batch []domain.Instance) ([]int64, error) {
	if f.insertBatchFunc != nil {
		return f.insertBatchFunc(ctx, batch)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]int64, len(batch))
	for i := range batch {
		ids[i] = f.nextID
		f.nextID++
	}
	f.instances = append(f.instances, batch...)
	return ids, nil
}

func (f *fakeRepository) InsertInstanceSingle(ctx context.Context, inst domain.Instance) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID
	f.nextID++
	f.instances = append(f.instances, inst)
	return id, nil
}

func (f *fakeRepository) CopyScanAreas(ctx context.Context, templateID, employeeID int64, targetDate time.Time, newInstanceID int64) error {
	if f.copyScanAreasFunc != nil {
		return f.copyScanAreasFunc(ctx, templateID, employeeID, targetDate, newInstanceID)
	}
	return nil
}

func (f *fakeRepository) CopyClaims(ctx context.Context, templateID, employeeID int64, targetDate time.Time, newInstanceID int64) error {
	if f.copyClaimsFunc != nil {
		return f.copyClaimsFunc(ctx, templateID, employeeID, targetDate, newInstanceID)
	}
	return nil
}

func (f *fakeRepository) MaterializeGroupRow(ctx context.Context, kind domain.RecurringKind, existingGroupID int64) (int64, error) {
	if kind == domain.RecurringWeekly && existingGroupID != 0 {
		return existingGroupID, nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID
	f.nextID++
	return id, nil
}

func (f *fakeRepository) AdvanceWeeklyLastRun(ctx context.Context, templateIDs []int64, now time.Time) error {
	if f.advanceWeeklyLastRunFunc != nil {
		return f.advanceWeeklyLastRunFunc(ctx, templateIDs, now)
	}
	return nil
}

func (f *fakeRepository) AdvanceMonthlyLastRun(ctx context.Context, templateIDs []int64, firstOfNextMonth time.Time) error {
	if f.advanceMonthlyLastRunFunc != nil {
		return f.advanceMonthlyLastRunFunc(ctx, templateIDs, firstOfNextMonth)
	}
	return nil
}

func (f *fakeRepository) UpdateTrackingNextDate(ctx context.Context, templateID int64, nextDate time.Time, changedThisRun, editMode bool) error {
	if f.updateTrackingNextDateFunc != nil {
		return f.updateTrackingNextDateFunc(ctx, templateID, nextDate, changedThisRun, editMode)
	}
	return nil
}

func (f *fakeRepository) FlushAudit(ctx context.Context, rows []domain.AuditRow) error {
	if f.flushAuditFunc != nil {
		return f.flushAuditFunc(ctx, rows)
	}
	return nil
}

func (f *fakeRepository) FlushConflicts(ctx context.Context, rows []domain.ConflictRow) error {
	return nil
}

func (f *fakeRepository) PruneAudit(ctx context.Context, olderThan time.Time) error {
	if f.pruneAuditFunc != nil {
		return f.pruneAuditFunc(ctx, olderThan)
	}
	return nil
}

func (f *fakeRepository) CreateRunSummary(ctx context.Context, summary domain.RunSummary) error {
	return f.createRunSummaryErr
}

func (f *fakeRepository) UpdateRunSummary(ctx context.Context, summary domain.RunSummary) error {
	return f.updateRunSummaryErr
}

func (f *fakeRepository) FindTemplateUnlinkedFutureInstanceIDs(ctx context.Context, templateID int64, today time.Time) ([]int64, error) {
	return nil, nil
}

func (f *fakeRepository) LoadTemplateByID(ctx context.Context, templateID int64) (domain.Template, error) {
	if f.loadTemplateByIDFunc != nil {
		return f.loadTemplateByIDFunc(ctx, templateID)
	}
	for _, t := range f.templates {
		if t.TemplateID == templateID {
			return t, nil
		}
	}
	return domain.Template{}, domain.ErrTemplateNotFound
}

// fakeCoordinator is an in-memory SessionCoordinator stand-in.
type fakeCoordinator struct {
	mu       sync.Mutex
	held     bool
	beginErr error

	completedJobName string
	completedElapsed time.Duration
}

func (c *fakeCoordinator) Begin(ctx context.Context, runID string, startedAt time.Time, jobName string, leaseTTL time.Duration) (bool, error) {
	if c.beginErr != nil {
		return false, c.beginErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.held {
		return false, nil
	}
	c.held = true
	return true, nil
}

func (c *fakeCoordinator) Complete(ctx context.Context, jobName string, endedAt time.Time, elapsed time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.held = false
	c.completedJobName = jobName
	c.completedElapsed = elapsed
	return nil
}
