package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rezkam/shiftengine/internal/dedup"
	"github.com/rezkam/shiftengine/internal/domain"
	"github.com/rezkam/shiftengine/internal/engine"
)

// noopRepo is a minimal engine.Repository implementation returning empty
// results for every read and succeeding every write, enough to drive a
// Runner through a trivial, template-free run.
type noopRepo struct{}

func (noopRepo) FindCleanupEligibleInstanceIDs(ctx context.Context, today time.Time) ([]int64, error) {
	return nil, nil
}
func (noopRepo) DeleteInstancesBatch(ctx context.Context, ids []int64) error { return nil }
func (noopRepo) FindResetMultiWeekTemplateIDs(ctx context.Context) ([]int64, error) {
	return nil, nil
}
func (noopRepo) LastConfirmedHistoricalDate(ctx context.Context, templateID int64) (*time.Time, error) {
	return nil, nil
}
func (noopRepo) SetTrackingForReset(ctx context.Context, templateID int64, nextDate time.Time) error {
	return nil
}
func (noopRepo) ClearTemplateReset(ctx context.Context, templateID int64, lastRun time.Time) error {
	return nil
}
func (noopRepo) PruneWorkingState(ctx context.Context, olderThan time.Time) error { return nil }
func (noopRepo) LoadTemplates(ctx context.Context, kind domain.RecurringKind, filter engine.NarrowingFilter) ([]domain.Template, error) {
	return nil, nil
}
func (noopRepo) LoadStdKeys(ctx context.Context, start, end time.Time) ([]domain.StdKey, error) {
	return nil, nil
}
func (noopRepo) LoadOpenKeys(ctx context.Context, start, end time.Time) ([]domain.OpenKey, error) {
	return nil, nil
}
func (noopRepo) LoadOverlapIntervals(ctx context.Context, start, end time.Time) (map[int64][]dedup.Interval, error) {
	return map[int64][]dedup.Interval{}, nil
}
func (noopRepo) LoadScanAreaTemplateIDs(ctx context.Context) (map[int64]bool, error) {
	return map[int64]bool{}, nil
}
func (noopRepo) LoadClaimTemplateIDs(ctx context.Context) (map[int64]bool, error) {
	return map[int64]bool{}, nil
}
func (noopRepo) LoadTrackingRows(ctx context.Context) (map[int64]domain.TrackingRow, error) {
	return map[int64]domain.TrackingRow{}, nil
}
func (noopRepo) LastExistingInstanceDate(ctx context.Context, templateID int64) (*time.Time, error) {
	return nil, nil
}
func (noopRepo) LastHistoricalMatchDate(ctx context.Context, templateID int64) (*time.Time, error) {
	return nil, nil
}
func (noopRepo) InsertInstancesBatch(ctx context.Context, batch []domain.Instance) ([]int64, error) {
	return nil, nil
}
func (noopRepo) InsertInstanceSingle(ctx context.Context, inst domain.Instance) (int64, error) {
	return 0, nil
}
func (noopRepo) CopyScanAreas(ctx context.Context, templateID, employeeID int64, targetDate time.Time, newInstanceID int64) error {
	return nil
}
func (noopRepo) CopyClaims(ctx context.Context, templateID, employeeID int64, targetDate time.Time, newInstanceID int64) error {
	return nil
}
func (noopRepo) MaterializeGroupRow(ctx context.Context, kind domain.RecurringKind, existingGroupID int64) (int64, error) {
	return 0, nil
}
func (noopRepo) AdvanceWeeklyLastRun(ctx context.Context, templateIDs []int64, now time.Time) error {
	return nil
}
func (noopRepo) AdvanceMonthlyLastRun(ctx context.Context, templateIDs []int64, firstOfNextMonth time.Time) error {
	return nil
}
func (noopRepo) UpdateTrackingNextDate(ctx context.Context, templateID int64, nextDate time.Time, changedThisRun, editMode bool) error {
	return nil
}
func (noopRepo) FlushAudit(ctx context.Context, rows []domain.AuditRow) error     { return nil }
func (noopRepo) FlushConflicts(ctx context.Context, rows []domain.ConflictRow) error { return nil }
func (noopRepo) PruneAudit(ctx context.Context, olderThan time.Time) error        { return nil }
func (noopRepo) CreateRunSummary(ctx context.Context, summary domain.RunSummary) error { return nil }
func (noopRepo) UpdateRunSummary(ctx context.Context, summary domain.RunSummary) error { return nil }
func (noopRepo) FindTemplateUnlinkedFutureInstanceIDs(ctx context.Context, templateID int64, today time.Time) ([]int64, error) {
	return nil, nil
}
func (noopRepo) LoadTemplateByID(ctx context.Context, templateID int64) (domain.Template, error) {
	return domain.Template{}, domain.ErrTemplateNotFound
}

// stubCoordinator lets a test decide whether Begin grants the session.
type stubCoordinator struct {
	grant bool
}

func (c stubCoordinator) Begin(ctx context.Context, runID string, startedAt time.Time, jobName string, leaseTTL time.Duration) (bool, error) {
	return c.grant, nil
}
func (c stubCoordinator) Complete(ctx context.Context, jobName string, endedAt time.Time, elapsed time.Duration) error {
	return nil
}

func newTestScheduler(grant bool) *Scheduler {
	cleanup := engine.NewCleanup(noopRepo{}, engine.CleanupConfig{RetryConfig: engine.RetryConfig{MaxRetries: 1, BaseDelay: time.Millisecond}}, nil)
	finalize := engine.NewFinalize(noopRepo{}, engine.FinalizeConfig{}, nil)
	expCfg := engine.ExpansionConfig{
		AdvanceDays: 45, MonthlyMonthsAhead: 3, InsertBatchSize: 1000,
		RetryConfig: engine.RetryConfig{MaxRetries: 1, BaseDelay: time.Millisecond},
	}
	runner := engine.NewRunner(stubCoordinator{grant: grant}, noopRepo{}, cleanup, expCfg, finalize, time.Minute, nil)
	return NewScheduler(runner, nil)
}

func TestStatus_ReturnsHealthyEnvelope(t *testing.T) {
	sched := newTestScheduler(true)
	req := httptest.NewRequest(http.MethodGet, "/scheduler/status", nil)
	rec := httptest.NewRecorder()

	sched.Status(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
	if body["status"] != "healthy" {
		t.Fatalf("expected status \"healthy\", got %v", body["status"])
	}
}

func TestRun_NoBody_CompletesSuccessfully(t *testing.T) {
	sched := newTestScheduler(true)
	req := httptest.NewRequest(http.MethodPost, "/scheduler/run", nil)
	rec := httptest.NewRecorder()

	sched.Run(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestRun_SessionAlreadyHeld_Returns409(t *testing.T) {
	sched := newTestScheduler(false)
	req := httptest.NewRequest(http.MethodPost, "/scheduler/run", nil)
	rec := httptest.NewRecorder()

	sched.Run(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestRun_InvalidJSONBody_Returns400(t *testing.T) {
	sched := newTestScheduler(true)
	req := httptest.NewRequest(http.MethodPost, "/scheduler/run", strings.NewReader("{not json"))
	req.ContentLength = int64(len("{not json"))
	rec := httptest.NewRecorder()

	sched.Run(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}
