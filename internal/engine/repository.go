package engine

import (
	"context"
	"time"

	"github.com/rezkam/shiftengine/internal/dedup"
	"github.com/rezkam/shiftengine/internal/domain"
)

// NarrowingFilter optionally restricts a run to one company and/or one template,
// per the HTTP control plane's request body (§6).
type NarrowingFilter struct {
	CompanyID  *int64
	TemplateID *int64
}

// SessionCoordinator provides exactly-one-active-run semantics across every
// process sharing the database (§4.1). The HTTP handler additionally layers
// an in-process guard in front of it; the coordinator itself is always the
// source of truth.
type SessionCoordinator interface {
	// Begin atomically claims the session token for jobName. ok is false
	// (with a nil error) if another session currently holds it.
	Begin(ctx context.Context, runID string, startedAt time.Time, jobName string, leaseTTL time.Duration) (ok bool, err error)
	// Complete releases the token and records the run's duration.
	Complete(ctx context.Context, jobName string, endedAt time.Time, elapsed time.Duration) error
}

// Repository is the engine's view of persistent storage: every bulk read the
// snapshot loader needs, every batched write the expansion/cleanup/finalize
// stages need, and the run-summary bookkeeping. One implementation lives in
// internal/infrastructure/persistence/postgres.
type Repository interface {
	// Cleanup (§4.2)
	FindCleanupEligibleInstanceIDs(ctx context.Context, today time.Time) ([]int64, error)
	DeleteInstancesBatch(ctx context.Context, ids []int64) error
	FindResetMultiWeekTemplateIDs(ctx context.Context) ([]int64, error)
	LastConfirmedHistoricalDate(ctx context.Context, templateID int64) (*time.Time, error)
	SetTrackingForReset(ctx context.Context, templateID int64, nextDate time.Time) error
	ClearTemplateReset(ctx context.Context, templateID int64, lastRun time.Time) error
	PruneWorkingState(ctx context.Context, olderThan time.Time) error

	// Snapshot (§4.3)
	LoadTemplates(ctx context.Context, kind domain.RecurringKind, filter NarrowingFilter) ([]domain.Template, error)
	LoadStdKeys(ctx context.Context, start, end time.Time) ([]domain.StdKey, error)
	LoadOpenKeys(ctx context.Context, start, end time.Time) ([]domain.OpenKey, error)
	LoadOverlapIntervals(ctx context.Context, start, end time.Time) (map[int64][]dedup.Interval, error)
	LoadScanAreaTemplateIDs(ctx context.Context) (map[int64]bool, error)
	LoadClaimTemplateIDs(ctx context.Context) (map[int64]bool, error)
	LoadTrackingRows(ctx context.Context) (map[int64]domain.TrackingRow, error)
	LastExistingInstanceDate(ctx context.Context, templateID int64) (*time.Time, error)
	LastHistoricalMatchDate(ctx context.Context, templateID int64) (*time.Time, error)

	// Expansion writes (§4.5)
	InsertInstancesBatch(ctx context.Context, batch []domain.Instance) ([]int64, error)
	InsertInstanceSingle(ctx context.Context, inst domain.Instance) (int64, error)
	CopyScanAreas(ctx context.Context, templateID, employeeID int64, targetDate time.Time, newInstanceID int64) error
	CopyClaims(ctx context.Context, templateID, employeeID int64, targetDate time.Time, newInstanceID int64) error
	// MaterializeGroupRow implements the clone-or-create duality: weekly
	// clones existingGroupID's row, monthly creates a fresh one. Dispatch is
	// on kind, never on call-site.
	MaterializeGroupRow(ctx context.Context, kind domain.RecurringKind, existingGroupID int64) (int64, error)

	// Finalization (§4.7)
	AdvanceWeeklyLastRun(ctx context.Context, templateIDs []int64, now time.Time) error
	AdvanceMonthlyLastRun(ctx context.Context, templateIDs []int64, firstOfNextMonth time.Time) error
	UpdateTrackingNextDate(ctx context.Context, templateID int64, nextDate time.Time, changedThisRun, editMode bool) error
	FlushAudit(ctx context.Context, rows []domain.AuditRow) error
	FlushConflicts(ctx context.Context, rows []domain.ConflictRow) error
	PruneAudit(ctx context.Context, olderThan time.Time) error

	// Run summary
	CreateRunSummary(ctx context.Context, summary domain.RunSummary) error
	UpdateRunSummary(ctx context.Context, summary domain.RunSummary) error

	// Lean path (§4.9)
	FindTemplateUnlinkedFutureInstanceIDs(ctx context.Context, templateID int64, today time.Time) ([]int64, error)
	LoadTemplateByID(ctx context.Context, templateID int64) (domain.Template, error)
}
