package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/rezkam/shiftengine/internal/domain"
)

const jobName = "shift_materialization"

// RunOptions carries the per-call overrides §6's HTTP/CLI surfaces accept.
// A nil/zero field means "use the configured default, no narrowing".
type RunOptions struct {
	CompanyID          *int64
	TemplateID         *int64
	AdvanceDays        *int
	MonthlyMonthsAhead *int
	Reset              bool
}

// Runner ties the session coordinator, snapshot loader, cleanup stage,
// expansion stage, and finalizer together behind one entry point, used
// identically by the CLI and the HTTP handler (§4.10).
type Runner struct {
	coordinator SessionCoordinator
	repo        Repository
	cleanup     *Cleanup
	expCfg      ExpansionConfig
	finalize    *Finalize
	logger      *slog.Logger
	leaseTTL    time.Duration

	running atomic.Bool // in-process guard, checked before the DB-backed coordinator
}

func NewRunner(coordinator SessionCoordinator, repo Repository, cleanup *Cleanup, expCfg ExpansionConfig, finalize *Finalize, leaseTTL time.Duration, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	if leaseTTL <= 0 {
		leaseTTL = 30 * time.Minute
	}
	return &Runner{coordinator: coordinator, repo: repo, cleanup: cleanup, expCfg: expCfg, finalize: finalize, leaseTTL: leaseTTL, logger: logger}
}

// Run executes one full cycle: begin session, cleanup, snapshot, expand,
// finalize, complete session — recovering panics into a PanicError and
// cancellation into a CancelledError, always releasing the session token.
func (r *Runner) Run(ctx context.Context, t0 time.Time, opts RunOptions) (summary *domain.RunSummary, err error) {
	if !r.running.CompareAndSwap(false, true) {
		return nil, ErrBlocked
	}
	defer r.running.Store(false)

	runID := uuid.Must(uuid.NewV7()).String()
	startedAt := time.Now()

	ok, err := r.coordinator.Begin(ctx, runID, startedAt, jobName, r.leaseTTL)
	if err != nil {
		return nil, Transient(err)
	}
	if !ok {
		r.logger.InfoContext(ctx, "run blocked: session already held", slog.String("job_name", jobName))
		return nil, ErrBlocked
	}

	defer func() {
		if p := recover(); p != nil {
			perr := &PanicError{Value: p, StackTrace: string(debug.Stack())}
			r.logger.ErrorContext(ctx, "run panicked", slog.String("run_id", runID), slog.String("error", perr.Error()))
			summary = &domain.RunSummary{RunID: runID, StartedAt: startedAt, Status: domain.RunFailed, Error: perr.Error()}
			endedAt := time.Now()
			finish(ctx, r, runID, summary, endedAt)
			err = perr
		}
	}()

	filter := NarrowingFilter{CompanyID: opts.CompanyID, TemplateID: opts.TemplateID}

	advanceDays := r.expCfg.AdvanceDays
	if opts.AdvanceDays != nil {
		advanceDays = *opts.AdvanceDays
	}
	monthlyMonthsAhead := r.expCfg.MonthlyMonthsAhead
	if opts.MonthlyMonthsAhead != nil {
		monthlyMonthsAhead = *opts.MonthlyMonthsAhead
	}

	today := dateOnly(t0)

	summary = &domain.RunSummary{RunID: runID, StartedAt: startedAt, Status: domain.RunRunning}
	if err := r.repo.CreateRunSummary(ctx, *summary); err != nil {
		r.logger.WarnContext(ctx, "run summary creation failed", slog.String("run_id", runID), slog.String("error", err.Error()))
	}

	r.logger.InfoContext(ctx, "cleanup stage starting", slog.String("run_id", runID))
	if err := r.cleanup.Run(ctx, today); err != nil {
		if cerr := asCancelled(err); cerr != nil {
			return r.cancel(ctx, runID, startedAt, domain.RunTotals{}, cerr)
		}
		r.logger.ErrorContext(ctx, "cleanup stage failed, proceeding with best-effort state",
			slog.String("run_id", runID), slog.String("error", err.Error()))
	}
	r.logger.InfoContext(ctx, "cleanup stage complete", slog.String("run_id", runID))

	tEnd := ExpansionWindowEnd(today, advanceDays, monthlyMonthsAhead)
	r.logger.InfoContext(ctx, "snapshot loading starting", slog.String("run_id", runID))
	snapshot, err := LoadSnapshot(ctx, r.repo, today, tEnd, filter)
	if err != nil {
		return r.fail(ctx, runID, startedAt, domain.RunTotals{}, fmt.Errorf("loading snapshot: %w", err))
	}
	r.logger.InfoContext(ctx, "snapshot loaded", slog.String("run_id", runID),
		slog.Int("weekly_templates", len(snapshot.WeeklyTemplates)), slog.Int("monthly_templates", len(snapshot.MonthlyTemplates)))

	expCfg := r.expCfg
	expCfg.AdvanceDays = advanceDays
	expCfg.MonthlyMonthsAhead = monthlyMonthsAhead
	expansion := NewExpansion(r.repo, expCfg, r.logger)

	r.logger.InfoContext(ctx, "expansion stage starting", slog.String("run_id", runID))
	result, err := expansion.Run(ctx, snapshot, runID, t0)
	if err != nil {
		if cerr := asCancelled(err); cerr != nil {
			return r.cancel(ctx, runID, startedAt, domain.RunTotals{}, cerr)
		}
		return r.fail(ctx, runID, startedAt, domain.RunTotals{}, fmt.Errorf("expansion stage: %w", err))
	}
	r.logger.InfoContext(ctx, "expansion stage complete", slog.String("run_id", runID),
		slog.Int("created", result.Totals.Created), slog.Int("duplicate", result.Totals.Duplicate),
		slog.Int("overlap", result.Totals.Overlap), slog.Int("error", result.Totals.Error))

	r.logger.InfoContext(ctx, "finalize stage starting", slog.String("run_id", runID))
	if err := r.finalize.Run(ctx, result, time.Now()); err != nil {
		return r.fail(ctx, runID, startedAt, result.Totals, fmt.Errorf("finalize stage: %w", err))
	}
	r.logger.InfoContext(ctx, "finalize stage complete", slog.String("run_id", runID))

	endedAt := time.Now()
	summary = &domain.RunSummary{
		RunID: runID, StartedAt: startedAt, CompletedAt: &endedAt,
		Totals: result.Totals, Status: domain.RunCompleted,
	}
	finish(ctx, r, runID, summary, endedAt)
	return summary, nil
}

func (r *Runner) cancel(ctx context.Context, runID string, startedAt time.Time, totals domain.RunTotals, cerr *CancelledError) (*domain.RunSummary, error) {
	endedAt := time.Now()
	summary := &domain.RunSummary{RunID: runID, StartedAt: startedAt, CompletedAt: &endedAt, Totals: totals, Status: domain.RunCancelled, Error: cerr.Error()}
	r.logger.InfoContext(ctx, "run cancelled", slog.String("run_id", runID))
	finish(ctx, r, runID, summary, endedAt)
	return summary, cerr
}

func (r *Runner) fail(ctx context.Context, runID string, startedAt time.Time, totals domain.RunTotals, err error) (*domain.RunSummary, error) {
	endedAt := time.Now()
	summary := &domain.RunSummary{RunID: runID, StartedAt: startedAt, CompletedAt: &endedAt, Totals: totals, Status: domain.RunFailed, Error: err.Error()}
	r.logger.ErrorContext(ctx, "run failed", slog.String("run_id", runID), slog.String("error", err.Error()))
	finish(ctx, r, runID, summary, endedAt)
	return summary, err
}

// finish is the guaranteed defer-equivalent step: update the run summary and
// release the session token regardless of how the run ended.
func finish(ctx context.Context, r *Runner, runID string, summary *domain.RunSummary, endedAt time.Time) {
	if err := r.repo.UpdateRunSummary(ctx, *summary); err != nil {
		r.logger.WarnContext(ctx, "run summary update failed", slog.String("run_id", runID), slog.String("error", err.Error()))
	}
	if err := r.coordinator.Complete(ctx, jobName, endedAt, summary.Elapsed()); err != nil {
		r.logger.WarnContext(ctx, "session release failed", slog.String("run_id", runID), slog.String("error", err.Error()))
	}
}

func asCancelled(err error) *CancelledError {
	var cerr *CancelledError
	if errors.As(err, &cerr) {
		return cerr
	}
	return nil
}
