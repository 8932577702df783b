package engine

import (
	"context"
	"log/slog"
	"time"
)

// FinalizeConfig holds the knobs the finalization stage reads from the
// configuration profile (§6).
type FinalizeConfig struct {
	AuditRetentionDays int
	AuditFlushBatch    int
}

// Finalize implements §4.7: advancing last_run for every loaded template
// (not only those that emitted instances), advancing multi-week tracking,
// flushing the audit trail, and pruning old rows.
type Finalize struct {
	repo   Repository
	cfg    FinalizeConfig
	logger *slog.Logger
}

func NewFinalize(repo Repository, cfg FinalizeConfig, logger *slog.Logger) *Finalize {
	if logger == nil {
		logger = slog.Default()
	}
	return &Finalize{repo: repo, cfg: cfg, logger: logger}
}

func (f *Finalize) Run(ctx context.Context, result *ExpansionResult, now time.Time) error {
	if len(result.WeeklyLoadedTemplateIDs) > 0 {
		if err := f.repo.AdvanceWeeklyLastRun(ctx, result.WeeklyLoadedTemplateIDs, now); err != nil {
			return Transient(err)
		}
	}

	for monthStart, ids := range result.MonthlyLoadedByMonth {
		if len(ids) == 0 {
			continue
		}
		nextMonth := firstOfMonth(monthStart).AddDate(0, 1, 0)
		if err := f.repo.AdvanceMonthlyLastRun(ctx, ids, nextMonth); err != nil {
			return Transient(err)
		}
	}

	for templateID, lastInstanceDate := range result.MultiWeekLastInstanceDate {
		if err := f.repo.UpdateTrackingNextDate(ctx, templateID, lastInstanceDate, false, false); err != nil {
			f.logger.ErrorContext(ctx, "finalize: advancing multi-week tracking failed",
				slog.Int64("template_id", templateID), slog.String("error", err.Error()))
		}
	}

	batchSize := f.cfg.AuditFlushBatch
	if batchSize <= 0 {
		batchSize = 1000
	}
	if err := flushInBatches(ctx, result.Audit, batchSize, f.repo.FlushAudit); err != nil {
		return Transient(err)
	}
	if err := flushInBatches(ctx, result.Conflicts, batchSize, f.repo.FlushConflicts); err != nil {
		return Transient(err)
	}

	retentionDays := f.cfg.AuditRetentionDays
	if retentionDays <= 0 {
		retentionDays = 3
	}
	cutoff := now.AddDate(0, 0, -retentionDays)
	if err := f.repo.PruneAudit(ctx, cutoff); err != nil {
		f.logger.ErrorContext(ctx, "finalize: pruning audit failed", slog.String("error", err.Error()))
	}

	return nil
}

func flushInBatches[T any](ctx context.Context, rows []T, batchSize int, flush func(context.Context, []T) error) error {
	for start := 0; start < len(rows); start += batchSize {
		end := start + batchSize
		if end > len(rows) {
			end = len(rows)
		}
		if err := flush(ctx, rows[start:end]); err != nil {
			return err
		}
	}
	return nil
}
