package engine

import (
	"context"
	"log/slog"
	"time"
)

// CleanupConfig holds the knobs the cleanup stage reads from the
// configuration profile (§6).
type CleanupConfig struct {
	DeleteBatchSize       int
	SleepBetweenBatches   time.Duration
	HistoryRetentionDays  int
	RetryConfig           RetryConfig
}

// Cleanup retracts instances no longer justified by their template (§4.2).
// A cleanup failure is logged and returned to the caller, who is expected to
// record it in the run summary and proceed with expansion regardless
// (failure policy: cleanup never aborts a run).
type Cleanup struct {
	repo   Repository
	cfg    CleanupConfig
	logger *slog.Logger
}

func NewCleanup(repo Repository, cfg CleanupConfig, logger *slog.Logger) *Cleanup {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cleanup{repo: repo, cfg: cfg, logger: logger}
}

// Run executes phases A-D. today is the run's base date, truncated to midnight.
func (c *Cleanup) Run(ctx context.Context, today time.Time) error {
	// Phase A: compute the eligible id set.
	var ids []int64
	err := WithRetry(ctx, c.cfg.RetryConfig, func(ctx context.Context) error {
		var err error
		ids, err = c.repo.FindCleanupEligibleInstanceIDs(ctx, today)
		return Transient(err)
	})
	if err != nil {
		return err
	}
	c.logger.InfoContext(ctx, "cleanup: eligible instances found", slog.Int("count", len(ids)))

	// Phase B: delete-by-id in batches, each batch its own transaction.
	batchSize := c.cfg.DeleteBatchSize
	if batchSize <= 0 {
		batchSize = 5000
	}
	for start := 0; start < len(ids); start += batchSize {
		end := start + batchSize
		if end > len(ids) {
			end = len(ids)
		}
		batch := ids[start:end]

		err := WithRetry(ctx, c.cfg.RetryConfig, func(ctx context.Context) error {
			return Transient(c.repo.DeleteInstancesBatch(ctx, batch))
		})
		if err != nil {
			return err
		}

		if end < len(ids) {
			select {
			case <-time.After(c.cfg.SleepBetweenBatches):
			case <-ctx.Done():
				return &CancelledError{Reason: ctx.Err().Error()}
			}
		}
	}

	// Phase C: reset multi-week anchors for templates marked is_reset.
	resetIDs, err := c.repo.FindResetMultiWeekTemplateIDs(ctx)
	if err != nil {
		c.logger.ErrorContext(ctx, "cleanup: finding reset templates failed", slog.String("error", err.Error()))
		return err
	}
	for _, templateID := range resetIDs {
		lastConfirmed, err := c.repo.LastConfirmedHistoricalDate(ctx, templateID)
		if err != nil {
			c.logger.ErrorContext(ctx, "cleanup: resolving last confirmed date failed",
				slog.Int64("template_id", templateID), slog.String("error", err.Error()))
			continue
		}
		nextDate := today
		if lastConfirmed != nil {
			nextDate = *lastConfirmed
		}
		if err := c.repo.SetTrackingForReset(ctx, templateID, nextDate); err != nil {
			c.logger.ErrorContext(ctx, "cleanup: setting tracking for reset failed",
				slog.Int64("template_id", templateID), slog.String("error", err.Error()))
			continue
		}
		if err := c.repo.ClearTemplateReset(ctx, templateID, today.AddDate(0, 0, -1)); err != nil {
			c.logger.ErrorContext(ctx, "cleanup: clearing template reset failed",
				slog.Int64("template_id", templateID), slog.String("error", err.Error()))
		}
	}

	// Phase D: truncate engine working tables; prune stale history.
	retentionDays := c.cfg.HistoryRetentionDays
	if retentionDays <= 0 {
		retentionDays = 120
	}
	cutoff := today.AddDate(0, 0, -retentionDays)
	if err := c.repo.PruneWorkingState(ctx, cutoff); err != nil {
		c.logger.ErrorContext(ctx, "cleanup: pruning working state failed", slog.String("error", err.Error()))
		return err
	}

	return nil
}
