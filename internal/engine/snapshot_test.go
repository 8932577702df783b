package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rezkam/shiftengine/internal/dedup"
	"github.com/rezkam/shiftengine/internal/domain"
)

func TestLoadSnapshot_PartitionsTemplatesByRecurringKind(t *testing.T) {
	repo := newFakeRepository()
	repo.templates = []domain.Template{
		{TemplateID: 1, RecurringKind: domain.RecurringWeekly},
		{TemplateID: 2, RecurringKind: domain.RecurringMonthly},
		{TemplateID: 3, RecurringKind: domain.RecurringWeekly},
	}

	t0 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	snapshot, err := LoadSnapshot(context.Background(), repo, t0, t0.AddDate(0, 0, 45), NarrowingFilter{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(snapshot.WeeklyTemplates) != 2 {
		t.Fatalf("expected 2 weekly templates, got %d", len(snapshot.WeeklyTemplates))
	}
	if len(snapshot.MonthlyTemplates) != 1 {
		t.Fatalf("expected 1 monthly template, got %d", len(snapshot.MonthlyTemplates))
	}
}

func TestLoadSnapshot_SeedsKeysAndOverlapFromBulkReads(t *testing.T) {
	repo := newFakeRepository()

	t0 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	wrapped := &snapshotSeedingRepo{
		fakeRepository: repo,
		stdKeys:        []domain.StdKey{{ClientID: 1, EmployeeID: 2}},
		overlap: map[int64][]dedup.Interval{
			50: {{StartTS: t0, EndTS: t0.Add(8 * time.Hour), ClientID: 1}},
		},
	}

	snapshot, err := LoadSnapshot(context.Background(), wrapped, t0, t0.AddDate(0, 0, 45), NarrowingFilter{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !snapshot.Keys.HasStd(domain.StdKey{ClientID: 1, EmployeeID: 2}) {
		t.Fatal("expected the pre-existing std key to be loaded into the snapshot's key set")
	}
	if _, ok := snapshot.Overlap.Probe(50, 2, t0.Add(-time.Hour), t0.Add(time.Hour)); !ok {
		t.Fatal("expected the pre-existing overlap interval to be loaded into the snapshot's overlap index")
	}
}

func TestLoadSnapshot_WeeklyLoadFailure_ReturnsRetryableError(t *testing.T) {
	repo := newFakeRepository()
	wantErr := errors.New("connection reset")
	repo.loadTemplatesFunc = func(ctx context.Context, kind domain.RecurringKind, filter NarrowingFilter) ([]domain.Template, error) {
		return nil, wantErr
	}

	_, err := LoadSnapshot(context.Background(), repo, time.Now(), time.Now().AddDate(0, 0, 45), NarrowingFilter{})
	if !IsRetryable(err) {
		t.Fatalf("expected a retryable error wrapping the repository failure, got %v (%T)", err, err)
	}
}

// snapshotSeedingRepo overrides the bulk-read methods LoadSnapshot drives,
// delegating everything else to the embedded fakeRepository.
type snapshotSeedingRepo struct {
	*fakeRepository
	stdKeys []domain.StdKey
	overlap map[int64][]dedup.Interval
}

func (s *snapshotSeedingRepo) LoadStdKeys(ctx context.Context, start, end time.Time) ([]domain.StdKey, error) {
	return s.stdKeys, nil
}

func (s *snapshotSeedingRepo) LoadOverlapIntervals(ctx context.Context, start, end time.Time) (map[int64][]dedup.Interval, error) {
	return s.overlap, nil
}
