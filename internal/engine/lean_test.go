package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rezkam/shiftengine/internal/domain"
)

func TestRunLean_UnknownTemplate_ReturnsNotFound(t *testing.T) {
	repo := newFakeRepository()

	_, err := RunLean(context.Background(), repo, 99, time.Now(), false)
	if !errors.Is(err, domain.ErrTemplateNotFound) {
		t.Fatalf("expected ErrTemplateNotFound, got %v", err)
	}
}

func TestRunLean_Weekly_CreatesOneInstancePerMatchingWeekdayInWindow(t *testing.T) {
	repo := newFakeRepository()
	repo.templates = []domain.Template{{
		TemplateID: 1, RecurringKind: domain.RecurringWeekly, IsActive: true,
		DaysOfWeek: domain.WeekdaySet(time.Monday), ClientID: 10, CompanyID: 1,
		TimeIn: 8 * time.Hour, TimeOut: 16 * time.Hour,
	}}

	t0 := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC) // a Monday
	result, err := RunLean(context.Background(), repo, 1, t0, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Created) == 0 {
		t.Fatal("expected at least one created instance for a weekly template spanning 45 days")
	}
	for _, inst := range result.Created {
		if inst.StartTS.Weekday() != time.Monday {
			t.Fatalf("expected every created instance to start on a Monday, got %v", inst.StartTS.Weekday())
		}
	}
	if len(repo.instances) != len(result.Created) {
		t.Fatalf("expected repo to record %d instances, got %d", len(result.Created), len(repo.instances))
	}
}

func TestRunLean_Weekly_DuplicateStdKeySkipsCreation(t *testing.T) {
	repo := newFakeRepository()
	repo.templates = []domain.Template{{
		TemplateID: 1, RecurringKind: domain.RecurringWeekly, IsActive: true,
		DaysOfWeek: domain.WeekdaySet(time.Monday), ClientID: 10, EmployeeID: 20, CompanyID: 1,
		TimeIn: 8 * time.Hour, TimeOut: 16 * time.Hour,
	}}

	t0 := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	firstMonday := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	dup := domain.StdKeyOf(10, 20, firstMonday.Add(8*time.Hour), firstMonday.Add(16*time.Hour))

	// seed the dedup key set by overriding LoadStdKeys through a thin wrapper repo.
	wrapped := &stdKeySeedingRepo{fakeRepository: repo, seeded: []domain.StdKey{dup}}

	result, err := RunLean(context.Background(), wrapped, 1, t0, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, inst := range result.Created {
		if inst.StartTS.Equal(firstMonday.Add(8 * time.Hour)) {
			t.Fatal("expected the first Monday's instance to be suppressed as a duplicate")
		}
	}
}

// stdKeySeedingRepo overrides LoadStdKeys to return a preset duplicate set,
// otherwise delegating to the embedded fakeRepository.
type stdKeySeedingRepo struct {
	*fakeRepository
	seeded []domain.StdKey
}

func (s *stdKeySeedingRepo) LoadStdKeys(ctx context.Context, start, end time.Time) ([]domain.StdKey, error) {
	return s.seeded, nil
}

func TestRunLean_DeleteFutureUnlinked_NoEligibleIDsDeletesNothing(t *testing.T) {
	repo := newFakeRepository()
	repo.templates = []domain.Template{{
		TemplateID: 1, RecurringKind: domain.RecurringWeekly, IsActive: true,
		DaysOfWeek: domain.WeekdaySet(time.Monday), ClientID: 10, CompanyID: 1,
	}}

	var deletedIDs []int64
	repo.deleteInstancesFunc = func(ctx context.Context, ids []int64) error {
		deletedIDs = append(deletedIDs, ids...)
		return nil
	}

	t0 := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	_, err := RunLean(context.Background(), repo, 1, t0, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(deletedIDs) != 0 {
		t.Fatalf("expected no ids from the default FindTemplateUnlinkedFutureInstanceIDs stub, got %v", deletedIDs)
	}
}

func TestRunLean_Monthly_EmitsNthWeekdayInstanceAndAdvancesLastRun(t *testing.T) {
	repo := newFakeRepository()
	repo.templates = []domain.Template{{
		TemplateID: 7, RecurringKind: domain.RecurringMonthly, IsActive: true,
		DaysOfWeek: domain.WeekdaySet(time.Monday), NthWeekday: 0, ClientID: 10, CompanyID: 1,
		TimeIn: 9 * time.Hour, TimeOut: 17 * time.Hour,
	}}
	var advancedTo time.Time
	repo.advanceMonthlyLastRunFunc = func(ctx context.Context, templateIDs []int64, firstOfNextMonth time.Time) error {
		advancedTo = firstOfNextMonth
		return nil
	}

	t0 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	result, err := RunLean(context.Background(), repo, 7, t0, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Created) != 1 {
		t.Fatalf("expected exactly one instance for the month's first matching weekday, got %d", len(result.Created))
	}
	if result.Created[0].StartTS.Weekday() != time.Monday {
		t.Fatalf("expected the created instance to land on a Monday, got %v", result.Created[0].StartTS.Weekday())
	}
	if want := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC); !advancedTo.Equal(want) {
		t.Fatalf("expected monthly last_run advanced to %v, got %v", want, advancedTo)
	}
}

func TestRunLean_Weekly_MultiWeekStride_OnlyEmitsOnValidCycleMondays(t *testing.T) {
	repo := newFakeRepository()
	startDate := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC) // a Monday
	repo.templates = []domain.Template{{
		TemplateID: 1, RecurringKind: domain.RecurringWeekly, IsActive: true,
		WeekStride: 2, DaysOfWeek: domain.WeekdaySet(time.Monday),
		StartDate: startDate, ClientID: 10, CompanyID: 1,
		TimeIn: 8 * time.Hour, TimeOut: 16 * time.Hour,
	}}

	result, err := RunLean(context.Background(), repo, 1, startDate, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Created) == 0 {
		t.Fatal("expected at least one created instance for a biweekly template")
	}
	for _, inst := range result.Created {
		if inst.StartTS.Weekday() != time.Monday {
			t.Fatalf("expected every created instance to start on a Monday, got %v", inst.StartTS.Weekday())
		}
		days := int(inst.StartTS.Sub(startDate).Hours() / 24)
		if days%14 != 0 {
			t.Fatalf("expected every created instance to land on a 14-day cycle boundary from the anchor, got offset %d days (date %v)", days, inst.StartTS)
		}
	}
	// An off-cycle Monday (one week after the anchor) must never appear.
	offCycle := startDate.AddDate(0, 0, 7)
	for _, inst := range result.Created {
		if inst.StartTS.Year() == offCycle.Year() && inst.StartTS.YearDay() == offCycle.YearDay() {
			t.Fatalf("did not expect an instance on the off-cycle Monday %v", offCycle)
		}
	}
}

func TestRunLean_LoadTemplateByIDError_Propagates(t *testing.T) {
	repo := newFakeRepository()
	wantErr := errors.New("connection reset")
	repo.loadTemplateByIDFunc = func(ctx context.Context, templateID int64) (domain.Template, error) {
		return domain.Template{}, wantErr
	}

	_, err := RunLean(context.Background(), repo, 1, time.Now(), false)
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected the repository error to propagate, got %v", err)
	}
}
