package domain

import "time"

// Outcome is the disposition the expansion stage recorded for one evaluated candidate.
type Outcome int

const (
	OutcomeCreated Outcome = iota
	OutcomeDuplicate
	OutcomeOverlap
	OutcomeError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCreated:
		return "Created"
	case OutcomeDuplicate:
		return "Duplicate"
	case OutcomeOverlap:
		return "Overlap"
	case OutcomeError:
		return "Error"
	default:
		return "Unknown"
	}
}

// AuditRow records the disposition of one candidate instance evaluated during a run.
type AuditRow struct {
	RunID      string
	TemplateID int64
	InstanceID *int64

	StartTS time.Time
	EndTS   time.Time

	Outcome          Outcome
	Kind             RecurringKind
	RecurrencePattern string
	ErrorDesc        string
}

// ConflictRow records one blocked overlap: the blocked candidate and the colliding instance.
type ConflictRow struct {
	RunID      string
	TemplateID int64
	EmployeeID int64

	BlockedClientID int64
	BlockedStartTS  time.Time
	BlockedEndTS    time.Time

	CollidingInstanceID int64
	CollidingTemplateID int64
	CollidingClientID   int64
	CollidingStartTS    time.Time
	CollidingEndTS      time.Time

	DetectedAt time.Time
}
