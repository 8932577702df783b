package domain

import "time"

// Note is the opaque label carried on engine-created instances.
type Note string

const (
	NoteWeekly  Note = "Scheduled Event"
	NoteMonthly Note = "Schedule Event Monthly"
)

// Instance is a dated, absolute-time shift derived from a Template by one engine run.
// Fields under "External" are owned by collaborators outside the engine (the OLTP
// clock-in path); the engine must never overwrite them once set.
type Instance struct {
	InstanceID int64

	TemplateID int64
	ClientID   int64
	EmployeeID int64
	CompanyID  int64
	GroupID    int64

	StartTS time.Time
	EndTS   time.Time

	ExternalTimecardRef *string
	ActualStartTS       *time.Time
	ActualEndTS         *time.Time

	IsActive  bool
	Note      Note
	CreatedAt time.Time
	UpdatedAt time.Time
}

// StdKey is the K_std dedup key: (client, employee, start-minute, end-minute).
type StdKey struct {
	ClientID       int64
	EmployeeID     int64
	StartTSMinute  int64
	EndTSMinute    int64
}

// OpenKey is the K_open dedup key: K_std narrowed by template_id, letting
// multiple open-claim templates coexist at the same slot.
type OpenKey struct {
	TemplateID    int64
	ClientID      int64
	EmployeeID    int64
	StartTSMinute int64
	EndTSMinute   int64
}

func toMinute(t time.Time) int64 {
	return t.Unix() / 60
}

// StdKeyOf builds the K_std key for a candidate (client, employee, start, end).
func StdKeyOf(clientID, employeeID int64, start, end time.Time) StdKey {
	return StdKey{ClientID: clientID, EmployeeID: employeeID, StartTSMinute: toMinute(start), EndTSMinute: toMinute(end)}
}

// OpenKeyOf builds the K_open key for a candidate (template, client, employee, start, end).
func OpenKeyOf(templateID, clientID, employeeID int64, start, end time.Time) OpenKey {
	return OpenKey{TemplateID: templateID, ClientID: clientID, EmployeeID: employeeID, StartTSMinute: toMinute(start), EndTSMinute: toMinute(end)}
}

// HasExternalLink reports whether the instance is owned, in part, by the external clock-in path.
func (i Instance) HasExternalLink() bool {
	return i.ExternalTimecardRef != nil && *i.ExternalTimecardRef != ""
}
