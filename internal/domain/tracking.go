package domain

import "time"

// TrackingRow is the multi-week walk state for one stride>1 weekly template.
type TrackingRow struct {
	TemplateID      int64
	NextDate        time.Time
	ChangedThisRun  bool
	EditMode        bool
}
