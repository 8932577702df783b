package dedup

import (
	"sort"
	"time"
)

// Interval is one employee's occupied span, with enough context to report a
// conflict (the colliding instance's identity and client).
type Interval struct {
	StartTS    time.Time
	EndTS      time.Time
	ClientID   int64
	InstanceID int64
	TemplateID int64
}

// OverlapIndex is a per-employee sorted-interval structure used to detect
// different-location conflicts in O(1) amortized time per probe. employee_id
// == 0 (unassigned) is never inserted, matching the open-claim exemption.
type OverlapIndex struct {
	byEmployee map[int64][]Interval
}

// NewOverlapIndex returns an empty index.
func NewOverlapIndex() *OverlapIndex {
	return &OverlapIndex{byEmployee: make(map[int64][]Interval)}
}

// Load seeds the index with pre-existing intervals read from the snapshot.
// employee 0 entries are rejected defensively even though the loader query
// already excludes them.
func (idx *OverlapIndex) Load(employeeID int64, ivs []Interval) {
	if employeeID == 0 || len(ivs) == 0 {
		return
	}
	list := append(idx.byEmployee[employeeID], ivs...)
	sort.Slice(list, func(i, j int) bool { return list[i].StartTS.Before(list[j].StartTS) })
	idx.byEmployee[employeeID] = list
}

// Probe scans the employee's intervals in ascending start order, terminating
// early once existing.start >= end. It returns the first colliding interval
// at a *different* client, or ok == false if none overlaps. Same-client
// overlaps are never reported here: they are absorbed by the dedup key,
// which already includes client_id and time.
func (idx *OverlapIndex) Probe(employeeID, clientID int64, start, end time.Time) (Interval, bool) {
	if employeeID == 0 {
		return Interval{}, false
	}
	for _, existing := range idx.byEmployee[employeeID] {
		if !existing.StartTS.Before(end) {
			break
		}
		overlaps := start.Before(existing.EndTS) && end.After(existing.StartTS)
		if overlaps && existing.ClientID != clientID {
			return existing, true
		}
	}
	return Interval{}, false
}

// Register adds an interval accepted during this run so later candidates in
// the same run see it too (intra-run conflicts are detected, not just
// conflicts against pre-existing data).
func (idx *OverlapIndex) Register(employeeID int64, iv Interval) {
	if employeeID == 0 {
		return
	}
	list := idx.byEmployee[employeeID]
	pos := sort.Search(len(list), func(i int) bool { return !list[i].StartTS.Before(iv.StartTS) })
	list = append(list, Interval{})
	copy(list[pos+1:], list[pos:])
	list[pos] = iv
	idx.byEmployee[employeeID] = list
}
