package recurring

import "time"

// NthWeekdayOfMonth implements the monthly Nth-weekday algorithm: find the first day in
// [monthStart, monthStart+6] whose weekday equals targetDow, then add 7*n. If the
// candidate's month differs from monthStart's month, subtract 7 (overflow to the last
// occurrence). If it still differs, there is no date this month (ok == false).
//
// n == 4 is accepted as an explicit "last occurrence" alias: it is computed directly as
// the last matching weekday in the month. The first+7n overflow path gives the same date
// for n=4 (first+28 is the fifth occurrence when the month has one; otherwise backing off
// 7 days lands on the fourth, which is then the last).
func NthWeekdayOfMonth(monthStart time.Time, targetDow time.Weekday, n int) (time.Time, bool) {
	monthStart = dateOnly(monthStart)

	if n == 4 {
		return lastWeekdayOfMonth(monthStart, targetDow), true
	}

	var first time.Time
	found := false
	for i := 0; i < 7; i++ {
		d := monthStart.AddDate(0, 0, i)
		if d.Weekday() == targetDow {
			first = d
			found = true
			break
		}
	}
	if !found {
		return time.Time{}, false
	}

	candidate := first.AddDate(0, 0, 7*n)
	if candidate.Month() != monthStart.Month() || candidate.Year() != monthStart.Year() {
		candidate = candidate.AddDate(0, 0, -7)
	}
	if candidate.Month() != monthStart.Month() || candidate.Year() != monthStart.Year() {
		return time.Time{}, false
	}
	return candidate, true
}

func lastWeekdayOfMonth(monthStart time.Time, targetDow time.Weekday) time.Time {
	firstOfNextMonth := time.Date(monthStart.Year(), monthStart.Month()+1, 1, 0, 0, 0, 0, monthStart.Location())
	lastOfMonth := firstOfNextMonth.AddDate(0, 0, -1)
	offset := (int(lastOfMonth.Weekday()) - int(targetDow) + 7) % 7
	return lastOfMonth.AddDate(0, 0, -offset)
}
