package goal

import "time"

// DayStart returns midnight of t's calendar day in t's location.
func DayStart(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// DayEnd returns the last representable instant of t's calendar day.
func DayEnd(t time.Time) time.Time {
	return DayStart(t).AddDate(0, 0, 1).Add(-time.Nanosecond)
}

// DayWindow returns the inclusive [start, end] window of t's calendar day.
func DayWindow(t time.Time) (from, to time.Time) {
	return DayStart(t), DayEnd(t)
}

// DaysSpanned counts the calendar days touched by the inclusive window
// [from, to]. A single-day window spans 1.
func DaysSpanned(from, to time.Time) int {
	if to.Before(from) {
		return 0
	}
	start := DayStart(from)
	end := DayStart(to.In(from.Location()))
	days := 1
	for d := start; d.Before(end); d = d.AddDate(0, 0, 1) {
		days++
	}
	return days
}

// DayKey formats t's calendar day as YYYY-MM-DD in t's location.
func DayKey(t time.Time) string {
	return t.Format("2006-01-02")
}
