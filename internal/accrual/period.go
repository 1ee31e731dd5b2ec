package accrual

import "time"

// StartOfDay returns UTC midnight of t's UTC day.
func StartOfDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// StartOfWeek returns Monday 00:00 UTC of t's week.
func StartOfWeek(t time.Time) time.Time {
	d := StartOfDay(t)
	offset := (int(d.Weekday()) + 6) % 7
	return d.AddDate(0, 0, -offset)
}

// StartOfMonth returns the 1st 00:00 UTC of t's month.
func StartOfMonth(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// periodShare returns how much of the span ending at now with the given
// duration lies at or after periodStart.
func periodShare(now time.Time, d time.Duration, periodStart time.Time) time.Duration {
	spanStart := now.Add(-d)
	if !spanStart.Before(periodStart) {
		return d
	}
	if !now.After(periodStart) {
		return 0
	}
	return now.Sub(periodStart)
}

// share splits amount proportionally to part/whole, flooring.
func share(amount int64, part, whole time.Duration) int64 {
	if whole <= 0 || part >= whole {
		return amount
	}
	if part <= 0 {
		return 0
	}
	if whole < time.Millisecond {
		return amount * int64(part) / int64(whole)
	}
	return amount * part.Milliseconds() / whole.Milliseconds()
}
