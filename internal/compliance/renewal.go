package compliance

import "time"

// AddMonths adds months to t, clamping the day to the last day of the target month
// (Jan 31 + 1 month is Feb 28/29, not Mar 3).
func AddMonths(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	hh, mm, ss := t.Clock()

	firstOfTarget := time.Date(y, m+time.Month(months), 1, 0, 0, 0, 0, t.Location())
	ty, tm, _ := firstOfTarget.Date()
	lastDay := firstOfTarget.AddDate(0, 1, -1).Day()
	if d > lastDay {
		d = lastDay
	}

	return time.Date(ty, tm, d, hh, mm, ss, t.Nanosecond(), t.Location())
}

// RenewalExpiry returns the expiry of a cycle completed at completedAt.
// Non-positive windows fall back to DefaultRenewalMonths.
func RenewalExpiry(completedAt time.Time, months int) time.Time {
	if months <= 0 {
		months = DefaultRenewalMonths
	}
	return AddMonths(completedAt, months)
}
