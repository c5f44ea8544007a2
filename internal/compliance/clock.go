// Package compliance derives compliance status labels from cycle timestamps.
//
// Every surface that shows a status (dashboard, audit query, CSV export, reminders)
// goes through StatusAt so the thresholds live in exactly one place.
package compliance

import (
	"strings"
	"time"
)

// DueSoonDays is the inclusive window, in calendar days, in which a cycle is due soon.
const DueSoonDays = 30

// DefaultRenewalMonths is the renewal window applied when none is configured.
const DefaultRenewalMonths = 11

// Status is the derived compliance label of a cycle.
type Status string

const (
	StatusNotStarted Status = "NOT_STARTED"
	StatusCompliant  Status = "COMPLIANT"
	StatusDueSoon    Status = "DUE_SOON"
	StatusExpired    Status = "EXPIRED"
)

// Label returns the human readable form used in exports.
func (s Status) Label() string {
	switch s {
	case StatusNotStarted:
		return "NOT STARTED"
	case StatusDueSoon:
		return "DUE SOON"
	default:
		return string(s)
	}
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusNotStarted, StatusCompliant, StatusDueSoon, StatusExpired:
		return true
	}
	return false
}

// ParseStatus accepts both the constant form ("DUE_SOON") and the label form ("due soon").
func ParseStatus(value string) (Status, bool) {
	normalized := strings.ToUpper(strings.TrimSpace(value))
	normalized = strings.ReplaceAll(normalized, " ", "_")
	normalized = strings.ReplaceAll(normalized, "-", "_")
	status := Status(normalized)
	if !status.Valid() {
		return "", false
	}
	return status, true
}

// Result is the outcome of evaluating a cycle at a point in time.
type Result struct {
	Status        Status
	DaysRemaining *int
}

// StatusAt labels a cycle given the evaluation time. Calendar days are computed in
// the location of now. A completed cycle with no expiry is treated as compliant.
func StatusAt(now time.Time, completedAt, expiresAt *time.Time) Status {
	return Evaluate(now, completedAt, expiresAt).Status
}

// Evaluate is StatusAt plus the day count that produced the label.
func Evaluate(now time.Time, completedAt, expiresAt *time.Time) Result {
	if completedAt == nil {
		return Result{Status: StatusNotStarted}
	}
	if expiresAt == nil {
		return Result{Status: StatusCompliant}
	}

	days := DaysBetween(now, *expiresAt)
	result := Result{DaysRemaining: &days}
	switch {
	case days < 0:
		result.Status = StatusExpired
	case days <= DueSoonDays:
		result.Status = StatusDueSoon
	default:
		result.Status = StatusCompliant
	}
	return result
}

// DaysBetween returns the number of calendar days from now's date to target's date,
// both taken in now's location.
func DaysBetween(now, target time.Time) int {
	loc := now.Location()
	from := civilDate(now, loc)
	to := civilDate(target, loc)
	return int(to.Sub(from).Hours() / 24)
}

// StartOfDay returns midnight of t's calendar date in t's location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// ExpiredBefore returns the instant before which an expiry counts as EXPIRED at now.
func ExpiredBefore(now time.Time) time.Time {
	return StartOfDay(now)
}

// CompliantFrom returns the instant from which an expiry counts as COMPLIANT at now.
func CompliantFrom(now time.Time) time.Time {
	return StartOfDay(now).AddDate(0, 0, DueSoonDays+1)
}

func civilDate(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
