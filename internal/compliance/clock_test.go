package compliance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func ptr(t time.Time) *time.Time { return &t }

func TestStatusAtBoundaries(t *testing.T) {
	now := time.Date(2025, 6, 15, 14, 30, 0, 0, time.UTC)
	completed := ptr(now.AddDate(0, -10, 0))

	cases := []struct {
		name      string
		completed *time.Time
		expires   *time.Time
		want      Status
		wantDays  *int
	}{
		{name: "not completed", completed: nil, expires: ptr(now.AddDate(0, 1, 0)), want: StatusNotStarted},
		{name: "expires today late", completed: completed, expires: ptr(time.Date(2025, 6, 15, 23, 59, 0, 0, time.UTC)), want: StatusDueSoon},
		{name: "expires today early", completed: completed, expires: ptr(time.Date(2025, 6, 15, 0, 1, 0, 0, time.UTC)), want: StatusDueSoon},
		{name: "expired yesterday", completed: completed, expires: ptr(time.Date(2025, 6, 14, 23, 59, 0, 0, time.UTC)), want: StatusExpired},
		{name: "thirty days out", completed: completed, expires: ptr(now.AddDate(0, 0, 30)), want: StatusDueSoon},
		{name: "thirty one days out", completed: completed, expires: ptr(now.AddDate(0, 0, 31)), want: StatusCompliant},
		{name: "no expiry", completed: completed, expires: nil, want: StatusCompliant},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, StatusAt(now, tc.completed, tc.expires))
		})
	}
}

func TestEvaluateReportsDaysRemaining(t *testing.T) {
	now := time.Date(2025, 6, 15, 8, 0, 0, 0, time.UTC)
	result := Evaluate(now, ptr(now), ptr(now.AddDate(0, 0, 45)))
	require.Equal(t, StatusCompliant, result.Status)
	require.NotNil(t, result.DaysRemaining)
	require.Equal(t, 45, *result.DaysRemaining)

	result = Evaluate(now, nil, nil)
	require.Equal(t, StatusNotStarted, result.Status)
	require.Nil(t, result.DaysRemaining)
}

func TestDaysBetweenUsesNowLocation(t *testing.T) {
	loc := time.FixedZone("UTC+10", 10*60*60)
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, loc)
	// 2025-02-28 23:30 UTC is 2025-03-01 09:30 in UTC+10.
	expires := time.Date(2025, 2, 28, 23, 30, 0, 0, time.UTC)
	require.Equal(t, 0, DaysBetween(now, expires))
	require.Equal(t, StatusDueSoon, StatusAt(now, ptr(now), &expires))
}

func TestPushdownBoundsAgreeWithStatusAt(t *testing.T) {
	now := time.Date(2025, 6, 15, 14, 30, 0, 0, time.UTC)
	completed := ptr(now)

	justExpired := ExpiredBefore(now).Add(-time.Second)
	require.Equal(t, StatusExpired, StatusAt(now, completed, &justExpired))
	firstDueSoon := ExpiredBefore(now)
	require.Equal(t, StatusDueSoon, StatusAt(now, completed, &firstDueSoon))

	lastDueSoon := CompliantFrom(now).Add(-time.Second)
	require.Equal(t, StatusDueSoon, StatusAt(now, completed, &lastDueSoon))
	firstCompliant := CompliantFrom(now)
	require.Equal(t, StatusCompliant, StatusAt(now, completed, &firstCompliant))
}

func TestParseStatus(t *testing.T) {
	status, ok := ParseStatus("due soon")
	require.True(t, ok)
	require.Equal(t, StatusDueSoon, status)

	status, ok = ParseStatus("NOT_STARTED")
	require.True(t, ok)
	require.Equal(t, StatusNotStarted, status)

	_, ok = ParseStatus("pending")
	require.False(t, ok)

	require.Equal(t, "DUE SOON", StatusDueSoon.Label())
	require.Equal(t, "EXPIRED", StatusExpired.Label())
}

func TestRenewalExpiry(t *testing.T) {
	completed := time.Date(2025, 1, 10, 9, 15, 0, 0, time.UTC)
	require.Equal(t, time.Date(2025, 12, 10, 9, 15, 0, 0, time.UTC), RenewalExpiry(completed, 11))
	require.Equal(t, time.Date(2025, 12, 10, 9, 15, 0, 0, time.UTC), RenewalExpiry(completed, 0))

	endOfMonth := time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC)
	require.Equal(t, time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC), AddMonths(endOfMonth, 11))
	require.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), AddMonths(time.Date(2023, 3, 31, 0, 0, 0, 0, time.UTC), 11))
}
