package models

import (
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-compliance-api/internal/compliance"
)

var certificateIDPattern = regexp.MustCompile(`^[0-9A-F]{10}$`)

func TestNewCertificateIDIsUniqueAcrossGoroutines(t *testing.T) {
	const workers, perWorker = 8, 250

	var mu sync.Mutex
	seen := make(map[string]struct{}, workers*perWorker)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				id := NewCertificateID()
				mu.Lock()
				seen[id] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Len(t, seen, workers*perWorker)
	for id := range seen {
		require.Regexp(t, certificateIDPattern, id)
	}
}

func TestApplyDefaultExpiry(t *testing.T) {
	completed := time.Date(2025, 1, 31, 12, 0, 0, 0, time.UTC)

	cycle := AssignmentCycle{CompletedAt: &completed}
	cycle.ApplyDefaultExpiry(0)
	require.NotNil(t, cycle.ExpiresAt)
	require.Equal(t, time.Date(2025, 12, 31, 12, 0, 0, 0, time.UTC), *cycle.ExpiresAt)

	explicit := completed.AddDate(0, 1, 0)
	cycle = AssignmentCycle{CompletedAt: &completed, ExpiresAt: &explicit}
	cycle.ApplyDefaultExpiry(3)
	require.Equal(t, explicit, *cycle.ExpiresAt)

	open := AssignmentCycle{}
	open.ApplyDefaultExpiry(3)
	require.Nil(t, open.ExpiresAt)
	require.Equal(t, compliance.StatusNotStarted, open.Status(completed))
}

func TestAssignmentCycleSelection(t *testing.T) {
	older := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := older.AddDate(1, 0, 0)
	assignment := Assignment{Cycles: []AssignmentCycle{
		{ID: 1, CompletedAt: &newer},
		{ID: 2, CompletedAt: &older},
		{ID: 3},
		{ID: 4},
	}}

	require.Equal(t, uint(1), assignment.LatestCompletedCycle().ID)
	require.Equal(t, uint(4), assignment.OpenCycle().ID)
}

func TestAssignmentOverdueIsDerived(t *testing.T) {
	now := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	due := now.Add(-time.Hour)

	assignment := Assignment{Status: AssignmentStatusInProgress, DueAt: &due}
	require.True(t, assignment.IsOverdue(now))
	require.Equal(t, AssignmentStatusOverdue, assignment.EffectiveStatus(now))

	assignment.Status = AssignmentStatusCompleted
	require.False(t, assignment.IsOverdue(now))
	require.Equal(t, AssignmentStatusCompleted, assignment.EffectiveStatus(now))
}
