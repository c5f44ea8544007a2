package dto

import (
	"time"

	"github.com/noah-isme/gema-compliance-api/internal/compliance"
	"github.com/noah-isme/gema-compliance-api/internal/models"
)

// CycleSummary is the latest-cycle view embedded in assignment listings.
type CycleSummary struct {
	ID            uint       `json:"id"`
	CertificateID string     `json:"certificate_id"`
	CompletedAt   *time.Time `json:"completed_at"`
	ExpiresAt     *time.Time `json:"expires_at"`
	Score         *int       `json:"score"`
	Passed        bool       `json:"passed"`
	Status        string     `json:"status"`
	StatusLabel   string     `json:"status_label"`
	DaysRemaining *int       `json:"days_remaining"`
}

// NewCycleSummary evaluates the cycle at now.
func NewCycleSummary(cycle models.AssignmentCycle, now time.Time) CycleSummary {
	result := compliance.Evaluate(now, cycle.CompletedAt, cycle.ExpiresAt)
	return CycleSummary{
		ID:            cycle.ID,
		CertificateID: cycle.CertificateID,
		CompletedAt:   cycle.CompletedAt,
		ExpiresAt:     cycle.ExpiresAt,
		Score:         cycle.Score,
		Passed:        cycle.Passed,
		Status:        string(result.Status),
		StatusLabel:   result.Status.Label(),
		DaysRemaining: result.DaysRemaining,
	}
}

// AssignmentResponse is the learner-facing representation of an assignment.
type AssignmentResponse struct {
	ID               uint          `json:"id"`
	AssigneeID       uint          `json:"assignee_id"`
	CourseVersionID  uint          `json:"course_version_id"`
	CourseCode       string        `json:"course_code"`
	CourseTitle      string        `json:"course_title"`
	Version          string        `json:"version"`
	VideoURL         string        `json:"video_url,omitempty"`
	DocumentURL      string        `json:"document_url,omitempty"`
	AssignedAt       time.Time     `json:"assigned_at"`
	DueAt            *time.Time    `json:"due_at"`
	Status           string        `json:"status"`
	Overdue          bool          `json:"overdue"`
	ComplianceStatus string        `json:"compliance_status"`
	LatestCycle      *CycleSummary `json:"latest_cycle"`
}

// NewAssignmentResponse converts an assignment with preloaded relations. Status is the
// effective status, so OVERDUE surfaces here the same way it does everywhere else.
func NewAssignmentResponse(assignment models.Assignment, now time.Time) AssignmentResponse {
	response := AssignmentResponse{
		ID:               assignment.ID,
		AssigneeID:       assignment.AssigneeID,
		CourseVersionID:  assignment.CourseVersionID,
		CourseCode:       assignment.CourseVersion.Course.Code,
		CourseTitle:      assignment.CourseVersion.Course.Title,
		Version:          assignment.CourseVersion.Version,
		VideoURL:         assignment.CourseVersion.VideoURL,
		DocumentURL:      assignment.CourseVersion.DocumentURL,
		AssignedAt:       assignment.AssignedAt,
		DueAt:            assignment.DueAt,
		Status:           string(assignment.EffectiveStatus(now)),
		Overdue:          assignment.IsOverdue(now),
		ComplianceStatus: string(compliance.StatusNotStarted),
	}

	if latest := assignment.LatestCompletedCycle(); latest != nil {
		summary := NewCycleSummary(*latest, now)
		response.LatestCycle = &summary
		response.ComplianceStatus = summary.Status
	}

	return response
}

// AssignmentCreateRequest is the admin payload for a manual assignment.
type AssignmentCreateRequest struct {
	AssigneeID      uint       `json:"assignee_id" validate:"required"`
	CourseVersionID uint       `json:"course_version_id" validate:"required"`
	DueAt           *time.Time `json:"due_at"`
	DueInDays       int        `json:"due_in_days" validate:"gte=0,lte=3650"`
}

// CycleResponse is returned when a cycle is completed.
type CycleResponse struct {
	ID            uint       `json:"id"`
	AssignmentID  uint       `json:"assignment_id"`
	CertificateID string     `json:"certificate_id"`
	CompletedAt   *time.Time `json:"completed_at"`
	ExpiresAt     *time.Time `json:"expires_at"`
	Score         *int       `json:"score"`
	Passed        bool       `json:"passed"`
	Status        string     `json:"status"`
}

// NewCycleResponse converts a cycle evaluated at now.
func NewCycleResponse(cycle models.AssignmentCycle, now time.Time) CycleResponse {
	return CycleResponse{
		ID:            cycle.ID,
		AssignmentID:  cycle.AssignmentID,
		CertificateID: cycle.CertificateID,
		CompletedAt:   cycle.CompletedAt,
		ExpiresAt:     cycle.ExpiresAt,
		Score:         cycle.Score,
		Passed:        cycle.Passed,
		Status:        string(cycle.Status(now)),
	}
}

// DashboardResponse summarises a learner's compliance position.
type DashboardResponse struct {
	UserID      uint      `json:"user_id"`
	Total       int       `json:"total"`
	NotStarted  int       `json:"not_started"`
	Compliant   int       `json:"compliant"`
	DueSoon     int       `json:"due_soon"`
	Expired     int       `json:"expired"`
	Overdue     int       `json:"overdue"`
	GeneratedAt time.Time `json:"generated_at"`
}
