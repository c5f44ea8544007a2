package dto

import (
	"time"

	"github.com/noah-isme/gema-compliance-api/internal/models"
)

// AuditQueryRequest carries the audit filters from the query string.
type AuditQueryRequest struct {
	Query    string `query:"q" validate:"max=200"`
	Course   string `query:"course" validate:"max=50"`
	Status   string `query:"status"`
	Start    string `query:"start" validate:"omitempty,datetime=2006-01-02"`
	End      string `query:"end" validate:"omitempty,datetime=2006-01-02"`
	Page     int    `query:"page" validate:"gte=0"`
	PageSize int    `query:"page_size" validate:"gte=0"`
	Export   string `query:"export" validate:"omitempty,oneof=csv"`
}

// AuditRow is one line of the compliance report.
type AuditRow struct {
	AssignmentID  uint       `json:"assignment_id"`
	CycleID       *uint      `json:"cycle_id"`
	User          string     `json:"user"`
	UserEmail     string     `json:"user_email"`
	CourseCode    string     `json:"course_code"`
	CourseTitle   string     `json:"course_title"`
	Version       string     `json:"version"`
	CompletedAt   *time.Time `json:"completed_at"`
	ExpiresAt     *time.Time `json:"expires_at"`
	Status        string     `json:"status"`
	StatusLabel   string     `json:"status_label"`
	DaysRemaining *int       `json:"days_remaining"`
	CertificateID string     `json:"certificate_id"`
}

// SkippedRow reports a record left out of a report because of a data problem.
type SkippedRow struct {
	AssignmentID uint   `json:"assignment_id"`
	Reason       string `json:"reason"`
}

// AuditReportResponse is the paginated, capped report view.
type AuditReportResponse struct {
	Rows      []AuditRow   `json:"rows"`
	Skipped   []SkippedRow `json:"skipped"`
	Total     int          `json:"total"`
	Page      int          `json:"page"`
	PageSize  int          `json:"page_size"`
	Truncated bool         `json:"truncated"`
}

// AuditExportSummary describes a completed CSV export.
type AuditExportSummary struct {
	Rows    int          `json:"rows"`
	Skipped []SkippedRow `json:"skipped"`
}

// AuditEventListRequest filters the audit trail.
type AuditEventListRequest struct {
	Page       int    `query:"page" validate:"gte=0"`
	PageSize   int    `query:"page_size" validate:"gte=0,lte=200"`
	ActorID    uint   `query:"actor_id"`
	Action     string `query:"action" validate:"max=100"`
	ObjectType string `query:"object_type" validate:"max=100"`
	ObjectID   string `query:"object_id" validate:"max=100"`
}

// AuditEventResponse is one audit trail entry.
type AuditEventResponse struct {
	ID         uint                   `json:"id"`
	ActorID    *uint                  `json:"actor_id"`
	Action     string                 `json:"action"`
	ObjectType string                 `json:"object_type"`
	ObjectID   string                 `json:"object_id"`
	Details    map[string]interface{} `json:"details"`
	IPAddress  string                 `json:"ip_address"`
	CreatedAt  time.Time              `json:"created_at"`
}

// NewAuditEventResponse converts an audit event.
func NewAuditEventResponse(event models.AuditEvent) AuditEventResponse {
	details := map[string]interface{}(event.Details)
	if details == nil {
		details = map[string]interface{}{}
	}
	return AuditEventResponse{
		ID:         event.ID,
		ActorID:    event.ActorID,
		Action:     event.Action,
		ObjectType: event.ObjectType,
		ObjectID:   event.ObjectID,
		Details:    details,
		IPAddress:  event.IPAddress,
		CreatedAt:  event.CreatedAt,
	}
}
