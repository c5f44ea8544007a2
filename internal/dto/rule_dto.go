package dto

import (
	"time"

	"github.com/noah-isme/gema-compliance-api/internal/models"
)

// RuleCreateRequest defines a recurring assignment rule.
type RuleCreateRequest struct {
	Name             string `json:"name" validate:"omitempty,max=255"`
	CourseVersionID  uint   `json:"course_version_id" validate:"required"`
	Frequency        string `json:"frequency" validate:"omitempty,oneof=YEARLY QUARTERLY MONTHLY ONCE"`
	CycleDays        int    `json:"cycle_days" validate:"omitempty,gte=1,lte=3650"`
	RemindDaysBefore int    `json:"remind_days_before" validate:"omitempty,gte=0,lte=365"`
	AssignToAllUsers *bool  `json:"assign_to_all_users"`
	Department       string `json:"department" validate:"omitempty,max=100"`
	IsActive         *bool  `json:"is_active"`
}

// RuleUpdateRequest patches a rule; nil fields are left unchanged.
type RuleUpdateRequest struct {
	Name             *string `json:"name" validate:"omitempty,max=255"`
	Frequency        *string `json:"frequency" validate:"omitempty,oneof=YEARLY QUARTERLY MONTHLY ONCE"`
	CycleDays        *int    `json:"cycle_days" validate:"omitempty,gte=1,lte=3650"`
	RemindDaysBefore *int    `json:"remind_days_before" validate:"omitempty,gte=0,lte=365"`
	AssignToAllUsers *bool   `json:"assign_to_all_users"`
	Department       *string `json:"department" validate:"omitempty,max=100"`
	IsActive         *bool   `json:"is_active"`
}

// RuleResponse is the admin view of a rule.
type RuleResponse struct {
	ID               uint       `json:"id"`
	Name             string     `json:"name"`
	CourseVersionID  uint       `json:"course_version_id"`
	CourseCode       string     `json:"course_code"`
	Version          string     `json:"version"`
	Frequency        string     `json:"frequency"`
	CycleDays        int        `json:"cycle_days"`
	RemindDaysBefore int        `json:"remind_days_before"`
	AssignToAllUsers bool       `json:"assign_to_all_users"`
	Department       string     `json:"department"`
	IsActive         bool       `json:"is_active"`
	LastRunAt        *time.Time `json:"last_run_at"`
}

// NewRuleResponse converts a rule model.
func NewRuleResponse(rule models.AssignmentRule) RuleResponse {
	return RuleResponse{
		ID:               rule.ID,
		Name:             rule.Name,
		CourseVersionID:  rule.CourseVersionID,
		CourseCode:       rule.CourseVersion.Course.Code,
		Version:          rule.CourseVersion.Version,
		Frequency:        string(rule.Frequency),
		CycleDays:        rule.CycleDays,
		RemindDaysBefore: rule.RemindDaysBefore,
		AssignToAllUsers: rule.AssignToAllUsers,
		Department:       rule.Department,
		IsActive:         rule.IsActive,
		LastRunAt:        rule.LastRunAt,
	}
}

// SchedulerRunRequest triggers the scheduled jobs on demand.
type SchedulerRunRequest struct {
	DryRun        bool `json:"dry_run"`
	RemindDays    int  `json:"remind_days" validate:"gte=0,lte=365"`
	OnlyCompleted bool `json:"only_completed"`
	SkipReminders bool `json:"skip_reminders"`
}

// RuleRunResult reports what one rule did during a run.
type RuleRunResult struct {
	RuleID   uint   `json:"rule_id"`
	Name     string `json:"name"`
	Eligible int    `json:"eligible"`
	Created  int    `json:"created"`
	Current  int    `json:"current"`
	Error    string `json:"error,omitempty"`
}

// ReminderRunResult reports reminder delivery.
type ReminderRunResult struct {
	Due     int `json:"due"`
	Sent    int `json:"sent"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// SchedulerRunResponse summarises a scheduler invocation.
type SchedulerRunResponse struct {
	DryRun     bool              `json:"dry_run"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
	Reminders  ReminderRunResult `json:"reminders"`
	Rules      []RuleRunResult   `json:"rules"`
}

// CreatedAssignments totals the assignments created across rules.
func (r SchedulerRunResponse) CreatedAssignments() int {
	total := 0
	for _, rule := range r.Rules {
		total += rule.Created
	}
	return total
}

// RequiredCoursesResponse reports company-required enrolment.
type RequiredCoursesResponse struct {
	UserID   uint     `json:"user_id"`
	Eligible bool     `json:"eligible"`
	Created  []uint   `json:"created_assignment_ids"`
	Courses  []string `json:"courses"`
}
