package models

import "time"

// AssignmentStatus is the stored lifecycle state of an assignment.
type AssignmentStatus string

const (
	AssignmentStatusAssigned   AssignmentStatus = "ASSIGNED"
	AssignmentStatusInProgress AssignmentStatus = "IN_PROGRESS"
	AssignmentStatusCompleted  AssignmentStatus = "COMPLETED"
	// AssignmentStatusOverdue is never stored; EffectiveStatus derives it from DueAt.
	AssignmentStatusOverdue AssignmentStatus = "OVERDUE"
)

// Assignment is a standing obligation for a user to complete a course version. It may
// accumulate several cycles over time.
type Assignment struct {
	ID              uint              `gorm:"primaryKey" json:"id"`
	AssigneeID      uint              `gorm:"not null;index:idx_assignment_assignee_version" json:"assignee_id"`
	Assignee        User              `gorm:"foreignKey:AssigneeID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"assignee"`
	CourseVersionID uint              `gorm:"not null;index:idx_assignment_assignee_version" json:"course_version_id"`
	CourseVersion   CourseVersion     `gorm:"constraint:OnUpdate:CASCADE,OnDelete:RESTRICT" json:"course_version"`
	RuleID          *uint             `gorm:"index" json:"rule_id"`
	AssignedAt      time.Time         `gorm:"not null" json:"assigned_at"`
	DueAt           *time.Time        `json:"due_at"`
	AssignedByID    *uint             `json:"assigned_by_id"`
	Status          AssignmentStatus  `gorm:"size:20;not null;default:ASSIGNED" json:"status"`
	Cycles          []AssignmentCycle `gorm:"foreignKey:AssignmentID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"cycles,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// IsOverdue reports whether the assignment is uncompleted past its due date.
func (a Assignment) IsOverdue(now time.Time) bool {
	return a.Status != AssignmentStatusCompleted && a.DueAt != nil && a.DueAt.Before(now)
}

// EffectiveStatus returns the stored status, or OVERDUE when the due date has passed
// without completion.
func (a Assignment) EffectiveStatus(now time.Time) AssignmentStatus {
	if a.IsOverdue(now) {
		return AssignmentStatusOverdue
	}
	return a.Status
}

// LatestCompletedCycle returns the most recently completed cycle among the loaded
// cycles, ignoring open ones.
func (a Assignment) LatestCompletedCycle() *AssignmentCycle {
	var latest *AssignmentCycle
	for i := range a.Cycles {
		cycle := &a.Cycles[i]
		if cycle.CompletedAt == nil {
			continue
		}
		if latest == nil || cycle.CompletedAt.After(*latest.CompletedAt) ||
			(cycle.CompletedAt.Equal(*latest.CompletedAt) && cycle.ID > latest.ID) {
			latest = cycle
		}
	}
	return latest
}

// OpenCycle returns the most recent loaded cycle that has not been completed yet.
func (a Assignment) OpenCycle() *AssignmentCycle {
	var open *AssignmentCycle
	for i := range a.Cycles {
		cycle := &a.Cycles[i]
		if cycle.CompletedAt != nil {
			continue
		}
		if open == nil || cycle.ID > open.ID {
			open = cycle
		}
	}
	return open
}
