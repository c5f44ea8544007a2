package models

import "time"

// RuleFrequency describes how often a rule expects renewal.
type RuleFrequency string

const (
	RuleFrequencyYearly    RuleFrequency = "YEARLY"
	RuleFrequencyQuarterly RuleFrequency = "QUARTERLY"
	RuleFrequencyMonthly   RuleFrequency = "MONTHLY"
	RuleFrequencyOnce      RuleFrequency = "ONCE"
)

// AssignmentRule is a recurring-assignment policy the scheduler enforces.
type AssignmentRule struct {
	ID               uint          `gorm:"primaryKey" json:"id"`
	Name             string        `gorm:"size:255" json:"name"`
	CourseVersionID  uint          `gorm:"not null;index" json:"course_version_id"`
	CourseVersion    CourseVersion `gorm:"constraint:OnUpdate:CASCADE,OnDelete:RESTRICT" json:"course_version"`
	Frequency        RuleFrequency `gorm:"size:20;not null;default:YEARLY" json:"frequency"`
	CycleDays        int           `gorm:"not null;default:365" json:"cycle_days"`
	RemindDaysBefore int           `gorm:"not null;default:30" json:"remind_days_before"`
	AssignToAllUsers bool          `gorm:"not null" json:"assign_to_all_users"`
	Department       string        `gorm:"size:100" json:"department"`
	IsActive         bool          `gorm:"not null;index" json:"is_active"`
	LastRunAt        *time.Time    `gorm:"index" json:"last_run_at"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// DueIn returns the duration new assignments created by the rule are due in.
func (r AssignmentRule) DueIn() time.Duration {
	days := r.CycleDays
	if days <= 0 {
		days = 365
	}
	return time.Duration(days) * 24 * time.Hour
}
