package models

import "time"

// Course is a logical training course (e.g. HIPAA). Courses are never deleted because
// historical completions reference them.
type Course struct {
	ID                 uint      `gorm:"primaryKey" json:"id"`
	Code               string    `gorm:"size:50;uniqueIndex;not null" json:"code"`
	Title              string    `gorm:"size:255;not null" json:"title"`
	Description        string    `gorm:"type:text" json:"description"`
	IsActive           bool      `gorm:"not null" json:"is_active"`
	RequiredForCompany bool      `gorm:"not null;default:false" json:"required_for_company"`
	CreatedByID        *uint     `json:"created_by_id"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// DefaultPassScore is the quiz threshold used when a version does not specify one.
const DefaultPassScore = 80

// CourseVersion is an immutable published revision of a course. Every completion ties
// to a specific version.
type CourseVersion struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	CourseID    uint       `gorm:"not null;uniqueIndex:idx_course_version_label" json:"course_id"`
	Course      Course     `gorm:"constraint:OnUpdate:CASCADE,OnDelete:RESTRICT" json:"course"`
	Version     string     `gorm:"size:40;not null;uniqueIndex:idx_course_version_label" json:"version"`
	Changelog   string     `gorm:"type:text" json:"changelog"`
	VideoURL    string     `gorm:"size:512" json:"video_url"`
	DocumentURL string     `gorm:"size:512" json:"document_url"`
	IsPublished bool       `gorm:"not null;default:false" json:"is_published"`
	PublishedAt *time.Time `json:"published_at"`
	RetiredAt   *time.Time `json:"retired_at"`
	PassScore   int        `gorm:"not null;default:80" json:"pass_score"`
	CreatedByID *uint      `json:"created_by_id"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// IsRetired reports whether the version has been retired.
func (v CourseVersion) IsRetired() bool {
	return v.RetiredAt != nil
}

// EffectivePassScore returns the pass threshold clamped to 0-100.
func (v CourseVersion) EffectivePassScore() int {
	switch {
	case v.PassScore <= 0:
		return DefaultPassScore
	case v.PassScore > 100:
		return 100
	default:
		return v.PassScore
	}
}
