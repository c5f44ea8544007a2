package models

import "time"

// VideoProgress tracks how much of a course version's video a user has watched. One
// row per (user, course version); Percent only ever grows.
type VideoProgress struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	UserID          uint       `gorm:"not null;uniqueIndex:idx_video_progress_user_version" json:"user_id"`
	CourseVersionID uint       `gorm:"not null;uniqueIndex:idx_video_progress_user_version" json:"course_version_id"`
	WatchedSeconds  int        `gorm:"not null;default:0" json:"watched_seconds"`
	TotalSeconds    int        `gorm:"not null;default:0" json:"total_seconds"`
	Percent         int        `gorm:"not null;default:0" json:"percent"`
	StartedAt       *time.Time `json:"started_at"`
	LastPingAt      time.Time  `json:"last_ping_at"`
	CompletedAt     *time.Time `json:"completed_at"`
}

// TableName pins the table name so raw upsert expressions can reference it.
func (VideoProgress) TableName() string {
	return "video_progresses"
}
