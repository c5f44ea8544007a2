package dto

import (
	"time"

	"github.com/noah-isme/gema-compliance-api/internal/models"
)

// ProgressPingRequest is one video position report from the player.
type ProgressPingRequest struct {
	WatchedSeconds int      `json:"watched_seconds" validate:"gte=0"`
	TotalSeconds   int      `json:"total_seconds" validate:"gte=0"`
	Percent        *float64 `json:"percent" validate:"omitempty,gte=0"`
}

// ProgressResponse reflects the merged progress row.
type ProgressResponse struct {
	CourseVersionID uint       `json:"course_version_id"`
	WatchedSeconds  int        `json:"watched_seconds"`
	TotalSeconds    int        `json:"total_seconds"`
	Percent         int        `json:"percent"`
	StartedAt       *time.Time `json:"started_at"`
	LastPingAt      time.Time  `json:"last_ping_at"`
	CompletedAt     *time.Time `json:"completed_at"`
	CanComplete     bool       `json:"can_complete"`
}

// NewProgressResponse converts the stored progress row.
func NewProgressResponse(progress models.VideoProgress, gatePercent int) ProgressResponse {
	return ProgressResponse{
		CourseVersionID: progress.CourseVersionID,
		WatchedSeconds:  progress.WatchedSeconds,
		TotalSeconds:    progress.TotalSeconds,
		Percent:         progress.Percent,
		StartedAt:       progress.StartedAt,
		LastPingAt:      progress.LastPingAt,
		CompletedAt:     progress.CompletedAt,
		CanComplete:     progress.Percent >= gatePercent,
	}
}
