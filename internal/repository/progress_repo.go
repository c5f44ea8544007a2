package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/gema-compliance-api/internal/models"
)

// ProgressPing is one client-reported video position.
type ProgressPing struct {
	UserID          uint
	CourseVersionID uint
	WatchedSeconds  int
	TotalSeconds    int
	Percent         int
	At              time.Time
}

// ProgressRepository persists video progress with keep-maximum merge semantics.
type ProgressRepository interface {
	Get(ctx context.Context, userID, versionID uint) (models.VideoProgress, error)
	Merge(ctx context.Context, ping ProgressPing, completePercent int) (models.VideoProgress, error)
}

type progressRepository struct {
	db *gorm.DB
}

// NewProgressRepository instantiates a GORM-backed repository.
func NewProgressRepository(db *gorm.DB) ProgressRepository {
	return &progressRepository{db: db}
}

func (r *progressRepository) Get(ctx context.Context, userID, versionID uint) (models.VideoProgress, error) {
	var progress models.VideoProgress
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND course_version_id = ?", userID, versionID).
		First(&progress).Error; err != nil {
		return models.VideoProgress{}, err
	}
	return progress, nil
}

// Merge upserts the ping so concurrent or replayed pings can only raise the stored
// values. completed_at is stamped once, the first time percent reaches completePercent.
func (r *progressRepository) Merge(ctx context.Context, ping ProgressPing, completePercent int) (models.VideoProgress, error) {
	at := ping.At
	row := models.VideoProgress{
		UserID:          ping.UserID,
		CourseVersionID: ping.CourseVersionID,
		WatchedSeconds:  ping.WatchedSeconds,
		TotalSeconds:    ping.TotalSeconds,
		Percent:         ping.Percent,
		StartedAt:       &at,
		LastPingAt:      at,
	}

	db := r.db.WithContext(ctx)
	err := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "course_version_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"watched_seconds": greatestExpr("watched_seconds"),
			"total_seconds":   greatestExpr("total_seconds"),
			"percent":         greatestExpr("percent"),
			"last_ping_at":    gorm.Expr("excluded.last_ping_at"),
			"started_at":      gorm.Expr("COALESCE(video_progresses.started_at, excluded.started_at)"),
		}),
	}).Create(&row).Error
	if err != nil {
		return models.VideoProgress{}, err
	}

	if completePercent > 0 {
		if err := db.Model(&models.VideoProgress{}).
			Where("user_id = ? AND course_version_id = ? AND completed_at IS NULL AND percent >= ?", ping.UserID, ping.CourseVersionID, completePercent).
			Update("completed_at", at).Error; err != nil {
			return models.VideoProgress{}, err
		}
	}

	return r.Get(ctx, ping.UserID, ping.CourseVersionID)
}

func greatestExpr(column string) clause.Expr {
	return gorm.Expr("CASE WHEN excluded." + column + " > video_progresses." + column +
		" THEN excluded." + column + " ELSE video_progresses." + column + " END")
}
