package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-compliance-api/internal/models"
)

// ReminderFilter selects cycles whose expiry falls inside a reminder window.
type ReminderFilter struct {
	After         time.Time
	Until         time.Time
	OnlyCompleted bool
}

// CycleRepository defines persistence operations for assignment cycles.
type CycleRepository interface {
	Create(ctx context.Context, cycle *models.AssignmentCycle) error
	GetByCertificateID(ctx context.Context, certificateID string) (models.AssignmentCycle, error)
	CertificateExists(ctx context.Context, certificateID string) (bool, error)
	LatestCompleted(ctx context.Context, assignmentID uint) (models.AssignmentCycle, error)
	Open(ctx context.Context, assignmentID uint) (models.AssignmentCycle, error)
	Complete(ctx context.Context, cycle *models.AssignmentCycle) error
	ListDueForReminder(ctx context.Context, filter ReminderFilter) ([]models.AssignmentCycle, error)
	MarkReminderSent(ctx context.Context, id uint, sentAt time.Time) (bool, error)
}

type cycleRepository struct {
	db *gorm.DB
}

// NewCycleRepository instantiates a GORM-backed repository.
func NewCycleRepository(db *gorm.DB) CycleRepository {
	return &cycleRepository{db: db}
}

func (r *cycleRepository) Create(ctx context.Context, cycle *models.AssignmentCycle) error {
	return r.db.WithContext(ctx).Omit("Assignment").Create(cycle).Error
}

func (r *cycleRepository) GetByCertificateID(ctx context.Context, certificateID string) (models.AssignmentCycle, error) {
	var cycle models.AssignmentCycle
	if err := r.db.WithContext(ctx).
		Preload("Assignment").
		Preload("Assignment.Assignee").
		Preload("Assignment.CourseVersion").
		Preload("Assignment.CourseVersion.Course").
		Where("certificate_id = ?", certificateID).
		First(&cycle).Error; err != nil {
		return models.AssignmentCycle{}, err
	}
	return cycle, nil
}

func (r *cycleRepository) CertificateExists(ctx context.Context, certificateID string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.AssignmentCycle{}).
		Where("certificate_id = ?", certificateID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// LatestCompleted returns the most recently completed cycle; open cycles never qualify.
func (r *cycleRepository) LatestCompleted(ctx context.Context, assignmentID uint) (models.AssignmentCycle, error) {
	var cycle models.AssignmentCycle
	if err := r.db.WithContext(ctx).
		Where("assignment_id = ? AND completed_at IS NOT NULL", assignmentID).
		Order("completed_at DESC").
		Order("id DESC").
		First(&cycle).Error; err != nil {
		return models.AssignmentCycle{}, err
	}
	return cycle, nil
}

func (r *cycleRepository) Open(ctx context.Context, assignmentID uint) (models.AssignmentCycle, error) {
	var cycle models.AssignmentCycle
	if err := r.db.WithContext(ctx).
		Where("assignment_id = ? AND completed_at IS NULL", assignmentID).
		Order("id DESC").
		First(&cycle).Error; err != nil {
		return models.AssignmentCycle{}, err
	}
	return cycle, nil
}

// Complete stamps completion data on an open cycle. The completed_at guard makes a
// second completion of the same cycle a not-found instead of an overwrite.
func (r *cycleRepository) Complete(ctx context.Context, cycle *models.AssignmentCycle) error {
	cycle.ApplyDefaultExpiry(0)
	result := r.db.WithContext(ctx).Model(&models.AssignmentCycle{}).
		Where("id = ? AND completed_at IS NULL AND expires_at IS NULL", cycle.ID).
		Updates(map[string]interface{}{
			"completed_at": cycle.CompletedAt,
			"expires_at":   cycle.ExpiresAt,
			"score":        cycle.Score,
			"passed":       cycle.Passed,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *cycleRepository) ListDueForReminder(ctx context.Context, filter ReminderFilter) ([]models.AssignmentCycle, error) {
	query := r.db.WithContext(ctx).
		Preload("Assignment").
		Preload("Assignment.Assignee").
		Preload("Assignment.CourseVersion").
		Preload("Assignment.CourseVersion.Course").
		Where("expires_at IS NOT NULL AND expires_at > ? AND expires_at <= ?", filter.After, filter.Until).
		Where("reminder_30_sent_at IS NULL")
	if filter.OnlyCompleted {
		query = query.Where("completed_at IS NOT NULL")
	}

	var cycles []models.AssignmentCycle
	if err := query.Order("expires_at ASC").Order("id ASC").Find(&cycles).Error; err != nil {
		return nil, err
	}
	return cycles, nil
}

func (r *cycleRepository) MarkReminderSent(ctx context.Context, id uint, sentAt time.Time) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.AssignmentCycle{}).
		Where("id = ? AND reminder_30_sent_at IS NULL", id).
		Update("reminder_30_sent_at", sentAt)
	return result.RowsAffected > 0, result.Error
}
