package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-compliance-api/internal/models"
)

// AssignmentRepository defines persistence operations for assignments.
type AssignmentRepository interface {
	Create(ctx context.Context, assignment *models.Assignment) error
	GetByID(ctx context.Context, id uint) (models.Assignment, error)
	ListByAssignee(ctx context.Context, assigneeID uint) ([]models.Assignment, error)
	LatestForUserAndVersion(ctx context.Context, assigneeID, versionID uint) (models.Assignment, error)
	ExistsForUserAndVersion(ctx context.Context, assigneeID, versionID uint) (bool, error)
	MarkInProgress(ctx context.Context, assigneeID, versionID uint) (int64, error)
	MarkAssignmentInProgress(ctx context.Context, id uint) (bool, error)
	MarkCompleted(ctx context.Context, id uint) error
	Lock(ctx context.Context, id uint) (models.Assignment, error)
}

type assignmentRepository struct {
	db *gorm.DB
}

// NewAssignmentRepository instantiates a GORM-backed repository.
func NewAssignmentRepository(db *gorm.DB) AssignmentRepository {
	return &assignmentRepository{db: db}
}

func (r *assignmentRepository) baseQuery(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.Assignment{}).
		Preload("Assignee").
		Preload("CourseVersion").
		Preload("CourseVersion.Course").
		Preload("Cycles", func(db *gorm.DB) *gorm.DB {
			return db.Order("id ASC")
		})
}

func (r *assignmentRepository) Create(ctx context.Context, assignment *models.Assignment) error {
	return r.db.WithContext(ctx).Omit("Assignee", "CourseVersion", "Cycles").Create(assignment).Error
}

func (r *assignmentRepository) GetByID(ctx context.Context, id uint) (models.Assignment, error) {
	var assignment models.Assignment
	if err := r.baseQuery(ctx).First(&assignment, id).Error; err != nil {
		return models.Assignment{}, err
	}
	return assignment, nil
}

func (r *assignmentRepository) ListByAssignee(ctx context.Context, assigneeID uint) ([]models.Assignment, error) {
	var assignments []models.Assignment
	if err := r.baseQuery(ctx).
		Where("assignee_id = ?", assigneeID).
		Order("assigned_at DESC").
		Order("id DESC").
		Find(&assignments).Error; err != nil {
		return nil, err
	}
	return assignments, nil
}

func (r *assignmentRepository) LatestForUserAndVersion(ctx context.Context, assigneeID, versionID uint) (models.Assignment, error) {
	var assignment models.Assignment
	if err := r.db.WithContext(ctx).
		Preload("Cycles", func(db *gorm.DB) *gorm.DB {
			return db.Order("id ASC")
		}).
		Where("assignee_id = ? AND course_version_id = ?", assigneeID, versionID).
		Order("assigned_at DESC").
		Order("id DESC").
		First(&assignment).Error; err != nil {
		return models.Assignment{}, err
	}
	return assignment, nil
}

func (r *assignmentRepository) ExistsForUserAndVersion(ctx context.Context, assigneeID, versionID uint) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Assignment{}).
		Where("assignee_id = ? AND course_version_id = ?", assigneeID, versionID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// MarkInProgress moves every ASSIGNED assignment of the user for the version to
// IN_PROGRESS. The status guard keeps the transition one-way under concurrent pings.
func (r *assignmentRepository) MarkInProgress(ctx context.Context, assigneeID, versionID uint) (int64, error) {
	result := r.db.WithContext(ctx).Model(&models.Assignment{}).
		Where("assignee_id = ? AND course_version_id = ? AND status = ?", assigneeID, versionID, models.AssignmentStatusAssigned).
		Update("status", models.AssignmentStatusInProgress)
	return result.RowsAffected, result.Error
}

func (r *assignmentRepository) MarkAssignmentInProgress(ctx context.Context, id uint) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.Assignment{}).
		Where("id = ? AND status = ?", id, models.AssignmentStatusAssigned).
		Update("status", models.AssignmentStatusInProgress)
	return result.RowsAffected > 0, result.Error
}

func (r *assignmentRepository) MarkCompleted(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).Model(&models.Assignment{}).
		Where("id = ?", id).
		Update("status", models.AssignmentStatusCompleted)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Lock reads the assignment with a row lock held until the surrounding transaction
// ends. Completions serialise on it before inspecting cycles.
func (r *assignmentRepository) Lock(ctx context.Context, id uint) (models.Assignment, error) {
	var assignment models.Assignment
	if err := forUpdate(r.db.WithContext(ctx)).First(&assignment, id).Error; err != nil {
		return models.Assignment{}, err
	}
	return assignment, nil
}
