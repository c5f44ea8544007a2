package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-compliance-api/internal/models"
)

// CourseRepository persists courses.
type CourseRepository interface {
	Create(ctx context.Context, course *models.Course) error
	GetByID(ctx context.Context, id uint) (models.Course, error)
	GetByCode(ctx context.Context, code string) (models.Course, error)
	ListRequiredActive(ctx context.Context) ([]models.Course, error)
}

// CourseVersionRepository persists course versions.
type CourseVersionRepository interface {
	Create(ctx context.Context, version *models.CourseVersion) error
	GetByID(ctx context.Context, id uint) (models.CourseVersion, error)
	GetByLabel(ctx context.Context, courseID uint, label string) (models.CourseVersion, error)
	Update(ctx context.Context, version *models.CourseVersion) error
	Delete(ctx context.Context, id uint) error
	LatestPublished(ctx context.Context, courseID uint) (models.CourseVersion, error)
	CountAssignments(ctx context.Context, versionID uint) (int64, error)
}

type courseRepository struct {
	db *gorm.DB
}

// NewCourseRepository instantiates a GORM-backed repository.
func NewCourseRepository(db *gorm.DB) CourseRepository {
	return &courseRepository{db: db}
}

func (r *courseRepository) Create(ctx context.Context, course *models.Course) error {
	return r.db.WithContext(ctx).Create(course).Error
}

func (r *courseRepository) GetByID(ctx context.Context, id uint) (models.Course, error) {
	var course models.Course
	if err := r.db.WithContext(ctx).First(&course, id).Error; err != nil {
		return models.Course{}, err
	}
	return course, nil
}

func (r *courseRepository) GetByCode(ctx context.Context, code string) (models.Course, error) {
	var course models.Course
	if err := r.db.WithContext(ctx).Where("code = ?", code).First(&course).Error; err != nil {
		return models.Course{}, err
	}
	return course, nil
}

func (r *courseRepository) ListRequiredActive(ctx context.Context) ([]models.Course, error) {
	var courses []models.Course
	if err := r.db.WithContext(ctx).
		Where("is_active = ? AND required_for_company = ?", true, true).
		Order("code ASC").
		Find(&courses).Error; err != nil {
		return nil, err
	}
	return courses, nil
}

type courseVersionRepository struct {
	db *gorm.DB
}

// NewCourseVersionRepository instantiates a GORM-backed repository.
func NewCourseVersionRepository(db *gorm.DB) CourseVersionRepository {
	return &courseVersionRepository{db: db}
}

func (r *courseVersionRepository) Create(ctx context.Context, version *models.CourseVersion) error {
	return r.db.WithContext(ctx).Omit("Course").Create(version).Error
}

func (r *courseVersionRepository) GetByID(ctx context.Context, id uint) (models.CourseVersion, error) {
	var version models.CourseVersion
	if err := r.db.WithContext(ctx).Preload("Course").First(&version, id).Error; err != nil {
		return models.CourseVersion{}, err
	}
	return version, nil
}

func (r *courseVersionRepository) GetByLabel(ctx context.Context, courseID uint, label string) (models.CourseVersion, error) {
	var version models.CourseVersion
	if err := r.db.WithContext(ctx).
		Preload("Course").
		Where("course_id = ? AND version = ?", courseID, label).
		First(&version).Error; err != nil {
		return models.CourseVersion{}, err
	}
	return version, nil
}

func (r *courseVersionRepository) Update(ctx context.Context, version *models.CourseVersion) error {
	return r.db.WithContext(ctx).Omit("Course").Save(version).Error
}

func (r *courseVersionRepository) Delete(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).Delete(&models.CourseVersion{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *courseVersionRepository) LatestPublished(ctx context.Context, courseID uint) (models.CourseVersion, error) {
	var version models.CourseVersion
	if err := r.db.WithContext(ctx).
		Preload("Course").
		Where("course_id = ? AND is_published = ? AND retired_at IS NULL", courseID, true).
		Order("published_at DESC").
		Order("id DESC").
		First(&version).Error; err != nil {
		return models.CourseVersion{}, err
	}
	return version, nil
}

func (r *courseVersionRepository) CountAssignments(ctx context.Context, versionID uint) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Assignment{}).
		Where("course_version_id = ?", versionID).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
