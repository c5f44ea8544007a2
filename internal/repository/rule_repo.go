package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-compliance-api/internal/models"
)

// RuleRepository persists recurring assignment rules.
type RuleRepository interface {
	Create(ctx context.Context, rule *models.AssignmentRule) error
	GetByID(ctx context.Context, id uint) (models.AssignmentRule, error)
	Update(ctx context.Context, rule *models.AssignmentRule) error
	List(ctx context.Context) ([]models.AssignmentRule, error)
	ListActive(ctx context.Context) ([]models.AssignmentRule, error)
	StampLastRun(ctx context.Context, id uint, at time.Time) error
}

type ruleRepository struct {
	db *gorm.DB
}

// NewRuleRepository instantiates a GORM-backed repository.
func NewRuleRepository(db *gorm.DB) RuleRepository {
	return &ruleRepository{db: db}
}

func (r *ruleRepository) Create(ctx context.Context, rule *models.AssignmentRule) error {
	return r.db.WithContext(ctx).Omit("CourseVersion").Create(rule).Error
}

func (r *ruleRepository) GetByID(ctx context.Context, id uint) (models.AssignmentRule, error) {
	var rule models.AssignmentRule
	if err := r.db.WithContext(ctx).
		Preload("CourseVersion").
		Preload("CourseVersion.Course").
		First(&rule, id).Error; err != nil {
		return models.AssignmentRule{}, err
	}
	return rule, nil
}

func (r *ruleRepository) Update(ctx context.Context, rule *models.AssignmentRule) error {
	return r.db.WithContext(ctx).Omit("CourseVersion").Save(rule).Error
}

func (r *ruleRepository) List(ctx context.Context) ([]models.AssignmentRule, error) {
	var rules []models.AssignmentRule
	if err := r.db.WithContext(ctx).
		Preload("CourseVersion").
		Preload("CourseVersion.Course").
		Order("id ASC").
		Find(&rules).Error; err != nil {
		return nil, err
	}
	return rules, nil
}

// ListActive orders rules by watermark so rules that have never run, or ran longest
// ago, are processed first.
func (r *ruleRepository) ListActive(ctx context.Context) ([]models.AssignmentRule, error) {
	var rules []models.AssignmentRule
	if err := r.db.WithContext(ctx).
		Preload("CourseVersion").
		Preload("CourseVersion.Course").
		Where("is_active = ?", true).
		Order("CASE WHEN last_run_at IS NULL THEN 0 ELSE 1 END").
		Order("last_run_at ASC").
		Order("id ASC").
		Find(&rules).Error; err != nil {
		return nil, err
	}
	return rules, nil
}

func (r *ruleRepository) StampLastRun(ctx context.Context, id uint, at time.Time) error {
	return r.db.WithContext(ctx).Model(&models.AssignmentRule{}).
		Where("id = ?", id).
		Update("last_run_at", at).Error
}
