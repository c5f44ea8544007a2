package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-compliance-api/internal/models"
)

// AuditEventFilter narrows audit event queries.
type AuditEventFilter struct {
	Page       int
	PageSize   int
	ActorID    *uint
	Action     string
	ObjectType string
	ObjectID   string
}

// AuditEventRepository persists the append-only audit trail.
type AuditEventRepository interface {
	Create(ctx context.Context, event *models.AuditEvent) error
	List(ctx context.Context, filter AuditEventFilter) ([]models.AuditEvent, int64, error)
}

type auditEventRepository struct {
	db *gorm.DB
}

// NewAuditEventRepository constructs the audit event repository.
func NewAuditEventRepository(db *gorm.DB) AuditEventRepository {
	return &auditEventRepository{db: db}
}

func (r *auditEventRepository) Create(ctx context.Context, event *models.AuditEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *auditEventRepository) List(ctx context.Context, filter AuditEventFilter) ([]models.AuditEvent, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.AuditEvent{})

	if filter.ActorID != nil {
		query = query.Where("actor_id = ?", *filter.ActorID)
	}

	if filter.Action != "" {
		query = query.Where("action = ?", filter.Action)
	}

	if filter.ObjectType != "" {
		query = query.Where("object_type = ?", filter.ObjectType)
	}

	if filter.ObjectID != "" {
		query = query.Where("object_id = ?", filter.ObjectID)
	}

	countQuery := query.Session(&gorm.Session{})
	var total int64
	if err := countQuery.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if filter.PageSize > 0 {
		page := filter.Page
		if page <= 0 {
			page = 1
		}
		offset := (page - 1) * filter.PageSize
		query = query.Offset(offset).Limit(filter.PageSize)
	}

	var events []models.AuditEvent
	if err := query.Order("created_at DESC").Order("id DESC").Find(&events).Error; err != nil {
		return nil, 0, err
	}

	return events, total, nil
}
