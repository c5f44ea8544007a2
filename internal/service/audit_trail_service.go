package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"

	"github.com/noah-isme/gema-compliance-api/internal/dto"
	"github.com/noah-isme/gema-compliance-api/internal/models"
	"github.com/noah-isme/gema-compliance-api/internal/repository"
	"github.com/noah-isme/gema-compliance-api/internal/utils"
)

// AuditEntry captures the details required to persist an audit event.
type AuditEntry struct {
	ActorID    *uint
	Action     string
	ObjectType string
	ObjectID   string
	Details    map[string]interface{}
	IPAddress  string
}

// NewAuditEvent validates and normalises an entry into its model.
func NewAuditEvent(entry AuditEntry) (models.AuditEvent, error) {
	action := strings.ToUpper(strings.TrimSpace(entry.Action))
	if action == "" {
		return models.AuditEvent{}, fmt.Errorf("audit action is required")
	}

	return models.AuditEvent{
		ActorID:    entry.ActorID,
		Action:     action,
		ObjectType: strings.TrimSpace(entry.ObjectType),
		ObjectID:   strings.TrimSpace(entry.ObjectID),
		Details:    sanitizeDetails(entry.Details),
		IPAddress:  strings.TrimSpace(entry.IPAddress),
	}, nil
}

// RecordAudit writes an audit event through the given repository. Callers inside a
// transaction pass the transactional repository so the event commits with the change.
func RecordAudit(ctx context.Context, repo repository.AuditEventRepository, entry AuditEntry) error {
	event, err := NewAuditEvent(entry)
	if err != nil {
		return err
	}
	return repo.Create(ctx, &event)
}

// AuditTrailService exposes the append-only audit trail.
type AuditTrailService interface {
	Record(ctx context.Context, entry AuditEntry) error
	List(ctx context.Context, req dto.AuditEventListRequest) ([]dto.AuditEventResponse, utils.PageMeta, error)
}

type auditTrailService struct {
	repo      repository.AuditEventRepository
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewAuditTrailService constructs the audit trail service.
func NewAuditTrailService(repo repository.AuditEventRepository, validate *validator.Validate, logger zerolog.Logger) AuditTrailService {
	return &auditTrailService{
		repo:      repo,
		validator: validate,
		logger:    logger.With().Str("component", "audit_trail_service").Logger(),
	}
}

func (s *auditTrailService) Record(ctx context.Context, entry AuditEntry) error {
	if err := RecordAudit(ctx, s.repo, entry); err != nil {
		s.logger.Error().Err(err).Str("action", entry.Action).Msg("failed to persist audit event")
		return err
	}
	return nil
}

func (s *auditTrailService) List(ctx context.Context, req dto.AuditEventListRequest) ([]dto.AuditEventResponse, utils.PageMeta, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, utils.PageMeta{}, err
	}

	page := maxInt(req.Page, 1)
	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}

	filter := repository.AuditEventFilter{
		Page:       page,
		PageSize:   pageSize,
		Action:     strings.ToUpper(strings.TrimSpace(req.Action)),
		ObjectType: strings.TrimSpace(req.ObjectType),
		ObjectID:   strings.TrimSpace(req.ObjectID),
	}
	if req.ActorID > 0 {
		actorID := req.ActorID
		filter.ActorID = &actorID
	}

	events, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, utils.PageMeta{}, err
	}

	responses := make([]dto.AuditEventResponse, 0, len(events))
	for _, event := range events {
		responses = append(responses, dto.NewAuditEventResponse(event))
	}

	return responses, utils.NewPageMeta(page, pageSize, total), nil
}

func sanitizeDetails(details map[string]interface{}) datatypes.JSONMap {
	sanitized := datatypes.JSONMap{}
	for key, value := range details {
		lower := strings.ToLower(key)
		if strings.Contains(lower, "token") || strings.Contains(lower, "password") || strings.Contains(lower, "secret") {
			sanitized[key] = "***"
			continue
		}
		sanitized[key] = value
	}
	return sanitized
}

func actorRef(user models.User) *uint {
	if user.ID == 0 {
		return nil
	}
	id := user.ID
	return &id
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
