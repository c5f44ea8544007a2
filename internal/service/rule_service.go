package service

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-compliance-api/internal/dto"
	"github.com/noah-isme/gema-compliance-api/internal/models"
	"github.com/noah-isme/gema-compliance-api/internal/repository"
)

// RuleService administers recurring assignment rules.
type RuleService interface {
	List(ctx context.Context) ([]dto.RuleResponse, error)
	Create(ctx context.Context, actor models.User, req dto.RuleCreateRequest, ip string) (dto.RuleResponse, error)
	Update(ctx context.Context, actor models.User, id uint, req dto.RuleUpdateRequest, ip string) (dto.RuleResponse, error)
}

type ruleService struct {
	store     repository.Store
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewRuleService constructs the rule service.
func NewRuleService(store repository.Store, validate *validator.Validate, logger zerolog.Logger) RuleService {
	return &ruleService{
		store:     store,
		validator: validate,
		logger:    logger.With().Str("component", "rule_service").Logger(),
	}
}

func (s *ruleService) List(ctx context.Context) ([]dto.RuleResponse, error) {
	rules, err := s.store.Rules().List(ctx)
	if err != nil {
		return nil, err
	}
	responses := make([]dto.RuleResponse, 0, len(rules))
	for _, rule := range rules {
		responses = append(responses, dto.NewRuleResponse(rule))
	}
	return responses, nil
}

func (s *ruleService) Create(ctx context.Context, actor models.User, req dto.RuleCreateRequest, ip string) (dto.RuleResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.RuleResponse{}, err
	}

	version, err := s.store.CourseVersions().GetByID(ctx, req.CourseVersionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.RuleResponse{}, ErrCourseVersionNotFound
		}
		return dto.RuleResponse{}, err
	}
	if version.IsRetired() {
		return dto.RuleResponse{}, ErrVersionRetired
	}

	rule := models.AssignmentRule{
		Name:             strings.TrimSpace(req.Name),
		CourseVersionID:  version.ID,
		Frequency:        models.RuleFrequencyYearly,
		CycleDays:        365,
		RemindDaysBefore: 30,
		AssignToAllUsers: req.AssignToAllUsers == nil || *req.AssignToAllUsers,
		Department:       strings.TrimSpace(req.Department),
		IsActive:         req.IsActive == nil || *req.IsActive,
	}
	if req.Frequency != "" {
		rule.Frequency = models.RuleFrequency(req.Frequency)
	}
	if req.CycleDays > 0 {
		rule.CycleDays = req.CycleDays
	}
	if req.RemindDaysBefore > 0 {
		rule.RemindDaysBefore = req.RemindDaysBefore
	}
	if rule.Name == "" {
		rule.Name = version.Course.Code + " " + version.Version
	}

	err = s.store.Transaction(ctx, func(tx repository.Store) error {
		if err := tx.Rules().Create(ctx, &rule); err != nil {
			return err
		}
		return RecordAudit(ctx, tx.AuditEvents(), AuditEntry{
			ActorID:    actorRef(actor),
			Action:     models.AuditActionRuleCreated,
			ObjectType: "assignment_rule",
			ObjectID:   strconv.FormatUint(uint64(rule.ID), 10),
			Details:    map[string]interface{}{"course_version_id": rule.CourseVersionID, "cycle_days": rule.CycleDays},
			IPAddress:  ip,
		})
	})
	if err != nil {
		return dto.RuleResponse{}, err
	}

	rule.CourseVersion = version
	return dto.NewRuleResponse(rule), nil
}

func (s *ruleService) Update(ctx context.Context, actor models.User, id uint, req dto.RuleUpdateRequest, ip string) (dto.RuleResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.RuleResponse{}, err
	}

	rule, err := s.store.Rules().GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.RuleResponse{}, ErrRuleNotFound
		}
		return dto.RuleResponse{}, err
	}

	if req.Name != nil {
		rule.Name = strings.TrimSpace(*req.Name)
	}
	if req.Frequency != nil {
		rule.Frequency = models.RuleFrequency(*req.Frequency)
	}
	if req.CycleDays != nil {
		rule.CycleDays = *req.CycleDays
	}
	if req.RemindDaysBefore != nil {
		rule.RemindDaysBefore = *req.RemindDaysBefore
	}
	if req.AssignToAllUsers != nil {
		rule.AssignToAllUsers = *req.AssignToAllUsers
	}
	if req.Department != nil {
		rule.Department = strings.TrimSpace(*req.Department)
	}
	if req.IsActive != nil {
		rule.IsActive = *req.IsActive
	}

	err = s.store.Transaction(ctx, func(tx repository.Store) error {
		if err := tx.Rules().Update(ctx, &rule); err != nil {
			return err
		}
		return RecordAudit(ctx, tx.AuditEvents(), AuditEntry{
			ActorID:    actorRef(actor),
			Action:     models.AuditActionRuleUpdated,
			ObjectType: "assignment_rule",
			ObjectID:   strconv.FormatUint(uint64(rule.ID), 10),
			Details:    map[string]interface{}{"is_active": rule.IsActive, "cycle_days": rule.CycleDays},
			IPAddress:  ip,
		})
	})
	if err != nil {
		return dto.RuleResponse{}, err
	}

	return dto.NewRuleResponse(rule), nil
}
