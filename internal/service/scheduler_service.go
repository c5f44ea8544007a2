package service

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-compliance-api/internal/dto"
	"github.com/noah-isme/gema-compliance-api/internal/middleware"
	"github.com/noah-isme/gema-compliance-api/internal/models"
	"github.com/noah-isme/gema-compliance-api/internal/observability"
	"github.com/noah-isme/gema-compliance-api/internal/repository"
)

// SchedulerService runs the periodic jobs: expiry reminders followed by the recurring
// assignment rules.
type SchedulerService interface {
	Run(ctx context.Context, req dto.SchedulerRunRequest) (dto.SchedulerRunResponse, error)
}

type schedulerService struct {
	store     repository.Store
	reminders ReminderService
	logger    zerolog.Logger
	tracer    trace.Tracer
	now       func() time.Time
	mu        sync.Mutex
}

// NewSchedulerService constructs the scheduler. reminders may be nil to run rules only.
func NewSchedulerService(store repository.Store, reminders ReminderService, logger zerolog.Logger) SchedulerService {
	return &schedulerService{
		store:     store,
		reminders: reminders,
		logger:    logger.With().Str("component", "scheduler_service").Logger(),
		tracer:    otel.Tracer("github.com/noah-isme/gema-compliance-api/internal/service/scheduler"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Run executes one scheduler tick. Runs inside one process are serialised; across
// processes the per-user existence check keeps re-runs from duplicating assignments.
func (s *schedulerService) Run(ctx context.Context, req dto.SchedulerRunRequest) (dto.SchedulerRunResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, span := s.tracer.Start(ctx, "scheduler.run")
	span.SetAttributes(attribute.Bool("scheduler.dry_run", req.DryRun))
	defer span.End()

	started := time.Now()
	defer func() {
		observability.SchedulerRunDuration().Observe(time.Since(started).Seconds())
	}()

	response := dto.SchedulerRunResponse{DryRun: req.DryRun, StartedAt: s.now(), Rules: []dto.RuleRunResult{}}

	if s.reminders != nil && !req.SkipReminders {
		reminders, err := s.reminders.SendExpiryReminders(ctx, ReminderOptions{
			DryRun:        req.DryRun,
			RemindDays:    req.RemindDays,
			OnlyCompleted: req.OnlyCompleted,
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "reminders_failed")
			return dto.SchedulerRunResponse{}, err
		}
		response.Reminders = reminders
	}

	rules, err := s.store.Rules().ListActive(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list_rules_failed")
		return dto.SchedulerRunResponse{}, err
	}

	for _, rule := range rules {
		response.Rules = append(response.Rules, s.runRule(ctx, rule, req.DryRun))
	}

	response.FinishedAt = s.now()
	span.SetAttributes(
		attribute.Int("scheduler.rules", len(rules)),
		attribute.Int("scheduler.created", response.CreatedAssignments()),
	)
	span.SetStatus(codes.Ok, "completed")

	ctxLogger := contextLogger(ctx, s.logger)
	ctxLogger.Info().
		Int("rules", len(rules)).
		Int("created", response.CreatedAssignments()).
		Int("reminders_sent", response.Reminders.Sent).
		Bool("dry_run", req.DryRun).
		Msg("scheduler run finished")

	return response, nil
}

// runRule makes sure every eligible user holds a current assignment for the rule's
// version. last_run_at is stamped only when every user was processed.
func (s *schedulerService) runRule(ctx context.Context, rule models.AssignmentRule, dryRun bool) dto.RuleRunResult {
	result := dto.RuleRunResult{RuleID: rule.ID, Name: rule.Name}
	logger := contextLogger(ctx, s.logger).With().Uint("rule_id", rule.ID).Logger()

	users, err := s.eligibleUsers(ctx, rule)
	if err != nil {
		result.Error = err.Error()
		logger.Error().Err(err).Msg("failed to resolve eligible users")
		return result
	}
	result.Eligible = len(users)

	now := s.now()
	var failed bool
	for _, user := range users {
		created, err := s.ensureAssignment(ctx, rule, user, now, dryRun)
		if err != nil {
			failed = true
			result.Error = err.Error()
			logger.Error().Err(err).Uint("user_id", user.ID).Msg("failed to ensure assignment")
			continue
		}
		if created {
			result.Created++
		} else {
			result.Current++
		}
	}

	if dryRun {
		return result
	}

	if result.Created > 0 {
		observability.SchedulerAssignments().WithLabelValues(strconv.FormatUint(uint64(rule.ID), 10)).Add(float64(result.Created))
	}

	if failed {
		return result
	}

	err = s.store.Transaction(ctx, func(tx repository.Store) error {
		if err := tx.Rules().StampLastRun(ctx, rule.ID, now); err != nil {
			return err
		}
		return RecordAudit(ctx, tx.AuditEvents(), AuditEntry{
			Action:     models.AuditActionRuleRun,
			ObjectType: "assignment_rule",
			ObjectID:   strconv.FormatUint(uint64(rule.ID), 10),
			Details: map[string]interface{}{
				"eligible": result.Eligible,
				"created":  result.Created,
				"current":  result.Current,
			},
		})
	})
	if err != nil {
		result.Error = err.Error()
		logger.Error().Err(err).Msg("failed to stamp rule run")
	}

	return result
}

func (s *schedulerService) eligibleUsers(ctx context.Context, rule models.AssignmentRule) ([]models.User, error) {
	if rule.AssignToAllUsers {
		return s.store.Users().ListActive(ctx, repository.UserFilter{})
	}
	if strings.TrimSpace(rule.Department) == "" {
		return nil, nil
	}
	return s.store.Users().ListActive(ctx, repository.UserFilter{Department: rule.Department})
}

// ensureAssignment creates a new assignment and an empty cycle when the user has none
// for the version, when the latest assignment has no cycles, or when its latest
// completed cycle has expired. An open cycle counts as current. The check and the
// insert share a transaction.
func (s *schedulerService) ensureAssignment(ctx context.Context, rule models.AssignmentRule, user models.User, now time.Time, dryRun bool) (bool, error) {
	if dryRun {
		need, err := needsAssignment(ctx, s.store, user.ID, rule.CourseVersionID, now)
		if err != nil {
			return false, err
		}
		if need {
			ctxLogger := contextLogger(ctx, s.logger)
			ctxLogger.Info().Uint("rule_id", rule.ID).Str("user", user.Username).Msg("dry run: would create assignment")
		}
		return need, nil
	}

	created := false
	err := s.store.Transaction(ctx, func(tx repository.Store) error {
		need, err := needsAssignment(ctx, tx, user.ID, rule.CourseVersionID, now)
		if err != nil || !need {
			return err
		}

		ruleID := rule.ID
		due := now.Add(rule.DueIn())
		assignment := models.Assignment{
			AssigneeID:      user.ID,
			CourseVersionID: rule.CourseVersionID,
			RuleID:          &ruleID,
			AssignedAt:      now,
			DueAt:           &due,
			Status:          models.AssignmentStatusAssigned,
		}
		if err := tx.Assignments().Create(ctx, &assignment); err != nil {
			return err
		}
		if err := tx.Cycles().Create(ctx, &models.AssignmentCycle{AssignmentID: assignment.ID}); err != nil {
			return err
		}

		created = true
		return RecordAudit(ctx, tx.AuditEvents(), AuditEntry{
			Action:     models.AuditActionAssigned,
			ObjectType: "assignment",
			ObjectID:   strconv.FormatUint(uint64(assignment.ID), 10),
			Details: map[string]interface{}{
				"assignee_id":       user.ID,
				"course_version_id": rule.CourseVersionID,
				"rule_id":           rule.ID,
				"source":            "scheduler",
			},
		})
	})
	if err != nil {
		return false, err
	}
	return created, nil
}

func needsAssignment(ctx context.Context, store repository.Store, userID, versionID uint, now time.Time) (bool, error) {
	latest, err := store.Assignments().LatestForUserAndVersion(ctx, userID, versionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return true, nil
		}
		return false, err
	}

	if len(latest.Cycles) == 0 {
		return true, nil
	}
	if latest.OpenCycle() != nil {
		return false, nil
	}

	completed := latest.LatestCompletedCycle()
	if completed == nil || completed.ExpiresAt == nil {
		return false, nil
	}
	return !completed.ExpiresAt.After(now), nil
}

// contextLogger tags base with the correlation id carried by ctx.
func contextLogger(ctx context.Context, base zerolog.Logger) zerolog.Logger {
	if id := middleware.CorrelationIDFromContext(ctx); id != "" {
		return base.With().Str("correlation_id", id).Logger()
	}
	return base
}
