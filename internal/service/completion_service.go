package service

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-compliance-api/internal/compliance"
	"github.com/noah-isme/gema-compliance-api/internal/dto"
	"github.com/noah-isme/gema-compliance-api/internal/models"
	"github.com/noah-isme/gema-compliance-api/internal/observability"
	"github.com/noah-isme/gema-compliance-api/internal/repository"
)

const defaultCertificateAttempts = 5

var errCertificateCollision = errors.New("certificate id collision")

// CompletionConfig holds the completion gates and renewal window.
type CompletionConfig struct {
	VideoGatePercent int
	RenewalMonths    int
}

// CompletionService is the cycle engine: it gates, mints and commits completion cycles.
type CompletionService interface {
	Complete(ctx context.Context, actor models.User, assignmentID uint, ip string) (dto.CycleResponse, error)
}

// DashboardInvalidator drops cached dashboard data for a user.
type DashboardInvalidator interface {
	Invalidate(ctx context.Context, userID uint)
}

type completionService struct {
	store            repository.Store
	cfg              CompletionConfig
	publisher        CompletionPublisher
	dashboard        DashboardInvalidator
	logger           zerolog.Logger
	tracer           trace.Tracer
	now              func() time.Time
	newCertificateID func() string
	maxAttempts      int
}

// NewCompletionService constructs the cycle engine. publisher and dashboard may be nil.
func NewCompletionService(store repository.Store, cfg CompletionConfig, publisher CompletionPublisher, dashboard DashboardInvalidator, logger zerolog.Logger) CompletionService {
	if cfg.VideoGatePercent <= 0 {
		cfg.VideoGatePercent = 90
	}
	if cfg.RenewalMonths <= 0 {
		cfg.RenewalMonths = compliance.DefaultRenewalMonths
	}

	return &completionService{
		store:            store,
		cfg:              cfg,
		publisher:        publisher,
		dashboard:        dashboard,
		logger:           logger.With().Str("component", "completion_service").Logger(),
		tracer:           otel.Tracer("github.com/noah-isme/gema-compliance-api/internal/service/completion"),
		now:              func() time.Time { return time.Now().UTC() },
		newCertificateID: models.NewCertificateID,
		maxAttempts:      defaultCertificateAttempts,
	}
}

// Complete closes the current cycle of an assignment owned by actor. The video gate
// and, for a required quiz, a passing attempt submitted after the previous completion
// must both hold. The cycle write and the assignment status change commit together.
func (s *completionService) Complete(ctx context.Context, actor models.User, assignmentID uint, ip string) (dto.CycleResponse, error) {
	ctx, span := s.tracer.Start(ctx, "cycle.complete")
	span.SetAttributes(
		attribute.Int64("cycle.assignment_id", int64(assignmentID)),
		attribute.Int64("cycle.actor_id", int64(actor.ID)),
	)
	defer span.End()

	assignment, err := s.store.Assignments().GetByID(ctx, assignmentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			span.SetStatus(codes.Error, "assignment_not_found")
			return dto.CycleResponse{}, ErrAssignmentNotFound
		}
		span.RecordError(err)
		return dto.CycleResponse{}, err
	}
	if assignment.AssigneeID != actor.ID {
		span.SetStatus(codes.Error, "assignment_not_owned")
		return dto.CycleResponse{}, ErrAssignmentNotFound
	}

	now := s.now()
	latest := assignment.LatestCompletedCycle()
	if assignment.OpenCycle() == nil && latest != nil && latest.Status(now) == compliance.StatusCompliant {
		observability.Completions().WithLabelValues("already_compliant").Inc()
		span.SetStatus(codes.Error, "already_compliant")
		return dto.CycleResponse{}, ErrAlreadyCompliant
	}

	if err := s.checkVideoGate(ctx, actor.ID, assignment.CourseVersionID); err != nil {
		observability.Completions().WithLabelValues("video_gate").Inc()
		span.SetStatus(codes.Error, "video_gate")
		return dto.CycleResponse{}, err
	}

	var since *time.Time
	if latest != nil {
		since = latest.CompletedAt
	}
	score, err := s.checkQuizGate(ctx, assignment, since)
	if err != nil {
		if _, ok := IsPrecondition(err); ok {
			observability.Completions().WithLabelValues("quiz_gate").Inc()
			span.SetStatus(codes.Error, "quiz_gate")
		} else {
			span.RecordError(err)
		}
		return dto.CycleResponse{}, err
	}

	cycle, err := s.commit(ctx, actor, assignment, score, now, ip)
	if errors.Is(err, ErrAlreadyCompliant) {
		observability.Completions().WithLabelValues("already_compliant").Inc()
		span.SetStatus(codes.Error, "already_compliant")
		return dto.CycleResponse{}, err
	}
	if err != nil {
		observability.Completions().WithLabelValues("error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "commit_failed")
		return dto.CycleResponse{}, err
	}

	observability.Completions().WithLabelValues("completed").Inc()
	span.SetAttributes(attribute.String("cycle.certificate_id", cycle.CertificateID))
	span.SetStatus(codes.Ok, "completed")

	s.afterCommit(ctx, assignment, cycle)

	s.logger.Info().
		Uint("assignment_id", assignment.ID).
		Uint("user_id", actor.ID).
		Str("certificate_id", cycle.CertificateID).
		Time("expires_at", *cycle.ExpiresAt).
		Msg("assignment cycle completed")

	return dto.NewCycleResponse(cycle, now), nil
}

func (s *completionService) checkVideoGate(ctx context.Context, userID, versionID uint) error {
	percent := 0
	progress, err := s.store.Progress().Get(ctx, userID, versionID)
	switch {
	case err == nil:
		percent = progress.Percent
	case errors.Is(err, gorm.ErrRecordNotFound):
	default:
		return err
	}

	if percent < s.cfg.VideoGatePercent {
		return &PreconditionError{Remediation: RemediationWatchVideo, Required: s.cfg.VideoGatePercent, Actual: percent}
	}
	return nil
}

// checkQuizGate returns the score to persist when the version has a required quiz.
func (s *completionService) checkQuizGate(ctx context.Context, assignment models.Assignment, since *time.Time) (*int, error) {
	quiz, err := s.store.Quizzes().GetByCourseVersion(ctx, assignment.CourseVersionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if !quiz.IsRequired || len(quiz.Questions) == 0 {
		return nil, nil
	}

	attempt, err := s.store.Quizzes().LatestPassingAttempt(ctx, assignment.ID, since)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &PreconditionError{Remediation: RemediationRetakeQuiz, Required: assignment.CourseVersion.EffectivePassScore()}
		}
		return nil, err
	}

	score := attempt.Score
	return &score, nil
}

func (s *completionService) commit(ctx context.Context, actor models.User, assignment models.Assignment, score *int, now time.Time, ip string) (models.AssignmentCycle, error) {
	expiresAt := compliance.RenewalExpiry(now, s.cfg.RenewalMonths)

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		var cycle models.AssignmentCycle
		err := s.store.Transaction(ctx, func(tx repository.Store) error {
			if _, err := tx.Assignments().Lock(ctx, assignment.ID); err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return ErrAssignmentNotFound
				}
				return err
			}

			open, err := tx.Cycles().Open(ctx, assignment.ID)
			switch {
			case err == nil:
				cycle = open
				cycle.CompletedAt = &now
				cycle.ExpiresAt = &expiresAt
				cycle.Score = score
				cycle.Passed = true
				if err := tx.Cycles().Complete(ctx, &cycle); err != nil {
					if errors.Is(err, gorm.ErrRecordNotFound) {
						return ErrAlreadyCompliant
					}
					return err
				}
			case errors.Is(err, gorm.ErrRecordNotFound):
				previous, err := tx.Cycles().LatestCompleted(ctx, assignment.ID)
				if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
					return err
				}
				if err == nil && previous.Status(now) == compliance.StatusCompliant {
					return ErrAlreadyCompliant
				}
				cycle = models.AssignmentCycle{
					AssignmentID:  assignment.ID,
					CompletedAt:   &now,
					ExpiresAt:     &expiresAt,
					Score:         score,
					Passed:        true,
					CertificateID: s.newCertificateID(),
				}
				taken, err := tx.Cycles().CertificateExists(ctx, cycle.CertificateID)
				if err != nil {
					return err
				}
				if taken {
					return errCertificateCollision
				}
				if err := tx.Cycles().Create(ctx, &cycle); err != nil {
					return err
				}
			default:
				return err
			}

			if err := tx.Assignments().MarkCompleted(ctx, assignment.ID); err != nil {
				return err
			}

			return RecordAudit(ctx, tx.AuditEvents(), AuditEntry{
				ActorID:    actorRef(actor),
				Action:     models.AuditActionCourseCompleted,
				ObjectType: "assignment_cycle",
				ObjectID:   strconv.FormatUint(uint64(cycle.ID), 10),
				Details: map[string]interface{}{
					"assignment_id":  assignment.ID,
					"certificate_id": cycle.CertificateID,
					"score":          score,
					"expires_at":     expiresAt.Format(time.RFC3339),
				},
				IPAddress: ip,
			})
		})
		if err == nil {
			return cycle, nil
		}
		if errors.Is(err, errCertificateCollision) || repository.IsUniqueViolation(err) {
			observability.CertificateCollisions().Inc()
			s.logger.Warn().Int("attempt", attempt).Uint("assignment_id", assignment.ID).Msg("certificate id collision, retrying")
			continue
		}
		return models.AssignmentCycle{}, err
	}

	return models.AssignmentCycle{}, ErrCertificateIDExhausted
}

func (s *completionService) afterCommit(ctx context.Context, assignment models.Assignment, cycle models.AssignmentCycle) {
	if s.dashboard != nil {
		s.dashboard.Invalidate(ctx, assignment.AssigneeID)
	}

	if s.publisher == nil {
		return
	}
	event := CompletionEvent{
		CycleID:         cycle.ID,
		AssignmentID:    assignment.ID,
		UserID:          assignment.AssigneeID,
		CourseVersionID: assignment.CourseVersionID,
		CourseCode:      assignment.CourseVersion.Course.Code,
		Version:         assignment.CourseVersion.Version,
		CertificateID:   cycle.CertificateID,
		CompletedAt:     *cycle.CompletedAt,
		ExpiresAt:       *cycle.ExpiresAt,
		Score:           cycle.Score,
	}
	if err := s.publisher.PublishCompletion(ctx, event); err != nil {
		s.logger.Warn().Err(err).Str("certificate_id", cycle.CertificateID).Msg("failed to publish completion event")
	}
}
