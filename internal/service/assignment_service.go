package service

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-compliance-api/internal/dto"
	"github.com/noah-isme/gema-compliance-api/internal/models"
	"github.com/noah-isme/gema-compliance-api/internal/repository"
)

// AssignmentService covers the learner side of the assignment lifecycle and manual
// assignment by staff.
type AssignmentService interface {
	ListForUser(ctx context.Context, userID uint) ([]dto.AssignmentResponse, error)
	Start(ctx context.Context, actor models.User, assignmentID uint, ip string) (dto.AssignmentResponse, error)
	Assign(ctx context.Context, actor models.User, req dto.AssignmentCreateRequest, ip string) (dto.AssignmentResponse, error)
}

type assignmentService struct {
	store     repository.Store
	validator *validator.Validate
	logger    zerolog.Logger
	now       func() time.Time
}

// NewAssignmentService constructs the assignment service.
func NewAssignmentService(store repository.Store, validate *validator.Validate, logger zerolog.Logger) AssignmentService {
	return &assignmentService{
		store:     store,
		validator: validate,
		logger:    logger.With().Str("component", "assignment_service").Logger(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *assignmentService) ListForUser(ctx context.Context, userID uint) ([]dto.AssignmentResponse, error) {
	assignments, err := s.store.Assignments().ListByAssignee(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	responses := make([]dto.AssignmentResponse, 0, len(assignments))
	for _, assignment := range assignments {
		if assignment.CourseVersion.ID == 0 || assignment.CourseVersion.Course.ID == 0 {
			s.logger.Warn().Uint("assignment_id", assignment.ID).Msg("skipping assignment with missing course version")
			continue
		}
		responses = append(responses, dto.NewAssignmentResponse(assignment, now))
	}
	return responses, nil
}

// Start moves an ASSIGNED assignment to IN_PROGRESS. Starting an assignment that has
// already moved on is a no-op.
func (s *assignmentService) Start(ctx context.Context, actor models.User, assignmentID uint, ip string) (dto.AssignmentResponse, error) {
	assignment, err := s.store.Assignments().GetByID(ctx, assignmentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.AssignmentResponse{}, ErrAssignmentNotFound
		}
		return dto.AssignmentResponse{}, err
	}
	if assignment.AssigneeID != actor.ID {
		return dto.AssignmentResponse{}, ErrAssignmentNotFound
	}

	err = s.store.Transaction(ctx, func(tx repository.Store) error {
		moved, err := tx.Assignments().MarkAssignmentInProgress(ctx, assignment.ID)
		if err != nil || !moved {
			return err
		}
		assignment.Status = models.AssignmentStatusInProgress
		return RecordAudit(ctx, tx.AuditEvents(), AuditEntry{
			ActorID:    actorRef(actor),
			Action:     models.AuditActionAssignmentStarted,
			ObjectType: "assignment",
			ObjectID:   strconv.FormatUint(uint64(assignment.ID), 10),
			Details:    map[string]interface{}{"trigger": "explicit"},
			IPAddress:  ip,
		})
	})
	if err != nil {
		return dto.AssignmentResponse{}, err
	}

	return dto.NewAssignmentResponse(assignment, s.now()), nil
}

// Assign creates a manual assignment for a published, non-retired version. A current
// assignment (open cycle, or a completed cycle that has not expired) is returned
// instead of creating a duplicate.
// New assignments open an empty cycle, the same shape the scheduler creates.
func (s *assignmentService) Assign(ctx context.Context, actor models.User, req dto.AssignmentCreateRequest, ip string) (dto.AssignmentResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.AssignmentResponse{}, err
	}

	if _, err := s.store.Users().GetByID(ctx, req.AssigneeID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.AssignmentResponse{}, ErrUserNotFound
		}
		return dto.AssignmentResponse{}, err
	}

	version, err := s.store.CourseVersions().GetByID(ctx, req.CourseVersionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.AssignmentResponse{}, ErrCourseVersionNotFound
		}
		return dto.AssignmentResponse{}, err
	}
	if !version.IsPublished {
		return dto.AssignmentResponse{}, ErrVersionNotPublished
	}
	if version.IsRetired() {
		return dto.AssignmentResponse{}, ErrVersionRetired
	}

	now := s.now()
	need, err := needsAssignment(ctx, s.store, req.AssigneeID, req.CourseVersionID, now)
	if err != nil {
		return dto.AssignmentResponse{}, err
	}
	if !need {
		existing, err := s.store.Assignments().LatestForUserAndVersion(ctx, req.AssigneeID, req.CourseVersionID)
		if err != nil {
			return dto.AssignmentResponse{}, err
		}
		current, err := s.store.Assignments().GetByID(ctx, existing.ID)
		if err != nil {
			return dto.AssignmentResponse{}, err
		}
		return dto.NewAssignmentResponse(current, now), nil
	}

	assignment := models.Assignment{
		AssigneeID:      req.AssigneeID,
		CourseVersionID: version.ID,
		AssignedAt:      now,
		DueAt:           dueDate(now, req),
		AssignedByID:    actorRef(actor),
		Status:          models.AssignmentStatusAssigned,
	}

	err = s.store.Transaction(ctx, func(tx repository.Store) error {
		if err := tx.Assignments().Create(ctx, &assignment); err != nil {
			return err
		}
		if err := tx.Cycles().Create(ctx, &models.AssignmentCycle{AssignmentID: assignment.ID}); err != nil {
			return err
		}
		return RecordAudit(ctx, tx.AuditEvents(), AuditEntry{
			ActorID:    actorRef(actor),
			Action:     models.AuditActionAssigned,
			ObjectType: "assignment",
			ObjectID:   strconv.FormatUint(uint64(assignment.ID), 10),
			Details: map[string]interface{}{
				"assignee_id":       assignment.AssigneeID,
				"course_version_id": assignment.CourseVersionID,
				"source":            "manual",
			},
			IPAddress: ip,
		})
	})
	if err != nil {
		s.logger.Error().Err(err).Uint("assignee_id", req.AssigneeID).Msg("failed to create assignment")
		return dto.AssignmentResponse{}, err
	}

	created, err := s.store.Assignments().GetByID(ctx, assignment.ID)
	if err != nil {
		return dto.AssignmentResponse{}, err
	}

	s.logger.Info().
		Uint("assignment_id", created.ID).
		Uint("assignee_id", created.AssigneeID).
		Uint("course_version_id", created.CourseVersionID).
		Msg("assignment created")

	return dto.NewAssignmentResponse(created, now), nil
}

func dueDate(now time.Time, req dto.AssignmentCreateRequest) *time.Time {
	if req.DueAt != nil {
		due := req.DueAt.UTC()
		return &due
	}
	if req.DueInDays > 0 {
		due := now.AddDate(0, 0, req.DueInDays)
		return &due
	}
	return nil
}
