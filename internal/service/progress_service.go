package service

import (
	"context"
	"errors"
	"math"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-compliance-api/internal/dto"
	"github.com/noah-isme/gema-compliance-api/internal/models"
	"github.com/noah-isme/gema-compliance-api/internal/repository"
)

// ProgressService records video progress pings.
type ProgressService interface {
	RecordPing(ctx context.Context, actor models.User, versionID uint, req dto.ProgressPingRequest, ip string) (dto.ProgressResponse, error)
	Get(ctx context.Context, actor models.User, versionID uint) (dto.ProgressResponse, error)
}

type progressService struct {
	store           repository.Store
	validator       *validator.Validate
	gatePercent     int
	completePercent int
	logger          zerolog.Logger
	now             func() time.Time
}

// NewProgressService constructs the progress service. gatePercent is the completion
// gate reported back to the player; completePercent marks the watch as finished.
func NewProgressService(store repository.Store, validate *validator.Validate, gatePercent, completePercent int, logger zerolog.Logger) ProgressService {
	return &progressService{
		store:           store,
		validator:       validate,
		gatePercent:     gatePercent,
		completePercent: completePercent,
		logger:          logger.With().Str("component", "progress_service").Logger(),
		now:             func() time.Time { return time.Now().UTC() },
	}
}

func (s *progressService) RecordPing(ctx context.Context, actor models.User, versionID uint, req dto.ProgressPingRequest, ip string) (dto.ProgressResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.ProgressResponse{}, err
	}

	if err := s.authorize(ctx, actor, versionID); err != nil {
		return dto.ProgressResponse{}, err
	}

	now := s.now()
	ping := repository.ProgressPing{
		UserID:          actor.ID,
		CourseVersionID: versionID,
		WatchedSeconds:  req.WatchedSeconds,
		TotalSeconds:    req.TotalSeconds,
		Percent:         pingPercent(req),
		At:              now,
	}

	var progress models.VideoProgress
	err := s.store.Transaction(ctx, func(tx repository.Store) error {
		_, lookupErr := tx.Progress().Get(ctx, actor.ID, versionID)
		firstPing := errors.Is(lookupErr, gorm.ErrRecordNotFound)
		if lookupErr != nil && !firstPing {
			return lookupErr
		}

		merged, err := tx.Progress().Merge(ctx, ping, s.completePercent)
		if err != nil {
			return err
		}
		progress = merged

		objectID := strconv.FormatUint(uint64(versionID), 10)
		if firstPing {
			if err := RecordAudit(ctx, tx.AuditEvents(), AuditEntry{
				ActorID:    actorRef(actor),
				Action:     models.AuditActionProgressStarted,
				ObjectType: "course_version",
				ObjectID:   objectID,
				Details:    map[string]interface{}{"percent": merged.Percent},
				IPAddress:  ip,
			}); err != nil {
				return err
			}
		}

		moved, err := tx.Assignments().MarkInProgress(ctx, actor.ID, versionID)
		if err != nil {
			return err
		}
		if moved > 0 {
			return RecordAudit(ctx, tx.AuditEvents(), AuditEntry{
				ActorID:    actorRef(actor),
				Action:     models.AuditActionAssignmentStarted,
				ObjectType: "course_version",
				ObjectID:   objectID,
				Details:    map[string]interface{}{"trigger": "video_progress", "assignments": moved},
				IPAddress:  ip,
			})
		}
		return nil
	})
	if err != nil {
		s.logger.Error().Err(err).Uint("user_id", actor.ID).Uint("course_version_id", versionID).Msg("failed to record progress ping")
		return dto.ProgressResponse{}, err
	}

	return dto.NewProgressResponse(progress, s.gatePercent), nil
}

func (s *progressService) Get(ctx context.Context, actor models.User, versionID uint) (dto.ProgressResponse, error) {
	if err := s.authorize(ctx, actor, versionID); err != nil {
		return dto.ProgressResponse{}, err
	}

	progress, err := s.store.Progress().Get(ctx, actor.ID, versionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.NewProgressResponse(models.VideoProgress{UserID: actor.ID, CourseVersionID: versionID}, s.gatePercent), nil
		}
		return dto.ProgressResponse{}, err
	}
	return dto.NewProgressResponse(progress, s.gatePercent), nil
}

// authorize lets assignees and staff report progress. Everyone else sees the version
// as missing.
func (s *progressService) authorize(ctx context.Context, actor models.User, versionID uint) error {
	if _, err := s.store.CourseVersions().GetByID(ctx, versionID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrCourseVersionNotFound
		}
		return err
	}

	if actor.IsStaff || actor.IsSuperuser {
		return nil
	}

	assigned, err := s.store.Assignments().ExistsForUserAndVersion(ctx, actor.ID, versionID)
	if err != nil {
		return err
	}
	if !assigned {
		return ErrCourseVersionNotFound
	}
	return nil
}

// pingPercent prefers the reported percent and falls back to watched/total. The result
// is clamped to 0-100.
func pingPercent(req dto.ProgressPingRequest) int {
	var percent float64
	switch {
	case req.Percent != nil:
		percent = *req.Percent
	case req.TotalSeconds > 0:
		percent = float64(req.WatchedSeconds) * 100 / float64(req.TotalSeconds)
	}

	switch {
	case math.IsNaN(percent) || percent < 0:
		return 0
	case percent > 100:
		return 100
	}
	return int(math.Floor(percent))
}
