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

// QuizService serves quizzes to assignees and grades submissions.
type QuizService interface {
	GetForVersion(ctx context.Context, actor models.User, versionID uint) (dto.QuizResponse, error)
	Submit(ctx context.Context, actor models.User, assignmentID uint, req dto.QuizSubmitRequest, ip string) (dto.QuizResultResponse, error)
}

type quizService struct {
	store     repository.Store
	validator *validator.Validate
	logger    zerolog.Logger
	now       func() time.Time
}

// NewQuizService constructs the quiz service.
func NewQuizService(store repository.Store, validate *validator.Validate, logger zerolog.Logger) QuizService {
	return &quizService{
		store:     store,
		validator: validate,
		logger:    logger.With().Str("component", "quiz_service").Logger(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *quizService) GetForVersion(ctx context.Context, actor models.User, versionID uint) (dto.QuizResponse, error) {
	version, err := s.store.CourseVersions().GetByID(ctx, versionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.QuizResponse{}, ErrCourseVersionNotFound
		}
		return dto.QuizResponse{}, err
	}

	if !actor.IsStaff && !actor.IsSuperuser {
		assigned, err := s.store.Assignments().ExistsForUserAndVersion(ctx, actor.ID, versionID)
		if err != nil {
			return dto.QuizResponse{}, err
		}
		if !assigned {
			return dto.QuizResponse{}, ErrCourseVersionNotFound
		}
	}

	quiz, err := s.store.Quizzes().GetByCourseVersion(ctx, versionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.QuizResponse{}, ErrQuizNotFound
		}
		return dto.QuizResponse{}, err
	}

	return dto.NewQuizResponse(quiz, version.EffectivePassScore()), nil
}

// Submit grades a full set of answers. Every question must be answered exactly once
// with a choice that belongs to it; anything else is rejected before persisting.
func (s *quizService) Submit(ctx context.Context, actor models.User, assignmentID uint, req dto.QuizSubmitRequest, ip string) (dto.QuizResultResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.QuizResultResponse{}, err
	}

	assignment, err := s.store.Assignments().GetByID(ctx, assignmentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.QuizResultResponse{}, ErrAssignmentNotFound
		}
		return dto.QuizResultResponse{}, err
	}
	if assignment.AssigneeID != actor.ID {
		return dto.QuizResultResponse{}, ErrAssignmentNotFound
	}

	quiz, err := s.store.Quizzes().GetByCourseVersion(ctx, assignment.CourseVersionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.QuizResultResponse{}, ErrQuizNotFound
		}
		return dto.QuizResultResponse{}, err
	}

	answers, correct, err := gradeAnswers(quiz, req.Answers)
	if err != nil {
		return dto.QuizResultResponse{}, err
	}

	total := len(quiz.Questions)
	score := models.QuizScore(correct, total)
	passScore := assignment.CourseVersion.EffectivePassScore()
	now := s.now()

	attempt := models.QuizAttempt{
		UserID:       actor.ID,
		QuizID:       quiz.ID,
		AssignmentID: assignment.ID,
		StartedAt:    now,
		SubmittedAt:  now,
		Score:        score,
		Passed:       score >= passScore,
		IPAddress:    ip,
		Answers:      answers,
	}

	err = s.store.Transaction(ctx, func(tx repository.Store) error {
		if err := tx.Quizzes().CreateAttempt(ctx, &attempt); err != nil {
			return err
		}
		return RecordAudit(ctx, tx.AuditEvents(), AuditEntry{
			ActorID:    actorRef(actor),
			Action:     models.AuditActionQuizSubmitted,
			ObjectType: "quiz",
			ObjectID:   strconv.FormatUint(uint64(quiz.ID), 10),
			Details: map[string]interface{}{
				"assignment_id": assignment.ID,
				"attempt_id":    attempt.ID,
				"score":         score,
				"passed":        attempt.Passed,
			},
			IPAddress: ip,
		})
	})
	if err != nil {
		s.logger.Error().Err(err).Uint("assignment_id", assignment.ID).Msg("failed to persist quiz attempt")
		return dto.QuizResultResponse{}, err
	}

	s.logger.Info().
		Uint("assignment_id", assignment.ID).
		Int("score", score).
		Bool("passed", attempt.Passed).
		Msg("quiz attempt graded")

	return dto.QuizResultResponse{
		AttemptID: attempt.ID,
		Score:     score,
		PassScore: passScore,
		Passed:    attempt.Passed,
		Correct:   correct,
		Total:     total,
	}, nil
}

func gradeAnswers(quiz models.Quiz, submitted []dto.QuizAnswerRequest) ([]models.QuizAnswer, int, error) {
	if len(quiz.Questions) == 0 {
		return nil, 0, ErrQuizNotFound
	}

	picked := make(map[uint]uint, len(submitted))
	for _, answer := range submitted {
		if _, duplicate := picked[answer.QuestionID]; duplicate {
			return nil, 0, ErrInvalidAnswers
		}
		picked[answer.QuestionID] = answer.ChoiceID
	}
	if len(picked) != len(quiz.Questions) {
		return nil, 0, ErrInvalidAnswers
	}

	answers := make([]models.QuizAnswer, 0, len(quiz.Questions))
	correct := 0
	for _, question := range quiz.Questions {
		choiceID, ok := picked[question.ID]
		if !ok {
			return nil, 0, ErrInvalidAnswers
		}

		var chosen *models.QuizChoice
		for i := range question.Choices {
			if question.Choices[i].ID == choiceID {
				chosen = &question.Choices[i]
				break
			}
		}
		if chosen == nil {
			return nil, 0, ErrInvalidAnswers
		}

		if chosen.IsCorrect {
			correct++
		}
		id := chosen.ID
		answers = append(answers, models.QuizAnswer{QuestionID: question.ID, ChoiceID: &id, IsCorrect: chosen.IsCorrect})
	}

	return answers, correct, nil
}
