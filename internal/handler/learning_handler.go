package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-compliance-api/internal/dto"
	"github.com/noah-isme/gema-compliance-api/internal/middleware"
	"github.com/noah-isme/gema-compliance-api/internal/service"
	"github.com/noah-isme/gema-compliance-api/internal/utils"
)

// LearningHandler serves course version content interactions: video progress and
// the quiz a learner takes.
type LearningHandler struct {
	progress service.ProgressService
	quizzes  service.QuizService
	logger   zerolog.Logger
}

// NewLearningHandler constructs the handler.
func NewLearningHandler(progress service.ProgressService, quizzes service.QuizService, logger zerolog.Logger) *LearningHandler {
	return &LearningHandler{
		progress: progress,
		quizzes:  quizzes,
		logger:   logger.With().Str("component", "learning_handler").Logger(),
	}
}

// Register attaches the course version endpoints.
func (h *LearningHandler) Register(router fiber.Router) {
	router.Get("/course-versions/:id/progress", h.getProgress)
	router.Post("/course-versions/:id/progress", h.ping)
	router.Get("/course-versions/:id/quiz", h.getQuiz)
}

func (h *LearningHandler) ping(c *fiber.Ctx) error {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		return unauthorized(c)
	}
	versionID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.ProgressPingRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	progress, err := h.progress.RecordPing(c.UserContext(), user, versionID, payload, c.IP())
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "progress recorded", progress)
}

func (h *LearningHandler) getProgress(c *fiber.Ctx) error {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		return unauthorized(c)
	}
	versionID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	progress, err := h.progress.Get(c.UserContext(), user, versionID)
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "progress retrieved", progress)
}

func (h *LearningHandler) getQuiz(c *fiber.Ctx) error {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		return unauthorized(c)
	}
	versionID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	quiz, err := h.quizzes.GetForVersion(c.UserContext(), user, versionID)
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "quiz retrieved", quiz)
}
