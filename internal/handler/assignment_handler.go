package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-compliance-api/internal/dto"
	"github.com/noah-isme/gema-compliance-api/internal/middleware"
	"github.com/noah-isme/gema-compliance-api/internal/service"
	"github.com/noah-isme/gema-compliance-api/internal/utils"
)

// AssignmentHandler exposes the learner assignment lifecycle: listing, starting,
// quiz submission and completion.
type AssignmentHandler struct {
	assignments service.AssignmentService
	completion  service.CompletionService
	quizzes     service.QuizService
	logger      zerolog.Logger
}

// NewAssignmentHandler constructs the handler.
func NewAssignmentHandler(assignments service.AssignmentService, completion service.CompletionService, quizzes service.QuizService, logger zerolog.Logger) *AssignmentHandler {
	return &AssignmentHandler{
		assignments: assignments,
		completion:  completion,
		quizzes:     quizzes,
		logger:      logger.With().Str("component", "assignment_handler").Logger(),
	}
}

// RegisterLearner attaches the caller-scoped endpoints. limiter, when set, guards the
// write-heavy completion and quiz routes.
func (h *AssignmentHandler) RegisterLearner(router fiber.Router, limiter fiber.Handler) {
	if limiter == nil {
		limiter = func(c *fiber.Ctx) error { return c.Next() }
	}
	router.Get("/me/assignments", h.listMine)
	router.Post("/assignments/:id/start", h.start)
	router.Post("/assignments/:id/complete", limiter, h.complete)
	router.Post("/assignments/:id/quiz", limiter, h.submitQuiz)
}

// RegisterAdmin attaches the staff endpoints.
func (h *AssignmentHandler) RegisterAdmin(router fiber.Router) {
	router.Post("/assignments", h.assign)
}

func (h *AssignmentHandler) listMine(c *fiber.Ctx) error {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		return unauthorized(c)
	}

	assignments, err := h.assignments.ListForUser(c.UserContext(), user.ID)
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "assignments retrieved", assignments)
}

func (h *AssignmentHandler) start(c *fiber.Ctx) error {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		return unauthorized(c)
	}
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	assignment, err := h.assignments.Start(c.UserContext(), user, id, c.IP())
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "assignment started", assignment)
}

func (h *AssignmentHandler) complete(c *fiber.Ctx) error {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		return unauthorized(c)
	}
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	cycle, err := h.completion.Complete(c.UserContext(), user, id, c.IP())
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "training completed", cycle)
}

func (h *AssignmentHandler) submitQuiz(c *fiber.Ctx) error {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		return unauthorized(c)
	}
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.QuizSubmitRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	result, err := h.quizzes.Submit(c.UserContext(), user, id, payload, c.IP())
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}

	message := "quiz passed"
	if !result.Passed {
		message = "quiz not passed"
	}
	return utils.SendSuccess(c, message, result)
}

func (h *AssignmentHandler) assign(c *fiber.Ctx) error {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		return unauthorized(c)
	}

	var payload dto.AssignmentCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	assignment, err := h.assignments.Assign(c.UserContext(), user, payload, c.IP())
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "assignment created", assignment)
}
