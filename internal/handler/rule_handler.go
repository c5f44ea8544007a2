package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-compliance-api/internal/dto"
	"github.com/noah-isme/gema-compliance-api/internal/middleware"
	"github.com/noah-isme/gema-compliance-api/internal/service"
	"github.com/noah-isme/gema-compliance-api/internal/utils"
)

// RuleHandler wires assignment rules, the scheduler trigger and required course
// enrollment for staff.
type RuleHandler struct {
	rules      service.RuleService
	scheduler  service.SchedulerService
	enrollment service.EnrollmentService
	validator  *validator.Validate
	logger     zerolog.Logger
}

// NewRuleHandler constructs the handler.
func NewRuleHandler(rules service.RuleService, scheduler service.SchedulerService, enrollment service.EnrollmentService, validate *validator.Validate, logger zerolog.Logger) *RuleHandler {
	return &RuleHandler{
		rules:      rules,
		scheduler:  scheduler,
		enrollment: enrollment,
		validator:  validate,
		logger:     logger.With().Str("component", "rule_handler").Logger(),
	}
}

// Register attaches rule endpoints to the admin group.
func (h *RuleHandler) Register(router fiber.Router) {
	router.Get("/rules", h.list)
	router.Post("/rules", h.create)
	router.Patch("/rules/:id", h.update)
	router.Post("/scheduler/run", h.runScheduler)
	router.Post("/users/:id/required-courses", h.ensureRequired)
}

func (h *RuleHandler) list(c *fiber.Ctx) error {
	rules, err := h.rules.List(c.UserContext())
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "rules retrieved", rules)
}

func (h *RuleHandler) create(c *fiber.Ctx) error {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		return unauthorized(c)
	}

	var payload dto.RuleCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	rule, err := h.rules.Create(c.UserContext(), user, payload, c.IP())
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "rule created", rule)
}

func (h *RuleHandler) update(c *fiber.Ctx) error {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		return unauthorized(c)
	}
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.RuleUpdateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	rule, err := h.rules.Update(c.UserContext(), user, id, payload, c.IP())
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "rule updated", rule)
}

func (h *RuleHandler) runScheduler(c *fiber.Ctx) error {
	var payload dto.SchedulerRunRequest
	if err := parseOptionalBody(c, &payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	if err := h.validator.Struct(payload); err != nil {
		return handleServiceError(c, h.logger, err)
	}

	result, err := h.scheduler.Run(c.UserContext(), payload)
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "scheduler run finished", result)
}

func (h *RuleHandler) ensureRequired(c *fiber.Ctx) error {
	userID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	result, err := h.enrollment.EnsureRequiredCourses(c.UserContext(), userID)
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "required courses ensured", result)
}
