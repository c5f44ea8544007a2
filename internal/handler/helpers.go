package handler

import (
	"errors"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-compliance-api/internal/middleware"
	"github.com/noah-isme/gema-compliance-api/internal/service"
	"github.com/noah-isme/gema-compliance-api/internal/utils"
)

var notFoundErrors = []error{
	service.ErrAssignmentNotFound,
	service.ErrCourseNotFound,
	service.ErrCourseVersionNotFound,
	service.ErrQuizNotFound,
	service.ErrCertificateNotFound,
	service.ErrRuleNotFound,
	service.ErrUserNotFound,
}

var conflictErrors = []error{
	service.ErrAlreadyCompliant,
	service.ErrCourseExists,
	service.ErrVersionExists,
	service.ErrVersionPublished,
	service.ErrVersionNotPublished,
	service.ErrVersionRetired,
	service.ErrVersionInUse,
}

var badRequestErrors = []error{
	service.ErrInvalidAnswers,
	service.ErrInvalidStatusFilter,
	service.ErrInvalidQuizDefinition,
	service.ErrAssetTypeNotAllowed,
}

func parseUintParam(c *fiber.Ctx, name string) (uint, error) {
	value := c.Params(name)
	parsed, err := strconv.ParseUint(value, 10, 64)
	if err != nil || parsed == 0 {
		return 0, errors.New("invalid identifier")
	}
	return uint(parsed), nil
}

func unauthorized(c *fiber.Ctx) error {
	return utils.SendError(c, fiber.StatusUnauthorized, "authentication required")
}

func requestLogger(base zerolog.Logger, c *fiber.Ctx) *zerolog.Logger {
	logger := base
	if c != nil {
		if correlation := middleware.GetCorrelationID(c); correlation != "" {
			logger = base.With().Str("correlation_id", correlation).Logger()
		}
	}
	return &logger
}

// parseOptionalBody accepts an empty body and leaves target untouched.
func parseOptionalBody(c *fiber.Ctx, target interface{}) error {
	if len(c.Body()) == 0 {
		return nil
	}
	return c.BodyParser(target)
}

// handleServiceError maps service failures onto HTTP responses.
func handleServiceError(c *fiber.Ctx, logger zerolog.Logger, err error) error {
	if precondition, ok := service.IsPrecondition(err); ok {
		return utils.Fail(c, fiber.StatusUnprocessableEntity, precondition.Error(), fiber.Map{
			"remediation": precondition.Remediation,
			"required":    precondition.Required,
			"actual":      precondition.Actual,
		})
	}

	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		return utils.SendError(c, fiber.StatusBadRequest, validationErrors.Error())
	}

	for _, target := range notFoundErrors {
		if errors.Is(err, target) {
			return utils.SendError(c, fiber.StatusNotFound, target.Error())
		}
	}
	for _, target := range conflictErrors {
		if errors.Is(err, target) {
			return utils.SendError(c, fiber.StatusConflict, target.Error())
		}
	}
	for _, target := range badRequestErrors {
		if errors.Is(err, target) {
			return utils.SendError(c, fiber.StatusBadRequest, target.Error())
		}
	}

	switch {
	case errors.Is(err, service.ErrAssetTooLarge):
		return utils.SendError(c, fiber.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, service.ErrStorageUnavailable):
		return utils.SendError(c, fiber.StatusServiceUnavailable, err.Error())
	}

	requestLogger(logger, c).Error().Err(err).Str("path", c.Path()).Msg("internal server error")
	return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
}
