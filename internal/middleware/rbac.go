package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-compliance-api/internal/models"
	"github.com/noah-isme/gema-compliance-api/internal/utils"
)

// RequireStaff lets only staff and superusers through.
func RequireStaff() fiber.Handler {
	return requireUser(func(user models.User) bool {
		return user.IsStaff || user.IsSuperuser
	})
}

// RequireAuditor lets through users allowed to audit every learner's records.
func RequireAuditor() fiber.Handler {
	return requireUser(models.User.CanAuditAll)
}

func requireUser(allowed func(models.User) bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, ok := CurrentUser(c)
		if !ok {
			return utils.SendError(c, fiber.StatusUnauthorized, "authentication required")
		}
		if !allowed(user) {
			return utils.SendError(c, fiber.StatusForbidden, "insufficient permissions")
		}
		return c.Next()
	}
}
