package middleware

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-compliance-api/internal/models"
	"github.com/noah-isme/gema-compliance-api/internal/repository"
	"github.com/noah-isme/gema-compliance-api/internal/utils"
)

// LoadCurrentUser resolves the authenticated subject into its identity record. Tokens
// for unknown or deactivated users are rejected.
func LoadCurrentUser(users repository.UserRepository) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, ok := c.Locals(LocalUserID).(uint)
		if !ok || userID == 0 {
			return utils.SendError(c, fiber.StatusUnauthorized, "authentication required")
		}

		user, err := users.GetByID(c.UserContext(), userID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return utils.SendError(c, fiber.StatusUnauthorized, "unknown user")
			}
			return utils.SendError(c, fiber.StatusInternalServerError, "failed to load user")
		}
		if !user.IsActive {
			return utils.SendError(c, fiber.StatusForbidden, "account disabled")
		}

		c.Locals(LocalCurrentUser, user)
		return c.Next()
	}
}

// CurrentUser returns the identity bound to the request, if any.
func CurrentUser(c *fiber.Ctx) (models.User, bool) {
	user, ok := c.Locals(LocalCurrentUser).(models.User)
	return user, ok
}
