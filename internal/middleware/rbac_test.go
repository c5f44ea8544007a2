package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-compliance-api/internal/models"
)

func withUser(user models.User) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Locals(LocalUserID, user.ID)
		c.Locals(LocalCurrentUser, user)
		return c.Next()
	}
}

func TestRequireStaffAllowsStaffAndSuperusers(t *testing.T) {
	for _, user := range []models.User{{ID: 1, IsStaff: true}, {ID: 2, IsSuperuser: true}} {
		app := fiber.New()
		app.Use(withUser(user))
		app.Use(RequireStaff())
		app.Get("/admin", func(c *fiber.Ctx) error {
			return c.SendStatus(fiber.StatusOK)
		})

		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/admin", nil))
		require.NoError(t, err)
		require.Equal(t, fiber.StatusOK, resp.StatusCode)
	}
}

func TestRequireStaffRejectsAuditors(t *testing.T) {
	app := fiber.New()
	app.Use(withUser(models.User{ID: 3, CanAuditCerts: true}))
	app.Use(RequireStaff())
	app.Get("/admin", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/admin", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}

func TestRequireAuditorWithoutIdentity(t *testing.T) {
	app := fiber.New()
	app.Use(RequireAuditor())
	app.Get("/audit", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/audit", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}
