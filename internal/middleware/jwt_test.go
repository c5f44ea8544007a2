package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-compliance-api/internal/models"
	"github.com/noah-isme/gema-compliance-api/internal/repository"
)

type stubUsers struct {
	repository.UserRepository
	users map[uint]models.User
}

func (s stubUsers) GetByID(_ context.Context, id uint) (models.User, error) {
	user, ok := s.users[id]
	if !ok {
		return models.User{}, gorm.ErrRecordNotFound
	}
	return user, nil
}

func protectedApp(users stubUsers) *fiber.App {
	app := fiber.New()
	app.Use(JWTProtected("secret"), LoadCurrentUser(users))
	app.Get("/me", func(c *fiber.Ctx) error {
		user, _ := CurrentUser(c)
		return c.SendString(user.Username)
	})
	return app
}

func TestJWTProtectedLoadsCurrentUser(t *testing.T) {
	user := models.User{ID: 5, Username: "alice", Email: "alice@example.com", IsActive: true, CanAuditCerts: true}
	token, err := IssueToken("secret", user, time.Hour, time.Now())
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := protectedApp(stubUsers{users: map[uint]models.User{5: user}}).Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestJWTProtectedRejectsBadTokens(t *testing.T) {
	user := models.User{ID: 5, Username: "alice", IsActive: true}
	wrongSecret, err := IssueToken("other", user, time.Hour, time.Now())
	require.NoError(t, err)
	expired, err := IssueToken("secret", user, time.Hour, time.Now().Add(-2*time.Hour))
	require.NoError(t, err)

	app := protectedApp(stubUsers{users: map[uint]models.User{5: user}})
	for _, header := range []string{"", "Token abc", "Bearer " + wrongSecret, "Bearer " + expired} {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		resp, err := app.Test(req)
		require.NoError(t, err)
		require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode, header)
	}
}

func TestLoadCurrentUserRejectsInactiveAndUnknown(t *testing.T) {
	inactive := models.User{ID: 6, Username: "bob", IsActive: false}
	app := protectedApp(stubUsers{users: map[uint]models.User{6: inactive}})

	token, err := IssueToken("secret", inactive, time.Hour, time.Now())
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	ghost, err := IssueToken("secret", models.User{ID: 99}, time.Hour, time.Now())
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+ghost)
	resp, err = app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestRoleFor(t *testing.T) {
	require.Equal(t, RoleStaff, RoleFor(models.User{IsSuperuser: true}))
	require.Equal(t, RoleAuditor, RoleFor(models.User{CanAuditCerts: true}))
	require.Equal(t, RoleLearner, RoleFor(models.User{}))
}
