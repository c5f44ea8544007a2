package router

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-compliance-api/internal/config"
	"github.com/noah-isme/gema-compliance-api/internal/handler"
	"github.com/noah-isme/gema-compliance-api/internal/middleware"
	"github.com/noah-isme/gema-compliance-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	AssignmentHandler  *handler.AssignmentHandler
	LearningHandler    *handler.LearningHandler
	DashboardHandler   *handler.DashboardHandler
	CertificateHandler *handler.CertificateHandler
	AuditHandler       *handler.AuditHandler
	CatalogHandler     *handler.CatalogHandler
	RuleHandler        *handler.RuleHandler
	HealthProbes       map[string]handler.HealthProbe
	JWTMiddleware      fiber.Handler
	// IdentityMiddleware loads the authenticated user record after the JWT check.
	IdentityMiddleware fiber.Handler
	// CompletionRateLimit caps completion and quiz submissions per user per minute.
	CompletionRateLimit int
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	app.Get("/metrics", observability.MetricsHandler())

	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg, deps.HealthProbes))

	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}
	identity := deps.IdentityMiddleware
	if identity == nil {
		identity = func(c *fiber.Ctx) error { return c.Next() }
	}

	// Admin routes are registered first so their staff guard is not shadowed by the
	// learner group sharing the /api/v1 prefix.
	admin := api.Group("/admin", jwtMiddleware, identity, middleware.RequireStaff())
	if deps.CatalogHandler != nil {
		deps.CatalogHandler.Register(admin)
	}
	if deps.AssignmentHandler != nil {
		deps.AssignmentHandler.RegisterAdmin(admin)
	}
	if deps.RuleHandler != nil {
		deps.RuleHandler.Register(admin)
	}
	if deps.AuditHandler != nil {
		deps.AuditHandler.RegisterAdmin(admin)
	}

	learner := api.Group("", jwtMiddleware, identity)
	if deps.AssignmentHandler != nil {
		limit := deps.CompletionRateLimit
		if limit <= 0 {
			limit = 30
		}
		deps.AssignmentHandler.RegisterLearner(learner, middleware.RateLimit("completion", limit, time.Minute))
	}
	if deps.LearningHandler != nil {
		deps.LearningHandler.Register(learner)
	}
	if deps.DashboardHandler != nil {
		deps.DashboardHandler.Register(learner)
	}
	if deps.CertificateHandler != nil {
		deps.CertificateHandler.Register(learner)
	}
	if deps.AuditHandler != nil {
		deps.AuditHandler.RegisterReports(learner)
	}
}
