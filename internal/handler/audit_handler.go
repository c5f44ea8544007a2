package handler

import (
	"bytes"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-compliance-api/internal/dto"
	"github.com/noah-isme/gema-compliance-api/internal/middleware"
	"github.com/noah-isme/gema-compliance-api/internal/models"
	"github.com/noah-isme/gema-compliance-api/internal/service"
	"github.com/noah-isme/gema-compliance-api/internal/utils"
)

// AuditHandler exposes the compliance report and the audit trail.
type AuditHandler struct {
	reports service.AuditReportService
	trail   service.AuditTrailService
	logger  zerolog.Logger
}

// NewAuditHandler constructs the handler.
func NewAuditHandler(reports service.AuditReportService, trail service.AuditTrailService, logger zerolog.Logger) *AuditHandler {
	return &AuditHandler{
		reports: reports,
		trail:   trail,
		logger:  logger.With().Str("component", "audit_handler").Logger(),
	}
}

// RegisterReports attaches the report endpoint and the auditor view of the trail. Row
// visibility of the report is decided per caller by the report service.
func (h *AuditHandler) RegisterReports(router fiber.Router) {
	router.Get("/audit/cycles", middleware.WithAuth(h.cycles, middleware.AuthOptions{RequireUser: true}))
	router.Get("/audit/events", middleware.RequireAuditor(), h.events)
}

// RegisterAdmin attaches the audit trail listing.
func (h *AuditHandler) RegisterAdmin(router fiber.Router) {
	router.Get("/audit-events", h.events)
}

func (h *AuditHandler) cycles(c *fiber.Ctx) error {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		return unauthorized(c)
	}

	var query dto.AuditQueryRequest
	if err := c.QueryParser(&query); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid query parameters")
	}

	if query.Export == "csv" {
		return h.export(c, user, query)
	}

	report, err := h.reports.Query(c.UserContext(), user, query)
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}

	return utils.OK(c, report, "audit report generated", utils.NewPageMeta(report.Page, report.PageSize, int64(report.Total)))
}

func (h *AuditHandler) export(c *fiber.Ctx, user models.User, query dto.AuditQueryRequest) error {
	var buf bytes.Buffer
	summary, err := h.reports.Export(c.UserContext(), user, query, &buf, c.IP())
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}

	requestLogger(h.logger, c).Info().
		Uint("actor_id", user.ID).
		Int("rows", summary.Rows).
		Int("skipped", len(summary.Skipped)).
		Msg("audit report exported")

	c.Set(fiber.HeaderContentType, "text/csv; charset=utf-8")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", "compliance-audit.csv"))
	c.Set("X-Export-Rows", fmt.Sprintf("%d", summary.Rows))
	c.Set("X-Export-Skipped", fmt.Sprintf("%d", len(summary.Skipped)))
	return c.Status(fiber.StatusOK).Send(buf.Bytes())
}

func (h *AuditHandler) events(c *fiber.Ctx) error {
	var query dto.AuditEventListRequest
	if err := c.QueryParser(&query); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid query parameters")
	}

	events, meta, err := h.trail.List(c.UserContext(), query)
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}

	return utils.OK(c, events, "audit events retrieved", meta)
}
