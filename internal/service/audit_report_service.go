package service

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-compliance-api/internal/compliance"
	"github.com/noah-isme/gema-compliance-api/internal/dto"
	"github.com/noah-isme/gema-compliance-api/internal/models"
	"github.com/noah-isme/gema-compliance-api/internal/observability"
	"github.com/noah-isme/gema-compliance-api/internal/repository"
)

const (
	defaultAuditPageSize = 50
	auditDateLayout      = "2006-01-02"
)

// AuditCSVHeader is the fixed column order of the compliance export.
var AuditCSVHeader = []string{"User", "Course Code", "Course Title", "Version", "Completed", "Expires", "Status", "Days Remaining", "Certificate ID"}

var errRowCapReached = errors.New("audit row cap reached")

// AuditReportService answers compliance audit queries.
type AuditReportService interface {
	Query(ctx context.Context, actor models.User, req dto.AuditQueryRequest) (dto.AuditReportResponse, error)
	Export(ctx context.Context, actor models.User, req dto.AuditQueryRequest, w io.Writer, ip string) (dto.AuditExportSummary, error)
}

type auditReportService struct {
	repo      repository.AuditReportRepository
	users     repository.UserRepository
	audit     repository.AuditEventRepository
	validator *validator.Validate
	rowCap    int
	logger    zerolog.Logger
	now       func() time.Time
}

// NewAuditReportService constructs the audit report service. rowCap bounds the
// interactive view; exports are uncapped.
func NewAuditReportService(repo repository.AuditReportRepository, users repository.UserRepository, audit repository.AuditEventRepository, validate *validator.Validate, rowCap int, logger zerolog.Logger) AuditReportService {
	if rowCap <= 0 {
		rowCap = 500
	}
	return &auditReportService{
		repo:      repo,
		users:     users,
		audit:     audit,
		validator: validate,
		rowCap:    rowCap,
		logger:    logger.With().Str("component", "audit_report_service").Logger(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

type auditCriteria struct {
	filter repository.AuditReportFilter
	status compliance.Status
	from   *time.Time
	to     *time.Time
	now    time.Time
}

func (s *auditReportService) Query(ctx context.Context, actor models.User, req dto.AuditQueryRequest) (dto.AuditReportResponse, error) {
	criteria, err := s.criteria(ctx, actor, req)
	if err != nil {
		return dto.AuditReportResponse{}, err
	}

	rows := make([]dto.AuditRow, 0)
	skipped := make([]dto.SkippedRow, 0)
	truncated := false

	err = s.repo.Iterate(ctx, criteria.filter, repository.DefaultAuditBatchSize, func(batch []models.Assignment) error {
		for _, assignment := range batch {
			row, keep, skip := buildAuditRow(assignment, criteria)
			if skip != nil {
				skipped = append(skipped, *skip)
				continue
			}
			if !keep {
				continue
			}
			if len(rows) == s.rowCap {
				truncated = true
				return errRowCapReached
			}
			rows = append(rows, row)
		}
		return nil
	})
	if err != nil && !errors.Is(err, errRowCapReached) {
		return dto.AuditReportResponse{}, err
	}

	observability.AuditQueries().WithLabelValues("view").Inc()
	s.countSkipped(skipped)

	page := req.Page
	if page <= 0 {
		page = 1
	}
	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = defaultAuditPageSize
	}
	if pageSize > s.rowCap {
		pageSize = s.rowCap
	}

	start := (page - 1) * pageSize
	if start > len(rows) {
		start = len(rows)
	}
	end := start + pageSize
	if end > len(rows) {
		end = len(rows)
	}

	return dto.AuditReportResponse{
		Rows:      rows[start:end],
		Skipped:   skipped,
		Total:     len(rows),
		Page:      page,
		PageSize:  pageSize,
		Truncated: truncated,
	}, nil
}

// Export streams every matching row as CSV. Rows with missing references are left out
// and reported in the summary.
func (s *auditReportService) Export(ctx context.Context, actor models.User, req dto.AuditQueryRequest, w io.Writer, ip string) (dto.AuditExportSummary, error) {
	criteria, err := s.criteria(ctx, actor, req)
	if err != nil {
		return dto.AuditExportSummary{}, err
	}

	writer := csv.NewWriter(w)
	if err := writer.Write(AuditCSVHeader); err != nil {
		return dto.AuditExportSummary{}, err
	}

	summary := dto.AuditExportSummary{Skipped: []dto.SkippedRow{}}
	err = s.repo.Iterate(ctx, criteria.filter, repository.DefaultAuditBatchSize, func(batch []models.Assignment) error {
		for _, assignment := range batch {
			row, keep, skip := buildAuditRow(assignment, criteria)
			if skip != nil {
				summary.Skipped = append(summary.Skipped, *skip)
				continue
			}
			if !keep {
				continue
			}
			if err := writer.Write(csvRecord(row)); err != nil {
				return err
			}
			summary.Rows++
		}
		writer.Flush()
		return writer.Error()
	})
	if err != nil {
		return dto.AuditExportSummary{}, err
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return dto.AuditExportSummary{}, err
	}

	observability.AuditQueries().WithLabelValues("csv").Inc()
	s.countSkipped(summary.Skipped)

	if err := RecordAudit(ctx, s.audit, AuditEntry{
		ActorID:    actorRef(actor),
		Action:     models.AuditActionAuditExported,
		ObjectType: "audit_report",
		Details: map[string]interface{}{
			"q":       req.Query,
			"course":  req.Course,
			"status":  req.Status,
			"start":   req.Start,
			"end":     req.End,
			"rows":    summary.Rows,
			"skipped": len(summary.Skipped),
		},
		IPAddress: ip,
	}); err != nil {
		s.logger.Warn().Err(err).Msg("failed to record audit export")
	}

	return summary, nil
}

func (s *auditReportService) criteria(ctx context.Context, actor models.User, req dto.AuditQueryRequest) (auditCriteria, error) {
	if err := s.validator.Struct(req); err != nil {
		return auditCriteria{}, err
	}

	criteria := auditCriteria{now: s.now()}
	if strings.TrimSpace(req.Status) != "" {
		status, ok := compliance.ParseStatus(req.Status)
		if !ok {
			return auditCriteria{}, ErrInvalidStatusFilter
		}
		criteria.status = status
	}

	if req.Start != "" {
		from, err := time.ParseInLocation(auditDateLayout, req.Start, time.UTC)
		if err != nil {
			return auditCriteria{}, err
		}
		criteria.from = &from
	}
	if req.End != "" {
		to, err := time.ParseInLocation(auditDateLayout, req.End, time.UTC)
		if err != nil {
			return auditCriteria{}, err
		}
		criteria.to = &to
	}

	visible, err := s.visibleUserIDs(ctx, actor)
	if err != nil {
		return auditCriteria{}, err
	}

	criteria.filter = repository.AuditReportFilter{
		Search:         req.Query,
		CourseCode:     req.Course,
		Status:         criteria.status,
		CompletedFrom:  criteria.from,
		CompletedTo:    criteria.to,
		VisibleUserIDs: visible,
		Now:            criteria.now,
	}
	return criteria, nil
}

// visibleUserIDs returns nil for auditors. Everyone else sees their own rows and those
// of their direct reports.
func (s *auditReportService) visibleUserIDs(ctx context.Context, actor models.User) ([]uint, error) {
	if actor.CanAuditAll() {
		return nil, nil
	}
	reports, err := s.users.DirectReportIDs(ctx, actor.ID)
	if err != nil {
		return nil, err
	}
	return append([]uint{actor.ID}, reports...), nil
}

func (s *auditReportService) countSkipped(skipped []dto.SkippedRow) {
	for _, row := range skipped {
		observability.AuditSkippedRows().WithLabelValues(row.Reason).Inc()
	}
	if len(skipped) > 0 {
		s.logger.Warn().Int("skipped", len(skipped)).Msg("audit rows skipped due to missing references")
	}
}

// buildAuditRow evaluates one assignment against the exact filters. It reports a
// skipped row when a reference is missing and keep=false when the row is filtered out.
func buildAuditRow(assignment models.Assignment, criteria auditCriteria) (dto.AuditRow, bool, *dto.SkippedRow) {
	switch {
	case assignment.Assignee.ID == 0:
		return dto.AuditRow{}, false, &dto.SkippedRow{AssignmentID: assignment.ID, Reason: "missing_user"}
	case assignment.CourseVersion.ID == 0:
		return dto.AuditRow{}, false, &dto.SkippedRow{AssignmentID: assignment.ID, Reason: "missing_course_version"}
	case assignment.CourseVersion.Course.ID == 0:
		return dto.AuditRow{}, false, &dto.SkippedRow{AssignmentID: assignment.ID, Reason: "missing_course"}
	}

	cycle := assignment.LatestCompletedCycle()

	if criteria.from != nil || criteria.to != nil {
		if cycle == nil {
			return dto.AuditRow{}, false, nil
		}
		completed := compliance.StartOfDay(cycle.CompletedAt.UTC())
		if criteria.from != nil && completed.Before(*criteria.from) {
			return dto.AuditRow{}, false, nil
		}
		if criteria.to != nil && completed.After(*criteria.to) {
			return dto.AuditRow{}, false, nil
		}
	}

	row := dto.AuditRow{
		AssignmentID: assignment.ID,
		User:         assignment.Assignee.DisplayName(),
		UserEmail:    assignment.Assignee.Email,
		CourseCode:   assignment.CourseVersion.Course.Code,
		CourseTitle:  assignment.CourseVersion.Course.Title,
		Version:      assignment.CourseVersion.Version,
	}

	result := compliance.Evaluate(criteria.now, nil, nil)
	if cycle != nil {
		id := cycle.ID
		row.CycleID = &id
		row.CompletedAt = cycle.CompletedAt
		row.ExpiresAt = cycle.ExpiresAt
		row.CertificateID = cycle.CertificateID
		result = compliance.Evaluate(criteria.now, cycle.CompletedAt, cycle.ExpiresAt)
	}
	row.Status = string(result.Status)
	row.StatusLabel = result.Status.Label()
	row.DaysRemaining = result.DaysRemaining

	if criteria.status != "" && result.Status != criteria.status {
		return dto.AuditRow{}, false, nil
	}
	return row, true, nil
}

func csvRecord(row dto.AuditRow) []string {
	days := ""
	if row.DaysRemaining != nil {
		days = strconv.Itoa(*row.DaysRemaining)
	}
	return []string{
		row.User,
		row.CourseCode,
		row.CourseTitle,
		row.Version,
		formatDate(row.CompletedAt),
		formatDate(row.ExpiresAt),
		row.StatusLabel,
		days,
		row.CertificateID,
	}
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(auditDateLayout)
}
