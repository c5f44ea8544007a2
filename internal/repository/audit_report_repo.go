package repository

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-compliance-api/internal/compliance"
	"github.com/noah-isme/gema-compliance-api/internal/models"
)

// DefaultAuditBatchSize bounds how many assignments are loaded per round trip.
const DefaultAuditBatchSize = 200

// AuditReportFilter narrows the audit base set. The status prefilter is coarse; callers
// re-evaluate every row with the compliance clock.
type AuditReportFilter struct {
	Search        string
	CourseCode    string
	Status        compliance.Status
	CompletedFrom *time.Time
	CompletedTo   *time.Time
	// VisibleUserIDs restricts rows to these assignees. Nil means unrestricted.
	VisibleUserIDs []uint
	Now            time.Time
}

// AuditReportRepository streams assignments for reporting.
type AuditReportRepository interface {
	Iterate(ctx context.Context, filter AuditReportFilter, batchSize int, fn func(batch []models.Assignment) error) error
}

type auditReportRepository struct {
	db *gorm.DB
}

// NewAuditReportRepository instantiates a GORM-backed repository.
func NewAuditReportRepository(db *gorm.DB) AuditReportRepository {
	return &auditReportRepository{db: db}
}

const completedCycleExists = "EXISTS (SELECT 1 FROM assignment_cycles ac WHERE ac.assignment_id = assignments.id AND ac.completed_at IS NOT NULL"

func (r *auditReportRepository) query(ctx context.Context, filter AuditReportFilter) *gorm.DB {
	query := r.db.WithContext(ctx).Model(&models.Assignment{}).
		Select("assignments.*").
		Joins("LEFT JOIN users ON users.id = assignments.assignee_id").
		Joins("LEFT JOIN course_versions ON course_versions.id = assignments.course_version_id").
		Joins("LEFT JOIN courses ON courses.id = course_versions.course_id")

	if filter.VisibleUserIDs != nil {
		if len(filter.VisibleUserIDs) == 0 {
			return query.Where("1 = 0")
		}
		query = query.Where("assignments.assignee_id IN ?", filter.VisibleUserIDs)
	}

	if search := strings.TrimSpace(filter.Search); search != "" {
		like := likePattern(search)
		match := " LIKE ?" + likeEscape
		query = query.Where(
			"LOWER(users.username)"+match+" OR LOWER(users.email)"+match+" OR LOWER(users.first_name)"+match+" OR LOWER(users.last_name)"+match+
				" OR LOWER(courses.code)"+match+" OR LOWER(courses.title)"+match+" OR LOWER(course_versions.version)"+match+
				" OR EXISTS (SELECT 1 FROM assignment_cycles sc WHERE sc.assignment_id = assignments.id AND LOWER(sc.certificate_id)"+match+")",
			like, like, like, like, like, like, like, like,
		)
	}

	if code := strings.TrimSpace(filter.CourseCode); code != "" {
		query = query.Where("LOWER(courses.code) LIKE ?"+likeEscape, likePattern(code))
	}

	if filter.CompletedFrom != nil {
		from := compliance.StartOfDay(*filter.CompletedFrom).UTC()
		query = query.Where(completedCycleExists+" AND ac.completed_at >= ?)", from)
	}
	if filter.CompletedTo != nil {
		until := compliance.StartOfDay(*filter.CompletedTo).AddDate(0, 0, 1).UTC()
		query = query.Where(completedCycleExists+" AND ac.completed_at < ?)", until)
	}

	now := filter.Now
	if now.IsZero() {
		now = time.Now()
	}
	expiredBefore := compliance.ExpiredBefore(now).UTC()
	compliantFrom := compliance.CompliantFrom(now).UTC()

	switch filter.Status {
	case compliance.StatusNotStarted:
		query = query.Where("NOT " + completedCycleExists + ")")
	case compliance.StatusExpired:
		query = query.Where(completedCycleExists+" AND ac.expires_at IS NOT NULL AND ac.expires_at < ?)", expiredBefore)
	case compliance.StatusCompliant:
		query = query.Where(completedCycleExists+" AND (ac.expires_at IS NULL OR ac.expires_at >= ?))", compliantFrom)
	case compliance.StatusDueSoon:
		query = query.Where(completedCycleExists+" AND ac.expires_at >= ? AND ac.expires_at < ?)", expiredBefore, compliantFrom)
	}

	return query
}

// Iterate walks the filtered assignments in stable id order, handing each batch with
// assignee, course version, course and cycles preloaded to fn.
func (r *auditReportRepository) Iterate(ctx context.Context, filter AuditReportFilter, batchSize int, fn func(batch []models.Assignment) error) error {
	if batchSize <= 0 {
		batchSize = DefaultAuditBatchSize
	}

	for offset := 0; ; offset += batchSize {
		if err := ctx.Err(); err != nil {
			return err
		}

		var batch []models.Assignment
		if err := r.query(ctx, filter).
			Preload("Assignee").
			Preload("CourseVersion").
			Preload("CourseVersion.Course").
			Preload("Cycles", func(db *gorm.DB) *gorm.DB {
				return db.Order("id ASC")
			}).
			Order("assignments.id ASC").
			Offset(offset).
			Limit(batchSize).
			Find(&batch).Error; err != nil {
			return err
		}

		if len(batch) == 0 {
			return nil
		}
		if err := fn(batch); err != nil {
			return err
		}
		if len(batch) < batchSize {
			return nil
		}
	}
}
