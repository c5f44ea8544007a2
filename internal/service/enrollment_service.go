package service

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-compliance-api/internal/dto"
	"github.com/noah-isme/gema-compliance-api/internal/models"
	"github.com/noah-isme/gema-compliance-api/internal/repository"
)

// EnrollmentService assigns company-required courses to company users.
type EnrollmentService interface {
	EnsureRequiredCourses(ctx context.Context, userID uint) (dto.RequiredCoursesResponse, error)
}

type enrollmentService struct {
	store         repository.Store
	companyDomain string
	logger        zerolog.Logger
	now           func() time.Time
}

// NewEnrollmentService constructs the enrolment service. An empty companyDomain
// disables required-course enrolment.
func NewEnrollmentService(store repository.Store, companyDomain string, logger zerolog.Logger) EnrollmentService {
	return &enrollmentService{
		store:         store,
		companyDomain: strings.ToLower(strings.TrimSpace(companyDomain)),
		logger:        logger.With().Str("component", "enrollment_service").Logger(),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// EnsureRequiredCourses gives the user an assignment for the latest published version
// of every active required course. Users outside the company domain are left alone,
// and existing assignments are never duplicated.
func (s *enrollmentService) EnsureRequiredCourses(ctx context.Context, userID uint) (dto.RequiredCoursesResponse, error) {
	user, err := s.store.Users().GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.RequiredCoursesResponse{}, ErrUserNotFound
		}
		return dto.RequiredCoursesResponse{}, err
	}

	response := dto.RequiredCoursesResponse{UserID: user.ID, Created: []uint{}, Courses: []string{}}
	if s.companyDomain == "" || user.EmailDomain() != s.companyDomain {
		return response, nil
	}
	response.Eligible = true

	courses, err := s.store.Courses().ListRequiredActive(ctx)
	if err != nil {
		return dto.RequiredCoursesResponse{}, err
	}

	now := s.now()
	for _, course := range courses {
		version, err := s.store.CourseVersions().LatestPublished(ctx, course.ID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				continue
			}
			return dto.RequiredCoursesResponse{}, err
		}
		response.Courses = append(response.Courses, course.Code)

		var createdID uint
		err = s.store.Transaction(ctx, func(tx repository.Store) error {
			exists, err := tx.Assignments().ExistsForUserAndVersion(ctx, user.ID, version.ID)
			if err != nil || exists {
				return err
			}

			assignment := models.Assignment{
				AssigneeID:      user.ID,
				CourseVersionID: version.ID,
				AssignedAt:      now,
				Status:          models.AssignmentStatusAssigned,
			}
			if err := tx.Assignments().Create(ctx, &assignment); err != nil {
				return err
			}
			if err := tx.Cycles().Create(ctx, &models.AssignmentCycle{AssignmentID: assignment.ID}); err != nil {
				return err
			}
			createdID = assignment.ID

			return RecordAudit(ctx, tx.AuditEvents(), AuditEntry{
				Action:     models.AuditActionAssigned,
				ObjectType: "assignment",
				ObjectID:   strconv.FormatUint(uint64(assignment.ID), 10),
				Details: map[string]interface{}{
					"assignee_id":       user.ID,
					"course_version_id": version.ID,
					"source":            "company_required",
				},
			})
		})
		if err != nil {
			return dto.RequiredCoursesResponse{}, err
		}
		if createdID != 0 {
			response.Created = append(response.Created, createdID)
		}
	}

	if len(response.Created) > 0 {
		s.logger.Info().Uint("user_id", user.ID).Int("created", len(response.Created)).Msg("required courses assigned")
	}

	return response, nil
}
