package service

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-compliance-api/internal/database"
	"github.com/noah-isme/gema-compliance-api/internal/dto"
	"github.com/noah-isme/gema-compliance-api/internal/models"
	"github.com/noah-isme/gema-compliance-api/internal/repository"
)

var testNow = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := database.ConnectSQLite(fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

type fixture struct {
	t     *testing.T
	db    *gorm.DB
	store repository.Store
}

func newFixture(t *testing.T) fixture {
	db := setupTestDB(t)
	return fixture{t: t, db: db, store: repository.NewStore(db)}
}

func (f fixture) validator() *validator.Validate {
	return validator.New()
}

func (f fixture) user(username string, mutate ...func(*models.User)) models.User {
	f.t.Helper()
	user := models.User{Username: username, Email: username + "@example.com", IsActive: true}
	for _, fn := range mutate {
		fn(&user)
	}
	require.NoError(f.t, f.db.Create(&user).Error)
	return user
}

func (f fixture) auditor(username string) models.User {
	return f.user(username, func(u *models.User) { u.CanAuditCerts = true })
}

func (f fixture) course(code string) models.Course {
	f.t.Helper()
	var course models.Course
	if err := f.db.Where("code = ?", code).First(&course).Error; err == nil {
		return course
	}
	course = models.Course{Code: code, Title: code + " Training", IsActive: true}
	require.NoError(f.t, f.db.Create(&course).Error)
	return course
}

func (f fixture) version(code, label string) models.CourseVersion {
	f.t.Helper()
	course := f.course(code)
	published := testNow.AddDate(-1, 0, 0)
	version := models.CourseVersion{CourseID: course.ID, Version: label, IsPublished: true, PublishedAt: &published, PassScore: models.DefaultPassScore}
	require.NoError(f.t, f.db.Omit("Course").Create(&version).Error)
	version.Course = course
	return version
}

func (f fixture) draft(code, label string) models.CourseVersion {
	f.t.Helper()
	course := f.course(code)
	version := models.CourseVersion{CourseID: course.ID, Version: label, PassScore: models.DefaultPassScore}
	require.NoError(f.t, f.db.Omit("Course").Create(&version).Error)
	version.Course = course
	return version
}

// assignment creates an assignment with an empty open cycle, the way every
// production path does.
func (f fixture) assignment(user models.User, version models.CourseVersion) models.Assignment {
	f.t.Helper()
	assignment := f.bareAssignment(user, version)
	cycle := models.AssignmentCycle{AssignmentID: assignment.ID}
	require.NoError(f.t, f.db.Omit("Assignment").Create(&cycle).Error)
	return assignment
}

func (f fixture) bareAssignment(user models.User, version models.CourseVersion) models.Assignment {
	f.t.Helper()
	assignment := models.Assignment{
		AssigneeID:      user.ID,
		CourseVersionID: version.ID,
		AssignedAt:      testNow.AddDate(0, -2, 0),
		Status:          models.AssignmentStatusAssigned,
	}
	require.NoError(f.t, f.db.Omit("Assignee", "CourseVersion", "Cycles").Create(&assignment).Error)
	return assignment
}

func (f fixture) completedCycle(assignment models.Assignment, completedAt, expiresAt time.Time, certificateID string) models.AssignmentCycle {
	f.t.Helper()
	score := 90
	cycle := models.AssignmentCycle{
		AssignmentID:  assignment.ID,
		CompletedAt:   &completedAt,
		ExpiresAt:     &expiresAt,
		Score:         &score,
		Passed:        true,
		CertificateID: certificateID,
	}
	require.NoError(f.t, f.db.Omit("Assignment").Create(&cycle).Error)
	require.NoError(f.t, f.db.Model(&models.Assignment{}).Where("id = ?", assignment.ID).
		Update("status", models.AssignmentStatusCompleted).Error)
	return cycle
}

func (f fixture) watched(user models.User, version models.CourseVersion, percent int) {
	f.t.Helper()
	progress := models.VideoProgress{
		UserID:          user.ID,
		CourseVersionID: version.ID,
		WatchedSeconds:  percent * 6,
		TotalSeconds:    600,
		Percent:         percent,
		LastPingAt:      testNow,
	}
	require.NoError(f.t, f.db.Create(&progress).Error)
}

// quiz defines a quiz of n questions with three choices each; the first choice is
// the correct one.
func (f fixture) quiz(version models.CourseVersion, n int, required bool) models.Quiz {
	f.t.Helper()
	quiz := models.Quiz{CourseVersionID: version.ID, Title: "Knowledge check", IsRequired: required}
	for i := 0; i < n; i++ {
		quiz.Questions = append(quiz.Questions, models.QuizQuestion{
			Prompt:   fmt.Sprintf("Question %d", i+1),
			Position: i + 1,
			Choices: []models.QuizChoice{
				{Text: "Right", IsCorrect: true},
				{Text: "Wrong"},
				{Text: "Also wrong"},
			},
		})
	}
	require.NoError(f.t, f.db.Create(&quiz).Error)
	return quiz
}

// answers answers the first `correct` questions correctly and the rest wrongly.
func answers(quiz models.Quiz, correct int) dto.QuizSubmitRequest {
	req := dto.QuizSubmitRequest{}
	for i, question := range quiz.Questions {
		choice := question.Choices[1].ID
		if i < correct {
			choice = question.Choices[0].ID
		}
		req.Answers = append(req.Answers, dto.QuizAnswerRequest{QuestionID: question.ID, ChoiceID: choice})
	}
	return req
}

func (f fixture) completedCycles(assignmentID uint) []models.AssignmentCycle {
	f.t.Helper()
	var cycles []models.AssignmentCycle
	require.NoError(f.t, f.db.Where("assignment_id = ? AND completed_at IS NOT NULL", assignmentID).
		Order("completed_at ASC").Find(&cycles).Error)
	return cycles
}

func (f fixture) auditActions(action string) []models.AuditEvent {
	f.t.Helper()
	var events []models.AuditEvent
	require.NoError(f.t, f.db.Where("action = ?", action).Order("id ASC").Find(&events).Error)
	return events
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
