package service

import (
	"context"
	"math"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-compliance-api/internal/dto"
	"github.com/noah-isme/gema-compliance-api/internal/models"
	"github.com/noah-isme/gema-compliance-api/internal/repository"
	"github.com/noah-isme/gema-compliance-api/pkg/certificate"
)

func floatPointer(value float64) *float64 {
	return &value
}

func TestProgressPingsKeepTheMaximum(t *testing.T) {
	f := newFixture(t)
	learner := f.user("alice")
	version := f.version("SEC-101", "1.0")
	f.assignment(learner, version)

	svc := NewProgressService(f.store, f.validator(), 90, 95, testLogger()).(*progressService)
	svc.now = fixedClock(testNow)
	ctx := context.Background()

	first, err := svc.RecordPing(ctx, learner, version.ID, dto.ProgressPingRequest{WatchedSeconds: 300, TotalSeconds: 600}, "")
	require.NoError(t, err)
	require.Equal(t, 50, first.Percent)
	require.False(t, first.CanComplete)

	rewound, err := svc.RecordPing(ctx, learner, version.ID, dto.ProgressPingRequest{WatchedSeconds: 60, TotalSeconds: 600}, "")
	require.NoError(t, err)
	require.Equal(t, 50, rewound.Percent, "seeking backwards never lowers progress")

	done, err := svc.RecordPing(ctx, learner, version.ID, dto.ProgressPingRequest{Percent: floatPointer(120)}, "")
	require.NoError(t, err)
	require.Equal(t, 100, done.Percent)
	require.True(t, done.CanComplete)
	require.NotNil(t, done.CompletedAt)

	require.Len(t, f.auditActions(models.AuditActionProgressStarted), 1)
	started := f.auditActions(models.AuditActionAssignmentStarted)
	require.Len(t, started, 1)
	require.Equal(t, "video_progress", started[0].Details["trigger"])

	stranger := f.user("mallory")
	_, err = svc.RecordPing(ctx, stranger, version.ID, dto.ProgressPingRequest{WatchedSeconds: 1, TotalSeconds: 2}, "")
	require.ErrorIs(t, err, ErrCourseVersionNotFound)
}

func TestPingPercentClampsBeforeRounding(t *testing.T) {
	cases := []struct {
		name string
		req  dto.ProgressPingRequest
		want int
	}{
		{"fraction", dto.ProgressPingRequest{Percent: floatPointer(89.9)}, 89},
		{"above range", dto.ProgressPingRequest{Percent: floatPointer(150)}, 100},
		{"beyond int64", dto.ProgressPingRequest{Percent: floatPointer(1e19)}, 100},
		{"huge", dto.ProgressPingRequest{Percent: floatPointer(1e300)}, 100},
		{"negative", dto.ProgressPingRequest{Percent: floatPointer(-5)}, 0},
		{"not a number", dto.ProgressPingRequest{Percent: floatPointer(math.NaN())}, 0},
		{"seconds", dto.ProgressPingRequest{WatchedSeconds: math.MaxInt32, TotalSeconds: 1}, 100},
		{"empty", dto.ProgressPingRequest{}, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, pingPercent(tc.req))
		})
	}
}

func TestQuizSubmissionValidation(t *testing.T) {
	f := newFixture(t)
	learner := f.user("alice")
	version := f.version("SEC-101", "1.0")
	assignment := f.assignment(learner, version)
	quiz := f.quiz(version, 3, true)

	svc := newTestQuizService(f, testNow)
	ctx := context.Background()

	view, err := svc.GetForVersion(ctx, learner, version.ID)
	require.NoError(t, err)
	require.Len(t, view.Questions, 3)
	require.Equal(t, 80, view.PassScore)

	partial := answers(quiz, 3)
	partial.Answers = partial.Answers[:2]
	_, err = svc.Submit(ctx, learner, assignment.ID, partial, "")
	require.ErrorIs(t, err, ErrInvalidAnswers)

	foreign := answers(quiz, 3)
	foreign.Answers[0].ChoiceID = quiz.Questions[1].Choices[0].ID
	_, err = svc.Submit(ctx, learner, assignment.ID, foreign, "")
	require.ErrorIs(t, err, ErrInvalidAnswers)

	duplicate := answers(quiz, 3)
	duplicate.Answers[2] = duplicate.Answers[0]
	_, err = svc.Submit(ctx, learner, assignment.ID, duplicate, "")
	require.ErrorIs(t, err, ErrInvalidAnswers)

	result, err := svc.Submit(ctx, learner, assignment.ID, answers(quiz, 2), "")
	require.NoError(t, err)
	require.Equal(t, 67, result.Score)
	require.False(t, result.Passed)

	var attempts int64
	require.NoError(t, f.db.Model(&models.QuizAttempt{}).Count(&attempts).Error)
	require.EqualValues(t, 1, attempts, "rejected submissions are not stored")
}

func TestAssignmentServiceAssignAndStart(t *testing.T) {
	f := newFixture(t)
	admin := f.user("admin", func(u *models.User) { u.IsStaff = true })
	learner := f.user("alice")
	version := f.version("SEC-101", "1.0")
	draft := f.draft("SEC-101", "2.0")

	svc := NewAssignmentService(f.store, f.validator(), testLogger()).(*assignmentService)
	svc.now = fixedClock(testNow)
	ctx := context.Background()

	created, err := svc.Assign(ctx, admin, dto.AssignmentCreateRequest{AssigneeID: learner.ID, CourseVersionID: version.ID, DueInDays: 14}, "")
	require.NoError(t, err)
	require.Equal(t, string(models.AssignmentStatusAssigned), created.Status)
	require.Equal(t, "NOT_STARTED", created.ComplianceStatus)
	require.NotNil(t, created.DueAt)
	require.True(t, created.DueAt.Equal(testNow.AddDate(0, 0, 14)))

	again, err := svc.Assign(ctx, admin, dto.AssignmentCreateRequest{AssigneeID: learner.ID, CourseVersionID: version.ID}, "")
	require.NoError(t, err)
	require.Equal(t, created.ID, again.ID, "a current assignment is reused")

	_, err = svc.Assign(ctx, admin, dto.AssignmentCreateRequest{AssigneeID: learner.ID, CourseVersionID: draft.ID}, "")
	require.ErrorIs(t, err, ErrVersionNotPublished)

	_, err = svc.Assign(ctx, admin, dto.AssignmentCreateRequest{AssigneeID: 999, CourseVersionID: version.ID}, "")
	require.ErrorIs(t, err, ErrUserNotFound)

	started, err := svc.Start(ctx, learner, created.ID, "")
	require.NoError(t, err)
	require.Equal(t, string(models.AssignmentStatusInProgress), started.Status)

	_, err = svc.Start(ctx, learner, created.ID, "")
	require.NoError(t, err)
	require.Len(t, f.auditActions(models.AuditActionAssignmentStarted), 1, "starting twice is a no-op")

	_, err = svc.Start(ctx, admin, created.ID, "")
	require.ErrorIs(t, err, ErrAssignmentNotFound)

	listed, err := svc.ListForUser(ctx, learner.ID)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	require.Equal(t, "SEC-101", listed[0].CourseCode)

	svc.now = fixedClock(testNow.AddDate(0, 1, 0))
	listed, err = svc.ListForUser(ctx, learner.ID)
	require.NoError(t, err)
	require.True(t, listed[0].Overdue)
	require.Equal(t, string(models.AssignmentStatusOverdue), listed[0].Status)
}

func TestDashboardCachesAndInvalidates(t *testing.T) {
	mini, err := miniredis.Run()
	require.NoError(t, err)
	defer mini.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: mini.Addr()})
	defer redisClient.Close()

	f := newFixture(t)
	learner := f.user("alice")
	security := f.version("SEC-101", "1.0")
	privacy := f.version("GDPR-100", "1.0")
	ethics := f.version("ETH-100", "1.0")

	f.completedCycle(f.bareAssignment(learner, security), testNow.AddDate(0, -1, 0), testNow.AddDate(0, 10, 0), "")
	f.completedCycle(f.bareAssignment(learner, privacy), testNow.AddDate(0, -11, 0), testNow.AddDate(0, 0, 12), "")
	open := f.assignment(learner, ethics)
	past := testNow.AddDate(0, 0, -3)
	require.NoError(t, f.db.Model(&models.Assignment{}).Where("id = ?", open.ID).Update("due_at", past).Error)

	svc := NewDashboardService(repository.NewAssignmentRepository(f.db), redisClient, time.Minute, testLogger()).(*dashboardService)
	svc.now = fixedClock(testNow)
	ctx := context.Background()

	first, err := svc.GetDashboard(ctx, learner.ID)
	require.NoError(t, err)
	require.Equal(t, 3, first.Total)
	require.Equal(t, 1, first.Compliant)
	require.Equal(t, 1, first.DueSoon)
	require.Equal(t, 1, first.NotStarted)
	require.Equal(t, 1, first.Overdue)
	require.True(t, mini.Exists(dashboardCacheKey(learner.ID)))

	f.completedCycle(f.bareAssignment(learner, f.version("AML-100", "1.0")), testNow.AddDate(-2, 0, 0), testNow.AddDate(-1, 0, 0), "")

	cached, err := svc.GetDashboard(ctx, learner.ID)
	require.NoError(t, err)
	require.Equal(t, 3, cached.Total, "served from cache")

	svc.Invalidate(ctx, learner.ID)
	require.False(t, mini.Exists(dashboardCacheKey(learner.ID)))

	fresh, err := svc.GetDashboard(ctx, learner.ID)
	require.NoError(t, err)
	require.Equal(t, 4, fresh.Total)
	require.Equal(t, 1, fresh.Expired)
}

func TestDashboardWithoutCache(t *testing.T) {
	f := newFixture(t)
	learner := f.user("alice")
	f.assignment(learner, f.version("SEC-101", "1.0"))

	svc := NewDashboardService(repository.NewAssignmentRepository(f.db), nil, time.Minute, testLogger())
	response, err := svc.GetDashboard(context.Background(), learner.ID)
	require.NoError(t, err)
	require.Equal(t, 1, response.NotStarted)
	svc.Invalidate(context.Background(), learner.ID)
}

func TestEnrollmentAssignsRequiredCoursesToCompanyUsers(t *testing.T) {
	f := newFixture(t)
	employee := f.user("alice", func(u *models.User) { u.Email = "alice@acme.test" })
	contractor := f.user("carl", func(u *models.User) { u.Email = "carl@vendor.test" })

	required := f.version("SEC-101", "1.0")
	require.NoError(t, f.db.Model(&models.Course{}).Where("id = ?", required.CourseID).Update("required_for_company", true).Error)
	f.version("OPT-100", "1.0")

	svc := NewEnrollmentService(f.store, "acme.test", testLogger())
	ctx := context.Background()

	response, err := svc.EnsureRequiredCourses(ctx, employee.ID)
	require.NoError(t, err)
	require.True(t, response.Eligible)
	require.Len(t, response.Created, 1)
	require.Equal(t, []string{"SEC-101"}, response.Courses)

	again, err := svc.EnsureRequiredCourses(ctx, employee.ID)
	require.NoError(t, err)
	require.Empty(t, again.Created)

	outsider, err := svc.EnsureRequiredCourses(ctx, contractor.ID)
	require.NoError(t, err)
	require.False(t, outsider.Eligible)
	require.EqualValues(t, 0, f.assignmentCount(contractor.ID, required.ID))

	_, err = svc.EnsureRequiredCourses(ctx, 9999)
	require.ErrorIs(t, err, ErrUserNotFound)
}

func TestCertificateDownloadAccess(t *testing.T) {
	f := newFixture(t)
	owner := f.user("alice", func(u *models.User) { u.FirstName, u.LastName = "Alice", "Anders" })
	stranger := f.user("mallory")
	auditor := f.auditor("auditor")
	version := f.version("SEC-101", "1.0")

	completed := f.completedCycle(f.bareAssignment(owner, version), testNow.AddDate(0, -1, 0), testNow.AddDate(0, 10, 0), "C0FFEE1234")
	open := f.assignment(owner, f.version("GDPR-100", "1.0"))
	var openCycle models.AssignmentCycle
	require.NoError(t, f.db.Where("assignment_id = ?", open.ID).First(&openCycle).Error)

	renderer, err := certificate.NewHTMLRenderer("Compliance Office")
	require.NoError(t, err)
	svc := NewCertificateService(f.store, renderer, testLogger())
	ctx := context.Background()

	file, err := svc.Download(ctx, owner, "c0ffee1234", "")
	require.NoError(t, err)
	require.Equal(t, "certificate_C0FFEE1234.html", file.Filename)
	require.Equal(t, certificate.ContentType, file.ContentType)
	require.Contains(t, string(file.Body), "Alice Anders")

	_, err = svc.Download(ctx, auditor, completed.CertificateID, "")
	require.NoError(t, err)

	_, err = svc.Download(ctx, stranger, completed.CertificateID, "")
	require.ErrorIs(t, err, ErrCertificateNotFound)

	_, err = svc.Download(ctx, owner, openCycle.CertificateID, "")
	require.ErrorIs(t, err, ErrCertificateNotFound, "open cycles have no certificate yet")

	_, err = svc.Download(ctx, owner, "NOPE", "")
	require.ErrorIs(t, err, ErrCertificateNotFound)

	require.Len(t, f.auditActions(models.AuditActionCertificateDownloaded), 2)
}

func TestRuleServiceDefaultsAndUpdates(t *testing.T) {
	f := newFixture(t)
	admin := f.user("admin", func(u *models.User) { u.IsStaff = true })
	version := f.version("SEC-101", "1.0")
	svc := NewRuleService(f.store, f.validator(), testLogger())
	ctx := context.Background()

	rule, err := svc.Create(ctx, admin, dto.RuleCreateRequest{CourseVersionID: version.ID}, "")
	require.NoError(t, err)
	require.Equal(t, "SEC-101 1.0", rule.Name)
	require.Equal(t, "YEARLY", rule.Frequency)
	require.Equal(t, 365, rule.CycleDays)
	require.True(t, rule.AssignToAllUsers)
	require.True(t, rule.IsActive)

	inactive := false
	department := "Finance"
	updated, err := svc.Update(ctx, admin, rule.ID, dto.RuleUpdateRequest{IsActive: &inactive, Department: &department}, "")
	require.NoError(t, err)
	require.False(t, updated.IsActive)
	require.Equal(t, "Finance", updated.Department)

	_, err = svc.Update(ctx, admin, 9999, dto.RuleUpdateRequest{}, "")
	require.ErrorIs(t, err, ErrRuleNotFound)

	_, err = svc.Create(ctx, admin, dto.RuleCreateRequest{CourseVersionID: version.ID, Frequency: "HOURLY"}, "")
	require.Error(t, err)

	rules, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	require.Len(t, f.auditActions(models.AuditActionRuleCreated), 1)
	require.Len(t, f.auditActions(models.AuditActionRuleUpdated), 1)
}

func TestSeedDemoDistribution(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 10; i++ {
		f.user("learner" + string(rune('a'+i)))
	}

	svc := NewSeedService(f.store, testLogger()).(*seedService)
	svc.now = fixedClock(testNow)
	ctx := context.Background()

	_, err := svc.SeedDemo(ctx, SeedOptions{Code: "X", Version: "1", PctCompliant: 50})
	require.ErrorIs(t, err, ErrSeedDistribution)

	result, err := svc.SeedDemo(ctx, DefaultSeedOptions())
	require.NoError(t, err)
	require.Equal(t, 10, result.Assignments)
	total := 0
	for _, n := range result.ByStatus {
		total += n
	}
	require.Equal(t, 10, total)

	audit := NewAuditReportService(
		repository.NewAuditReportRepository(f.db),
		repository.NewUserRepository(f.db),
		repository.NewAuditEventRepository(f.db),
		f.validator(), 500, testLogger(),
	).(*auditReportService)
	audit.now = fixedClock(testNow)
	reports, err := audit.Query(ctx, models.User{IsSuperuser: true}, dto.AuditQueryRequest{Course: "DEMO-101"})
	require.NoError(t, err)
	require.Len(t, reports.Rows, 10)
	seen := map[string]int{}
	for _, row := range reports.Rows {
		seen[row.Status]++
	}
	for status, n := range result.ByStatus {
		require.Equal(t, n, seen[string(status)], status)
	}

	rerun, err := svc.SeedDemo(ctx, DefaultSeedOptions())
	require.NoError(t, err)
	require.Zero(t, rerun.Assignments)
	require.Equal(t, 10, rerun.Skipped)
}
