package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-compliance-api/internal/dto"
	"github.com/noah-isme/gema-compliance-api/internal/models"
	"github.com/noah-isme/gema-compliance-api/pkg/mailer"
)

type fakeMailer struct {
	mu   sync.Mutex
	sent []mailer.Message
	err  error
}

func (m *fakeMailer) Send(_ context.Context, msg mailer.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (f fixture) rule(version models.CourseVersion, mutate ...func(*models.AssignmentRule)) models.AssignmentRule {
	f.t.Helper()
	rule := models.AssignmentRule{
		Name:             version.Course.Code + " yearly",
		CourseVersionID:  version.ID,
		Frequency:        models.RuleFrequencyYearly,
		CycleDays:        30,
		RemindDaysBefore: 30,
		AssignToAllUsers: true,
		IsActive:         true,
	}
	for _, fn := range mutate {
		fn(&rule)
	}
	require.NoError(f.t, f.db.Omit("CourseVersion").Create(&rule).Error)
	return rule
}

func (f fixture) assignmentCount(userID, versionID uint) int64 {
	f.t.Helper()
	var count int64
	require.NoError(f.t, f.db.Model(&models.Assignment{}).
		Where("assignee_id = ? AND course_version_id = ?", userID, versionID).
		Count(&count).Error)
	return count
}

func newTestScheduler(f fixture, now time.Time, reminders ReminderService) *schedulerService {
	svc := NewSchedulerService(f.store, reminders, testLogger()).(*schedulerService)
	svc.now = fixedClock(now)
	return svc
}

func newTestReminders(f fixture, now time.Time, m mailer.Mailer) *reminderService {
	svc := NewReminderService(f.store, m, 30, "The Compliance Team", testLogger()).(*reminderService)
	svc.now = fixedClock(now)
	return svc
}

func TestSchedulerRunIsIdempotent(t *testing.T) {
	f := newFixture(t)
	alice := f.user("alice")
	bob := f.user("bob")
	f.user("carol", func(u *models.User) { u.IsActive = false })
	version := f.version("SEC-101", "1.0")
	rule := f.rule(version)

	svc := newTestScheduler(f, testNow, nil)
	ctx := context.Background()

	first, err := svc.Run(ctx, dto.SchedulerRunRequest{})
	require.NoError(t, err)
	require.Len(t, first.Rules, 1)
	require.Equal(t, 2, first.Rules[0].Eligible)
	require.Equal(t, 2, first.CreatedAssignments())

	second, err := svc.Run(ctx, dto.SchedulerRunRequest{})
	require.NoError(t, err)
	require.Equal(t, 0, second.CreatedAssignments())
	require.Equal(t, 2, second.Rules[0].Current)

	require.EqualValues(t, 1, f.assignmentCount(alice.ID, version.ID))
	require.EqualValues(t, 1, f.assignmentCount(bob.ID, version.ID))

	var assignment models.Assignment
	require.NoError(t, f.db.Preload("Cycles").Where("assignee_id = ?", alice.ID).First(&assignment).Error)
	require.NotNil(t, assignment.RuleID)
	require.Equal(t, rule.ID, *assignment.RuleID)
	require.NotNil(t, assignment.DueAt)
	require.True(t, assignment.DueAt.Equal(testNow.Add(30*24*time.Hour)))
	require.NotNil(t, assignment.OpenCycle(), "new assignments start with an open cycle")

	var stored models.AssignmentRule
	require.NoError(t, f.db.First(&stored, rule.ID).Error)
	require.NotNil(t, stored.LastRunAt)

	require.Len(t, f.auditActions(models.AuditActionAssigned), 2)
	require.Len(t, f.auditActions(models.AuditActionRuleRun), 2)
}

func TestSchedulerDryRunWritesNothing(t *testing.T) {
	f := newFixture(t)
	alice := f.user("alice")
	version := f.version("SEC-101", "1.0")
	rule := f.rule(version)

	svc := newTestScheduler(f, testNow, nil)
	response, err := svc.Run(context.Background(), dto.SchedulerRunRequest{DryRun: true})
	require.NoError(t, err)
	require.True(t, response.DryRun)
	require.Equal(t, 1, response.CreatedAssignments(), "dry runs report what would be created")

	require.EqualValues(t, 0, f.assignmentCount(alice.ID, version.ID))
	require.Empty(t, f.auditActions(models.AuditActionRuleRun))

	var stored models.AssignmentRule
	require.NoError(t, f.db.First(&stored, rule.ID).Error)
	require.Nil(t, stored.LastRunAt)
}

func TestSchedulerReassignsAfterExpiry(t *testing.T) {
	f := newFixture(t)
	alice := f.user("alice")
	bob := f.user("bob")
	version := f.version("SEC-101", "1.0")
	f.rule(version)

	expired := f.bareAssignment(alice, version)
	f.completedCycle(expired, testNow.AddDate(-1, 0, 0), testNow.AddDate(0, 0, -1), "")

	current := f.bareAssignment(bob, version)
	f.completedCycle(current, testNow.AddDate(0, -1, 0), testNow.AddDate(0, 10, 0), "")

	response, err := newTestScheduler(f, testNow, nil).Run(context.Background(), dto.SchedulerRunRequest{})
	require.NoError(t, err)
	require.Equal(t, 1, response.Rules[0].Created)
	require.Equal(t, 1, response.Rules[0].Current)

	require.EqualValues(t, 2, f.assignmentCount(alice.ID, version.ID))
	require.EqualValues(t, 1, f.assignmentCount(bob.ID, version.ID))
}

func TestSchedulerDepartmentScopedRules(t *testing.T) {
	f := newFixture(t)
	finance := f.user("fiona", func(u *models.User) { u.Department = "Finance" })
	engineer := f.user("eddie", func(u *models.User) { u.Department = "Engineering" })
	version := f.version("SOX-200", "2024")
	f.rule(version, func(r *models.AssignmentRule) {
		r.AssignToAllUsers = false
		r.Department = "Finance"
	})
	f.rule(f.version("SOX-201", "2024"), func(r *models.AssignmentRule) {
		r.AssignToAllUsers = false
	})

	response, err := newTestScheduler(f, testNow, nil).Run(context.Background(), dto.SchedulerRunRequest{})
	require.NoError(t, err)
	require.Len(t, response.Rules, 2)
	require.Equal(t, 1, response.Rules[0].Created)
	require.Equal(t, 0, response.Rules[1].Eligible, "rules without a department and without all-users assign nobody")

	require.EqualValues(t, 1, f.assignmentCount(finance.ID, version.ID))
	require.EqualValues(t, 0, f.assignmentCount(engineer.ID, version.ID))
}

func TestSchedulerIgnoresInactiveRules(t *testing.T) {
	f := newFixture(t)
	alice := f.user("alice")
	version := f.version("SEC-101", "1.0")
	inactive := f.rule(version)
	require.NoError(t, f.db.Model(&models.AssignmentRule{}).Where("id = ?", inactive.ID).Update("is_active", false).Error)

	response, err := newTestScheduler(f, testNow, nil).Run(context.Background(), dto.SchedulerRunRequest{})
	require.NoError(t, err)
	require.Empty(t, response.Rules)
	require.EqualValues(t, 0, f.assignmentCount(alice.ID, version.ID))
}

func TestExpiryRemindersSendOncePerCycle(t *testing.T) {
	f := newFixture(t)
	alice := f.user("alice", func(u *models.User) { u.FirstName = "Alice" })
	bob := f.user("bob")
	dana := f.user("dana", func(u *models.User) { u.Email = "" })
	version := f.version("SEC-101", "1.0")

	due := f.completedCycle(f.bareAssignment(alice, version), testNow.AddDate(0, -11, 0), testNow.AddDate(0, 0, 10), "")
	f.completedCycle(f.bareAssignment(bob, version), testNow.AddDate(0, -1, 0), testNow.AddDate(0, 0, 45), "")
	f.completedCycle(f.bareAssignment(dana, version), testNow.AddDate(0, -11, 0), testNow.AddDate(0, 0, 5), "")

	m := &fakeMailer{}
	svc := newTestReminders(f, testNow, m)
	ctx := context.Background()

	result, err := svc.SendExpiryReminders(ctx, ReminderOptions{})
	require.NoError(t, err)
	require.Equal(t, dto.ReminderRunResult{Due: 2, Sent: 1, Skipped: 1}, result)

	require.Len(t, m.sent, 1)
	msg := m.sent[0]
	require.Equal(t, "alice@example.com", msg.ToEmail)
	require.Equal(t, "Training expiring soon: SEC-101 - SEC-101 Training", msg.Subject)
	require.True(t, strings.HasPrefix(msg.Text, "Hi Alice,"))
	require.Contains(t, msg.Text, "will expire in 10 day(s) on 2025-03-20")
	require.Contains(t, msg.Text, "The Compliance Team")

	var stored models.AssignmentCycle
	require.NoError(t, f.db.First(&stored, due.ID).Error)
	require.NotNil(t, stored.Reminder30SentAt)
	require.Len(t, f.auditActions(models.AuditActionReminderSent), 1)

	again, err := svc.SendExpiryReminders(ctx, ReminderOptions{})
	require.NoError(t, err)
	require.Equal(t, 0, again.Sent)
	require.Len(t, m.sent, 1)
}

func TestExpiryRemindersDryRunAndFailures(t *testing.T) {
	f := newFixture(t)
	alice := f.user("alice")
	version := f.version("SEC-101", "1.0")
	cycle := f.completedCycle(f.bareAssignment(alice, version), testNow.AddDate(0, -11, 0), testNow.AddDate(0, 0, 3), "")

	ctx := context.Background()
	m := &fakeMailer{}

	dry, err := newTestReminders(f, testNow, m).SendExpiryReminders(ctx, ReminderOptions{DryRun: true})
	require.NoError(t, err)
	require.Equal(t, 1, dry.Due)
	require.Zero(t, dry.Sent)
	require.Empty(t, m.sent)

	failing := &fakeMailer{err: errors.New("smtp down")}
	failed, err := newTestReminders(f, testNow, failing).SendExpiryReminders(ctx, ReminderOptions{})
	require.NoError(t, err)
	require.Equal(t, 1, failed.Failed)

	var stored models.AssignmentCycle
	require.NoError(t, f.db.First(&stored, cycle.ID).Error)
	require.Nil(t, stored.Reminder30SentAt, "failed deliveries are retried on the next run")

	narrow, err := newTestReminders(f, testNow, m).SendExpiryReminders(ctx, ReminderOptions{RemindDays: 2})
	require.NoError(t, err)
	require.Zero(t, narrow.Due)
}

func TestExpiryRemindersFollowRuleWindows(t *testing.T) {
	f := newFixture(t)
	long := f.version("HIPAA-100", "2024")
	short := f.version("SEC-101", "1.0")
	plain := f.version("OPS-200", "1.0")
	muted := f.version("GDPR-300", "1.0")

	f.rule(long, func(r *models.AssignmentRule) { r.RemindDaysBefore = 60 })
	f.rule(short, func(r *models.AssignmentRule) { r.RemindDaysBefore = 7 })
	silent := f.rule(muted)
	require.NoError(t, f.db.Model(&models.AssignmentRule{}).Where("id = ?", silent.ID).Update("remind_days_before", 0).Error)

	expiring := func(name string, version models.CourseVersion, days int) models.AssignmentCycle {
		return f.completedCycle(f.bareAssignment(f.user(name), version), testNow.AddDate(-1, 0, 0), testNow.AddDate(0, 0, days), "")
	}
	expiring("anna", long, 50)
	expiring("ben", short, 10)
	expiring("cleo", short, 5)
	expiring("dave", plain, 20)
	expiring("erin", plain, 40)
	expiring("finn", muted, 3)

	m := &fakeMailer{}
	svc := newTestReminders(f, testNow, m)
	ctx := context.Background()

	result, err := svc.SendExpiryReminders(ctx, ReminderOptions{})
	require.NoError(t, err)
	require.Equal(t, dto.ReminderRunResult{Due: 3, Sent: 3}, result)

	recipients := make([]string, 0, len(m.sent))
	for _, msg := range m.sent {
		recipients = append(recipients, msg.ToEmail)
	}
	require.ElementsMatch(t, []string{"anna@example.com", "cleo@example.com", "dave@example.com"}, recipients)

	override, err := svc.SendExpiryReminders(ctx, ReminderOptions{RemindDays: 45})
	require.NoError(t, err)
	require.Equal(t, dto.ReminderRunResult{Due: 3, Sent: 3}, override, "an explicit window applies to every version")
}

func TestSchedulerRunsRemindersFirst(t *testing.T) {
	f := newFixture(t)
	alice := f.user("alice")
	version := f.version("SEC-101", "1.0")
	f.completedCycle(f.bareAssignment(alice, version), testNow.AddDate(0, -11, 0), testNow.AddDate(0, 0, 7), "")

	m := &fakeMailer{}
	svc := newTestScheduler(f, testNow, newTestReminders(f, testNow, m))

	response, err := svc.Run(context.Background(), dto.SchedulerRunRequest{})
	require.NoError(t, err)
	require.Equal(t, 1, response.Reminders.Sent)

	skipped, err := svc.Run(context.Background(), dto.SchedulerRunRequest{SkipReminders: true})
	require.NoError(t, err)
	require.Zero(t, skipped.Reminders.Due)
}
