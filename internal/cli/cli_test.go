package cli

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-compliance-api/internal/config"
	"github.com/noah-isme/gema-compliance-api/internal/database"
	"github.com/noah-isme/gema-compliance-api/internal/models"
	"github.com/noah-isme/gema-compliance-api/internal/repository"
	"github.com/noah-isme/gema-compliance-api/pkg/mailer"
)

const cliSecret = "cli-secret"

type captureMailer struct {
	sent []mailer.Message
}

func (m *captureMailer) Send(_ context.Context, msg mailer.Message) error {
	m.sent = append(m.sent, msg)
	return nil
}

func testRuntime(t *testing.T) (*Runtime, *captureMailer) {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := database.ConnectSQLite("file:cli_" + name + "?mode=memory&cache=shared")
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	m := &captureMailer{}
	return &Runtime{
		Config: config.Config{JWTSecret: cliSecret, ReminderDaysBefore: 30, MailFromName: "Compliance"},
		DB:     db,
		Store:  repository.NewStore(db),
		Mailer: m,
		Logger: zerolog.Nop(),
	}, m
}

func execute(t *testing.T, rt *Runtime, args ...string) (string, error) {
	t.Helper()
	opts := &RootOptions{Bootstrap: func(context.Context, *RootOptions) (*Runtime, error) { return rt, nil }}
	cmd := NewRootCommand(opts)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestSeedDemoCreatesAccountsAndPrintsTokens(t *testing.T) {
	rt, _ := testRuntime(t)

	out, err := execute(t, rt, "seed-demo", "--demo-users", "4", "--print-tokens")
	require.NoError(t, err)
	require.Contains(t, out, "course DEMO-101 version 1.0")
	require.Contains(t, out, "assignments created: 6, skipped: 0")

	var tokenLines []string
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, "token ") {
			tokenLines = append(tokenLines, line)
		}
	}
	require.Len(t, tokenLines, 6)
	require.True(t, strings.HasPrefix(tokenLines[0], "token demo-staff (staff): "))
	require.True(t, strings.HasPrefix(tokenLines[1], "token demo-auditor (auditor): "))

	raw := tokenLines[2][strings.LastIndex(tokenLines[2], " ")+1:]
	parsed, err := jwt.Parse(raw, func(*jwt.Token) (interface{}, error) { return []byte(cliSecret), nil })
	require.NoError(t, err)
	claims := parsed.Claims.(jwt.MapClaims)
	require.Equal(t, "learner", claims["role"])

	again, err := execute(t, rt, "seed-demo", "--demo-users", "4")
	require.NoError(t, err)
	require.Contains(t, again, "assignments created: 0, skipped: 6")

	var users int64
	require.NoError(t, rt.DB.Model(&models.User{}).Count(&users).Error)
	require.EqualValues(t, 6, users, "demo accounts are created once")
}

func TestSeedDemoRejectsBadDistribution(t *testing.T) {
	rt, _ := testRuntime(t)

	_, err := execute(t, rt, "seed-demo", "--pct-compliant", "90")
	require.Error(t, err)
}

func TestRunScheduledJobsDryRunThenApply(t *testing.T) {
	rt, m := testRuntime(t)

	learner := models.User{Username: "alice", Email: "alice@example.com", IsActive: true}
	require.NoError(t, rt.DB.Create(&learner).Error)
	course := models.Course{Code: "SEC-101", Title: "Security", IsActive: true}
	require.NoError(t, rt.DB.Create(&course).Error)
	published := time.Now().UTC().AddDate(-1, 0, 0)
	version := models.CourseVersion{CourseID: course.ID, Version: "1.0", IsPublished: true, PublishedAt: &published, PassScore: models.DefaultPassScore}
	require.NoError(t, rt.DB.Omit("Course").Create(&version).Error)
	rule := models.AssignmentRule{Name: "Yearly security", CourseVersionID: version.ID, Frequency: models.RuleFrequencyYearly, CycleDays: 30, RemindDaysBefore: 30, AssignToAllUsers: true, IsActive: true}
	require.NoError(t, rt.DB.Omit("CourseVersion").Create(&rule).Error)

	out, err := execute(t, rt, "run-scheduled-jobs", "--dry-run")
	require.NoError(t, err)
	require.Contains(t, out, "[dry-run] assignments created: 1")

	var count int64
	require.NoError(t, rt.DB.Model(&models.Assignment{}).Count(&count).Error)
	require.Zero(t, count)

	out, err = execute(t, rt, "run-scheduled-jobs", "--json", "--only-completed")
	require.NoError(t, err)
	require.Contains(t, out, `"created": 1`)
	require.NoError(t, rt.DB.Model(&models.Assignment{}).Count(&count).Error)
	require.EqualValues(t, 1, count)
	require.Empty(t, m.sent)
}

func TestRunScheduledJobsPropagatesBootstrapErrors(t *testing.T) {
	opts := &RootOptions{Bootstrap: func(context.Context, *RootOptions) (*Runtime, error) {
		return nil, errors.New("no database")
	}}
	cmd := NewRootCommand(opts)
	cmd.SetArgs([]string{"run-scheduled-jobs"})
	cmd.SetOut(&bytes.Buffer{})
	require.EqualError(t, cmd.ExecuteContext(context.Background()), "no database")
}
