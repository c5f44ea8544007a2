package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-compliance-api/internal/compliance"
	"github.com/noah-isme/gema-compliance-api/internal/dto"
	"github.com/noah-isme/gema-compliance-api/internal/models"
	"github.com/noah-isme/gema-compliance-api/internal/observability"
	"github.com/noah-isme/gema-compliance-api/internal/repository"
	"github.com/noah-isme/gema-compliance-api/pkg/mailer"
)

// ReminderOptions tunes one reminder pass.
type ReminderOptions struct {
	DryRun        bool
	RemindDays    int
	OnlyCompleted bool
}

// ReminderService e-mails learners whose certificates expire soon.
type ReminderService interface {
	SendExpiryReminders(ctx context.Context, opts ReminderOptions) (dto.ReminderRunResult, error)
}

type reminderService struct {
	store       repository.Store
	mailer      mailer.Mailer
	defaultDays int
	signature   string
	logger      zerolog.Logger
	now         func() time.Time
}

// NewReminderService constructs the reminder service. signature closes every e-mail.
func NewReminderService(store repository.Store, m mailer.Mailer, defaultDays int, signature string, logger zerolog.Logger) ReminderService {
	if defaultDays <= 0 {
		defaultDays = compliance.DueSoonDays
	}
	return &reminderService{
		store:       store,
		mailer:      m,
		defaultDays: defaultDays,
		signature:   signature,
		logger:      logger.With().Str("component", "reminder_service").Logger(),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// SendExpiryReminders mails each cycle expiring within (now, now+days] that has not
// been reminded yet. Without an explicit RemindDays, versions targeted by an active
// rule use the rule's remind_days_before (the largest when several rules share a
// version; 0 turns reminders off) and every other version uses the configured default.
// The reminder stamp is written only after delivery succeeds, so a failed send is
// retried on the next run. Dry runs neither send nor write.
func (s *reminderService) SendExpiryReminders(ctx context.Context, opts ReminderOptions) (dto.ReminderRunResult, error) {
	days := opts.RemindDays
	var windows map[uint]int
	if days <= 0 {
		days = s.defaultDays
		var err error
		windows, err = s.ruleWindows(ctx)
		if err != nil {
			return dto.ReminderRunResult{}, err
		}
		for _, window := range windows {
			if window > days {
				days = window
			}
		}
	}

	now := s.now()
	cycles, err := s.store.Cycles().ListDueForReminder(ctx, repository.ReminderFilter{
		After:         now,
		Until:         now.AddDate(0, 0, days),
		OnlyCompleted: opts.OnlyCompleted,
	})
	if err != nil {
		return dto.ReminderRunResult{}, err
	}

	result := dto.ReminderRunResult{}
	for _, cycle := range cycles {
		if windows != nil && !s.withinWindow(cycle, windows, now) {
			continue
		}
		result.Due++

		if cycle.Assignment == nil || cycle.Assignment.Assignee.ID == 0 || cycle.Assignment.CourseVersion.Course.ID == 0 {
			result.Skipped++
			observability.RemindersSent().WithLabelValues("skipped").Inc()
			continue
		}

		user := cycle.Assignment.Assignee
		if strings.TrimSpace(user.Email) == "" {
			result.Skipped++
			observability.RemindersSent().WithLabelValues("skipped").Inc()
			continue
		}

		msg := s.buildMessage(user, cycle.Assignment.CourseVersion.Course, *cycle.ExpiresAt, now)
		if opts.DryRun {
			s.logger.Info().Str("to", user.Email).Str("subject", msg.Subject).Time("expires_at", *cycle.ExpiresAt).Msg("dry run: would send reminder")
			observability.RemindersSent().WithLabelValues("dry_run").Inc()
			continue
		}

		if err := s.mailer.Send(ctx, msg); err != nil {
			result.Failed++
			observability.RemindersSent().WithLabelValues("failed").Inc()
			s.logger.Warn().Err(err).Uint("cycle_id", cycle.ID).Msg("failed to send expiry reminder")
			continue
		}

		err := s.store.Transaction(ctx, func(tx repository.Store) error {
			stamped, err := tx.Cycles().MarkReminderSent(ctx, cycle.ID, now)
			if err != nil || !stamped {
				return err
			}
			return RecordAudit(ctx, tx.AuditEvents(), AuditEntry{
				Action:     models.AuditActionReminderSent,
				ObjectType: "assignment_cycle",
				ObjectID:   strconv.FormatUint(uint64(cycle.ID), 10),
				Details: map[string]interface{}{
					"user_id":    user.ID,
					"expires_at": cycle.ExpiresAt.Format(time.RFC3339),
				},
			})
		})
		if err != nil {
			result.Failed++
			observability.RemindersSent().WithLabelValues("failed").Inc()
			s.logger.Error().Err(err).Uint("cycle_id", cycle.ID).Msg("failed to stamp reminder")
			continue
		}

		result.Sent++
		observability.RemindersSent().WithLabelValues("sent").Inc()
	}

	ctxLogger := contextLogger(ctx, s.logger)
	ctxLogger.Info().
		Int("due", result.Due).
		Int("sent", result.Sent).
		Int("skipped", result.Skipped).
		Int("failed", result.Failed).
		Bool("dry_run", opts.DryRun).
		Msg("expiry reminders processed")

	return result, nil
}

// ruleWindows maps each version targeted by an active rule to its reminder window.
func (s *reminderService) ruleWindows(ctx context.Context) (map[uint]int, error) {
	rules, err := s.store.Rules().ListActive(ctx)
	if err != nil {
		return nil, err
	}
	windows := make(map[uint]int, len(rules))
	for _, rule := range rules {
		days := rule.RemindDaysBefore
		if days < 0 {
			days = 0
		}
		if current, ok := windows[rule.CourseVersionID]; !ok || days > current {
			windows[rule.CourseVersionID] = days
		}
	}
	return windows, nil
}

func (s *reminderService) withinWindow(cycle models.AssignmentCycle, windows map[uint]int, now time.Time) bool {
	days := s.defaultDays
	if cycle.Assignment != nil {
		if window, ok := windows[cycle.Assignment.CourseVersionID]; ok {
			days = window
		}
	}
	return !cycle.ExpiresAt.After(now.AddDate(0, 0, days))
}

func (s *reminderService) buildMessage(user models.User, course models.Course, expiresAt, now time.Time) mailer.Message {
	courseTitle := fmt.Sprintf("%s - %s", course.Code, course.Title)
	greeting := strings.TrimSpace(user.FirstName)
	if greeting == "" {
		greeting = user.Username
	}

	var body strings.Builder
	fmt.Fprintf(&body, "Hi %s,\n\n", greeting)
	fmt.Fprintf(&body, "Your training '%s' will expire in %d day(s) on %s.\n", courseTitle, compliance.DaysBetween(now, expiresAt), expiresAt.Format("2006-01-02"))
	body.WriteString("Please log in and complete the renewal if required.\n")
	if s.signature != "" {
		fmt.Fprintf(&body, "\n%s\n", s.signature)
	}

	return mailer.Message{
		ToName:  user.DisplayName(),
		ToEmail: user.Email,
		Subject: "Training expiring soon: " + courseTitle,
		Text:    body.String(),
	}
}
