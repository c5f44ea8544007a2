package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/noah-isme/gema-compliance-api/internal/dto"
	"github.com/noah-isme/gema-compliance-api/internal/middleware"
	"github.com/noah-isme/gema-compliance-api/internal/service"
)

// RunScheduledJobsOptions holds flags for the run-scheduled-jobs command.
type RunScheduledJobsOptions struct {
	*RootOptions
	DryRun        bool
	RemindDays    int
	OnlyCompleted bool
	SkipReminders bool
	JSON          bool
}

// NewRunScheduledJobsCommand creates the command that sends expiry reminders and
// applies every active assignment rule once.
func NewRunScheduledJobsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunScheduledJobsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run-scheduled-jobs",
		Short: "Send expiry reminders and apply assignment rules",
		Long: `Send expiry reminders for cycles close to expiry, then apply every active
assignment rule. Safe to run repeatedly: reminders are sent once per cycle and
users holding a current assignment are left alone.

Example:
  compliance-jobs run-scheduled-jobs --dry-run
  compliance-jobs run-scheduled-jobs --remind-days 14`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runScheduledJobs(cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "report what would happen without writing or sending")
	cmd.Flags().IntVar(&opts.RemindDays, "remind-days", 0, "reminder window in days (0 uses the configured default)")
	cmd.Flags().BoolVar(&opts.OnlyCompleted, "only-completed", false, "only remind about cycles that have been completed")
	cmd.Flags().BoolVar(&opts.SkipReminders, "skip-reminders", false, "apply rules without sending reminders")
	cmd.Flags().BoolVar(&opts.JSON, "json", false, "print the run summary as JSON")

	return cmd
}

func runScheduledJobs(cmd *cobra.Command, opts *RunScheduledJobsOptions) error {
	ctx, _ := middleware.NewJobCorrelation(cmd.Context(), "cli")
	rt, err := opts.runtime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	reminders := service.NewReminderService(rt.Store, rt.Mailer, rt.Config.ReminderDaysBefore, rt.Config.MailFromName, rt.Logger)
	scheduler := service.NewSchedulerService(rt.Store, reminders, rt.Logger)

	result, err := scheduler.Run(ctx, dto.SchedulerRunRequest{
		DryRun:        opts.DryRun,
		RemindDays:    opts.RemindDays,
		OnlyCompleted: opts.OnlyCompleted,
		SkipReminders: opts.SkipReminders,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if opts.JSON {
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(result)
	}

	prefix := ""
	if result.DryRun {
		prefix = "[dry-run] "
	}
	fmt.Fprintf(out, "%sreminders: due=%d sent=%d skipped=%d failed=%d\n", prefix,
		result.Reminders.Due, result.Reminders.Sent, result.Reminders.Skipped, result.Reminders.Failed)
	for _, rule := range result.Rules {
		line := fmt.Sprintf("%srule %d %q: eligible=%d created=%d current=%d", prefix,
			rule.RuleID, rule.Name, rule.Eligible, rule.Created, rule.Current)
		if rule.Error != "" {
			line += " error=" + rule.Error
		}
		fmt.Fprintln(out, line)
	}
	fmt.Fprintf(out, "%sassignments created: %d\n", prefix, result.CreatedAssignments())
	return nil
}
