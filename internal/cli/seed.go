package cli

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/noah-isme/gema-compliance-api/internal/compliance"
	"github.com/noah-isme/gema-compliance-api/internal/middleware"
	"github.com/noah-isme/gema-compliance-api/internal/models"
	"github.com/noah-isme/gema-compliance-api/internal/repository"
	"github.com/noah-isme/gema-compliance-api/internal/service"
)

// SeedDemoOptions holds flags for the seed-demo command.
type SeedDemoOptions struct {
	*RootOptions
	Seed        service.SeedOptions
	DemoUsers   int
	PrintTokens bool
	TokenTTL    time.Duration
}

// NewSeedDemoCommand creates the command that fills the database with demo data.
func NewSeedDemoCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SeedDemoOptions{RootOptions: rootOpts, Seed: service.DefaultSeedOptions()}

	cmd := &cobra.Command{
		Use:   "seed-demo",
		Short: "Seed a demo course with assignments in every compliance state",
		Long: `Seed a published demo course version and give active users an assignment whose
latest cycle is compliant, due soon, expired or not started, following the
requested distribution. Users that already hold the demo assignment are skipped.

Example:
  compliance-jobs seed-demo --demo-users 12 --print-tokens
  compliance-jobs seed-demo --pct-compliant 70 --pct-duesoon 10 --pct-expired 10 --pct-notstarted 10`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return seedDemo(cmd, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.Seed.Code, "code", opts.Seed.Code, "course code")
	flags.StringVar(&opts.Seed.Title, "title", opts.Seed.Title, "course title")
	flags.StringVar(&opts.Seed.Version, "course-version", opts.Seed.Version, "course version label")
	flags.IntVar(&opts.Seed.Users, "users", 0, "limit the number of users seeded (0 = all active users)")
	flags.IntVar(&opts.Seed.PctCompliant, "pct-compliant", opts.Seed.PctCompliant, "share of compliant users")
	flags.IntVar(&opts.Seed.PctDueSoon, "pct-duesoon", opts.Seed.PctDueSoon, "share of users due soon")
	flags.IntVar(&opts.Seed.PctExpired, "pct-expired", opts.Seed.PctExpired, "share of expired users")
	flags.IntVar(&opts.Seed.PctNotStarted, "pct-notstarted", opts.Seed.PctNotStarted, "share of users not started")
	flags.Int64Var(&opts.Seed.Seed, "seed", opts.Seed.Seed, "random seed for a repeatable demo")
	flags.IntVar(&opts.DemoUsers, "demo-users", 0, "create this many demo learners plus a staff and an auditor account first")
	flags.BoolVar(&opts.PrintTokens, "print-tokens", false, "print bearer tokens for the demo accounts")
	flags.DurationVar(&opts.TokenTTL, "token-ttl", 24*time.Hour, "lifetime of printed tokens")

	return cmd
}

func seedDemo(cmd *cobra.Command, opts *SeedDemoOptions) error {
	ctx := cmd.Context()
	rt, err := opts.runtime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	accounts, err := ensureDemoUsers(ctx, rt.Store.Users(), opts.DemoUsers)
	if err != nil {
		return err
	}

	result, err := service.NewSeedService(rt.Store, rt.Logger).SeedDemo(ctx, opts.Seed)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "course %s version %s (id %d)\n", opts.Seed.Code, opts.Seed.Version, result.CourseVersionID)
	fmt.Fprintf(out, "assignments created: %d, skipped: %d\n", result.Assignments, result.Skipped)

	statuses := make([]compliance.Status, 0, len(result.ByStatus))
	for status := range result.ByStatus {
		statuses = append(statuses, status)
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i] < statuses[j] })
	for _, status := range statuses {
		fmt.Fprintf(out, "  %-12s %d\n", status, result.ByStatus[status])
	}

	if opts.PrintTokens {
		if rt.Config.JWTSecret == "" {
			return fmt.Errorf("jwt secret is not configured")
		}
		now := time.Now()
		for _, account := range accounts {
			token, err := middleware.IssueToken(rt.Config.JWTSecret, account, opts.TokenTTL, now)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "token %s (%s): %s\n", account.Username, middleware.RoleFor(account), token)
		}
	}

	return nil
}

// ensureDemoUsers creates demo-staff, demo-auditor and demo-learnerNN accounts that do
// not exist yet and returns all of them.
func ensureDemoUsers(ctx context.Context, users repository.UserRepository, learners int) ([]models.User, error) {
	if learners <= 0 {
		return nil, nil
	}

	existing, err := users.ListActive(ctx, repository.UserFilter{})
	if err != nil {
		return nil, err
	}
	byUsername := make(map[string]models.User, len(existing))
	for _, user := range existing {
		byUsername[user.Username] = user
	}

	wanted := []models.User{
		{Username: "demo-staff", FirstName: "Demo", LastName: "Staff", IsStaff: true},
		{Username: "demo-auditor", FirstName: "Demo", LastName: "Auditor", CanAuditCerts: true},
	}
	for i := 1; i <= learners; i++ {
		wanted = append(wanted, models.User{
			Username:  fmt.Sprintf("demo-learner%02d", i),
			FirstName: "Demo",
			LastName:  fmt.Sprintf("Learner %02d", i),
		})
	}

	accounts := make([]models.User, 0, len(wanted))
	for _, user := range wanted {
		if found, ok := byUsername[user.Username]; ok {
			accounts = append(accounts, found)
			continue
		}
		user.Email = user.Username + "@example.com"
		user.IsActive = true
		if err := users.Create(ctx, &user); err != nil {
			return nil, fmt.Errorf("create %s: %w", user.Username, err)
		}
		accounts = append(accounts, user)
	}
	return accounts, nil
}
