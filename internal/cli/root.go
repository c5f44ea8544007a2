package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-compliance-api/internal/config"
	"github.com/noah-isme/gema-compliance-api/internal/database"
	"github.com/noah-isme/gema-compliance-api/internal/repository"
	"github.com/noah-isme/gema-compliance-api/pkg/mailer"
)

// RootOptions holds global flags and the runtime factory shared by all commands.
type RootOptions struct {
	Verbose bool

	// Bootstrap builds the runtime for a command. Nil means load configuration from
	// the environment and connect to the configured database.
	Bootstrap func(ctx context.Context, opts *RootOptions) (*Runtime, error)
}

// Runtime is what a job needs to touch the compliance store.
type Runtime struct {
	Config config.Config
	DB     *gorm.DB
	Store  repository.Store
	Mailer mailer.Mailer
	Logger zerolog.Logger

	close func()
}

// Close releases whatever the runtime opened.
func (r *Runtime) Close() {
	if r != nil && r.close != nil {
		r.close()
	}
}

// NewRootCommand creates the root command for the compliance jobs CLI.
func NewRootCommand(opts *RootOptions) *cobra.Command {
	if opts == nil {
		opts = &RootOptions{}
	}

	cmd := &cobra.Command{
		Use:           "compliance-jobs",
		Short:         "Maintenance jobs for the compliance training API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")

	cmd.AddCommand(NewRunScheduledJobsCommand(opts))
	cmd.AddCommand(NewSeedDemoCommand(opts))

	return cmd
}

func (o *RootOptions) runtime(ctx context.Context) (*Runtime, error) {
	if o.Bootstrap != nil {
		return o.Bootstrap(ctx, o)
	}
	return loadRuntime(o)
}

func loadRuntime(opts *RootOptions) (*Runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	level := zerolog.InfoLevel
	if opts.Verbose {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()

	db, err := database.Connect(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(db); err != nil {
		return nil, err
	}

	return &Runtime{
		Config: cfg,
		DB:     db,
		Store:  repository.NewStore(db),
		Mailer: mailer.New(mailer.Config{
			APIKey:    cfg.SendGridAPIKey,
			FromName:  cfg.MailFromName,
			FromEmail: cfg.MailFromEmail,
		}, logger),
		Logger: logger,
		close: func() {
			if sqlDB, err := db.DB(); err == nil {
				_ = sqlDB.Close()
			}
		},
	}, nil
}
