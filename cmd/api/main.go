package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-compliance-api/internal/config"
	"github.com/noah-isme/gema-compliance-api/internal/database"
	"github.com/noah-isme/gema-compliance-api/internal/dto"
	"github.com/noah-isme/gema-compliance-api/internal/handler"
	"github.com/noah-isme/gema-compliance-api/internal/middleware"
	"github.com/noah-isme/gema-compliance-api/internal/repository"
	"github.com/noah-isme/gema-compliance-api/internal/router"
	"github.com/noah-isme/gema-compliance-api/internal/service"
	"github.com/noah-isme/gema-compliance-api/pkg/certificate"
	cloud "github.com/noah-isme/gema-compliance-api/pkg/cloudinary"
	"github.com/noah-isme/gema-compliance-api/pkg/mailer"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", cfg.AppName).Logger()
	if !cfg.IsProduction() {
		logger = logger.Level(zerolog.DebugLevel)
	}

	db, err := database.Connect(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := database.Migrate(db); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	startupCtx, cancelStartup := context.WithTimeout(context.Background(), 10*time.Second)
	redisClient, err := database.ConnectRedis(startupCtx, cfg.RedisURL)
	cancelStartup()
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
	} else {
		logger.Warn().Msg("redis not configured, dashboard cache disabled")
	}

	natsConn, err := database.ConnectNATS(cfg.NATSURL, cfg.AppName)
	if err != nil {
		log.Fatalf("failed to connect to nats: %v", err)
	}
	if natsConn != nil {
		defer natsConn.Drain()
	} else {
		logger.Warn().Msg("nats not configured, completion events disabled")
	}

	var storage service.AssetStorage
	uploader, err := cloud.New(cloud.Config{
		CloudName: cfg.CloudinaryCloudName,
		APIKey:    cfg.CloudinaryAPIKey,
		APISecret: cfg.CloudinaryAPISecret,
		Folder:    cfg.CloudinaryUploadFolder,
	}, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("cloudinary disabled, asset uploads unavailable")
	} else {
		storage = uploader
	}

	renderer, err := certificate.NewHTMLRenderer(cfg.AppName)
	if err != nil {
		log.Fatalf("failed to build certificate renderer: %v", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	store := repository.NewStore(db)
	users := repository.NewUserRepository(db)
	auditEvents := repository.NewAuditEventRepository(db)

	var publisher service.CompletionPublisher
	if natsConn != nil {
		publisher = service.NewCompletionPublisher(natsConn, cfg.NATSSubject, logger)
	}

	outbox := mailer.New(mailer.Config{
		APIKey:    cfg.SendGridAPIKey,
		FromName:  cfg.MailFromName,
		FromEmail: cfg.MailFromEmail,
	}, logger)

	dashboardService := service.NewDashboardService(repository.NewAssignmentRepository(db), redisClient, cfg.DashboardCacheTTL, logger)
	quizService := service.NewQuizService(store, validate, logger)
	completionService := service.NewCompletionService(store, service.CompletionConfig{
		VideoGatePercent: cfg.Compliance.VideoGatePercent,
		RenewalMonths:    cfg.Compliance.RenewalMonths,
	}, publisher, dashboardService, logger)
	reminderService := service.NewReminderService(store, outbox, cfg.ReminderDaysBefore, cfg.MailFromName, logger)
	schedulerService := service.NewSchedulerService(store, reminderService, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
		BodyLimit:    210 * 1024 * 1024,
	})

	middleware.Register(app, middleware.Config{Logger: &logger, AccessLog: !cfg.IsProduction()})
	router.Register(app, cfg, router.Dependencies{
		AssignmentHandler: handler.NewAssignmentHandler(service.NewAssignmentService(store, validate, logger), completionService, quizService, logger),
		LearningHandler: handler.NewLearningHandler(
			service.NewProgressService(store, validate, cfg.Compliance.VideoGatePercent, cfg.Compliance.VideoCompletePercent, logger),
			quizService,
			logger,
		),
		DashboardHandler:   handler.NewDashboardHandler(dashboardService, logger),
		CertificateHandler: handler.NewCertificateHandler(service.NewCertificateService(store, renderer, logger), logger),
		AuditHandler: handler.NewAuditHandler(
			service.NewAuditReportService(repository.NewAuditReportRepository(db), users, auditEvents, validate, cfg.AuditRowCap, logger),
			service.NewAuditTrailService(auditEvents, validate, logger),
			logger,
		),
		CatalogHandler: handler.NewCatalogHandler(service.NewCatalogService(store, storage, validate, 0, logger), logger),
		RuleHandler: handler.NewRuleHandler(
			service.NewRuleService(store, validate, logger),
			schedulerService,
			service.NewEnrollmentService(store, cfg.Compliance.CompanyDomain, logger),
			validate,
			logger,
		),
		HealthProbes:        healthProbes(db, redisClient, natsConn),
		JWTMiddleware:       middleware.JWTProtected(cfg.JWTSecret),
		IdentityMiddleware:  middleware.LoadCurrentUser(users),
		CompletionRateLimit: cfg.CompletionRateLimit,
	})

	var jobs *cron.Cron
	if cfg.SchedulerEnabled {
		jobs, err = startScheduler(cfg.SchedulerCron, schedulerService, logger)
		if err != nil {
			log.Fatalf("failed to start scheduler: %v", err)
		}
	}

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app, jobs, logger)
}

// startScheduler runs the rule scheduler and expiry reminders on the configured cron
// spec. Overlapping runs are skipped.
func startScheduler(spec string, scheduler service.SchedulerService, logger zerolog.Logger) (*cron.Cron, error) {
	jobLogger := logger.With().Str("component", "cron").Logger()
	jobs := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithChain(cron.Recover(cron.DefaultLogger), cron.SkipIfStillRunning(cron.DefaultLogger)),
	)

	_, err := jobs.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
		defer cancel()
		ctx, correlationID := middleware.NewJobCorrelation(ctx, "cron")
		runLogger := jobLogger.With().Str("correlation_id", correlationID).Logger()

		result, err := scheduler.Run(ctx, dto.SchedulerRunRequest{})
		if err != nil {
			runLogger.Error().Err(err).Msg("scheduled run failed")
			return
		}
		runLogger.Info().
			Int("rules", len(result.Rules)).
			Int("created", result.CreatedAssignments()).
			Int("reminders_sent", result.Reminders.Sent).
			Msg("scheduled run finished")
	})
	if err != nil {
		return nil, err
	}

	jobs.Start()
	jobLogger.Info().Str("spec", spec).Msg("scheduler started")
	return jobs, nil
}

func healthProbes(db *gorm.DB, redisClient *redis.Client, natsConn *nats.Conn) map[string]handler.HealthProbe {
	probes := map[string]handler.HealthProbe{
		"database": func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}
	if redisClient != nil {
		probes["redis"] = func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}
	}
	if natsConn != nil {
		probes["nats"] = func(context.Context) error {
			if !natsConn.IsConnected() {
				return errors.New(natsConn.Status().String())
			}
			return nil
		}
	}
	return probes
}

func waitForShutdown(app *fiber.App, jobs *cron.Cron, logger zerolog.Logger) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if jobs != nil {
		select {
		case <-jobs.Stop().Done():
		case <-ctx.Done():
			logger.Warn().Msg("scheduled run still in progress at shutdown")
		}
	}

	if err := app.ShutdownWithContext(ctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	logger.Info().Msg("server stopped")
}
