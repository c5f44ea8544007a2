package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the compliance API and jobs CLI.
type Config struct {
	AppName                string
	AppEnv                 string
	AppPort                string
	DatabaseDriver         string
	DatabaseURL            string
	RedisURL               string
	NATSURL                string
	NATSSubject            string
	JWTSecret              string
	CloudinaryCloudName    string
	CloudinaryAPIKey       string
	CloudinaryAPISecret    string
	CloudinaryUploadFolder string
	DashboardCacheTTL      time.Duration
	Compliance             ComplianceConfig
	AuditRowCap            int
	CompletionRateLimit    int
	SchedulerEnabled       bool
	SchedulerCron          string
	ReminderDaysBefore     int
	SendGridAPIKey         string
	MailFromName           string
	MailFromEmail          string
}

// ComplianceConfig carries the tunables of the certification lifecycle.
type ComplianceConfig struct {
	RenewalMonths        int
	VideoGatePercent     int
	VideoCompletePercent int
	CompanyDomain        string
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// IsProduction reports whether the service runs with production settings.
func (c Config) IsProduction() bool {
	return strings.EqualFold(c.AppEnv, "production")
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("COMPLIANCE")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "Compliance Training API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("nats.subject", "compliance.cycle.completed")
	v.SetDefault("cloudinary.folder", "compliance/courses")
	v.SetDefault("dashboard.cache_ttl", "5m")
	v.SetDefault("compliance.renewal_months", 11)
	v.SetDefault("compliance.video_gate_percent", 90)
	v.SetDefault("compliance.video_complete_percent", 95)
	v.SetDefault("audit.row_cap", 500)
	v.SetDefault("rate_limit.completion_per_minute", 30)
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.cron", "0 2 * * *")
	v.SetDefault("reminders.days_before", 30)
	v.SetDefault("mail.from_name", "Compliance Training")

	ttlString := v.GetString("dashboard.cache_ttl")
	if ttlString == "" {
		ttlString = "5m"
	}

	ttl, err := time.ParseDuration(ttlString)
	if err != nil {
		return Config{}, fmt.Errorf("invalid dashboard cache ttl: %w", err)
	}

	cfg := Config{
		AppName:                v.GetString("app.name"),
		AppEnv:                 v.GetString("app.env"),
		AppPort:                v.GetString("app.port"),
		DatabaseDriver:         strings.ToLower(v.GetString("database.driver")),
		DatabaseURL:            v.GetString("database.url"),
		RedisURL:               v.GetString("redis.url"),
		NATSURL:                v.GetString("nats.url"),
		NATSSubject:            v.GetString("nats.subject"),
		JWTSecret:              v.GetString("jwt.secret"),
		CloudinaryCloudName:    v.GetString("cloudinary.cloud_name"),
		CloudinaryAPIKey:       v.GetString("cloudinary.api_key"),
		CloudinaryAPISecret:    v.GetString("cloudinary.api_secret"),
		CloudinaryUploadFolder: v.GetString("cloudinary.folder"),
		DashboardCacheTTL:      ttl,
		Compliance: ComplianceConfig{
			RenewalMonths:        v.GetInt("compliance.renewal_months"),
			VideoGatePercent:     v.GetInt("compliance.video_gate_percent"),
			VideoCompletePercent: v.GetInt("compliance.video_complete_percent"),
			CompanyDomain:        strings.ToLower(strings.TrimSpace(v.GetString("compliance.company_domain"))),
		},
		AuditRowCap:         v.GetInt("audit.row_cap"),
		CompletionRateLimit: v.GetInt("rate_limit.completion_per_minute"),
		SchedulerEnabled:    v.GetBool("scheduler.enabled"),
		SchedulerCron:       v.GetString("scheduler.cron"),
		ReminderDaysBefore:  v.GetInt("reminders.days_before"),
		SendGridAPIKey:      v.GetString("sendgrid.api_key"),
		MailFromName:        v.GetString("mail.from_name"),
		MailFromEmail:       v.GetString("mail.from_email"),
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	if cfg.DatabaseDriver != "postgres" && cfg.DatabaseDriver != "sqlite" {
		return Config{}, fmt.Errorf("unsupported database driver %q", cfg.DatabaseDriver)
	}

	if cfg.Compliance.RenewalMonths <= 0 {
		cfg.Compliance.RenewalMonths = 11
	}

	if cfg.Compliance.VideoGatePercent <= 0 || cfg.Compliance.VideoGatePercent > 100 {
		cfg.Compliance.VideoGatePercent = 90
	}

	if cfg.Compliance.VideoCompletePercent <= 0 || cfg.Compliance.VideoCompletePercent > 100 {
		cfg.Compliance.VideoCompletePercent = 95
	}

	if cfg.AuditRowCap <= 0 {
		cfg.AuditRowCap = 500
	}

	if cfg.ReminderDaysBefore <= 0 {
		cfg.ReminderDaysBefore = 30
	}

	return cfg, nil
}
