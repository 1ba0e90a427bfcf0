// Package config defines the global configuration for the Momentum
// scheduling engine. Configuration is loaded once at process initialization
// and immutable thereafter, following 12-Factor principles.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File -> AWS SSM Parameter Store (Lowest)
//
// Any missing required value or invalid format fails startup immediately.
package config

import (
	"time"

	"momentum/internal/types"
)

// SecretString aliases types.SecretString, the redacted secret type used for
// all sensitive configuration values.
type SecretString = types.SecretString

// Config is the top-level configuration struct. Sub-components receive only
// the specific subsets they require.
type Config struct {
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"momentum-engine"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	IsTestMode  bool   `envconfig:"IS_TEST_MODE" default:"false"`

	Server   ServerConfig
	Database DatabaseConfig
	AWS      AWSConfig
	Chat     ChatConfig
	Billing  BillingConfig
	Cron     CronConfig

	// Build metadata injected via ldflags, not env.
	Build BuildInfo
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            string        `envconfig:"PORT" default:"8080"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"15s"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required,url"`

	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	AcquireTimeout    time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"2s"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
}

// AWSConfig holds AWS resource identifiers and regional configuration.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"us-east-1"`

	DeliveryQueueURL string `envconfig:"SQS_DELIVERY_QUEUE" validate:"required,url"`
	ArchiveBucket    string `envconfig:"ARCHIVE_BUCKET"` // cold storage for old notifications; empty disables archival

	// LocalStack support, empty in prod.
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// ChatConfig holds the chat provider credentials used for call reminders.
type ChatConfig struct {
	APIKey  SecretString  `envconfig:"CHAT_API_KEY" validate:"required"`
	BaseURL string        `envconfig:"CHAT_BASE_URL"`
	Timeout time.Duration `envconfig:"CHAT_TIMEOUT" default:"10s"`
}

// BillingConfig holds Stripe integration credentials.
type BillingConfig struct {
	StripeSecretKey     SecretString `envconfig:"STRIPE_SECRET_KEY" validate:"required"`
	StripeWebhookSecret SecretString `envconfig:"STRIPE_WEBHOOK_SECRET" validate:"required"`
}

// CronConfig holds settings for the scheduled-trigger endpoints.
type CronConfig struct {
	// Secret is the bearer token cron callers present. It may be stored as
	// either the plaintext value or its bcrypt hash.
	Secret SecretString `envconfig:"CRON_SECRET" validate:"required,min=16"`

	ReminderBatchLimit int `envconfig:"REMINDER_BATCH_LIMIT" default:"50"`
	SweepConcurrency   int `envconfig:"SWEEP_CONCURRENCY" default:"8"`
}

// BuildInfo holds build-time metadata injected via ldflags.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures.
type ConfigErrorType string

const (
	ErrMissingEnv    ConfigErrorType = "MISSING_ENV"
	ErrSSMResolution ConfigErrorType = "SSM_FAILURE"
	ErrValidation    ConfigErrorType = "VALIDATION_FAILED"
	ErrParsing       ConfigErrorType = "PARSING_FAILED"
)
