// Package main is the entry point for the Momentum engine API server.
//
// It loads configuration, connects the database pool and AWS clients, wires
// the scheduler and reminder services behind the HTTP chassis, and serves the
// cron trigger endpoints plus the public health check.
//
// In local or test mode the external chat provider and delivery queue are
// replaced with log-only stubs so the full trigger path runs without real
// upstreams. Graceful shutdown is handled via SIGINT/SIGTERM.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"momentum/internal/api/handlers"
	"momentum/internal/config"
	"momentum/internal/core"
	"momentum/internal/db"
	"momentum/internal/external"
	"momentum/internal/metrics"
	"momentum/internal/notify"
	"momentum/internal/queue"
	"momentum/internal/reminders"
	"momentum/internal/scheduler"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so main() can cleanly exit on error.
func run() error {
	cfg, err := config.LoadConfig(config.NewSSMProvider(os.Getenv("AWS_REGION")))
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)
	logger.Info("momentum engine starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"port", cfg.Server.Port,
	)

	ctx := context.Background()

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	deps, err := buildServices(ctx, cfg, pool, logger)
	if err != nil {
		return err
	}

	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	srv.HealthProbes = []core.HealthProbe{dbProbe{pool: pool}}

	cronHandler := handlers.NewCronHandler(deps.orchestrator, deps.processor, deps.metrics, logger)
	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars, func(r chi.Router) {
		cronHandler.Routes(r)
	})

	srv.MountRoutes()

	if isLambdaEnvironment() {
		return fmt.Errorf("cmd/api has no Lambda HTTP adapter; scheduled triggers run through cmd/cron")
	}

	return runHTTPServer(srv, cfg, logger)
}

// isLambdaEnvironment reports whether the process is running inside the AWS
// Lambda runtime.
func isLambdaEnvironment() bool {
	_, ok := os.LookupEnv("AWS_LAMBDA_RUNTIME_API")
	return ok
}

// services holds the wired trigger dependencies.
type services struct {
	orchestrator *scheduler.Orchestrator
	processor    *reminders.Processor
	metrics      handlers.RunMetrics
}

// buildServices wires the notification orchestrator and reminder processor
// with real AWS/chat/queue clients, or stubs in local/test mode.
func buildServices(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool, logger *slog.Logger) (*services, error) {
	userRepo := db.NewUserRepository(pool)
	checkinRepo := db.NewCheckinRepository(pool)
	notifRepo := db.NewNotificationRepository(pool)
	reminderRepo := db.NewReminderRepository(pool)
	squadRepo := db.NewSquadRepository(pool)
	coachingRepo := db.NewCoachingRepository(pool)

	var (
		publisher  notify.DeliveryPublisher
		chat       reminders.ChatService
		runMetrics handlers.RunMetrics
	)

	if cfg.IsTestMode || cfg.Environment == "local" {
		logger.Info("using stub external services")
		publisher = external.NewStubDeliveryPublisher(logger)
		chat = external.NewStubChatProvider(logger)
	} else {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
		if err != nil {
			return nil, fmt.Errorf("loading AWS SDK config: %w", err)
		}

		sqsClient := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
			if cfg.AWS.EndpointURL != "" {
				o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
			}
		})
		publisher = queue.NewDeliveryPublisher(sqsClient, cfg.AWS.DeliveryQueueURL, logger)

		cwClient := cloudwatch.NewFromConfig(awsCfg)
		runMetrics = metrics.NewCloudWatchEmitter(cwClient, logger)

		chat = external.NewChatClient(
			&http.Client{Timeout: cfg.Chat.Timeout},
			external.ChatClientConfig{
				APIKey:  cfg.Chat.APIKey.Unmask(),
				BaseURL: cfg.Chat.BaseURL,
				Logger:  logger,
			},
		)
	}

	guard := notify.NewGuard(notifRepo)
	dispatcher := notify.NewDispatcher(notifRepo, guard, publisher, nil, logger)
	filter := notify.NewFilter(checkinRepo)

	orchestrator := scheduler.NewOrchestrator(
		userRepo,
		filter,
		dispatcher,
		checkinRepo,
		nil,
		logger,
		scheduler.WithConcurrency(cfg.Cron.SweepConcurrency),
	)

	owners := ownerStore{SquadRepository: squadRepo, CoachingRepository: coachingRepo}
	processor := reminders.NewProcessor(
		reminderRepo,
		owners,
		squadRepo,
		chat,
		nil,
		logger,
		reminders.WithBatchLimit(cfg.Cron.ReminderBatchLimit),
	)

	return &services{
		orchestrator: orchestrator,
		processor:    processor,
		metrics:      runMetrics,
	}, nil
}

// ownerStore combines the squad and coaching repositories into the single
// owner-resolution surface the reminder processor expects.
type ownerStore struct {
	*db.SquadRepository
	*db.CoachingRepository
}

// dbProbe reports database connectivity for the health endpoint.
type dbProbe struct {
	pool *pgxpool.Pool
}

func (p dbProbe) Name() string                    { return "database" }
func (p dbProbe) Check(ctx context.Context) error { return p.pool.Ping(ctx) }

// runHTTPServer starts the server in standard HTTP mode with graceful shutdown.
func runHTTPServer(srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}

// newLogger creates a structured JSON logger at the configured level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
