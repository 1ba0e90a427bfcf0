// Package main is the entrypoint for the maintenance Lambda.
//
// EventBridge rules send MaintenancePayload JSON indicating the TaskType, and
// the handler routes execution to the matching service: the hourly
// notification sweep, the call-reminder batch, the Stripe billing sync, or
// notification archival. Consolidating the scheduled tasks into one Lambda
// keeps cold starts and infrastructure sprawl down.
//
// Every invocation acquires a distributed job lock keyed on task and hour, so
// a duplicate trigger inside the same window short-circuits cheaply.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/google/uuid"

	"momentum/internal/config"
	"momentum/internal/db"
	"momentum/internal/external"
	"momentum/internal/metrics"
	"momentum/internal/notify"
	"momentum/internal/queue"
	"momentum/internal/reminders"
	"momentum/internal/scheduler"
	"momentum/internal/storage"
)

// lockTTL covers the typical Lambda execution duration with margin.
const lockTTL = 15 * time.Minute

// SweepService runs the hourly notification sweep.
type SweepService interface {
	RunOnce(ctx context.Context, referenceTime time.Time) (scheduler.OrchestratorStats, error)
}

// ReminderService processes due call-reminder jobs at the given reference
// time.
type ReminderService interface {
	Run(ctx context.Context, referenceTime time.Time) (reminders.Stats, error)
}

// BillingService refreshes stale billing snapshots.
type BillingService interface {
	SyncStale(ctx context.Context, now time.Time, staleness time.Duration, limit int) (int, error)
}

// ArchiveService archives and deletes old notification records.
type ArchiveService interface {
	Archive(ctx context.Context, now time.Time, retention time.Duration, batchSize int) (int, error)
}

// JobLocker abstracts the distributed lock acquisition.
type JobLocker interface {
	Acquire(ctx context.Context, lockID string, workerID string, ttl time.Duration) (bool, error)
}

// RunMetrics records per-run counters. nil disables emission.
type RunMetrics interface {
	RecordOrchestratorRun(ctx context.Context, stats scheduler.OrchestratorStats)
	RecordReminderRun(ctx context.Context, stats reminders.Stats)
}

// Handler holds the dependencies for the maintenance Lambda.
type Handler struct {
	Sweep     SweepService
	Reminders ReminderService
	Billing   BillingService
	Archiver  ArchiveService
	JobLock   JobLocker
	Metrics   RunMetrics
	WorkerID  string
	Logger    *slog.Logger
}

// Handle processes one MaintenancePayload from EventBridge.
//
//  1. Determine the reference time (payload override or now).
//  2. Acquire the distributed lock "task:hour".
//  3. Route to the matching service.
func (h *Handler) Handle(ctx context.Context, payload scheduler.MaintenancePayload) (string, error) {
	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}

	now := time.Now().UTC()
	if payload.ReferenceTime != nil {
		now = payload.ReferenceTime.UTC()
	}

	taskStr := string(payload.Task)
	logger.InfoContext(ctx, "maintenance handler invoked",
		"task", taskStr,
		"reference_time", now.Format(time.RFC3339),
		"worker_id", h.WorkerID,
	)

	if payload.Task == "" {
		return "", fmt.Errorf("empty task type in maintenance payload")
	}

	lockID := fmt.Sprintf("%s:%s", payload.Task, now.Truncate(time.Hour).Format("2006-01-02T15"))
	acquired, err := h.JobLock.Acquire(ctx, lockID, h.WorkerID, lockTTL)
	if err != nil {
		logger.ErrorContext(ctx, "failed to acquire job lock",
			"lock_id", lockID,
			"error", err,
		)
		return "", fmt.Errorf("acquiring job lock %s: %w", lockID, err)
	}
	if !acquired {
		logger.InfoContext(ctx, "job lock held by another worker",
			"lock_id", lockID,
		)
		return fmt.Sprintf("skipped: lock %s held by another worker", lockID), nil
	}

	items, execErr := h.dispatch(ctx, payload.Task, now)
	if execErr != nil {
		logger.ErrorContext(ctx, "task execution failed",
			"task", taskStr,
			"error", execErr,
			"items_before_error", items,
		)
		return "", fmt.Errorf("task %s failed: %w", taskStr, execErr)
	}

	result := fmt.Sprintf("task %s complete: %d items processed", taskStr, items)
	logger.InfoContext(ctx, result,
		"task", taskStr,
		"items", items,
	)
	return result, nil
}

// dispatch routes a TaskType to the matching service. Returns the number of
// items processed and any error.
func (h *Handler) dispatch(ctx context.Context, task scheduler.TaskType, now time.Time) (int, error) {
	switch task {
	case scheduler.TaskHourlyNotifications:
		stats, err := h.Sweep.RunOnce(ctx, now)
		if err == nil && h.Metrics != nil {
			h.Metrics.RecordOrchestratorRun(ctx, stats)
		}
		return stats.Processed, err

	case scheduler.TaskCallReminders:
		stats, err := h.Reminders.Run(ctx, now)
		if err == nil && h.Metrics != nil {
			h.Metrics.RecordReminderRun(ctx, stats)
		}
		return stats.Processed, err

	case scheduler.TaskSyncBilling:
		return h.Billing.SyncStale(ctx, now, scheduler.DefaultBillingStaleness, scheduler.DefaultBillingSyncLimit)

	case scheduler.TaskArchiveNotifications:
		return h.Archiver.Archive(ctx, now, scheduler.DefaultArchiveRetention, scheduler.DefaultArchiveBatchSize)

	default:
		return 0, fmt.Errorf("unknown task type: %q", task)
	}
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	logger.Info("maintenance Lambda initializing (cold start)")

	cfg, err := config.LoadConfig(config.NewSSMProvider(os.Getenv("AWS_REGION")))
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		logger.Error("failed to create database pool", "error", err)
		os.Exit(1)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		logger.Error("failed to load AWS SDK config", "error", err)
		os.Exit(1)
	}

	userRepo := db.NewUserRepository(pool)
	checkinRepo := db.NewCheckinRepository(pool)
	notifRepo := db.NewNotificationRepository(pool)
	reminderRepo := db.NewReminderRepository(pool)
	squadRepo := db.NewSquadRepository(pool)
	coachingRepo := db.NewCoachingRepository(pool)
	lockRepo := db.NewJobLockRepository(pool, nil)

	sqsClient := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if cfg.AWS.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
		}
	})
	publisher := queue.NewDeliveryPublisher(sqsClient, cfg.AWS.DeliveryQueueURL, logger)

	emitter := metrics.NewCloudWatchEmitter(cloudwatch.NewFromConfig(awsCfg), logger)

	chatClient := external.NewChatClient(
		&http.Client{Timeout: cfg.Chat.Timeout},
		external.ChatClientConfig{
			APIKey:  cfg.Chat.APIKey.Unmask(),
			BaseURL: cfg.Chat.BaseURL,
			Logger:  logger,
		},
	)

	stripeClient := external.NewStripeClient(
		&http.Client{Timeout: 15 * time.Second},
		external.StripeClientConfig{
			SecretKey:     cfg.Billing.StripeSecretKey.Unmask(),
			WebhookSecret: cfg.Billing.StripeWebhookSecret.Unmask(),
			Logger:        logger,
		},
	)

	guard := notify.NewGuard(notifRepo)
	dispatcher := notify.NewDispatcher(notifRepo, guard, publisher, nil, logger)
	filter := notify.NewFilter(checkinRepo)
	orchestrator := scheduler.NewOrchestrator(
		userRepo, filter, dispatcher, checkinRepo, nil, logger,
		scheduler.WithConcurrency(cfg.Cron.SweepConcurrency),
	)

	processor := reminders.NewProcessor(
		reminderRepo,
		ownerStore{SquadRepository: squadRepo, CoachingRepository: coachingRepo},
		squadRepo,
		chatClient,
		nil,
		logger,
		reminders.WithBatchLimit(cfg.Cron.ReminderBatchLimit),
	)

	billingSyncer := scheduler.NewBillingSyncer(userRepo, stripeClient, emitter, logger)

	// Archival is disabled when no bucket is configured; the archiver skips
	// with a warning instead of deleting unarchived data.
	var uploader scheduler.ArchiveUploader
	if cfg.AWS.ArchiveBucket != "" {
		uploader = storage.NewS3ArchiveUploader(s3.NewFromConfig(awsCfg), cfg.AWS.ArchiveBucket, logger)
	}
	archiver := scheduler.NewNotificationArchiver(notifRepo, uploader, logger)

	handler := &Handler{
		Sweep:     orchestrator,
		Reminders: processor,
		Billing:   billingSyncer,
		Archiver:  archiver,
		JobLock:   lockRepo,
		Metrics:   emitter,
		WorkerID:  uuid.New().String(),
		Logger:    logger,
	}

	logger.Info("maintenance Lambda initialized",
		"worker_id", handler.WorkerID,
		"environment", cfg.Environment,
	)

	lambda.Start(handler.Handle)
}

// ownerStore combines the squad and coaching repositories into the single
// owner-resolution surface the reminder processor expects.
type ownerStore struct {
	*db.SquadRepository
	*db.CoachingRepository
}
