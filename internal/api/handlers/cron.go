// Package handlers contains the HTTP trigger handlers for the Momentum
// engine. The endpoints are invoked by external cron schedulers and simply
// front the scheduler and reminder services; all business logic lives there.
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"momentum/internal/core"
	"momentum/internal/reminders"
	"momentum/internal/scheduler"
	"momentum/internal/types"
)

// NotificationSweeper runs one hourly notification sweep.
type NotificationSweeper interface {
	RunOnce(ctx context.Context, referenceTime time.Time) (scheduler.OrchestratorStats, error)
}

// ReminderRunner processes one batch of due call-reminder jobs at the given
// reference time. A zero reference time runs at the current time.
type ReminderRunner interface {
	Run(ctx context.Context, referenceTime time.Time) (reminders.Stats, error)
}

// RunMetrics records per-run counters. Emission is best-effort and never
// affects the response.
type RunMetrics interface {
	RecordOrchestratorRun(ctx context.Context, stats scheduler.OrchestratorStats)
	RecordReminderRun(ctx context.Context, stats reminders.Stats)
}

// CronHandler serves the /v1/cron trigger endpoints.
type CronHandler struct {
	sweeper   NotificationSweeper
	reminders ReminderRunner
	metrics   RunMetrics // nil disables metric emission
	logger    *slog.Logger
}

// NewCronHandler creates the trigger handler. metrics may be nil; logger
// falls back to slog.Default.
func NewCronHandler(sweeper NotificationSweeper, runner ReminderRunner, metrics RunMetrics, logger *slog.Logger) *CronHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CronHandler{
		sweeper:   sweeper,
		reminders: runner,
		metrics:   metrics,
		logger:    logger,
	}
}

// Routes mounts the trigger endpoints. Both GET and POST are accepted so the
// endpoints work with schedulers that can only issue one or the other.
func (h *CronHandler) Routes(r chi.Router) {
	r.Get("/cron/notifications", h.HandleNotifications)
	r.Post("/cron/notifications", h.HandleNotifications)
	r.Get("/cron/call-reminders", h.HandleCallReminders)
	r.Post("/cron/call-reminders", h.HandleCallReminders)
}

// triggerRequest is the optional POST body for trigger endpoints. The
// reference time override exists for backfill and testing; GET requests and
// bare POSTs run at the current time.
type triggerRequest struct {
	ReferenceTime *time.Time `json:"reference_time,omitempty"`
}

// sweepResponse is the success envelope for the notification sweep.
type sweepResponse struct {
	Success bool                        `json:"success"`
	Stats   scheduler.OrchestratorStats `json:"stats"`
}

// reminderResponse is the success envelope for the reminder batch.
type reminderResponse struct {
	Success bool            `json:"success"`
	Stats   reminders.Stats `json:"stats"`
}

// HandleNotifications triggers one hourly notification sweep.
func (h *CronHandler) HandleNotifications(w http.ResponseWriter, r *http.Request) {
	referenceTime, err := h.decodeReferenceTime(w, r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	stats, err := h.sweeper.RunOnce(r.Context(), referenceTime)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "notification sweep failed",
			"error", err,
		)
		core.Error(w, r, types.NewAppError(types.ErrCodeInternalUnexpected,
			"notification sweep failed", err))
		return
	}

	if h.metrics != nil {
		h.metrics.RecordOrchestratorRun(r.Context(), stats)
	}

	h.logger.InfoContext(r.Context(), "notification sweep complete",
		"processed", stats.Processed,
		"sent", stats.Sent,
		"errors", stats.Errors,
	)
	core.JSON(w, r, http.StatusOK, sweepResponse{Success: true, Stats: stats})
}

// HandleCallReminders triggers one bounded batch of due reminder jobs.
func (h *CronHandler) HandleCallReminders(w http.ResponseWriter, r *http.Request) {
	referenceTime, err := h.decodeReferenceTime(w, r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	stats, err := h.reminders.Run(r.Context(), referenceTime)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "reminder batch failed",
			"error", err,
		)
		core.Error(w, r, types.NewAppError(types.ErrCodeInternalUnexpected,
			"reminder batch failed", err))
		return
	}

	if h.metrics != nil {
		h.metrics.RecordReminderRun(r.Context(), stats)
	}

	h.logger.InfoContext(r.Context(), "reminder batch complete",
		"processed", stats.Processed,
		"sent", stats.Sent,
		"failed", stats.Failed,
	)
	core.JSON(w, r, http.StatusOK, reminderResponse{Success: true, Stats: stats})
}

// decodeReferenceTime extracts the optional reference time override from a
// POST body. A zero time means "now" and is the GET behavior.
func (h *CronHandler) decodeReferenceTime(w http.ResponseWriter, r *http.Request) (time.Time, error) {
	if r.Method != http.MethodPost {
		return time.Time{}, nil
	}

	var req triggerRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		return time.Time{}, err
	}
	if req.ReferenceTime == nil {
		return time.Time{}, nil
	}
	return req.ReferenceTime.UTC(), nil
}
