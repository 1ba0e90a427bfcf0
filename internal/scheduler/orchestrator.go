package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"momentum/internal/localtime"
	"momentum/internal/notify"
	"momentum/internal/types"
)

// UserPageLimit is the keyset page size for the candidate user scan.
const UserPageLimit = 200

// DefaultConcurrency bounds how many users are evaluated in parallel within
// one page. Each evaluation does at most a couple of indexed reads, so a
// small limit keeps connection pressure predictable.
const DefaultConcurrency = 8

// eveningHour mirrors the evening slot hour in internal/notify. The
// orchestrator only needs it to decide when the variant pick requires a
// morning check-in read.
const eveningHour = 17

// NotificationPlanner evaluates whether one notification type is due for one
// user at a tick.
type NotificationPlanner interface {
	Evaluate(ctx context.Context, user *types.User, notifType types.NotificationType, now time.Time) (notify.Verdict, error)
}

// NotificationDispatcher creates a notification record and triggers delivery.
// now is the tick being evaluated; the dispatcher's dedup window and record
// timestamp follow it so replayed ticks stay idempotent. An empty returned ID
// means the dedup guard reported the period already satisfied.
type NotificationDispatcher interface {
	Dispatch(ctx context.Context, user *types.User, notifType types.NotificationType, now time.Time) (string, error)
}

// UserSource pages through notification candidates. afterID is the keyset
// cursor; an empty string starts from the beginning.
type UserSource interface {
	ListNotifiable(ctx context.Context, afterID string, limit int) ([]*types.User, error)
}

// OrchestratorStats aggregates one hourly run. The skip buckets mirror the
// eligibility verdicts plus the dispatcher's dedup skip.
type OrchestratorStats struct {
	Processed              int `json:"processed"`
	Sent                   int `json:"sent"`
	SkippedWrongTime       int `json:"skipped_wrong_time"`
	SkippedWeekend         int `json:"skipped_weekend"`
	SkippedNoSubscription  int `json:"skipped_no_subscription"`
	SkippedAlreadyDone     int `json:"skipped_already_done"`
	SkippedAlreadyNotified int `json:"skipped_already_notified"`
	Errors                 int `json:"errors"`
}

// Orchestrator runs the hourly notification sweep: it pages through
// candidate users, evaluates each recurring slot against the user's local
// time, and dispatches the due ones. A user whose evaluation fails is
// counted and skipped; the sweep always covers the full candidate set.
type Orchestrator struct {
	users       UserSource
	planner     NotificationPlanner
	dispatcher  NotificationDispatcher
	completions notify.CompletionReader
	clock       types.Clock
	logger      *slog.Logger
	concurrency int
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithConcurrency overrides the per-page parallelism.
func WithConcurrency(n int) OrchestratorOption {
	return func(o *Orchestrator) { o.concurrency = n }
}

// NewOrchestrator creates the hourly notification orchestrator. clock and
// logger fall back to the real clock and slog.Default when nil.
func NewOrchestrator(
	users UserSource,
	planner NotificationPlanner,
	dispatcher NotificationDispatcher,
	completions notify.CompletionReader,
	clock types.Clock,
	logger *slog.Logger,
	opts ...OrchestratorOption,
) *Orchestrator {
	if clock == nil {
		clock = types.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	o := &Orchestrator{
		users:       users,
		planner:     planner,
		dispatcher:  dispatcher,
		completions: completions,
		clock:       clock,
		logger:      logger,
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// RunOnce executes one hourly sweep at the given reference time. A zero
// reference time means the orchestrator's clock decides. The returned error
// is reserved for failures that stop the sweep itself (the candidate scan);
// per-user failures land in Stats.Errors.
func (o *Orchestrator) RunOnce(ctx context.Context, referenceTime time.Time) (OrchestratorStats, error) {
	now := referenceTime
	if now.IsZero() {
		now = o.clock.Now()
	}

	var (
		mu    sync.Mutex
		stats OrchestratorStats
	)

	afterID := ""
	for {
		users, err := o.users.ListNotifiable(ctx, afterID, UserPageLimit)
		if err != nil {
			return stats, fmt.Errorf("listing notification candidates: %w", err)
		}
		if len(users) == 0 {
			break
		}

		g, gCtx := errgroup.WithContext(ctx)
		g.SetLimit(o.concurrency)

		for _, user := range users {
			user := user
			g.Go(func() error {
				userStats := o.processUser(gCtx, user, now)
				mu.Lock()
				stats.add(userStats)
				mu.Unlock()
				// Per-user failures never cancel the group; the sweep
				// covers every candidate regardless.
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return stats, err
		}

		afterID = users[len(users)-1].ID
		if len(users) < UserPageLimit {
			break
		}
	}

	o.logger.InfoContext(ctx, "hourly notification sweep complete",
		"reference_time", now.Format(time.RFC3339),
		"processed", stats.Processed,
		"sent", stats.Sent,
		"skipped_wrong_time", stats.SkippedWrongTime,
		"skipped_weekend", stats.SkippedWeekend,
		"skipped_no_subscription", stats.SkippedNoSubscription,
		"skipped_already_done", stats.SkippedAlreadyDone,
		"skipped_already_notified", stats.SkippedAlreadyNotified,
		"errors", stats.Errors,
	)
	return stats, nil
}

// processUser evaluates every recurring slot for one user at one tick.
// At most one slot can be due at any local hour, but each evaluation is
// counted separately so the skip buckets stay interpretable.
func (o *Orchestrator) processUser(ctx context.Context, user *types.User, now time.Time) OrchestratorStats {
	var stats OrchestratorStats
	stats.Processed++

	for _, notifType := range o.slotsFor(ctx, user, now) {
		verdict, err := o.planner.Evaluate(ctx, user, notifType, now)
		if err != nil {
			o.logger.ErrorContext(ctx, "eligibility evaluation failed",
				"user_id", user.ID,
				"type", string(notifType),
				"error", err,
			)
			stats.Errors++
			continue
		}

		if verdict != notify.VerdictDue {
			stats.bump(verdict)
			continue
		}

		id, err := o.dispatcher.Dispatch(ctx, user, notifType, now)
		if err != nil {
			o.logger.ErrorContext(ctx, "notification dispatch failed",
				"user_id", user.ID,
				"type", string(notifType),
				"error", err,
			)
			stats.Errors++
			continue
		}
		if id == "" {
			stats.SkippedAlreadyNotified++
			continue
		}
		stats.Sent++
	}

	return stats
}

// slotsFor returns the notification types to evaluate for this user at this
// tick: the morning slot, one evening variant, and the weekly slot.
func (o *Orchestrator) slotsFor(ctx context.Context, user *types.User, now time.Time) []types.NotificationType {
	return []types.NotificationType{
		types.NotifMorningCheckin,
		o.eveningVariant(ctx, user, now),
		types.NotifWeeklyReflection,
	}
}

// eveningVariant picks which evening message the user gets: the
// tasks-completed congratulation when the same day's morning check-in was
// completed, the incomplete-tasks nudge otherwise. Both variants share one
// dedup class, so the pick only shapes content, never cadence. The morning
// check-in read is skipped outside the evening hour, where the variant is
// irrelevant.
func (o *Orchestrator) eveningVariant(ctx context.Context, user *types.User, now time.Time) types.NotificationType {
	moment := localtime.Resolve(user.Timezone, now)
	if moment.Hour != eveningHour {
		return types.NotifEveningIncompleteTasks
	}

	checkin, err := o.completions.GetDaily(ctx, user.ID, moment.Date, types.CheckinMorning)
	if err != nil {
		o.logger.WarnContext(ctx, "morning check-in read failed, defaulting evening variant",
			"user_id", user.ID,
			"error", err,
		)
		return types.NotifEveningIncompleteTasks
	}
	if checkin.Completed() {
		return types.NotifEveningTasksCompleted
	}
	return types.NotifEveningIncompleteTasks
}

func (s *OrchestratorStats) add(other OrchestratorStats) {
	s.Processed += other.Processed
	s.Sent += other.Sent
	s.SkippedWrongTime += other.SkippedWrongTime
	s.SkippedWeekend += other.SkippedWeekend
	s.SkippedNoSubscription += other.SkippedNoSubscription
	s.SkippedAlreadyDone += other.SkippedAlreadyDone
	s.SkippedAlreadyNotified += other.SkippedAlreadyNotified
	s.Errors += other.Errors
}

func (s *OrchestratorStats) bump(v notify.Verdict) {
	switch v {
	case notify.VerdictWrongTime:
		s.SkippedWrongTime++
	case notify.VerdictWeekend:
		s.SkippedWeekend++
	case notify.VerdictNoSubscription:
		s.SkippedNoSubscription++
	case notify.VerdictAlreadyDone:
		s.SkippedAlreadyDone++
	}
}
