package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"momentum/internal/types"
)

// NotificationWriter persists the notification record.
type NotificationWriter interface {
	Create(ctx context.Context, n *types.Notification) error
}

// DeliveryPublisher triggers the external push/email fan-out for a created
// notification. Publishing is at-least-once: a duplicate push is acceptable,
// a duplicate record is not, so the record write happens first and the
// publish error does not roll it back.
type DeliveryPublisher interface {
	PublishNotification(ctx context.Context, msg types.DeliveryMessage) error
}

// Dispatcher creates notification records and triggers their delivery.
// It re-checks the dedup guard immediately before the write so a race
// between the orchestrator's pre-check and the insert cannot produce a
// duplicate.
type Dispatcher struct {
	notifications NotificationWriter
	guard         *Guard
	publisher     DeliveryPublisher
	clock         types.Clock
	logger        *slog.Logger
}

// NewDispatcher creates a Dispatcher. clock and logger fall back to the real
// clock and slog.Default when nil.
func NewDispatcher(
	notifications NotificationWriter,
	guard *Guard,
	publisher DeliveryPublisher,
	clock types.Clock,
	logger *slog.Logger,
) *Dispatcher {
	if clock == nil {
		clock = types.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		notifications: notifications,
		guard:         guard,
		publisher:     publisher,
		clock:         clock,
		logger:        logger,
	}
}

// Dispatch creates one notification record for the user and triggers
// delivery. now is the tick the eligibility decision was made at; the guard
// window and the record's CreatedAt both derive from it, so a replayed tick
// dedups and stamps against the replayed period, not the wall clock. A zero
// now falls back to the dispatcher's clock.
//
// Returns the new record's ID, or "" when the guard reports the period
// already satisfied. The empty-ID return is the contract the orchestrator
// uses to classify the outcome as sent versus skipped-already-notified; a
// skip is never an error.
func (d *Dispatcher) Dispatch(ctx context.Context, user *types.User, notifType types.NotificationType, now time.Time) (string, error) {
	if now.IsZero() {
		now = d.clock.Now()
	}

	satisfied, err := d.guard.AlreadySatisfied(ctx, user, notifType, now)
	if err != nil {
		return "", fmt.Errorf("dedup check before dispatch: %w", err)
	}
	if satisfied {
		return "", nil
	}

	content := ContentFor(notifType)
	n := &types.Notification{
		ID:          fmt.Sprintf("notif_%s", uuid.New().String()),
		UserID:      user.ID,
		Type:        notifType,
		Title:       content.Title,
		Body:        content.Body,
		ActionRoute: content.ActionRoute,
		CreatedAt:   now,
	}

	if err := d.notifications.Create(ctx, n); err != nil {
		return "", fmt.Errorf("creating notification record: %w", err)
	}

	// Delivery fan-out is at-least-once. The record is already durable; a
	// publish failure is logged and swallowed so the period is not re-sent
	// on the next tick just because the push hook hiccuped.
	msg := types.DeliveryMessage{
		NotificationID: n.ID,
		UserID:         user.ID,
		Type:           notifType,
		Title:          n.Title,
		Body:           n.Body,
		ActionRoute:    n.ActionRoute,
		CreatedAt:      now,
	}
	if err := d.publisher.PublishNotification(ctx, msg); err != nil {
		d.logger.ErrorContext(ctx, "delivery publish failed, record already created",
			"notification_id", n.ID,
			"user_id", user.ID,
			"type", string(notifType),
			"error", err,
		)
	}

	return n.ID, nil
}
