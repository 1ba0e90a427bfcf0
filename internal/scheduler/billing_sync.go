package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"momentum/internal/types"
)

// DefaultBillingStaleness is how old a billing snapshot may get before the
// sync job refreshes it from the payment provider. Webhooks keep snapshots
// fresh in the common case; this job is the backstop for missed webhooks.
const DefaultBillingStaleness = 24 * time.Hour

// DefaultBillingSyncLimit caps the number of users refreshed per invocation.
const DefaultBillingSyncLimit = 50

// BillingSyncDB defines the database operations the billing syncer needs.
type BillingSyncDB interface {
	// ListStaleBilling returns users whose billing snapshot was synced
	// before cutoff. Users with no snapshot at all are excluded; they have
	// nothing to refresh.
	ListStaleBilling(ctx context.Context, cutoff time.Time, limit int) ([]*types.User, error)

	// UpdateBillingSnapshot replaces the user's billing snapshot.
	UpdateBillingSnapshot(ctx context.Context, userID string, snapshot types.BillingSnapshot) error
}

// BillingProvider fetches the authoritative subscription state from the
// payment provider. Returns (nil, nil) when the customer has no
// subscription at all.
type BillingProvider interface {
	GetSubscriptionSnapshot(ctx context.Context, stripeCustomerID string) (*types.BillingSnapshot, error)
}

// BillingSyncMetrics abstracts drift metric emission. May be nil.
type BillingSyncMetrics interface {
	RecordBillingDrift(ctx context.Context, userID string)
}

// BillingSyncer refreshes stale billing snapshots from the payment provider
// so the notification eligibility predicate works from recent state even
// when subscription webhooks were missed.
type BillingSyncer struct {
	db      BillingSyncDB
	billing BillingProvider
	metrics BillingSyncMetrics
	logger  *slog.Logger
}

// NewBillingSyncer creates a billing snapshot syncer. metrics may be nil.
func NewBillingSyncer(db BillingSyncDB, billing BillingProvider, metrics BillingSyncMetrics, logger *slog.Logger) *BillingSyncer {
	if logger == nil {
		logger = slog.Default()
	}
	return &BillingSyncer{
		db:      db,
		billing: billing,
		metrics: metrics,
		logger:  logger,
	}
}

// SyncStale refreshes billing snapshots older than the staleness threshold.
// A user whose provider fetch fails is logged and skipped; their snapshot
// stays stale and the next run picks them up again. Returns the number of
// users successfully refreshed.
func (s *BillingSyncer) SyncStale(ctx context.Context, now time.Time, staleness time.Duration, limit int) (int, error) {
	cutoff := now.Add(-staleness)

	users, err := s.db.ListStaleBilling(ctx, cutoff, limit)
	if err != nil {
		return 0, fmt.Errorf("listing users with stale billing: %w", err)
	}
	if len(users) == 0 {
		s.logger.InfoContext(ctx, "no stale billing snapshots")
		return 0, nil
	}

	synced := 0
	for _, user := range users {
		if err := s.syncUser(ctx, user, now); err != nil {
			s.logger.ErrorContext(ctx, "billing sync failed for user",
				"user_id", user.ID,
				"error", err,
			)
			continue
		}
		synced++
	}

	s.logger.InfoContext(ctx, "billing sync complete",
		"candidates", len(users),
		"synced", synced,
	)
	return synced, nil
}

func (s *BillingSyncer) syncUser(ctx context.Context, user *types.User, now time.Time) error {
	if user.Billing == nil || user.Billing.StripeCustomerID == "" {
		// No provider identity to reconcile against. Stamp the sync time so
		// the user does not stay in the stale set forever.
		snapshot := types.BillingSnapshot{Status: types.BillingNone, SyncedAt: now}
		if user.Billing != nil {
			snapshot = *user.Billing
			snapshot.SyncedAt = now
		}
		return s.db.UpdateBillingSnapshot(ctx, user.ID, snapshot)
	}

	fresh, err := s.billing.GetSubscriptionSnapshot(ctx, user.Billing.StripeCustomerID)
	if err != nil {
		return fmt.Errorf("fetching subscription for customer %s: %w", user.Billing.StripeCustomerID, err)
	}

	snapshot := types.BillingSnapshot{
		Status:           types.BillingNone,
		StripeCustomerID: user.Billing.StripeCustomerID,
		SyncedAt:         now,
	}
	if fresh != nil {
		snapshot.Status = fresh.Status
		snapshot.CurrentPeriodEnd = fresh.CurrentPeriodEnd
	}

	if snapshot.Status != user.Billing.Status {
		s.logger.WarnContext(ctx, "billing state drift detected",
			"user_id", user.ID,
			"local_status", string(user.Billing.Status),
			"provider_status", string(snapshot.Status),
		)
		if s.metrics != nil {
			s.metrics.RecordBillingDrift(ctx, user.ID)
		}
	}

	return s.db.UpdateBillingSnapshot(ctx, user.ID, snapshot)
}
