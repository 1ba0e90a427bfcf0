// Package billing provides the subscription-access predicate consumed by the
// notification eligibility filter, and the snapshot sync service that keeps
// user billing state fresh from the payment provider.
package billing

import (
	"time"

	"momentum/internal/types"
)

// HasActiveAccess decides whether a user's billing snapshot grants access to
// scheduled notifications at the given instant.
//
// Rules:
//   - No snapshot at all: access granted. Legacy users predate billing, and
//     absence of data must never block scheduling.
//   - Status active or trialing: granted.
//   - Status canceled with current_period_end in the future: granted (the
//     grace period runs until the paid period expires).
//   - Everything else (none, past_due, canceled past period end): denied.
//
// The predicate is evaluated fresh on every tick; billing state can change
// between ticks and must never be cached across runs.
func HasActiveAccess(snapshot *types.BillingSnapshot, now time.Time) bool {
	if snapshot == nil {
		return true
	}

	switch snapshot.Status {
	case types.BillingActive, types.BillingTrialing:
		return true
	case types.BillingCanceled:
		return snapshot.CurrentPeriodEnd.After(now)
	default:
		return false
	}
}
