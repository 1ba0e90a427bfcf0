package notify

import (
	"context"
	"fmt"
	"time"

	"momentum/internal/localtime"
	"momentum/internal/types"
)

// NotificationWindowReader is the persistence query the guard runs: does any
// record with a type in the class exist inside the UTC window.
type NotificationWindowReader interface {
	ExistsInWindow(ctx context.Context, userID string, typeClass []types.NotificationType, start, end time.Time) (bool, error)
}

// Guard decides whether an equivalent notification has already been
// satisfied for the current period. It is the sole mechanism preventing
// duplicate sends under retried or duplicate cron invocations, so every
// decision is re-derived from persisted records; nothing is cached across
// runs.
//
// All dispatch paths share this one implementation so the period-window and
// equivalence-class semantics cannot drift between call sites.
type Guard struct {
	notifications NotificationWindowReader
}

// NewGuard creates a dedup guard over the given notification reader.
func NewGuard(notifications NotificationWindowReader) *Guard {
	return &Guard{notifications: notifications}
}

// AlreadySatisfied reports whether a notification in notifType's equivalence
// class already exists for the user's current local period. Daily types use
// the [localDayStart, localDayEnd) window in the user's timezone; the weekly
// type uses the Monday-based [weekStart, weekStart+7d) window.
//
// Callers must consult the guard strictly before any write, and must treat a
// true result as a normal skip, never an error.
func (g *Guard) AlreadySatisfied(ctx context.Context, user *types.User, notifType types.NotificationType, now time.Time) (bool, error) {
	moment := localtime.Resolve(user.Timezone, now)

	var start, end time.Time
	if notifType.IsWeekly() {
		start, end = moment.WeekWindow()
	} else {
		start, end = moment.DayWindow()
	}

	exists, err := g.notifications.ExistsInWindow(ctx, user.ID, notifType.EquivalenceClass(), start, end)
	if err != nil {
		return false, fmt.Errorf("querying notification window for user %s: %w", user.ID, err)
	}
	return exists, nil
}
