package notify

import (
	"context"
	"fmt"
	"time"

	"momentum/internal/billing"
	"momentum/internal/localtime"
	"momentum/internal/types"
)

// Scheduled local hours for each slot. The orchestrator runs hourly, so
// eligibility is an exact-hour match, not a window: a tick missed to downtime
// silently drops that period's notification. That gap is a deliberate
// product trade-off; widening it to a window would change observable
// behavior.
const (
	morningHour = 7
	eveningHour = 17
	weeklyHour  = 9
)

// Verdict is the outcome of one eligibility evaluation. The non-due verdicts
// map one-to-one onto the orchestrator's skip counters.
type Verdict int

const (
	VerdictDue Verdict = iota
	VerdictWrongTime
	VerdictWeekend
	VerdictNoSubscription
	VerdictAlreadyDone
)

// String returns the counter-bucket name for the verdict.
func (v Verdict) String() string {
	switch v {
	case VerdictDue:
		return "due"
	case VerdictWrongTime:
		return "wrong_time"
	case VerdictWeekend:
		return "weekend"
	case VerdictNoSubscription:
		return "no_subscription"
	case VerdictAlreadyDone:
		return "already_done"
	default:
		return "unknown"
	}
}

// CompletionReader is the subset of check-in data access the filter needs.
type CompletionReader interface {
	GetDaily(ctx context.Context, userID, localDate string, kind types.CheckinKind) (*types.DailyCheckin, error)
	GetWeekly(ctx context.Context, userID, weekID string) (*types.WeeklyReflection, error)
}

// Filter evaluates whether a recurring notification type is due for one user
// at one tick. It is pure policy over the user record, the resolved local
// time, and the completion records; it performs no writes.
type Filter struct {
	completions CompletionReader
}

// NewFilter creates an eligibility filter over the given completion reader.
func NewFilter(completions CompletionReader) *Filter {
	return &Filter{completions: completions}
}

// Evaluate applies the per-type rules and returns a Verdict. Cheap checks
// (hour, weekday, onboarding, billing) run before any database read.
//
// The billing predicate is evaluated fresh on every call; billing state can
// change between ticks and is never cached.
func (f *Filter) Evaluate(ctx context.Context, user *types.User, notifType types.NotificationType, now time.Time) (Verdict, error) {
	moment := localtime.Resolve(user.Timezone, now)

	switch notifType {
	case types.NotifMorningCheckin, types.NotifEveningIncompleteTasks, types.NotifEveningTasksCompleted:
		hour := morningHour
		kind := types.CheckinMorning
		if notifType != types.NotifMorningCheckin {
			hour = eveningHour
			kind = types.CheckinEvening
		}

		if moment.Hour != hour {
			return VerdictWrongTime, nil
		}
		if moment.IsWeekend() {
			return VerdictWeekend, nil
		}
		if !f.passesGates(user, now) {
			return VerdictNoSubscription, nil
		}

		checkin, err := f.completions.GetDaily(ctx, user.ID, moment.Date, kind)
		if err != nil {
			return VerdictWrongTime, fmt.Errorf("reading daily checkin for user %s: %w", user.ID, err)
		}
		if checkin.Completed() {
			return VerdictAlreadyDone, nil
		}
		return VerdictDue, nil

	case types.NotifWeeklyReflection:
		if moment.Hour != weeklyHour {
			return VerdictWrongTime, nil
		}
		// The weekly slot only fires on weekends, inverting the daily rule.
		if !moment.IsWeekend() {
			return VerdictWrongTime, nil
		}
		if !f.passesGates(user, now) {
			return VerdictNoSubscription, nil
		}

		reflection, err := f.completions.GetWeekly(ctx, user.ID, moment.WeekID())
		if err != nil {
			return VerdictWrongTime, fmt.Errorf("reading weekly reflection for user %s: %w", user.ID, err)
		}
		if reflection.Completed() {
			return VerdictAlreadyDone, nil
		}
		return VerdictDue, nil

	default:
		return VerdictWrongTime, fmt.Errorf("unknown notification type %q", notifType)
	}
}

// IsDue is the boolean convenience form of Evaluate.
func (f *Filter) IsDue(ctx context.Context, user *types.User, notifType types.NotificationType, now time.Time) (bool, error) {
	v, err := f.Evaluate(ctx, user, notifType, now)
	if err != nil {
		return false, err
	}
	return v == VerdictDue, nil
}

// passesGates applies the onboarding and billing gates shared by every type.
func (f *Filter) passesGates(user *types.User, now time.Time) bool {
	if !user.OnboardingCompleted {
		return false
	}
	return billing.HasActiveAccess(user.Billing, now)
}
