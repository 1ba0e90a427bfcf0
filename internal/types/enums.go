package types

// NotificationType identifies a recurring notification slot. The two evening
// values share one slot: they differ only in copy, and the existence of either
// satisfies the evening slot for the day.
type NotificationType string

const (
	NotifMorningCheckin          NotificationType = "morning_checkin"
	NotifEveningIncompleteTasks  NotificationType = "evening_checkin_incomplete_tasks"
	NotifEveningTasksCompleted   NotificationType = "evening_checkin_tasks_completed"
	NotifWeeklyReflection        NotificationType = "weekly_reflection"
)

// EquivalenceClass returns the set of notification types that are mutually
// substitutable for dedup purposes within one period. A record of any type in
// the class satisfies the whole class.
func (t NotificationType) EquivalenceClass() []NotificationType {
	switch t {
	case NotifEveningIncompleteTasks, NotifEveningTasksCompleted:
		return []NotificationType{NotifEveningIncompleteTasks, NotifEveningTasksCompleted}
	default:
		return []NotificationType{t}
	}
}

// IsWeekly reports whether the type is deduplicated per Monday-based week
// rather than per local day.
func (t NotificationType) IsWeekly() bool {
	return t == NotifWeeklyReflection
}

// CheckinKind distinguishes the two daily completion records.
type CheckinKind string

const (
	CheckinMorning CheckinKind = "morning_checkin"
	CheckinEvening CheckinKind = "evening_checkin"
)

// BillingStatus is the subscription status snapshot stored on the user record.
// The engine reads it; it never mutates billing state.
type BillingStatus string

const (
	BillingNone     BillingStatus = "none"
	BillingActive   BillingStatus = "active"
	BillingTrialing BillingStatus = "trialing"
	BillingCanceled BillingStatus = "canceled"
	BillingPastDue  BillingStatus = "past_due"
)

// CallStatus is the lifecycle status of an authoritative call record.
type CallStatus string

const (
	CallPending   CallStatus = "pending"
	CallConfirmed CallStatus = "confirmed"
	CallCanceled  CallStatus = "canceled"
)

// ReminderOwnerType identifies the entity a reminder job belongs to.
type ReminderOwnerType string

const (
	OwnerSquad          ReminderOwnerType = "squad"
	OwnerCoachingClient ReminderOwnerType = "coaching_client"
)
