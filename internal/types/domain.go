package types

import "time"

// User is the read-only view of a user record consumed by the scheduling
// engine. Billing fields are a snapshot maintained by the billing sync task;
// the eligibility path reads them fresh each tick but never writes them.
type User struct {
	ID                  string
	Email               string
	Timezone            string // IANA name; empty resolves to UTC
	OnboardingCompleted bool
	Billing             *BillingSnapshot
	CreatedAt           time.Time
}

// BillingSnapshot is the subscription state stored on the user record.
// A nil snapshot means the user predates billing and is treated as ungated.
type BillingSnapshot struct {
	Status           BillingStatus
	CurrentPeriodEnd time.Time
	StripeCustomerID string
	SyncedAt         time.Time
}

// DailyCheckin is a per-(user, local date, kind) completion record. It is
// created by user action outside this engine; the eligibility filter reads it
// to suppress a same-day notification after the check-in is done.
type DailyCheckin struct {
	UserID      string
	LocalDate   string // YYYY-MM-DD in the user's timezone
	Kind        CheckinKind
	CompletedAt *time.Time
}

// Completed reports whether the check-in has been done.
func (c *DailyCheckin) Completed() bool {
	return c != nil && c.CompletedAt != nil
}

// WeeklyReflection is the weekly-granularity analogue of DailyCheckin,
// keyed by the ISO Monday date of the week.
type WeeklyReflection struct {
	UserID      string
	WeekID      string // YYYY-MM-DD of the week's Monday
	CompletedAt *time.Time
}

// Completed reports whether the reflection has been done.
func (w *WeeklyReflection) Completed() bool {
	return w != nil && w.CompletedAt != nil
}

// Notification is a persisted notification record. Immutable once created
// except for the Read flag. Its existence within a period window is what the
// dedup guard inspects.
type Notification struct {
	ID          string
	UserID      string
	Type        NotificationType
	Title       string
	Body        string
	ActionRoute string
	Read        bool
	CreatedAt   time.Time
}

// ReminderJob is a scheduled call reminder. Created when a call is confirmed;
// consumed at most once by the batch processor. Jobs found stale (call
// canceled or rescheduled) are deleted outright rather than left unsent
// forever.
type ReminderJob struct {
	ID            string
	OwnerType     ReminderOwnerType
	OwnerID       string
	CallID        string // set on the referenced (standard/voted) path
	CallDateTime  time.Time
	CallTimezone  string
	CallLocation  string
	CallTitle     string
	ChatChannelID string
	ReminderTime  time.Time // fire instant, UTC
	Sent          bool
	SentAt        *time.Time
	Attempts      int
	Error         string
	LastErrorAt   *time.Time
	CreatedAt     time.Time
}

// Call is the authoritative call record consulted during staleness checks.
type Call struct {
	ID               string
	SquadID          string
	Status           CallStatus
	StartDateTimeUTC time.Time
	Timezone         string
	Location         string
	Title            string
}

// CoachingClient is the owning entity for one-on-one coaching reminder jobs.
// Coaching calls are always scheduled inline on the client record, so their
// jobs follow the same snapshot-comparison path as premium squads.
type CoachingClient struct {
	ID            string
	CoachID       string
	ClientUserID  string
	ChatChannelID string
	CallDateTime  *time.Time
	CallTimezone  string
	CallLocation  string
	CallTitle     string
	DeletedAt     *time.Time
}

// Squad is the owning entity for squad reminder jobs. Premium squads carry an
// inline call snapshot; standard squads schedule calls through voted Call
// records.
type Squad struct {
	ID            string
	Name          string
	Premium       bool
	ChatChannelID string
	CallDateTime  *time.Time // premium inline snapshot
	CallTimezone  string
	CallLocation  string
	CallTitle     string
	DeletedAt     *time.Time
}
