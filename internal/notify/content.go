// Package notify implements the recurring-notification half of the scheduling
// engine: the per-tick eligibility filter, the dedup guard that enforces
// at-most-once per period, and the dispatcher that creates the persisted
// record and triggers delivery fan-out.
package notify

import "momentum/internal/types"

// Content is the user-facing payload for one notification type.
type Content struct {
	Title       string
	Body        string
	ActionRoute string
}

// contentByType holds the fixed copy for each recurring notification slot.
// Copy changes are deploys, not data; the record snapshots the copy at
// creation time so history stays stable.
var contentByType = map[types.NotificationType]Content{
	types.NotifMorningCheckin: {
		Title:       "Morning check-in",
		Body:        "Set your focus for the day and commit to your tasks.",
		ActionRoute: "/checkin/morning",
	},
	types.NotifEveningIncompleteTasks: {
		Title:       "Evening check-in",
		Body:        "You still have open tasks. Close out your day with a check-in.",
		ActionRoute: "/checkin/evening",
	},
	types.NotifEveningTasksCompleted: {
		Title:       "Evening check-in",
		Body:        "Nice work today. Take a minute to reflect on how it went.",
		ActionRoute: "/checkin/evening",
	},
	types.NotifWeeklyReflection: {
		Title:       "Weekly reflection",
		Body:        "Review your week and set up the next one.",
		ActionRoute: "/reflection",
	},
}

// ContentFor returns the copy for a notification type. Unknown types get an
// empty Content; callers only pass the defined enum values.
func ContentFor(t types.NotificationType) Content {
	return contentByType[t]
}
