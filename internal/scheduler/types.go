// Package scheduler implements the scheduled job services for Momentum: the
// hourly notification orchestrator, the call-reminder trigger, billing
// snapshot sync, and notification archival.
//
// These types are shared between the internal task routing logic and the
// cmd/cron entrypoint. MaintenancePayload is the JSON structure delivered by
// the scheduled-event source; its TaskType determines which service method
// handles the invocation.
package scheduler

import "time"

// TaskType identifies which scheduled service handles an invocation.
type TaskType string

const (
	TaskHourlyNotifications  TaskType = "hourly_notifications"
	TaskCallReminders        TaskType = "call_reminders"
	TaskSyncBilling          TaskType = "sync_billing"
	TaskArchiveNotifications TaskType = "archive_notifications"
)

// MaintenancePayload is the JSON payload delivered to the cron entrypoint.
// It identifies the task to execute and optionally overrides the reference
// time for manual invocation or backfilling.
//
//	{
//	  "task": "hourly_notifications",
//	  "reference_time": "2026-03-04T16:00:00Z"  // optional
//	}
type MaintenancePayload struct {
	Task TaskType `json:"task"`
	// ReferenceTime lets manual invocation pin "now" for deterministic
	// execution. If nil, the current UTC time is used.
	ReferenceTime *time.Time `json:"reference_time,omitempty"`
}
