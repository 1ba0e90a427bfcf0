// Package reminders implements the call-reminder batch processor: it scans
// due reminder jobs, validates each against the authoritative call record,
// delivers a chat reminder, and drives the job to a terminal state. Each job
// is independent; one failing job never aborts the run.
package reminders

import (
	"context"
	"fmt"
	"time"

	"momentum/internal/types"
)

// CallSnapshot is the subset of call fields a reminder job compares against
// at fire time.
type CallSnapshot struct {
	DateTime time.Time
	Timezone string
	Location string
	Title    string
}

// CallSource is the tagged variant describing where a job's authoritative
// call lives: inline on the owning record (premium squads, coaching clients)
// or in a referenced voted-call record (standard squads). Exactly one of the
// two arms is set.
type CallSource struct {
	Inline *CallSnapshot // inline path: owner's current snapshot, nil when no call is scheduled
	CallID string        // referenced path: ID of the authoritative call record
}

// Referenced reports whether the source points at a call record.
func (s CallSource) Referenced() bool {
	return s.Inline == nil
}

// CallReader resolves referenced call records.
type CallReader interface {
	GetCall(ctx context.Context, id string) (*types.Call, error)
}

// resolveAuthoritativeCall resolves a CallSource to the call snapshot that is
// authoritative right now. Returns (nil, nil) when no valid call exists
// anymore: the inline arm carries no snapshot, the referenced record is gone,
// or the referenced record is not confirmed. All staleness branches funnel
// through this one resolution so no call site re-implements them.
func resolveAuthoritativeCall(ctx context.Context, calls CallReader, source CallSource) (*CallSnapshot, error) {
	if !source.Referenced() {
		return source.Inline, nil
	}

	if source.CallID == "" {
		return nil, nil
	}
	call, err := calls.GetCall(ctx, source.CallID)
	if err != nil {
		return nil, fmt.Errorf("resolving call %s: %w", source.CallID, err)
	}
	if call == nil || call.Status != types.CallConfirmed {
		return nil, nil
	}
	return &CallSnapshot{
		DateTime: call.StartDateTimeUTC,
		Timezone: call.Timezone,
		Location: call.Location,
		Title:    call.Title,
	}, nil
}
