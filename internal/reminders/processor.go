package reminders

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"momentum/internal/localtime"
	"momentum/internal/types"
)

// DefaultBatchLimit caps the number of jobs selected per run so a single
// invocation stays well inside any external trigger timeout.
const DefaultBatchLimit = 50

// Cutoff defaults for stuck jobs. A job that keeps failing past either bound
// transitions to a terminal failed state instead of retrying forever.
const (
	DefaultMaxAttempts = 5
	DefaultMaxAge      = 48 * time.Hour
)

// JobStore is the reminder-job persistence the processor drives state
// transitions through.
type JobStore interface {
	ListDue(ctx context.Context, now time.Time, limit int) ([]*types.ReminderJob, error)
	MarkSent(ctx context.Context, jobID string, sentAt time.Time, note string) error
	RecordFailure(ctx context.Context, jobID string, errMsg string, at time.Time) error
	MarkFailed(ctx context.Context, jobID string, reason string, at time.Time) error
	Delete(ctx context.Context, jobID string) error
}

// OwnerStore resolves the entity a job belongs to. Both methods return
// (nil, nil) for missing or soft-deleted owners.
type OwnerStore interface {
	GetSquad(ctx context.Context, id string) (*types.Squad, error)
	GetClient(ctx context.Context, id string) (*types.CoachingClient, error)
}

// ChatService is the chat-provider surface the processor needs. All three
// operations are idempotent on the provider side and safe to retry.
type ChatService interface {
	EnsureBotUser(ctx context.Context) (string, error)
	AddChannelMember(ctx context.Context, channelID, userID string) error
	SendMessage(ctx context.Context, channelID, text string) error
}

// Stats aggregates one batch run. It is the processor's only externally
// visible output besides the job state transitions themselves.
type Stats struct {
	Processed      int `json:"processed"`
	Sent           int `json:"sent"`
	DiscardedStale int `json:"discarded_stale"`
	NoChannel      int `json:"no_channel"`
	Failed         int `json:"failed"`
	Errors         int `json:"errors"`
}

// Processor executes one bounded batch pass over due reminder jobs.
type Processor struct {
	jobs    JobStore
	owners  OwnerStore
	calls   CallReader
	chat    ChatService
	clock   types.Clock
	logger  *slog.Logger
	limit   int
	maxTry  int
	maxAge  time.Duration
}

// ProcessorOption configures a Processor.
type ProcessorOption func(*Processor)

// WithBatchLimit overrides the per-run job page size.
func WithBatchLimit(n int) ProcessorOption {
	return func(p *Processor) { p.limit = n }
}

// WithRetryCutoff overrides the stuck-job cutoffs.
func WithRetryCutoff(maxAttempts int, maxAge time.Duration) ProcessorOption {
	return func(p *Processor) {
		p.maxTry = maxAttempts
		p.maxAge = maxAge
	}
}

// NewProcessor creates a reminder batch processor. clock and logger fall back
// to the real clock and slog.Default when nil.
func NewProcessor(jobs JobStore, owners OwnerStore, calls CallReader, chat ChatService, clock types.Clock, logger *slog.Logger, opts ...ProcessorOption) *Processor {
	if clock == nil {
		clock = types.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	p := &Processor{
		jobs:   jobs,
		owners: owners,
		calls:  calls,
		chat:   chat,
		clock:  clock,
		logger: logger,
		limit:  DefaultBatchLimit,
		maxTry: DefaultMaxAttempts,
		maxAge: DefaultMaxAge,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run processes one bounded batch of due jobs at the given reference time.
// A zero reference time means the processor's clock decides; a past one
// replays that instant, scoping due selection and staleness checks to it.
// Per-job failures are recorded on the job and counted; they never abort the
// batch. The returned error is reserved for failures that prevent the batch
// itself (the due query).
func (p *Processor) Run(ctx context.Context, referenceTime time.Time) (Stats, error) {
	now := referenceTime
	if now.IsZero() {
		now = p.clock.Now()
	}
	var stats Stats

	jobs, err := p.jobs.ListDue(ctx, now, p.limit)
	if err != nil {
		return stats, fmt.Errorf("listing due reminder jobs: %w", err)
	}

	for _, job := range jobs {
		stats.Processed++
		outcome, err := p.processJob(ctx, job, now)
		if err != nil {
			stats.Errors++
			p.recordJobFailure(ctx, job, err, now, &stats)
			continue
		}
		switch outcome {
		case outcomeSent:
			stats.Sent++
		case outcomeDiscarded:
			stats.DiscardedStale++
		case outcomeNoChannel:
			stats.NoChannel++
		}
	}

	p.logger.InfoContext(ctx, "reminder batch complete",
		"processed", stats.Processed,
		"sent", stats.Sent,
		"discarded_stale", stats.DiscardedStale,
		"no_channel", stats.NoChannel,
		"failed", stats.Failed,
		"errors", stats.Errors,
	)
	return stats, nil
}

type jobOutcome int

const (
	outcomeSent jobOutcome = iota
	outcomeDiscarded
	outcomeNoChannel
)

// processJob drives a single job through staleness validation and delivery.
func (p *Processor) processJob(ctx context.Context, job *types.ReminderJob, now time.Time) (jobOutcome, error) {
	source, channelID, ok, err := p.resolveOwner(ctx, job)
	if err != nil {
		return 0, err
	}
	if !ok {
		// Owner record is gone: nothing left to remind about.
		if err := p.jobs.Delete(ctx, job.ID); err != nil {
			return 0, err
		}
		p.logger.InfoContext(ctx, "reminder job discarded, owner missing",
			"job_id", job.ID,
			"owner_type", string(job.OwnerType),
			"owner_id", job.OwnerID,
		)
		return outcomeDiscarded, nil
	}

	authoritative, err := resolveAuthoritativeCall(ctx, p.calls, source)
	if err != nil {
		return 0, err
	}
	if authoritative == nil || !authoritative.DateTime.Equal(job.CallDateTime) {
		// The call was canceled or rescheduled after the job was created.
		if err := p.jobs.Delete(ctx, job.ID); err != nil {
			return 0, err
		}
		p.logger.InfoContext(ctx, "reminder job discarded as stale",
			"job_id", job.ID,
			"job_call_datetime", job.CallDateTime.Format(time.RFC3339),
		)
		return outcomeDiscarded, nil
	}

	if channelID == "" {
		// Close the job out rather than retrying forever against a channel
		// that does not exist.
		if err := p.jobs.MarkSent(ctx, job.ID, now, "no chat channel configured"); err != nil {
			return 0, err
		}
		p.logger.WarnContext(ctx, "reminder job closed without delivery, no chat channel",
			"job_id", job.ID,
			"owner_id", job.OwnerID,
		)
		return outcomeNoChannel, nil
	}

	botID, err := p.chat.EnsureBotUser(ctx)
	if err != nil {
		return 0, fmt.Errorf("ensuring bot user: %w", err)
	}
	if err := p.chat.AddChannelMember(ctx, channelID, botID); err != nil {
		return 0, fmt.Errorf("adding bot to channel %s: %w", channelID, err)
	}
	if err := p.chat.SendMessage(ctx, channelID, formatReminder(authoritative)); err != nil {
		return 0, fmt.Errorf("sending reminder to channel %s: %w", channelID, err)
	}

	if err := p.jobs.MarkSent(ctx, job.ID, now, ""); err != nil {
		return 0, err
	}
	return outcomeSent, nil
}

// resolveOwner loads the job's owning entity and derives the call source and
// delivery channel. ok is false when the owner no longer exists.
func (p *Processor) resolveOwner(ctx context.Context, job *types.ReminderJob) (source CallSource, channelID string, ok bool, err error) {
	channelID = job.ChatChannelID

	switch job.OwnerType {
	case types.OwnerSquad:
		squad, err := p.owners.GetSquad(ctx, job.OwnerID)
		if err != nil {
			return CallSource{}, "", false, err
		}
		if squad == nil {
			return CallSource{}, "", false, nil
		}
		if channelID == "" {
			channelID = squad.ChatChannelID
		}
		if squad.Premium {
			return inlineSource(squad.CallDateTime, squad.CallTimezone, squad.CallLocation, squad.CallTitle), channelID, true, nil
		}
		return CallSource{CallID: job.CallID}, channelID, true, nil

	case types.OwnerCoachingClient:
		client, err := p.owners.GetClient(ctx, job.OwnerID)
		if err != nil {
			return CallSource{}, "", false, err
		}
		if client == nil {
			return CallSource{}, "", false, nil
		}
		if channelID == "" {
			channelID = client.ChatChannelID
		}
		return inlineSource(client.CallDateTime, client.CallTimezone, client.CallLocation, client.CallTitle), channelID, true, nil

	default:
		return CallSource{}, "", false, fmt.Errorf("unknown reminder owner type %q", job.OwnerType)
	}
}

// inlineSource builds the inline variant. A nil datetime means the owner has
// no call scheduled anymore, which resolves to a stale job downstream.
func inlineSource(dt *time.Time, tz, location, title string) CallSource {
	if dt == nil {
		// Empty source; resolves to "no valid call" and the job is discarded.
		return CallSource{}
	}
	return CallSource{Inline: &CallSnapshot{
		DateTime: *dt,
		Timezone: tz,
		Location: location,
		Title:    title,
	}}
}

// recordJobFailure stores the error on the job and applies the stuck-job
// cutoff: past max attempts or max age the job transitions to terminal
// failed instead of staying eligible forever.
func (p *Processor) recordJobFailure(ctx context.Context, job *types.ReminderJob, jobErr error, now time.Time, stats *Stats) {
	p.logger.ErrorContext(ctx, "reminder job failed",
		"job_id", job.ID,
		"attempts", job.Attempts+1,
		"error", jobErr,
	)

	exceeded := job.Attempts+1 >= p.maxTry || now.Sub(job.CreatedAt) > p.maxAge
	if exceeded {
		reason := fmt.Sprintf("gave up after %d attempts: %v", job.Attempts+1, jobErr)
		if err := p.jobs.MarkFailed(ctx, job.ID, reason, now); err != nil {
			p.logger.ErrorContext(ctx, "failed to mark reminder job failed",
				"job_id", job.ID,
				"error", err,
			)
			return
		}
		stats.Failed++
		return
	}

	if err := p.jobs.RecordFailure(ctx, job.ID, jobErr.Error(), now); err != nil {
		p.logger.ErrorContext(ctx, "failed to record reminder job failure",
			"job_id", job.ID,
			"error", err,
		)
	}
}

// formatReminder renders the chat message for a call, with the start time
// expressed in the call's own timezone.
func formatReminder(call *CallSnapshot) string {
	local := call.DateTime.In(localtime.Location(call.Timezone))

	title := call.Title
	if title == "" {
		title = "Accountability call"
	}

	msg := fmt.Sprintf("Reminder: %s at %s", title, local.Format("3:04 PM Monday, Jan 2"))
	if call.Location != "" {
		msg += fmt.Sprintf(" (%s)", call.Location)
	}
	return msg
}
