package db

import (
	"context"
	"time"

	"momentum/internal/types"
)

// ReminderRepository provides data access for the reminder_jobs table.
// The batch processor drives each job through its state transitions via this
// repository: select due, mark sent, record failure, mark failed, delete.
type ReminderRepository struct {
	db DBTX
}

// NewReminderRepository creates a new ReminderRepository backed by the given
// database connection (pool or transaction).
func NewReminderRepository(db DBTX) *ReminderRepository {
	return &ReminderRepository{db: db}
}

const reminderColumns = `id, owner_type, owner_id, call_id, call_datetime,
	call_timezone, call_location, call_title, chat_channel_id, reminder_time,
	sent, sent_at, attempts, error, last_error_at, created_at`

// ListDue returns unsent jobs whose reminder_time has passed, in a bounded
// page. Jobs are independent and keyed by distinct owners, so no cross-job
// ordering is required; created_at ordering just keeps retries from starving
// behind a growing backlog.
func (r *ReminderRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]*types.ReminderJob, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.Query(ctx,
		`SELECT `+reminderColumns+`
		 FROM reminder_jobs
		 WHERE sent = FALSE AND reminder_time <= $1
		 ORDER BY created_at
		 LIMIT $2`,
		now, limit)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list due reminder jobs", err)
	}
	defer rows.Close()

	var jobs []*types.ReminderJob
	for rows.Next() {
		var (
			j           types.ReminderJob
			ownerType   string
			callID      *string
			callTZ      *string
			callLoc     *string
			callTitle   *string
			channelID   *string
			sentAt      *time.Time
			errNote     *string
			lastErrorAt *time.Time
		)
		if scanErr := rows.Scan(
			&j.ID, &ownerType, &j.OwnerID, &callID, &j.CallDateTime,
			&callTZ, &callLoc, &callTitle, &channelID, &j.ReminderTime,
			&j.Sent, &sentAt, &j.Attempts, &errNote, &lastErrorAt, &j.CreatedAt,
		); scanErr != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan reminder job row", scanErr)
		}
		j.OwnerType = types.ReminderOwnerType(ownerType)
		j.CallID = derefString(callID)
		j.CallTimezone = derefString(callTZ)
		j.CallLocation = derefString(callLoc)
		j.CallTitle = derefString(callTitle)
		j.ChatChannelID = derefString(channelID)
		j.SentAt = sentAt
		j.Error = derefString(errNote)
		j.LastErrorAt = lastErrorAt
		jobs = append(jobs, &j)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating reminder job rows", err)
	}
	return jobs, nil
}

// MarkSent transitions a job to its terminal sent state. note is an optional
// annotation for jobs closed without delivery (e.g. no chat channel); it is
// stored in the error column so operators can see why nothing was sent.
func (r *ReminderRepository) MarkSent(ctx context.Context, jobID string, sentAt time.Time, note string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE reminder_jobs SET
			sent = TRUE,
			sent_at = $1,
			error = $2
		 WHERE id = $3 AND sent = FALSE`,
		sentAt,
		nilIfEmpty(note),
		jobID)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to mark reminder job sent", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundReminderJob, "reminder job not found or already sent", nil)
	}
	return nil
}

// RecordFailure leaves the job unsent, stores the error, and increments the
// attempt counter. The job remains eligible for the next run.
func (r *ReminderRepository) RecordFailure(ctx context.Context, jobID string, errMsg string, at time.Time) error {
	_, err := r.db.Exec(ctx,
		`UPDATE reminder_jobs SET
			error = $1,
			last_error_at = $2,
			attempts = attempts + 1
		 WHERE id = $3`,
		errMsg, at, jobID)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to record reminder job failure", err)
	}
	return nil
}

// MarkFailed transitions a job to the terminal failed state: sent is set so
// the job leaves the due query, with the failure reason preserved. Used when
// a job exceeds the attempt or age cutoff.
func (r *ReminderRepository) MarkFailed(ctx context.Context, jobID string, reason string, at time.Time) error {
	_, err := r.db.Exec(ctx,
		`UPDATE reminder_jobs SET
			sent = TRUE,
			error = $1,
			last_error_at = $2
		 WHERE id = $3 AND sent = FALSE`,
		reason, at, jobID)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to mark reminder job failed", err)
	}
	return nil
}

// Delete removes a job outright. Used for stale jobs: the call was canceled
// or rescheduled, so there is nothing left to remind about.
func (r *ReminderRepository) Delete(ctx context.Context, jobID string) error {
	_, err := r.db.Exec(ctx,
		`DELETE FROM reminder_jobs WHERE id = $1`, jobID)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to delete reminder job", err)
	}
	return nil
}
