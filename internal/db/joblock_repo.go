package db

import (
	"context"
	"time"

	"momentum/internal/types"
)

// JobLockRepository provides best-effort distributed locking via the
// job_locks table. Hourly tasks acquire a "task:hour" lock so a duplicate
// trigger within the same hour short-circuits without re-scanning thousands
// of users. The lock is purely a cost reducer: the dedup guard and the
// reminder sent flag remain the correctness mechanisms under at-least-once
// invocation.
type JobLockRepository struct {
	db    DBTX
	clock types.Clock
}

// NewJobLockRepository creates a new JobLockRepository backed by the given
// database connection (pool or transaction).
func NewJobLockRepository(db DBTX, clock types.Clock) *JobLockRepository {
	if clock == nil {
		clock = types.RealClock{}
	}
	return &JobLockRepository{db: db, clock: clock}
}

// Acquire attempts to insert a lock row. Returns true if acquired, false if
// the lock already exists and has not expired. The lockID is typically
// "task:timestamp_hour" (e.g., "hourly_notifications:2026-03-04T17").
//
// Uses INSERT ... ON CONFLICT DO UPDATE so an expired lock is reclaimed
// atomically. The expiry is computed as a concrete timestamp in Go to avoid
// PostgreSQL interval parsing incompatibilities with Go's duration format.
func (r *JobLockRepository) Acquire(ctx context.Context, lockID string, workerID string, ttl time.Duration) (bool, error) {
	now := r.clock.Now()
	expiresAt := now.Add(ttl)

	tag, err := r.db.Exec(ctx,
		`INSERT INTO job_locks (id, worker_id, locked_at, expires_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO UPDATE
		   SET worker_id = EXCLUDED.worker_id,
		       locked_at = EXCLUDED.locked_at,
		       expires_at = EXCLUDED.expires_at
		   WHERE job_locks.expires_at < $3`,
		lockID,
		workerID,
		now,
		expiresAt)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to acquire job lock", err)
	}

	// RowsAffected is 1 if the INSERT succeeded (new row) or if the
	// ON CONFLICT UPDATE matched (expired lock reclaimed). It is 0 if
	// the lock exists and has not expired (another worker holds it).
	return tag.RowsAffected() > 0, nil
}
