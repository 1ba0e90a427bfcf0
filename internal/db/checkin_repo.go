package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"momentum/internal/types"
)

// CheckinRepository reads daily check-in and weekly reflection completion
// records. These records are created by user action in the product app; the
// scheduling engine only ever reads them to suppress notifications after the
// corresponding check-in is done.
type CheckinRepository struct {
	db DBTX
}

// NewCheckinRepository creates a new CheckinRepository backed by the given
// database connection (pool or transaction).
func NewCheckinRepository(db DBTX) *CheckinRepository {
	return &CheckinRepository{db: db}
}

// GetDaily retrieves the check-in record for (user, local date, kind).
// Returns (nil, nil) when no record exists: an absent record simply means the
// user has not checked in, which is not an error.
func (r *CheckinRepository) GetDaily(ctx context.Context, userID, localDate string, kind types.CheckinKind) (*types.DailyCheckin, error) {
	var (
		c           types.DailyCheckin
		completedAt *time.Time
	)
	err := r.db.QueryRow(ctx,
		`SELECT user_id, local_date, kind, completed_at
		 FROM daily_checkins
		 WHERE user_id = $1 AND local_date = $2 AND kind = $3`,
		userID, localDate, string(kind),
	).Scan(&c.UserID, &c.LocalDate, &c.Kind, &completedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get daily checkin", err)
	}
	c.CompletedAt = completedAt
	return &c, nil
}

// GetWeekly retrieves the reflection record for (user, weekID). weekID is the
// local date of the week's Monday. Returns (nil, nil) when no record exists.
func (r *CheckinRepository) GetWeekly(ctx context.Context, userID, weekID string) (*types.WeeklyReflection, error) {
	var (
		w           types.WeeklyReflection
		completedAt *time.Time
	)
	err := r.db.QueryRow(ctx,
		`SELECT user_id, week_id, completed_at
		 FROM weekly_reflections
		 WHERE user_id = $1 AND week_id = $2`,
		userID, weekID,
	).Scan(&w.UserID, &w.WeekID, &completedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get weekly reflection", err)
	}
	w.CompletedAt = completedAt
	return &w, nil
}
