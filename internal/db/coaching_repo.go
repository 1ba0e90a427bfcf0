package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"momentum/internal/types"
)

// CoachingRepository provides read access to coaching client records for the
// reminder batch processor. Mirrors SquadRepository: a missing or
// soft-deleted owner returns (nil, nil) so the processor can discard the job
// as a normal transition.
type CoachingRepository struct {
	db DBTX
}

// NewCoachingRepository creates a new CoachingRepository backed by the given
// database connection (pool or transaction).
func NewCoachingRepository(db DBTX) *CoachingRepository {
	return &CoachingRepository{db: db}
}

// GetClient retrieves a coaching client by ID. Returns (nil, nil) when the
// record is missing or soft-deleted.
func (r *CoachingRepository) GetClient(ctx context.Context, id string) (*types.CoachingClient, error) {
	var (
		c         types.CoachingClient
		channelID *string
		callDT    *time.Time
		callTZ    *string
		callLoc   *string
		callTitle *string
		deletedAt *time.Time
	)
	err := r.db.QueryRow(ctx,
		`SELECT id, coach_id, client_user_id, chat_channel_id, call_datetime,
		        call_timezone, call_location, call_title, deleted_at
		 FROM coaching_clients
		 WHERE id = $1`,
		id,
	).Scan(&c.ID, &c.CoachID, &c.ClientUserID, &channelID, &callDT, &callTZ, &callLoc, &callTitle, &deletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get coaching client", err)
	}
	if deletedAt != nil {
		return nil, nil
	}

	c.ChatChannelID = derefString(channelID)
	c.CallDateTime = callDT
	c.CallTimezone = derefString(callTZ)
	c.CallLocation = derefString(callLoc)
	c.CallTitle = derefString(callTitle)
	return &c, nil
}
