package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"momentum/internal/types"
)

// SquadRepository provides read access to squads and their authoritative call
// records. The reminder batch processor uses it for staleness checks: the
// job's snapshot of the call must still match what these rows say at fire
// time.
type SquadRepository struct {
	db DBTX
}

// NewSquadRepository creates a new SquadRepository backed by the given
// database connection (pool or transaction).
func NewSquadRepository(db DBTX) *SquadRepository {
	return &SquadRepository{db: db}
}

// GetSquad retrieves a squad by ID. Returns (nil, nil) for a missing or
// soft-deleted squad: a vanished owner is a normal discard condition for the
// reminder processor, not an error.
func (r *SquadRepository) GetSquad(ctx context.Context, id string) (*types.Squad, error) {
	var (
		s         types.Squad
		channelID *string
		callDT    *time.Time
		callTZ    *string
		callLoc   *string
		callTitle *string
		deletedAt *time.Time
	)
	err := r.db.QueryRow(ctx,
		`SELECT id, name, premium, chat_channel_id, call_datetime,
		        call_timezone, call_location, call_title, deleted_at
		 FROM squads
		 WHERE id = $1`,
		id,
	).Scan(&s.ID, &s.Name, &s.Premium, &channelID, &callDT, &callTZ, &callLoc, &callTitle, &deletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get squad", err)
	}
	if deletedAt != nil {
		return nil, nil
	}

	s.ChatChannelID = derefString(channelID)
	s.CallDateTime = callDT
	s.CallTimezone = derefString(callTZ)
	s.CallLocation = derefString(callLoc)
	s.CallTitle = derefString(callTitle)
	return &s, nil
}

// GetCall retrieves an authoritative call record by ID. Returns (nil, nil)
// when the call no longer exists.
func (r *SquadRepository) GetCall(ctx context.Context, id string) (*types.Call, error) {
	var (
		c        types.Call
		status   string
		tz       *string
		location *string
		title    *string
	)
	err := r.db.QueryRow(ctx,
		`SELECT id, squad_id, status, start_datetime_utc, timezone, location, title
		 FROM calls
		 WHERE id = $1`,
		id,
	).Scan(&c.ID, &c.SquadID, &status, &c.StartDateTimeUTC, &tz, &location, &title)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get call", err)
	}

	c.Status = types.CallStatus(status)
	c.Timezone = derefString(tz)
	c.Location = derefString(location)
	c.Title = derefString(title)
	return &c, nil
}
