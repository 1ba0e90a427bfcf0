package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"momentum/internal/types"
)

// NotificationRepository provides data access for the notifications table.
// The ExistsInWindow query is the persistence half of the dedup guard: every
// dedup decision is re-derived from these rows on every run, never from any
// in-process state.
type NotificationRepository struct {
	db DBTX
}

// NewNotificationRepository creates a new NotificationRepository backed by the
// given database connection (pool or transaction).
func NewNotificationRepository(db DBTX) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Create inserts a new notification record. The caller must set the ID and
// required fields before calling. CreatedAt defaults to NOW() when zero.
func (r *NotificationRepository) Create(ctx context.Context, n *types.Notification) error {
	row := r.db.QueryRow(ctx,
		`INSERT INTO notifications
		 (id, user_id, type, title, body, action_route, read, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, FALSE, COALESCE($7, NOW()))
		 RETURNING created_at`,
		n.ID,
		n.UserID,
		string(n.Type),
		n.Title,
		n.Body,
		n.ActionRoute,
		nilIfZeroTime(n.CreatedAt),
	)
	if err := row.Scan(&n.CreatedAt); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create notification", err)
	}
	return nil
}

// ExistsInWindow reports whether the user has any notification whose type is
// in typeClass and whose created_at falls within [start, end). The window
// bounds are UTC instants computed from the user's local day or week.
func (r *NotificationRepository) ExistsInWindow(ctx context.Context, userID string, typeClass []types.NotificationType, start, end time.Time) (bool, error) {
	if len(typeClass) == 0 {
		return false, nil
	}

	placeholders := make([]string, len(typeClass))
	args := []any{userID, start, end}
	for i, t := range typeClass {
		placeholders[i] = fmt.Sprintf("$%d", i+4)
		args = append(args, string(t))
	}

	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM notifications
			WHERE user_id = $1
			  AND created_at >= $2 AND created_at < $3
			  AND type IN (`+strings.Join(placeholders, ", ")+`)
		 )`,
		args...,
	).Scan(&exists)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to query notification window", err)
	}
	return exists, nil
}

// ListOlderThan returns notification records created before the cutoff, in a
// bounded batch ordered by created_at. Used by the archival task.
func (r *NotificationRepository) ListOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]*types.Notification, error) {
	if limit <= 0 {
		limit = 500
	}

	rows, err := r.db.Query(ctx,
		`SELECT id, user_id, type, title, body, action_route, read, created_at
		 FROM notifications
		 WHERE created_at < $1
		 ORDER BY created_at
		 LIMIT $2`,
		cutoff, limit)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list old notifications", err)
	}
	defer rows.Close()

	var results []*types.Notification
	for rows.Next() {
		var (
			n           types.Notification
			notifType   string
			actionRoute *string
		)
		if scanErr := rows.Scan(&n.ID, &n.UserID, &notifType, &n.Title, &n.Body, &actionRoute, &n.Read, &n.CreatedAt); scanErr != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan notification row", scanErr)
		}
		n.Type = types.NotificationType(notifType)
		n.ActionRoute = derefString(actionRoute)
		results = append(results, &n)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating notification rows", err)
	}
	return results, nil
}

// DeleteByIDs removes notification records by ID. Returns the count of
// deleted rows. Used by the archival task after a batch is safely uploaded.
func (r *NotificationRepository) DeleteByIDs(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	tag, err := r.db.Exec(ctx,
		`DELETE FROM notifications WHERE id = ANY($1)`, ids)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to delete notifications", err)
	}
	return int(tag.RowsAffected()), nil
}
