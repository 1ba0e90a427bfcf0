package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"momentum/internal/types"
)

// UserRepository provides read access to user records for the scheduling
// engine, plus the single write the billing sync task performs: refreshing
// the billing snapshot columns. Everything else about a user is owned by the
// account service and is read-only here.
type UserRepository struct {
	db DBTX
}

// NewUserRepository creates a new UserRepository backed by the given database
// connection (pool or transaction).
func NewUserRepository(db DBTX) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, email, timezone, onboarding_completed,
	billing_status, billing_period_end, stripe_customer_id, billing_synced_at,
	created_at`

// Get retrieves a single user by ID.
func (r *UserRepository) Get(ctx context.Context, id string) (*types.User, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id)

	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundUser, "user not found", err)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get user", err)
	}
	return u, nil
}

// ListNotifiable returns a page of users eligible for hourly notification
// evaluation: onboarding complete, ordered by id for stable keyset paging.
// Billing and timezone gates are applied downstream by the eligibility
// filter, not in SQL, so their semantics live in exactly one place.
//
// afterID is the exclusive lower bound for keyset pagination; pass "" for the
// first page.
func (r *UserRepository) ListNotifiable(ctx context.Context, afterID string, limit int) ([]*types.User, error) {
	if limit <= 0 {
		limit = 200
	}

	rows, err := r.db.Query(ctx,
		`SELECT `+userColumns+`
		 FROM users
		 WHERE onboarding_completed = TRUE AND id > $1
		 ORDER BY id
		 LIMIT $2`,
		afterID, limit)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list notifiable users", err)
	}
	defer rows.Close()

	var users []*types.User
	for rows.Next() {
		u, scanErr := scanUser(rows)
		if scanErr != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan user row", scanErr)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating user rows", err)
	}
	return users, nil
}

// ListStaleBilling returns users whose billing snapshot has not been
// refreshed since the cutoff and who have a Stripe customer to refresh from.
// Used by the billing sync task.
func (r *UserRepository) ListStaleBilling(ctx context.Context, cutoff time.Time, limit int) ([]*types.User, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.Query(ctx,
		`SELECT `+userColumns+`
		 FROM users
		 WHERE stripe_customer_id IS NOT NULL
		   AND (billing_synced_at IS NULL OR billing_synced_at < $1)
		 ORDER BY billing_synced_at NULLS FIRST
		 LIMIT $2`,
		cutoff, limit)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list stale billing users", err)
	}
	defer rows.Close()

	var users []*types.User
	for rows.Next() {
		u, scanErr := scanUser(rows)
		if scanErr != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan user row", scanErr)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating user rows", err)
	}
	return users, nil
}

// UpdateBillingSnapshot writes a refreshed billing snapshot onto the user
// record. syncedAt is recorded so the sync task can find stale rows.
func (r *UserRepository) UpdateBillingSnapshot(ctx context.Context, userID string, snapshot types.BillingSnapshot) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE users SET
			billing_status = $1,
			billing_period_end = $2,
			billing_synced_at = $3
		 WHERE id = $4`,
		string(snapshot.Status),
		nilIfZeroTime(snapshot.CurrentPeriodEnd),
		snapshot.SyncedAt,
		userID)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update billing snapshot", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundUser, "user not found", nil)
	}
	return nil
}

// scanUser scans one user row from either a pgx.Row or pgx.Rows.
func scanUser(row pgx.Row) (*types.User, error) {
	var (
		u             types.User
		timezone      *string
		billingStatus *string
		periodEnd     *time.Time
		customerID    *string
		syncedAt      *time.Time
	)

	if err := row.Scan(
		&u.ID,
		&u.Email,
		&timezone,
		&u.OnboardingCompleted,
		&billingStatus,
		&periodEnd,
		&customerID,
		&syncedAt,
		&u.CreatedAt,
	); err != nil {
		return nil, err
	}

	u.Timezone = derefString(timezone)

	// A NULL billing_status means the user predates billing entirely; the
	// access predicate treats the absent snapshot as ungated.
	if billingStatus != nil {
		snap := &types.BillingSnapshot{
			Status:           types.BillingStatus(*billingStatus),
			StripeCustomerID: derefString(customerID),
		}
		if periodEnd != nil {
			snap.CurrentPeriodEnd = *periodEnd
		}
		if syncedAt != nil {
			snap.SyncedAt = *syncedAt
		}
		u.Billing = snap
	}

	return &u, nil
}
