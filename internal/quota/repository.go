// Package quota owns the per-account file-count ledger and the subscription
// status state machine.
package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Subscription status values. Activation always carries a new limit;
// deactivation recomputes a safe floor.
const (
	StatusInactive = "inactive"
	StatusActive   = "active"
)

// Entry is one account's ledger row. UsedFiles is a cached counter that must
// always equal the count of the account's non-deleted files.
type Entry struct {
	AccountID          string    `json:"-"`
	LimitFiles         int       `json:"limit"`
	UsedFiles          int       `json:"used"`
	SubscriptionStatus string    `json:"plan"`
	SubscriptionID     *string   `json:"-"`
	CreatedAt          time.Time `json:"-"`
	UpdatedAt          time.Time `json:"-"`
}

// Remaining returns how many more files the account may store, floored at zero.
func (e *Entry) Remaining() int {
	if r := e.LimitFiles - e.UsedFiles; r > 0 {
		return r
	}
	return 0
}

// Subscribed reports whether the account has an active subscription.
func (e *Entry) Subscribed() bool {
	return e.SubscriptionStatus == StatusActive
}

// ErrNoEntry is returned when no ledger entry exists for a lookup that does
// not create one.
var ErrNoEntry = errors.New("quota entry not found")

// Querier is the subset of pgx operations the ledger needs. It is satisfied
// by *pgxpool.Pool and by pgx.Tx, so callers can run ledger statements inside
// their own transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const entryColumns = `user_id, limit_files, used_files, subscription_status,
	subscription_id, created_at, updated_at`

// Repository persists ledger entries in PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new quota Repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

func scanEntry(row pgx.Row) (*Entry, error) {
	e := &Entry{}
	err := row.Scan(&e.AccountID, &e.LimitFiles, &e.UsedFiles,
		&e.SubscriptionStatus, &e.SubscriptionID, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoEntry
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

// GetOrCreate returns the account's ledger entry, creating one with the free
// tier limit on first access.
func (r *Repository) GetOrCreate(ctx context.Context, accountID string, freeTierLimit int) (*Entry, error) {
	_, err := r.db.Exec(ctx,
		`INSERT INTO user_quotas (user_id, limit_files)
		 VALUES ($1, $2)
		 ON CONFLICT (user_id) DO NOTHING`,
		accountID, freeTierLimit,
	)
	if err != nil {
		return nil, fmt.Errorf("ensure quota entry: %w", err)
	}

	e, err := scanEntry(r.db.QueryRow(ctx,
		`SELECT `+entryColumns+` FROM user_quotas WHERE user_id = $1`, accountID))
	if err != nil {
		return nil, fmt.Errorf("get quota entry: %w", err)
	}
	return e, nil
}

// TryIncrement adds n to the account's used counter only if the result stays
// within the limit, in a single conditional update. It returns false when the
// account is at its limit. Pass a pgx.Tx as q to reserve quota atomically with
// a catalog write.
func (r *Repository) TryIncrement(ctx context.Context, q Querier, accountID string, n int) (bool, error) {
	if q == nil {
		q = r.db
	}
	tag, err := q.Exec(ctx,
		`UPDATE user_quotas
		 SET used_files = used_files + $2, updated_at = NOW()
		 WHERE user_id = $1 AND used_files + $2 <= limit_files`,
		accountID, n,
	)
	if err != nil {
		return false, fmt.Errorf("increment quota: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Decrement subtracts n from the used counter, flooring at zero. It returns
// the counter value before the update so callers can detect a clamp.
func (r *Repository) Decrement(ctx context.Context, accountID string, n int) (before int, err error) {
	err = r.db.QueryRow(ctx,
		`WITH old AS (
		     SELECT used_files FROM user_quotas WHERE user_id = $1 FOR UPDATE
		 )
		 UPDATE user_quotas q
		 SET used_files = GREATEST(0, q.used_files - $2), updated_at = NOW()
		 FROM old
		 WHERE q.user_id = $1
		 RETURNING old.used_files`,
		accountID, n,
	).Scan(&before)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNoEntry
	}
	if err != nil {
		return 0, fmt.Errorf("decrement quota: %w", err)
	}
	return before, nil
}

// ActivateSubscription marks the entry active, records the subscription
// reference, and raises the limit. Repeating the call with the same reference
// is a no-op by construction.
func (r *Repository) ActivateSubscription(ctx context.Context, accountID, subscriptionID string, newLimit int) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE user_quotas
		 SET subscription_status = $2, subscription_id = $3, limit_files = $4, updated_at = NOW()
		 WHERE user_id = $1`,
		accountID, StatusActive, subscriptionID, newLimit,
	)
	if err != nil {
		return fmt.Errorf("activate subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNoEntry
	}
	return nil
}

// DeactivateBySubscriptionID finds the entry holding the subscription
// reference and reverts it to the free tier. The limit never shrinks below
// current usage, so existing files are not orphaned by a downgrade. Returns
// false when no entry holds the reference.
func (r *Repository) DeactivateBySubscriptionID(ctx context.Context, subscriptionID string, freeTierLimit int) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE user_quotas
		 SET subscription_status = $2,
		     limit_files = GREATEST($3, used_files),
		     updated_at = NOW()
		 WHERE subscription_id = $1`,
		subscriptionID, StatusInactive, freeTierLimit,
	)
	if err != nil {
		return false, fmt.Errorf("deactivate subscription: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
