// Package account manages registered accounts and their persistence.
package account

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Account represents a registered CloudShare account.
type Account struct {
	ID              string    `json:"id"`
	Email           string    `json:"email"`
	PasswordHash    string    `json:"-"`
	FirstName       *string   `json:"firstName,omitempty"`
	LastName        *string   `json:"lastName,omitempty"`
	Role            string    `json:"role"`
	EmailVerified   bool      `json:"emailVerified"`
	ProfilePhotoKey *string   `json:"-"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// ErrNotFound is returned when an account does not exist.
var ErrNotFound = errors.New("account not found")

// ErrAlreadyExists is returned when an email is already registered.
var ErrAlreadyExists = errors.New("account already exists")

const accountColumns = `id, email, password_hash, first_name, last_name, role,
	email_verified, profile_photo_url, created_at, updated_at`

// Repository handles all account database operations.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new Repository with the given connection pool.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

func scanAccount(row pgx.Row) (*Account, error) {
	a := &Account{}
	err := row.Scan(&a.ID, &a.Email, &a.PasswordHash, &a.FirstName, &a.LastName,
		&a.Role, &a.EmailVerified, &a.ProfilePhotoKey, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Create inserts a new account and returns the created record.
func (r *Repository) Create(ctx context.Context, email, passwordHash string, firstName, lastName *string) (*Account, error) {
	a, err := scanAccount(r.db.QueryRow(ctx,
		`INSERT INTO users (email, password_hash, first_name, last_name)
		 VALUES ($1, $2, $3, $4)
		 RETURNING `+accountColumns,
		email, passwordHash, firstName, lastName,
	))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrAlreadyExists
		}
		return nil, fmt.Errorf("create account: %w", err)
	}
	return a, nil
}

// GetByID fetches an account by its UUID.
func (r *Repository) GetByID(ctx context.Context, id string) (*Account, error) {
	a, err := scanAccount(r.db.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM users WHERE id = $1`, id))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("get account by id: %w", err)
	}
	return a, err
}

// GetByEmail fetches an account by its email address.
func (r *Repository) GetByEmail(ctx context.Context, email string) (*Account, error) {
	a, err := scanAccount(r.db.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM users WHERE email = $1`, email))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("get account by email: %w", err)
	}
	return a, err
}

// ExistsByEmail returns true if an account with the given email exists.
func (r *Repository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM users WHERE email = $1)`, email,
	).Scan(&exists)
	return exists, err
}

// SearchEmails returns up to limit account emails matching the query prefix,
// used for share-recipient autocomplete.
func (r *Repository) SearchEmails(ctx context.Context, query string, limit int) ([]string, error) {
	rows, err := r.db.Query(ctx,
		`SELECT email FROM users
		 WHERE email ILIKE $1 || '%'
		 ORDER BY email
		 LIMIT $2`,
		query, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("search emails: %w", err)
	}
	defer rows.Close()

	var emails []string
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, fmt.Errorf("scan email: %w", err)
		}
		emails = append(emails, email)
	}
	return emails, rows.Err()
}

// SetVerificationCode stores a fresh email verification code with its expiry.
func (r *Repository) SetVerificationCode(ctx context.Context, id, code string, expiresAt time.Time) error {
	_, err := r.db.Exec(ctx,
		`UPDATE users
		 SET verification_code = $2, verification_code_expires_at = $3, updated_at = NOW()
		 WHERE id = $1`,
		id, code, expiresAt,
	)
	return err
}

// ConsumeVerificationCode marks the account verified if the code matches and
// has not expired. Returns ErrNotFound when no matching active code exists.
func (r *Repository) ConsumeVerificationCode(ctx context.Context, email, code string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE users
		 SET email_verified = TRUE, verification_code = NULL,
		     verification_code_expires_at = NULL, updated_at = NOW()
		 WHERE email = $1 AND verification_code = $2
		   AND verification_code_expires_at > NOW()`,
		email, code,
	)
	if err != nil {
		return fmt.Errorf("consume verification code: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetResetToken stores a fresh password reset token with its expiry.
func (r *Repository) SetResetToken(ctx context.Context, id, token string, expiresAt time.Time) error {
	_, err := r.db.Exec(ctx,
		`UPDATE users
		 SET reset_token = $2, reset_token_expires_at = $3, updated_at = NOW()
		 WHERE id = $1`,
		id, token, expiresAt,
	)
	return err
}

// ResetPassword replaces the password hash if the reset token matches and has
// not expired, consuming the token. Returns ErrNotFound otherwise.
func (r *Repository) ResetPassword(ctx context.Context, email, token, passwordHash string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE users
		 SET password_hash = $3, reset_token = NULL,
		     reset_token_expires_at = NULL, updated_at = NOW()
		 WHERE email = $1 AND reset_token = $2
		   AND reset_token_expires_at > NOW()`,
		email, token, passwordHash,
	)
	if err != nil {
		return fmt.Errorf("reset password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetProfilePhoto stores the storage key of the account's profile photo.
func (r *Repository) SetProfilePhoto(ctx context.Context, id, key string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE users SET profile_photo_url = $2, updated_at = NOW() WHERE id = $1`,
		id, key,
	)
	return err
}

// Delete removes the account row. Files, shares, and the quota entry are
// removed by foreign-key cascade in the same statement.
func (r *Repository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// isUniqueViolation checks whether an error is a PostgreSQL unique_violation (code 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
