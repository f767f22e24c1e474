// Package file manages stored-object metadata, the upload/delete lifecycle,
// and the access policy deciding who may view a file.
package file

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cloudshare/service/internal/quota"
)

// Visibility values. PUBLIC files are viewable by any account; PRIVATE files
// only by the owner and explicitly shared recipients.
const (
	VisibilityPublic  = "PUBLIC"
	VisibilityPrivate = "PRIVATE"
)

// Lifecycle status values.
const (
	StatusUploading = "UPLOADING"
	StatusReady     = "READY"
	StatusDeleted   = "DELETED"
)

// File represents one stored object. The owner is fixed at creation and the
// storage key is immutable.
type File struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"ownerId"`
	Name        string    `json:"name"`
	StorageKey  string    `json:"-"`
	ContentType *string   `json:"contentType,omitempty"`
	Size        int64     `json:"size"`
	Visibility  string    `json:"visibility"`
	Favorite    bool      `json:"favorite"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// ErrNotFound is returned when a file does not exist or is not owned by the
// requester. The two cases are merged deliberately so ownership-scoped
// lookups never confirm the existence of other accounts' files.
var ErrNotFound = errors.New("file not found")

// ErrQuotaExhausted is returned by CreateReserving when the conditional quota
// increment rejects the write.
var ErrQuotaExhausted = errors.New("quota exhausted")

const fileColumns = `id, owner_id, name, storage_key, content_type, size,
	visibility, favorite, status, created_at, updated_at`

// Repository persists file metadata in PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new file Repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

func scanFile(row pgx.Row) (*File, error) {
	f := &File{}
	err := row.Scan(&f.ID, &f.OwnerID, &f.Name, &f.StorageKey, &f.ContentType,
		&f.Size, &f.Visibility, &f.Favorite, &f.Status, &f.CreatedAt, &f.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}

// CreateReserving inserts the file record and runs reserve inside the same
// transaction. reserve receives the transaction and must perform the
// conditional quota increment; when it reports no capacity the transaction is
// rolled back and ErrQuotaExhausted returned, so a record never persists
// without its ledger adjustment.
func (r *Repository) CreateReserving(ctx context.Context, f *File, reserve func(ctx context.Context, q quota.Querier) (bool, error)) (*File, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	ok, err := reserve(ctx, tx)
	if err != nil {
		return nil, fmt.Errorf("reserve quota: %w", err)
	}
	if !ok {
		return nil, ErrQuotaExhausted
	}

	created, err := scanFile(tx.QueryRow(ctx,
		`INSERT INTO files (owner_id, name, storage_key, content_type, size, visibility, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING `+fileColumns,
		f.OwnerID, f.Name, f.StorageKey, f.ContentType, f.Size, f.Visibility, f.Status,
	))
	if err != nil {
		return nil, fmt.Errorf("insert file: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return created, nil
}

// GetByID fetches a file regardless of ownership.
func (r *Repository) GetByID(ctx context.Context, id string) (*File, error) {
	f, err := scanFile(r.db.QueryRow(ctx,
		`SELECT `+fileColumns+` FROM files WHERE id = $1`, id))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("get file: %w", err)
	}
	return f, err
}

// GetByIDAndOwner fetches a file only when the account owns it.
func (r *Repository) GetByIDAndOwner(ctx context.Context, id, ownerID string) (*File, error) {
	f, err := scanFile(r.db.QueryRow(ctx,
		`SELECT `+fileColumns+` FROM files WHERE id = $1 AND owner_id = $2`,
		id, ownerID))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("get owned file: %w", err)
	}
	return f, err
}

func (r *Repository) queryFiles(ctx context.Context, query string, args ...any) ([]File, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	defer rows.Close()

	var out []File
	for rows.Next() {
		var f File
		if err := rows.Scan(&f.ID, &f.OwnerID, &f.Name, &f.StorageKey, &f.ContentType,
			&f.Size, &f.Visibility, &f.Favorite, &f.Status, &f.CreatedAt, &f.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// ListByOwner returns the account's files, newest first, optionally filtered
// by visibility.
func (r *Repository) ListByOwner(ctx context.Context, ownerID string, visibility *string) ([]File, error) {
	if visibility == nil {
		return r.queryFiles(ctx,
			`SELECT `+fileColumns+` FROM files
			 WHERE owner_id = $1 ORDER BY created_at DESC`,
			ownerID)
	}
	return r.queryFiles(ctx,
		`SELECT `+fileColumns+` FROM files
		 WHERE owner_id = $1 AND visibility = $2 ORDER BY created_at DESC`,
		ownerID, *visibility)
}

// ListFavoritesByOwner returns the account's favorite files, newest first.
func (r *Repository) ListFavoritesByOwner(ctx context.Context, ownerID string) ([]File, error) {
	return r.queryFiles(ctx,
		`SELECT `+fileColumns+` FROM files
		 WHERE owner_id = $1 AND favorite ORDER BY created_at DESC`,
		ownerID)
}

// StorageKeysByOwner returns the storage keys of all the account's files,
// used for blob cleanup when an account is deleted.
func (r *Repository) StorageKeysByOwner(ctx context.Context, ownerID string) ([]string, error) {
	rows, err := r.db.Query(ctx,
		`SELECT storage_key FROM files WHERE owner_id = $1`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list storage keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scan storage key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// SetVisibility updates the file's visibility, scoped to the owner.
func (r *Repository) SetVisibility(ctx context.Context, id, ownerID, visibility string) (*File, error) {
	f, err := scanFile(r.db.QueryRow(ctx,
		`UPDATE files SET visibility = $3, updated_at = NOW()
		 WHERE id = $1 AND owner_id = $2
		 RETURNING `+fileColumns,
		id, ownerID, visibility))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("set visibility: %w", err)
	}
	return f, err
}

// SetFavorite updates the file's favorite flag, scoped to the owner.
func (r *Repository) SetFavorite(ctx context.Context, id, ownerID string, favorite bool) (*File, error) {
	f, err := scanFile(r.db.QueryRow(ctx,
		`UPDATE files SET favorite = $3, updated_at = NOW()
		 WHERE id = $1 AND owner_id = $2
		 RETURNING `+fileColumns,
		id, ownerID, favorite))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("set favorite: %w", err)
	}
	return f, err
}

// DeleteOwned removes the file record, scoped to the owner, and returns the
// deleted row so the caller can clean up the blob.
func (r *Repository) DeleteOwned(ctx context.Context, id, ownerID string) (*File, error) {
	f, err := scanFile(r.db.QueryRow(ctx,
		`DELETE FROM files WHERE id = $1 AND owner_id = $2
		 RETURNING `+fileColumns,
		id, ownerID))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("delete file: %w", err)
	}
	return f, err
}
