// Package share owns the directed (file, recipient) sharing relations.
package share

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Grant is a read-only permission record from a file's owner to a recipient.
// At most one grant exists per (file, recipient) pair.
type Grant struct {
	ID          string    `json:"id"`
	FileID      string    `json:"fileId"`
	OwnerID     string    `json:"-"`
	RecipientID string    `json:"-"`
	SharedAt    time.Time `json:"sharedOn"`
}

// SharedFile is a grant joined with the file and participant metadata needed
// by share listings.
type SharedFile struct {
	FileID      string    `json:"fileId"`
	Name        string    `json:"name"`
	ContentType *string   `json:"contentType,omitempty"`
	Size        int64     `json:"size"`
	Visibility  string    `json:"visibility"`
	StorageKey  string    `json:"-"`
	SharedBy    string    `json:"sharedBy"`
	SharedTo    string    `json:"sharedTo"`
	SharedAt    time.Time `json:"sharedOn"`
}

const grantColumns = `id, file_id, owner_id, recipient_id, shared_at`

// Repository persists share grants in PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new share Repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

func scanGrant(row pgx.Row) (*Grant, error) {
	g := &Grant{}
	err := row.Scan(&g.ID, &g.FileID, &g.OwnerID, &g.RecipientID, &g.SharedAt)
	if err != nil {
		return nil, err
	}
	return g, nil
}

// Upsert inserts a grant for (fileID, recipientID), returning the existing
// grant unchanged when one is already present.
func (r *Repository) Upsert(ctx context.Context, fileID, ownerID, recipientID string) (*Grant, error) {
	_, err := r.db.Exec(ctx,
		`INSERT INTO file_shares (file_id, owner_id, recipient_id)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (file_id, recipient_id) DO NOTHING`,
		fileID, ownerID, recipientID,
	)
	if err != nil {
		return nil, fmt.Errorf("insert share: %w", err)
	}

	g, err := scanGrant(r.db.QueryRow(ctx,
		`SELECT `+grantColumns+` FROM file_shares
		 WHERE file_id = $1 AND recipient_id = $2`,
		fileID, recipientID,
	))
	if err != nil {
		return nil, fmt.Errorf("get share: %w", err)
	}
	return g, nil
}

// Exists reports whether a grant exists for (fileID, recipientID).
func (r *Repository) Exists(ctx context.Context, fileID, recipientID string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS(
		     SELECT 1 FROM file_shares WHERE file_id = $1 AND recipient_id = $2
		 )`,
		fileID, recipientID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check share: %w", err)
	}
	return exists, nil
}

const sharedFileQuery = `
	SELECT f.id, f.name, f.content_type, f.size, f.visibility, f.storage_key,
	       owner.email, recipient.email, s.shared_at
	FROM file_shares s
	JOIN files f ON f.id = s.file_id
	JOIN users owner ON owner.id = s.owner_id
	JOIN users recipient ON recipient.id = s.recipient_id`

func (r *Repository) querySharedFiles(ctx context.Context, query string, args ...any) ([]SharedFile, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list shares: %w", err)
	}
	defer rows.Close()

	var out []SharedFile
	for rows.Next() {
		var sf SharedFile
		if err := rows.Scan(&sf.FileID, &sf.Name, &sf.ContentType, &sf.Size,
			&sf.Visibility, &sf.StorageKey, &sf.SharedBy, &sf.SharedTo, &sf.SharedAt); err != nil {
			return nil, fmt.Errorf("scan share: %w", err)
		}
		out = append(out, sf)
	}
	return out, rows.Err()
}

// ListByRecipient returns files shared with the account, most recent first.
func (r *Repository) ListByRecipient(ctx context.Context, recipientID string) ([]SharedFile, error) {
	return r.querySharedFiles(ctx,
		sharedFileQuery+` WHERE s.recipient_id = $1 ORDER BY s.shared_at DESC`,
		recipientID,
	)
}

// ListByOwner returns files the account has shared out, most recent first.
func (r *Repository) ListByOwner(ctx context.Context, ownerID string) ([]SharedFile, error) {
	return r.querySharedFiles(ctx,
		sharedFileQuery+` WHERE s.owner_id = $1 ORDER BY s.shared_at DESC`,
		ownerID,
	)
}

// GetWithDetails returns the share listing row for a single grant, used to
// echo the result of a share operation.
func (r *Repository) GetWithDetails(ctx context.Context, fileID, recipientID string) (*SharedFile, error) {
	out, err := r.querySharedFiles(ctx,
		sharedFileQuery+` WHERE s.file_id = $1 AND s.recipient_id = $2`,
		fileID, recipientID,
	)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, errors.New("share not found")
	}
	return &out[0], nil
}
