package file

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/cloudshare/service/internal/account"
	"github.com/cloudshare/service/internal/quota"
	"github.com/cloudshare/service/internal/share"
	"github.com/cloudshare/service/internal/storage"
)

// ErrEmailNotVerified is returned when an unverified account attempts an
// upload.
var ErrEmailNotVerified = errors.New("email not verified: please verify your email to upload files")

// ErrInvalidVisibility is returned for visibility values other than PUBLIC
// or PRIVATE.
var ErrInvalidVisibility = errors.New("visibility must be PUBLIC or PRIVATE")

// QuotaExceededError is returned when an upload would push the account past
// its file limit. Subscribed distinguishes "hit plan limit" from "free tier,
// upgrade required".
type QuotaExceededError struct {
	Subscribed bool
	Limit      int
	PlanLimit  int
}

func (e *QuotaExceededError) Error() string {
	if e.Subscribed {
		return fmt.Sprintf("you have reached your plan limit of %d files; delete some files or upgrade", e.Limit)
	}
	return fmt.Sprintf("free plan limit reached; purchase the Pro plan to upload up to %d files", e.PlanLimit)
}

// TooLargeError is returned when an upload exceeds the configured maximum size.
type TooLargeError struct {
	Name     string
	MaxBytes int64
}

func (e *TooLargeError) Error() string {
	return fmt.Sprintf("file %q too large (max %d bytes)", e.Name, e.MaxBytes)
}

// Catalog is the metadata persistence surface. Satisfied by *Repository.
type Catalog interface {
	CreateReserving(ctx context.Context, f *File, reserve func(ctx context.Context, q quota.Querier) (bool, error)) (*File, error)
	GetByID(ctx context.Context, id string) (*File, error)
	GetByIDAndOwner(ctx context.Context, id, ownerID string) (*File, error)
	ListByOwner(ctx context.Context, ownerID string, visibility *string) ([]File, error)
	ListFavoritesByOwner(ctx context.Context, ownerID string) ([]File, error)
	SetVisibility(ctx context.Context, id, ownerID, visibility string) (*File, error)
	SetFavorite(ctx context.Context, id, ownerID string, favorite bool) (*File, error)
	DeleteOwned(ctx context.Context, id, ownerID string) (*File, error)
}

// Ledger is the quota surface the lifecycle needs. Satisfied by *quota.Service.
type Ledger interface {
	GetOrCreate(ctx context.Context, accountID string) (*quota.Entry, error)
	TryIncrement(ctx context.Context, q quota.Querier, accountID string, n int) (bool, error)
	Decrement(ctx context.Context, accountID string, n int) error
}

// Shares is the share-registry surface. Satisfied by *share.Service.
type Shares interface {
	ShareChecker
	Share(ctx context.Context, fileID, ownerID, recipientEmail string) (*share.Grant, error)
	ListSharedWithMe(ctx context.Context, accountID string) ([]share.SharedFile, error)
	ListSharedByMe(ctx context.Context, accountID string) ([]share.SharedFile, error)
	GetSharedFile(ctx context.Context, fileID, recipientID string) (*share.SharedFile, error)
}

// Directory resolves the acting account. Satisfied by *account.Repository.
type Directory interface {
	GetByID(ctx context.Context, id string) (*account.Account, error)
}

// UploadInput describes one incoming object.
type UploadInput struct {
	Name        string
	Size        int64
	ContentType string
	Reader      io.Reader
}

// Service orchestrates the upload/delete/share/visibility lifecycle, enforcing
// quota rules and delegating read decisions to the access policy.
type Service struct {
	catalog  Catalog
	ledger   Ledger
	shares   Shares
	accounts Directory
	store    storage.Storage

	maxFileSizeBytes int64
	planFileLimit    int
}

// NewService creates a new file Service.
func NewService(catalog Catalog, ledger Ledger, shares Shares, accounts Directory, store storage.Storage, maxFileSizeBytes int64, planFileLimit int) *Service {
	return &Service{
		catalog:          catalog,
		ledger:           ledger,
		shares:           shares,
		accounts:         accounts,
		store:            store,
		maxFileSizeBytes: maxFileSizeBytes,
		planFileLimit:    planFileLimit,
	}
}

// MaxFileSizeBytes returns the configured per-file size cap.
func (s *Service) MaxFileSizeBytes() int64 {
	return s.maxFileSizeBytes
}

// Upload stores the object, creates a READY catalog record owned by the
// account, and increments the ledger. The blob is written first; the catalog
// insert and the conditional ledger increment share one transaction, and on
// any transaction failure the blob is deleted again (best-effort), so the
// three effects act as one unit.
func (s *Service) Upload(ctx context.Context, accountID string, in UploadInput) (*File, error) {
	actor, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("resolve account: %w", err)
	}
	if !actor.EmailVerified {
		return nil, ErrEmailNotVerified
	}

	entry, err := s.ledger.GetOrCreate(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("get quota: %w", err)
	}
	if entry.Remaining() < 1 {
		return nil, &QuotaExceededError{
			Subscribed: entry.Subscribed(),
			Limit:      entry.LimitFiles,
			PlanLimit:  s.planFileLimit,
		}
	}
	if in.Size > s.maxFileSizeBytes {
		return nil, &TooLargeError{Name: in.Name, MaxBytes: s.maxFileSizeBytes}
	}

	key := storage.ObjectKey(in.Name)
	if err := s.store.Upload(ctx, key, in.Reader, in.Size, in.ContentType); err != nil {
		return nil, fmt.Errorf("store object: %w", err)
	}

	var contentType *string
	if in.ContentType != "" {
		contentType = &in.ContentType
	}
	created, err := s.catalog.CreateReserving(ctx, &File{
		OwnerID:     accountID,
		Name:        in.Name,
		StorageKey:  key,
		ContentType: contentType,
		Size:        in.Size,
		Visibility:  VisibilityPrivate,
		Status:      StatusReady,
	}, func(ctx context.Context, q quota.Querier) (bool, error) {
		return s.ledger.TryIncrement(ctx, q, accountID, 1)
	})
	if err != nil {
		// The blob is already written; remove it so a failed transaction
		// leaves no orphaned object behind.
		if delErr := s.store.Delete(ctx, key); delErr != nil {
			log.Printf("file: orphaned blob %s after failed upload: %v", key, delErr)
		}
		if errors.Is(err, ErrQuotaExhausted) {
			// Lost the race against a concurrent upload by the same account.
			return nil, &QuotaExceededError{
				Subscribed: entry.Subscribed(),
				Limit:      entry.LimitFiles,
				PlanLimit:  s.planFileLimit,
			}
		}
		return nil, fmt.Errorf("create file record: %w", err)
	}
	return created, nil
}

// Delete removes the file. The catalog row is the source of truth for "file
// gone": its removal commits first, and both the ledger decrement and the
// blob delete are best-effort, logged on failure.
func (s *Service) Delete(ctx context.Context, accountID, fileID string) error {
	f, err := s.catalog.DeleteOwned(ctx, fileID, accountID)
	if err != nil {
		return err
	}

	if err := s.ledger.Decrement(ctx, accountID, 1); err != nil {
		log.Printf("file: quota decrement failed for account %s after deleting %s: %v", accountID, fileID, err)
	}
	if err := s.store.Delete(ctx, f.StorageKey); err != nil {
		log.Printf("file: blob delete failed for %s: %v", f.StorageKey, err)
	}
	return nil
}

// SetVisibility updates the file's visibility. Only the owner may change it.
func (s *Service) SetVisibility(ctx context.Context, accountID, fileID, visibility string) (*File, error) {
	if visibility != VisibilityPublic && visibility != VisibilityPrivate {
		return nil, ErrInvalidVisibility
	}
	return s.catalog.SetVisibility(ctx, fileID, accountID, visibility)
}

// SetFavorite updates the file's favorite flag. Only the owner may change it.
func (s *Service) SetFavorite(ctx context.Context, accountID, fileID string, favorite bool) (*File, error) {
	return s.catalog.SetFavorite(ctx, fileID, accountID, favorite)
}

// View fetches the file and resolves the access decision for the requester.
// ErrNotFound means the id is unknown; a deny decision means the file exists
// but access was refused.
func (s *Service) View(ctx context.Context, accountID, fileID string) (*File, Decision, error) {
	f, err := s.catalog.GetByID(ctx, fileID)
	if err != nil {
		return nil, Decision{}, err
	}
	d, err := ResolveAccess(ctx, f, accountID, s.shares)
	if err != nil {
		return nil, Decision{}, fmt.Errorf("resolve access: %w", err)
	}
	return f, d, nil
}

// List returns the account's own files, optionally filtered by visibility.
func (s *Service) List(ctx context.Context, accountID string, visibility *string) ([]File, error) {
	if visibility != nil && *visibility != VisibilityPublic && *visibility != VisibilityPrivate {
		return nil, ErrInvalidVisibility
	}
	return s.catalog.ListByOwner(ctx, accountID, visibility)
}

// ListFavorites returns the account's favorite files.
func (s *Service) ListFavorites(ctx context.Context, accountID string) ([]File, error) {
	return s.catalog.ListFavoritesByOwner(ctx, accountID)
}

// ListByAccount returns all of targetID's files when the requester is the
// target, and only PUBLIC files otherwise.
func (s *Service) ListByAccount(ctx context.Context, requesterID, targetID string) ([]File, error) {
	if requesterID == targetID {
		return s.catalog.ListByOwner(ctx, targetID, nil)
	}
	public := VisibilityPublic
	return s.catalog.ListByOwner(ctx, targetID, &public)
}

// Share grants recipientEmail read access to the file. The requester must own
// the file; a lookup miss (absent or not owned) returns ErrNotFound.
func (s *Service) Share(ctx context.Context, accountID, fileID, recipientEmail string) (*share.SharedFile, error) {
	if _, err := s.catalog.GetByIDAndOwner(ctx, fileID, accountID); err != nil {
		return nil, err
	}
	g, err := s.shares.Share(ctx, fileID, accountID, recipientEmail)
	if err != nil {
		return nil, err
	}
	return s.shares.GetSharedFile(ctx, g.FileID, g.RecipientID)
}

// SharedWithMe returns files shared with the account, most recent first.
func (s *Service) SharedWithMe(ctx context.Context, accountID string) ([]share.SharedFile, error) {
	return s.shares.ListSharedWithMe(ctx, accountID)
}

// SharedByMe returns files the account has shared out, most recent first.
func (s *Service) SharedByMe(ctx context.Context, accountID string) ([]share.SharedFile, error) {
	return s.shares.ListSharedByMe(ctx, accountID)
}

// Quota returns the account's ledger entry, creating it on first access.
func (s *Service) Quota(ctx context.Context, accountID string) (*quota.Entry, error) {
	return s.ledger.GetOrCreate(ctx, accountID)
}

// URL returns the public URL for the file's blob.
func (s *Service) URL(f *File) string {
	return s.store.PublicURL(f.StorageKey)
}
