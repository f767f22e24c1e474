package account

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/cloudshare/service/internal/storage"
)

// ErrNotAnImage is returned when a profile photo upload is not an image.
var ErrNotAnImage = errors.New("only image files are allowed")

// BlobKeys lists the storage keys of an account's files, used for blob
// cleanup during account deletion. Satisfied by *file.Repository.
type BlobKeys interface {
	StorageKeysByOwner(ctx context.Context, ownerID string) ([]string, error)
}

// Service contains business logic for account management.
type Service struct {
	repo     *Repository
	fileKeys BlobKeys
	store    storage.Storage
}

// NewService creates a new account Service.
func NewService(repo *Repository, fileKeys BlobKeys, store storage.Storage) *Service {
	return &Service{repo: repo, fileKeys: fileKeys, store: store}
}

// GetByID returns an account by its UUID.
func (s *Service) GetByID(ctx context.Context, id string) (*Account, error) {
	return s.repo.GetByID(ctx, id)
}

// SearchEmails returns registered emails matching the query prefix, for
// share-recipient autocomplete. The result never includes the caller's own
// email.
func (s *Service) SearchEmails(ctx context.Context, callerEmail, query string, limit int) ([]string, error) {
	if limit <= 0 || limit > 50 {
		limit = 20
	}
	emails, err := s.repo.SearchEmails(ctx, strings.ToLower(strings.TrimSpace(query)), limit+1)
	if err != nil {
		return nil, err
	}

	out := make([]string, 0, len(emails))
	for _, e := range emails {
		if e == callerEmail {
			continue
		}
		out = append(out, e)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// UploadProfilePhoto stores the photo and records its key on the account.
func (s *Service) UploadProfilePhoto(ctx context.Context, accountID, name, contentType string, size int64, r io.Reader) (string, error) {
	if !strings.HasPrefix(strings.ToLower(contentType), "image/") {
		return "", ErrNotAnImage
	}

	a, err := s.repo.GetByID(ctx, accountID)
	if err != nil {
		return "", err
	}

	key := storage.ProfilePhotoKey(accountID, name)
	if err := s.store.Upload(ctx, key, r, size, contentType); err != nil {
		return "", fmt.Errorf("store profile photo: %w", err)
	}
	if err := s.repo.SetProfilePhoto(ctx, accountID, key); err != nil {
		return "", fmt.Errorf("record profile photo: %w", err)
	}

	// The previous photo is unreferenced now; removing it is best-effort.
	if a.ProfilePhotoKey != nil {
		if err := s.store.Delete(ctx, *a.ProfilePhotoKey); err != nil {
			log.Printf("account: deleting old profile photo %s failed: %v", *a.ProfilePhotoKey, err)
		}
	}
	return s.store.PublicURL(key), nil
}

// ProfilePhotoURL returns the public URL of the account's profile photo, or
// nil when none is set.
func (s *Service) ProfilePhotoURL(a *Account) *string {
	if a.ProfilePhotoKey == nil {
		return nil
	}
	url := s.store.PublicURL(*a.ProfilePhotoKey)
	return &url
}

// Delete removes the account. Blobs are deleted best-effort first — a storage
// failure never blocks the account removal; the row delete then cascades to
// files, shares, and the quota entry.
func (s *Service) Delete(ctx context.Context, accountID string) error {
	a, err := s.repo.GetByID(ctx, accountID)
	if err != nil {
		return err
	}

	keys, err := s.fileKeys.StorageKeysByOwner(ctx, accountID)
	if err != nil {
		return fmt.Errorf("list file keys: %w", err)
	}
	if a.ProfilePhotoKey != nil {
		keys = append(keys, *a.ProfilePhotoKey)
	}
	for _, key := range keys {
		if err := s.store.Delete(ctx, key); err != nil {
			log.Printf("account: blob delete failed for %s during account deletion: %v", key, err)
		}
	}

	return s.repo.Delete(ctx, accountID)
}
