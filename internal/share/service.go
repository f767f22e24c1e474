package share

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloudshare/service/internal/account"
)

// ErrSelfShare is returned when the recipient is the file's owner.
var ErrSelfShare = errors.New("cannot share a file with yourself")

// ErrRecipientNotFound is returned when the recipient email is not registered.
var ErrRecipientNotFound = errors.New("recipient is not a registered user")

// Registry is the persistence surface the service needs. Satisfied by *Repository.
type Registry interface {
	Upsert(ctx context.Context, fileID, ownerID, recipientID string) (*Grant, error)
	Exists(ctx context.Context, fileID, recipientID string) (bool, error)
	ListByRecipient(ctx context.Context, recipientID string) ([]SharedFile, error)
	ListByOwner(ctx context.Context, ownerID string) ([]SharedFile, error)
	GetWithDetails(ctx context.Context, fileID, recipientID string) (*SharedFile, error)
}

// Directory resolves recipient accounts by email. Satisfied by *account.Repository.
type Directory interface {
	GetByEmail(ctx context.Context, email string) (*account.Account, error)
}

// Service contains business logic for share grants.
type Service struct {
	registry Registry
	accounts Directory
}

// NewService creates a new share Service.
func NewService(registry Registry, accounts Directory) *Service {
	return &Service{registry: registry, accounts: accounts}
}

// Share grants the recipient read access to the file. Ownership of fileID must
// already be verified by the caller. Sharing is idempotent: re-sharing with
// the same recipient returns the existing grant.
func (s *Service) Share(ctx context.Context, fileID, ownerID, recipientEmail string) (*Grant, error) {
	recipient, err := s.accounts.GetByEmail(ctx, recipientEmail)
	if errors.Is(err, account.ErrNotFound) {
		return nil, ErrRecipientNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("resolve recipient: %w", err)
	}
	if recipient.ID == ownerID {
		return nil, ErrSelfShare
	}

	g, err := s.registry.Upsert(ctx, fileID, ownerID, recipient.ID)
	if err != nil {
		return nil, fmt.Errorf("share file: %w", err)
	}
	return g, nil
}

// IsSharedWith reports whether the file has been shared with the account.
func (s *Service) IsSharedWith(ctx context.Context, fileID, accountID string) (bool, error) {
	return s.registry.Exists(ctx, fileID, accountID)
}

// ListSharedWithMe returns files shared with the account, most recent first.
func (s *Service) ListSharedWithMe(ctx context.Context, accountID string) ([]SharedFile, error) {
	return s.registry.ListByRecipient(ctx, accountID)
}

// ListSharedByMe returns files the account has shared out, most recent first.
func (s *Service) ListSharedByMe(ctx context.Context, accountID string) ([]SharedFile, error) {
	return s.registry.ListByOwner(ctx, accountID)
}

// GetSharedFile returns the listing row for one grant.
func (s *Service) GetSharedFile(ctx context.Context, fileID, recipientID string) (*SharedFile, error) {
	return s.registry.GetWithDetails(ctx, fileID, recipientID)
}
