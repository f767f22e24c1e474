package quota

import (
	"context"
	"fmt"
	"log"
)

// Ledger is the persistence surface the service needs. Satisfied by *Repository.
type Ledger interface {
	GetOrCreate(ctx context.Context, accountID string, freeTierLimit int) (*Entry, error)
	TryIncrement(ctx context.Context, q Querier, accountID string, n int) (bool, error)
	Decrement(ctx context.Context, accountID string, n int) (before int, err error)
	ActivateSubscription(ctx context.Context, accountID, subscriptionID string, newLimit int) error
	DeactivateBySubscriptionID(ctx context.Context, subscriptionID string, freeTierLimit int) (bool, error)
}

// Service contains business logic for the per-account quota ledger.
type Service struct {
	ledger        Ledger
	freeTierLimit int
}

// NewService creates a new quota Service. freeTierLimit is the default limit
// assigned to entries created on first access.
func NewService(ledger Ledger, freeTierLimit int) *Service {
	return &Service{ledger: ledger, freeTierLimit: freeTierLimit}
}

// FreeTierLimit returns the configured free tier file limit.
func (s *Service) FreeTierLimit() int {
	return s.freeTierLimit
}

// GetOrCreate returns the account's ledger entry, creating it lazily with the
// free tier limit, zero used, and inactive status.
func (s *Service) GetOrCreate(ctx context.Context, accountID string) (*Entry, error) {
	return s.ledger.GetOrCreate(ctx, accountID, s.freeTierLimit)
}

// Remaining returns max(0, limit - used) for the account.
func (s *Service) Remaining(ctx context.Context, accountID string) (int, error) {
	e, err := s.GetOrCreate(ctx, accountID)
	if err != nil {
		return 0, err
	}
	return e.Remaining(), nil
}

// TryIncrement reserves n slots of the account's quota. It returns false when
// the limit would be exceeded. q may be a pgx.Tx so the reservation commits
// atomically with the caller's catalog write; pass nil to use the pool.
func (s *Service) TryIncrement(ctx context.Context, q Querier, accountID string, n int) (bool, error) {
	return s.ledger.TryIncrement(ctx, q, accountID, n)
}

// Decrement releases n slots, flooring at zero. A clamp indicates a
// double-decrement somewhere upstream and is logged rather than silently
// swallowed.
func (s *Service) Decrement(ctx context.Context, accountID string, n int) error {
	before, err := s.ledger.Decrement(ctx, accountID, n)
	if err != nil {
		return err
	}
	if before < n {
		log.Printf("quota: decrement of %d clamped at zero for account %s (used was %d)", n, accountID, before)
	}
	return nil
}

// ActivateSubscription transitions the entry to active and raises its limit.
// Idempotent: repeating the call with the same reference leaves the entry
// unchanged.
func (s *Service) ActivateSubscription(ctx context.Context, accountID, subscriptionID string, newLimit int) error {
	if _, err := s.GetOrCreate(ctx, accountID); err != nil {
		return err
	}
	if err := s.ledger.ActivateSubscription(ctx, accountID, subscriptionID, newLimit); err != nil {
		return fmt.Errorf("activate subscription %s: %w", subscriptionID, err)
	}
	return nil
}

// DeactivateBySubscriptionRef reverts the entry holding the reference to
// inactive with limit = max(freeTierLimit, used). Unknown references are
// ignored: the provider may replay events for subscriptions we never saw.
func (s *Service) DeactivateBySubscriptionRef(ctx context.Context, subscriptionID string) error {
	found, err := s.ledger.DeactivateBySubscriptionID(ctx, subscriptionID, s.freeTierLimit)
	if err != nil {
		return err
	}
	if !found {
		log.Printf("quota: deactivation for unknown subscription %s ignored", subscriptionID)
	}
	return nil
}
