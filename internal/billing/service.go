// Package billing turns verified payments into quota upgrades.
package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/cloudshare/service/internal/payment"
	"github.com/cloudshare/service/internal/quota"
)

// ErrInvalidSignature is returned when a payment or webhook signature does
// not verify.
var ErrInvalidSignature = errors.New("invalid payment signature")

// Ledger is the quota surface billing needs. Satisfied by *quota.Service.
type Ledger interface {
	GetOrCreate(ctx context.Context, accountID string) (*quota.Entry, error)
	ActivateSubscription(ctx context.Context, accountID, subscriptionID string, newLimit int) error
	DeactivateBySubscriptionRef(ctx context.Context, subscriptionID string) error
}

// Service contains the billing business logic.
type Service struct {
	gateway payment.Gateway
	ledger  Ledger

	planFileLimit int
	planPriceINR  int
}

// NewService creates a new billing Service.
func NewService(gateway payment.Gateway, ledger Ledger, planFileLimit, planPriceINR int) *Service {
	return &Service{
		gateway:       gateway,
		ledger:        ledger,
		planFileLimit: planFileLimit,
		planPriceINR:  planPriceINR,
	}
}

// CreateOrder registers a one-time order for the Pro plan price.
func (s *Service) CreateOrder(ctx context.Context, accountID string) (*payment.Order, error) {
	receipt := fmt.Sprintf("rcpt_%s_%d", accountID, time.Now().UnixMilli())
	order, err := s.gateway.CreateOrder(ctx, s.planPriceINR*100, "INR", receipt,
		map[string]string{"accountId": accountID})
	if err != nil {
		return nil, fmt.Errorf("create payment order: %w", err)
	}
	return order, nil
}

// VerifyPayment checks the checkout signature and, on success, activates the
// plan for the account. The subscription reference is derived from the order
// so repeating the verification is idempotent.
func (s *Service) VerifyPayment(ctx context.Context, accountID, orderID, paymentID, signature string) error {
	if !s.gateway.VerifySignature(orderID, paymentID, signature) {
		return ErrInvalidSignature
	}
	return s.ledger.ActivateSubscription(ctx, accountID, "one-time-"+orderID, s.planFileLimit)
}

// Status returns the account's quota entry and a plan description.
func (s *Service) Status(ctx context.Context, accountID string) (*quota.Entry, string, error) {
	entry, err := s.ledger.GetOrCreate(ctx, accountID)
	if err != nil {
		return nil, "", err
	}

	var msg string
	if entry.Subscribed() {
		msg = fmt.Sprintf("Pro plan active. You can upload up to %d files.", entry.LimitFiles)
	} else {
		msg = fmt.Sprintf("No active plan. Free plan in effect. Purchase the Pro plan to get up to %d files.", s.planFileLimit)
	}
	return entry, msg, nil
}

// webhookEvent is the subset of the provider's webhook payload billing reads.
type webhookEvent struct {
	Event   string `json:"event"`
	Payload struct {
		Subscription struct {
			Entity struct {
				ID string `json:"id"`
			} `json:"entity"`
		} `json:"subscription"`
	} `json:"payload"`
}

// HandleWebhook verifies the webhook signature and applies cancellation
// events to the ledger. Unrecognized events are acknowledged and ignored.
func (s *Service) HandleWebhook(ctx context.Context, body []byte, signature string) error {
	if !s.gateway.VerifyWebhookSignature(body, signature) {
		return ErrInvalidSignature
	}

	var ev webhookEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("decode webhook: %w", err)
	}

	switch ev.Event {
	case "subscription.cancelled", "subscription.halted":
		if ev.Payload.Subscription.Entity.ID == "" {
			return errors.New("webhook missing subscription id")
		}
		return s.ledger.DeactivateBySubscriptionRef(ctx, ev.Payload.Subscription.Entity.ID)
	default:
		log.Printf("billing: ignoring webhook event %q", ev.Event)
		return nil
	}
}
