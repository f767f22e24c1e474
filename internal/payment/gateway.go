// Package payment wraps the external payment provider behind a narrow
// interface. The core only ever creates one-time orders and verifies
// signatures; the provider's wire format stays inside this package.
package payment

import "context"

// Order is a provider-side payment order awaiting checkout.
type Order struct {
	ID       string `json:"orderId"`
	Amount   int    `json:"amount"`
	Currency string `json:"currency"`
	KeyID    string `json:"keyId"`
}

// Gateway is the payment surface consumed by billing.
type Gateway interface {
	// CreateOrder registers a one-time order for amount (in the currency's
	// smallest unit) with the provider.
	CreateOrder(ctx context.Context, amount int, currency, receipt string, notes map[string]string) (*Order, error)
	// VerifySignature checks the checkout callback signature over
	// (orderID, paymentID).
	VerifySignature(orderID, paymentID, signature string) bool
	// VerifyWebhookSignature checks the signature of a raw webhook body.
	VerifyWebhookSignature(body []byte, signature string) bool
}
