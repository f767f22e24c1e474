package payment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const defaultBaseURL = "https://api.razorpay.com/v1"

// RazorpayGateway implements Gateway against the Razorpay REST API.
type RazorpayGateway struct {
	keyID         string
	keySecret     string
	webhookSecret string
	baseURL       string
	client        *http.Client
}

// NewRazorpayGateway creates a gateway with a bounded-timeout HTTP client.
func NewRazorpayGateway(keyID, keySecret, webhookSecret string) *RazorpayGateway {
	return &RazorpayGateway{
		keyID:         keyID,
		keySecret:     keySecret,
		webhookSecret: webhookSecret,
		baseURL:       defaultBaseURL,
		client:        &http.Client{Timeout: 15 * time.Second},
	}
}

// CreateOrder registers a one-time order with payment auto-capture.
func (g *RazorpayGateway) CreateOrder(ctx context.Context, amount int, currency, receipt string, notes map[string]string) (*Order, error) {
	payload := map[string]interface{}{
		"amount":          amount,
		"currency":        currency,
		"receipt":         receipt,
		"notes":           notes,
		"payment_capture": 1,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal order: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/orders", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build order request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(g.keyID, g.keySecret)

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("create order: provider returned %s", resp.Status)
	}

	var out struct {
		ID       string `json:"id"`
		Amount   int    `json:"amount"`
		Currency string `json:"currency"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode order response: %w", err)
	}

	return &Order{
		ID:       out.ID,
		Amount:   out.Amount,
		Currency: out.Currency,
		KeyID:    g.keyID,
	}, nil
}

// VerifySignature checks the HMAC-SHA256 hex signature over "orderID|paymentID".
func (g *RazorpayGateway) VerifySignature(orderID, paymentID, signature string) bool {
	if g.keySecret == "" {
		return false
	}
	return verifyHMAC([]byte(orderID+"|"+paymentID), signature, g.keySecret)
}

// VerifyWebhookSignature checks the HMAC-SHA256 hex signature over the raw
// webhook body.
func (g *RazorpayGateway) VerifyWebhookSignature(body []byte, signature string) bool {
	if g.webhookSecret == "" {
		return false
	}
	return verifyHMAC(body, signature, g.webhookSecret)
}

func verifyHMAC(message []byte, signature, secret string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(message)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
