package billing

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cloudshare/service/internal/middleware"
	"github.com/cloudshare/service/internal/quota"
	"github.com/cloudshare/service/internal/response"
)

type verifyRequest struct {
	OrderID   string `json:"orderId"`
	PaymentID string `json:"paymentId"`
	Signature string `json:"signature"`
}

// StatusResponse is the wire representation of the account's plan state.
type StatusResponse struct {
	Used      int    `json:"used"`
	Limit     int    `json:"limit"`
	Remaining int    `json:"remaining"`
	Plan      string `json:"plan"`
}

// Handler holds HTTP handlers for billing endpoints.
type Handler struct {
	svc *Service
}

// NewHandler creates a new billing Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Routes mounts the bearer-protected billing endpoints on r. The webhook is
// mounted separately since it authenticates by signature, not bearer token.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/payment/order", h.CreateOrder)
	r.Post("/payment/verify", h.VerifyPayment)
	r.Get("/status", h.Status)
}

// CreateOrder godoc
//
//	@Summary		Create a payment order for the Pro plan
//	@Tags			billing
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{object}	response.Envelope{data=payment.Order}
//	@Router			/billing/payment/order [post]
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.AccountID(r)
	if !ok {
		response.Unauthorized(w, "unauthorized")
		return
	}

	order, err := h.svc.CreateOrder(r.Context(), accountID)
	if err != nil {
		response.InternalError(w)
		return
	}
	response.OKMessage(w, "order created", order)
}

// VerifyPayment godoc
//
//	@Summary		Verify a completed payment
//	@Description	Checks the checkout signature; on success the account's quota limit is raised to the plan limit.
//	@Tags			billing
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			body	body		verifyRequest	true	"Checkout callback fields"
//	@Success		200	{object}	response.Envelope
//	@Failure		400	{object}	response.Envelope
//	@Router			/billing/payment/verify [post]
func (h *Handler) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.AccountID(r)
	if !ok {
		response.Unauthorized(w, "unauthorized")
		return
	}

	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}

	if err := h.svc.VerifyPayment(r.Context(), accountID, req.OrderID, req.PaymentID, req.Signature); err != nil {
		if errors.Is(err, ErrInvalidSignature) {
			response.BadRequest(w, err.Error())
			return
		}
		response.InternalError(w)
		return
	}
	response.OKMessage(w, "payment verified, quota upgraded", nil)
}

// Status godoc
//
//	@Summary		Get plan and quota status
//	@Tags			billing
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{object}	response.Envelope{data=StatusResponse}
//	@Router			/billing/status [get]
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.AccountID(r)
	if !ok {
		response.Unauthorized(w, "unauthorized")
		return
	}

	entry, msg, err := h.svc.Status(r.Context(), accountID)
	if err != nil {
		response.InternalError(w)
		return
	}
	response.OKMessage(w, msg, statusResponse(entry))
}

// Webhook godoc
//
//	@Summary		Payment provider webhook
//	@Description	Signature-authenticated endpoint for provider events; subscription cancellations revert the account to the free tier.
//	@Tags			billing
//	@Accept			json
//	@Produce		json
//	@Param			X-Razorpay-Signature	header		string	true	"Webhook signature"
//	@Success		200	{object}	response.Envelope
//	@Failure		400	{object}	response.Envelope
//	@Router			/webhooks/payment [post]
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		response.BadRequest(w, "unreadable body")
		return
	}

	if err := h.svc.HandleWebhook(r.Context(), body, r.Header.Get("X-Razorpay-Signature")); err != nil {
		if errors.Is(err, ErrInvalidSignature) {
			response.BadRequest(w, err.Error())
			return
		}
		response.InternalError(w)
		return
	}
	response.OKMessage(w, "event processed", nil)
}

func statusResponse(e *quota.Entry) StatusResponse {
	return StatusResponse{
		Used:      e.UsedFiles,
		Limit:     e.LimitFiles,
		Remaining: e.Remaining(),
		Plan:      e.SubscriptionStatus,
	}
}
