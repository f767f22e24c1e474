package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/mail"

	"github.com/go-chi/chi/v5"

	"github.com/cloudshare/service/internal/account"
	"github.com/cloudshare/service/internal/response"
)

type registerRequest struct {
	Email     string  `json:"email"`
	Password  string  `json:"password"`
	FirstName *string `json:"firstName,omitempty"`
	LastName  *string `json:"lastName,omitempty"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type verifyEmailRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Email       string `json:"email"`
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

// authResponse carries the issued token and the account it belongs to.
type authResponse struct {
	Token   string           `json:"token"`
	Account *account.Account `json:"account"`
}

// Handler holds HTTP handlers for authentication endpoints.
type Handler struct {
	svc *Service
}

// NewHandler creates a new auth Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Routes mounts the public auth endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/register", h.Register)
	r.Post("/login", h.Login)
	r.Post("/verify-email", h.VerifyEmail)
	r.Post("/verification-code/resend", h.ResendVerificationCode)
	r.Post("/password/forgot", h.ForgotPassword)
	r.Post("/password/reset", h.ResetPassword)
	r.Get("/email-verified", h.IsEmailVerified)
}

func decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		response.BadRequest(w, "invalid request body")
		return false
	}
	return true
}

func validEmail(email string) bool {
	_, err := mail.ParseAddress(email)
	return err == nil
}

// Register godoc
//
//	@Summary		Register a new account
//	@Description	Creates the account, emails a verification code, and returns a JWT. Uploading requires a verified email.
//	@Tags			auth
//	@Accept			json
//	@Produce		json
//	@Param			body	body		registerRequest	true	"Registration data"
//	@Success		201	{object}	response.Envelope{data=authResponse}
//	@Failure		409	{object}	response.Envelope
//	@Router			/auth/register [post]
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decode(w, r, &req) {
		return
	}
	if !validEmail(req.Email) {
		response.BadRequest(w, "invalid email address")
		return
	}
	if len(req.Password) < 8 {
		response.BadRequest(w, "password must be at least 8 characters")
		return
	}

	token, a, err := h.svc.Register(r.Context(), req.Email, req.Password, req.FirstName, req.LastName)
	if err != nil {
		if errors.Is(err, account.ErrAlreadyExists) {
			response.Conflict(w, "email already registered")
			return
		}
		response.InternalError(w)
		return
	}
	response.Created(w, authResponse{Token: token, Account: a})
}

// Login godoc
//
//	@Summary		Log in
//	@Tags			auth
//	@Accept			json
//	@Produce		json
//	@Param			body	body		loginRequest	true	"Credentials"
//	@Success		200	{object}	response.Envelope{data=authResponse}
//	@Failure		401	{object}	response.Envelope
//	@Router			/auth/login [post]
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decode(w, r, &req) {
		return
	}

	token, a, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			response.Unauthorized(w, err.Error())
			return
		}
		response.InternalError(w)
		return
	}
	response.OK(w, authResponse{Token: token, Account: a})
}

// VerifyEmail godoc
//
//	@Summary		Verify email address
//	@Tags			auth
//	@Accept			json
//	@Produce		json
//	@Param			body	body		verifyEmailRequest	true	"Email and code"
//	@Success		200	{object}	response.Envelope
//	@Failure		400	{object}	response.Envelope
//	@Router			/auth/verify-email [post]
func (h *Handler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req verifyEmailRequest
	if !decode(w, r, &req) {
		return
	}

	if err := h.svc.VerifyEmail(r.Context(), req.Email, req.Code); err != nil {
		if errors.Is(err, ErrInvalidCode) {
			response.BadRequest(w, err.Error())
			return
		}
		response.InternalError(w)
		return
	}
	response.OKMessage(w, "email verified", nil)
}

// ResendVerificationCode godoc
//
//	@Summary		Resend the email verification code
//	@Tags			auth
//	@Accept			json
//	@Produce		json
//	@Param			body	body		emailRequest	true	"Email"
//	@Success		200	{object}	response.Envelope
//	@Failure		404	{object}	response.Envelope
//	@Router			/auth/verification-code/resend [post]
func (h *Handler) ResendVerificationCode(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !decode(w, r, &req) {
		return
	}

	if err := h.svc.ResendVerificationCode(r.Context(), req.Email); err != nil {
		if errors.Is(err, account.ErrNotFound) {
			response.NotFound(w, "account not found")
			return
		}
		response.InternalError(w)
		return
	}
	response.OKMessage(w, "verification code sent", nil)
}

// ForgotPassword godoc
//
//	@Summary		Request a password reset token
//	@Description	Always responds 200 so the endpoint cannot be used to probe which emails are registered.
//	@Tags			auth
//	@Accept			json
//	@Produce		json
//	@Param			body	body		emailRequest	true	"Email"
//	@Success		200	{object}	response.Envelope
//	@Router			/auth/password/forgot [post]
func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !decode(w, r, &req) {
		return
	}

	if err := h.svc.ForgotPassword(r.Context(), req.Email); err != nil {
		response.InternalError(w)
		return
	}
	response.OKMessage(w, "if the email is registered, a reset code has been sent", nil)
}

// ResetPassword godoc
//
//	@Summary		Reset password with a token
//	@Tags			auth
//	@Accept			json
//	@Produce		json
//	@Param			body	body		resetPasswordRequest	true	"Email, token, new password"
//	@Success		200	{object}	response.Envelope
//	@Failure		400	{object}	response.Envelope
//	@Router			/auth/password/reset [post]
func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if !decode(w, r, &req) {
		return
	}
	if len(req.NewPassword) < 8 {
		response.BadRequest(w, "password must be at least 8 characters")
		return
	}

	if err := h.svc.ResetPassword(r.Context(), req.Email, req.Token, req.NewPassword); err != nil {
		if errors.Is(err, ErrInvalidCode) {
			response.BadRequest(w, err.Error())
			return
		}
		response.InternalError(w)
		return
	}
	response.OKMessage(w, "password reset", nil)
}

// IsEmailVerified godoc
//
//	@Summary		Check whether an email is verified
//	@Tags			auth
//	@Produce		json
//	@Param			email	query		string	true	"Email address"
//	@Success		200	{object}	response.Envelope{data=bool}
//	@Failure		404	{object}	response.Envelope
//	@Router			/auth/email-verified [get]
func (h *Handler) IsEmailVerified(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	if email == "" {
		response.BadRequest(w, "email query parameter required")
		return
	}

	verified, err := h.svc.IsEmailVerified(r.Context(), email)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			response.NotFound(w, "account not found")
			return
		}
		response.InternalError(w)
		return
	}
	response.OK(w, verified)
}
