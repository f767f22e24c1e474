package account

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/cloudshare/service/internal/middleware"
	"github.com/cloudshare/service/internal/response"
)

// Profile is the wire representation of the authenticated account.
type Profile struct {
	ID              string  `json:"id"`
	Email           string  `json:"email"`
	FirstName       *string `json:"firstName,omitempty"`
	LastName        *string `json:"lastName,omitempty"`
	Role            string  `json:"role"`
	EmailVerified   bool    `json:"emailVerified"`
	ProfilePhotoURL *string `json:"profilePhotoUrl,omitempty"`
}

// Handler holds HTTP handlers for account endpoints.
type Handler struct {
	svc *Service
}

// NewHandler creates a new account Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Routes mounts the account endpoints on r. All routes require authentication.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/me", h.GetMe)
	r.Get("/search", h.Search)
	r.Post("/me/photo", h.UploadPhoto)
	r.Delete("/me", h.DeleteMe)
}

// GetMe godoc
//
//	@Summary		Get current account profile
//	@Tags			accounts
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{object}	response.Envelope{data=Profile}
//	@Failure		404	{object}	response.Envelope
//	@Router			/users/me [get]
func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.AccountID(r)
	if !ok {
		response.Unauthorized(w, "unauthorized")
		return
	}

	a, err := h.svc.GetByID(r.Context(), accountID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(w, "account not found")
			return
		}
		response.InternalError(w)
		return
	}

	response.OK(w, Profile{
		ID:              a.ID,
		Email:           a.Email,
		FirstName:       a.FirstName,
		LastName:        a.LastName,
		Role:            a.Role,
		EmailVerified:   a.EmailVerified,
		ProfilePhotoURL: h.svc.ProfilePhotoURL(a),
	})
}

// Search godoc
//
//	@Summary		Search account emails
//	@Description	Prefix search over registered emails, for picking share recipients.
//	@Tags			accounts
//	@Produce		json
//	@Security		BearerAuth
//	@Param			q		query		string	true	"Email prefix"
//	@Param			limit	query		int		false	"Max results (default 20)"
//	@Success		200	{object}	response.Envelope{data=[]string}
//	@Router			/users/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	_, ok := middleware.AccountID(r)
	if !ok {
		response.Unauthorized(w, "unauthorized")
		return
	}
	callerEmail, _ := r.Context().Value(middleware.AccountEmailKey).(string)

	query := r.URL.Query().Get("q")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	emails, err := h.svc.SearchEmails(r.Context(), callerEmail, query, limit)
	if err != nil {
		response.InternalError(w)
		return
	}
	response.OK(w, emails)
}

// UploadPhoto godoc
//
//	@Summary		Upload a profile photo
//	@Tags			accounts
//	@Accept			multipart/form-data
//	@Produce		json
//	@Security		BearerAuth
//	@Param			photo	formData	file	true	"Image file"
//	@Success		200	{object}	response.Envelope{data=string}
//	@Failure		400	{object}	response.Envelope
//	@Router			/users/me/photo [post]
func (h *Handler) UploadPhoto(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.AccountID(r)
	if !ok {
		response.Unauthorized(w, "unauthorized")
		return
	}

	f, header, err := r.FormFile("photo")
	if err != nil {
		response.BadRequest(w, "missing or unreadable form field 'photo'")
		return
	}
	defer f.Close()

	url, err := h.svc.UploadProfilePhoto(r.Context(), accountID,
		header.Filename, header.Header.Get("Content-Type"), header.Size, f)
	if err != nil {
		if errors.Is(err, ErrNotAnImage) {
			response.BadRequest(w, err.Error())
			return
		}
		response.InternalError(w)
		return
	}
	response.OK(w, url)
}

// DeleteMe godoc
//
//	@Summary		Delete the current account
//	@Description	Removes the account with all its files, shares, and quota entry. Blob deletion is best-effort and never blocks the account removal.
//	@Tags			accounts
//	@Security		BearerAuth
//	@Success		204
//	@Failure		404	{object}	response.Envelope
//	@Router			/users/me [delete]
func (h *Handler) DeleteMe(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.AccountID(r)
	if !ok {
		response.Unauthorized(w, "unauthorized")
		return
	}

	if err := h.svc.Delete(r.Context(), accountID); err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(w, "account not found")
			return
		}
		response.InternalError(w)
		return
	}
	response.NoContent(w)
}
