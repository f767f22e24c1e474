package file

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/cloudshare/service/internal/middleware"
	"github.com/cloudshare/service/internal/quota"
	"github.com/cloudshare/service/internal/response"
	"github.com/cloudshare/service/internal/share"
)

// Summary is the wire representation of a file. FileURL is present only when
// the access policy allows it.
type Summary struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	ContentType *string   `json:"contentType,omitempty"`
	Size        int64     `json:"size"`
	Visibility  string    `json:"visibility"`
	Favorite    bool      `json:"favorite"`
	Status      string    `json:"status"`
	FileURL     *string   `json:"fileUrl,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// SharedSummary is the wire representation of a share-listing row.
type SharedSummary struct {
	FileID      string    `json:"fileId"`
	Name        string    `json:"name"`
	ContentType *string   `json:"contentType,omitempty"`
	Size        int64     `json:"size"`
	Visibility  string    `json:"visibility"`
	FileURL     string    `json:"fileUrl"`
	Owned       bool      `json:"owned"`
	SharedBy    string    `json:"sharedBy"`
	SharedTo    string    `json:"sharedTo"`
	SharedOn    time.Time `json:"sharedOn"`
}

// QuotaSummary is the wire representation of the account's quota state.
type QuotaSummary struct {
	Used      int    `json:"used"`
	Limit     int    `json:"limit"`
	Remaining int    `json:"remaining"`
	Plan      string `json:"plan"`
}

type shareRequest struct {
	Email string `json:"email"`
}

type visibilityRequest struct {
	Visibility string `json:"visibility"`
}

// Handler holds HTTP handlers for file endpoints.
type Handler struct {
	svc *Service
}

// NewHandler creates a new file Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Routes mounts the file endpoints on r. All routes require authentication.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/upload", h.Upload)
	r.Get("/", h.List)
	r.Get("/favorites", h.ListFavorites)
	r.Get("/quota", h.Quota)
	r.Get("/shared/with-me", h.SharedWithMe)
	r.Get("/shared/by-me", h.SharedByMe)
	r.Get("/user/{accountID}", h.ListByAccount)
	r.Get("/{id}/view", h.View)
	r.Get("/{id}/download-url", h.DownloadURL)
	r.Patch("/{id}/visibility", h.SetVisibility)
	r.Patch("/{id}/favorite", h.SetFavorite)
	r.Post("/{id}/share", h.Share)
	r.Delete("/{id}", h.Delete)
}

func (h *Handler) summary(f *File, includeURL bool) Summary {
	s := Summary{
		ID:          f.ID,
		Name:        f.Name,
		ContentType: f.ContentType,
		Size:        f.Size,
		Visibility:  f.Visibility,
		Favorite:    f.Favorite,
		Status:      f.Status,
		CreatedAt:   f.CreatedAt,
	}
	if includeURL {
		url := h.svc.URL(f)
		s.FileURL = &url
	}
	return s
}

func (h *Handler) sharedSummary(sf *share.SharedFile, owned bool) SharedSummary {
	return SharedSummary{
		FileID:      sf.FileID,
		Name:        sf.Name,
		ContentType: sf.ContentType,
		Size:        sf.Size,
		Visibility:  sf.Visibility,
		FileURL:     h.svc.store.PublicURL(sf.StorageKey),
		Owned:       owned,
		SharedBy:    sf.SharedBy,
		SharedTo:    sf.SharedTo,
		SharedOn:    sf.SharedAt,
	}
}

func quotaSummary(e *quota.Entry) QuotaSummary {
	return QuotaSummary{
		Used:      e.UsedFiles,
		Limit:     e.LimitFiles,
		Remaining: e.Remaining(),
		Plan:      e.SubscriptionStatus,
	}
}

// writeServiceError maps lifecycle errors onto the response taxonomy.
func writeServiceError(w http.ResponseWriter, err error) {
	var quotaErr *QuotaExceededError
	var sizeErr *TooLargeError
	switch {
	case errors.Is(err, ErrNotFound):
		response.NotFound(w, "file not found or not owned by you")
	case errors.Is(err, ErrEmailNotVerified):
		response.Forbidden(w, err.Error())
	case errors.As(err, &quotaErr):
		response.Forbidden(w, err.Error())
	case errors.As(err, &sizeErr):
		response.PayloadTooLarge(w, err.Error())
	case errors.Is(err, ErrInvalidVisibility),
		errors.Is(err, share.ErrSelfShare),
		errors.Is(err, share.ErrRecipientNotFound):
		response.BadRequest(w, err.Error())
	default:
		response.InternalError(w)
	}
}

// Upload godoc
//
//	@Summary		Upload a file
//	@Description	Stores the object, creates a READY file record, and counts it against the account's quota.
//	@Tags			files
//	@Accept			multipart/form-data
//	@Produce		json
//	@Security		BearerAuth
//	@Param			file	formData	file	true	"File to upload"
//	@Success		201	{object}	response.Envelope{data=Summary}
//	@Failure		403	{object}	response.Envelope	"email unverified or quota exceeded"
//	@Failure		413	{object}	response.Envelope
//	@Router			/files/upload [post]
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.AccountID(r)
	if !ok {
		response.Unauthorized(w, "unauthorized")
		return
	}

	// Cap multipart parsing slightly above the configured limit; the exact
	// size check happens in the service.
	r.Body = http.MaxBytesReader(w, r.Body, h.svc.MaxFileSizeBytes()+1<<20)
	f, header, err := r.FormFile("file")
	if err != nil {
		response.BadRequest(w, "missing or unreadable form field 'file'")
		return
	}
	defer f.Close()

	created, err := h.svc.Upload(r.Context(), accountID, UploadInput{
		Name:        header.Filename,
		Size:        header.Size,
		ContentType: header.Header.Get("Content-Type"),
		Reader:      f,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	response.Created(w, h.summary(created, true))
}

// List godoc
//
//	@Summary		List own files
//	@Tags			files
//	@Produce		json
//	@Security		BearerAuth
//	@Param			visibility	query		string	false	"Filter by visibility (PUBLIC or PRIVATE)"
//	@Success		200	{object}	response.Envelope{data=[]Summary}
//	@Router			/files [get]
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.AccountID(r)
	if !ok {
		response.Unauthorized(w, "unauthorized")
		return
	}

	var visibility *string
	if v := r.URL.Query().Get("visibility"); v != "" {
		visibility = &v
	}

	files, err := h.svc.List(r.Context(), accountID, visibility)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	response.OK(w, h.summaries(files, true))
}

// ListFavorites godoc
//
//	@Summary		List favorite files
//	@Tags			files
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{object}	response.Envelope{data=[]Summary}
//	@Router			/files/favorites [get]
func (h *Handler) ListFavorites(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.AccountID(r)
	if !ok {
		response.Unauthorized(w, "unauthorized")
		return
	}

	files, err := h.svc.ListFavorites(r.Context(), accountID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	response.OK(w, h.summaries(files, true))
}

// ListByAccount godoc
//
//	@Summary		List an account's files
//	@Description	Returns all files for your own account, public files only for other accounts.
//	@Tags			files
//	@Produce		json
//	@Security		BearerAuth
//	@Param			accountID	path		string	true	"Account ID"
//	@Success		200	{object}	response.Envelope{data=[]Summary}
//	@Router			/files/user/{accountID} [get]
func (h *Handler) ListByAccount(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.AccountID(r)
	if !ok {
		response.Unauthorized(w, "unauthorized")
		return
	}
	targetID := chi.URLParam(r, "accountID")

	files, err := h.svc.ListByAccount(r.Context(), accountID, targetID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	out := make([]Summary, 0, len(files))
	for i := range files {
		f := &files[i]
		out = append(out, h.summary(f, f.Visibility == VisibilityPublic || f.OwnerID == accountID))
	}
	response.OK(w, out)
}

// Quota godoc
//
//	@Summary		Get quota usage
//	@Tags			files
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{object}	response.Envelope{data=QuotaSummary}
//	@Router			/files/quota [get]
func (h *Handler) Quota(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.AccountID(r)
	if !ok {
		response.Unauthorized(w, "unauthorized")
		return
	}

	entry, err := h.svc.Quota(r.Context(), accountID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	response.OK(w, quotaSummary(entry))
}

// View godoc
//
//	@Summary		View file metadata
//	@Description	Applies the access policy: public files are viewable by anyone; private files by the owner and shared recipients only.
//	@Tags			files
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id	path		string	true	"File ID"
//	@Success		200	{object}	response.Envelope{data=Summary}
//	@Failure		403	{object}	response.Envelope
//	@Failure		404	{object}	response.Envelope
//	@Router			/files/{id}/view [get]
func (h *Handler) View(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.AccountID(r)
	if !ok {
		response.Unauthorized(w, "unauthorized")
		return
	}

	f, decision, err := h.svc.View(r.Context(), accountID, chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if !decision.CanView {
		response.JSON(w, http.StatusForbidden, response.Envelope{
			Success: false,
			Message: decision.Reason,
			Data:    h.summary(f, false),
		})
		return
	}
	response.OKMessage(w, decision.Reason, h.summary(f, decision.IncludeURL))
}

// DownloadURL godoc
//
//	@Summary		Get a file's download URL
//	@Description	Governed by the same access decision as view, so the two never disagree.
//	@Tags			files
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id	path		string	true	"File ID"
//	@Success		200	{object}	response.Envelope{data=map[string]string}
//	@Failure		403	{object}	response.Envelope
//	@Failure		404	{object}	response.Envelope
//	@Router			/files/{id}/download-url [get]
func (h *Handler) DownloadURL(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.AccountID(r)
	if !ok {
		response.Unauthorized(w, "unauthorized")
		return
	}

	f, decision, err := h.svc.View(r.Context(), accountID, chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if !decision.IncludeURL {
		response.Forbidden(w, "you are not allowed to access the download URL for this file")
		return
	}
	response.OKMessage(w, "download URL generated", map[string]string{"fileUrl": h.svc.URL(f)})
}

// SetVisibility godoc
//
//	@Summary		Change file visibility
//	@Tags			files
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id		path		string				true	"File ID"
//	@Param			body	body		visibilityRequest	true	"New visibility"
//	@Success		200	{object}	response.Envelope{data=Summary}
//	@Failure		404	{object}	response.Envelope
//	@Router			/files/{id}/visibility [patch]
func (h *Handler) SetVisibility(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.AccountID(r)
	if !ok {
		response.Unauthorized(w, "unauthorized")
		return
	}

	var req visibilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}

	f, err := h.svc.SetVisibility(r.Context(), accountID, chi.URLParam(r, "id"), req.Visibility)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	response.OKMessage(w, "visibility updated", h.summary(f, true))
}

// SetFavorite godoc
//
//	@Summary		Mark or unmark a file as favorite
//	@Tags			files
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id		path	string	true	"File ID"
//	@Param			value	query	bool	true	"Favorite flag"
//	@Success		200	{object}	response.Envelope{data=Summary}
//	@Failure		404	{object}	response.Envelope
//	@Router			/files/{id}/favorite [patch]
func (h *Handler) SetFavorite(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.AccountID(r)
	if !ok {
		response.Unauthorized(w, "unauthorized")
		return
	}

	value := r.URL.Query().Get("value") == "true"
	f, err := h.svc.SetFavorite(r.Context(), accountID, chi.URLParam(r, "id"), value)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	msg := "removed from favorites"
	if value {
		msg = "marked as favorite"
	}
	response.OKMessage(w, msg, h.summary(f, true))
}

// Delete godoc
//
//	@Summary		Delete a file
//	@Tags			files
//	@Security		BearerAuth
//	@Param			id	path	string	true	"File ID"
//	@Success		204
//	@Failure		404	{object}	response.Envelope
//	@Router			/files/{id} [delete]
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.AccountID(r)
	if !ok {
		response.Unauthorized(w, "unauthorized")
		return
	}

	if err := h.svc.Delete(r.Context(), accountID, chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, err)
		return
	}
	response.NoContent(w)
}

// Share godoc
//
//	@Summary		Share a file with another account
//	@Description	Grants read-only access. Idempotent: re-sharing with the same recipient returns the existing grant.
//	@Tags			files
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id		path		string			true	"File ID"
//	@Param			body	body		shareRequest	true	"Recipient email"
//	@Success		200	{object}	response.Envelope{data=SharedSummary}
//	@Failure		400	{object}	response.Envelope	"self-share or unknown recipient"
//	@Failure		404	{object}	response.Envelope
//	@Router			/files/{id}/share [post]
func (h *Handler) Share(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.AccountID(r)
	if !ok {
		response.Unauthorized(w, "unauthorized")
		return
	}

	var req shareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
		response.BadRequest(w, "recipient email required")
		return
	}

	sf, err := h.svc.Share(r.Context(), accountID, chi.URLParam(r, "id"), req.Email)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	response.OKMessage(w, "file shared successfully", h.sharedSummary(sf, true))
}

// SharedWithMe godoc
//
//	@Summary		List files shared with me
//	@Tags			files
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{object}	response.Envelope{data=[]SharedSummary}
//	@Router			/files/shared/with-me [get]
func (h *Handler) SharedWithMe(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.AccountID(r)
	if !ok {
		response.Unauthorized(w, "unauthorized")
		return
	}

	shares, err := h.svc.SharedWithMe(r.Context(), accountID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	out := make([]SharedSummary, 0, len(shares))
	for i := range shares {
		out = append(out, h.sharedSummary(&shares[i], false))
	}
	response.OK(w, out)
}

// SharedByMe godoc
//
//	@Summary		List files I have shared
//	@Tags			files
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{object}	response.Envelope{data=[]SharedSummary}
//	@Router			/files/shared/by-me [get]
func (h *Handler) SharedByMe(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.AccountID(r)
	if !ok {
		response.Unauthorized(w, "unauthorized")
		return
	}

	shares, err := h.svc.SharedByMe(r.Context(), accountID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	out := make([]SharedSummary, 0, len(shares))
	for i := range shares {
		out = append(out, h.sharedSummary(&shares[i], true))
	}
	response.OK(w, out)
}

func (h *Handler) summaries(files []File, includeURL bool) []Summary {
	out := make([]Summary, 0, len(files))
	for i := range files {
		out = append(out, h.summary(&files[i], includeURL))
	}
	return out
}
