package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/authcore/internal/service"
	"github.com/utafrali/authcore/pkg/httputil"
	"github.com/utafrali/authcore/pkg/middleware"
	"github.com/utafrali/authcore/pkg/pagination"
	"github.com/utafrali/authcore/pkg/validator"
)

// IdentityHandler handles signup and identity management.
type IdentityHandler struct {
	identities *service.IdentityService
	sessions   *service.SessionService
	logger     *slog.Logger
}

// NewIdentityHandler creates a new identity HTTP handler.
func NewIdentityHandler(identities *service.IdentityService, sessions *service.SessionService, logger *slog.Logger) *IdentityHandler {
	return &IdentityHandler{identities: identities, sessions: sessions, logger: logger}
}

// --- Request DTOs ---

// SignupRequest is the JSON request body for creating a local identity.
type SignupRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=8,max=72"`
	FirstName string `json:"first_name" validate:"omitempty,max=100"`
	LastName  string `json:"last_name" validate:"omitempty,max=100"`
}

// UpdateIdentityRequest is the JSON request body for updating an identity.
type UpdateIdentityRequest struct {
	Email     *string `json:"email" validate:"omitempty,email"`
	FirstName *string `json:"first_name" validate:"omitempty,max=100"`
	LastName  *string `json:"last_name" validate:"omitempty,max=100"`
	RoleID    *string `json:"role_id" validate:"omitempty,uuid"`
}

// ChangePasswordRequest is the JSON request body for changing the caller's
// password.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password" validate:"required,min=8,max=72"`
}

// --- Handlers ---

// Signup handles POST /api/user/signup
func (h *IdentityHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if err := validator.DecodeAndValidate(w, r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	identity, err := h.identities.Signup(r.Context(), service.SignupInput{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteMessage(w, http.StatusCreated, "User created", identity)
}

// List handles GET /api/user
func (h *IdentityHandler) List(w http.ResponseWriter, r *http.Request) {
	page, err := h.identities.List(r.Context(), pagination.FromRequest(r))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteMessage(w, http.StatusOK, "Users", page)
}

// Get handles GET /api/user/{id}
func (h *IdentityHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	identity, err := h.identities.Get(r.Context(), id.String())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteMessage(w, http.StatusOK, "User", identity)
}

// Update handles PUT /api/user/{id}
func (h *IdentityHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	var req UpdateIdentityRequest
	if err := validator.DecodeAndValidate(w, r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	identity, err := h.identities.Update(r.Context(), id.String(), service.UpdateIdentityInput{
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		RoleID:    req.RoleID,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteMessage(w, http.StatusOK, "User updated", identity)
}

// Delete handles DELETE /api/user/{id}
func (h *IdentityHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	if err := h.identities.Delete(r.Context(), id.String()); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteMessage(w, http.StatusOK, "User deleted", nil)
}

// ChangePassword handles PUT /api/user/me/password
func (h *IdentityHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req ChangePasswordRequest
	if err := validator.DecodeAndValidate(w, r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	id := middleware.IdentityIDFromContext(r.Context())
	if err := h.identities.ChangePassword(r.Context(), id, req.CurrentPassword, req.NewPassword); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteMessage(w, http.StatusOK, "Password changed", nil)
}

// RevokeSessions handles POST /api/user/{id}/sessions/revoke
func (h *IdentityHandler) RevokeSessions(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	n, err := h.sessions.RevokeAll(r.Context(), id.String())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteMessage(w, http.StatusOK, "Sessions revoked", map[string]int64{"revoked": n})
}
