package http

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/utafrali/authcore/internal/credential"
	"github.com/utafrali/authcore/internal/domain"
	"github.com/utafrali/authcore/internal/service"
	apperrors "github.com/utafrali/authcore/pkg/errors"
	"github.com/utafrali/authcore/pkg/httputil"
	"github.com/utafrali/authcore/pkg/middleware"
	"github.com/utafrali/authcore/pkg/validator"
)

// OAuthProvider runs the authorization-code flow of an external identity
// provider.
type OAuthProvider interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*credential.ProviderAssertion, error)
}

// AuthHandler handles login, logout, refresh and the current-user endpoint.
type AuthHandler struct {
	sessions   *service.SessionService
	google     OAuthProvider
	cookies    CookieConfig
	trustProxy bool
	logger     *slog.Logger
}

// NewAuthHandler creates a new auth HTTP handler. google may be nil.
func NewAuthHandler(sessions *service.SessionService, google OAuthProvider, cookies CookieConfig, trustProxy bool, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		sessions:   sessions,
		google:     google,
		cookies:    cookies,
		trustProxy: trustProxy,
		logger:     logger,
	}
}

// LoginRequest is the JSON request body for a local login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Login handles POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := validator.DecodeAndValidate(w, r, &req); err != nil {
		// A malformed body gets the same answer as a wrong password.
		httputil.WriteError(w, r, apperrors.Unauthorized(service.MsgInvalidCredentials), h.logger)
		return
	}

	creds := credential.Credentials{Identifier: req.Email, Secret: req.Password}
	result, err := h.sessions.Login(r.Context(), credential.SourceLocal, creds, clientFingerprint(r, h.trustProxy))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	h.cookies.setTokens(w, result.Tokens)
	httputil.WriteMessage(w, http.StatusOK, "User logged in", nil)
}

// Logout handles GET and POST /api/auth/logout. Cookies are expired whatever
// the outcome.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	access := middleware.TokenFromRequest(r, CookieAccess)
	refresh := cookieValue(r, CookieRefresh)

	_, err := h.sessions.Logout(r.Context(), access, refresh, clientFingerprint(r, h.trustProxy))
	h.cookies.clearTokens(w)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteMessage(w, http.StatusOK, "User logged out", nil)
}

// Refresh handles POST /api/auth/refresh-token
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	result, err := h.sessions.Refresh(r.Context(), cookieValue(r, CookieRefresh), clientFingerprint(r, h.trustProxy))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	h.cookies.setTokens(w, result.Tokens)
	httputil.WriteMessage(w, http.StatusOK, "Tokens refreshed successfully", nil)
}

// Me handles GET /api/auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	identity := h.sessions.CurrentUser(r.Context(), middleware.TokenFromRequest(r, CookieAccess))
	if identity == nil {
		httputil.WriteError(w, r, apperrors.Unauthorized("Unauthorized"), h.logger)
		return
	}

	httputil.WriteMessage(w, http.StatusOK, "Current user", identity)
}

// GoogleRedirect handles GET /api/auth/google
func (h *AuthHandler) GoogleRedirect(w http.ResponseWriter, r *http.Request) {
	state := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     cookieOAuthState,
		Value:    state,
		Path:     "/api/auth/google",
		MaxAge:   int(oauthStateTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.cookies.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, h.google.AuthCodeURL(state), http.StatusFound)
}

// GoogleCallback handles GET /api/auth/google/callback
func (h *AuthHandler) GoogleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	state := cookieValue(r, cookieOAuthState)
	http.SetCookie(w, &http.Cookie{Name: cookieOAuthState, Path: "/api/auth/google", MaxAge: -1, HttpOnly: true})

	if state == "" || subtle.ConstantTimeCompare([]byte(state), []byte(q.Get("state"))) != 1 {
		h.logger.WarnContext(r.Context(), "oauth state mismatch")
		httputil.WriteError(w, r, apperrors.Unauthorized(service.MsgInvalidCredentials), h.logger)
		return
	}

	assertion, err := h.google.Exchange(r.Context(), q.Get("code"))
	if err != nil {
		if errors.Is(err, domain.ErrInvalidCredential) || errors.Is(err, apperrors.ErrUnauthorized) {
			h.logger.WarnContext(r.Context(), "google exchange rejected", slog.String("error", err.Error()))
			err = apperrors.Unauthorized(service.MsgInvalidCredentials)
		}
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	creds := credential.Credentials{Assertion: assertion}
	result, err := h.sessions.Login(r.Context(), credential.SourceGoogle, creds, clientFingerprint(r, h.trustProxy))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	h.cookies.setTokens(w, result.Tokens)
	httputil.WriteMessage(w, http.StatusOK, "User logged in", nil)
}
