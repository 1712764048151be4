package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/utafrali/authcore/internal/domain"
	"github.com/utafrali/authcore/internal/service"
	apperrors "github.com/utafrali/authcore/pkg/errors"
	"github.com/utafrali/authcore/pkg/httputil"
	"github.com/utafrali/authcore/pkg/middleware"
)

var errNoIdentity = errors.New("access token does not resolve to an identity")

// ContentTypeJSON rejects request bodies that are not application/json.
// Bodyless requests pass.
func ContentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.ContentLength != 0 && r.Body != nil && r.Body != http.NoBody {
			if !strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
				httputil.WriteJSON(w, http.StatusUnsupportedMediaType, httputil.Response{
					Message: "Content-Type must be application/json",
					Error: &httputil.ErrorResponse{
						Code:    "UNSUPPORTED_MEDIA_TYPE",
						Message: "Content-Type must be application/json",
					},
				})
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// tokenValidator resolves an access token to the caller's claims through the
// session service, so a deleted identity stops authenticating at once.
func tokenValidator(sessions *service.SessionService, logger *slog.Logger) middleware.TokenValidator {
	return func(ctx context.Context, token string) (*middleware.Claims, error) {
		identity := sessions.CurrentUser(ctx, token)
		if identity == nil {
			return nil, errNoIdentity
		}

		claims := &middleware.Claims{
			IdentityID: identity.ID,
			Email:      identity.Email,
			RoleID:     identity.RoleID,
		}
		role, err := sessions.RoleOf(ctx, identity)
		if err != nil {
			logger.ErrorContext(ctx, "failed to load role for claims",
				slog.String("identity_id", identity.ID),
				slog.String("error", err.Error()),
			)
		}
		if role != nil {
			claims.IsAdmin = role.IsAdmin
		}
		return claims, nil
	}
}

// CheckPermissions lets a request through only if the caller's role has a
// grant matching its method and path.
func CheckPermissions(sessions *service.SessionService, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := middleware.ClaimsFromContext(r.Context())
			if claims == nil {
				httputil.WriteError(w, r, apperrors.Unauthorized("Unauthorized"), logger)
				return
			}

			identity := &domain.Identity{ID: claims.IdentityID, RoleID: claims.RoleID}
			allowed, err := sessions.Authorize(r.Context(), identity, r.Method, r.URL.Path)
			if err != nil {
				logger.ErrorContext(r.Context(), "permission check failed",
					slog.String("identity_id", claims.IdentityID),
					slog.String("error", err.Error()),
				)
				httputil.WriteMessage(w, http.StatusInternalServerError, "Internal Server Error", nil)
				return
			}
			if !allowed {
				httputil.WriteError(w, r, apperrors.Forbidden("Forbidden"), logger)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequireAdmin lets a request through only if the caller's role is an admin
// role. When RBAC is disabled every authenticated caller passes.
func RequireAdmin(rbacEnabled bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !rbacEnabled {
				next.ServeHTTP(w, r)
				return
			}
			claims := middleware.ClaimsFromContext(r.Context())
			if claims == nil || !claims.IsAdmin {
				httputil.WriteError(w, r, apperrors.Forbidden("Forbidden"), nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
