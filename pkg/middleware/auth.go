package middleware

import (
	"context"
	"net/http"
	"strings"

	apperrors "github.com/utafrali/authcore/pkg/errors"
	"github.com/utafrali/authcore/pkg/httputil"
	"github.com/utafrali/authcore/pkg/logger"
)

type contextKeyType string

const claimsKey contextKeyType = "auth_claims"

// Claims describes the authenticated caller of a request.
type Claims struct {
	IdentityID string `json:"id"`
	Email      string `json:"email"`
	RoleID     string `json:"role_id"`
	IsAdmin    bool   `json:"is_admin"`
}

// TokenValidator resolves an access token to Claims.
type TokenValidator func(ctx context.Context, token string) (*Claims, error)

// TokenFromRequest returns the access token carried by the named cookie, or by
// an "Authorization: Bearer" header when the cookie is absent.
func TokenFromRequest(r *http.Request, cookieName string) string {
	if c, err := r.Cookie(cookieName); err == nil && c.Value != "" {
		return c.Value
	}
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if ok && strings.EqualFold(scheme, "bearer") {
		return strings.TrimSpace(token)
	}
	return ""
}

// Auth rejects requests without a valid access token and stores the caller's
// Claims in the request context.
func Auth(cookieName string, validate TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := TokenFromRequest(r, cookieName)
			if token == "" {
				httputil.WriteError(w, r, apperrors.Unauthorized("Unauthorized"), nil)
				return
			}

			claims, err := validate(r.Context(), token)
			if err != nil || claims == nil {
				httputil.WriteError(w, r, apperrors.Unauthorized("Unauthorized"), nil)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

// WithClaims returns a copy of ctx carrying claims.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	ctx = context.WithValue(ctx, claimsKey, claims)
	return logger.WithIdentityID(ctx, claims.IdentityID)
}

// ClaimsFromContext returns the Claims stored by Auth, or nil.
func ClaimsFromContext(ctx context.Context) *Claims {
	c, _ := ctx.Value(claimsKey).(*Claims)
	return c
}

// IdentityIDFromContext returns the authenticated identity id, or "".
func IdentityIDFromContext(ctx context.Context) string {
	if c := ClaimsFromContext(ctx); c != nil {
		return c.IdentityID
	}
	return ""
}
