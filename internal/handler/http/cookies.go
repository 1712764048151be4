package http

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/utafrali/authcore/internal/domain"
)

// Cookie names carrying the token pair.
const (
	CookieAccess  = "jwt"
	CookieRefresh = "refreshToken"

	cookieOAuthState = "oauth_state"
	oauthStateTTL    = 10 * time.Minute
)

// CookieConfig controls how token cookies are written.
type CookieConfig struct {
	// Secure marks cookies Secure; set in production.
	Secure     bool
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

func (c CookieConfig) set(w http.ResponseWriter, name, value string, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteStrictMode,
	})
}

func (c CookieConfig) expire(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteStrictMode,
	})
}

// setTokens writes both token cookies.
func (c CookieConfig) setTokens(w http.ResponseWriter, tokens *domain.TokenPair) {
	c.set(w, CookieAccess, tokens.AccessToken, c.AccessTTL)
	c.set(w, CookieRefresh, tokens.RefreshToken, c.RefreshTTL)
}

// clearTokens expires both token cookies.
func (c CookieConfig) clearTokens(w http.ResponseWriter) {
	c.expire(w, CookieAccess)
	c.expire(w, CookieRefresh)
}

func cookieValue(r *http.Request, name string) string {
	if c, err := r.Cookie(name); err == nil {
		return c.Value
	}
	return ""
}

// clientFingerprint captures the address and user agent a refresh token is
// bound to. Behind a trusted proxy the right-most X-Forwarded-For entry is
// the address the proxy saw; entries to its left are client supplied.
func clientFingerprint(r *http.Request, trustProxy bool) domain.Fingerprint {
	return domain.NewFingerprint(clientIP(r, trustProxy), r.UserAgent())
}

func clientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			hops := strings.Split(xff, ",")
			if ip := strings.TrimSpace(hops[len(hops)-1]); ip != "" {
				return ip
			}
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
