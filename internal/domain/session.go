package domain

import (
	"time"
)

// UnknownFingerprintPart stands in for a missing address or user agent.
const UnknownFingerprintPart = "unknown"

// Fingerprint identifies the client a refresh token was issued to.
type Fingerprint struct {
	IP        string `json:"ip"`
	UserAgent string `json:"user_agent"`
}

// NewFingerprint builds a Fingerprint, substituting UnknownFingerprintPart
// for empty values.
func NewFingerprint(ip, userAgent string) Fingerprint {
	if ip == "" {
		ip = UnknownFingerprintPart
	}
	if userAgent == "" {
		userAgent = UnknownFingerprintPart
	}
	return Fingerprint{IP: ip, UserAgent: userAgent}
}

// Matches reports whether both parts are equal.
func (f Fingerprint) Matches(other Fingerprint) bool {
	return f.IP == other.IP && f.UserAgent == other.UserAgent
}

// Session is the persisted form of an issued refresh token. Only the SHA-256
// hash of the token is stored.
type Session struct {
	TokenHash   string      `json:"-"`
	IdentityID  string      `json:"identity_id"`
	Fingerprint Fingerprint `json:"fingerprint"`
	IssuedAt    time.Time   `json:"issued_at"`
	ExpiresAt   time.Time   `json:"expires_at"`
}

// Expired reports whether the session is no longer usable at now.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// TokenPair holds an access and refresh token pair.
type TokenPair struct {
	AccessToken      string    `json:"-"`
	RefreshToken     string    `json:"-"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// State is the externally observable session state of a client.
type State string

const (
	StateAnonymous     State = "anonymous"
	StateAuthenticated State = "authenticated"
	StateLoggedOut     State = "logged_out"
)
