package domain

import "errors"

// Internal failure causes. They are logged but collapsed into uniform
// responses before leaving the service layer.
var (
	// ErrInvalidCredential covers both an unknown email and a wrong password.
	ErrInvalidCredential = errors.New("invalid credential")
	// ErrMissingEmail is returned when an external provider yields no email.
	ErrMissingEmail = errors.New("external provider returned no email")
	// ErrNoDefaultRole is returned when no active default role exists.
	ErrNoDefaultRole = errors.New("no default role configured")
	// ErrTokenInvalid covers expired, malformed and tampered tokens.
	ErrTokenInvalid = errors.New("token invalid")
	// ErrFingerprintMismatch is returned when a refresh attempt comes from a
	// different client than the one the token was issued to.
	ErrFingerprintMismatch = errors.New("fingerprint mismatch")
	// ErrSessionNotFound is returned when no live Session Record exists for a
	// token.
	ErrSessionNotFound = errors.New("session not found")
)
