package domain

import (
	"time"
)

// Identity is an account that can authenticate and be authorized.
type Identity struct {
	ID              string     `json:"id"`
	Email           string     `json:"email"`
	PasswordHash    string     `json:"-"`
	FirstName       string     `json:"first_name"`
	LastName        string     `json:"last_name"`
	RoleID          string     `json:"role_id"`
	Provider        string     `json:"provider,omitempty"`
	ProviderSubject string     `json:"-"`
	LastLoginAt     *time.Time `json:"last_login_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// HasPassword reports whether the identity can use the local credential source.
// Identities created through an external provider have no password.
func (i *Identity) HasPassword() bool {
	return i.PasswordHash != ""
}

// LinkedTo reports whether the identity is linked to the given external subject.
func (i *Identity) LinkedTo(provider, subject string) bool {
	return i.Provider == provider && i.ProviderSubject == subject && subject != ""
}
