package domain

import (
	"strings"
	"time"
)

// Role groups permission grants. New identities get the single default role.
type Role struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	IsDefault   bool      `json:"is_default"`
	IsAdmin     bool      `json:"is_admin"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Permission grants a role access to requests matching Method and Path.
type Permission struct {
	ID        string    `json:"id"`
	RoleID    string    `json:"role_id"`
	Method    string    `json:"method"`
	Path      string    `json:"path"`
	CreatedAt time.Time `json:"created_at"`
}

// NormalizeMethod returns the canonical upper-case form of an HTTP method.
func NormalizeMethod(m string) string {
	return strings.ToUpper(strings.TrimSpace(m))
}
