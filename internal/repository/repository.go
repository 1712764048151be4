package repository

import (
	"context"
	"time"

	"github.com/utafrali/authcore/internal/domain"
)

// IdentityRepository defines the interface for identity persistence operations.
type IdentityRepository interface {
	// Create inserts a new identity. A duplicate email or provider subject
	// yields apperrors.ErrAlreadyExists.
	Create(ctx context.Context, identity *domain.Identity) error

	// GetByID retrieves an identity by its unique identifier.
	GetByID(ctx context.Context, id string) (*domain.Identity, error)

	// GetByEmail retrieves an identity by its (lower-cased) email address.
	GetByEmail(ctx context.Context, email string) (*domain.Identity, error)

	// GetByProvider retrieves an identity by its external provider linkage.
	GetByProvider(ctx context.Context, provider, subject string) (*domain.Identity, error)

	// List returns a page of identities ordered by creation time and the total count.
	List(ctx context.Context, limit, offset int) ([]domain.Identity, int, error)

	// Update modifies an existing identity.
	Update(ctx context.Context, identity *domain.Identity) error

	// UpdateLastLogin records a successful login.
	UpdateLastLogin(ctx context.Context, id string, at time.Time) error

	// Delete removes an identity. Its sessions are removed by cascade.
	Delete(ctx context.Context, id string) error
}

// RoleRepository defines the interface for role persistence operations.
type RoleRepository interface {
	Create(ctx context.Context, role *domain.Role) error
	GetByID(ctx context.Context, id string) (*domain.Role, error)

	// GetDefault returns the active default role or apperrors.ErrNotFound.
	GetDefault(ctx context.Context) (*domain.Role, error)

	List(ctx context.Context) ([]domain.Role, error)
	Update(ctx context.Context, role *domain.Role) error

	// SoftDelete marks a role inactive. Existing grants and assignments are kept.
	SoftDelete(ctx context.Context, id string) error

	// SetDefault makes the given active role the only default role.
	SetDefault(ctx context.Context, id string) error
}

// PermissionRepository defines the interface for permission grant persistence.
type PermissionRepository interface {
	Create(ctx context.Context, permission *domain.Permission) error
	GetByID(ctx context.Context, id string) (*domain.Permission, error)
	List(ctx context.Context) ([]domain.Permission, error)
	ListByRole(ctx context.Context, roleID string) ([]domain.Permission, error)
	Update(ctx context.Context, permission *domain.Permission) error
	Delete(ctx context.Context, id string) error
}

// SessionStore persists Session Records keyed by the hash of their refresh token.
type SessionStore interface {
	// Save stores a new Session Record.
	Save(ctx context.Context, session *domain.Session) error

	// FindByTokenHash returns the record for a token hash, or apperrors.ErrNotFound.
	FindByTokenHash(ctx context.Context, tokenHash string) (*domain.Session, error)

	// Consume deletes the record for a token hash. Deleting a missing record
	// is not an error.
	Consume(ctx context.Context, tokenHash string) error

	// Rotate deletes the record for oldHash, provided it is bound to fp, is
	// unexpired at now and belongs to next.IdentityID, and stores next. Both
	// happen atomically. When no record qualifies nothing changes and
	// apperrors.ErrNotFound is returned, so of several concurrent rotations of
	// the same token at most one succeeds.
	Rotate(ctx context.Context, oldHash string, fp domain.Fingerprint, now time.Time, next *domain.Session) error

	// RevokeAll deletes every record of an identity and returns how many were removed.
	RevokeAll(ctx context.Context, identityID string) (int64, error)

	// DeleteExpired prunes records that expired before now.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
