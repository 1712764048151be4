package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/utafrali/authcore/internal/credential"
	"github.com/utafrali/authcore/internal/domain"
	"github.com/utafrali/authcore/internal/event"
	"github.com/utafrali/authcore/internal/repository"
	apperrors "github.com/utafrali/authcore/pkg/errors"
	"github.com/utafrali/authcore/pkg/pagination"
)

// IdentityService implements identity signup and management.
type IdentityService struct {
	identities repository.IdentityRepository
	roles      repository.RoleRepository
	sessions   repository.SessionStore
	hasher     *credential.Hasher
	events     EventPublisher
	logger     *slog.Logger
}

// NewIdentityService creates a new identity service.
func NewIdentityService(
	identities repository.IdentityRepository,
	roles repository.RoleRepository,
	sessions repository.SessionStore,
	hasher *credential.Hasher,
	events EventPublisher,
	logger *slog.Logger,
) *IdentityService {
	return &IdentityService{
		identities: identities,
		roles:      roles,
		sessions:   sessions,
		hasher:     hasher,
		events:     events,
		logger:     logger,
	}
}

// SignupInput holds the parameters for creating a local identity.
type SignupInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// UpdateIdentityInput holds the fields an update may change. Nil fields are
// left as they are.
type UpdateIdentityInput struct {
	Email     *string
	FirstName *string
	LastName  *string
	RoleID    *string
}

// Signup creates a local identity with the default role.
func (s *IdentityService) Signup(ctx context.Context, input SignupInput) (*domain.Identity, error) {
	email := credential.NormalizeEmail(input.Email)
	if email == "" {
		return nil, apperrors.InvalidInput("email is required")
	}
	if err := credential.ValidatePassword(input.Password); err != nil {
		return nil, err
	}

	role, err := s.roles.GetDefault(ctx)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			s.logger.ErrorContext(ctx, "signup failed", slog.String("reason", domain.ErrNoDefaultRole.Error()))
			return nil, apperrors.Prerequisite(MsgNoDefaultRole)
		}
		return nil, fmt.Errorf("get default role: %w", err)
	}

	digest, err := s.hasher.Hash(input.Password)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	identity := &domain.Identity{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: digest,
		FirstName:    input.FirstName,
		LastName:     input.LastName,
		RoleID:       role.ID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.identities.Create(ctx, identity); err != nil {
		return nil, fmt.Errorf("create identity: %w", err)
	}

	s.OnRegistered(ctx, identity)

	return identity, nil
}

// OnRegistered publishes identity.registered for a newly created identity.
// External sources call it after creating an identity on first login.
func (s *IdentityService) OnRegistered(ctx context.Context, identity *domain.Identity) {
	if err := s.events.PublishIdentityRegistered(ctx, identity); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish identity.registered event",
			slog.String("identity_id", identity.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "identity registered",
		slog.String("identity_id", identity.ID),
		slog.String("provider", identity.Provider),
	)
}

// Get retrieves an identity by ID.
func (s *IdentityService) Get(ctx context.Context, id string) (*domain.Identity, error) {
	identity, err := s.identities.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get identity: %w", err)
	}
	return identity, nil
}

// List returns one page of identities.
func (s *IdentityService) List(ctx context.Context, params pagination.Params) (pagination.Page[domain.Identity], error) {
	items, total, err := s.identities.List(ctx, params.PerPage, params.Offset())
	if err != nil {
		return pagination.Page[domain.Identity]{}, fmt.Errorf("list identities: %w", err)
	}
	return pagination.NewPage(items, total, params), nil
}

// Update applies input to the identity.
func (s *IdentityService) Update(ctx context.Context, id string, input UpdateIdentityInput) (*domain.Identity, error) {
	identity, err := s.identities.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get identity for update: %w", err)
	}

	if input.Email != nil {
		email := credential.NormalizeEmail(*input.Email)
		if email == "" {
			return nil, apperrors.InvalidInput("email must not be empty")
		}
		identity.Email = email
	}
	if input.FirstName != nil {
		identity.FirstName = *input.FirstName
	}
	if input.LastName != nil {
		identity.LastName = *input.LastName
	}
	if input.RoleID != nil && *input.RoleID != identity.RoleID {
		role, err := s.roles.GetByID(ctx, *input.RoleID)
		if err != nil {
			if errors.Is(err, apperrors.ErrNotFound) {
				return nil, apperrors.NotFound("role", *input.RoleID)
			}
			return nil, fmt.Errorf("get role: %w", err)
		}
		if !role.IsActive {
			return nil, apperrors.InvalidInput("role is not active")
		}
		identity.RoleID = role.ID
	}

	if err := s.identities.Update(ctx, identity); err != nil {
		return nil, fmt.Errorf("update identity: %w", err)
	}

	s.logger.InfoContext(ctx, "identity updated", slog.String("identity_id", identity.ID))

	return identity, nil
}

// ChangePassword replaces the identity's password and signs it out
// everywhere. Identities without a password may set one without presenting
// a current password.
func (s *IdentityService) ChangePassword(ctx context.Context, id, current, next string) error {
	if err := credential.ValidatePassword(next); err != nil {
		return err
	}

	identity, err := s.identities.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("get identity for password change: %w", err)
	}

	if identity.HasPassword() && !s.hasher.Verify(current, identity.PasswordHash) {
		return apperrors.Unauthorized("current password is incorrect")
	}

	digest, err := s.hasher.Hash(next)
	if err != nil {
		return err
	}
	identity.PasswordHash = digest

	if err := s.identities.Update(ctx, identity); err != nil {
		return fmt.Errorf("update identity password: %w", err)
	}

	if _, err := revokeSessions(ctx, s.sessions, s.events, s.logger, identity.ID, event.RevokeReasonPasswordChange); err != nil {
		s.logger.ErrorContext(ctx, "failed to revoke sessions after password change",
			slog.String("identity_id", identity.ID),
			slog.String("error", err.Error()),
		)
	}

	return nil
}

// Delete removes an identity and its sessions.
func (s *IdentityService) Delete(ctx context.Context, id string) error {
	if _, err := s.identities.GetByID(ctx, id); err != nil {
		return fmt.Errorf("get identity for delete: %w", err)
	}

	if _, err := revokeSessions(ctx, s.sessions, s.events, s.logger, id, event.RevokeReasonDeleted); err != nil {
		return err
	}

	if err := s.identities.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete identity: %w", err)
	}

	s.logger.InfoContext(ctx, "identity deleted", slog.String("identity_id", id))

	return nil
}
