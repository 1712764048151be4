package credential

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/utafrali/authcore/internal/domain"
	apperrors "github.com/utafrali/authcore/pkg/errors"
)

// ExternalIdentityStore is the identity storage an ExternalSource needs.
type ExternalIdentityStore interface {
	GetByProvider(ctx context.Context, provider, subject string) (*domain.Identity, error)
	GetByEmail(ctx context.Context, email string) (*domain.Identity, error)
	Create(ctx context.Context, identity *domain.Identity) error
	Update(ctx context.Context, identity *domain.Identity) error
}

// DefaultRoleFinder returns the role assigned to new identities.
type DefaultRoleFinder interface {
	GetDefault(ctx context.Context) (*domain.Role, error)
}

// ExternalSource resolves assertions from a trusted identity provider,
// creating the identity on first login.
type ExternalSource struct {
	provider     string
	identities   ExternalIdentityStore
	roles        DefaultRoleFinder
	logger       *slog.Logger
	onRegistered func(ctx context.Context, identity *domain.Identity)
}

// NewExternalSource creates an ExternalSource for the named provider.
// onRegistered, if set, is called after an identity is created.
func NewExternalSource(
	provider string,
	identities ExternalIdentityStore,
	roles DefaultRoleFinder,
	logger *slog.Logger,
	onRegistered func(ctx context.Context, identity *domain.Identity),
) *ExternalSource {
	return &ExternalSource{
		provider:     provider,
		identities:   identities,
		roles:        roles,
		logger:       logger,
		onRegistered: onRegistered,
	}
}

// Name implements Source.
func (s *ExternalSource) Name() string { return s.provider }

// Authenticate implements Source.
func (s *ExternalSource) Authenticate(ctx context.Context, creds Credentials) (*domain.Identity, error) {
	if creds.Assertion == nil {
		return nil, fmt.Errorf("resolve external credential: %w", domain.ErrInvalidCredential)
	}
	return s.Resolve(ctx, *creds.Assertion)
}

// Resolve returns the identity linked to the assertion's subject. Unknown
// subjects are linked to an existing identity with the same email, or get a
// new identity with the default role.
func (s *ExternalSource) Resolve(ctx context.Context, a ProviderAssertion) (*domain.Identity, error) {
	if a.Provider == "" {
		a.Provider = s.provider
	}
	if a.Subject == "" {
		return nil, fmt.Errorf("resolve external credential: %w", domain.ErrInvalidCredential)
	}

	identity, err := s.identities.GetByProvider(ctx, a.Provider, a.Subject)
	if err == nil {
		return identity, nil
	}
	if !errors.Is(err, apperrors.ErrNotFound) {
		return nil, fmt.Errorf("look up identity by provider: %w", err)
	}

	email := NormalizeEmail(a.Email)
	if email == "" {
		return nil, domain.ErrMissingEmail
	}

	existing, err := s.identities.GetByEmail(ctx, email)
	switch {
	case err == nil:
		return s.link(ctx, existing, a)
	case !errors.Is(err, apperrors.ErrNotFound):
		return nil, fmt.Errorf("look up identity by email: %w", err)
	}

	role, err := s.roles.GetDefault(ctx)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, domain.ErrNoDefaultRole
		}
		return nil, fmt.Errorf("get default role: %w", err)
	}

	now := time.Now().UTC()
	identity = &domain.Identity{
		ID:              uuid.New().String(),
		Email:           email,
		FirstName:       a.GivenName,
		LastName:        a.FamilyName,
		RoleID:          role.ID,
		Provider:        a.Provider,
		ProviderSubject: a.Subject,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.identities.Create(ctx, identity); err != nil {
		if errors.Is(err, apperrors.ErrAlreadyExists) {
			// A concurrent first login created it.
			return s.identities.GetByProvider(ctx, a.Provider, a.Subject)
		}
		return nil, fmt.Errorf("create external identity: %w", err)
	}

	s.logger.InfoContext(ctx, "identity created from external provider",
		slog.String("identity_id", identity.ID),
		slog.String("provider", a.Provider),
	)
	if s.onRegistered != nil {
		s.onRegistered(ctx, identity)
	}

	return identity, nil
}

func (s *ExternalSource) link(ctx context.Context, identity *domain.Identity, a ProviderAssertion) (*domain.Identity, error) {
	if identity.Provider != "" && !identity.LinkedTo(a.Provider, a.Subject) {
		s.logger.WarnContext(ctx, "email already linked to another external subject",
			slog.String("identity_id", identity.ID),
			slog.String("provider", a.Provider),
		)
		return nil, fmt.Errorf("resolve external credential: %w", domain.ErrInvalidCredential)
	}

	identity.Provider = a.Provider
	identity.ProviderSubject = a.Subject
	if err := s.identities.Update(ctx, identity); err != nil {
		return nil, fmt.Errorf("link external identity: %w", err)
	}

	s.logger.InfoContext(ctx, "external provider linked to identity",
		slog.String("identity_id", identity.ID),
		slog.String("provider", a.Provider),
	)
	return identity, nil
}
