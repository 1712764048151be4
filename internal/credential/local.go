package credential

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/utafrali/authcore/internal/domain"
	apperrors "github.com/utafrali/authcore/pkg/errors"
)

// IdentityByEmail looks up an identity by email.
type IdentityByEmail interface {
	GetByEmail(ctx context.Context, email string) (*domain.Identity, error)
}

// LocalSource verifies an email and password against stored bcrypt digests.
type LocalSource struct {
	identities IdentityByEmail
	hasher     *Hasher
	logger     *slog.Logger
}

// NewLocalSource creates a LocalSource.
func NewLocalSource(identities IdentityByEmail, hasher *Hasher, logger *slog.Logger) *LocalSource {
	return &LocalSource{identities: identities, hasher: hasher, logger: logger}
}

// Name implements Source.
func (s *LocalSource) Name() string { return SourceLocal }

// Authenticate implements Source.
func (s *LocalSource) Authenticate(ctx context.Context, creds Credentials) (*domain.Identity, error) {
	return s.Verify(ctx, creds.Identifier, creds.Secret)
}

// Verify returns the identity owning email if secret matches its password.
// An unknown email, an account without a password and a wrong password all
// return an error wrapping domain.ErrInvalidCredential; only the log line
// tells them apart.
func (s *LocalSource) Verify(ctx context.Context, email, secret string) (*domain.Identity, error) {
	email = NormalizeEmail(email)

	identity, err := s.identities.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			s.hasher.VerifyDummy(secret)
			s.logger.WarnContext(ctx, "login failed", slog.String("reason", "unknown email"))
			return nil, fmt.Errorf("verify local credential: %w", domain.ErrInvalidCredential)
		}
		return nil, fmt.Errorf("look up identity by email: %w", err)
	}

	if !identity.HasPassword() {
		s.hasher.VerifyDummy(secret)
		s.logger.WarnContext(ctx, "login failed",
			slog.String("reason", "no local password"),
			slog.String("identity_id", identity.ID),
		)
		return nil, fmt.Errorf("verify local credential: %w", domain.ErrInvalidCredential)
	}

	if !s.hasher.Verify(secret, identity.PasswordHash) {
		s.logger.WarnContext(ctx, "login failed",
			slog.String("reason", "password mismatch"),
			slog.String("identity_id", identity.ID),
		)
		return nil, fmt.Errorf("verify local credential: %w", domain.ErrInvalidCredential)
	}

	return identity, nil
}

// NormalizeEmail lower-cases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
