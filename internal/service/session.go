package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/utafrali/authcore/internal/auth"
	"github.com/utafrali/authcore/internal/credential"
	"github.com/utafrali/authcore/internal/domain"
	"github.com/utafrali/authcore/internal/event"
	"github.com/utafrali/authcore/internal/repository"
	apperrors "github.com/utafrali/authcore/pkg/errors"
	"github.com/utafrali/authcore/pkg/tracing"
)

const tracerName = "authcore/service"

// Messages returned to clients. Credential and token failures share a small
// fixed set so the response never tells which check failed.
const (
	MsgInvalidCredentials   = "Invalid credentials"
	MsgMissingEmail         = "Email not provided by identity provider"
	MsgNoDefaultRole        = "No default role configured"
	MsgRefreshTokenNotFound = "Refresh token not found"
	MsgInvalidRefreshToken  = "Invalid refresh token"
	MsgUserNotFound         = "User not found"
)

// EventPublisher publishes authcore events. Failures are logged by the
// caller and never fail the operation.
type EventPublisher interface {
	PublishIdentityRegistered(ctx context.Context, identity *domain.Identity) error
	PublishSessionCreated(ctx context.Context, identityID, source string, fp domain.Fingerprint) error
	PublishSessionRefreshed(ctx context.Context, identityID string, fp domain.Fingerprint) error
	PublishSessionRevoked(ctx context.Context, identityID, reason string, count int64) error
}

// Authorizer decides whether a role may perform a request.
type Authorizer interface {
	Enabled() bool
	IsAuthorized(ctx context.Context, role *domain.Role, method, path string) (bool, error)
}

// LoginResult is the outcome of a successful login.
type LoginResult struct {
	Identity *domain.Identity
	Tokens   *domain.TokenPair
	State    domain.State
}

// RefreshResult is the outcome of a successful rotation.
type RefreshResult struct {
	Identity *domain.Identity
	Tokens   *domain.TokenPair
	State    domain.State
}

// LogoutResult is the outcome of a logout.
type LogoutResult struct {
	IdentityID string
	State      domain.State
}

// SessionService composes credential verification, token issuance, session
// persistence and permission evaluation into login, refresh, logout and
// per-request authorization.
type SessionService struct {
	sources    map[string]credential.Source
	tokens     *auth.TokenManager
	sessions   repository.SessionStore
	identities repository.IdentityRepository
	roles      repository.RoleRepository
	authz      Authorizer
	events     EventPublisher
	logger     *slog.Logger
	now        func() time.Time
}

// NewSessionService creates a SessionService. Each source is registered
// under its Name.
func NewSessionService(
	tokens *auth.TokenManager,
	sessions repository.SessionStore,
	identities repository.IdentityRepository,
	roles repository.RoleRepository,
	authz Authorizer,
	events EventPublisher,
	logger *slog.Logger,
	sources ...credential.Source,
) *SessionService {
	s := &SessionService{
		sources:    make(map[string]credential.Source, len(sources)),
		tokens:     tokens,
		sessions:   sessions,
		identities: identities,
		roles:      roles,
		authz:      authz,
		events:     events,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, src := range sources {
		s.sources[src.Name()] = src
	}
	return s
}

// HasSource reports whether a credential source is registered under name.
func (s *SessionService) HasSource(name string) bool {
	_, ok := s.sources[name]
	return ok
}

// Login authenticates creds against the named source, issues a token pair
// and persists the refresh token bound to fp.
func (s *SessionService) Login(ctx context.Context, source string, creds credential.Credentials, fp domain.Fingerprint) (_ *LoginResult, err error) {
	src, ok := s.sources[source]
	if !ok {
		return nil, apperrors.InvalidInput(fmt.Sprintf("unsupported credential source %q", source))
	}

	ctx, end := tracing.StartSpan(ctx, tracerName, "session.Login", attribute.String("auth.source", source))
	defer func() { end(err) }()

	identity, err := src.Authenticate(ctx, creds)
	if err != nil {
		return nil, s.loginFailure(ctx, source, err)
	}

	now := s.now()
	tokens, session, err := s.issue(identity, fp, now)
	if err != nil {
		loginTotal.WithLabelValues(source, outcomeError).Inc()
		return nil, err
	}
	if err := s.sessions.Save(ctx, session); err != nil {
		loginTotal.WithLabelValues(source, outcomeError).Inc()
		return nil, fmt.Errorf("save session: %w", err)
	}

	if err := s.identities.UpdateLastLogin(ctx, identity.ID, now); err != nil {
		s.logger.ErrorContext(ctx, "failed to record last login",
			slog.String("identity_id", identity.ID),
			slog.String("error", err.Error()),
		)
	} else {
		identity.LastLoginAt = &now
	}

	if err := s.events.PublishSessionCreated(ctx, identity.ID, source, fp); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish session.created event",
			slog.String("identity_id", identity.ID),
			slog.String("error", err.Error()),
		)
	}

	loginTotal.WithLabelValues(source, outcomeSuccess).Inc()
	s.logger.InfoContext(ctx, "identity logged in",
		slog.String("identity_id", identity.ID),
		slog.String("source", source),
	)

	return &LoginResult{Identity: identity, Tokens: tokens, State: domain.StateAuthenticated}, nil
}

func (s *SessionService) loginFailure(ctx context.Context, source string, err error) error {
	switch {
	case errors.Is(err, domain.ErrInvalidCredential), errors.Is(err, apperrors.ErrUnauthorized):
		loginTotal.WithLabelValues(source, outcomeFailure).Inc()
		return apperrors.Unauthorized(MsgInvalidCredentials)
	case errors.Is(err, domain.ErrMissingEmail):
		loginTotal.WithLabelValues(source, outcomeFailure).Inc()
		s.logger.WarnContext(ctx, "login failed", slog.String("reason", err.Error()), slog.String("source", source))
		return apperrors.Unauthorized(MsgMissingEmail)
	case errors.Is(err, domain.ErrNoDefaultRole):
		loginTotal.WithLabelValues(source, outcomeError).Inc()
		s.logger.ErrorContext(ctx, "login failed", slog.String("reason", err.Error()), slog.String("source", source))
		return apperrors.Prerequisite(MsgNoDefaultRole)
	default:
		loginTotal.WithLabelValues(source, outcomeError).Inc()
		return fmt.Errorf("authenticate via %s: %w", source, err)
	}
}

// Refresh rotates refreshToken. The presented token must carry a valid
// signature, have a live Session Record owned by the token's identity and
// be presented from the fingerprint it was issued to. A rejected attempt
// never consumes the record. Of several concurrent rotations of one token
// at most one succeeds.
func (s *SessionService) Refresh(ctx context.Context, refreshToken string, fp domain.Fingerprint) (_ *RefreshResult, err error) {
	if refreshToken == "" {
		refreshTotal.WithLabelValues(outcomeFailure).Inc()
		return nil, apperrors.Unauthorized(MsgRefreshTokenNotFound)
	}

	ctx, end := tracing.StartSpan(ctx, tracerName, "session.Refresh")
	defer func() { end(err) }()

	stored, err := s.liveSession(ctx, refreshToken, fp)
	if err != nil {
		return nil, s.refreshFailure(ctx, err)
	}

	identity, err := s.identities.GetByID(ctx, stored.IdentityID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			refreshTotal.WithLabelValues(outcomeFailure).Inc()
			return nil, apperrors.Unauthorized(MsgUserNotFound)
		}
		refreshTotal.WithLabelValues(outcomeError).Inc()
		return nil, fmt.Errorf("get identity for refresh: %w", err)
	}

	now := s.now()
	tokens, next, err := s.issue(identity, fp, now)
	if err != nil {
		refreshTotal.WithLabelValues(outcomeError).Inc()
		return nil, err
	}

	if err := s.sessions.Rotate(ctx, stored.TokenHash, fp, now, next); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, s.refreshFailure(ctx, fmt.Errorf("rotate: %w", domain.ErrSessionNotFound))
		}
		refreshTotal.WithLabelValues(outcomeError).Inc()
		return nil, fmt.Errorf("rotate session: %w", err)
	}

	if err := s.events.PublishSessionRefreshed(ctx, identity.ID, fp); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish session.refreshed event",
			slog.String("identity_id", identity.ID),
			slog.String("error", err.Error()),
		)
	}

	refreshTotal.WithLabelValues(outcomeSuccess).Inc()
	s.logger.InfoContext(ctx, "tokens refreshed", slog.String("identity_id", identity.ID))

	return &RefreshResult{Identity: identity, Tokens: tokens, State: domain.StateAuthenticated}, nil
}

func (s *SessionService) refreshFailure(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, domain.ErrTokenInvalid),
		errors.Is(err, domain.ErrSessionNotFound),
		errors.Is(err, domain.ErrFingerprintMismatch):
		refreshTotal.WithLabelValues(outcomeFailure).Inc()
		s.logger.WarnContext(ctx, "refresh rejected", slog.String("reason", err.Error()))
		return apperrors.Unauthorized(MsgInvalidRefreshToken)
	default:
		refreshTotal.WithLabelValues(outcomeError).Inc()
		return err
	}
}

// liveSession returns the Session Record for token if it is valid, unexpired
// and bound to fp. It does not modify the record.
func (s *SessionService) liveSession(ctx context.Context, token string, fp domain.Fingerprint) (*domain.Session, error) {
	claims, err := s.tokens.ValidateRefreshToken(token)
	if err != nil {
		return nil, err
	}

	stored, err := s.sessions.FindByTokenHash(ctx, auth.HashToken(token))
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, fmt.Errorf("find session: %w", err)
	}

	if stored.IdentityID != claims.IdentityID {
		return nil, fmt.Errorf("session owner differs from token subject: %w", domain.ErrSessionNotFound)
	}
	if stored.Expired(s.now()) {
		return nil, fmt.Errorf("session expired: %w", domain.ErrSessionNotFound)
	}
	if !stored.Fingerprint.Matches(fp) {
		return nil, domain.ErrFingerprintMismatch
	}
	return stored, nil
}

// Logout ends the caller's session. The caller is identified by the access
// token or, when that no longer verifies, by a live refresh token presented
// from its original fingerprint. The refresh token's Session Record is
// deleted when it belongs to the caller.
func (s *SessionService) Logout(ctx context.Context, accessToken, refreshToken string, fp domain.Fingerprint) (*LogoutResult, error) {
	identity := s.CurrentUser(ctx, accessToken)
	if identity == nil && refreshToken != "" {
		if stored, err := s.liveSession(ctx, refreshToken, fp); err == nil {
			identity = s.lookupIdentity(ctx, stored.IdentityID)
		}
	}
	if identity == nil {
		return nil, apperrors.Unauthorized(MsgUserNotFound)
	}

	var revoked int64
	if refreshToken != "" {
		hash := auth.HashToken(refreshToken)
		stored, err := s.sessions.FindByTokenHash(ctx, hash)
		switch {
		case err == nil && stored.IdentityID == identity.ID:
			if err := s.sessions.Consume(ctx, hash); err != nil {
				return nil, fmt.Errorf("consume session: %w", err)
			}
			revoked = 1
		case err != nil && !errors.Is(err, apperrors.ErrNotFound):
			return nil, fmt.Errorf("find session: %w", err)
		}
	}

	if revoked > 0 {
		if err := s.events.PublishSessionRevoked(ctx, identity.ID, event.RevokeReasonLogout, revoked); err != nil {
			s.logger.ErrorContext(ctx, "failed to publish session.revoked event",
				slog.String("identity_id", identity.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	s.logger.InfoContext(ctx, "identity logged out", slog.String("identity_id", identity.ID))

	return &LogoutResult{IdentityID: identity.ID, State: domain.StateLoggedOut}, nil
}

// CurrentUser resolves an access token to its Identity. Every failure yields
// nil.
func (s *SessionService) CurrentUser(ctx context.Context, accessToken string) *domain.Identity {
	if accessToken == "" {
		return nil
	}
	claims, err := s.tokens.ValidateAccessToken(accessToken)
	if err != nil {
		return nil
	}
	return s.lookupIdentity(ctx, claims.IdentityID)
}

func (s *SessionService) lookupIdentity(ctx context.Context, id string) *domain.Identity {
	identity, err := s.identities.GetByID(ctx, id)
	if err != nil {
		if !errors.Is(err, apperrors.ErrNotFound) {
			s.logger.ErrorContext(ctx, "failed to resolve identity",
				slog.String("identity_id", id),
				slog.String("error", err.Error()),
			)
		}
		return nil
	}
	return identity
}

// RoleOf returns the role of identity, or nil if it no longer exists.
func (s *SessionService) RoleOf(ctx context.Context, identity *domain.Identity) (*domain.Role, error) {
	role, err := s.roles.GetByID(ctx, identity.RoleID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get role %s: %w", identity.RoleID, err)
	}
	return role, nil
}

// Authorize reports whether identity may perform method on path. It always
// allows when permission evaluation is disabled.
func (s *SessionService) Authorize(ctx context.Context, identity *domain.Identity, method, path string) (bool, error) {
	if !s.authz.Enabled() {
		return true, nil
	}
	if identity == nil {
		return false, nil
	}

	role, err := s.RoleOf(ctx, identity)
	if err != nil {
		return false, err
	}
	return s.authz.IsAuthorized(ctx, role, method, path)
}

// RevokeAll deletes every session of an identity.
func (s *SessionService) RevokeAll(ctx context.Context, identityID string) (int64, error) {
	if _, err := s.identities.GetByID(ctx, identityID); err != nil {
		return 0, fmt.Errorf("get identity for revoke: %w", err)
	}
	return revokeSessions(ctx, s.sessions, s.events, s.logger, identityID, event.RevokeReasonAdmin)
}

// PruneExpired deletes expired Session Records.
func (s *SessionService) PruneExpired(ctx context.Context) (int64, error) {
	n, err := s.sessions.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("prune expired sessions: %w", err)
	}
	return n, nil
}

func (s *SessionService) issue(identity *domain.Identity, fp domain.Fingerprint, now time.Time) (*domain.TokenPair, *domain.Session, error) {
	access, accessExp, err := s.tokens.GenerateAccessToken(identity.ID, identity.Email)
	if err != nil {
		return nil, nil, fmt.Errorf("generate access token: %w", err)
	}
	refresh, refreshExp, err := s.tokens.GenerateRefreshToken(identity.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("generate refresh token: %w", err)
	}

	pair := &domain.TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}
	session := &domain.Session{
		TokenHash:   auth.HashToken(refresh),
		IdentityID:  identity.ID,
		Fingerprint: fp,
		IssuedAt:    now,
		ExpiresAt:   refreshExp,
	}
	return pair, session, nil
}

func revokeSessions(
	ctx context.Context,
	sessions repository.SessionStore,
	events EventPublisher,
	logger *slog.Logger,
	identityID, reason string,
) (int64, error) {
	n, err := sessions.RevokeAll(ctx, identityID)
	if err != nil {
		return 0, fmt.Errorf("revoke sessions: %w", err)
	}

	if n > 0 {
		if err := events.PublishSessionRevoked(ctx, identityID, reason, n); err != nil {
			logger.ErrorContext(ctx, "failed to publish session.revoked event",
				slog.String("identity_id", identityID),
				slog.String("error", err.Error()),
			)
		}
	}

	logger.InfoContext(ctx, "sessions revoked",
		slog.String("identity_id", identityID),
		slog.String("reason", reason),
		slog.Int64("count", n),
	)
	return n, nil
}
