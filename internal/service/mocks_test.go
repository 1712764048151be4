package service

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/utafrali/authcore/internal/auth"
	"github.com/utafrali/authcore/internal/credential"
	"github.com/utafrali/authcore/internal/domain"
)

// --- Mock Identity Repository ---

type mockIdentityRepository struct {
	mock.Mock
}

func (m *mockIdentityRepository) Create(ctx context.Context, identity *domain.Identity) error {
	return m.Called(ctx, identity).Error(0)
}

func (m *mockIdentityRepository) GetByID(ctx context.Context, id string) (*domain.Identity, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Identity), args.Error(1)
}

func (m *mockIdentityRepository) GetByEmail(ctx context.Context, email string) (*domain.Identity, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Identity), args.Error(1)
}

func (m *mockIdentityRepository) GetByProvider(ctx context.Context, provider, subject string) (*domain.Identity, error) {
	args := m.Called(ctx, provider, subject)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Identity), args.Error(1)
}

func (m *mockIdentityRepository) List(ctx context.Context, limit, offset int) ([]domain.Identity, int, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]domain.Identity), args.Int(1), args.Error(2)
}

func (m *mockIdentityRepository) Update(ctx context.Context, identity *domain.Identity) error {
	return m.Called(ctx, identity).Error(0)
}

func (m *mockIdentityRepository) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	return m.Called(ctx, id, at).Error(0)
}

func (m *mockIdentityRepository) Delete(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

// --- Mock Role Repository ---

type mockRoleRepository struct {
	mock.Mock
}

func (m *mockRoleRepository) Create(ctx context.Context, role *domain.Role) error {
	return m.Called(ctx, role).Error(0)
}

func (m *mockRoleRepository) GetByID(ctx context.Context, id string) (*domain.Role, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Role), args.Error(1)
}

func (m *mockRoleRepository) GetDefault(ctx context.Context) (*domain.Role, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Role), args.Error(1)
}

func (m *mockRoleRepository) List(ctx context.Context) ([]domain.Role, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Role), args.Error(1)
}

func (m *mockRoleRepository) Update(ctx context.Context, role *domain.Role) error {
	return m.Called(ctx, role).Error(0)
}

func (m *mockRoleRepository) SoftDelete(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockRoleRepository) SetDefault(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

// --- Mock Permission Repository ---

type mockPermissionRepository struct {
	mock.Mock
}

func (m *mockPermissionRepository) Create(ctx context.Context, p *domain.Permission) error {
	return m.Called(ctx, p).Error(0)
}

func (m *mockPermissionRepository) GetByID(ctx context.Context, id string) (*domain.Permission, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Permission), args.Error(1)
}

func (m *mockPermissionRepository) List(ctx context.Context) ([]domain.Permission, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Permission), args.Error(1)
}

func (m *mockPermissionRepository) ListByRole(ctx context.Context, roleID string) ([]domain.Permission, error) {
	args := m.Called(ctx, roleID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Permission), args.Error(1)
}

func (m *mockPermissionRepository) Update(ctx context.Context, p *domain.Permission) error {
	return m.Called(ctx, p).Error(0)
}

func (m *mockPermissionRepository) Delete(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

// --- Mock Session Store ---

type mockSessionStore struct {
	mock.Mock
}

func (m *mockSessionStore) Save(ctx context.Context, session *domain.Session) error {
	return m.Called(ctx, session).Error(0)
}

func (m *mockSessionStore) FindByTokenHash(ctx context.Context, tokenHash string) (*domain.Session, error) {
	args := m.Called(ctx, tokenHash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Session), args.Error(1)
}

func (m *mockSessionStore) Consume(ctx context.Context, tokenHash string) error {
	return m.Called(ctx, tokenHash).Error(0)
}

func (m *mockSessionStore) Rotate(ctx context.Context, oldHash string, fp domain.Fingerprint, now time.Time, next *domain.Session) error {
	return m.Called(ctx, oldHash, fp, now, next).Error(0)
}

func (m *mockSessionStore) RevokeAll(ctx context.Context, identityID string) (int64, error) {
	args := m.Called(ctx, identityID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockSessionStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	args := m.Called(ctx, now)
	return args.Get(0).(int64), args.Error(1)
}

// --- Mock Event Publisher ---

type mockEventPublisher struct {
	mock.Mock
}

func (m *mockEventPublisher) PublishIdentityRegistered(ctx context.Context, identity *domain.Identity) error {
	return m.Called(ctx, identity).Error(0)
}

func (m *mockEventPublisher) PublishSessionCreated(ctx context.Context, identityID, source string, fp domain.Fingerprint) error {
	return m.Called(ctx, identityID, source, fp).Error(0)
}

func (m *mockEventPublisher) PublishSessionRefreshed(ctx context.Context, identityID string, fp domain.Fingerprint) error {
	return m.Called(ctx, identityID, fp).Error(0)
}

func (m *mockEventPublisher) PublishSessionRevoked(ctx context.Context, identityID, reason string, count int64) error {
	return m.Called(ctx, identityID, reason, count).Error(0)
}

// quietEvents accepts every event.
func quietEvents() *mockEventPublisher {
	e := new(mockEventPublisher)
	e.On("PublishIdentityRegistered", mock.Anything, mock.Anything).Return(nil).Maybe()
	e.On("PublishSessionCreated", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	e.On("PublishSessionRefreshed", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	e.On("PublishSessionRevoked", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	return e
}

// --- Mock Authorizer ---

type mockAuthorizer struct {
	mock.Mock
}

func (m *mockAuthorizer) Enabled() bool {
	return m.Called().Bool(0)
}

func (m *mockAuthorizer) IsAuthorized(ctx context.Context, role *domain.Role, method, path string) (bool, error) {
	args := m.Called(ctx, role, method, path)
	return args.Bool(0), args.Error(1)
}

// --- Stub credential source ---

type stubSource struct {
	name     string
	identity *domain.Identity
	err      error
}

func (s *stubSource) Name() string { return s.name }

func (s *stubSource) Authenticate(context.Context, credential.Credentials) (*domain.Identity, error) {
	return s.identity, s.err
}

// --- Test Helpers ---

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestTokenManager() *auth.TokenManager {
	return auth.NewTokenManager(
		"test-access-secret-with-enough-length!!",
		"test-refresh-secret-with-enough-length!",
		time.Hour,
		7*24*time.Hour,
	)
}
