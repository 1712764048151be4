package http

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/utafrali/authcore/internal/domain"
	apperrors "github.com/utafrali/authcore/pkg/errors"
)

// In-memory repositories. Handler tests drive whole request flows, so the
// fakes keep state instead of scripting calls one by one.

type memIdentities struct {
	mu   sync.Mutex
	byID map[string]domain.Identity
}

func newMemIdentities() *memIdentities {
	return &memIdentities{byID: make(map[string]domain.Identity)}
}

func (m *memIdentities) Create(_ context.Context, identity *domain.Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.byID {
		if existing.Email == identity.Email {
			return apperrors.AlreadyExists("identity", "email", identity.Email)
		}
	}
	m.byID[identity.ID] = *identity
	return nil
}

func (m *memIdentities) GetByID(_ context.Context, id string) (*domain.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	identity, ok := m.byID[id]
	if !ok {
		return nil, apperrors.NotFound("identity", id)
	}
	return &identity, nil
}

func (m *memIdentities) GetByEmail(_ context.Context, email string) (*domain.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, identity := range m.byID {
		if identity.Email == email {
			return &identity, nil
		}
	}
	return nil, apperrors.NotFound("identity", email)
}

func (m *memIdentities) GetByProvider(_ context.Context, provider, subject string) (*domain.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, identity := range m.byID {
		if identity.LinkedTo(provider, subject) {
			return &identity, nil
		}
	}
	return nil, apperrors.NotFound("identity", subject)
}

func (m *memIdentities) List(_ context.Context, limit, offset int) ([]domain.Identity, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := make([]domain.Identity, 0, len(m.byID))
	for _, identity := range m.byID {
		all = append(all, identity)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Email < all[j].Email })

	if offset >= len(all) {
		return nil, len(all), nil
	}
	end := min(offset+limit, len(all))
	return all[offset:end], len(all), nil
}

func (m *memIdentities) Update(_ context.Context, identity *domain.Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[identity.ID]; !ok {
		return apperrors.NotFound("identity", identity.ID)
	}
	m.byID[identity.ID] = *identity
	return nil
}

func (m *memIdentities) UpdateLastLogin(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	identity, ok := m.byID[id]
	if !ok {
		return apperrors.NotFound("identity", id)
	}
	identity.LastLoginAt = &at
	m.byID[id] = identity
	return nil
}

func (m *memIdentities) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[id]; !ok {
		return apperrors.NotFound("identity", id)
	}
	delete(m.byID, id)
	return nil
}

type memRoles struct {
	mu   sync.Mutex
	byID map[string]domain.Role
}

func newMemRoles(roles ...domain.Role) *memRoles {
	m := &memRoles{byID: make(map[string]domain.Role)}
	for _, r := range roles {
		m.byID[r.ID] = r
	}
	return m
}

func (m *memRoles) Create(_ context.Context, role *domain.Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.byID {
		if existing.Name == role.Name {
			return apperrors.AlreadyExists("role", "name", role.Name)
		}
	}
	m.byID[role.ID] = *role
	return nil
}

func (m *memRoles) GetByID(_ context.Context, id string) (*domain.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	role, ok := m.byID[id]
	if !ok {
		return nil, apperrors.NotFound("role", id)
	}
	return &role, nil
}

func (m *memRoles) GetDefault(_ context.Context) (*domain.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, role := range m.byID {
		if role.IsDefault && role.IsActive {
			return &role, nil
		}
	}
	return nil, apperrors.NotFound("role", "default")
}

func (m *memRoles) List(_ context.Context) ([]domain.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	roles := make([]domain.Role, 0, len(m.byID))
	for _, role := range m.byID {
		roles = append(roles, role)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i].Name < roles[j].Name })
	return roles, nil
}

func (m *memRoles) Update(_ context.Context, role *domain.Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[role.ID]; !ok {
		return apperrors.NotFound("role", role.ID)
	}
	m.byID[role.ID] = *role
	return nil
}

func (m *memRoles) SoftDelete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	role, ok := m.byID[id]
	if !ok {
		return apperrors.NotFound("role", id)
	}
	role.IsActive = false
	m.byID[id] = role
	return nil
}

func (m *memRoles) SetDefault(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	target, ok := m.byID[id]
	if !ok || !target.IsActive {
		return apperrors.NotFound("role", id)
	}
	for rid, role := range m.byID {
		role.IsDefault = rid == id
		m.byID[rid] = role
	}
	return nil
}

type memPermissions struct {
	mu   sync.Mutex
	byID map[string]domain.Permission
	// err, when set, fails every read.
	err error
}

func newMemPermissions() *memPermissions {
	return &memPermissions{byID: make(map[string]domain.Permission)}
}

func (m *memPermissions) Create(_ context.Context, p *domain.Permission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[p.ID] = *p
	return nil
}

func (m *memPermissions) GetByID(_ context.Context, id string) (*domain.Permission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[id]
	if !ok {
		return nil, apperrors.NotFound("permission", id)
	}
	return &p, nil
}

func (m *memPermissions) List(_ context.Context) ([]domain.Permission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	perms := make([]domain.Permission, 0, len(m.byID))
	for _, p := range m.byID {
		perms = append(perms, p)
	}
	return perms, nil
}

func (m *memPermissions) ListByRole(_ context.Context, roleID string) ([]domain.Permission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	var perms []domain.Permission
	for _, p := range m.byID {
		if p.RoleID == roleID {
			perms = append(perms, p)
		}
	}
	return perms, nil
}

func (m *memPermissions) Update(_ context.Context, p *domain.Permission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[p.ID]; !ok {
		return apperrors.NotFound("permission", p.ID)
	}
	m.byID[p.ID] = *p
	return nil
}

func (m *memPermissions) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[id]; !ok {
		return apperrors.NotFound("permission", id)
	}
	delete(m.byID, id)
	return nil
}

func (m *memPermissions) fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

var errStorage = errors.New("storage unavailable")

// noopEvents drops every event.
type noopEvents struct{}

func (noopEvents) PublishIdentityRegistered(context.Context, *domain.Identity) error { return nil }
func (noopEvents) PublishSessionCreated(context.Context, string, string, domain.Fingerprint) error {
	return nil
}
func (noopEvents) PublishSessionRefreshed(context.Context, string, domain.Fingerprint) error {
	return nil
}
func (noopEvents) PublishSessionRevoked(context.Context, string, string, int64) error { return nil }
