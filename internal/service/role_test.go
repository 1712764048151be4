package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/authcore/internal/domain"
	apperrors "github.com/utafrali/authcore/pkg/errors"
)

func newRoleService() (*RoleService, *mockRoleRepository, *mockPermissionRepository) {
	roles := new(mockRoleRepository)
	perms := new(mockPermissionRepository)
	return NewRoleService(roles, perms, newTestLogger()), roles, perms
}

func boolPtr(b bool) *bool { return &b }

// --- Roles ---

func TestCreateRole(t *testing.T) {
	svc, roles, _ := newRoleService()
	roles.On("Create", mock.Anything, mock.AnythingOfType("*domain.Role")).Return(nil)

	role, err := svc.CreateRole(context.Background(), RoleInput{Name: "editor", Description: "edits"})

	require.NoError(t, err)
	assert.NotEmpty(t, role.ID)
	assert.True(t, role.IsActive)
	assert.False(t, role.IsDefault)
}

func TestCreateRole_RequiresName(t *testing.T) {
	svc, roles, _ := newRoleService()

	_, err := svc.CreateRole(context.Background(), RoleInput{})

	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	roles.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestListRoles_EmptyIsNotNil(t *testing.T) {
	svc, roles, _ := newRoleService()
	roles.On("List", mock.Anything).Return(nil, nil)

	got, err := svc.ListRoles(context.Background())

	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestUpdateRole(t *testing.T) {
	svc, roles, _ := newRoleService()
	existing := &domain.Role{ID: "role-1", Name: "editor", IsActive: true}
	roles.On("GetByID", mock.Anything, "role-1").Return(existing, nil)
	roles.On("Update", mock.Anything, existing).Return(nil)

	got, err := svc.UpdateRole(context.Background(), "role-1", RoleInput{Name: "admin", IsAdmin: true, IsActive: boolPtr(false)})

	require.NoError(t, err)
	assert.Equal(t, "admin", got.Name)
	assert.True(t, got.IsAdmin)
	assert.False(t, got.IsActive)
}

func TestUpdateRole_CannotDeactivateDefault(t *testing.T) {
	svc, roles, _ := newRoleService()
	roles.On("GetByID", mock.Anything, "role-user").Return(&domain.Role{ID: "role-user", IsDefault: true, IsActive: true}, nil)

	_, err := svc.UpdateRole(context.Background(), "role-user", RoleInput{Name: "user", IsActive: boolPtr(false)})

	assert.ErrorIs(t, err, apperrors.ErrConflict)
	roles.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
}

func TestDeleteRole(t *testing.T) {
	svc, roles, _ := newRoleService()
	roles.On("GetByID", mock.Anything, "role-1").Return(&domain.Role{ID: "role-1", IsActive: true}, nil)
	roles.On("SoftDelete", mock.Anything, "role-1").Return(nil)

	require.NoError(t, svc.DeleteRole(context.Background(), "role-1"))
	roles.AssertExpectations(t)
}

func TestDeleteRole_Default(t *testing.T) {
	svc, roles, _ := newRoleService()
	roles.On("GetByID", mock.Anything, "role-user").Return(&domain.Role{ID: "role-user", IsDefault: true}, nil)

	err := svc.DeleteRole(context.Background(), "role-user")

	assert.ErrorIs(t, err, apperrors.ErrConflict)
	roles.AssertNotCalled(t, "SoftDelete", mock.Anything, mock.Anything)
}

func TestSetDefaultRole(t *testing.T) {
	svc, roles, _ := newRoleService()
	roles.On("SetDefault", mock.Anything, "role-2").Return(nil)
	roles.On("GetByID", mock.Anything, "role-2").Return(&domain.Role{ID: "role-2", IsDefault: true, IsActive: true}, nil)

	got, err := svc.SetDefaultRole(context.Background(), "role-2")

	require.NoError(t, err)
	assert.True(t, got.IsDefault)
}

func TestSetDefaultRole_Inactive(t *testing.T) {
	svc, roles, _ := newRoleService()
	roles.On("SetDefault", mock.Anything, "role-old").Return(apperrors.NotFound("role", "role-old"))

	_, err := svc.SetDefaultRole(context.Background(), "role-old")

	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

// --- Permissions ---

func TestCreatePermission(t *testing.T) {
	svc, roles, perms := newRoleService()
	roles.On("GetByID", mock.Anything, "role-user").Return(&domain.Role{ID: "role-user"}, nil)
	perms.On("Create", mock.Anything, mock.AnythingOfType("*domain.Permission")).Return(nil)

	p, err := svc.CreatePermission(context.Background(), PermissionInput{RoleID: "role-user", Method: "get", Path: "/items/:id"})

	require.NoError(t, err)
	assert.Equal(t, "GET", p.Method)
	assert.Equal(t, "/items/:id", p.Path)
	assert.NotEmpty(t, p.ID)
}

func TestCreatePermission_Validation(t *testing.T) {
	tests := []struct {
		name  string
		input PermissionInput
	}{
		{"bad method", PermissionInput{RoleID: "role-user", Method: "FETCH", Path: "/items"}},
		{"relative path", PermissionInput{RoleID: "role-user", Method: "GET", Path: "items"}},
		{"wildcard not last", PermissionInput{RoleID: "role-user", Method: "GET", Path: "/items/*/x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _, perms := newRoleService()

			_, err := svc.CreatePermission(context.Background(), tt.input)

			assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
			perms.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
		})
	}
}

func TestCreatePermission_UnknownRole(t *testing.T) {
	svc, roles, perms := newRoleService()
	roles.On("GetByID", mock.Anything, "role-x").Return(nil, apperrors.ErrNotFound)

	_, err := svc.CreatePermission(context.Background(), PermissionInput{RoleID: "role-x", Method: "GET", Path: "/items"})

	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	perms.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestListPermissions(t *testing.T) {
	svc, _, perms := newRoleService()
	byRole := []domain.Permission{{ID: "p-1", RoleID: "role-user"}}
	perms.On("ListByRole", mock.Anything, "role-user").Return(byRole, nil)
	perms.On("List", mock.Anything).Return(nil, nil)

	got, err := svc.ListPermissions(context.Background(), "role-user")
	require.NoError(t, err)
	assert.Equal(t, byRole, got)

	all, err := svc.ListPermissions(context.Background(), "")
	require.NoError(t, err)
	assert.NotNil(t, all)
}

func TestUpdatePermission(t *testing.T) {
	svc, roles, perms := newRoleService()
	existing := &domain.Permission{ID: "p-1", RoleID: "role-user", Method: "GET", Path: "/items"}
	perms.On("GetByID", mock.Anything, "p-1").Return(existing, nil)
	roles.On("GetByID", mock.Anything, "role-user").Return(&domain.Role{ID: "role-user"}, nil)
	perms.On("Update", mock.Anything, existing).Return(nil)

	got, err := svc.UpdatePermission(context.Background(), "p-1", PermissionInput{RoleID: "role-user", Method: "delete", Path: "/items/:id"})

	require.NoError(t, err)
	assert.Equal(t, "DELETE", got.Method)
	assert.Equal(t, "/items/:id", got.Path)
}

func TestDeletePermission(t *testing.T) {
	svc, _, perms := newRoleService()
	perms.On("Delete", mock.Anything, "p-x").Return(apperrors.NotFound("permission", "p-x"))

	err := svc.DeletePermission(context.Background(), "p-x")

	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
