package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/utafrali/authcore/internal/domain"
	"github.com/utafrali/authcore/internal/rbac"
	"github.com/utafrali/authcore/internal/repository"
	apperrors "github.com/utafrali/authcore/pkg/errors"
	"github.com/utafrali/authcore/pkg/validator"
)

// RoleService manages roles and their permission grants.
type RoleService struct {
	roles       repository.RoleRepository
	permissions repository.PermissionRepository
	logger      *slog.Logger
}

// NewRoleService creates a new role service.
func NewRoleService(roles repository.RoleRepository, permissions repository.PermissionRepository, logger *slog.Logger) *RoleService {
	return &RoleService{roles: roles, permissions: permissions, logger: logger}
}

// RoleInput holds the parameters for creating or replacing a role.
type RoleInput struct {
	Name        string
	Description string
	IsAdmin     bool
	IsActive    *bool
}

// PermissionInput holds the parameters for creating or replacing a grant.
type PermissionInput struct {
	RoleID string
	Method string
	Path   string
}

// --- Roles ---

// CreateRole creates an active, non-default role.
func (s *RoleService) CreateRole(ctx context.Context, input RoleInput) (*domain.Role, error) {
	if input.Name == "" {
		return nil, apperrors.InvalidInput("name is required")
	}

	now := time.Now().UTC()
	role := &domain.Role{
		ID:          uuid.New().String(),
		Name:        input.Name,
		Description: input.Description,
		IsAdmin:     input.IsAdmin,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if input.IsActive != nil {
		role.IsActive = *input.IsActive
	}

	if err := s.roles.Create(ctx, role); err != nil {
		return nil, fmt.Errorf("create role: %w", err)
	}

	s.logger.InfoContext(ctx, "role created",
		slog.String("role_id", role.ID),
		slog.String("name", role.Name),
	)
	return role, nil
}

// GetRole retrieves a role by ID.
func (s *RoleService) GetRole(ctx context.Context, id string) (*domain.Role, error) {
	role, err := s.roles.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get role: %w", err)
	}
	return role, nil
}

// ListRoles returns all roles, active or not.
func (s *RoleService) ListRoles(ctx context.Context) ([]domain.Role, error) {
	roles, err := s.roles.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	if roles == nil {
		roles = []domain.Role{}
	}
	return roles, nil
}

// UpdateRole replaces a role's name, description and flags.
func (s *RoleService) UpdateRole(ctx context.Context, id string, input RoleInput) (*domain.Role, error) {
	if input.Name == "" {
		return nil, apperrors.InvalidInput("name is required")
	}

	role, err := s.roles.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get role for update: %w", err)
	}

	if input.IsActive != nil && !*input.IsActive && role.IsDefault {
		return nil, apperrors.Conflict("the default role cannot be deactivated")
	}

	role.Name = input.Name
	role.Description = input.Description
	role.IsAdmin = input.IsAdmin
	if input.IsActive != nil {
		role.IsActive = *input.IsActive
	}

	if err := s.roles.Update(ctx, role); err != nil {
		return nil, fmt.Errorf("update role: %w", err)
	}

	s.logger.InfoContext(ctx, "role updated", slog.String("role_id", role.ID))
	return role, nil
}

// DeleteRole soft-deletes a role. Identities keep their assignment and
// grants are kept; the role just stops being offered as the default.
func (s *RoleService) DeleteRole(ctx context.Context, id string) error {
	role, err := s.roles.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("get role for delete: %w", err)
	}
	if role.IsDefault {
		return apperrors.Conflict("the default role cannot be deleted")
	}

	if err := s.roles.SoftDelete(ctx, id); err != nil {
		return fmt.Errorf("delete role: %w", err)
	}

	s.logger.InfoContext(ctx, "role deleted", slog.String("role_id", id))
	return nil
}

// SetDefaultRole makes an active role the only default role.
func (s *RoleService) SetDefaultRole(ctx context.Context, id string) (*domain.Role, error) {
	if err := s.roles.SetDefault(ctx, id); err != nil {
		return nil, fmt.Errorf("set default role: %w", err)
	}

	s.logger.InfoContext(ctx, "default role changed", slog.String("role_id", id))
	return s.GetRole(ctx, id)
}

// --- Permissions ---

// CreatePermission adds a grant to a role.
func (s *RoleService) CreatePermission(ctx context.Context, input PermissionInput) (*domain.Permission, error) {
	p := &domain.Permission{
		ID:        uuid.New().String(),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.applyPermission(ctx, p, input); err != nil {
		return nil, err
	}

	if err := s.permissions.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("create permission: %w", err)
	}

	s.logger.InfoContext(ctx, "permission created",
		slog.String("permission_id", p.ID),
		slog.String("role_id", p.RoleID),
		slog.String("method", p.Method),
		slog.String("path", p.Path),
	)
	return p, nil
}

// GetPermission retrieves a grant by ID.
func (s *RoleService) GetPermission(ctx context.Context, id string) (*domain.Permission, error) {
	p, err := s.permissions.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get permission: %w", err)
	}
	return p, nil
}

// ListPermissions returns all grants, or those of one role when roleID is set.
func (s *RoleService) ListPermissions(ctx context.Context, roleID string) ([]domain.Permission, error) {
	var (
		perms []domain.Permission
		err   error
	)
	if roleID != "" {
		perms, err = s.permissions.ListByRole(ctx, roleID)
	} else {
		perms, err = s.permissions.List(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("list permissions: %w", err)
	}
	if perms == nil {
		perms = []domain.Permission{}
	}
	return perms, nil
}

// UpdatePermission replaces a grant.
func (s *RoleService) UpdatePermission(ctx context.Context, id string, input PermissionInput) (*domain.Permission, error) {
	p, err := s.permissions.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get permission for update: %w", err)
	}
	if err := s.applyPermission(ctx, p, input); err != nil {
		return nil, err
	}

	if err := s.permissions.Update(ctx, p); err != nil {
		return nil, fmt.Errorf("update permission: %w", err)
	}

	s.logger.InfoContext(ctx, "permission updated", slog.String("permission_id", p.ID))
	return p, nil
}

// DeletePermission removes a grant.
func (s *RoleService) DeletePermission(ctx context.Context, id string) error {
	if err := s.permissions.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete permission: %w", err)
	}

	s.logger.InfoContext(ctx, "permission deleted", slog.String("permission_id", id))
	return nil
}

func (s *RoleService) applyPermission(ctx context.Context, p *domain.Permission, input PermissionInput) error {
	if !validator.IsHTTPMethod(input.Method) {
		return apperrors.InvalidInput("method must be one of GET, POST, PUT, PATCH, DELETE, HEAD, OPTIONS")
	}
	if _, err := rbac.CompileGrant(input.Method, input.Path); err != nil {
		return apperrors.InvalidInput(err.Error())
	}

	if _, err := s.roles.GetByID(ctx, input.RoleID); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return apperrors.NotFound("role", input.RoleID)
		}
		return fmt.Errorf("get role: %w", err)
	}

	p.RoleID = input.RoleID
	p.Method = domain.NormalizeMethod(input.Method)
	p.Path = input.Path
	return nil
}
