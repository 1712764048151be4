package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/authcore/internal/service"
	"github.com/utafrali/authcore/pkg/httputil"
	"github.com/utafrali/authcore/pkg/validator"
)

// RoleHandler handles role and permission grant management.
type RoleHandler struct {
	roles  *service.RoleService
	logger *slog.Logger
}

// NewRoleHandler creates a new role HTTP handler.
func NewRoleHandler(roles *service.RoleService, logger *slog.Logger) *RoleHandler {
	return &RoleHandler{roles: roles, logger: logger}
}

// RoleRequest is the JSON request body for creating or replacing a role.
type RoleRequest struct {
	Name        string `json:"name" validate:"required,min=1,max=64"`
	Description string `json:"description" validate:"omitempty,max=255"`
	IsAdmin     bool   `json:"is_admin"`
	IsActive    *bool  `json:"is_active"`
}

// PermissionRequest is the JSON request body for creating or replacing a
// permission grant.
type PermissionRequest struct {
	RoleID string `json:"role_id" validate:"required,uuid"`
	Method string `json:"method" validate:"required,httpmethod"`
	Path   string `json:"path" validate:"required,routepattern"`
}

func (req RoleRequest) input() service.RoleInput {
	return service.RoleInput{
		Name:        req.Name,
		Description: req.Description,
		IsAdmin:     req.IsAdmin,
		IsActive:    req.IsActive,
	}
}

func (req PermissionRequest) input() service.PermissionInput {
	return service.PermissionInput{RoleID: req.RoleID, Method: req.Method, Path: req.Path}
}

// --- Roles ---

// CreateRole handles POST /api/roles
func (h *RoleHandler) CreateRole(w http.ResponseWriter, r *http.Request) {
	var req RoleRequest
	if err := validator.DecodeAndValidate(w, r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	role, err := h.roles.CreateRole(r.Context(), req.input())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteMessage(w, http.StatusCreated, "Role created", role)
}

// ListRoles handles GET /api/roles
func (h *RoleHandler) ListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.roles.ListRoles(r.Context())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteMessage(w, http.StatusOK, "Roles", roles)
}

// GetRole handles GET /api/roles/{id}
func (h *RoleHandler) GetRole(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	role, err := h.roles.GetRole(r.Context(), id.String())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteMessage(w, http.StatusOK, "Role", role)
}

// UpdateRole handles PUT /api/roles/{id}
func (h *RoleHandler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	var req RoleRequest
	if err := validator.DecodeAndValidate(w, r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	role, err := h.roles.UpdateRole(r.Context(), id.String(), req.input())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteMessage(w, http.StatusOK, "Role updated", role)
}

// DeleteRole handles DELETE /api/roles/{id}
func (h *RoleHandler) DeleteRole(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	if err := h.roles.DeleteRole(r.Context(), id.String()); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteMessage(w, http.StatusOK, "Role deleted", nil)
}

// SetDefaultRole handles POST /api/roles/{id}/default
func (h *RoleHandler) SetDefaultRole(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	role, err := h.roles.SetDefaultRole(r.Context(), id.String())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteMessage(w, http.StatusOK, "Default role set", role)
}

// --- Permissions ---

// CreatePermission handles POST /api/permissions
func (h *RoleHandler) CreatePermission(w http.ResponseWriter, r *http.Request) {
	var req PermissionRequest
	if err := validator.DecodeAndValidate(w, r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	p, err := h.roles.CreatePermission(r.Context(), req.input())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteMessage(w, http.StatusCreated, "Permission created", p)
}

// ListPermissions handles GET /api/permissions?role_id=
func (h *RoleHandler) ListPermissions(w http.ResponseWriter, r *http.Request) {
	roleID := r.URL.Query().Get("role_id")
	if roleID != "" {
		if _, ok := httputil.ParseUUID(w, roleID); !ok {
			return
		}
	}

	perms, err := h.roles.ListPermissions(r.Context(), roleID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteMessage(w, http.StatusOK, "Permissions", perms)
}

// GetPermission handles GET /api/permissions/{id}
func (h *RoleHandler) GetPermission(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	p, err := h.roles.GetPermission(r.Context(), id.String())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteMessage(w, http.StatusOK, "Permission", p)
}

// UpdatePermission handles PUT /api/permissions/{id}
func (h *RoleHandler) UpdatePermission(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	var req PermissionRequest
	if err := validator.DecodeAndValidate(w, r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	p, err := h.roles.UpdatePermission(r.Context(), id.String(), req.input())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteMessage(w, http.StatusOK, "Permission updated", p)
}

// DeletePermission handles DELETE /api/permissions/{id}
func (h *RoleHandler) DeletePermission(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	if err := h.roles.DeletePermission(r.Context(), id.String()); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteMessage(w, http.StatusOK, "Permission deleted", nil)
}
