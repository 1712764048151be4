package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/utafrali/authcore/internal/domain"
	"github.com/utafrali/authcore/pkg/database"
	apperrors "github.com/utafrali/authcore/pkg/errors"
)

const permissionColumns = `id, role_id, method, path, created_at`

// PermissionRepository implements repository.PermissionRepository using PostgreSQL.
type PermissionRepository struct {
	db     database.DBTX
	tracer *database.QueryTracer
}

// NewPermissionRepository creates a new PostgreSQL-backed permission repository.
func NewPermissionRepository(db database.DBTX, tracer *database.QueryTracer) *PermissionRepository {
	return &PermissionRepository{db: db, tracer: tracer}
}

// Create inserts a new grant.
func (r *PermissionRepository) Create(ctx context.Context, p *domain.Permission) error {
	query := `INSERT INTO permissions (` + permissionColumns + `) VALUES ($1, $2, $3, $4, $5)`

	_, err := r.db.Exec(ctx, query, p.ID, p.RoleID, p.Method, p.Path, p.CreatedAt)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return apperrors.AlreadyExists("permission", "path", p.Method+" "+p.Path)
		}
		if database.IsForeignKeyViolation(err) {
			return apperrors.NotFound("role", p.RoleID)
		}
		return fmt.Errorf("insert permission: %w", err)
	}

	return nil
}

// GetByID retrieves a grant by its ID.
func (r *PermissionRepository) GetByID(ctx context.Context, id string) (*domain.Permission, error) {
	var p domain.Permission
	err := r.db.QueryRow(ctx, `SELECT `+permissionColumns+` FROM permissions WHERE id = $1`, id).
		Scan(&p.ID, &p.RoleID, &p.Method, &p.Path, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("scan permission: %w", err)
	}
	return &p, nil
}

// List returns every grant.
func (r *PermissionRepository) List(ctx context.Context) ([]domain.Permission, error) {
	return r.query(ctx, `SELECT `+permissionColumns+` FROM permissions ORDER BY role_id, path, method`)
}

// ListByRole returns the grants of a role. It runs on every authorized request.
func (r *PermissionRepository) ListByRole(ctx context.Context, roleID string) (_ []domain.Permission, err error) {
	query := `SELECT ` + permissionColumns + ` FROM permissions WHERE role_id = $1`
	ctx, end := r.tracer.Trace(ctx, "permission.ListByRole", query)
	defer func() { end(err) }()

	return r.query(ctx, query, roleID)
}

// Update changes the method, path or role of a grant.
func (r *PermissionRepository) Update(ctx context.Context, p *domain.Permission) error {
	ct, err := r.db.Exec(ctx,
		`UPDATE permissions SET role_id = $1, method = $2, path = $3 WHERE id = $4`,
		p.RoleID, p.Method, p.Path, p.ID,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return apperrors.AlreadyExists("permission", "path", p.Method+" "+p.Path)
		}
		if database.IsForeignKeyViolation(err) {
			return apperrors.NotFound("role", p.RoleID)
		}
		return fmt.Errorf("update permission: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("permission", p.ID)
	}

	return nil
}

// Delete removes a grant.
func (r *PermissionRepository) Delete(ctx context.Context, id string) error {
	ct, err := r.db.Exec(ctx, `DELETE FROM permissions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete permission: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("permission", id)
	}

	return nil
}

func (r *PermissionRepository) query(ctx context.Context, query string, args ...any) ([]domain.Permission, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query permissions: %w", err)
	}
	defer rows.Close()

	var perms []domain.Permission
	for rows.Next() {
		var p domain.Permission
		if err := rows.Scan(&p.ID, &p.RoleID, &p.Method, &p.Path, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan permission row: %w", err)
		}
		perms = append(perms, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate permission rows: %w", err)
	}

	return perms, nil
}
