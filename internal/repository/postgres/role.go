package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/utafrali/authcore/internal/domain"
	"github.com/utafrali/authcore/pkg/database"
	apperrors "github.com/utafrali/authcore/pkg/errors"
)

const roleColumns = `id, name, description, is_default, is_admin, is_active, created_at, updated_at`

// RoleRepository implements repository.RoleRepository using PostgreSQL.
type RoleRepository struct {
	db database.DBTX
}

// NewRoleRepository creates a new PostgreSQL-backed role repository.
func NewRoleRepository(db database.DBTX) *RoleRepository {
	return &RoleRepository{db: db}
}

// Create inserts a new role. Creating a default role is done with SetDefault.
func (r *RoleRepository) Create(ctx context.Context, role *domain.Role) error {
	query := `
		INSERT INTO roles (` + roleColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.db.Exec(ctx, query,
		role.ID,
		role.Name,
		role.Description,
		false,
		role.IsAdmin,
		role.IsActive,
		role.CreatedAt,
		role.UpdatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return apperrors.AlreadyExists("role", "name", role.Name)
		}
		return fmt.Errorf("insert role: %w", err)
	}
	role.IsDefault = false

	return nil
}

// GetByID retrieves a role by its ID, active or not.
func (r *RoleRepository) GetByID(ctx context.Context, id string) (*domain.Role, error) {
	return r.scanRole(ctx, `SELECT `+roleColumns+` FROM roles WHERE id = $1`, id)
}

// GetDefault retrieves the active default role.
func (r *RoleRepository) GetDefault(ctx context.Context) (*domain.Role, error) {
	return r.scanRole(ctx, `SELECT `+roleColumns+` FROM roles WHERE is_default = TRUE AND is_active = TRUE`)
}

// List returns all roles ordered by name.
func (r *RoleRepository) List(ctx context.Context) ([]domain.Role, error) {
	rows, err := r.db.Query(ctx, `SELECT `+roleColumns+` FROM roles ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	defer rows.Close()

	var roles []domain.Role
	for rows.Next() {
		var role domain.Role
		if err := rows.Scan(roleFields(&role)...); err != nil {
			return nil, fmt.Errorf("scan role row: %w", err)
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate role rows: %w", err)
	}

	return roles, nil
}

// Update modifies name, description, admin and active flags. The default
// flag is only changed by SetDefault.
func (r *RoleRepository) Update(ctx context.Context, role *domain.Role) error {
	role.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE roles
		SET name = $1, description = $2, is_admin = $3, is_active = $4, updated_at = $5
		WHERE id = $6`

	ct, err := r.db.Exec(ctx, query,
		role.Name,
		role.Description,
		role.IsAdmin,
		role.IsActive,
		role.UpdatedAt,
		role.ID,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return apperrors.AlreadyExists("role", "name", role.Name)
		}
		return fmt.Errorf("update role: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("role", role.ID)
	}

	return nil
}

// SoftDelete marks a role inactive.
func (r *RoleRepository) SoftDelete(ctx context.Context, id string) error {
	ct, err := r.db.Exec(ctx,
		`UPDATE roles SET is_active = FALSE, updated_at = $1 WHERE id = $2 AND is_active = TRUE`,
		time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("soft delete role: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("role", id)
	}

	return nil
}

// SetDefault makes the role the only default role within a transaction.
func (r *RoleRepository) SetDefault(ctx context.Context, id string) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Unset the current default first; the partial unique index allows only one.
	if _, err := tx.Exec(ctx, `UPDATE roles SET is_default = FALSE WHERE is_default = TRUE AND id <> $1`, id); err != nil {
		return fmt.Errorf("unset default role: %w", err)
	}

	ct, err := tx.Exec(ctx,
		`UPDATE roles SET is_default = TRUE, updated_at = $1 WHERE id = $2 AND is_active = TRUE`,
		time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("set default role: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("role", id)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

func (r *RoleRepository) scanRole(ctx context.Context, query string, args ...any) (*domain.Role, error) {
	var role domain.Role
	if err := r.db.QueryRow(ctx, query, args...).Scan(roleFields(&role)...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("scan role: %w", err)
	}
	return &role, nil
}

func roleFields(role *domain.Role) []any {
	return []any{
		&role.ID,
		&role.Name,
		&role.Description,
		&role.IsDefault,
		&role.IsAdmin,
		&role.IsActive,
		&role.CreatedAt,
		&role.UpdatedAt,
	}
}
