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

const identityColumns = `id, email, password_hash, first_name, last_name, role_id, provider, provider_subject, last_login_at, created_at, updated_at`

// IdentityRepository implements repository.IdentityRepository using PostgreSQL.
type IdentityRepository struct {
	db     database.DBTX
	tracer *database.QueryTracer
}

// NewIdentityRepository creates a new PostgreSQL-backed identity repository.
func NewIdentityRepository(db database.DBTX, tracer *database.QueryTracer) *IdentityRepository {
	return &IdentityRepository{db: db, tracer: tracer}
}

// Create inserts a new identity into the database.
func (r *IdentityRepository) Create(ctx context.Context, i *domain.Identity) error {
	query := `
		INSERT INTO identities (` + identityColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := r.db.Exec(ctx, query,
		i.ID,
		i.Email,
		i.PasswordHash,
		i.FirstName,
		i.LastName,
		i.RoleID,
		i.Provider,
		i.ProviderSubject,
		i.LastLoginAt,
		i.CreatedAt,
		i.UpdatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return apperrors.AlreadyExists("identity", "email", i.Email)
		}
		if database.IsForeignKeyViolation(err) {
			return apperrors.NotFound("role", i.RoleID)
		}
		return fmt.Errorf("insert identity: %w", err)
	}

	return nil
}

// GetByID retrieves an identity by its ID.
func (r *IdentityRepository) GetByID(ctx context.Context, id string) (*domain.Identity, error) {
	query := `SELECT ` + identityColumns + ` FROM identities WHERE id = $1`
	return r.scanIdentity(ctx, "identity.GetByID", query, id)
}

// GetByEmail retrieves an identity by its email address.
func (r *IdentityRepository) GetByEmail(ctx context.Context, email string) (*domain.Identity, error) {
	query := `SELECT ` + identityColumns + ` FROM identities WHERE email = $1`
	return r.scanIdentity(ctx, "identity.GetByEmail", query, email)
}

// GetByProvider retrieves an identity by its external provider linkage.
func (r *IdentityRepository) GetByProvider(ctx context.Context, provider, subject string) (*domain.Identity, error) {
	query := `SELECT ` + identityColumns + ` FROM identities WHERE provider = $1 AND provider_subject = $2`
	return r.scanIdentity(ctx, "identity.GetByProvider", query, provider, subject)
}

// List returns a page of identities and the total count.
func (r *IdentityRepository) List(ctx context.Context, limit, offset int) ([]domain.Identity, int, error) {
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM identities`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count identities: %w", err)
	}

	query := `SELECT ` + identityColumns + ` FROM identities ORDER BY created_at, id LIMIT $1 OFFSET $2`
	rows, err := r.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list identities: %w", err)
	}
	defer rows.Close()

	identities := make([]domain.Identity, 0, limit)
	for rows.Next() {
		var i domain.Identity
		if err := rows.Scan(identityFields(&i)...); err != nil {
			return nil, 0, fmt.Errorf("scan identity row: %w", err)
		}
		identities = append(identities, i)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate identity rows: %w", err)
	}

	return identities, total, nil
}

// Update modifies an existing identity in the database.
func (r *IdentityRepository) Update(ctx context.Context, i *domain.Identity) error {
	i.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE identities
		SET email = $1, password_hash = $2, first_name = $3, last_name = $4, role_id = $5,
		    provider = $6, provider_subject = $7, updated_at = $8
		WHERE id = $9`

	ct, err := r.db.Exec(ctx, query,
		i.Email,
		i.PasswordHash,
		i.FirstName,
		i.LastName,
		i.RoleID,
		i.Provider,
		i.ProviderSubject,
		i.UpdatedAt,
		i.ID,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return apperrors.AlreadyExists("identity", "email", i.Email)
		}
		if database.IsForeignKeyViolation(err) {
			return apperrors.NotFound("role", i.RoleID)
		}
		return fmt.Errorf("update identity: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("identity", i.ID)
	}

	return nil
}

// UpdateLastLogin sets last_login_at for the identity.
func (r *IdentityRepository) UpdateLastLogin(ctx context.Context, id string, at time.Time) (err error) {
	query := `UPDATE identities SET last_login_at = $1 WHERE id = $2`
	ctx, end := r.tracer.Trace(ctx, "identity.UpdateLastLogin", query)
	defer func() { end(err) }()

	ct, err := r.db.Exec(ctx, query, at, id)
	if err != nil {
		return fmt.Errorf("update last login: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("identity", id)
	}
	return nil
}

// Delete removes an identity from the database by its ID.
func (r *IdentityRepository) Delete(ctx context.Context, id string) error {
	ct, err := r.db.Exec(ctx, `DELETE FROM identities WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete identity: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("identity", id)
	}

	return nil
}

func (r *IdentityRepository) scanIdentity(ctx context.Context, op, query string, args ...any) (_ *domain.Identity, err error) {
	ctx, end := r.tracer.Trace(ctx, op, query)
	defer func() {
		if errors.Is(err, apperrors.ErrNotFound) {
			end(nil)
			return
		}
		end(err)
	}()

	var i domain.Identity
	if err := r.db.QueryRow(ctx, query, args...).Scan(identityFields(&i)...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("scan identity: %w", err)
	}

	return &i, nil
}

// identityFields returns scan targets in identityColumns order.
func identityFields(i *domain.Identity) []any {
	return []any{
		&i.ID,
		&i.Email,
		&i.PasswordHash,
		&i.FirstName,
		&i.LastName,
		&i.RoleID,
		&i.Provider,
		&i.ProviderSubject,
		&i.LastLoginAt,
		&i.CreatedAt,
		&i.UpdatedAt,
	}
}
