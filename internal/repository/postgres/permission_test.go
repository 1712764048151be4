package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/authcore/internal/domain"
	apperrors "github.com/utafrali/authcore/pkg/errors"
)

func newPermissionTestFixture(t *testing.T) (*PermissionRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	return NewPermissionRepository(mock, nil), mock
}

func TestPermissionRepository_ListByRole(t *testing.T) {
	repo, mock := newPermissionTestFixture(t)
	defer mock.Close()

	now := time.Now().UTC()
	mock.ExpectQuery("SELECT .+ FROM permissions WHERE role_id =").
		WithArgs("r-1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "role_id", "method", "path", "created_at"}).
			AddRow("p-1", "r-1", "GET", "/items/:id", now).
			AddRow("p-2", "r-1", "POST", "/items", now))

	got, err := repo.ListByRole(context.Background(), "r-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "/items/:id", got[0].Path)
	assert.Equal(t, "POST", got[1].Method)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPermissionRepository_Create(t *testing.T) {
	repo, mock := newPermissionTestFixture(t)
	defer mock.Close()

	p := &domain.Permission{ID: "p-1", RoleID: "r-1", Method: "GET", Path: "/items/:id", CreatedAt: time.Now().UTC()}
	mock.ExpectExec("INSERT INTO permissions").
		WithArgs(p.ID, p.RoleID, p.Method, p.Path, p.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, repo.Create(context.Background(), p))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPermissionRepository_Create_Errors(t *testing.T) {
	tests := []struct {
		code string
		want error
	}{
		{"23505", apperrors.ErrAlreadyExists},
		{"23503", apperrors.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			repo, mock := newPermissionTestFixture(t)
			defer mock.Close()

			p := &domain.Permission{ID: "p-1", RoleID: "r-1", Method: "GET", Path: "/x"}
			mock.ExpectExec("INSERT INTO permissions").
				WithArgs(p.ID, p.RoleID, p.Method, p.Path, pgxmock.AnyArg()).
				WillReturnError(&pgconn.PgError{Code: tt.code})

			err := repo.Create(context.Background(), p)
			assert.ErrorIs(t, err, tt.want)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestPermissionRepository_Delete_NotFound(t *testing.T) {
	repo, mock := newPermissionTestFixture(t)
	defer mock.Close()

	mock.ExpectExec("DELETE FROM permissions WHERE id =").
		WithArgs("p-9").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	assert.ErrorIs(t, repo.Delete(context.Background(), "p-9"), apperrors.ErrNotFound)
}

func TestPermissionRepository_Update(t *testing.T) {
	repo, mock := newPermissionTestFixture(t)
	defer mock.Close()

	p := &domain.Permission{ID: "p-1", RoleID: "r-1", Method: "PUT", Path: "/items/:id"}
	mock.ExpectExec("UPDATE permissions SET").
		WithArgs(p.RoleID, p.Method, p.Path, p.ID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, repo.Update(context.Background(), p))
	assert.NoError(t, mock.ExpectationsWereMet())
}
