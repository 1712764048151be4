package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/utafrali/authcore/internal/domain"
	apperrors "github.com/utafrali/authcore/pkg/errors"
)

func newSessionTestFixture(t *testing.T) (*SessionStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	return NewSessionStore(mock, nil), mock
}

func sampleSession(hash string) *domain.Session {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &domain.Session{
		TokenHash:   hash,
		IdentityID:  "id-1",
		Fingerprint: domain.NewFingerprint("10.0.0.1", "Mozilla/5.0"),
		IssuedAt:    now,
		ExpiresAt:   now.Add(7 * 24 * time.Hour),
	}
}

func TestSessionStore_Save(t *testing.T) {
	store, mock := newSessionTestFixture(t)
	defer mock.Close()

	s := sampleSession("hash-1")
	mock.ExpectExec("INSERT INTO sessions").
		WithArgs(s.TokenHash, s.IdentityID, s.Fingerprint.IP, s.Fingerprint.UserAgent, s.IssuedAt, s.ExpiresAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.Save(context.Background(), s))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionStore_FindByTokenHash(t *testing.T) {
	store, mock := newSessionTestFixture(t)
	defer mock.Close()

	s := sampleSession("hash-1")
	mock.ExpectQuery("SELECT .+ FROM sessions WHERE token_hash =").
		WithArgs("hash-1").
		WillReturnRows(pgxmock.NewRows([]string{"token_hash", "identity_id", "ip", "user_agent", "issued_at", "expires_at"}).
			AddRow(s.TokenHash, s.IdentityID, s.Fingerprint.IP, s.Fingerprint.UserAgent, s.IssuedAt, s.ExpiresAt))

	got, err := store.FindByTokenHash(context.Background(), "hash-1")
	require.NoError(t, err)
	assert.Equal(t, s, got)
}

func TestSessionStore_FindByTokenHash_NotFound(t *testing.T) {
	store, mock := newSessionTestFixture(t)
	defer mock.Close()

	mock.ExpectQuery("SELECT .+ FROM sessions").
		WithArgs("nope").
		WillReturnError(pgx.ErrNoRows)

	_, err := store.FindByTokenHash(context.Background(), "nope")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionStore_Consume_Idempotent(t *testing.T) {
	store, mock := newSessionTestFixture(t)
	defer mock.Close()

	mock.ExpectExec("DELETE FROM sessions WHERE token_hash =").
		WithArgs("hash-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec("DELETE FROM sessions WHERE token_hash =").
		WithArgs("hash-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	require.NoError(t, store.Consume(context.Background(), "hash-1"))
	require.NoError(t, store.Consume(context.Background(), "hash-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionStore_Rotate_Success(t *testing.T) {
	store, mock := newSessionTestFixture(t)
	defer mock.Close()

	now := time.Now().UTC()
	fp := domain.NewFingerprint("10.0.0.1", "Mozilla/5.0")
	next := sampleSession("hash-2")

	mock.ExpectBegin()
	mock.ExpectQuery("DELETE FROM sessions WHERE token_hash = .+ RETURNING identity_id").
		WithArgs("hash-1", fp.IP, fp.UserAgent, now).
		WillReturnRows(pgxmock.NewRows([]string{"identity_id"}).AddRow("id-1"))
	mock.ExpectExec("INSERT INTO sessions").
		WithArgs(next.TokenHash, next.IdentityID, next.Fingerprint.IP, next.Fingerprint.UserAgent, next.IssuedAt, next.ExpiresAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, store.Rotate(context.Background(), "hash-1", fp, now, next))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionStore_Rotate_NothingConsumed(t *testing.T) {
	store, mock := newSessionTestFixture(t)
	defer mock.Close()

	now := time.Now().UTC()
	fp := domain.NewFingerprint("10.9.9.9", "curl/8.0")

	mock.ExpectBegin()
	mock.ExpectQuery("DELETE FROM sessions").
		WithArgs("hash-1", fp.IP, fp.UserAgent, now).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	err := store.Rotate(context.Background(), "hash-1", fp, now, sampleSession("hash-2"))
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionStore_Rotate_OwnerMismatchRollsBack(t *testing.T) {
	store, mock := newSessionTestFixture(t)
	defer mock.Close()

	now := time.Now().UTC()
	fp := domain.NewFingerprint("10.0.0.1", "Mozilla/5.0")

	mock.ExpectBegin()
	mock.ExpectQuery("DELETE FROM sessions").
		WithArgs("hash-1", fp.IP, fp.UserAgent, now).
		WillReturnRows(pgxmock.NewRows([]string{"identity_id"}).AddRow("someone-else"))
	mock.ExpectRollback()

	err := store.Rotate(context.Background(), "hash-1", fp, now, sampleSession("hash-2"))
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionStore_Rotate_InsertFailureRollsBack(t *testing.T) {
	store, mock := newSessionTestFixture(t)
	defer mock.Close()

	now := time.Now().UTC()
	fp := domain.NewFingerprint("10.0.0.1", "Mozilla/5.0")

	mock.ExpectBegin()
	next := sampleSession("hash-2")

	mock.ExpectQuery("DELETE FROM sessions").
		WithArgs("hash-1", fp.IP, fp.UserAgent, now).
		WillReturnRows(pgxmock.NewRows([]string{"identity_id"}).AddRow("id-1"))
	mock.ExpectExec("INSERT INTO sessions").
		WithArgs(next.TokenHash, next.IdentityID, next.Fingerprint.IP, next.Fingerprint.UserAgent, next.IssuedAt, next.ExpiresAt).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := store.Rotate(context.Background(), "hash-1", fp, now, next)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert session")
	assert.Contains(t, err.Error(), "disk full")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionStore_RevokeAllAndPrune(t *testing.T) {
	store, mock := newSessionTestFixture(t)
	defer mock.Close()

	now := time.Now().UTC()
	mock.ExpectExec("DELETE FROM sessions WHERE identity_id =").
		WithArgs("id-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 3))
	mock.ExpectExec("DELETE FROM sessions WHERE expires_at <=").
		WithArgs(now).
		WillReturnResult(pgxmock.NewResult("DELETE", 5))

	n, err := store.RevokeAll(context.Background(), "id-1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	n, err = store.DeleteExpired(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionStore_BulkDeletesAreTraced(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(prev)
	})

	store, mock := newSessionTestFixture(t)
	defer mock.Close()

	now := time.Now().UTC()
	mock.ExpectExec("DELETE FROM sessions WHERE identity_id =").
		WithArgs("id-1").
		WillReturnError(errors.New("connection reset"))
	mock.ExpectExec("DELETE FROM sessions WHERE expires_at <=").
		WithArgs(now).
		WillReturnResult(pgxmock.NewResult("DELETE", 2))

	_, err := store.RevokeAll(context.Background(), "id-1")
	require.Error(t, err)
	_, err = store.DeleteExpired(context.Background(), now)
	require.NoError(t, err)

	spans := exporter.GetSpans()
	require.Len(t, spans, 2)
	assert.Equal(t, "db.session.RevokeAll", spans[0].Name)
	assert.Equal(t, codes.Error, spans[0].Status.Code)
	assert.Equal(t, "db.session.DeleteExpired", spans[1].Name)
	assert.Equal(t, codes.Unset, spans[1].Status.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}
