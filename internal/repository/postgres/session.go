package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/utafrali/authcore/internal/domain"
	"github.com/utafrali/authcore/pkg/database"
	apperrors "github.com/utafrali/authcore/pkg/errors"
)

// SessionStore implements repository.SessionStore using PostgreSQL.
type SessionStore struct {
	db     database.DBTX
	tracer *database.QueryTracer
}

// NewSessionStore creates a new PostgreSQL-backed session store.
func NewSessionStore(db database.DBTX, tracer *database.QueryTracer) *SessionStore {
	return &SessionStore{db: db, tracer: tracer}
}

const insertSessionQuery = `
	INSERT INTO sessions (token_hash, identity_id, ip, user_agent, issued_at, expires_at)
	VALUES ($1, $2, $3, $4, $5, $6)`

// Save stores a new Session Record.
func (s *SessionStore) Save(ctx context.Context, session *domain.Session) (err error) {
	ctx, end := s.tracer.Trace(ctx, "session.Save", insertSessionQuery)
	defer func() { end(err) }()

	return insertSession(ctx, s.db, session)
}

// FindByTokenHash returns the record for a token hash.
func (s *SessionStore) FindByTokenHash(ctx context.Context, tokenHash string) (_ *domain.Session, err error) {
	query := `
		SELECT token_hash, identity_id, ip, user_agent, issued_at, expires_at
		FROM sessions
		WHERE token_hash = $1`
	ctx, end := s.tracer.Trace(ctx, "session.FindByTokenHash", query)
	defer func() { end(err) }()

	var sess domain.Session
	scanErr := s.db.QueryRow(ctx, query, tokenHash).Scan(
		&sess.TokenHash,
		&sess.IdentityID,
		&sess.Fingerprint.IP,
		&sess.Fingerprint.UserAgent,
		&sess.IssuedAt,
		&sess.ExpiresAt,
	)
	if scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("scan session: %w", scanErr)
	}

	return &sess, nil
}

// Consume deletes the record for a token hash. It is idempotent.
func (s *SessionStore) Consume(ctx context.Context, tokenHash string) (err error) {
	query := `DELETE FROM sessions WHERE token_hash = $1`
	ctx, end := s.tracer.Trace(ctx, "session.Consume", query)
	defer func() { end(err) }()

	if _, err := s.db.Exec(ctx, query, tokenHash); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// Rotate replaces the record for oldHash with next in one transaction. The
// conditional DELETE takes the row lock, so a concurrent rotation of the same
// token waits and then deletes nothing.
func (s *SessionStore) Rotate(ctx context.Context, oldHash string, fp domain.Fingerprint, now time.Time, next *domain.Session) (err error) {
	query := `
		DELETE FROM sessions
		WHERE token_hash = $1 AND ip = $2 AND user_agent = $3 AND expires_at > $4
		RETURNING identity_id`
	ctx, end := s.tracer.Trace(ctx, "session.Rotate", query)
	defer func() { end(err) }()

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var identityID string
	if err := tx.QueryRow(ctx, query, oldHash, fp.IP, fp.UserAgent, now).Scan(&identityID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.ErrNotFound
		}
		return fmt.Errorf("consume session: %w", err)
	}
	if identityID != next.IdentityID {
		return apperrors.ErrNotFound
	}

	if err := insertSession(ctx, tx, next); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// RevokeAll deletes every record of an identity.
func (s *SessionStore) RevokeAll(ctx context.Context, identityID string) (_ int64, err error) {
	query := `DELETE FROM sessions WHERE identity_id = $1`
	ctx, end := s.tracer.Trace(ctx, "session.RevokeAll", query)
	defer func() { end(err) }()

	ct, err := s.db.Exec(ctx, query, identityID)
	if err != nil {
		return 0, fmt.Errorf("revoke sessions: %w", err)
	}
	return ct.RowsAffected(), nil
}

// DeleteExpired prunes records whose expiry is not after now.
func (s *SessionStore) DeleteExpired(ctx context.Context, now time.Time) (_ int64, err error) {
	query := `DELETE FROM sessions WHERE expires_at <= $1`
	ctx, end := s.tracer.Trace(ctx, "session.DeleteExpired", query)
	defer func() { end(err) }()

	ct, err := s.db.Exec(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	return ct.RowsAffected(), nil
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func insertSession(ctx context.Context, db execer, session *domain.Session) error {
	_, err := db.Exec(ctx, insertSessionQuery,
		session.TokenHash,
		session.IdentityID,
		session.Fingerprint.IP,
		session.Fingerprint.UserAgent,
		session.IssuedAt,
		session.ExpiresAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return apperrors.Conflict("session token already stored")
		}
		if database.IsForeignKeyViolation(err) {
			return apperrors.NotFound("identity", session.IdentityID)
		}
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}
