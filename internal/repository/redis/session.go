package redis

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/utafrali/authcore/internal/domain"
	"github.com/utafrali/authcore/pkg/database"
	apperrors "github.com/utafrali/authcore/pkg/errors"
)

const (
	sessionKeyPrefix  = "authcore:session:"
	identityKeyPrefix = "authcore:identity_sessions:"
	expiryIndexKey    = "authcore:session_expiry"
)

// Each session is a hash with a PEXPIREAT at its expiry. A per-identity set
// backs RevokeAll and a sorted set of "<identity>:<hash>" members scored by
// expiry backs DeleteExpired. Times are stored as unix milliseconds.

// rotateScript consumes the old session only when it still exists, belongs to
// the identity, matches the fingerprint and has not expired, and then writes
// the new session. It returns 1 on success and 0 when nothing was consumed.
//
// KEYS: old session, new session, identity set, expiry index
// ARGV: old hash, new hash, identity id, ip, user agent, now ms,
// new ip, new user agent, new issued ms, new expires ms
var rotateScript = redis.NewScript(`
local cur = redis.call('HMGET', KEYS[1], 'identity_id', 'ip', 'user_agent', 'expires_at')
if not cur[1] then
	return 0
end
if cur[1] ~= ARGV[3] or cur[2] ~= ARGV[4] or cur[3] ~= ARGV[5] then
	return 0
end
if tonumber(cur[4]) <= tonumber(ARGV[6]) then
	return 0
end
redis.call('DEL', KEYS[1])
redis.call('SREM', KEYS[3], ARGV[1])
redis.call('ZREM', KEYS[4], ARGV[3] .. ':' .. ARGV[1])
redis.call('HSET', KEYS[2], 'identity_id', ARGV[3], 'ip', ARGV[7], 'user_agent', ARGV[8], 'issued_at', ARGV[9], 'expires_at', ARGV[10])
redis.call('PEXPIREAT', KEYS[2], ARGV[10])
redis.call('SADD', KEYS[3], ARGV[2])
redis.call('ZADD', KEYS[4], ARGV[10], ARGV[3] .. ':' .. ARGV[2])
return 1
`)

// consumeScript deletes a session and its index entries. Missing sessions are
// ignored.
//
// KEYS: session, expiry index
// ARGV: hash, identity set prefix
var consumeScript = redis.NewScript(`
local owner = redis.call('HGET', KEYS[1], 'identity_id')
redis.call('DEL', KEYS[1])
if owner then
	redis.call('ZREM', KEYS[2], owner .. ':' .. ARGV[1])
	redis.call('SREM', ARGV[2] .. owner, ARGV[1])
end
return 1
`)

// SessionStore implements repository.SessionStore using Redis.
type SessionStore struct {
	client *redis.Client
	tracer *database.QueryTracer
}

// NewSessionStore creates a new Redis-backed session store.
func NewSessionStore(client *redis.Client, tracer *database.QueryTracer) *SessionStore {
	return &SessionStore{client: client, tracer: tracer}
}

func sessionKey(hash string) string        { return sessionKeyPrefix + hash }
func identityKey(identityID string) string { return identityKeyPrefix + identityID }

func expiryMember(identityID, hash string) string { return identityID + ":" + hash }

func millis(t time.Time) string { return strconv.FormatInt(t.UnixMilli(), 10) }

// Save stores a new Session Record.
func (s *SessionStore) Save(ctx context.Context, session *domain.Session) (err error) {
	ctx, end := s.tracer.Trace(ctx, "session.Save", "HSET")
	defer func() { end(err) }()

	key := sessionKey(session.TokenHash)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key,
			"identity_id", session.IdentityID,
			"ip", session.Fingerprint.IP,
			"user_agent", session.Fingerprint.UserAgent,
			"issued_at", millis(session.IssuedAt),
			"expires_at", millis(session.ExpiresAt),
		)
		pipe.PExpireAt(ctx, key, session.ExpiresAt)
		pipe.SAdd(ctx, identityKey(session.IdentityID), session.TokenHash)
		pipe.ZAdd(ctx, expiryIndexKey, redis.Z{Score: float64(session.ExpiresAt.UnixMilli()), Member: expiryMember(session.IdentityID, session.TokenHash)})
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis save session: %w", err)
	}
	return nil
}

// FindByTokenHash returns the record for a token hash.
func (s *SessionStore) FindByTokenHash(ctx context.Context, tokenHash string) (_ *domain.Session, err error) {
	ctx, end := s.tracer.Trace(ctx, "session.FindByTokenHash", "HGETALL")
	defer func() { end(err) }()

	fields, err := s.client.HGetAll(ctx, sessionKey(tokenHash)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis get session: %w", err)
	}
	if len(fields) == 0 {
		return nil, apperrors.ErrNotFound
	}

	issued, err := strconv.ParseInt(fields["issued_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse session issued_at: %w", err)
	}
	expires, err := strconv.ParseInt(fields["expires_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse session expires_at: %w", err)
	}

	return &domain.Session{
		TokenHash:  tokenHash,
		IdentityID: fields["identity_id"],
		Fingerprint: domain.Fingerprint{
			IP:        fields["ip"],
			UserAgent: fields["user_agent"],
		},
		IssuedAt:  time.UnixMilli(issued).UTC(),
		ExpiresAt: time.UnixMilli(expires).UTC(),
	}, nil
}

// Consume deletes the record for a token hash. It is idempotent.
func (s *SessionStore) Consume(ctx context.Context, tokenHash string) (err error) {
	ctx, end := s.tracer.Trace(ctx, "session.Consume", "EVALSHA consume")
	defer func() { end(err) }()

	keys := []string{sessionKey(tokenHash), expiryIndexKey}
	if err := consumeScript.Run(ctx, s.client, keys, tokenHash, identityKeyPrefix).Err(); err != nil {
		return fmt.Errorf("redis consume session: %w", err)
	}
	return nil
}

// Rotate replaces the record for oldHash with next in a single script call.
func (s *SessionStore) Rotate(ctx context.Context, oldHash string, fp domain.Fingerprint, now time.Time, next *domain.Session) (err error) {
	ctx, end := s.tracer.Trace(ctx, "session.Rotate", "EVALSHA rotate")
	defer func() { end(err) }()

	keys := []string{
		sessionKey(oldHash),
		sessionKey(next.TokenHash),
		identityKey(next.IdentityID),
		expiryIndexKey,
	}
	rotated, err := rotateScript.Run(ctx, s.client, keys,
		oldHash,
		next.TokenHash,
		next.IdentityID,
		fp.IP,
		fp.UserAgent,
		millis(now),
		next.Fingerprint.IP,
		next.Fingerprint.UserAgent,
		millis(next.IssuedAt),
		millis(next.ExpiresAt),
	).Int()
	if err != nil {
		return fmt.Errorf("redis rotate session: %w", err)
	}
	if rotated != 1 {
		return apperrors.ErrNotFound
	}
	return nil
}

// RevokeAll deletes every record of an identity.
func (s *SessionStore) RevokeAll(ctx context.Context, identityID string) (int64, error) {
	setKey := identityKey(identityID)
	hashes, err := s.client.SMembers(ctx, setKey).Result()
	if err != nil {
		return 0, fmt.Errorf("redis list identity sessions: %w", err)
	}
	if len(hashes) == 0 {
		return 0, nil
	}

	keys := make([]string, 0, len(hashes))
	members := make([]any, 0, len(hashes))
	expiries := make([]any, 0, len(hashes))
	for _, h := range hashes {
		keys = append(keys, sessionKey(h))
		members = append(members, h)
		expiries = append(expiries, expiryMember(identityID, h))
	}

	var deleted *redis.IntCmd
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		deleted = pipe.Del(ctx, keys...)
		pipe.ZRem(ctx, expiryIndexKey, expiries...)
		pipe.SRem(ctx, setKey, members...)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("redis revoke sessions: %w", err)
	}
	return deleted.Val(), nil
}

// DeleteExpired drops index entries for sessions that expired before now and
// deletes any session hash Redis has not expired yet.
func (s *SessionStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	members, err := s.client.ZRangeByScore(ctx, expiryIndexKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: millis(now),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("redis list expired sessions: %w", err)
	}
	if len(members) == 0 {
		return 0, nil
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, m := range members {
			owner, hash, ok := strings.Cut(m, ":")
			if !ok {
				pipe.ZRem(ctx, expiryIndexKey, m)
				continue
			}
			pipe.Del(ctx, sessionKey(hash))
			pipe.SRem(ctx, identityKey(owner), hash)
			pipe.ZRem(ctx, expiryIndexKey, m)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("redis prune sessions: %w", err)
	}
	return int64(len(members)), nil
}
