package redis

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/authcore/internal/domain"
	apperrors "github.com/utafrali/authcore/pkg/errors"
)

func setupTestRedis(t *testing.T) (*SessionStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewSessionStore(client, nil), mr
}

var browser = domain.NewFingerprint("10.0.0.1", "Mozilla/5.0")

func sampleSession(hash string, now time.Time) *domain.Session {
	now = now.UTC().Truncate(time.Millisecond)
	return &domain.Session{
		TokenHash:   hash,
		IdentityID:  "id-1",
		Fingerprint: browser,
		IssuedAt:    now,
		ExpiresAt:   now.Add(7 * 24 * time.Hour),
	}
}

// ---------------------------------------------------------------------------
// Save / Find / Consume
// ---------------------------------------------------------------------------

func TestSessionStore_SaveAndFind(t *testing.T) {
	store, mr := setupTestRedis(t)
	ctx := context.Background()

	s := sampleSession("hash-1", time.Now())
	require.NoError(t, store.Save(ctx, s))

	got, err := store.FindByTokenHash(ctx, "hash-1")
	require.NoError(t, err)
	assert.Equal(t, s, got)

	assert.True(t, mr.Exists(sessionKeyPrefix+"hash-1"))
	assert.Greater(t, mr.TTL(sessionKeyPrefix+"hash-1"), time.Duration(0))
	members, err := mr.SMembers(identityKeyPrefix + "id-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"hash-1"}, members)
}

func TestSessionStore_FindByTokenHash_NotFound(t *testing.T) {
	store, _ := setupTestRedis(t)

	got, err := store.FindByTokenHash(context.Background(), "missing")
	assert.Nil(t, got)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestSessionStore_Consume_Idempotent(t *testing.T) {
	store, mr := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, sampleSession("hash-1", time.Now())))

	require.NoError(t, store.Consume(ctx, "hash-1"))
	require.NoError(t, store.Consume(ctx, "hash-1"))

	assert.False(t, mr.Exists(sessionKeyPrefix+"hash-1"))
	_, err := store.FindByTokenHash(ctx, "hash-1")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	members, err := mr.ZMembers(expiryIndexKey)
	if err == nil {
		assert.Empty(t, members)
	}
}

// ---------------------------------------------------------------------------
// Rotate
// ---------------------------------------------------------------------------

func TestSessionStore_Rotate_Success(t *testing.T) {
	store, _ := setupTestRedis(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.Save(ctx, sampleSession("old", now)))
	next := sampleSession("new", now)

	require.NoError(t, store.Rotate(ctx, "old", browser, now, next))

	_, err := store.FindByTokenHash(ctx, "old")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	got, err := store.FindByTokenHash(ctx, "new")
	require.NoError(t, err)
	assert.Equal(t, next, got)
}

func TestSessionStore_Rotate_FingerprintMismatchKeepsRecord(t *testing.T) {
	store, _ := setupTestRedis(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.Save(ctx, sampleSession("old", now)))

	for _, fp := range []domain.Fingerprint{
		domain.NewFingerprint("10.0.0.2", "Mozilla/5.0"),
		domain.NewFingerprint("10.0.0.1", "curl/8.0"),
	} {
		err := store.Rotate(ctx, "old", fp, now, sampleSession("new", now))
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
	}

	_, err := store.FindByTokenHash(ctx, "old")
	require.NoError(t, err, "mismatched attempts must not consume the record")
	_, err = store.FindByTokenHash(ctx, "new")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	require.NoError(t, store.Rotate(ctx, "old", browser, now, sampleSession("new", now)))
}

func TestSessionStore_Rotate_ExpiredOrWrongOwner(t *testing.T) {
	store, _ := setupTestRedis(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.Save(ctx, sampleSession("old", now)))

	err := store.Rotate(ctx, "old", browser, now.Add(8*24*time.Hour), sampleSession("new", now))
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	other := sampleSession("new", now)
	other.IdentityID = "id-2"
	err = store.Rotate(ctx, "old", browser, now, other)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = store.FindByTokenHash(ctx, "old")
	assert.NoError(t, err)
}

func TestSessionStore_Rotate_ConcurrentSingleWinner(t *testing.T) {
	store, _ := setupTestRedis(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.Save(ctx, sampleSession("old", now)))

	const attempts = 10
	var wins, losses atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			next := sampleSession("new-"+string(rune('a'+i)), now)
			err := store.Rotate(ctx, "old", browser, now, next)
			switch {
			case err == nil:
				wins.Add(1)
			case assert.ErrorIs(t, err, apperrors.ErrNotFound):
				losses.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, int32(attempts-1), losses.Load())
}

// ---------------------------------------------------------------------------
// RevokeAll / DeleteExpired
// ---------------------------------------------------------------------------

func TestSessionStore_RevokeAll(t *testing.T) {
	store, _ := setupTestRedis(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.Save(ctx, sampleSession("a", now)))
	require.NoError(t, store.Save(ctx, sampleSession("b", now)))
	other := sampleSession("c", now)
	other.IdentityID = "id-2"
	require.NoError(t, store.Save(ctx, other))

	n, err := store.RevokeAll(ctx, "id-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	_, err = store.FindByTokenHash(ctx, "a")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	_, err = store.FindByTokenHash(ctx, "c")
	assert.NoError(t, err)

	n, err = store.RevokeAll(ctx, "id-1")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSessionStore_DeleteExpired(t *testing.T) {
	store, mr := setupTestRedis(t)
	ctx := context.Background()
	now := time.Now()

	short := sampleSession("short", now)
	short.ExpiresAt = short.IssuedAt.Add(time.Minute)
	require.NoError(t, store.Save(ctx, short))
	require.NoError(t, store.Save(ctx, sampleSession("long", now)))

	n, err := store.DeleteExpired(ctx, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	assert.False(t, mr.Exists(sessionKeyPrefix+"short"))
	assert.True(t, mr.Exists(sessionKeyPrefix+"long"))
	members, err := mr.ZMembers(expiryIndexKey)
	require.NoError(t, err)
	assert.Equal(t, []string{"id-1:long"}, members)

	n, err = store.DeleteExpired(ctx, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)
}
