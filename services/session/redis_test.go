package session

import (
	"context"
	"testing"
	"time"

	"tailortalk/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func newTestRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis, *observer.ObservedLogs) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	core, logs := observer.New(zap.WarnLevel)
	store := NewRedisStore(client, Options{
		TTL:    30 * time.Minute,
		Now:    func() time.Time { return t0 },
		Logger: zap.New(core),
	})
	return store, mr, logs
}

func TestRedisStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, mr, _ := newTestRedisStore(t)

	sess, err := store.Create(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.StateCollecting, sess.State)
	assert.Equal(t, time.Hour, mr.TTL(sessionKey(sess.ID)))

	sess.Request.Title = "Design review"
	sess.AddMessage(models.RoleUser, "hi", t0)
	require.NoError(t, store.Save(ctx, sess))

	got, err := store.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "Design review", got.Request.Title)
	require.Len(t, got.History, 1)
	assert.True(t, t0.Equal(got.LastActivity))

	require.NoError(t, store.Delete(ctx, sess.ID))
	_, err = store.Get(ctx, sess.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRedisStoreLockIsExclusive(t *testing.T) {
	ctx := context.Background()
	store, mr, logs := newTestRedisStore(t)

	unlock, err := store.Lock(ctx, "abc")
	require.NoError(t, err)
	assert.True(t, mr.Exists(lockKey("abc")))

	busyCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	_, err = store.Lock(busyCtx, "abc")
	assert.ErrorIs(t, err, ErrSessionBusy)

	unlock()
	assert.False(t, mr.Exists(lockKey("abc")))
	assert.Zero(t, logs.Len())

	again, err := store.Lock(ctx, "abc")
	require.NoError(t, err)
	again()
}

func TestRedisStoreStaleUnlockKeepsNewHolder(t *testing.T) {
	ctx := context.Background()
	store, mr, logs := newTestRedisStore(t)

	unlock, err := store.Lock(ctx, "abc")
	require.NoError(t, err)

	// The first holder outlives its lease and someone else takes the lock.
	mr.FastForward(lockLease + time.Second)
	second, err := store.Lock(ctx, "abc")
	require.NoError(t, err)
	held, err := mr.Get(lockKey("abc"))
	require.NoError(t, err)

	unlock()
	still, err := mr.Get(lockKey("abc"))
	require.NoError(t, err)
	assert.Equal(t, held, still)
	assert.Equal(t, 1, logs.FilterMessage("Session lock lease expired before release").Len())

	second()
	assert.False(t, mr.Exists(lockKey("abc")))
}

func TestRedisStoreReleaseErrorIsLogged(t *testing.T) {
	ctx := context.Background()
	store, mr, logs := newTestRedisStore(t)

	unlock, err := store.Lock(ctx, "abc")
	require.NoError(t, err)

	mr.Close()
	unlock()

	entries := logs.FilterMessage("Failed to release session lock").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zap.ErrorLevel, entries[0].Level)
	assert.Equal(t, "abc", entries[0].ContextMap()["sessionId"])
}

func TestRedisStoreExpireStaleSkipsLocked(t *testing.T) {
	ctx := context.Background()
	store, _, _ := newTestRedisStore(t)

	idle, err := store.Create(ctx)
	require.NoError(t, err)
	busy, err := store.Create(ctx)
	require.NoError(t, err)

	unlock, err := store.Lock(ctx, busy.ID)
	require.NoError(t, err)

	later := t0.Add(31 * time.Minute)
	removed, err := store.ExpireStale(ctx, later, 30*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = store.Get(ctx, idle.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = store.Get(ctx, busy.ID)
	assert.NoError(t, err)

	unlock()
	removed, err = store.ExpireStale(ctx, later, 30*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
}
