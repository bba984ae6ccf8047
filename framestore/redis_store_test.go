package framestore

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisStore(t *testing.T, ttl time.Duration) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, "", ttl), mr
}

func TestRedisStore_PutGet(t *testing.T) {
	s, mr := newTestRedisStore(t, 0)
	ctx := context.Background()

	_, err := s.Get(ctx, "A")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Put(ctx, "A", "B1"))
	require.NoError(t, s.Put(ctx, "A", "B2"))
	require.NoError(t, s.Put(ctx, "B", "C1"))

	blob, err := s.Get(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, "B2", blob)

	raw, err := mr.Get(DefaultRedisPrefix + "A")
	require.NoError(t, err)
	assert.Equal(t, "B2", raw)

	require.NoError(t, mr.Set("unrelated", "x"))
	n, err := s.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestRedisStore_Delete(t *testing.T) {
	s, mr := newTestRedisStore(t, 0)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "A", "B1"))
	require.NoError(t, s.Delete(ctx, "A"))
	require.NoError(t, s.Delete(ctx, "A"))
	assert.False(t, mr.Exists(DefaultRedisPrefix+"A"))
}

func TestRedisStore_TTL(t *testing.T) {
	s, mr := newTestRedisStore(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "A", "B1"))
	assert.Equal(t, time.Minute, mr.TTL(DefaultRedisPrefix+"A"))

	ok, err := s.Exists(ctx, "A")
	require.NoError(t, err)
	assert.True(t, ok)

	mr.FastForward(2 * time.Minute)
	_, err = s.Get(ctx, "A")
	assert.ErrorIs(t, err, ErrNotFound)

	ok, err = s.Exists(ctx, "A")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisStore_BackendDown(t *testing.T) {
	s, mr := newTestRedisStore(t, 0)
	mr.Close()

	err := s.Put(context.Background(), "A", "B1")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}
