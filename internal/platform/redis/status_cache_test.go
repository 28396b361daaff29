package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T, ttl time.Duration) (*StatusCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewStatusCache(client, ttl), mr
}

func TestStatusCache_RoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	cache, mr := newTestCache(t, time.Minute)
	id := uuid.New()

	_, found, err := cache.Get(ctx, id)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, cache.Set(ctx, id, []byte(`{"status":"completed"}`)))
	assert.True(t, mr.Exists("inkwell:task:"+id.String()))

	got, found, err := cache.Get(ctx, id)
	require.NoError(t, err)
	assert.True(t, found)
	assert.JSONEq(t, `{"status":"completed"}`, string(got))

	mr.FastForward(2 * time.Minute)
	_, found, err = cache.Get(ctx, id)
	require.NoError(t, err)
	assert.False(t, found, "entry expires after the TTL")
}

func TestStatusCache_ServerDown(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	cache, mr := newTestCache(t, time.Minute)
	mr.Close()

	_, _, err := cache.Get(ctx, uuid.New())
	assert.Error(t, err)
	assert.Error(t, cache.Set(ctx, uuid.New(), []byte(`{}`)))
}

func TestDial(t *testing.T) {
	t.Parallel()
	mr := miniredis.RunT(t)

	client, err := Dial(context.Background(), mr.Addr(), "", 0)
	require.NoError(t, err)
	_ = client.Close()

	_, err = Dial(context.Background(), "127.0.0.1:1", "", 0)
	assert.Error(t, err)
}
