package redisstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/centrid/go-identity-server/store"
	"github.com/centrid/go-identity-server/store/redisstore"
)

func newTestStore(t *testing.T) (*redisstore.Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
	t.Cleanup(func() { _ = client.Close() })
	return redisstore.New(client), mr
}

func TestRedisPutGet(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "master", "k1", []byte("v1"), time.Minute))

	value, err := s.Get(ctx, "master", "k1")
	require.NoError(t, err)
	require.Equal(t, []byte("v1"), value)

	_, err = s.Get(ctx, "master", "missing")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestRedisKeysAreTenantNamespaced(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "acme", "k1", []byte("v1"), time.Minute))

	require.True(t, mr.Exists("acme:k1"))
	_, err := s.Get(ctx, "master", "k1")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestRedisGetAndRemoveConsumes(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "master", "k1", []byte("v1"), time.Minute))

	value, err := s.GetAndRemove(ctx, "master", "k1")
	require.NoError(t, err)
	require.Equal(t, []byte("v1"), value)

	_, err = s.GetAndRemove(ctx, "master", "k1")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestRedisTTLExpiry(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "master", "k1", []byte("v1"), time.Minute))

	mr.FastForward(2 * time.Minute)
	_, err := s.Get(ctx, "master", "k1")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestRedisDelete(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "master", "k1", []byte("v1"), time.Minute))
	require.NoError(t, s.Delete(ctx, "master", "k1"))

	_, err := s.Get(ctx, "master", "k1")
	require.ErrorIs(t, err, store.ErrNotFound)
}
