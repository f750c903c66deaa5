package storage

import (
	"context"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	srv, err := miniredis.Run()
	if err != nil {
		t.Skipf("miniredis unavailable: %v", err)
	}
	t.Cleanup(srv.Close)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client), srv
}

func TestRedisStoreRoundTrip(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()
	data := pngBytes(t)

	require.NoError(t, store.Put(ctx, "art-1", data, "image/gif"))
	got, err := store.Get(ctx, "art-1")
	require.NoError(t, err)
	require.Equal(t, data, got)

	ct, err := store.ContentTypeOf(ctx, "art-1")
	require.NoError(t, err)
	require.Equal(t, "image/png", ct)
}

func TestRedisStoreDelete(t *testing.T) {
	store, srv := newRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "art-1", pngBytes(t), "image/png"))
	require.NoError(t, store.Delete(ctx, "art-1"))
	require.NoError(t, store.Delete(ctx, "art-1"))
	require.False(t, srv.Exists(artifactKey("art-1")))
	require.False(t, srv.Exists(artifactMetaKey("art-1")))

	_, err := store.Get(ctx, "art-1")
	require.ErrorIs(t, err, ErrNotFound)
	_, err = store.ContentTypeOf(ctx, "art-1")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStoreUnavailable(t *testing.T) {
	store, srv := newRedisStore(t)
	srv.Close()

	err := store.Put(context.Background(), "art-1", []byte("x"), "image/png")
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrNotFound)
}
