package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

func TestNewConnectsWithCredentials(t *testing.T) {
	mr := miniredis.RunT(t)
	mr.RequireAuth("s3cret")
	ctx := context.Background()

	client, err := New(ctx, Options{Addr: mr.Addr(), Password: "s3cret", DB: 2})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	require.NoError(t, client.Set(ctx, "carepoint:conn", "ok", time.Minute).Err())
	mr.Select(2)
	require.True(t, mr.Exists("carepoint:conn"))

	_, err = New(ctx, Options{Addr: mr.Addr(), Password: "wrong"})
	require.Error(t, err)
}

func TestNewFailsWhenRedisIsDown(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := New(context.Background(), Options{Addr: addr, PingTimeout: 200 * time.Millisecond})
	require.ErrorContains(t, err, "platform/cache: ping")

	_, err = New(context.Background(), Options{})
	require.ErrorContains(t, err, "address is required")
}
