package vault

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func setupRedisVault(t *testing.T) (*miniredis.Miniredis, *RedisVault) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	v := NewRedisVaultFromClient(client, "test:", zaptest.NewLogger(t))
	t.Cleanup(func() { _ = v.Close() })

	return mr, v
}

func TestRedisVault_RoundTrip(t *testing.T) {
	_, v := setupRedisVault(t)
	ctx := context.Background()

	content := []byte(`{"bundle":true}`)
	require.NoError(t, v.Store(ctx, "handoffs/sess-1/h-1", content, map[string]string{"kind": "bundle"}))

	got, err := v.Retrieve(ctx, "handoffs/sess-1/h-1")
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestRedisVault_KeyNamespacing(t *testing.T) {
	mr, v := setupRedisVault(t)
	ctx := context.Background()

	require.NoError(t, v.Store(ctx, "handoffs/s/h", []byte("x"), map[string]string{"a": "b"}))

	assert.True(t, mr.Exists("test:bundle:handoffs/s/h"))
	assert.True(t, mr.Exists("test:bundle:handoffs/s/h:meta"))
}

func TestRedisVault_NotFound(t *testing.T) {
	_, v := setupRedisVault(t)

	_, err := v.Retrieve(context.Background(), "handoffs/none/h-0")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisVault_Overwrite(t *testing.T) {
	_, v := setupRedisVault(t)
	ctx := context.Background()

	require.NoError(t, v.Store(ctx, "p", []byte("v1"), nil))
	require.NoError(t, v.Store(ctx, "p", []byte("v2"), nil))

	got, err := v.Retrieve(ctx, "p")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), got)
}

func TestRedisVault_Ping(t *testing.T) {
	mr, v := setupRedisVault(t)

	assert.NoError(t, v.Ping(context.Background()))

	mr.Close()
	assert.Error(t, v.Ping(context.Background()))
}
