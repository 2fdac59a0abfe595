package vault

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryVault_RoundTrip(t *testing.T) {
	v := NewMemoryVault()
	ctx := context.Background()

	content := []byte(`{"hello":"world"}`)
	require.NoError(t, v.Store(ctx, "handoffs/sess-1/h-1", content, map[string]string{"kind": "bundle"}))

	got, err := v.Retrieve(ctx, "handoffs/sess-1/h-1")
	require.NoError(t, err)
	assert.Equal(t, content, got)

	meta, ok := v.Metadata("handoffs/sess-1/h-1")
	require.True(t, ok)
	assert.Equal(t, "bundle", meta["kind"])
}

func TestMemoryVault_NotFound(t *testing.T) {
	v := NewMemoryVault()

	_, err := v.Retrieve(context.Background(), "handoffs/missing/h-9")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryVault_StoredContentIsCopied(t *testing.T) {
	v := NewMemoryVault()
	ctx := context.Background()

	content := []byte("original")
	require.NoError(t, v.Store(ctx, "p", content, nil))

	// Mutating the caller's slice must not affect the stored entry.
	content[0] = 'X'

	got, err := v.Retrieve(ctx, "p")
	require.NoError(t, err)
	assert.Equal(t, []byte("original"), got)
}

func TestMemoryVault_Overwrite(t *testing.T) {
	v := NewMemoryVault()
	ctx := context.Background()

	require.NoError(t, v.Store(ctx, "p", []byte("v1"), nil))
	require.NoError(t, v.Store(ctx, "p", []byte("v2"), nil))

	got, err := v.Retrieve(ctx, "p")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), got)
	assert.Equal(t, 1, v.Len())
}

func TestMemoryVault_Closed(t *testing.T) {
	v := NewMemoryVault()
	require.NoError(t, v.Close())

	err := v.Store(context.Background(), "p", []byte("x"), nil)
	assert.ErrorIs(t, err, ErrClosed)

	_, err = v.Retrieve(context.Background(), "p")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, v.Ping(context.Background()), ErrClosed)
}

func TestMemoryVault_EmptyPathRejected(t *testing.T) {
	v := NewMemoryVault()

	assert.ErrorIs(t, v.Store(context.Background(), "", []byte("x"), nil), ErrInvalidInput)
	_, err := v.Retrieve(context.Background(), "")
	assert.ErrorIs(t, err, ErrInvalidInput)
}
