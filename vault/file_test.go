package vault

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func setupFileVault(t *testing.T) *FileVault {
	t.Helper()
	v, err := NewFileVault(t.TempDir(), zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = v.Close() })
	return v
}

func TestFileVault_RoundTrip(t *testing.T) {
	v := setupFileVault(t)
	ctx := context.Background()

	content := []byte(`{"bundle":true}`)
	require.NoError(t, v.Store(ctx, "handoffs/sess-1/h-1", content, map[string]string{"kind": "bundle"}))

	got, err := v.Retrieve(ctx, "handoffs/sess-1/h-1")
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestFileVault_NestedPathCreatesDirs(t *testing.T) {
	dir := t.TempDir()
	v, err := NewFileVault(dir, nil)
	require.NoError(t, err)

	require.NoError(t, v.Store(context.Background(), "handoffs/sess-9/h-3", []byte("x"), nil))

	_, err = os.Stat(filepath.Join(dir, "handoffs", "sess-9", "h-3.json"))
	assert.NoError(t, err)
}

func TestFileVault_PathEscapeRejected(t *testing.T) {
	v := setupFileVault(t)
	ctx := context.Background()

	err := v.Store(ctx, "../outside", []byte("x"), nil)
	assert.ErrorIs(t, err, ErrInvalidInput)

	err = v.Store(ctx, "/etc/passwd", []byte("x"), nil)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = v.Retrieve(ctx, "../outside")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestFileVault_NotFound(t *testing.T) {
	v := setupFileVault(t)

	_, err := v.Retrieve(context.Background(), "handoffs/none/h-0")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileVault_OverwriteReplacesContent(t *testing.T) {
	v := setupFileVault(t)
	ctx := context.Background()

	require.NoError(t, v.Store(ctx, "p", []byte("v1"), nil))
	require.NoError(t, v.Store(ctx, "p", []byte("v2"), nil))

	got, err := v.Retrieve(ctx, "p")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), got)
}

func TestFileVault_Closed(t *testing.T) {
	v := setupFileVault(t)
	require.NoError(t, v.Close())

	assert.ErrorIs(t, v.Store(context.Background(), "p", []byte("x"), nil), ErrClosed)
	_, err := v.Retrieve(context.Background(), "p")
	assert.ErrorIs(t, err, ErrClosed)
}
