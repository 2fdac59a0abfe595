package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// =============================================================================
// 🧪 HealthHandler 测试
// =============================================================================

// fakeCheck 返回固定结果的依赖检查
type fakeCheck struct {
	name string
	err  error
}

func (f *fakeCheck) Name() string                    { return f.name }
func (f *fakeCheck) Check(ctx context.Context) error { return f.err }

func decodeHealth(t *testing.T, w *httptest.ResponseRecorder) HealthStatus {
	t.Helper()
	var status HealthStatus
	require.NoError(t, json.NewDecoder(w.Body).Decode(&status))
	return status
}

func TestHealthHandler_LivenessEndpoints(t *testing.T) {
	handler := NewHealthHandler(zap.NewNop())

	endpoints := map[string]http.HandlerFunc{
		"/health":  handler.HandleHealth,
		"/healthz": handler.HandleHealthz,
	}

	for path, handle := range endpoints {
		t.Run(path, func(t *testing.T) {
			w := httptest.NewRecorder()
			handle(w, httptest.NewRequest(http.MethodGet, path, nil))

			require.Equal(t, http.StatusOK, w.Code)
			status := decodeHealth(t, w)
			assert.Equal(t, "healthy", status.Status)
			assert.False(t, status.Timestamp.IsZero())
		})
	}
}

func TestHealthHandler_HandleReady(t *testing.T) {
	ready := func(t *testing.T, h *HealthHandler) (*httptest.ResponseRecorder, HealthStatus) {
		t.Helper()
		w := httptest.NewRecorder()
		h.HandleReady(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
		return w, decodeHealth(t, w)
	}

	t.Run("no checks registered", func(t *testing.T) {
		h := NewHealthHandler(zap.NewNop())

		w, status := ready(t, h)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "healthy", status.Status)
	})

	t.Run("all checks pass", func(t *testing.T) {
		h := NewHealthHandler(zap.NewNop())
		h.RegisterCheck(&fakeCheck{name: "vault"})
		h.RegisterCheck(&fakeCheck{name: "audit-db"})

		w, status := ready(t, h)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "healthy", status.Status)
		require.Len(t, status.Checks, 2)
		assert.Equal(t, "pass", status.Checks["vault"].Status)
		assert.Equal(t, "pass", status.Checks["audit-db"].Status)
		assert.NotEmpty(t, status.Checks["vault"].Latency)
	})

	t.Run("one check fails", func(t *testing.T) {
		h := NewHealthHandler(zap.NewNop())
		h.RegisterCheck(&fakeCheck{name: "vault"})
		h.RegisterCheck(&fakeCheck{name: "audit-db", err: errors.New("connection refused")})

		w, status := ready(t, h)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Equal(t, "unhealthy", status.Status)
		require.Len(t, status.Checks, 2)
		assert.Equal(t, "pass", status.Checks["vault"].Status)
		assert.Equal(t, "fail", status.Checks["audit-db"].Status)
		assert.Equal(t, "connection refused", status.Checks["audit-db"].Message)
	})
}

func TestHealthHandler_HandleVersion(t *testing.T) {
	handler := NewHealthHandler(zap.NewNop())

	w := httptest.NewRecorder()
	handler.HandleVersion("1.0.0", "2024-01-01T00:00:00Z", "abc123")(w, httptest.NewRequest(http.MethodGet, "/version", nil))

	require.Equal(t, http.StatusOK, w.Code)

	var resp Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.True(t, resp.Success)

	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "1.0.0", data["version"])
	assert.Equal(t, "2024-01-01T00:00:00Z", data["build_time"])
	assert.Equal(t, "abc123", data["git_commit"])
}

func TestHealthHandler_RegisterCheck(t *testing.T) {
	handler := NewHealthHandler(zap.NewNop())
	handler.RegisterCheck(&fakeCheck{name: "vault"})

	require.Len(t, handler.checks, 1)
	assert.Equal(t, "vault", handler.checks[0].Name())
}

func TestHealthHandler_ConcurrentChecks(t *testing.T) {
	handler := NewHealthHandler(zap.NewNop())
	for i := 0; i < 10; i++ {
		handler.RegisterCheck(&fakeCheck{name: string(rune('a' + i))})
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w := httptest.NewRecorder()
			handler.HandleReady(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
			assert.Equal(t, http.StatusOK, w.Code)
		}()
	}
	wg.Wait()
}

// =============================================================================
// 🧪 内置健康检查测试
// =============================================================================

func TestVaultHealthCheck(t *testing.T) {
	t.Run("ping succeeds", func(t *testing.T) {
		check := NewVaultHealthCheck("vault", func(ctx context.Context) error { return nil })

		assert.Equal(t, "vault", check.Name())
		assert.NoError(t, check.Check(context.Background()))
	})

	t.Run("ping fails", func(t *testing.T) {
		check := NewVaultHealthCheck("vault", func(ctx context.Context) error {
			return errors.New("redis unreachable")
		})

		err := check.Check(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "redis unreachable")
	})
}

func TestDatabaseHealthCheck(t *testing.T) {
	t.Run("ping succeeds", func(t *testing.T) {
		check := NewDatabaseHealthCheck("audit-db", func(ctx context.Context) error { return nil })

		assert.Equal(t, "audit-db", check.Name())
		assert.NoError(t, check.Check(context.Background()))
	})

	t.Run("ping respects context", func(t *testing.T) {
		check := NewDatabaseHealthCheck("audit-db", func(ctx context.Context) error {
			return ctx.Err()
		})

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		assert.ErrorIs(t, check.Check(ctx), context.Canceled)
	})
}
