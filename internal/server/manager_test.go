package server

import (
	"context"
	"crypto/tls"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	appconfig "github.com/BaSui01/agentrelay/config"
)

// newTestManager 返回监听随机端口的管理器，测试结束时自动关闭
func newTestManager(t *testing.T, handler http.Handler) *Manager {
	t.Helper()

	cfg := DefaultConfig()
	cfg.Addr = ":0"
	m := NewManager(handler, cfg, zap.NewNop())
	t.Cleanup(func() { _ = m.Shutdown(context.Background()) })
	return m
}

func TestDefaultConfig_Values(t *testing.T) {
	want := Config{
		Addr:            ":8080",
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		IdleTimeout:     120 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		MaxHeaderBytes:  1 << 20,
	}
	assert.Equal(t, want, DefaultConfig())
}

func TestConfigFromServer(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg := ConfigFromServer(appconfig.ServerConfig{}, 0)
		assert.Equal(t, DefaultConfig(), cfg)
	})

	t.Run("overrides", func(t *testing.T) {
		cfg := ConfigFromServer(appconfig.ServerConfig{
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    20 * time.Second,
			ShutdownTimeout: 5 * time.Second,
		}, 9000)
		assert.Equal(t, ":9000", cfg.Addr)
		assert.Equal(t, 10*time.Second, cfg.ReadTimeout)
		assert.Equal(t, 20*time.Second, cfg.WriteTimeout)
		assert.Equal(t, 5*time.Second, cfg.ShutdownTimeout)
		assert.Equal(t, DefaultConfig().IdleTimeout, cfg.IdleTimeout)
	})
}

func TestNewManager(t *testing.T) {
	m := NewManager(http.NewServeMux(), DefaultConfig(), zap.NewNop())

	require.NotNil(t, m)
	assert.Equal(t, ":8080", m.Addr())
	assert.True(t, m.IsRunning())
}

func TestNewManager_NilLogger(t *testing.T) {
	m := NewManager(http.NewServeMux(), DefaultConfig(), nil)

	require.NotNil(t, m)
	assert.NotNil(t, m.logger)
}

func TestNewManager_HardenedTLS(t *testing.T) {
	m := NewManager(http.NewServeMux(), DefaultConfig(), zap.NewNop())

	require.NotNil(t, m.server.TLSConfig)
	assert.Equal(t, uint16(tls.VersionTLS12), m.server.TLSConfig.MinVersion)
	assert.NotEmpty(t, m.server.TLSConfig.CipherSuites)
}

func TestManager_Lifecycle(t *testing.T) {
	m := newTestManager(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}))
	assert.True(t, m.IsRunning())

	require.NoError(t, m.Start())
	assert.True(t, m.IsRunning())

	// 随机端口已绑定，应当可达
	resp, err := http.Get("http://" + m.BoundAddr() + "/")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(body))

	require.NoError(t, m.Shutdown(context.Background()))
	assert.False(t, m.IsRunning())
}

func TestManager_DoubleStart(t *testing.T) {
	m := newTestManager(t, http.NewServeMux())
	require.NoError(t, m.Start())

	err := m.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already started")
}

func TestManager_ShutdownIdempotent(t *testing.T) {
	m := newTestManager(t, http.NewServeMux())
	require.NoError(t, m.Start())

	// 第二次关闭是空操作
	require.NoError(t, m.Shutdown(context.Background()))
	require.NoError(t, m.Shutdown(context.Background()))
}

func TestManager_StartAfterShutdown(t *testing.T) {
	m := newTestManager(t, http.NewServeMux())
	require.NoError(t, m.Start())
	require.NoError(t, m.Shutdown(context.Background()))

	err := m.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "closed")
}

func TestManager_Errors(t *testing.T) {
	m := newTestManager(t, http.NewServeMux())

	ch := m.Errors()
	require.NotNil(t, ch)
	select {
	case err := <-ch:
		t.Fatalf("unexpected server error: %v", err)
	default:
	}
}

func TestManager_Addr(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Addr = ":9999"
	m := NewManager(http.NewServeMux(), cfg, zap.NewNop())

	assert.Equal(t, ":9999", m.Addr())
}

func TestManager_BoundAddr(t *testing.T) {
	m := newTestManager(t, http.NewServeMux())

	// 未启动时只有配置地址可用
	assert.Equal(t, ":0", m.BoundAddr())

	require.NoError(t, m.Start())
	assert.NotEqual(t, ":0", m.BoundAddr())
	assert.Contains(t, m.BoundAddr(), ":")
}
