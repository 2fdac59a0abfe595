package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	appconfig "github.com/BaSui01/agentrelay/config"
	"github.com/BaSui01/agentrelay/internal/tlsutil"
)

// =============================================================================
// 🌐 监听配置
// =============================================================================

// Config 描述监听地址与各阶段超时
type Config struct {
	Addr            string        `yaml:"addr" json:"addr"`                         // 监听地址，形如 ":8080"
	ReadTimeout     time.Duration `yaml:"read_timeout" json:"read_timeout"`         // 读完整个请求的上限
	WriteTimeout    time.Duration `yaml:"write_timeout" json:"write_timeout"`       // 写出响应的上限
	IdleTimeout     time.Duration `yaml:"idle_timeout" json:"idle_timeout"`         // keep-alive 连接的空闲上限
	MaxHeaderBytes  int           `yaml:"max_header_bytes" json:"max_header_bytes"` // 请求头大小上限
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"` // 优雅关闭的等待上限
}

// DefaultConfig 返回各字段的出厂默认值
func DefaultConfig() Config {
	return Config{
		Addr:            ":8080",
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		IdleTimeout:     120 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		MaxHeaderBytes:  1 << 20, // 1 MB
	}
}

// ConfigFromServer 从服务配置推导监听参数，未设置的字段沿用默认值。
// port 为实际监听端口（API 与 metrics 服务共用同一套超时配置）。
func ConfigFromServer(cfg appconfig.ServerConfig, port int) Config {
	c := DefaultConfig()
	if port > 0 {
		c.Addr = fmt.Sprintf(":%d", port)
	}
	if cfg.ReadTimeout > 0 {
		c.ReadTimeout = cfg.ReadTimeout
	}
	if cfg.WriteTimeout > 0 {
		c.WriteTimeout = cfg.WriteTimeout
	}
	if cfg.ShutdownTimeout > 0 {
		c.ShutdownTimeout = cfg.ShutdownTimeout
	}
	return c
}

// =============================================================================
// 🌐 HTTP 服务器管理器
// =============================================================================

var (
	errClosed  = errors.New("server is closed")
	errStarted = errors.New("server already started")
)

// Manager 承载一个 http.Server 的完整生命周期。relayd 的 API
// 服务与 metrics 服务各持有一个实例，互不干扰地启停。
type Manager struct {
	config Config
	server *http.Server
	logger *zap.Logger
	errs   chan error

	mu       sync.RWMutex
	listener net.Listener
	closed   bool
}

// NewManager 创建服务器管理器。TLS 监听默认启用加固配置。
func NewManager(handler http.Handler, config Config, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		config: config,
		server: &http.Server{
			Addr:           config.Addr,
			Handler:        handler,
			ReadTimeout:    config.ReadTimeout,
			WriteTimeout:   config.WriteTimeout,
			IdleTimeout:    config.IdleTimeout,
			MaxHeaderBytes: config.MaxHeaderBytes,
			TLSConfig:      tlsutil.DefaultTLSConfig(),
		},
		logger: logger.With(zap.String("component", "http_server")),
		errs:   make(chan error, 1),
	}
}

// =============================================================================
// 🎯 生命周期
// =============================================================================

// Start 启动 HTTP 服务器（非阻塞）
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ln, err := m.bind()
	if err != nil {
		return err
	}

	m.logger.Info("starting HTTP server", zap.String("addr", ln.Addr().String()))
	go m.serve(ln)
	return nil
}

// StartTLS 以给定证书与私钥启动 HTTPS 服务器（非阻塞）
func (m *Manager) StartTLS(certFile, keyFile string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ln, err := m.bind()
	if err != nil {
		return err
	}

	m.logger.Info("starting HTTPS server", zap.String("addr", ln.Addr().String()), zap.String("cert", certFile))
	go m.serveTLS(ln, certFile, keyFile)
	return nil
}

// bind 绑定监听端口并登记 listener，调用方须持有写锁
func (m *Manager) bind() (net.Listener, error) {
	if m.closed {
		return nil, errClosed
	}
	if m.listener != nil {
		return nil, errStarted
	}

	ln, err := net.Listen("tcp", m.config.Addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", m.config.Addr, err)
	}
	m.listener = ln
	return ln, nil
}

func (m *Manager) serve(ln net.Listener) {
	m.report("HTTP server failed", m.server.Serve(ln))
}

func (m *Manager) serveTLS(ln net.Listener, certFile, keyFile string) {
	m.report("HTTPS server failed", m.server.ServeTLS(ln, certFile, keyFile))
}

// report 将异常退出记入日志并投递到错误通道，通道已满则丢弃
func (m *Manager) report(msg string, err error) {
	if err == nil || errors.Is(err, http.ErrServerClosed) {
		return
	}
	m.logger.Error(msg, zap.Error(err))
	select {
	case m.errs <- err:
	default:
	}
}

// Shutdown 优雅关闭服务器，重复调用是空操作
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	m.logger.Info("shutting down HTTP server")

	deadline, cancel := context.WithTimeout(ctx, m.config.ShutdownTimeout)
	defer cancel()

	// 等待在途请求排空，超过 ShutdownTimeout 则放弃
	if err := m.server.Shutdown(deadline); err != nil {
		m.logger.Error("HTTP server shutdown failed", zap.Error(err))
		return err
	}

	m.listener = nil
	m.logger.Info("HTTP server stopped")
	return nil
}

// WaitForShutdown 阻塞直到收到退出信号或服务异常退出，随后触发优雅关闭
func (m *Manager) WaitForShutdown() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		m.logger.Info("received shutdown signal", zap.String("signal", sig.String()))
	case err := <-m.errs:
		if err != nil {
			m.logger.Error("server exited unexpectedly", zap.Error(err))
		}
	}

	if err := m.Shutdown(context.Background()); err != nil {
		m.logger.Error("shutdown error", zap.Error(err))
	}
}

// =============================================================================
// 🔧 状态查询
// =============================================================================

// Errors 返回异步错误通道，服务异常退出时可从中读取原因
func (m *Manager) Errors() <-chan error {
	return m.errs
}

// Addr 返回配置的监听地址
func (m *Manager) Addr() string {
	return m.config.Addr
}

// BoundAddr 返回实际绑定的地址，未启动时退回配置地址。
// 监听 ":0" 时可据此取得随机分配的端口。
func (m *Manager) BoundAddr() string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if ln := m.listener; ln != nil {
		return ln.Addr().String()
	}
	return m.config.Addr
}

// IsRunning 报告服务器是否尚未关闭
func (m *Manager) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return !m.closed
}
