package main

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/BaSui01/agentrelay/api/handlers"
	"github.com/BaSui01/agentrelay/audit"
	"github.com/BaSui01/agentrelay/config"
	"github.com/BaSui01/agentrelay/handoff"
	"github.com/BaSui01/agentrelay/internal/database"
	"github.com/BaSui01/agentrelay/internal/metrics"
	"github.com/BaSui01/agentrelay/internal/server"
	"github.com/BaSui01/agentrelay/internal/telemetry"
	"github.com/BaSui01/agentrelay/session"
	"github.com/BaSui01/agentrelay/tokencount"
	"github.com/BaSui01/agentrelay/vault"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 是 AgentRelay 的主服务器
type Server struct {
	cfg        *config.Config
	configPath string
	logger     *zap.Logger

	// 服务器管理器
	httpManager    *server.Manager
	metricsManager *server.Manager

	// 交接核心组件
	orchestrator *handoff.Orchestrator
	sessions     session.Store
	vault        vault.Vault
	auditStore   *audit.Store
	auditPool    *database.PoolManager

	// Handlers
	healthHandler  *handlers.HealthHandler
	handoffHandler *handlers.HandoffHandler
	agentHandler   *handlers.AgentHandler
	auditHandler   *handlers.AuditHandler
	eventsHandler  *handlers.EventsHandler

	// 指标收集器
	metricsCollector *metrics.Collector

	// 遥测提供者
	telemetry *telemetry.Providers

	// 热更新管理器
	hotReloadManager *config.HotReloadManager
	configAPIHandler *config.ConfigAPIHandler

	// Rate limiter 生命周期管理
	rateLimiterCancel context.CancelFunc

	wg sync.WaitGroup
}

// NewServer 创建新的服务器实例
func NewServer(cfg *config.Config, configPath string, logger *zap.Logger, providers *telemetry.Providers) *Server {
	return &Server{
		cfg:        cfg,
		configPath: configPath,
		logger:     logger,
		telemetry:  providers,
	}
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Start 启动所有服务
func (s *Server) Start() error {
	// 1. 初始化指标收集器
	s.metricsCollector = metrics.NewCollector("agentrelay", s.logger)

	// 2. 构建交接管线
	if err := s.initRelayCore(); err != nil {
		return fmt.Errorf("failed to init relay core: %w", err)
	}

	// 3. 初始化 Handlers
	if err := s.initHandlers(); err != nil {
		return fmt.Errorf("failed to init handlers: %w", err)
	}

	// 4. 初始化热更新管理器
	if err := s.initHotReloadManager(); err != nil {
		return fmt.Errorf("failed to init hot reload manager: %w", err)
	}

	// 5. 启动 HTTP 服务器
	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	// 6. 启动 Metrics 服务器
	if err := s.startMetricsServer(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	s.logger.Info("All servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
		zap.Bool("hot_reload_enabled", s.configPath != ""),
	)

	return nil
}

// =============================================================================
// 🔧 初始化方法
// =============================================================================

// initRelayCore 构建会话存储、保险库、审计与编排器
func (s *Server) initRelayCore() error {
	// 会话存储（进程内参考实现；编排器只依赖 session.Store 接口）
	s.sessions = session.NewMemoryStore(s.logger)

	// Agent 能力注册表
	var caps []handoff.Capability
	if s.cfg.Handoff.AgentsFile != "" {
		loaded, err := handoff.LoadCapabilitiesFile(s.cfg.Handoff.AgentsFile)
		if err != nil {
			return fmt.Errorf("load agents file: %w", err)
		}
		caps = loaded
	}
	if len(caps) == 0 {
		s.logger.Warn("no agent capabilities configured, every handoff will be rejected",
			zap.String("agents_file", s.cfg.Handoff.AgentsFile))
	}
	registry := handoff.NewCapabilityRegistry(caps...)

	// 上下文保险库
	v, err := vault.New(vaultConfigFrom(s.cfg.Vault), s.logger)
	if err != nil {
		return fmt.Errorf("create vault: %w", err)
	}
	s.vault = v

	// 采集器（可选 token 统计）
	gatherer := handoff.NewContextGatherer(s.sessions, handoff.NewEnrichmentTable(), s.cfg.Handoff.WindowSize, s.logger)
	if enc := s.cfg.Handoff.TokenEncoding; enc != "" {
		gatherer.WithTokenCounter(tokencount.New(enc, s.logger))
	}

	persister := handoff.NewBundlePersister(s.vault, s.logger)
	hydrator := handoff.NewContextHydrator(persister, s.logger)

	s.orchestrator = handoff.NewOrchestrator(registry, gatherer, persister, hydrator, s.sessions, s.logger).
		WithMetrics(s.metricsCollector).
		WithHistoryLimit(s.cfg.Handoff.HistoryLimit)

	// 审计落库（可选；失败时降级为纯内存历史）
	if s.cfg.Audit.Enabled {
		store, err := audit.Open(audit.Config{
			Driver: s.cfg.Database.Driver,
			DSN:    s.cfg.Database.DSN(),
		}, s.logger)
		if err != nil {
			s.logger.Warn("audit database not available, terminal handoffs stay in memory only", zap.Error(err))
		} else {
			s.auditStore = store
			s.orchestrator.WithAuditSink(store)

			pool, perr := database.NewPoolManager(store.DB(), database.PoolConfigFromDatabase(s.cfg.Database), s.logger)
			if perr != nil {
				s.logger.Warn("audit pool manager not started", zap.Error(perr))
			} else {
				s.auditPool = pool.WithMetrics(s.metricsCollector, s.cfg.Database.Driver)
			}
			s.logger.Info("audit store attached", zap.String("driver", s.cfg.Database.Driver))
		}
	}

	return nil
}

// vaultConfigFrom 将服务配置映射到 vault 包的后端配置
func vaultConfigFrom(cfg config.VaultConfig) vault.Config {
	out := vault.DefaultConfig()
	if cfg.Backend != "" {
		out.Backend = vault.BackendType(cfg.Backend)
	}
	if cfg.BaseDir != "" {
		out.BaseDir = cfg.BaseDir
	}
	if cfg.Redis.Host != "" {
		out.Redis.Host = cfg.Redis.Host
	}
	if cfg.Redis.Port != 0 {
		out.Redis.Port = cfg.Redis.Port
	}
	out.Redis.Password = cfg.Redis.Password
	out.Redis.DB = cfg.Redis.DB
	if cfg.Redis.PoolSize != 0 {
		out.Redis.PoolSize = cfg.Redis.PoolSize
	}
	if cfg.Redis.KeyPrefix != "" {
		out.Redis.KeyPrefix = cfg.Redis.KeyPrefix
	}
	out.Redis.TLS = cfg.Redis.TLS
	if cfg.Mongo.URI != "" {
		out.Mongo.URI = cfg.Mongo.URI
	}
	if cfg.Mongo.Database != "" {
		out.Mongo.Database = cfg.Mongo.Database
	}
	if cfg.Mongo.Collection != "" {
		out.Mongo.Collection = cfg.Mongo.Collection
	}
	if cfg.Mongo.ConnectTimeout != 0 {
		out.Mongo.ConnectTimeout = cfg.Mongo.ConnectTimeout
	}
	return out
}

// initHandlers 初始化所有 handlers
func (s *Server) initHandlers() error {
	// 健康检查 handler，挂接 vault 与审计库探针
	s.healthHandler = handlers.NewHealthHandler(s.logger)
	s.healthHandler.RegisterCheck(handlers.NewVaultHealthCheck("vault", s.vault.Ping))
	if s.auditPool != nil {
		s.healthHandler.RegisterCheck(handlers.NewDatabaseHealthCheck("audit-db", s.auditPool.Ping))
	}

	s.handoffHandler = handlers.NewHandoffHandler(s.orchestrator, s.logger)
	s.agentHandler = handlers.NewAgentHandler(s.orchestrator.Registry(), s.logger)
	s.auditHandler = handlers.NewAuditHandler(s.orchestrator, s.auditStore, s.logger)
	s.eventsHandler = handlers.NewEventsHandler(s.orchestrator, s.logger)

	s.logger.Info("Handlers initialized")
	return nil
}

// initHotReloadManager 初始化热更新管理器
func (s *Server) initHotReloadManager() error {
	opts := []config.HotReloadOption{
		config.WithHotReloadLogger(s.logger),
	}

	if s.configPath != "" {
		opts = append(opts, config.WithConfigPath(s.configPath))
	}

	s.hotReloadManager = config.NewHotReloadManager(s.cfg, opts...)

	// 注册配置变更回调
	s.hotReloadManager.OnChange(func(change config.ConfigChange) {
		s.logger.Info("Configuration changed",
			zap.String("path", change.Path),
			zap.String("source", change.Source),
			zap.Bool("requires_restart", change.RequiresRestart),
		)
	})

	// 注册配置重载回调
	s.hotReloadManager.OnReload(func(oldConfig, newConfig *config.Config) {
		s.logger.Info("Configuration reloaded")
		s.cfg = newConfig
	})

	// 启动热更新管理器
	ctx := context.Background()
	if err := s.hotReloadManager.Start(ctx); err != nil {
		return fmt.Errorf("failed to start hot reload manager: %w", err)
	}

	// 创建配置 API 处理器
	s.configAPIHandler = config.NewConfigAPIHandler(s.hotReloadManager)

	return nil
}

// =============================================================================
// 🌐 HTTP 服务器
// =============================================================================

// startHTTPServer 启动 HTTP 服务器
func (s *Server) startHTTPServer() error {
	mux := http.NewServeMux()

	// ========================================
	// 健康检查端点
	// ========================================
	mux.HandleFunc("/health", s.healthHandler.HandleHealth)
	mux.HandleFunc("/healthz", s.healthHandler.HandleHealthz)
	mux.HandleFunc("/ready", s.healthHandler.HandleReady)
	mux.HandleFunc("/readyz", s.healthHandler.HandleReady)

	// 版本信息端点
	mux.HandleFunc("/version", s.healthHandler.HandleVersion(Version, BuildTime, GitCommit))

	// ========================================
	// API 路由
	// ========================================
	s.handoffHandler.RegisterRoutes(mux)
	s.agentHandler.RegisterRoutes(mux)
	s.auditHandler.RegisterRoutes(mux)
	s.eventsHandler.RegisterRoutes(mux)

	// 配置管理 API
	if s.configAPIHandler != nil {
		s.configAPIHandler.RegisterRoutes(mux)
		s.logger.Info("Configuration API registered")
	}

	// ========================================
	// 构建中间件链
	// ========================================
	skipAuthPaths := []string{"/health", "/healthz", "/ready", "/readyz", "/version", "/metrics"}
	rateLimiterCtx, rateLimiterCancel := context.WithCancel(context.Background())
	s.rateLimiterCancel = rateLimiterCancel

	middlewares := []Middleware{
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		RequestLogger(s.logger),
		MetricsMiddleware(s.metricsCollector),
		OTelTracing(),
		CORS(s.cfg.Server.CORSAllowedOrigins),
	}
	if s.cfg.Auth.Enabled {
		// 鉴权在前，租户限流才能读到 tenant_id
		middlewares = append(middlewares,
			JWTAuth(s.cfg.Auth, skipAuthPaths, s.logger),
			TenantRateLimiter(rateLimiterCtx, float64(s.cfg.Server.RateLimitRPS), s.cfg.Server.RateLimitBurst, s.logger),
		)
	} else {
		middlewares = append(middlewares,
			RateLimiter(rateLimiterCtx, float64(s.cfg.Server.RateLimitRPS), s.cfg.Server.RateLimitBurst, s.logger),
		)
	}
	handler := Chain(mux, middlewares...)

	// ========================================
	// 使用 internal/server.Manager
	// ========================================
	s.httpManager = server.NewManager(handler, server.ConfigFromServer(s.cfg.Server, s.cfg.Server.HTTPPort), s.logger)

	// 启动服务器（非阻塞）
	if err := s.httpManager.Start(); err != nil {
		return err
	}

	s.logger.Info("HTTP server started", zap.Int("port", s.cfg.Server.HTTPPort))
	return nil
}

// =============================================================================
// 📊 Metrics 服务器
// =============================================================================

// startMetricsServer 启动 Metrics 服务器
func (s *Server) startMetricsServer() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	s.metricsManager = server.NewManager(mux, server.ConfigFromServer(s.cfg.Server, s.cfg.Server.MetricsPort), s.logger)

	// 启动服务器（非阻塞）
	if err := s.metricsManager.Start(); err != nil {
		return err
	}

	s.logger.Info("Metrics server started", zap.Int("port", s.cfg.Server.MetricsPort))
	return nil
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// WaitForShutdown 等待关闭信号并优雅关闭
func (s *Server) WaitForShutdown() {
	if s.httpManager != nil {
		s.httpManager.WaitForShutdown()
	}

	s.Shutdown()
}

// Shutdown 优雅关闭所有服务
func (s *Server) Shutdown() {
	s.logger.Info("Starting graceful shutdown...")

	ctx := context.Background()

	// 0. 停止 rate limiter 清理 goroutine
	if s.rateLimiterCancel != nil {
		s.rateLimiterCancel()
	}

	// 1. 停止热更新管理器
	if s.hotReloadManager != nil {
		if err := s.hotReloadManager.Stop(); err != nil {
			s.logger.Error("Hot reload manager shutdown error", zap.Error(err))
		}
	}

	// 2. 关闭 HTTP 服务器
	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}

	// 3. 关闭 Metrics 服务器
	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Error("Metrics server shutdown error", zap.Error(err))
		}
	}

	// 4. 停止事件分发池，飞行中的订阅回调先送达
	if s.orchestrator != nil {
		s.orchestrator.Close()
	}

	// 5. 释放存储资源
	if s.auditPool != nil {
		if err := s.auditPool.Close(); err != nil {
			s.logger.Error("Audit pool shutdown error", zap.Error(err))
		}
	} else if s.auditStore != nil {
		if err := s.auditStore.Close(); err != nil {
			s.logger.Error("Audit store shutdown error", zap.Error(err))
		}
	}
	if s.vault != nil {
		if err := s.vault.Close(); err != nil {
			s.logger.Error("Vault shutdown error", zap.Error(err))
		}
	}

	// 6. 关闭遥测提供者
	if s.telemetry != nil {
		if err := s.telemetry.Shutdown(ctx); err != nil {
			s.logger.Error("Telemetry shutdown error", zap.Error(err))
		}
	}

	// 7. 等待所有 goroutine 完成
	s.wg.Wait()

	s.logger.Info("Graceful shutdown completed")
}
