package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	appconfig "github.com/BaSui01/agentrelay/config"
)

// healthPingTimeout 限定单次后台探活的耗时。
const healthPingTimeout = 5 * time.Second

var errPoolClosed = errors.New("pool is closed")

// =============================================================================
// 🗄️ 连接池参数
// =============================================================================

// PoolConfig 描述审计库连接池的各项上限
type PoolConfig struct {
	// 同时打开的连接数上限
	MaxOpenConns int `yaml:"max_open_conns" json:"max_open_conns"`

	// 空闲连接保留数上限
	MaxIdleConns int `yaml:"max_idle_conns" json:"max_idle_conns"`

	// 单个连接的存活上限
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`

	// 空闲连接的回收阈值
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" json:"conn_max_idle_time"`

	// 后台探活周期，0 表示不起探活协程
	HealthCheckInterval time.Duration `yaml:"health_check_interval" json:"health_check_interval"`
}

// DefaultPoolConfig 返回审计库的连接池默认参数
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxIdleConns:        5,
		MaxOpenConns:        25,
		ConnMaxLifetime:     5 * time.Minute,
		ConnMaxIdleTime:     2 * time.Minute,
		HealthCheckInterval: 30 * time.Second,
	}
}

// Validate 拒绝无法工作的连接池参数
func (c PoolConfig) Validate() error {
	switch {
	case c.MaxOpenConns <= 0:
		return fmt.Errorf("max_open_conns must be positive, got %d", c.MaxOpenConns)
	case c.MaxIdleConns <= 0:
		return fmt.Errorf("max_idle_conns must be positive, got %d", c.MaxIdleConns)
	case c.MaxIdleConns > c.MaxOpenConns:
		return fmt.Errorf("max_idle_conns (%d) exceeds max_open_conns (%d)", c.MaxIdleConns, c.MaxOpenConns)
	}
	return nil
}

// PoolConfigFromDatabase 把服务配置里的数据库小节映射成连接池参数，
// 零值字段保持默认。
func PoolConfigFromDatabase(cfg appconfig.DatabaseConfig) PoolConfig {
	pool := DefaultPoolConfig()
	if v := cfg.MaxOpenConns; v > 0 {
		pool.MaxOpenConns = v
	}
	if v := cfg.MaxIdleConns; v > 0 {
		pool.MaxIdleConns = v
	}
	if v := cfg.ConnMaxLifetime; v > 0 {
		pool.ConnMaxLifetime = v
	}
	return pool
}

// =============================================================================
// 🗄️ 连接池管理器
// =============================================================================

// ConnectionRecorder 接收连接池水位上报。*metrics.Collector 实现了该接口。
type ConnectionRecorder interface {
	RecordDBConnections(database string, open, idle int)
}

// PoolManager 持有审计库的 GORM 句柄并看护底层连接池
type PoolManager struct {
	db     *gorm.DB
	sqlDB  *sql.DB
	config PoolConfig
	logger *zap.Logger

	recorder      ConnectionRecorder
	recorderLabel string

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewPoolManager 把连接参数落到 db 的底层连接池并接管其生命周期
func NewPoolManager(db *gorm.DB, config PoolConfig, logger *zap.Logger) (*PoolManager, error) {
	if db == nil {
		return nil, fmt.Errorf("db cannot be nil")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pool config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	applyPoolLimits(sqlDB, config)

	pm := &PoolManager{
		db:     db,
		sqlDB:  sqlDB,
		config: config,
		logger: logger.With(zap.String("component", "audit_db_pool")),
		done:   make(chan struct{}),
	}

	if config.HealthCheckInterval > 0 {
		go pm.healthCheckLoop()
	}

	pm.logger.Info("audit database pool initialized",
		zap.Int("max_open_conns", config.MaxOpenConns),
		zap.Int("max_idle_conns", config.MaxIdleConns),
		zap.Duration("conn_max_lifetime", config.ConnMaxLifetime),
	)
	return pm, nil
}

func applyPoolLimits(db *sql.DB, cfg PoolConfig) {
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
}

// WithMetrics 把连接池水位接到指标收集器上，database 作为指标标签
// （通常取配置的数据库驱动名）。
func (pm *PoolManager) WithMetrics(rec ConnectionRecorder, database string) *PoolManager {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.recorder = rec
	pm.recorderLabel = database
	return pm
}

// DB 返回托管的 GORM 实例
func (pm *PoolManager) DB() *gorm.DB {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.db
}

// Ping 验证审计库连接仍然可用
func (pm *PoolManager) Ping(ctx context.Context) error {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	if pm.closed {
		return errPoolClosed
	}
	return pm.sqlDB.PingContext(ctx)
}

// Stats 返回底层连接池的原始统计
func (pm *PoolManager) Stats() sql.DBStats {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.sqlDB.Stats()
}

// Close 停掉后台探活并关闭连接池，重复调用是幂等的
func (pm *PoolManager) Close() error {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	if pm.closed {
		return nil
	}
	pm.closed = true
	close(pm.done)
	pm.logger.Info("closing audit database pool")
	return pm.sqlDB.Close()
}

// =============================================================================
// 🏥 后台探活
// =============================================================================

func (pm *PoolManager) healthCheckLoop() {
	ticker := time.NewTicker(pm.config.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-pm.done:
			return
		case <-ticker.C:
			pm.checkHealth()
		}
	}
}

// checkHealth 探活一次，成功后把水位上报给收集器。
func (pm *PoolManager) checkHealth() {
	ctx, cancel := context.WithTimeout(context.Background(), healthPingTimeout)
	defer cancel()

	if err := pm.Ping(ctx); err != nil {
		pm.logger.Error("audit database health check failed", zap.Error(err))
		return
	}

	stats := pm.Stats()
	pm.publish(stats)
	pm.logger.Debug("audit database health check passed",
		zap.Int("open_connections", stats.OpenConnections),
		zap.Int("in_use", stats.InUse),
		zap.Int("idle", stats.Idle),
	)
}

// publish 上报连接池水位，未挂收集器时为空操作
func (pm *PoolManager) publish(stats sql.DBStats) {
	pm.mu.RLock()
	rec, label := pm.recorder, pm.recorderLabel
	pm.mu.RUnlock()

	if rec == nil {
		return
	}
	rec.RecordDBConnections(label, stats.OpenConnections, stats.Idle)
}

// =============================================================================
// 📊 统计口径
// =============================================================================

// PoolStats 是 sql.DBStats 的扁平化版本，便于序列化
type PoolStats struct {
	MaxOpenConnections int `json:"max_open_connections"`

	// 连接水位
	OpenConnections int `json:"open_connections"`
	InUse           int `json:"in_use"`
	Idle            int `json:"idle"`

	// 累计计数
	WaitCount         int64         `json:"wait_count"`
	WaitDuration      time.Duration `json:"wait_duration"`
	MaxIdleClosed     int64         `json:"max_idle_closed"`
	MaxLifetimeClosed int64         `json:"max_lifetime_closed"`
}

// GetStats 把底层统计转成对外口径
func (pm *PoolManager) GetStats() PoolStats {
	s := pm.Stats()
	return PoolStats{
		MaxOpenConnections: s.MaxOpenConnections,
		OpenConnections:    s.OpenConnections,
		InUse:              s.InUse,
		Idle:               s.Idle,
		WaitCount:          s.WaitCount,
		WaitDuration:       s.WaitDuration,
		MaxIdleClosed:      s.MaxIdleClosed,
		MaxLifetimeClosed:  s.MaxLifetimeClosed,
	}
}

// =============================================================================
// 🔄 事务执行
// =============================================================================

// TransactionFunc 事务回调
type TransactionFunc func(tx *gorm.DB) error

// WithTransaction 在单个事务里执行 fn
func (pm *PoolManager) WithTransaction(ctx context.Context, fn TransactionFunc) error {
	pm.mu.RLock()
	db, closed := pm.db, pm.closed
	pm.mu.RUnlock()

	if closed {
		return errPoolClosed
	}
	return db.WithContext(ctx).Transaction(fn)
}

// WithTransactionRetry 在事务失败且错误可重试时自动重做，审计批量
// 写入靠它规避死锁和 sqlite 的锁忙错误。
func (pm *PoolManager) WithTransactionRetry(ctx context.Context, maxRetries int, fn TransactionFunc) error {
	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		lastErr = pm.WithTransaction(ctx, fn)
		if lastErr == nil {
			return nil
		}
		if !isRetryableError(lastErr) {
			return lastErr
		}

		pm.logger.Warn("transaction failed, retrying",
			zap.Int("attempt", attempt),
			zap.Int("max_retries", maxRetries),
			zap.Error(lastErr),
		)
		if err := backoffWait(ctx, attempt); err != nil {
			return err
		}
	}
	return fmt.Errorf("transaction failed after %d retries: %w", maxRetries, lastErr)
}

// backoffWait 按尝试次数指数退避，ctx 取消时立刻返回。
func backoffWait(ctx context.Context, attempt int) error {
	delay := time.Duration(1<<uint(attempt-1)) * 100 * time.Millisecond
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}

// retryableFragments 覆盖死锁、序列化冲突（SQLSTATE 40001）、sqlite
// 锁忙、连接闪断与锁等待超时这几类瞬态错误。
var retryableFragments = []string{
	"deadlock",
	"serialization failure",
	"40001",
	"database is locked",
	"database table is locked",
	"connection reset",
	"connection refused",
	"broken pipe",
	"lock timeout",
	"lock wait timeout",
	"bad connection",
}

// isRetryableError 判断事务错误是否属于值得重试的瞬态错误
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, fragment := range retryableFragments {
		if strings.Contains(msg, fragment) {
			return true
		}
	}
	return false
}
