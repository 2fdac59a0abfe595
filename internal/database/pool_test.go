package database

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	appconfig "github.com/BaSui01/agentrelay/config"
)

// =============================================================================
// 🧪 审计库连接池测试
// =============================================================================

func setupTestDB(t *testing.T) (sqlmock.Sqlmock, *gorm.DB) {
	t.Helper()

	// MonitorPingsOption 让 ExpectPing 真正生效；关闭 gorm 打开时的
	// 自动探活，避免消耗测试自身的 Ping 期望。
	mockDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { _ = mockDB.Close() })

	dialector := postgres.New(postgres.Config{
		Conn: mockDB,
	})

	gormDB, err := gorm.Open(dialector, &gorm.Config{DisableAutomaticPing: true})
	require.NoError(t, err)

	return mock, gormDB
}

func setupSQLiteDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	return db
}

type recordedConns struct {
	database string
	open     int
	idle     int
}

type fakeRecorder struct {
	mu    sync.Mutex
	calls []recordedConns
}

func (f *fakeRecorder) RecordDBConnections(database string, open, idle int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, recordedConns{database: database, open: open, idle: idle})
}

func (f *fakeRecorder) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeRecorder) last() (recordedConns, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		return recordedConns{}, false
	}
	return f.calls[len(f.calls)-1], true
}

func TestNewPoolManager(t *testing.T) {
	_, gormDB := setupTestDB(t)

	config := PoolConfig{
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 1 * time.Hour,
		ConnMaxIdleTime: 30 * time.Minute,
	}

	manager, err := NewPoolManager(gormDB, config, zap.NewNop())
	require.NoError(t, err)
	require.NotNil(t, manager)

	assert.Equal(t, config, manager.config)
	assert.NotNil(t, manager.logger)
	assert.NotNil(t, manager.db)
}

func TestNewPoolManager_NilDB(t *testing.T) {
	_, err := NewPoolManager(nil, DefaultPoolConfig(), zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db cannot be nil")
}

func TestNewPoolManager_NilLogger(t *testing.T) {
	_, gormDB := setupTestDB(t)

	manager, err := NewPoolManager(gormDB, DefaultPoolConfig(), nil)
	require.NoError(t, err)
	assert.NotNil(t, manager.logger)
}

func TestNewPoolManager_InvalidConfig(t *testing.T) {
	_, gormDB := setupTestDB(t)

	_, err := NewPoolManager(gormDB, PoolConfig{MaxOpenConns: 0, MaxIdleConns: 5}, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid pool config")
}

func TestPoolManager_DB(t *testing.T) {
	_, gormDB := setupTestDB(t)

	manager, err := NewPoolManager(gormDB, PoolConfig{MaxOpenConns: 10, MaxIdleConns: 5}, zap.NewNop())
	require.NoError(t, err)

	assert.Same(t, gormDB, manager.DB())
}

func TestPoolManager_Ping(t *testing.T) {
	mock, gormDB := setupTestDB(t)

	manager, err := NewPoolManager(gormDB, PoolConfig{MaxOpenConns: 10, MaxIdleConns: 5}, zap.NewNop())
	require.NoError(t, err)

	mock.ExpectPing()

	err = manager.Ping(context.Background())
	assert.NoError(t, err)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPoolManager_PingFailed(t *testing.T) {
	mock, gormDB := setupTestDB(t)

	manager, err := NewPoolManager(gormDB, PoolConfig{MaxOpenConns: 10, MaxIdleConns: 5}, zap.NewNop())
	require.NoError(t, err)

	mock.ExpectPing().WillReturnError(sql.ErrConnDone)

	err = manager.Ping(context.Background())
	assert.Error(t, err)
}

func TestPoolManager_PingAfterClose(t *testing.T) {
	mock, gormDB := setupTestDB(t)

	manager, err := NewPoolManager(gormDB, PoolConfig{MaxOpenConns: 10, MaxIdleConns: 5}, zap.NewNop())
	require.NoError(t, err)

	mock.ExpectClose()
	require.NoError(t, manager.Close())

	err = manager.Ping(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pool is closed")
}

func TestPoolManager_GetStats(t *testing.T) {
	_, gormDB := setupTestDB(t)

	manager, err := NewPoolManager(gormDB, PoolConfig{MaxOpenConns: 10, MaxIdleConns: 5}, zap.NewNop())
	require.NoError(t, err)

	stats := manager.GetStats()
	assert.Equal(t, 10, stats.MaxOpenConnections)
	assert.GreaterOrEqual(t, stats.OpenConnections, 0)
	assert.GreaterOrEqual(t, stats.InUse, 0)
	assert.GreaterOrEqual(t, stats.Idle, 0)
}

func TestPoolManager_WithTransaction(t *testing.T) {
	mock, gormDB := setupTestDB(t)

	manager, err := NewPoolManager(gormDB, PoolConfig{MaxOpenConns: 10, MaxIdleConns: 5}, zap.NewNop())
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectCommit()

	err = manager.WithTransaction(context.Background(), func(tx *gorm.DB) error {
		return nil
	})
	assert.NoError(t, err)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPoolManager_WithTransactionRollback(t *testing.T) {
	mock, gormDB := setupTestDB(t)

	manager, err := NewPoolManager(gormDB, PoolConfig{MaxOpenConns: 10, MaxIdleConns: 5}, zap.NewNop())
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectRollback()

	err = manager.WithTransaction(context.Background(), func(tx *gorm.DB) error {
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPoolManager_WithTransactionRetry_SucceedsAfterRetry(t *testing.T) {
	mock, gormDB := setupTestDB(t)

	manager, err := NewPoolManager(gormDB, PoolConfig{MaxOpenConns: 10, MaxIdleConns: 5}, zap.NewNop())
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectCommit()

	attempts := 0
	err = manager.WithTransactionRetry(context.Background(), 3, func(tx *gorm.DB) error {
		attempts++
		if attempts == 1 {
			return errors.New("deadlock detected")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPoolManager_WithTransactionRetry_Exhausted(t *testing.T) {
	mock, gormDB := setupTestDB(t)

	manager, err := NewPoolManager(gormDB, PoolConfig{MaxOpenConns: 10, MaxIdleConns: 5}, zap.NewNop())
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectRollback()

	err = manager.WithTransactionRetry(context.Background(), 2, func(tx *gorm.DB) error {
		return errors.New("database is locked")
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 retries")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPoolManager_WithTransactionRetry_NonRetryable(t *testing.T) {
	mock, gormDB := setupTestDB(t)

	manager, err := NewPoolManager(gormDB, PoolConfig{MaxOpenConns: 10, MaxIdleConns: 5}, zap.NewNop())
	require.NoError(t, err)

	// 非可重试错误只尝试一次
	mock.ExpectBegin()
	mock.ExpectRollback()

	attempts := 0
	err = manager.WithTransactionRetry(context.Background(), 3, func(tx *gorm.DB) error {
		attempts++
		return assert.AnError
	})

	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, 1, attempts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPoolManager_Close(t *testing.T) {
	mock, gormDB := setupTestDB(t)

	manager, err := NewPoolManager(gormDB, PoolConfig{MaxOpenConns: 10, MaxIdleConns: 5}, zap.NewNop())
	require.NoError(t, err)

	mock.ExpectClose()

	assert.NoError(t, manager.Close())

	// 重复关闭是幂等的
	assert.NoError(t, manager.Close())

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPoolManager_WithMetrics(t *testing.T) {
	_, gormDB := setupTestDB(t)

	manager, err := NewPoolManager(gormDB, PoolConfig{MaxOpenConns: 10, MaxIdleConns: 5}, zap.NewNop())
	require.NoError(t, err)

	rec := &fakeRecorder{}
	assert.Same(t, manager, manager.WithMetrics(rec, "postgres"))

	manager.publish(sql.DBStats{OpenConnections: 3, Idle: 2})

	last, ok := rec.last()
	require.True(t, ok)
	assert.Equal(t, "postgres", last.database)
	assert.Equal(t, 3, last.open)
	assert.Equal(t, 2, last.idle)
}

func TestPoolManager_PublishWithoutRecorder(t *testing.T) {
	_, gormDB := setupTestDB(t)

	manager, err := NewPoolManager(gormDB, PoolConfig{MaxOpenConns: 10, MaxIdleConns: 5}, zap.NewNop())
	require.NoError(t, err)

	// 未配置采集器时静默跳过
	assert.NotPanics(t, func() { manager.publish(manager.Stats()) })
}

func TestPoolManager_HealthCheckPublishesMetrics(t *testing.T) {
	db := setupSQLiteDB(t)

	config := DefaultPoolConfig()
	config.HealthCheckInterval = 20 * time.Millisecond

	manager, err := NewPoolManager(db, config, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = manager.Close() })

	rec := &fakeRecorder{}
	manager.WithMetrics(rec, "sqlite")

	require.Eventually(t, func() bool {
		return rec.count() > 0
	}, 2*time.Second, 10*time.Millisecond)

	last, ok := rec.last()
	require.True(t, ok)
	assert.Equal(t, "sqlite", last.database)
	assert.GreaterOrEqual(t, last.open, 0)
	assert.GreaterOrEqual(t, last.idle, 0)
}

func TestPoolConfig_Validate(t *testing.T) {
	valid := PoolConfig{MaxOpenConns: 10, MaxIdleConns: 5, ConnMaxLifetime: time.Hour, ConnMaxIdleTime: 30 * time.Minute}
	assert.NoError(t, valid.Validate())
	assert.NoError(t, DefaultPoolConfig().Validate())

	tests := []struct {
		name    string
		config  PoolConfig
		wantMsg string
	}{
		{"zero max open conns", PoolConfig{MaxIdleConns: 5}, "max_open_conns"},
		{"zero max idle conns", PoolConfig{MaxOpenConns: 10}, "max_idle_conns"},
		{"idle exceeds open", PoolConfig{MaxOpenConns: 5, MaxIdleConns: 10}, "exceeds"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestPoolConfigFromDatabase(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		pool := PoolConfigFromDatabase(appconfig.DatabaseConfig{})
		assert.Equal(t, DefaultPoolConfig(), pool)
	})

	t.Run("overrides", func(t *testing.T) {
		pool := PoolConfigFromDatabase(appconfig.DatabaseConfig{
			MaxOpenConns:    50,
			MaxIdleConns:    10,
			ConnMaxLifetime: time.Hour,
		})
		assert.Equal(t, 50, pool.MaxOpenConns)
		assert.Equal(t, 10, pool.MaxIdleConns)
		assert.Equal(t, time.Hour, pool.ConnMaxLifetime)
		assert.Equal(t, DefaultPoolConfig().ConnMaxIdleTime, pool.ConnMaxIdleTime)
	})
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "deadlock", err: errors.New("Deadlock found when trying to get lock"), want: true},
		{name: "serialization failure", err: errors.New("ERROR: could not serialize access (SQLSTATE 40001)"), want: true},
		{name: "sqlite busy", err: errors.New("database is locked"), want: true},
		{name: "connection refused", err: errors.New("dial tcp 127.0.0.1:5432: connect: connection refused"), want: true},
		{name: "lock wait timeout", err: errors.New("Error 1205: Lock wait timeout exceeded"), want: true},
		{name: "bad connection", err: errors.New("driver: bad connection"), want: true},
		{name: "record not found", err: gorm.ErrRecordNotFound, want: false},
		{name: "unique violation", err: errors.New("UNIQUE constraint failed: handoff_audit.handoff_id"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isRetryableError(tt.err))
		})
	}
}
