// =============================================================================
// 💾 MockVault - 上下文包存储模拟实现
// =============================================================================
// 用于测试的 vault 模拟，支持错误注入与调用计数
//
// 使用方法:
//
//	v := mocks.NewMockVault()
//	v.WithStoreError(errors.New("backend down"))
//	v.FailNextStores(2) // 前两次 Store 调用失败，之后恢复
// =============================================================================
package mocks

import (
	"context"
	"sync"

	"github.com/BaSui01/agentrelay/vault"
)

// =============================================================================
// 🎯 MockVault 结构
// =============================================================================

// MockVault 是 vault.Vault 的模拟实现
type MockVault struct {
	mu sync.RWMutex

	// 条目存储
	entries map[string][]byte

	// 错误注入
	storeErr    error
	retrieveErr error
	pingErr     error

	// 一次性失败（优先于固定错误恢复）
	failStores int

	// 调用记录
	storeCalls    int
	retrieveCalls int
	pingCalls     int

	closed bool
}

var _ vault.Vault = (*MockVault)(nil)

// =============================================================================
// 🔧 构造函数和 Builder 方法
// =============================================================================

// NewMockVault 创建新的 MockVault
func NewMockVault() *MockVault {
	return &MockVault{
		entries: make(map[string][]byte),
	}
}

// WithStoreError 设置 Store 方法的固定错误
func (v *MockVault) WithStoreError(err error) *MockVault {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.storeErr = err
	return v
}

// WithRetrieveError 设置 Retrieve 方法的固定错误
func (v *MockVault) WithRetrieveError(err error) *MockVault {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.retrieveErr = err
	return v
}

// WithPingError 设置 Ping 方法的固定错误
func (v *MockVault) WithPingError(err error) *MockVault {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.pingErr = err
	return v
}

// FailNextStores 让接下来 n 次 Store 调用失败，之后恢复正常
func (v *MockVault) FailNextStores(n int) *MockVault {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.failStores = n
	return v
}

// WithEntry 预置一个条目
func (v *MockVault) WithEntry(path string, content []byte) *MockVault {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.entries[path] = append([]byte{}, content...)
	return v
}

// =============================================================================
// 📝 Vault 接口实现
// =============================================================================

// Store 写入一个条目
func (v *MockVault) Store(ctx context.Context, path string, content []byte, metadata map[string]string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.storeCalls++
	if v.closed {
		return vault.ErrClosed
	}
	if v.failStores > 0 {
		v.failStores--
		if v.storeErr != nil {
			return v.storeErr
		}
		return vault.ErrInvalidInput
	}
	if v.storeErr != nil {
		return v.storeErr
	}

	v.entries[path] = append([]byte{}, content...)
	return nil
}

// Retrieve 读取一个条目
func (v *MockVault) Retrieve(ctx context.Context, path string) ([]byte, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.retrieveCalls++
	if v.closed {
		return nil, vault.ErrClosed
	}
	if v.retrieveErr != nil {
		return nil, v.retrieveErr
	}
	content, ok := v.entries[path]
	if !ok {
		return nil, vault.ErrNotFound
	}
	return append([]byte{}, content...), nil
}

// Ping 检查后端健康状态
func (v *MockVault) Ping(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.pingCalls++
	if v.closed {
		return vault.ErrClosed
	}
	return v.pingErr
}

// Close 关闭后端
func (v *MockVault) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.closed = true
	return nil
}

// =============================================================================
// 📊 调用记录查询
// =============================================================================

// StoreCalls 返回 Store 的调用次数
func (v *MockVault) StoreCalls() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.storeCalls
}

// RetrieveCalls 返回 Retrieve 的调用次数
func (v *MockVault) RetrieveCalls() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.retrieveCalls
}

// PingCalls 返回 Ping 的调用次数
func (v *MockVault) PingCalls() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.pingCalls
}

// EntryCount 返回当前条目数
func (v *MockVault) EntryCount() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.entries)
}

// Reset 重置所有状态
func (v *MockVault) Reset() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.entries = make(map[string][]byte)
	v.storeErr = nil
	v.retrieveErr = nil
	v.pingErr = nil
	v.failStores = 0
	v.storeCalls = 0
	v.retrieveCalls = 0
	v.pingCalls = 0
	v.closed = false
}
