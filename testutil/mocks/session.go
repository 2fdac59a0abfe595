// =============================================================================
// 💬 MockSessionStore - 会话存储模拟实现
// =============================================================================
// 用于测试的 session.Store 模拟，支持按方法注入错误与调用计数。
// 正常路径委托给真实的 MemoryStore，注入只影响被配置的方法。
//
// 使用方法:
//
//	s := mocks.NewMockSessionStore()
//	s.Seed("tok-1", "sess-1", "user-1", "companion", 6)
//	s.WithReleaseTurnError(session.ErrTurnUnavailable)
// =============================================================================
package mocks

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/BaSui01/agentrelay/session"
	"github.com/BaSui01/agentrelay/types"
)

// =============================================================================
// 🎯 MockSessionStore 结构
// =============================================================================

// MockSessionStore 是 session.Store 的模拟实现
type MockSessionStore struct {
	mu    sync.RWMutex
	inner *session.MemoryStore

	// 错误注入
	getSessionErr       error
	getRecentContextErr error
	releaseTurnErr      error
	requestTurnErr      error
	propagateErr        error
	addMessageErr       error

	// 调用记录
	getSessionCalls  int
	getRecentCalls   int
	releaseTurnCalls int
	requestTurnCalls int
	propagateCalls   int
	addMessageCalls  int
}

var _ session.Store = (*MockSessionStore)(nil)

// =============================================================================
// 🔧 构造函数和 Builder 方法
// =============================================================================

// NewMockSessionStore 创建新的 MockSessionStore
func NewMockSessionStore() *MockSessionStore {
	return &MockSessionStore{
		inner: session.NewMemoryStore(zap.NewNop()),
	}
}

// Seed 创建一个会话并写入 n 条交替的 user/assistant 消息
func (s *MockSessionStore) Seed(token, sessionID, userID, activeAgentID string, n int) error {
	if err := s.inner.CreateSession(token, sessionID, userID, activeAgentID); err != nil {
		return err
	}
	ctx := context.Background()
	for i := 0; i < n; i++ {
		role := types.RoleUser
		agent := ""
		if i%2 == 1 {
			role = types.RoleAssistant
			agent = activeAgentID
		}
		if err := s.inner.AddMessage(ctx, token, agent, role, fmt.Sprintf("message %d", i)); err != nil {
			return err
		}
	}
	return nil
}

// WithGetSessionError 设置 GetSession 方法的错误
func (s *MockSessionStore) WithGetSessionError(err error) *MockSessionStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getSessionErr = err
	return s
}

// WithGetRecentContextError 设置 GetRecentContext 方法的错误
func (s *MockSessionStore) WithGetRecentContextError(err error) *MockSessionStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getRecentContextErr = err
	return s
}

// WithReleaseTurnError 设置 ReleaseTurn 方法的错误
func (s *MockSessionStore) WithReleaseTurnError(err error) *MockSessionStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.releaseTurnErr = err
	return s
}

// WithRequestTurnError 设置 RequestTurn 方法的错误
func (s *MockSessionStore) WithRequestTurnError(err error) *MockSessionStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requestTurnErr = err
	return s
}

// WithPropagateError 设置 PropagateContext 方法的错误
func (s *MockSessionStore) WithPropagateError(err error) *MockSessionStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.propagateErr = err
	return s
}

// WithAddMessageError 设置 AddMessage 方法的错误
func (s *MockSessionStore) WithAddMessageError(err error) *MockSessionStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addMessageErr = err
	return s
}

// =============================================================================
// 📝 session.Store 接口实现
// =============================================================================

// GetSession 解析会话令牌
func (s *MockSessionStore) GetSession(ctx context.Context, token string) (*session.Session, error) {
	s.mu.Lock()
	s.getSessionCalls++
	err := s.getSessionErr
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return s.inner.GetSession(ctx, token)
}

// GetRecentContext 返回最近的消息窗口
func (s *MockSessionStore) GetRecentContext(ctx context.Context, token string, count int) ([]types.Message, error) {
	s.mu.Lock()
	s.getRecentCalls++
	err := s.getRecentContextErr
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return s.inner.GetRecentContext(ctx, token, count)
}

// ReleaseTurn 释放会话轮次
func (s *MockSessionStore) ReleaseTurn(ctx context.Context, token, agentID string) error {
	s.mu.Lock()
	s.releaseTurnCalls++
	err := s.releaseTurnErr
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.inner.ReleaseTurn(ctx, token, agentID)
}

// RequestTurn 申请会话轮次
func (s *MockSessionStore) RequestTurn(ctx context.Context, token, agentID string) error {
	s.mu.Lock()
	s.requestTurnCalls++
	err := s.requestTurnErr
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.inner.RequestTurn(ctx, token, agentID)
}

// PropagateContext 合并共享上下文
func (s *MockSessionStore) PropagateContext(ctx context.Context, token string, update map[string]any) error {
	s.mu.Lock()
	s.propagateCalls++
	err := s.propagateErr
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.inner.PropagateContext(ctx, token, update)
}

// AddMessage 追加消息
func (s *MockSessionStore) AddMessage(ctx context.Context, token, agentID string, role types.Role, content string) error {
	s.mu.Lock()
	s.addMessageCalls++
	err := s.addMessageErr
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.inner.AddMessage(ctx, token, agentID, role, content)
}

// =============================================================================
// 📊 状态查询
// =============================================================================

// TurnHolder 返回当前轮次持有者
func (s *MockSessionStore) TurnHolder(token string) (string, bool) {
	return s.inner.TurnHolder(token)
}

// AgentContext 返回共享上下文
func (s *MockSessionStore) AgentContext(token string) (map[string]any, bool) {
	return s.inner.AgentContext(token)
}

// ReleaseTurnCalls 返回 ReleaseTurn 的调用次数
func (s *MockSessionStore) ReleaseTurnCalls() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.releaseTurnCalls
}

// RequestTurnCalls 返回 RequestTurn 的调用次数
func (s *MockSessionStore) RequestTurnCalls() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.requestTurnCalls
}

// Reset 重置错误注入与调用计数，保留已创建的会话
func (s *MockSessionStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getSessionErr = nil
	s.getRecentContextErr = nil
	s.releaseTurnErr = nil
	s.requestTurnErr = nil
	s.propagateErr = nil
	s.addMessageErr = nil
	s.getSessionCalls = 0
	s.getRecentCalls = 0
	s.releaseTurnCalls = 0
	s.requestTurnCalls = 0
	s.propagateCalls = 0
	s.addMessageCalls = 0
}
