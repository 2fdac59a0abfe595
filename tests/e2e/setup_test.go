// E2E 测试环境与跳过辅助。
//
// TestEnv 把编排器依赖的 mock 会话存储、mock vault 与 zaptest 日志
// 收拢为一个可复用的测试夹具；Skip 系列按外部依赖是否可达跳过用例。
//go:build e2e

package e2e

import (
	"context"
	"os"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/agentrelay"
	"github.com/BaSui01/agentrelay/handoff"
	"github.com/BaSui01/agentrelay/testutil"
	"github.com/BaSui01/agentrelay/testutil/mocks"
)

// --- 测试环境 ---

// envTimeout 是单个 e2e 用例的上下文上限。
const envTimeout = 5 * time.Minute

// TestEnv 聚合一个编排器所需的全部测试替身。
type TestEnv struct {
	Logger   *zap.Logger
	Sessions *mocks.MockSessionStore
	Vault    *mocks.MockVault

	ctx context.Context
}

// NewTestEnv 构造测试环境，上下文取消与日志输出挂接到 t。
func NewTestEnv(t *testing.T) *TestEnv {
	t.Helper()

	return &TestEnv{
		Logger:   zaptest.NewLogger(t),
		Sessions: mocks.NewMockSessionStore(),
		Vault:    mocks.NewMockVault(),
		ctx:      testutil.TestContextWithTimeout(t, envTimeout),
	}
}

// NewOrchestrator 在当前环境上创建编排器，测试结束时自动关闭。
func (e *TestEnv) NewOrchestrator(t *testing.T, caps []handoff.Capability) *handoff.Orchestrator {
	t.Helper()

	orch, err := agentrelay.New(
		agentrelay.WithCapabilities(caps...),
		agentrelay.WithSessionStore(e.Sessions),
		agentrelay.WithVault(e.Vault),
		agentrelay.WithLogger(e.Logger),
	)
	if err != nil {
		t.Fatalf("create orchestrator: %v", err)
	}
	t.Cleanup(orch.Close)
	return orch
}

// Context 返回受 envTimeout 约束的测试上下文。
func (e *TestEnv) Context() context.Context {
	return e.ctx
}

// --- 环境检查 ---

// SkipIfNoRedis 在未配置 Redis 时跳过用例。
func SkipIfNoRedis(t *testing.T) {
	t.Helper()
	if os.Getenv("AGENTRELAY_REDIS_ADDR") == "" {
		t.Skip("Redis not configured, set AGENTRELAY_REDIS_ADDR to run")
	}
}

// SkipIfNoMongo 在未配置 MongoDB 时跳过用例。
func SkipIfNoMongo(t *testing.T) {
	t.Helper()
	if os.Getenv("AGENTRELAY_MONGO_URI") == "" {
		t.Skip("MongoDB not configured, set AGENTRELAY_MONGO_URI to run")
	}
}

// SkipIfShort 在 -short 模式下跳过耗时用例。
func SkipIfShort(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping long-running test in short mode")
	}
}
