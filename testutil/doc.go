// Copyright (c) AgentRelay Authors.
// Licensed under the MIT License.

/*
Package testutil 提供 AgentRelay 测试的共享工具和辅助函数。

# 概述

testutil 包为整个项目的端到端测试与基准测试提供统一的辅助能力，
避免各包重复实现相似的测试基础设施。包内单元测试通常使用各自的
包内 fake；跨包的 e2e 套件应优先使用此包。

# 核心能力

  - 上下文辅助: TestContextWithTimeout，自动注册 Cleanup 防止泄漏
  - 异步断言: AssertEventuallyTrue / WaitFor / WaitForChannel，
    支持超时轮询等待条件满足

# 子包

  - testutil/mocks: Mock 实现，包括 MockVault（上下文包存储）、
    MockSessionStore（会话存储），均支持 Builder 模式与错误注入
  - testutil/fixtures: 测试数据工厂，提供预置 Agent 能力表、
    会话消息窗口、交接请求等样例

# 使用示例

	ctx := testutil.TestContextWithTimeout(t, time.Minute)
	v := mocks.NewMockVault().FailNextStores(1)
	store := mocks.NewMockSessionStore()
	_ = store.Seed("tok-1", "sess-1", "user-1", "companion", 6)
*/
package testutil
