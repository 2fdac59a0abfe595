// Copyright (c) AgentRelay Authors.
// Licensed under the MIT License.

/*
Package session 定义交接协议所依赖的会话存储边界。

# 概述

session 描述外部会话/轮次（turn-taking）存储的接口契约。协议核心只通过
Store 接口读取会话身份、最近消息窗口，并执行轮次释放/获取与共享上下文
合并；存储本身的实现（数据库、平台内部服务等）在模块之外。

# 核心模型

  - Session — 会话身份快照（ID、UserID、当前持有轮次的 Agent）
  - Store   — 六个操作：GetSession / GetRecentContext / ReleaseTurn /
    RequestTurn / PropagateContext / AddMessage
  - MemoryStore — 参考实现，用于嵌入式场景与测试

# 主要能力

  - 轮次管理：同一时刻至多一个 Agent 持有轮次；重复请求幂等
  - 共享上下文：PropagateContext 以覆盖语义合并 agent-context map
  - 历史窗口：GetRecentContext 返回最近 N 条消息（旧→新）

# 与其他包协同

  - handoff.ContextGatherer 通过 Store 采集会话快照
  - handoff.Orchestrator 的轮次转移三步依次调用 ReleaseTurn /
    PropagateContext / RequestTurn
*/
package session
