// Copyright (c) AgentRelay Authors.
// Licensed under the MIT License.

/*
Package types 提供 agentrelay 模块的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 handoff、session、vault、
api 等上层模块提供统一的类型契约。跨包共享的消息结构与基础接口均定义
于此，以避免循环依赖。

# 核心类型

  - Role         — 消息参与者角色（system / user / assistant / tool）
  - Message      — 会话消息（Role、AgentID、Content、Timestamp）
  - TokenCounter — 最小 Token 计数接口（CountTokens(string) int）

# 主要能力

  - 消息构造：NewUserMessage / NewAssistantMessage / NewAgentMessage 等
  - 链式补充：WithAgentID / WithMetadata / WithTimestamp
  - Token 估算：EstimateCounter（中英文字符分别计算）

# 与其他包协同

  - handoff 的会话窗口快照由 []types.Message 构成
  - session 存储接口以 types.Message 作为读写单元
  - tokencount 包提供 TokenCounter 的 tiktoken 实现
*/
package types
