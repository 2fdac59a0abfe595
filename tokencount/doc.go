// Copyright (c) AgentRelay Authors.
// Licensed under the MIT License.

/*
Package tokencount 提供基于 tiktoken 的 Token 计数实现。

# 概述

handoff 的上下文采集阶段会在元数据中记录会话窗口的近似 Token 规模，
供下游 Agent 评估上下文预算。本包将 tiktoken 编码包装为
types.TokenCounter 接口；编码数据首次使用时才加载，加载失败时自动退化
为 types.EstimateCounter 的字符估算，调用方永远拿得到一个计数。

# 主要能力

  - New(encoding, logger)：按编码名创建计数器（默认 cl100k_base）
  - ForModel(model, logger)：按模型名选择编码（支持前缀匹配）
  - CountWindow：按消息窗口计数并计入每条消息的分隔开销

# 与其他包协同

handoff.ContextGatherer 通过 WithTokenCounter 接入本包实现。
*/
package tokencount
