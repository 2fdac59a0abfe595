// Copyright (c) AgentRelay Authors.
// Licensed under the MIT License.

/*
Package handoff 实现跨 Agent 交接协议：在多智能体会话中将会话控制权与
上下文从一个 Agent 进程安全地转移给另一个 Agent 进程，并对携带的上下文
做持久化与回读校验。

# 概述

handoff 解决的核心问题是：当会话需要从通用 Agent 切换到专业 Agent
（或反向切换）时，如何保证三件事同时成立：

 1. 转移本身可追踪（状态机、历史记录、审计）
 2. 携带的上下文不丢失（有界消息窗口、标签、记忆引用）
 3. 持久化结果可验证（写入后立即回读比对校验和）

# 核心模型

本包围绕以下类型展开：

  - CapabilityRegistry：静态能力注册表，按 Agent 身份对判定是否允许交接
  - ContextGatherer：从会话存储采集 HandoffContext 快照（最近 K 条消息、
    按 (source, target) 对分发的上下文增强、标签合并）
  - Orchestrator：状态机属主，创建并跟踪 HandoffRequest，驱动转移、
    持久化与完成/失败，终态请求退入有界历史
  - BundlePersister：将上下文序列化为 ContextBundle 写入 vault，
    立即回读并校验标签奇偶性与连续性指纹
  - ContextHydrator：接收方按 handoffId 取回 bundle，重新校验标签
    奇偶性后重建 HydratedContext，全有或全无

交接状态通过 HandoffStatus 枚举管理：
initiated -> in_progress -> completed / failed，
initiated / in_progress 可被取消为 cancelled；终态不可变更。

# 错误分类

Error.Kind 区分五类结果，调用方可据此判断"从未尝试"与"已尝试但降级"：

  - REJECTED_INITIATION：Agent 对不允许或会话无法解析，未创建请求
  - TRANSFER_FAILURE：turn 释放/上下文传播/turn 获取中途失败，请求转 FAILED
  - PERSISTENCE_DEGRADED：vault 写入或回读不可用，交接仍完成但无持久上下文
  - VERIFICATION_FAILURE：校验和不匹配，硬失败，不返还任何上下文
  - UNKNOWN_HANDOFF：对本进程从未跟踪过的 id 做查询/取消/水合

# 与其他包协同

  - session 包提供会话解析、消息窗口与 turn 管理
  - vault 包提供 bundle 的持久化后端（memory / file / redis / mongo）
  - audit 包实现 AuditSink，将终态请求落入关系型数据库
  - internal/metrics 实现 MetricsRecorder，导出 Prometheus 指标
*/
package handoff
