// Copyright (c) AgentRelay Authors.
// Licensed under the MIT License.

/*
Package audit 将终态交接请求落入关系型数据库，供事后查询与统计。

# 概述

orchestrator 的内存历史是有界的，旧请求最终会被逐出。audit.Store 实现
handoff.AuditSink，在每个请求进入终态时写入一行审计记录；上下文本体不
入库（留在 vault），审计行只携带结果与定位 bundle 所需的标识符。

# 主要能力

  - Open / NewStore：按 Config.Driver 选择 sqlite（glebarez 纯 Go 驱动）、
    postgres 或 mysql，自动迁移 handoff_audit 表
  - RecordHandoff：AuditSink 实现，幂等键为 handoff_id 唯一索引
  - List：按会话、Agent 对、状态过滤，按发起时间倒序
  - Stats：按结果聚合，degraded 为 completed 且无持久上下文的数量

# 与其他包协同

cmd/relayd 在启用审计时通过 Orchestrator.WithAuditSink 挂载本包；
api/handlers 的历史查询端点直接读取 List 与 Stats。
*/
package audit
