// Copyright (c) AgentRelay Authors.
// Licensed under the MIT License.

/*
Package handlers 提供 AgentRelay HTTP API 的请求处理器实现。

# 概述

handlers 包实现了 AgentRelay 所有 HTTP 端点的请求处理逻辑，
包括交接发起与跟踪、上下文水合、Agent 能力查询、审计查询
以及统一的响应/错误处理。
各 Handler 只依赖标准 net/http 接口，API 文档由 Swagger 注解生成。

# 核心类型

  - HandoffHandler：交接生命周期（发起、查询、取消、水合、历史）
  - AgentHandler：Agent 能力表查询
  - AuditHandler：审计记录查询与服务统计
  - EventsHandler：WebSocket 生命周期事件流
  - HealthHandler：存活、就绪与依赖健康探针
  - Response：统一 JSON 响应外壳，携带 success、data、error 与时间戳
  - ErrorInfo：结构化错误，带错误码与 retryable 标记
  - ResponseWriter：记录状态码的 http.ResponseWriter 包装
  - HealthCheck：可插拔健康检查接口（Vault、Database）

# 主要能力

  - 响应辅助：WriteSuccess、WriteError 与 WriteJSON 统一出口格式
  - 请求防护：DecodeJSONBody 限制请求体为 1 MB 并拒绝未知字段，
    ValidateContentType 校验媒体类型
  - 交接错误按类别映射为对应的 4xx/5xx 状态码
  - WebSocket 事件流：EventsHandler 支持按 session 过滤
  - 健康检查可经 RegisterCheck 挂接自定义实现
*/
package handlers
