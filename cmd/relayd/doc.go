// Copyright (c) AgentRelay Authors.
// Licensed under the MIT License.

/*
Package main 提供 AgentRelay 服务端程序入口。

# 概述

cmd/relayd 是 AgentRelay 交接服务的可执行入口，提供交接 HTTP API、
审计数据库迁移、健康检查和版本查询等子命令。程序支持 YAML 配置文件加载、
结构化日志（zap）、Prometheus 指标采集以及配置热重载。

# 核心类型

  - Server           — 主服务器，管理 HTTP、Metrics 双端口及优雅关闭
  - Middleware        — HTTP 中间件函数签名 func(http.Handler) http.Handler
  - responseWriter    — 包装 http.ResponseWriter 以捕获状态码

# 主要能力

  - 子命令：serve（启动服务）、migrate（审计库迁移）、version、health
  - 中间件链：Recovery、RequestID、SecurityHeaders、RequestLogger、
    MetricsMiddleware、OTelTracing、CORS、RateLimiter（基于 IP）、
    JWTAuth（Bearer HS256）与 TenantRateLimiter（鉴权启用时）
  - 组合根：会话存储、能力注册表（agents_file）、保险库、审计库与
    编排器在 initRelayCore 中装配
  - 配置热重载：HotReloadManager 监听文件变更并回调
  - Metrics 服务器：独立端口暴露 /metrics（Prometheus）
  - 优雅关闭：信号监听 → 停止热更新 → 关闭 HTTP → 关闭 Metrics →
    停止事件分发池 → 释放存储 → Wait
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
