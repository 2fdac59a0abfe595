// Copyright (c) AgentRelay Authors.
// Licensed under the MIT License.

/*
Package vault 提供交接上下文包（context bundle）的持久化存储边界。

# 概述

vault 是一个以路径为键的持久化 KV 存储抽象。交接协议将序列化后的
context bundle 写入 `handoffs/{sessionId}/{handoffId}` 路径，并在写入后
立即读回校验。包内提供四种后端实现与统一工厂。

# 核心模型

  - Vault       — Store / Retrieve / Ping / Close 四操作接口
  - MemoryVault — 内存实现（默认，开发与测试）
  - FileVault   — 文件实现（单机部署；tmp+rename 原子写，防路径逃逸）
  - RedisVault  — Redis 实现（分布式部署；pipeline 写入）
  - MongoVault  — MongoDB 实现（文档型部署；_id 即路径，upsert 写入）

# 主要能力

  - 统一哨兵错误：ErrNotFound / ErrClosed / ErrInvalidInput
  - 配置驱动工厂：New(cfg, logger) 按 Backend 字段选择实现
  - 元数据随行：Store 附带 map[string]string 元数据，不参与内容读回

# 与其他包协同

  - handoff.BundlePersister 写入并读回校验 bundle
  - handoff.Hydrator 按路径取回 bundle 并重建上下文
  - config 包的 VaultConfig 直接嵌入本包 Config
*/
package vault
