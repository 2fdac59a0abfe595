// 版权所有 (c) AgentRelay Authors.
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 database 提供审计数据库的 GORM 连接池管理，支持健康检查、
指标上报与事务重试。

# 概述

本包通过 PoolManager 封装审计库（handoff_audit）底层 sql.DB 的
连接池配置，统一管理连接生命周期、空闲回收与最大连接数限制。
后台健康检查定时探活，并把连接池水位上报到指标收集器，异常时
通过 zap 日志输出诊断信息。

# 核心类型

  - PoolManager：包装 GORM DB 与底层 sql.DB 的连接池句柄，
    生命周期走 DB()、Ping()、Stats() 与 Close()。
  - PoolConfig：空闲/打开连接上限、连接寿命、空闲超时与健康
    检查间隔的配置载体，Validate 校验取值。
  - ConnectionRecorder：连接池水位的上报接口，由 metrics.Collector
    实现。
  - PoolStats：GetStats 产出的可读统计快照。
  - TransactionFunc：WithTransaction 系列的事务回调签名。

# 主要能力

  - 连接池调优：通过 MaxIdleConns/MaxOpenConns/ConnMaxLifetime 精细控制，
    PoolConfigFromDatabase 直接从服务配置推导。
  - 健康检查：后台定时 PingContext 探活，水位经 WithMetrics 注入的
    收集器导出为 Prometheus 指标。
  - 事务：WithTransaction 执行单次事务，WithTransactionRetry 在
    死锁、序列化失败、sqlite 锁忙等可重试错误上做指数退避。
*/
package database
