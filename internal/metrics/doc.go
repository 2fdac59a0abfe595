// 版权所有 (c) AgentRelay Authors.
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的指标采集能力，覆盖
交接管线、HTTP 接口与数据库连接池三大维度。

# 概述

Collector 在构造时经 promauto 把全部指标注册到默认 registry，
调用方无需自行维护 Registry 对象。指标统一挂在传入的 namespace
之下，并按多维 label 分组，可直接交给 Grafana 做看板与告警。

# 核心类型

  - Collector：持有交接、HTTP 与连接池三组 Prometheus 向量指标，
    同时实现 handoff.MetricsRecorder，可直接挂接到交接编排器上。

# 主要能力

  - 交接指标：发起总数（按 source/target/outcome 分组）、终态总数
    （按 source/target/status/durable 分组）、发起到终态耗时、
    在途交接数量 Gauge、目标侧水合结果计数。
  - HTTP 指标：请求计数、耗时直方图与请求/响应体大小，按
    method/path 分组，状态码折叠为 2xx/3xx/4xx/5xx 桶。
  - 数据库指标：活跃/空闲连接数 Gauge，按 database 分组。
*/
package metrics
