// 版权所有 (c) AgentRelay Authors.
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 migration 管理审计数据库的 Schema 版本，支持 PostgreSQL、MySQL
与 SQLite 三种方言，基于 golang-migrate 实现。

# 概述

审计表（handoff_audit）的建表与索引变更以 SQL 迁移文件的形式通过
embed.FS 内嵌在二进制中，按方言分目录存放。Migrator 封装
golang-migrate 引擎，提供正向迁移、回滚、按步执行、跳转版本与
强制设版本等操作；SQLite 方言使用纯 Go 驱动（modernc.org/sqlite），
无需 CGO。

# 核心类型

  - Migrator / DefaultMigrator：迁移操作集及其默认实现。
  - Config：方言、连接 URL 与迁移表名。
  - MigrationStatus / MigrationInfo：单条迁移状态与整体摘要。
  - CLI：relayd migrate 子命令的终端输出层。

# 工厂函数

NewMigratorFromConfig / NewMigratorFromDatabaseConfig 从服务配置的
database 段构造迁移器；NewMigratorFromURL 接受显式连接串。
ParseDatabaseType 与 BuildDatabaseURL 负责方言解析与连接串拼接。
*/
package migration
