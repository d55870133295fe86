// 版权所有 2024 AgentHive Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 migration 管理蜂巢检查点表的 Schema 版本，基于 golang-migrate，
支持 PostgreSQL、MySQL 与 SQLite。

# 概述

各方言的 SQL 文件通过 embed.FS 内嵌在二进制中，目前包含
hive_checkpoints 表及其 (hive_id, created_at) 索引。表结构与
hive/checkpoint 的 GormStore 一致，生产环境应先执行迁移，
GormStore.EnsureSchema 只用于测试或未迁移的单机环境。

# 核心类型

  - Migrator / DefaultMigrator：Up、Down、DownAll、Steps、Goto、Force、
    Version、Status、Info。操作接受 context，取消时在当前迁移完成后停止。
  - Config：数据库类型、连接串、版本表名（默认 hive_schema_migrations）
    与锁超时。
  - CLI：hived migrate 子命令的输出层，Run 按子命令名分发。

# 工厂函数

NewMigratorFromConfig、NewMigratorFromDatabaseConfig 从应用配置构建
连接串，NewMigratorFromURL 直接使用给定连接串。

SQLite 迁移使用 sqlite3 驱动（cgo），与运行时 gorm 使用的纯 Go
"sqlite" 驱动分开注册。
*/
package migration
