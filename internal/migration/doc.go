// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 migration 提供 knowledge_pipelines 表的 Schema 迁移管理能力，支持
PostgreSQL、MySQL 与 SQLite 三种数据库，基于 golang-migrate 实现。

# 概述

本包通过 embed.FS 内嵌各数据库方言的 SQL 迁移文件，结合
golang-migrate 引擎实现版本化的 Schema 变更管理。SQLite 使用
纯 Go 的 modernc 驱动，无需 CGO。

# 核心接口与类型

  - Migrator：迁移器接口，定义 Up/Down/DownAll/Steps/Goto/Force/
    Version/Status/Info/Close 等完整操作集。
  - DefaultMigrator：Migrator 的默认实现，ctx 取消时请求引擎在当前
    迁移结束后停止。
  - Config：迁移配置，包含数据库类型、连接 URL、迁移表名、锁超时与日志。
  - CLI：命令行交互层，提供 RunUp/RunDown/RunReset/RunStatus/RunInfo 等
    格式化输出。

# 迁移版本

  - 000001 create_knowledge_pipelines：管道表与 load_status 索引
  - 000002 add_sync_target_indexes：同步目标与 index_name 索引
*/
package migration
