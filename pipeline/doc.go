// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package pipeline 定义知识管道记录及其存储契约。

# 概述

Record 是对账引擎读写的唯一持久化实体。管道由外部协作方创建，
本服务只读取 running 状态或同步目标记录，并仅修改
load_status、progress、completed_at、sync_status 四个字段。

# 核心类型

  - Record       — 管道记录（GORM 模型，表 knowledge_pipelines）
  - LoadStatus   — running / complete / error
  - SyncStatus   — normal / error / 未设置
  - Environment  — production / development，决定同步目标选择
  - Store        — FindRunning / FindSyncTargets / UpdateLoad / UpdateSyncStatus
  - GormStore    — 基于 database.PoolManager 的实现，写入带事务重试
  - MemoryStore  — 内存实现，支持错误注入与写入计数
*/
package pipeline
