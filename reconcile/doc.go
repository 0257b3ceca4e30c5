// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package reconcile 实现管道状态对账引擎。

# 概述

引擎由两个互相独立的周期任务组成：执行状态对账读取所有 running 管道，
把状态索引中的分片文档归约为单一状态与进度后写回；同步状态对账把同步目标
管道与编排器的 continuous activity 关联，判定增量同步是否健康。

两者共享同一个周期骨架：非重入保护、周期超时、OpenTelemetry 追踪、
批次摘要与指标。单条管道失败只影响该条目，读取目标或批量拉取失败才会中止周期。

# 核心类型

  - DetermineStatus / DetermineProgress — 分片状态与进度的纯函数归约
  - DetermineSyncStatus / IndexActivities — recipe key 哈希关联与判定
  - StatusReconciler / SyncReconciler    — 两个对账器
  - Guard     — 单槽信号量 + 可选 Redis 租约
  - Summary   — 周期摘要，按 updated / unchanged / skipped / failed 计数
  - Scheduler — 按间隔驱动对账器

# 状态归约规则

优先级 error > complete > running，空文档列表视为 running。
progress：error 时不更新；complete 时为 100；running 时取可解析 rate 的最大值，
无可解析值时为 0，结果限制在 [0, 100]。
*/
package reconcile
