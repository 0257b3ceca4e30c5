// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license.

/*
Package testutil 提供 kpreconcile 测试的共享工具和辅助函数。

# 概述

testutil 包为整个项目的单元测试提供统一的辅助能力，
避免各包重复实现相似的测试基础设施。

# 核心能力

  - 上下文辅助: TestContext，自动注册 Cleanup 防止泄漏
  - 管道断言: MustGet / AssertLoadState / AssertSyncState / AssertContains
  - 异步等待: WaitFor / AssertEventuallyTrue
  - 时钟: FixedClock 与可推进的 ManualClock

# 子包

  - testutil/mocks: MockStatusSource 与 MockActivitySource，
    支持按索引设置响应、错误注入与调用计数
  - testutil/fixtures: 测试数据工厂，提供管道记录、分片状态文档、
    continuous activity 等样例

# 使用示例

	store := pipeline.NewMemoryStore(fixtures.RunningPipeline("p1", "idx-1"))
	src := mocks.NewMockStatusSource().WithDocuments("idx-1", fixtures.CompleteDocs()...)
	_, err := reconcile.NewStatusReconciler(store, src).RunCycle(testutil.TestContext(t))
*/
package testutil
