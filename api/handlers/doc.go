// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package handlers 实现 kpreconcile 运维 HTTP API。

ReconcileHandler 负责手动触发 status / sync 周期并返回最近一次周期摘要；
同一种周期正在运行时返回 409 与 CYCLE_IN_PROGRESS。HealthHandler 提供
/health、/healthz 与 /ready，就绪检查按检查项的 Critical() 区分
必须可用的依赖（数据库）和可以降级的依赖（Redis）。

所有响应都使用 Response 信封，错误体为 ErrorInfo。状态码由 StatusFor
从 types.Error 推导，请求 ID 取自中间件写入的 X-Request-ID 响应头。
ResponseWriter 由日志和指标中间件共享，用于记录状态码与写出字节数。
*/
package handlers
