// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的指标采集能力，覆盖 HTTP、对账周期、
外部数据源、分布式租约与数据库连接五个维度。

# 概述

本包通过 Collector 统一注册和记录 Prometheus 指标，使用 promauto
自动注册机制，避免手动管理 Registry。所有指标按 namespace 隔离，
支持多维度 label 分组，便于 Grafana 等工具进行可视化与告警。

# 核心类型

  - Collector：指标收集器，同时实现 reconcile.Metrics 与
    sources.RequestObserver，并提供熔断器与连接池的回调适配。

# 主要能力

  - HTTP 指标：请求总数、请求耗时、响应体大小，
    按 method/path/status 分组，状态码归类为 2xx/3xx/4xx/5xx。
  - 对账指标：周期总数与耗时（按 reconciler/outcome）、重入跳过次数、
    单条结果计数、实际写入的状态迁移、最近一次周期时间戳。
  - 数据源指标：请求总数与耗时（按 source/status）、熔断器状态 Gauge。
  - 数据库指标：打开/空闲/使用中连接数 Gauge。
*/
package metrics
