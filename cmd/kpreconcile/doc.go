// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package main 提供 kpreconcile 服务端程序入口。

# 概述

cmd/kpreconcile 是管道状态协调服务的可执行入口。serve 子命令按配置的
周期运行加载状态与同步状态两个对账器，并暴露运维 API；run 子命令执行
单次对账周期并把批次摘要以 JSON 输出到标准输出。

# 核心类型

  - Server        — 组装调度器、运维 API、Metrics 端口与配置监听
  - components    — 数据库连接池、Redis、管道仓储与两个对账器
  - Middleware    — HTTP 中间件函数签名 func(http.Handler) http.Handler
  - Authenticator — 请求凭据校验（API Key / JWT）

# 主要能力

  - 子命令：serve、run、migrate、version、health
  - 中间件链：Recovery、RequestID、OTelTracing、MetricsMiddleware、
    SecurityHeaders、RequestLogger、CORS、RateLimiter（基于 IP）、Auth
  - 配置热更新：文件变更后调整日志级别
  - run 退出码：0 成功，1 周期级错误，2 存在失败条目
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
