// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package types 提供 kpreconcile 服务的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 pipeline、sources、reconcile、
api 等上层模块提供统一的错误码与 Context 传播约定，以避免循环依赖。

# 核心类型

  - Error / ErrorCode — 结构化错误体系，含 HTTP 状态码、Retryable、Source 标记
  - Context 传播      — WithTraceID / WithRequestID / WithSubject / WithCycleID

# 主要能力

  - 错误工具链：AsError / IsErrorCode / IsRetryable / GetErrorCode
  - 外部数据源错误分类：SOURCE_UNAVAILABLE / SOURCE_TIMEOUT / SOURCE_BAD_RESPONSE
*/
package types
