// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 server 提供 HTTP/HTTPS 服务器生命周期管理，支持非阻塞启动、
基于 context 的优雅关闭与异步错误传播。

# 概述

本包通过 Manager 封装 net/http.Server，统一管理监听、服务、
关闭与错误传播流程。协调服务同时运行 API 与 metrics 两个监听，
每个监听对应一个具名 Manager。

# 核心类型

  - Manager：HTTP 服务器管理器，持有 http.Server、net.Listener
    与异步错误通道，提供 Start/Run/Shutdown 等生命周期方法。
  - Config：服务器配置，包含监听地址、读写超时、空闲超时、
    最大请求头大小、优雅关闭超时与 TLS 证书路径。

# 主要能力

  - 非阻塞启动：Start 在后台 goroutine 中运行服务。
  - 阻塞运行：Run 在 ctx 结束时优雅关闭，服务异常时返回错误。
  - TLS：配置证书后使用 tlsutil 的加固配置提供 HTTPS。
  - 状态查询：IsRunning/Addr 提供运行状态与实际监听地址。
*/
package server
