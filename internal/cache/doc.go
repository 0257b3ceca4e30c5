// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 cache 提供基于 Redis 的缓存管理能力，用于对账周期的跨副本租约
与最近一次对账摘要的持久化。

# 概述

Manager 封装 go-redis 客户端，统一键前缀、默认过期时间与健康检查。
多副本部署时，每个对账器在执行周期前通过 AcquireLease 以
SET NX PX 抢占租约，结束后用 Lua 脚本比较 token 再删除，
保证只释放自己持有的租约。

# 核心类型

  - Manager：缓存管理器，提供 Get/Set/GetJSON/SetJSON/Delete 与
    AcquireLease/ReleaseLease。
  - Config：Redis 地址、键前缀、默认 TTL、连接池与健康检查配置。

# 错误

  - ErrCacheMiss：键不存在或已过期。
  - ErrClosed：管理器已关闭。
*/
package cache
