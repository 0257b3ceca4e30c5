// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 database 管理 pipeline 存储所依赖的关系型数据库连接。

PoolManager 在 gorm.DB 之上设置连接上限与生命周期，并在后台按
PoolConfig.HealthCheckInterval 周期探活。每次探活的连接统计通过
WithStatsObserver 注册的回调交给 metrics.Collector，失败时仅记录
zap 警告，不会中断对账周期。

写路径使用 WithTransactionRetry：死锁、序列化失败与连接断开被
IsRetryableError 判定为可重试，按指数退避重放整个事务；其它错误
立即返回。pipeline.GormStore 的每次状态更新都走这条路径，
重试耗尽后以 ErrStoreWrite 上报并保留可重试标记。
*/
package database
