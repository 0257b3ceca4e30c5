// Package api 定义运维 HTTP API 的数据传输类型。
//
// 协调服务只对运维人员暴露接口，不对终端用户提供管道状态查询。
//
// # API Overview
//
//   - GET  /health, /healthz    存活探针
//   - GET  /ready               就绪探针（数据库 + Redis）
//   - GET  /version             版本信息
//   - POST /api/v1/reconcile/{reconciler}/run   同步触发一次周期，返回计数
//   - GET  /api/v1/reconcile/summaries          每个协调器最近一次周期的计数
//
// # Authentication
//
// /api/v1 下的接口需要 X-API-Key 头或 Bearer JWT：
//
//	X-API-Key: your-api-key
//
// 周期正在执行时触发接口返回 409 CYCLE_IN_PROGRESS。
package api
