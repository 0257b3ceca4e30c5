// Package config 提供 kpreconcile 的配置管理功能。
//
// 包含默认值、YAML 文件与 KPRECONCILE_ 前缀环境变量的分层加载、
// 配置校验，以及配置文件变更后日志级别的运行时重载。
package config
