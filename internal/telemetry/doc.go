// Package telemetry 启动 kpreconcile 的 OpenTelemetry 导出链路。
// Init 在 cfg.Enabled 为 false 时返回只持有 noop 实现的 Providers；
// 开启时通过 OTLP/gRPC 导出对账周期的 span 与指标，资源属性带上
// 服务名、部署环境与 BuildVersion。测试可用 WithSpanExporter /
// WithMetricReader 注入内存导出器。
package telemetry
