// Package tlsutil 为 kpreconcile 的 HTTPS 两端生成 TLS 配置。
//
// 服务端：ServerTLSConfig 在启动时加载证书对。客户端：状态索引与编排器
// 适配器通过 SourceHTTPClient 创建连接，可额外信任一个内部 CA 文件。
// 两端都只允许 TLS 1.2+ 与 AEAD 套件。
package tlsutil
