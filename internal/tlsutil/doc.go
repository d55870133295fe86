// Package tlsutil 提供集中式 TLS 配置，
// 为 hived 的 HTTPS 监听、Redis 连接与健康探活客户端提供加固设置（TLS 1.2+，仅 AEAD 密码套件）。
package tlsutil
