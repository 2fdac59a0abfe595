// Package tlsutil 收拢 HTTPS 监听与 Redis 保险库连接共用的 TLS 配置，
// 统一执行安全加固基线：TLS 1.2 起步，只允许 AEAD 密码套件。
package tlsutil
