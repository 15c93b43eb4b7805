// Package tlsutil 提供出站 HTTP 客户端的 TLS 加固配置（TLS 1.2+，仅 AEAD 密码套件），
// 供应商适配器与网页抓取共用。
package tlsutil
