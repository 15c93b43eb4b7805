/*
Package main 提供 CardFlow 服务端程序入口。

# 概述

cmd/cardflow 基于 cobra 提供 serve、health、version 与 profiles 子命令。
配置按 默认值 → YAML → .env → CARDFLOW_* 环境变量 的顺序合并。

# 主要能力

  - serve：打开数据库并迁移，组装适配器注册表、轮询器与编排服务，
    在 API 端口与独立 Metrics 端口上运行，收到 SIGINT/SIGTERM 后优雅关闭
  - 中间件链：Recovery、RequestID、OTelTracing、SecurityHeaders、
    RequestLogger、Metrics、CORS、RateLimiter（基于 IP）
  - profiles list / import：直接操作配置存储，API Key 脱敏输出
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
