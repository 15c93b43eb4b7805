/*
Package types 提供 cardflow 的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 resolver、providers、
poller、structured、orchestrator 与 api 等上层模块提供统一的类型契约。

# 核心类型

  - Capability / ProviderFamily：后端能力与供应商家族枚举
  - BackendConfig              ：单次请求使用的后端配置快照
  - Message                    ：对话消息（Role + Content）
  - Error / ErrorCode          ：结构化错误体系，含 HTTP 状态码、Retryable、Provider 标记

# 错误工具链

  - AsError / GetErrorCode / IsErrorCode / IsRetryable
  - HTTPStatusOf 按错误码给出默认 HTTP 状态
*/
package types
