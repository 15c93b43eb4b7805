/*
Package handlers 提供 cardflow HTTP API 的请求处理器实现。

# 核心类型

  - GenerateHandler：大纲、逐卡提示词、快速模式、出图、对话与翻译
  - ProfileHandler：后端配置 CRUD 与连接测试，API Key 读出时脱敏
  - HealthHandler：/health、/healthz、/ready、/version
  - Response：统一 JSON 信封（success、data、servedBy、errorKind、message、detail、
    timestamp、requestId）
  - ResponseWriter：包装 http.ResponseWriter 以捕获状态码与响应大小

# 主要能力

  - 错误码决定 HTTP 状态；上游状态码只保留在 detail 中
  - DecodeJSONBody：大小限制 + 严格模式，拒绝未知字段
  - 逐卡提示词支持 application/x-ndjson 流式输出，每完成一张写一行
*/
package handlers
