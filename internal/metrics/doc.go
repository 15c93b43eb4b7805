/*
包 metrics 提供基于 Prometheus 的指标采集，覆盖 HTTP、生成操作、
异步轮询、结构化恢复与数据库连接池五个维度。

# 核心类型

  - Collector：指标收集器，持有 Counter、Histogram、Gauge 向量指标。
    同时实现 orchestrator.Recorder 与 poller.Observer，可直接注入
    编排服务与轮询器。

# 指标一览

  - http_requests_total / http_request_duration_seconds：按 method/path/status 分组，
    状态码归类为 2xx/3xx/4xx/5xx。
  - operations_total / operation_duration_seconds：按 operation/provider/outcome 分组，
    outcome 为 success 或错误码。
  - async_polls_total / async_poll_attempts：异步出图任务的终态与轮询次数。
  - recovery_stage_total / recovery_auto_prompts_total：结构化输出在哪个阶段恢复成功，
    以及补全的配图提示词数量。
  - card_prompt_fallbacks_total：逐卡提示词使用兜底的次数。
  - db_connections_open / db_connections_idle：连接池状态。

指标注册到调用方传入的 Registerer；传 nil 时使用 prometheus.DefaultRegisterer。
*/
package metrics
