package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/BaSui01/cardflow/structured"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器
type Collector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpResponseSize    *prometheus.HistogramVec

	// 生成操作指标
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec

	// 异步轮询指标
	pollsTotal   *prometheus.CounterVec
	pollAttempts *prometheus.HistogramVec
	pollDuration *prometheus.HistogramVec

	// 结构化恢复指标
	recoveryStages *prometheus.CounterVec
	autoPrompts    *prometheus.CounterVec
	cardFallbacks  prometheus.Counter

	// 数据库指标
	dbConnectionsOpen *prometheus.GaugeVec
	dbConnectionsIdle *prometheus.GaugeVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器，reg 为 nil 时注册到默认 Registerer
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// HTTP 指标
	c.httpRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	c.httpResponseSize = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_response_size_bytes",
			Help:      "HTTP response size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	// 生成操作指标
	c.operationsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Total number of generation operations by outcome",
		},
		[]string{"operation", "provider", "outcome"},
	)

	c.operationDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Generation operation duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"operation", "provider"},
	)

	// 异步轮询指标
	c.pollsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "async_polls_total",
			Help:      "Total number of finished async image tasks by outcome",
		},
		[]string{"provider", "outcome"},
	)

	c.pollAttempts = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "async_poll_attempts",
			Help:      "Number of status polls per async task",
			Buckets:   []float64{1, 2, 5, 10, 20, 40, 60},
		},
		[]string{"provider"},
	)

	c.pollDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "async_poll_duration_seconds",
			Help:      "Time from submission to terminal state",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
		},
		[]string{"provider"},
	)

	// 结构化恢复指标
	c.recoveryStages = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recovery_stage_total",
			Help:      "Structured output recoveries by the stage that succeeded",
		},
		[]string{"operation", "stage"},
	)

	c.autoPrompts = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recovery_auto_prompts_total",
			Help:      "Image prompts synthesized for cards that had none",
		},
		[]string{"operation"},
	)

	c.cardFallbacks = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "card_prompt_fallbacks_total",
			Help:      "Per-card prompt generations that used the fallback prompt",
		},
	)

	// 数据库指标
	c.dbConnectionsOpen = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_open",
			Help:      "Number of open database connections",
		},
		[]string{"database"},
	)

	c.dbConnectionsIdle = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_idle",
			Help:      "Number of idle database connections",
		},
		[]string{"database"},
	)

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🎯 HTTP 指标记录
// =============================================================================

// RecordHTTPRequest 记录 HTTP 请求
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration, responseSize int64) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	c.httpResponseSize.WithLabelValues(method, path).Observe(float64(responseSize))
}

// =============================================================================
// 🤖 生成操作
// =============================================================================

// RecordOperation 记录一次生成操作
func (c *Collector) RecordOperation(operation, provider, outcome string, duration time.Duration) {
	if provider == "" {
		provider = "none"
	}
	c.operationsTotal.WithLabelValues(operation, provider, outcome).Inc()
	c.operationDuration.WithLabelValues(operation, provider).Observe(duration.Seconds())
}

// RecordRecovery 记录结构化输出在哪个阶段恢复
func (c *Collector) RecordRecovery(operation string, stage structured.Stage, autoGenerated int) {
	c.recoveryStages.WithLabelValues(operation, string(stage)).Inc()
	if autoGenerated > 0 {
		c.autoPrompts.WithLabelValues(operation).Add(float64(autoGenerated))
	}
}

// RecordCardFallback 记录一次逐卡兜底
func (c *Collector) RecordCardFallback() {
	c.cardFallbacks.Inc()
}

// ObservePoll 记录异步任务终态
func (c *Collector) ObservePoll(provider, outcome string, attempts int, elapsed time.Duration) {
	c.pollsTotal.WithLabelValues(provider, outcome).Inc()
	c.pollAttempts.WithLabelValues(provider).Observe(float64(attempts))
	c.pollDuration.WithLabelValues(provider).Observe(elapsed.Seconds())
}

// =============================================================================
// 🗄️ 数据库指标记录
// =============================================================================

// RecordDBConnections 记录数据库连接数
func (c *Collector) RecordDBConnections(database string, open, idle int) {
	c.dbConnectionsOpen.WithLabelValues(database).Set(float64(open))
	c.dbConnectionsIdle.WithLabelValues(database).Set(float64(idle))
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// statusCode 将 HTTP 状态码转换为字符串
func statusCode(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
