package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/BaSui01/cardflow/structured"
)

// Instruments 通过 OTLP 导出的生成与轮询指标。
// 实现 orchestrator.Recorder 与 poller.Observer。
type Instruments struct {
	operationTotal    metric.Int64Counter
	operationDuration metric.Float64Histogram
	recoveryTotal     metric.Int64Counter
	autoPromptTotal   metric.Int64Counter
	fallbackTotal     metric.Int64Counter
	pollTotal         metric.Int64Counter
	pollAttempts      metric.Int64Histogram
	pollDuration      metric.Float64Histogram
}

// Meter 返回命名 Meter；禁用时退回全局 Provider
func (p *Providers) Meter(name string) metric.Meter {
	if p != nil && p.mp != nil {
		return p.mp.Meter(name)
	}
	return otel.Meter(name)
}

// NewInstruments 在 meter 上创建指标
func NewInstruments(meter metric.Meter) (*Instruments, error) {
	m := &Instruments{}
	var err error

	if m.operationTotal, err = meter.Int64Counter("cardflow.operation.total",
		metric.WithDescription("Total number of generation operations"),
		metric.WithUnit("{operation}")); err != nil {
		return nil, err
	}
	if m.operationDuration, err = meter.Float64Histogram("cardflow.operation.duration",
		metric.WithDescription("Generation operation duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120)); err != nil {
		return nil, err
	}
	if m.recoveryTotal, err = meter.Int64Counter("cardflow.recovery.total",
		metric.WithDescription("Structured outputs recovered, by stage"),
		metric.WithUnit("{document}")); err != nil {
		return nil, err
	}
	if m.autoPromptTotal, err = meter.Int64Counter("cardflow.recovery.auto_prompts",
		metric.WithDescription("Image prompts synthesized during recovery"),
		metric.WithUnit("{prompt}")); err != nil {
		return nil, err
	}
	if m.fallbackTotal, err = meter.Int64Counter("cardflow.card_prompt.fallback.total",
		metric.WithDescription("Card prompts replaced by the fallback prompt"),
		metric.WithUnit("{card}")); err != nil {
		return nil, err
	}
	if m.pollTotal, err = meter.Int64Counter("cardflow.poll.total",
		metric.WithDescription("Async tasks that reached a terminal state"),
		metric.WithUnit("{task}")); err != nil {
		return nil, err
	}
	if m.pollAttempts, err = meter.Int64Histogram("cardflow.poll.attempts",
		metric.WithDescription("Status queries per async task"),
		metric.WithUnit("{attempt}"),
		metric.WithExplicitBucketBoundaries(1, 2, 5, 10, 20, 40, 60)); err != nil {
		return nil, err
	}
	if m.pollDuration, err = meter.Float64Histogram("cardflow.poll.duration",
		metric.WithDescription("Async task duration from submit to terminal state"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 30, 60, 120, 300)); err != nil {
		return nil, err
	}
	return m, nil
}

// RecordOperation 记录一次生成操作
func (m *Instruments) RecordOperation(operation, provider, outcome string, duration time.Duration) {
	ctx := context.Background()
	attrs := metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("provider", orNone(provider)),
	)
	m.operationTotal.Add(ctx, 1, attrs, metric.WithAttributes(attribute.String("outcome", outcome)))
	m.operationDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordRecovery 记录结构化输出恢复阶段
func (m *Instruments) RecordRecovery(operation string, stage structured.Stage, autoGenerated int) {
	ctx := context.Background()
	m.recoveryTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("stage", string(stage)),
	))
	if autoGenerated > 0 {
		m.autoPromptTotal.Add(ctx, int64(autoGenerated), metric.WithAttributes(attribute.String("operation", operation)))
	}
}

// RecordCardFallback 记录一次逐卡兜底
func (m *Instruments) RecordCardFallback() {
	m.fallbackTotal.Add(context.Background(), 1)
}

// ObservePoll 记录异步任务终态
func (m *Instruments) ObservePoll(provider, outcome string, attempts int, elapsed time.Duration) {
	ctx := context.Background()
	attrs := metric.WithAttributes(attribute.String("provider", orNone(provider)))
	m.pollTotal.Add(ctx, 1, attrs, metric.WithAttributes(attribute.String("outcome", outcome)))
	m.pollAttempts.Record(ctx, int64(attempts), attrs)
	m.pollDuration.Record(ctx, elapsed.Seconds(), attrs)
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}
