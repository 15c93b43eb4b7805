// Package telemetry 初始化 OpenTelemetry SDK，为生成编排提供 TracerProvider
// 与 MeterProvider。禁用时不创建任何导出器，全局 Provider 保持 noop。
package telemetry
