// Package telemetry 封装 OpenTelemetry SDK 初始化，为蜂巢的执行器、
// 分发器与 HTTP 中间件提供全局 TracerProvider 和 MeterProvider。
// 资源上携带服务名、版本与蜂巢 ID。遥测禁用时使用 noop 实现。
package telemetry
