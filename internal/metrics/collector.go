// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器
type Collector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpRequestSize     *prometheus.HistogramVec
	httpResponseSize    *prometheus.HistogramVec

	// 任务指标
	taskExecutionsTotal   *prometheus.CounterVec
	taskExecutionDuration *prometheus.HistogramVec

	// 蜂巢状态
	agentsTotal      prometheus.Gauge
	agentsActive     prometheus.Gauge
	queuePending     *prometheus.GaugeVec
	queueUtilization prometheus.Gauge
	breakerState     *prometheus.GaugeVec
	resourceUsage    *prometheus.GaugeVec
	resourceAlerts   *prometheus.CounterVec

	// 数据库指标
	dbConnectionsOpen *prometheus.GaugeVec
	dbConnectionsIdle *prometheus.GaugeVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器，指标注册到默认注册表
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// HTTP 指标
	c.httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	c.httpRequestSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_size_bytes",
			Help:      "HTTP request size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	c.httpResponseSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_response_size_bytes",
			Help:      "HTTP response size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	// 任务指标
	c.taskExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hive",
			Name:      "task_executions_total",
			Help:      "Total number of task executions by type and outcome",
		},
		[]string{"task_type", "status"},
	)

	c.taskExecutionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "hive",
			Name:      "task_execution_duration_seconds",
			Help:      "Task execution duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 300},
		},
		[]string{"task_type"},
	)

	// 蜂巢状态
	c.agentsTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "hive",
		Name:      "agents",
		Help:      "Number of registered agents",
	})

	c.agentsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "hive",
		Name:      "agents_active",
		Help:      "Number of agents currently working",
	})

	c.queuePending = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "hive",
			Name:      "queue_pending_tasks",
			Help:      "Pending tasks by queue",
		},
		[]string{"queue"},
	)

	c.queueUtilization = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "hive",
		Name:      "queue_utilization_percent",
		Help:      "Pending tasks as a percentage of queue capacity",
	})

	c.breakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "hive",
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state per task type (0 closed, 1 open, 2 half-open)",
		},
		[]string{"task_type"},
	)

	c.resourceUsage = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "hive",
			Name:      "resource_usage_ratio",
			Help:      "Sampled process resource usage in 0..1",
		},
		[]string{"resource"},
	)

	c.resourceAlerts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hive",
			Name:      "resource_alerts_total",
			Help:      "Total number of resource alerts",
		},
		[]string{"resource"},
	)

	// 数据库指标
	c.dbConnectionsOpen = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_open",
			Help:      "Number of open database connections",
		},
		[]string{"database"},
	)

	c.dbConnectionsIdle = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_idle",
			Help:      "Number of idle database connections",
		},
		[]string{"database"},
	)

	c.logger.Info("metrics collector initialized", zap.String("namespace", namespace))
	return c
}

// =============================================================================
// 🎯 HTTP 指标记录
// =============================================================================

// RecordHTTPRequest 记录 HTTP 请求
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration, requestSize, responseSize int64) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	c.httpRequestSize.WithLabelValues(method, path).Observe(float64(requestSize))
	c.httpResponseSize.WithLabelValues(method, path).Observe(float64(responseSize))
}

// =============================================================================
// 🐝 蜂巢指标记录
// =============================================================================

// RecordTaskExecution 记录一次任务执行
func (c *Collector) RecordTaskExecution(taskType, status string, duration time.Duration) {
	c.taskExecutionsTotal.WithLabelValues(taskType, status).Inc()
	c.taskExecutionDuration.WithLabelValues(taskType).Observe(duration.Seconds())
}

// SetAgents 设置 Agent 数量
func (c *Collector) SetAgents(total, active int) {
	c.agentsTotal.Set(float64(total))
	c.agentsActive.Set(float64(active))
}

// SetQueue 设置队列积压
func (c *Collector) SetQueue(legacy, workStealing int, utilizationPercent float64) {
	c.queuePending.WithLabelValues("legacy").Set(float64(legacy))
	c.queuePending.WithLabelValues("work_stealing").Set(float64(workStealing))
	c.queueUtilization.Set(utilizationPercent)
}

// SetBreakerState 设置某任务类型的熔断器状态
func (c *Collector) SetBreakerState(taskType string, state int) {
	c.breakerState.WithLabelValues(taskType).Set(float64(state))
}

// SetResourceUsage 设置资源使用率
func (c *Collector) SetResourceUsage(resource string, usage float64) {
	c.resourceUsage.WithLabelValues(resource).Set(usage)
}

// RecordResourceAlert 记录资源告警
func (c *Collector) RecordResourceAlert(resource string) {
	c.resourceAlerts.WithLabelValues(resource).Inc()
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
