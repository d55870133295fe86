package analytics

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MetricsHistoryLimit 周期快照保留上限
const MetricsHistoryLimit = 1000

// Agent 事件类型
const (
	EventRegistered = "registered"
	EventRemoved    = "removed"
)

// =============================================================================
// 🐝 蜂巢指标
// =============================================================================

// AgentMetrics Agent 维度指标
type AgentMetrics struct {
	TotalAgents             uint64     `json:"total_agents"`
	ActiveAgents            uint64     `json:"active_agents"`
	CreatedToday            uint64     `json:"agents_created_today"`
	RemovedToday            uint64     `json:"agents_removed_today"`
	AverageAgentPerformance float64    `json:"average_agent_performance"`
	TopPerformerID          *uuid.UUID `json:"top_performer_id,omitempty"`
}

// TaskSummary 任务维度指标
type TaskSummary struct {
	TotalTasks             uint64  `json:"total_tasks"`
	CompletedTasks         uint64  `json:"completed_tasks"`
	FailedTasks            uint64  `json:"failed_tasks"`
	PendingTasks           uint64  `json:"pending_tasks"`
	AverageExecutionTimeMs float64 `json:"average_execution_time_ms"`
	TasksPerHour           float64 `json:"tasks_per_hour"`
	SuccessRate            float64 `json:"success_rate"`
}

// SystemMetrics 进程维度指标
type SystemMetrics struct {
	UptimeSeconds   uint64  `json:"uptime_seconds"`
	MemoryUsageMB   float64 `json:"total_memory_usage_mb"`
	CPUUsagePercent float64 `json:"cpu_usage_percent"`
	ErrorRate       float64 `json:"error_rate"`
	ResponseTimeMs  float64 `json:"response_time_ms"`
}

// HiveMetrics 某一时刻的蜂巢指标
type HiveMetrics struct {
	Agents      AgentMetrics  `json:"agent_metrics"`
	Tasks       TaskSummary   `json:"task_metrics"`
	System      SystemMetrics `json:"system_metrics"`
	LastUpdated time.Time     `json:"last_updated"`
}

// EventStatistics 事件计数汇总
type EventStatistics struct {
	TotalEvents      uint64          `json:"total_events"`
	UniqueEventTypes int             `json:"unique_event_types"`
	MostFrequent     *EventFrequency `json:"most_frequent_event,omitempty"`
	EventsPerSecond  float64         `json:"events_per_second"`
	UptimeSeconds    float64         `json:"uptime_seconds"`
}

// EventFrequency 单个事件类型的计数
type EventFrequency struct {
	EventType string `json:"event_type"`
	Count     uint64 `json:"count"`
}

// MetricsTrends 基于周期快照的趋势
type MetricsTrends struct {
	AgentGrowthRate  float64 `json:"agent_growth_rate"`
	TaskSuccessTrend Trend   `json:"task_success_trend"`
	PerformanceTrend Trend   `json:"performance_trend"`
}

// Collector 事件计数与蜂巢指标收集器
type Collector struct {
	mu       sync.RWMutex
	current  HiveMetrics
	history  []HiveMetrics
	counters map[string]uint64
	day      string

	started time.Time
	now     func() time.Time
	logger  *zap.Logger
}

// NewCollector 创建收集器
func NewCollector(logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Collector{
		counters: make(map[string]uint64),
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger.With(zap.String("component", "metrics_collector")),
	}
	c.started = c.now()
	c.current.LastUpdated = c.started
	c.day = c.started.Format(time.DateOnly)
	return c
}

// RecordAgentEvent 记录 Agent 生命周期事件
func (c *Collector) RecordAgentEvent(event string, agentID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.counters["agent_"+event]++
	c.rollDayLocked()
	am := &c.current.Agents
	switch event {
	case EventRegistered:
		am.TotalAgents++
		am.ActiveAgents++
		am.CreatedToday++
	case EventRemoved:
		if am.ActiveAgents > 0 {
			am.ActiveAgents--
		}
		am.RemovedToday++
	}
	c.current.LastUpdated = c.now()

	c.logger.Debug("recorded agent event",
		zap.String("event", event),
		zap.String("agent_id", agentID.String()))
}

// RecordTaskCompletion 记录任务完成事件
func (c *Collector) RecordTaskCompletion(taskID, agentID uuid.UUID, success bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.counters["tasks_completed"]++
	tm := &c.current.Tasks
	tm.TotalTasks++
	if success {
		c.counters["tasks_successful"]++
		tm.CompletedTasks++
	} else {
		c.counters["tasks_failed"]++
		tm.FailedTasks++
	}
	tm.SuccessRate = float64(tm.CompletedTasks) / float64(tm.TotalTasks)
	c.current.LastUpdated = c.now()

	c.logger.Debug("recorded task completion",
		zap.String("task_id", taskID.String()),
		zap.String("agent_id", agentID.String()),
		zap.Bool("success", success))
}

// UpdateSystemMetrics cpu 为 0..1 的使用率，memMB 为已用内存
func (c *Collector) UpdateSystemMetrics(cpu, memMB float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current.System.UptimeSeconds = c.uptimeLocked()
	c.current.System.CPUUsagePercent = cpu * 100
	c.current.System.MemoryUsageMB = memMB
	c.current.LastUpdated = c.now()
}

// UpdateAgentPerformance 更新 Agent 平均表现与最佳 Agent
func (c *Collector) UpdateAgentPerformance(average float64, top *uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current.Agents.AverageAgentPerformance = average
	c.current.Agents.TopPerformerID = top
}

// UpdateTaskTiming 更新待处理数、平均耗时与错误率
func (c *Collector) UpdateTaskTiming(pending int, avgMs, errorRatePercent float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current.Tasks.PendingTasks = uint64(max(pending, 0))
	c.current.Tasks.AverageExecutionTimeMs = avgMs
	c.current.System.ResponseTimeMs = avgMs
	c.current.System.ErrorRate = errorRatePercent
}

// CollectPeriodic 刷新运行时长与每小时任务数，并写入历史快照
func (c *Collector) CollectPeriodic() HiveMetrics {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.rollDayLocked()
	up := c.uptimeLocked()
	c.current.System.UptimeSeconds = up
	if hours := float64(up) / 3600; hours > 0 {
		c.current.Tasks.TasksPerHour = float64(c.current.Tasks.TotalTasks) / hours
	}
	c.current.LastUpdated = c.now()

	c.history = append(c.history, c.current)
	if over := len(c.history) - MetricsHistoryLimit; over > 0 {
		c.history = append([]HiveMetrics(nil), c.history[over:]...)
	}
	return c.current
}

// Current 当前指标
func (c *Collector) Current() HiveMetrics {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// History 历史快照副本，按时间升序
func (c *Collector) History() []HiveMetrics {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]HiveMetrics(nil), c.history...)
}

// ClearHistory 清空历史快照
func (c *Collector) ClearHistory() {
	c.mu.Lock()
	c.history = nil
	c.mu.Unlock()
}

// =============================================================================
// 🔢 事件计数
// =============================================================================

// IncrementEvent 自定义事件计数加一
func (c *Collector) IncrementEvent(event string) {
	c.mu.Lock()
	c.counters[event]++
	c.mu.Unlock()
}

// EventCount 单个事件的计数
func (c *Collector) EventCount(event string) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.counters[event]
}

// EventCounters 全部计数的副本
func (c *Collector) EventCounters() map[string]uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]uint64, len(c.counters))
	for k, v := range c.counters {
		out[k] = v
	}
	return out
}

// ResetEvent 清零单个事件计数
func (c *Collector) ResetEvent(event string) {
	c.mu.Lock()
	delete(c.counters, event)
	c.mu.Unlock()
}

// ResetAllEvents 清零全部事件计数
func (c *Collector) ResetAllEvents() {
	c.mu.Lock()
	c.counters = make(map[string]uint64)
	c.mu.Unlock()
	c.logger.Info("reset all event counters")
}

// EventStatistics 事件计数汇总
func (c *Collector) EventStatistics() EventStatistics {
	c.mu.RLock()
	defer c.mu.RUnlock()

	st := EventStatistics{UniqueEventTypes: len(c.counters)}
	for event, n := range c.counters {
		st.TotalEvents += n
		if st.MostFrequent == nil || n > st.MostFrequent.Count ||
			(n == st.MostFrequent.Count && event < st.MostFrequent.EventType) {
			st.MostFrequent = &EventFrequency{EventType: event, Count: n}
		}
	}
	st.UptimeSeconds = c.now().Sub(c.started).Seconds()
	if st.UptimeSeconds > 0 {
		st.EventsPerSecond = float64(st.TotalEvents) / st.UptimeSeconds
	}
	return st
}

// =============================================================================
// 📉 快照趋势
// =============================================================================

const (
	successTrendWindow     = 10
	successTrendThreshold  = 0.02
	perfTrendThreshold     = 0.05
	snapshotTrendMinPoints = 3
)

// Trends 基于历史快照计算增长与趋势
func (c *Collector) Trends() MetricsTrends {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return snapshotTrends(c.history)
}

func snapshotTrends(history []HiveMetrics) MetricsTrends {
	t := MetricsTrends{
		TaskSuccessTrend: TrendInsufficientData,
		PerformanceTrend: TrendInsufficientData,
	}
	n := len(history)
	if n >= 2 {
		first := float64(history[0].Agents.TotalAgents)
		last := float64(history[n-1].Agents.TotalAgents)
		t.AgentGrowthRate = (last - first) / float64(n-1)
	}
	if n < snapshotTrendMinPoints {
		return t
	}

	rates := make([]float64, 0, successTrendWindow)
	for _, m := range history[max(0, n-successTrendWindow):] {
		rates = append(rates, m.Tasks.SuccessRate)
	}
	t.TaskSuccessTrend = halves(rates, successTrendThreshold)

	scores := make([]float64, 0, n)
	for _, m := range history {
		scores = append(scores, (m.Agents.AverageAgentPerformance+m.Tasks.SuccessRate+(1-m.System.ErrorRate/100))/3)
	}
	t.PerformanceTrend = halves(scores, perfTrendThreshold)
	return t
}

// halves 比较按时间排列的序列后半段与前半段的均值
func halves(series []float64, threshold float64) Trend {
	mid := len(series) / 2
	older, newer := mean(series[:mid]), mean(series[mid:])
	switch {
	case newer-older > threshold:
		return TrendImproving
	case older-newer > threshold:
		return TrendDeclining
	default:
		return TrendStable
	}
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var s float64
	for _, x := range xs {
		s += x
	}
	return s / float64(len(xs))
}

func (c *Collector) uptimeLocked() uint64 {
	return uint64(c.now().Sub(c.started) / time.Second)
}

// rollDayLocked 跨过 UTC 零点时清零当日计数
func (c *Collector) rollDayLocked() {
	today := c.now().Format(time.DateOnly)
	if today != c.day {
		c.day = today
		c.current.Agents.CreatedToday = 0
		c.current.Agents.RemovedToday = 0
	}
}
