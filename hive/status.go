package hive

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/BaSui01/agenthive/hive/agent"
	"github.com/BaSui01/agenthive/hive/analytics"
	"github.com/BaSui01/agenthive/hive/bus"
	"github.com/BaSui01/agenthive/hive/distributor"
	"github.com/BaSui01/agenthive/hive/executor"
	"github.com/BaSui01/agenthive/hive/queue"
	"github.com/BaSui01/agenthive/hive/registry"
	"github.com/BaSui01/agenthive/hive/resource"
)

// =============================================================================
// 📊 状态
// =============================================================================

// StatusMetrics 蜂巢级汇总指标
type StatusMetrics struct {
	TotalAgents        int     `json:"total_agents"`
	ActiveAgents       int     `json:"active_agents"`
	CompletedTasks     int64   `json:"completed_tasks"`
	FailedTasks        int64   `json:"failed_tasks"`
	AveragePerformance float64 `json:"average_performance"`
	SwarmCohesion      float64 `json:"swarm_cohesion"`
	LearningProgress   float64 `json:"learning_progress"`
}

// AgentsStatus Agent 分布
type AgentsStatus struct {
	Total   int                    `json:"total"`
	ByState map[agent.State]int    `json:"by_state"`
	ByType  map[string]int         `json:"by_type"`
	Daily   registry.DailySnapshot `json:"daily"`
}

// TasksStatus 队列、分发与执行统计
type TasksStatus struct {
	Queue       queue.Stats        `json:"queue"`
	QueueHealth queue.HealthStatus `json:"queue_health"`
	Distributor distributor.Stats  `json:"distributor"`
	Executor    executor.Stats     `json:"executor"`
	Healthy     bool               `json:"executor_healthy"`
}

// ProcessesStatus 后台进程状态
type ProcessesStatus struct {
	Running   bool                     `json:"running"`
	Processes map[string]ProcessStatus `json:"processes"`
	Bus       bus.Stats                `json:"bus"`
}

// Status GetStatus 的返回值
type Status struct {
	HiveID      uuid.UUID       `json:"hive_id"`
	CreatedAt   time.Time       `json:"created_at"`
	LastUpdate  time.Time       `json:"last_update"`
	Metrics     StatusMetrics   `json:"metrics"`
	SwarmCenter agent.Position  `json:"swarm_center"`
	TotalEnergy float64         `json:"total_energy"`
	Agents      AgentsStatus    `json:"agents"`
	Tasks       TasksStatus     `json:"tasks"`
	Resources   resource.Info   `json:"resources"`
	Processes   ProcessesStatus `json:"processes"`
}

// GetStatus 汇总蜂巢当前状态
func (c *Coordinator) GetStatus(ctx context.Context) Status {
	agents := c.registry.Agents(ctx)
	perf := c.tracker.Performance()

	st := Status{
		HiveID:      c.id,
		CreatedAt:   c.createdAt,
		SwarmCenter: agent.SwarmCenter(agents),
		Agents: AgentsStatus{
			Total:   len(agents),
			ByState: make(map[agent.State]int),
			ByType:  make(map[string]int),
			Daily:   c.registry.DailyCounts(),
		},
		Tasks: TasksStatus{
			Queue:       c.queue.Stats(),
			QueueHealth: c.queue.Health(),
			Distributor: c.distributor.Stats(),
			Executor:    c.executor.Stats(),
			Healthy:     c.executor.Healthy(),
		},
		Resources: c.monitor.Info(),
		Processes: ProcessesStatus{
			Processes: make(map[string]ProcessStatus, len(c.processes)),
			Bus:       c.bus.Stats(),
		},
	}

	var fitness, proficiency float64
	for _, a := range agents {
		st.Agents.ByState[a.State]++
		st.Agents.ByType[a.Type.String()]++
		st.TotalEnergy += a.Energy
		fitness += a.Fitness()
		proficiency += a.AverageProficiency()
	}
	st.Metrics = StatusMetrics{
		TotalAgents:    len(agents),
		ActiveAgents:   st.Agents.ByState[agent.StateWorking],
		CompletedTasks: perf.SuccessfulTasks,
		FailedTasks:    perf.FailedTasks,
		SwarmCohesion:  agent.Cohesion(agents),
	}
	if n := float64(len(agents)); n > 0 {
		st.Metrics.AveragePerformance = fitness / n
		st.Metrics.LearningProgress = proficiency / n
	}

	for name, p := range c.processes {
		st.Processes.Processes[name] = p.snapshot()
	}
	c.mu.Lock()
	st.LastUpdate = c.lastUpdate
	st.Processes.Running = c.running
	c.mu.Unlock()
	return st
}

// =============================================================================
// 📈 分析
// =============================================================================

// Analytics GetAnalytics 的返回值
type Analytics struct {
	analytics.Snapshot
	Hive          analytics.HiveMetrics     `json:"hive_metrics"`
	Events        analytics.EventStatistics `json:"event_statistics"`
	EventCounters map[string]uint64         `json:"event_counters"`
	MetricsTrends analytics.MetricsTrends   `json:"metrics_trends"`
}

// GetAnalytics 执行统计、队列效率、负载分布与事件统计
func (c *Coordinator) GetAnalytics() Analytics {
	return Analytics{
		Snapshot:      c.tracker.Analytics(c.queueSizes()),
		Hive:          c.collector.Current(),
		Events:        c.collector.EventStatistics(),
		EventCounters: c.collector.EventCounters(),
		MetricsTrends: c.collector.Trends(),
	}
}

// AssessSystemHealth 综合健康评估
func (c *Coordinator) AssessSystemHealth() analytics.HealthReport {
	return c.tracker.AssessSystemHealth(c.queueSizes())
}

// GetPerformanceTrends 最近执行结果的成功率趋势
func (c *Coordinator) GetPerformanceTrends() analytics.Trends {
	return c.tracker.PerformanceTrends()
}

func (c *Coordinator) queueSizes() analytics.QueueSizes {
	legacy, ws := c.queue.Sizes()
	return analytics.QueueSizes{Legacy: legacy, WorkStealing: ws}
}
