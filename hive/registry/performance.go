package registry

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// AgentMetrics 单个 Agent 的执行统计
type AgentMetrics struct {
	TasksCompleted         int64     `json:"tasks_completed"`
	TasksFailed            int64     `json:"tasks_failed"`
	TotalExecutionTimeMs   int64     `json:"total_execution_time_ms"`
	AverageExecutionTimeMs float64   `json:"average_execution_time_ms"`
	LastActivity           time.Time `json:"last_activity"`
	PerformanceScore       float64   `json:"performance_score"`
}

// Performer TopPerformers 的条目
type Performer struct {
	AgentID uuid.UUID    `json:"agent_id"`
	Metrics AgentMetrics `json:"metrics"`
}

type performanceBook struct {
	mu      sync.RWMutex
	metrics map[uuid.UUID]*AgentMetrics
}

func newPerformanceBook() *performanceBook {
	return &performanceBook{metrics: make(map[uuid.UUID]*AgentMetrics)}
}

func (p *performanceBook) remove(id uuid.UUID) {
	p.mu.Lock()
	delete(p.metrics, id)
	p.mu.Unlock()
}

// RecordExecution 记录一次执行结果
func (r *Registry) RecordExecution(id uuid.UUID, success bool, executionMs int64) {
	if _, ok := r.load(id); !ok {
		return
	}
	p := r.perf
	p.mu.Lock()
	defer p.mu.Unlock()

	m, ok := p.metrics[id]
	if !ok {
		m = &AgentMetrics{}
		p.metrics[id] = m
	}
	if success {
		m.TasksCompleted++
	} else {
		m.TasksFailed++
	}
	m.TotalExecutionTimeMs += executionMs
	total := m.TasksCompleted + m.TasksFailed
	m.AverageExecutionTimeMs = float64(m.TotalExecutionTimeMs) / float64(total)
	m.LastActivity = time.Now().UTC()
	m.PerformanceScore = performanceScore(m)
}

// Metrics 返回 Agent 的执行统计
func (r *Registry) Metrics(id uuid.UUID) (AgentMetrics, bool) {
	r.perf.mu.RLock()
	defer r.perf.mu.RUnlock()
	m, ok := r.perf.metrics[id]
	if !ok {
		return AgentMetrics{}, false
	}
	return *m, true
}

// TopPerformers 按表现得分降序返回前 limit 个 Agent
func (r *Registry) TopPerformers(limit int) []Performer {
	r.perf.mu.RLock()
	out := make([]Performer, 0, len(r.perf.metrics))
	for id, m := range r.perf.metrics {
		out = append(out, Performer{AgentID: id, Metrics: *m})
	}
	r.perf.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Metrics.PerformanceScore != out[j].Metrics.PerformanceScore {
			return out[i].Metrics.PerformanceScore > out[j].Metrics.PerformanceScore
		}
		return out[i].AgentID.String() < out[j].AgentID.String()
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// performanceScore 成功率乘以速度因子 min(1, 1000/avg_ms)
func performanceScore(m *AgentMetrics) float64 {
	total := m.TasksCompleted + m.TasksFailed
	if total == 0 {
		return 0
	}
	successRate := float64(m.TasksCompleted) / float64(total)
	speed := 1.0
	if m.AverageExecutionTimeMs > 0 {
		speed = math.Min(1, 1000/m.AverageExecutionTimeMs)
	}
	return successRate * speed
}
