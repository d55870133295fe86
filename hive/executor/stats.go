package executor

import (
	"github.com/google/uuid"

	"github.com/BaSui01/agenthive/hive/task"
)

// Stats 执行统计
type Stats struct {
	TotalExecutions        int64   `json:"total_executions"`
	Succeeded              int64   `json:"successful_executions"`
	Failed                 int64   `json:"failed_executions"`
	TimedOut               int64   `json:"timed_out_executions"`
	Rejected               int64   `json:"rejected_verifications"`
	AverageExecutionTimeMs float64 `json:"average_execution_time_ms"`
	SuccessRate            float64 `json:"success_rate"`
	Throughput             float64 `json:"throughput"`
	ActiveExecutions       int     `json:"active_executions"`
	MaxConcurrent          int     `json:"max_concurrent"`
	TimeoutMs              int64   `json:"execution_timeout_ms"`
}

// Stats 返回统计快照
func (e *Executor) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	st := Stats{
		TotalExecutions:  e.stats.total,
		Succeeded:        e.stats.succeeded,
		Failed:           e.stats.failed,
		TimedOut:         e.stats.timedOut,
		Rejected:         e.stats.rejected,
		ActiveExecutions: len(e.active),
		MaxConcurrent:    e.config.MaxConcurrent,
		TimeoutMs:        e.config.Timeout.Milliseconds(),
	}
	if st.TotalExecutions > 0 {
		st.AverageExecutionTimeMs = float64(e.stats.totalMs) / float64(st.TotalExecutions)
		st.SuccessRate = float64(st.Succeeded) / float64(st.TotalExecutions)
	}
	if st.AverageExecutionTimeMs > 0 {
		st.Throughput = 1000 / st.AverageExecutionTimeMs
	}
	return st
}

// History 返回最近 limit 条执行结果，最新的在前。limit <= 0 返回全部。
func (e *Executor) History(limit int) []task.ExecutionResult {
	e.mu.RLock()
	defer e.mu.RUnlock()
	n := len(e.history)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]task.ExecutionResult, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, e.history[i])
	}
	return out
}

// ActiveExecutions 正在执行的任务 id
func (e *Executor) ActiveExecutions() []uuid.UUID {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]uuid.UUID, 0, len(e.active))
	for id := range e.active {
		out = append(out, id)
	}
	return out
}

// Healthy 成功率不低于 80% 且并发未打满。尚无执行记录时视为健康。
func (e *Executor) Healthy() bool {
	st := e.Stats()
	if st.TotalExecutions == 0 {
		return st.ActiveExecutions < st.MaxConcurrent
	}
	return st.SuccessRate >= 0.8 && st.ActiveExecutions < st.MaxConcurrent
}
