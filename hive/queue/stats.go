package queue

// HealthStatus 队列健康状态
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthWarning  HealthStatus = "warning"
	HealthCritical HealthStatus = "critical"
)

// Stats 队列统计
type Stats struct {
	Pending          int     `json:"pending"`
	Legacy           int     `json:"legacy"`
	WorkStealing     int     `json:"work_stealing"`
	LocalQueues      int     `json:"local_queues"`
	Capacity         int     `json:"capacity"`
	Utilization      float64 `json:"utilization_percent"`
	Peak             int     `json:"peak"`
	StealAttempts    int64   `json:"steal_attempts"`
	SuccessfulSteals int64   `json:"successful_steals"`
	StealingEnabled  bool    `json:"work_stealing_enabled"`
}

// Stats 返回统计快照
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	pending := q.lenLocked()
	return Stats{
		Pending:          pending,
		Legacy:           q.legacy.len(),
		WorkStealing:     q.wsLenLocked(),
		LocalQueues:      len(q.locals),
		Capacity:         q.config.Capacity,
		Utilization:      utilization(pending, q.config.Capacity),
		Peak:             q.peak,
		StealAttempts:    q.stealAttempts,
		SuccessfulSteals: q.successfulSteals,
		StealingEnabled:  q.config.EnableWorkStealing,
	}
}

// Health 利用率超过 90% 为 critical，超过 70% 为 warning
func (q *Queue) Health() HealthStatus {
	return healthFor(q.Stats().Utilization)
}

func healthFor(utilizationPercent float64) HealthStatus {
	switch {
	case utilizationPercent > 90:
		return HealthCritical
	case utilizationPercent > 70:
		return HealthWarning
	default:
		return HealthHealthy
	}
}

func utilization(pending, capacity int) float64 {
	if capacity <= 0 {
		return 0
	}
	return float64(pending) / float64(capacity) * 100
}
