package analytics

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/agenthive/hive/task"
)

const (
	// RecentWindow 短期趋势使用的滑动窗口大小
	RecentWindow = 100
	// DefaultHistoryLimit 执行历史上限
	DefaultHistoryLimit = 10000
)

// =============================================================================
// 📈 任务跟踪
// =============================================================================

// TaskMetrics 单个任务的生命周期记录
type TaskMetrics struct {
	TaskID        uuid.UUID   `json:"task_id"`
	CreatedAt     time.Time   `json:"created_at"`
	StartedAt     *time.Time  `json:"started_at,omitempty"`
	CompletedAt   *time.Time  `json:"completed_at,omitempty"`
	AssignedAgent *uuid.UUID  `json:"assigned_agent,omitempty"`
	Attempts      int         `json:"execution_attempts"`
	Status        task.Status `json:"status"`
}

// Performance 累计执行统计
type Performance struct {
	TotalTasks             int64   `json:"total_tasks"`
	SuccessfulTasks        int64   `json:"successful_tasks"`
	FailedTasks            int64   `json:"failed_tasks"`
	AverageExecutionTimeMs float64 `json:"average_execution_time_ms"`
	SuccessRate            float64 `json:"success_rate"`
	Throughput             float64 `json:"throughput"`
	CurrentQueueSize       int     `json:"current_queue_size"`
	PeakQueueSize          int     `json:"peak_queue_size"`
}

// RecentPerformance 滑动窗口内的统计
type RecentPerformance struct {
	SuccessRate   float64 `json:"recent_success_rate"`
	AverageTimeMs float64 `json:"recent_average_time_ms"`
	SampleSize    int     `json:"sample_size"`
}

// Tracker 任务指标与执行结果的聚合器。
// 单个 RWMutex 保护全部聚合状态，读者之间互不阻塞。
type Tracker struct {
	mu           sync.RWMutex
	tasks        map[uuid.UUID]*TaskMetrics
	history      []task.ExecutionResult
	recent       []task.ExecutionResult
	historyLimit int

	total      int64
	successful int64
	failed     int64
	totalMs    int64
	waiting    int
	peakQueue  int

	now    func() time.Time
	logger *zap.Logger
}

// NewTracker 创建跟踪器，historyLimit <= 0 时使用默认值
func NewTracker(historyLimit int, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	return &Tracker{
		tasks:        make(map[uuid.UUID]*TaskMetrics),
		historyLimit: historyLimit,
		now:          func() time.Time { return time.Now().UTC() },
		logger:       logger.With(zap.String("component", "task_tracker")),
	}
}

// RecordCreated 任务创建
func (tr *Tracker) RecordCreated(t *task.Task) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	created := t.CreatedAt
	if created.IsZero() {
		created = tr.now()
	}
	if old, ok := tr.tasks[t.ID]; ok && isWaiting(old.Status) {
		tr.waiting--
	}
	tr.tasks[t.ID] = &TaskMetrics{TaskID: t.ID, CreatedAt: created, Status: task.StatusPending}
	tr.waiting++
	tr.updatePeakLocked()
}

// RecordAssigned 任务分配给 Agent
func (tr *Tracker) RecordAssigned(taskID, agentID uuid.UUID) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if m, ok := tr.tasks[taskID]; ok {
		id := agentID
		m.AssignedAgent = &id
		tr.setStatusLocked(m, task.StatusAssigned)
	}
}

// RecordStarted 任务开始执行，执行次数加一
func (tr *Tracker) RecordStarted(taskID uuid.UUID) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if m, ok := tr.tasks[taskID]; ok {
		now := tr.now()
		m.StartedAt = &now
		tr.setStatusLocked(m, task.StatusRunning)
		m.Attempts++
	}
}

// RecordStatus 记录其他状态变化（例如 retrying）
func (tr *Tracker) RecordStatus(taskID uuid.UUID, status task.Status) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if m, ok := tr.tasks[taskID]; ok {
		tr.setStatusLocked(m, status)
	}
}

// RecordCompleted 折叠一次执行结果
func (tr *Tracker) RecordCompleted(result task.ExecutionResult) {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	if m, ok := tr.tasks[result.TaskID]; ok {
		now := tr.now()
		m.CompletedAt = &now
		if result.Success {
			tr.setStatusLocked(m, task.StatusCompleted)
		} else {
			tr.setStatusLocked(m, task.StatusFailed)
		}
	}

	tr.history = append(tr.history, result)
	if over := len(tr.history) - tr.historyLimit; over > 0 {
		tr.history = append([]task.ExecutionResult(nil), tr.history[over:]...)
	}
	tr.recent = append(tr.recent, result)
	if over := len(tr.recent) - RecentWindow; over > 0 {
		tr.recent = append([]task.ExecutionResult(nil), tr.recent[over:]...)
	}

	tr.total++
	tr.totalMs += result.ExecutionTimeMs
	if result.Success {
		tr.successful++
	} else {
		tr.failed++
	}
}

// TaskMetrics 返回单个任务的记录
func (tr *Tracker) TaskMetrics(taskID uuid.UUID) (TaskMetrics, bool) {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	m, ok := tr.tasks[taskID]
	if !ok {
		return TaskMetrics{}, false
	}
	return *m, true
}

// CountByStatus 指定状态的任务数
func (tr *Tracker) CountByStatus(status task.Status) int {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	n := 0
	for _, m := range tr.tasks {
		if m.Status == status {
			n++
		}
	}
	return n
}

// Performance 累计统计
func (tr *Tracker) Performance() Performance {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	return tr.performanceLocked()
}

func (tr *Tracker) performanceLocked() Performance {
	p := Performance{
		TotalTasks:       tr.total,
		SuccessfulTasks:  tr.successful,
		FailedTasks:      tr.failed,
		CurrentQueueSize: tr.waiting,
		PeakQueueSize:    tr.peakQueue,
	}
	if tr.total > 0 {
		p.SuccessRate = float64(tr.successful) / float64(tr.total)
		p.AverageExecutionTimeMs = float64(tr.totalMs) / float64(tr.total)
	}
	if p.AverageExecutionTimeMs > 0 {
		p.Throughput = 1000 / p.AverageExecutionTimeMs
	}
	return p
}

// RecentPerformance 最近 RecentWindow 个结果的统计
func (tr *Tracker) RecentPerformance() RecentPerformance {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	return tr.recentLocked()
}

func (tr *Tracker) recentLocked() RecentPerformance {
	n := len(tr.recent)
	if n == 0 {
		return RecentPerformance{}
	}
	var ok, ms int64
	for _, r := range tr.recent {
		if r.Success {
			ok++
		}
		ms += r.ExecutionTimeMs
	}
	return RecentPerformance{
		SuccessRate:   float64(ok) / float64(n),
		AverageTimeMs: float64(ms) / float64(n),
		SampleSize:    n,
	}
}

// Cleanup 删除创建时间早于 retention 的任务记录，返回删除数
func (tr *Tracker) Cleanup(retention time.Duration) int {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	cutoff := tr.now().Add(-retention)
	removed := 0
	for id, m := range tr.tasks {
		if m.CreatedAt.Before(cutoff) {
			if isWaiting(m.Status) {
				tr.waiting--
			}
			delete(tr.tasks, id)
			removed++
		}
	}
	if removed > 0 {
		tr.logger.Info("cleaned up task metrics",
			zap.Int("removed", removed),
			zap.Duration("retention", retention))
	}
	return removed
}

// isWaiting pending 与 assigned 计入等待数
func isWaiting(s task.Status) bool {
	return s == task.StatusPending || s == task.StatusAssigned
}

// setStatusLocked 更新状态并维护等待计数
func (tr *Tracker) setStatusLocked(m *TaskMetrics, status task.Status) {
	if isWaiting(m.Status) {
		tr.waiting--
	}
	m.Status = status
	if isWaiting(status) {
		tr.waiting++
		tr.updatePeakLocked()
	}
}

func (tr *Tracker) updatePeakLocked() {
	if tr.waiting > tr.peakQueue {
		tr.peakQueue = tr.waiting
	}
}
