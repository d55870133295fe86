package queue

import (
	"math/rand/v2"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/agenthive/hive/task"
	"github.com/BaSui01/agenthive/types"
)

// =============================================================================
// 📥 待执行任务队列
// =============================================================================

// DefaultCapacity 默认容量
const DefaultCapacity = 10000

// DefaultMaxStealVictims 单次窃取最多尝试的受害者数
const DefaultMaxStealVictims = 3

// Config 队列配置
type Config struct {
	Capacity           int  `json:"capacity" yaml:"capacity"`
	EnableWorkStealing bool `json:"enable_work_stealing" yaml:"enable_work_stealing"`
	MaxStealVictims    int  `json:"max_steal_victims" yaml:"max_steal_victims"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Capacity:           DefaultCapacity,
		EnableWorkStealing: true,
		MaxStealVictims:    DefaultMaxStealVictims,
	}
}

// Predicate 出队过滤条件，nil 表示接受任何任务
type Predicate func(t *task.Task) bool

// local 单个 Agent 的本地双端队列。high/critical 进入优先通道。
type local struct {
	priority deque
	normal   deque
}

func (l *local) len() int { return l.priority.len() + l.normal.len() }

// Queue 遗留优先级队列与工作窃取队列的组合，是待执行任务顺序的唯一所有者。
type Queue struct {
	mu     sync.Mutex
	config Config

	legacy deque
	global deque
	locals map[uuid.UUID]*local
	agents []uuid.UUID

	peak             int
	stealAttempts    int64
	successfulSteals int64

	logger *zap.Logger
}

// New 创建队列
func New(config Config, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Capacity <= 0 {
		config.Capacity = DefaultCapacity
	}
	if config.MaxStealVictims <= 0 {
		config.MaxStealVictims = DefaultMaxStealVictims
	}
	return &Queue{
		config: config,
		locals: make(map[uuid.UUID]*local),
		logger: logger.With(zap.String("component", "task_queue")),
	}
}

// Enqueue 按优先级规则入队。队列已满时返回 ResourceExhausted("task_queue")。
// 启用工作窃取时，指定了已登记 Agent 的任务进入该 Agent 的本地队列。
func (q *Queue) Enqueue(t *task.Task) error {
	if t == nil {
		return types.NewValidationError("task", "Task is required")
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.lenLocked() >= q.config.Capacity {
		q.logger.Warn("task queue full",
			zap.String("task_id", t.ID.String()),
			zap.Int("capacity", q.config.Capacity))
		return types.NewResourceExhaustedError("task_queue")
	}

	switch {
	case !q.config.EnableWorkStealing:
		q.legacy.insert(t)
	case t.AssignedAgent != nil && q.locals[*t.AssignedAgent] != nil:
		l := q.locals[*t.AssignedAgent]
		if t.Priority >= task.PriorityHigh {
			l.priority.insert(t)
		} else {
			l.normal.pushBack(t)
		}
	default:
		q.global.insert(t)
	}

	if n := q.lenLocked(); n > q.peak {
		q.peak = n
	}
	return nil
}

// Dequeue 取出下一个任务：先工作窃取全局队列，再遗留队列
func (q *Queue) Dequeue() *task.Task {
	return q.DequeueReady(nil)
}

// DequeueReady 取出优先级顺序中第一个满足 pred 的任务
func (q *Queue) DequeueReady(pred Predicate) *task.Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.takeShared(pred)
}

// DequeueFor 为指定 Agent 取任务。critical 任务先于一切：本地 critical、
// 共享队列中的 critical；之后依次是本地优先通道、本地普通通道、全局、遗留，
// 最后从其他 Agent 的本地队列尾部窃取。
func (q *Queue) DequeueFor(agentID uuid.UUID, pred Predicate) *task.Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	critical := func(t *task.Task) bool {
		return t.Priority == task.PriorityCritical && (pred == nil || pred(t))
	}
	l := q.locals[agentID]
	if l != nil {
		if t := l.priority.removeFirst(critical); t != nil {
			return t
		}
	}
	if t := q.takeShared(critical); t != nil {
		return t
	}
	if l != nil {
		if t := take(&l.priority, pred); t != nil {
			return t
		}
		if t := take(&l.normal, pred); t != nil {
			return t
		}
	}
	if t := q.takeShared(pred); t != nil {
		return t
	}
	if q.config.EnableWorkStealing {
		return q.steal(agentID, pred)
	}
	return nil
}

// RemoveIf 从所有队列中移除满足 pred 的任务并返回
func (q *Queue) RemoveIf(pred Predicate) []*task.Task {
	if pred == nil {
		return nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []*task.Task
	for _, id := range q.agents {
		l := q.locals[id]
		out = append(out, l.priority.removeAll(pred)...)
		out = append(out, l.normal.removeAll(pred)...)
	}
	out = append(out, q.global.removeAll(pred)...)
	return append(out, q.legacy.removeAll(pred)...)
}

func (q *Queue) takeShared(pred Predicate) *task.Task {
	if t := take(&q.global, pred); t != nil {
		return t
	}
	return take(&q.legacy, pred)
}

func take(d *deque, pred Predicate) *task.Task {
	if pred == nil {
		return d.popFront()
	}
	return d.removeFirst(pred)
}

// RegisterAgent 为 Agent 创建本地队列
func (q *Queue) RegisterAgent(agentID uuid.UUID) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.locals[agentID]; ok {
		return
	}
	q.locals[agentID] = &local{}
	q.agents = append(q.agents, agentID)
}

// UnregisterAgent 删除 Agent 的本地队列，剩余任务回到全局队列
func (q *Queue) UnregisterAgent(agentID uuid.UUID) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	l, ok := q.locals[agentID]
	if !ok {
		return 0
	}
	delete(q.locals, agentID)
	for i, id := range q.agents {
		if id == agentID {
			q.agents = append(q.agents[:i], q.agents[i+1:]...)
			break
		}
	}

	moved := 0
	for _, t := range append(l.priority.drain(), l.normal.drain()...) {
		q.global.insert(t)
		moved++
	}
	if moved > 0 {
		q.logger.Debug("redistributed local tasks",
			zap.String("agent_id", agentID.String()),
			zap.Int("tasks", moved))
	}
	return moved
}

// Snapshot 按出队顺序返回所有待执行任务（本地、全局、遗留）
func (q *Queue) Snapshot() []*task.Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*task.Task, 0, q.lenLocked())
	for _, id := range q.agents {
		l := q.locals[id]
		out = append(out, l.priority.snapshot()...)
		out = append(out, l.normal.snapshot()...)
	}
	out = append(out, q.global.snapshot()...)
	return append(out, q.legacy.snapshot()...)
}

// Len 待执行任务总数
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.lenLocked()
}

// Sizes 返回遗留队列与工作窃取队列各自的长度
func (q *Queue) Sizes() (legacy, workStealing int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.legacy.len(), q.wsLenLocked()
}

// Capacity 当前容量
func (q *Queue) Capacity() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.config.Capacity
}

// Resize 调整容量，已在队列中的任务不受影响
func (q *Queue) Resize(capacity int) error {
	if capacity <= 0 {
		return types.NewValidationError("capacity", "Queue capacity must be positive")
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.logger.Info("task queue resized",
		zap.Int("from", q.config.Capacity),
		zap.Int("to", capacity))
	q.config.Capacity = capacity
	return nil
}

// Clear 清空所有队列，返回被丢弃的任务
func (q *Queue) Clear() []*task.Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []*task.Task
	for _, id := range q.agents {
		l := q.locals[id]
		out = append(out, l.priority.drain()...)
		out = append(out, l.normal.drain()...)
	}
	out = append(out, q.global.drain()...)
	out = append(out, q.legacy.drain()...)
	return out
}

func (q *Queue) lenLocked() int {
	return q.legacy.len() + q.wsLenLocked()
}

func (q *Queue) wsLenLocked() int {
	n := q.global.len()
	for _, l := range q.locals {
		n += l.len()
	}
	return n
}

// steal 随机挑选最多 MaxStealVictims 个积压超过 1 的 Agent，从其普通通道尾部窃取
func (q *Queue) steal(thief uuid.UUID, pred Predicate) *task.Task {
	victims := make([]uuid.UUID, 0, len(q.agents))
	for _, id := range q.agents {
		if id != thief && q.locals[id].normal.len() > 1 {
			victims = append(victims, id)
		}
	}
	rand.Shuffle(len(victims), func(i, j int) { victims[i], victims[j] = victims[j], victims[i] })
	if len(victims) > q.config.MaxStealVictims {
		victims = victims[:q.config.MaxStealVictims]
	}

	for _, victim := range victims {
		q.stealAttempts++
		normal := &q.locals[victim].normal
		var t *task.Task
		if pred == nil {
			t = normal.popBack()
		} else {
			t = normal.removeLast(pred)
		}
		if t != nil {
			q.successfulSteals++
			q.logger.Debug("task stolen",
				zap.String("task_id", t.ID.String()),
				zap.String("from", victim.String()),
				zap.String("to", thief.String()))
			return t
		}
	}
	return nil
}
