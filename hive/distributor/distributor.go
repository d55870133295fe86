package distributor

import (
	"context"
	"slices"
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/agenthive/hive/agent"
	"github.com/BaSui01/agenthive/hive/queue"
	"github.com/BaSui01/agenthive/hive/task"
	"github.com/BaSui01/agenthive/types"
)

const instrumentationName = "github.com/BaSui01/agenthive/hive/distributor"

// =============================================================================
// ⚙️ 配置与依赖
// =============================================================================

// Config 分发器配置
type Config struct {
	MaxConcurrent    int           `json:"max_concurrent_tasks" yaml:"max_concurrent_tasks"`
	MaxRetryAttempts int           `json:"max_retry_attempts" yaml:"max_retry_attempts"`
	Breaker          BreakerConfig `json:"circuit_breaker" yaml:"circuit_breaker"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		MaxConcurrent:    100,
		MaxRetryAttempts: 3,
		Breaker:          DefaultBreakerConfig(),
	}
}

// Executor 执行单个任务
type Executor interface {
	ExecuteWithVerification(ctx context.Context, t *task.Task, agentID uuid.UUID) task.ExecutionResult
}

// Tracker 任务生命周期记录
type Tracker interface {
	RecordCreated(t *task.Task)
	RecordAssigned(taskID, agentID uuid.UUID)
	RecordStarted(taskID uuid.UUID)
	RecordStatus(taskID uuid.UUID, status task.Status)
	RecordCompleted(result task.ExecutionResult)
}

// PerformanceRecorder Agent 维度的执行统计
type PerformanceRecorder interface {
	RecordExecution(agentID uuid.UUID, success bool, executionMs int64)
}

type nopTracker struct{}

func (nopTracker) RecordCreated(*task.Task)             {}
func (nopTracker) RecordAssigned(uuid.UUID, uuid.UUID)  {}
func (nopTracker) RecordStarted(uuid.UUID)              {}
func (nopTracker) RecordStatus(uuid.UUID, task.Status)  {}
func (nopTracker) RecordCompleted(task.ExecutionResult) {}

type nopRecorder struct{}

func (nopRecorder) RecordExecution(uuid.UUID, bool, int64) {}

// Option 分发器选项
type Option func(*Distributor)

// WithTracker 设置生命周期记录器
func WithTracker(t Tracker) Option {
	return func(d *Distributor) {
		if t != nil {
			d.tracker = t
		}
	}
}

// WithPerformanceRecorder 设置 Agent 表现记录器
func WithPerformanceRecorder(p PerformanceRecorder) Option {
	return func(d *Distributor) {
		if p != nil {
			d.perf = p
		}
	}
}

// WithBreakerEvents 订阅熔断器状态变更
func WithBreakerEvents(h BreakerEventHandler) Option {
	return func(d *Distributor) { d.breakerEvents = h }
}

// =============================================================================
// 🚚 分发器
// =============================================================================

// entry 分发器对任务的记账
type entry struct {
	task          *task.Task
	seq           uint64
	pinned        *uuid.UUID
	verifyRetried bool
}

// Distributor 把队列中的任务分派给空闲 Agent 并发执行，负责重试与熔断。
// 任务离开队列后只由分发器修改，所有修改都在 mu 下进行。
type Distributor struct {
	config        Config
	queue         *queue.Queue
	exec          Executor
	tracker       Tracker
	perf          PerformanceRecorder
	breakers      *Breakers
	breakerEvents BreakerEventHandler
	tracer        trace.Tracer
	logger        *zap.Logger

	mu      sync.RWMutex
	entries map[uuid.UUID]*entry
	seq     uint64
	stats   counters
}

type counters struct {
	enqueued             int64
	rejected             int64
	launched             int64
	completed            int64
	failed               int64
	retried              int64
	verificationRequeues int64
	breakerDeferrals     int64
}

// New 创建分发器
func New(config Config, q *queue.Queue, exec Executor, logger *zap.Logger, opts ...Option) *Distributor {
	if logger == nil {
		logger = zap.NewNop()
	}
	defaults := DefaultConfig()
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = defaults.MaxConcurrent
	}
	// 0 表示不重试，只有负数视为未设置
	if config.MaxRetryAttempts < 0 {
		config.MaxRetryAttempts = defaults.MaxRetryAttempts
	}
	if config.Breaker.FailureThreshold <= 0 {
		config.Breaker = defaults.Breaker
	}

	d := &Distributor{
		config:  config,
		queue:   q,
		exec:    exec,
		tracker: nopTracker{},
		perf:    nopRecorder{},
		tracer:  otel.Tracer(instrumentationName),
		logger:  logger.With(zap.String("component", "task_distributor")),
		entries: make(map[uuid.UUID]*entry),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.breakers = NewBreakers(config.Breaker, d.breakerEvents, d.logger)
	return d
}

// Enqueue 登记并入队，队列满时返回 ResourceExhausted。
// 依赖必须是已登记且未失败的任务。
func (d *Distributor) Enqueue(t *task.Task) error {
	return d.enqueue(t, true)
}

func (d *Distributor) enqueue(t *task.Task, checkDeps bool) error {
	if t == nil {
		return types.NewValidationError("task", "task is required")
	}

	d.mu.Lock()
	if _, exists := d.entries[t.ID]; exists {
		d.mu.Unlock()
		return types.NewValidationError("task_id", "task already submitted: "+t.ID.String())
	}
	if checkDeps {
		if err := d.checkDependenciesLocked(t); err != nil {
			d.mu.Unlock()
			return err
		}
	}
	d.seq++
	e := &entry{task: t, seq: d.seq}
	if t.AssignedAgent != nil {
		id := *t.AssignedAgent
		e.pinned = &id
	}
	d.entries[t.ID] = e
	d.mu.Unlock()

	if err := d.queue.Enqueue(t); err != nil {
		d.mu.Lock()
		delete(d.entries, t.ID)
		d.stats.rejected++
		d.mu.Unlock()
		return err
	}

	d.mu.Lock()
	d.stats.enqueued++
	failedDep := d.failedDependencyLocked(t)
	d.mu.Unlock()
	d.tracker.RecordCreated(t)

	d.logger.Debug("task enqueued",
		zap.String("task_id", t.ID.String()),
		zap.String("priority", t.Priority.String()),
		zap.String("type", t.Type))

	// 入队期间依赖已终止于 failed
	if failedDep != uuid.Nil {
		d.failDependents(failedDep)
	}
	return nil
}

// checkDependenciesLocked 必须在锁内调用
func (d *Distributor) checkDependenciesLocked(t *task.Task) error {
	for _, dep := range t.Dependencies {
		if dep == t.ID {
			return types.NewValidationError("dependencies", "task cannot depend on itself")
		}
		e, ok := d.entries[dep]
		if !ok {
			return types.NewValidationError("dependencies", "unknown dependency: "+dep.String())
		}
		if e.task.Status == task.StatusFailed {
			return types.NewValidationError("dependencies", "dependency already failed: "+dep.String())
		}
	}
	return nil
}

// failedDependencyLocked 返回第一个已永久失败的依赖。
// 重试中的任务处于 retrying，停留在 failed 即为终止。
func (d *Distributor) failedDependencyLocked(t *task.Task) uuid.UUID {
	for _, dep := range t.Dependencies {
		if e, ok := d.entries[dep]; ok && e.task.Status == task.StatusFailed {
			return dep
		}
	}
	return uuid.Nil
}

// DequeueNext 取出下一个依赖已满足且未被熔断的任务，不执行
func (d *Distributor) DequeueNext() *task.Task {
	t := d.queue.DequeueReady(d.ready)
	if t == nil {
		return nil
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	return t.Clone()
}

// Distribute 为空闲 Agent 各取一个任务并发执行，等待全部完成后返回启动数
func (d *Distributor) Distribute(ctx context.Context, agents []*agent.Agent) int {
	idle := make([]*agent.Agent, 0, len(agents))
	for _, a := range agents {
		if a != nil && a.State == agent.StateIdle {
			idle = append(idle, a)
		}
		if len(idle) == d.config.MaxConcurrent {
			break
		}
	}
	if len(idle) == 0 || d.queue.Len() == 0 {
		return 0
	}

	var g errgroup.Group
	launched := 0
	for _, a := range idle {
		t := d.next(a.ID)
		if t == nil {
			break
		}
		snapshot, err := d.assign(t, a.ID)
		if err != nil {
			d.breakers.GetOrCreate(t.Type).ReleaseProbe()
			d.logger.Warn("failed to assign task",
				zap.String("task_id", t.ID.String()),
				zap.Error(err))
			d.failPermanently(t, err)
			continue
		}
		launched++
		agentID := a.ID
		g.Go(func() error {
			d.execute(ctx, snapshot, agentID)
			return nil
		})
	}
	_ = g.Wait()

	if launched > 0 {
		d.logger.Debug("distributed tasks", zap.Int("launched", launched), zap.Int("idle_agents", len(idle)))
	}
	return launched
}

// ready 依赖全部完成且该类型熔断器可能放行
func (d *Distributor) ready(t *task.Task) bool {
	if len(t.Dependencies) > 0 {
		d.mu.RLock()
		for _, dep := range t.Dependencies {
			e, ok := d.entries[dep]
			if !ok || e.task.Status != task.StatusCompleted {
				d.mu.RUnlock()
				return false
			}
		}
		d.mu.RUnlock()
	}
	return d.breakers.GetOrCreate(t.Type).Permits()
}

// next 为 Agent 取出下一个任务并占用熔断器放行额度
func (d *Distributor) next(agentID uuid.UUID) *task.Task {
	t := d.queue.DequeueFor(agentID, d.ready)
	if t == nil {
		return nil
	}
	if ok, err := d.breakers.GetOrCreate(t.Type).AllowRequest(); !ok {
		// 判断与占用之间状态已变化，放回队列
		d.mu.Lock()
		d.stats.breakerDeferrals++
		d.mu.Unlock()
		d.logger.Debug("circuit breaker deferred task",
			zap.String("task_id", t.ID.String()),
			zap.Error(err))
		if err := d.queue.Enqueue(t); err != nil {
			d.failPermanently(t, err)
		}
		return nil
	}
	return t
}

// assign pending|retrying → assigned → running，返回供执行使用的副本
func (d *Distributor) assign(t *task.Task, agentID uuid.UUID) (*task.Task, error) {
	d.mu.Lock()
	if err := t.Transition(task.StatusAssigned); err != nil {
		d.mu.Unlock()
		return nil, err
	}
	id := agentID
	t.AssignedAgent = &id
	if err := t.Transition(task.StatusRunning); err != nil {
		d.mu.Unlock()
		return nil, err
	}
	t.Attempts++
	d.stats.launched++
	snapshot := t.Clone()
	d.mu.Unlock()

	d.tracker.RecordAssigned(t.ID, agentID)
	d.tracker.RecordStarted(t.ID)
	return snapshot, nil
}

func (d *Distributor) execute(ctx context.Context, t *task.Task, agentID uuid.UUID) {
	ctx, span := d.tracer.Start(ctx, "hive.task.distribute",
		trace.WithAttributes(
			attribute.String("task.id", t.ID.String()),
			attribute.String("task.type", t.Type),
			attribute.String("agent.id", agentID.String()),
			attribute.Int("task.attempt", t.Attempts),
		))
	defer span.End()

	res := d.exec.ExecuteWithVerification(ctx, t, agentID)
	verification := types.IsCode(res.Err, types.ErrValidation)

	breaker := d.breakers.GetOrCreate(t.Type)
	switch {
	case res.Success:
		breaker.RecordSuccess()
	case verification:
		// 校验失败不计入成败，归还半开探测名额
		breaker.ReleaseProbe()
	default:
		breaker.RecordFailure()
	}
	if !verification {
		d.perf.RecordExecution(agentID, res.Success, res.ExecutionTimeMs)
		d.tracker.RecordCompleted(res)
	}
	if !res.Success {
		span.SetStatus(codes.Error, res.ErrorMessage)
	}

	d.settle(t.ID, res, verification)
}

// settle 根据结果推进任务状态，必要时重新入队
func (d *Distributor) settle(taskID uuid.UUID, res task.ExecutionResult, verification bool) {
	d.mu.Lock()
	e, ok := d.entries[taskID]
	if !ok {
		d.mu.Unlock()
		return
	}
	t := e.task

	if res.Success {
		_ = t.Transition(task.StatusCompleted)
		t.LastError = ""
		d.stats.completed++
		d.mu.Unlock()
		return
	}

	t.LastError = res.ErrorMessage
	_ = t.Transition(task.StatusFailed)

	retry := t.Attempts < d.config.MaxRetryAttempts
	if verification {
		retry = retry && !e.verifyRetried
		e.verifyRetried = true
	}
	if !retry {
		d.stats.failed++
		d.mu.Unlock()
		d.tracker.RecordStatus(taskID, task.StatusFailed)
		d.logger.Warn("task failed permanently",
			zap.String("task_id", taskID.String()),
			zap.Int("attempts", t.Attempts),
			zap.String("error", res.ErrorMessage))
		d.failDependents(taskID)
		return
	}

	_ = t.Transition(task.StatusRetrying)
	// 校验失败不再固定给同一个 Agent
	t.AssignedAgent = e.pinned
	if verification {
		t.AssignedAgent = nil
		d.stats.verificationRequeues++
	} else {
		d.stats.retried++
	}
	attempts := t.Attempts
	d.mu.Unlock()

	d.tracker.RecordStatus(taskID, task.StatusRetrying)
	if err := d.queue.Enqueue(t); err != nil {
		d.failPermanently(t, err)
		return
	}
	d.logger.Info("task requeued",
		zap.String("task_id", taskID.String()),
		zap.Int("attempts", attempts),
		zap.Bool("verification", verification))
}

// failPermanently 重新入队被拒时任务终止于 failed
func (d *Distributor) failPermanently(t *task.Task, cause error) {
	d.mu.Lock()
	if t.Status != task.StatusFailed {
		_ = t.Transition(task.StatusFailed)
	}
	t.LastError = cause.Error()
	d.stats.failed++
	d.mu.Unlock()

	d.tracker.RecordStatus(t.ID, task.StatusFailed)
	d.logger.Error("task dropped: requeue rejected",
		zap.String("task_id", t.ID.String()),
		zap.Error(cause))
	d.failDependents(t.ID)
}

// failDependents 依赖永久失败后，队列中等待它的任务（及其下游）一并终止
func (d *Distributor) failDependents(root uuid.UUID) {
	pending := []uuid.UUID{root}
	for len(pending) > 0 {
		failed := pending[0]
		pending = pending[1:]

		removed := d.queue.RemoveIf(func(t *task.Task) bool {
			return slices.Contains(t.Dependencies, failed)
		})
		for _, t := range removed {
			d.mu.Lock()
			if t.Status != task.StatusFailed {
				_ = t.Transition(task.StatusFailed)
			}
			t.LastError = "dependency failed: " + failed.String()
			d.stats.failed++
			d.mu.Unlock()

			d.tracker.RecordStatus(t.ID, task.StatusFailed)
			d.logger.Warn("task failed: dependency failed",
				zap.String("task_id", t.ID.String()),
				zap.String("dependency", failed.String()))
			pending = append(pending, t.ID)
		}
	}
}

// =============================================================================
// 🔍 查询
// =============================================================================

// Task 返回任务副本
func (d *Distributor) Task(id uuid.UUID) (*task.Task, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	e, ok := d.entries[id]
	if !ok {
		return nil, false
	}
	return e.task.Clone(), true
}

// Tasks 全部任务副本，按提交顺序
func (d *Distributor) Tasks() []*task.Task {
	d.mu.RLock()
	list := make([]*entry, 0, len(d.entries))
	for _, e := range d.entries {
		list = append(list, e)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].seq < list[j].seq })
	out := make([]*task.Task, len(list))
	for i, e := range list {
		out[i] = e.task.Clone()
	}
	d.mu.RUnlock()
	return out
}

// Restore 登记一个已有任务；未终结的任务重新入队
func (d *Distributor) Restore(t *task.Task) error {
	switch t.Status {
	case task.StatusPending, task.StatusRetrying:
		// 恢复顺序不保证依赖先于下游
		return d.enqueue(t, false)
	case task.StatusAssigned, task.StatusRunning:
		// 中断的执行记为一次失败后重试
		t.Status = task.StatusFailed
		if err := t.Transition(task.StatusRetrying); err != nil {
			return err
		}
		return d.enqueue(t, false)
	default:
		d.mu.Lock()
		if _, exists := d.entries[t.ID]; exists {
			d.mu.Unlock()
			return types.NewValidationError("task_id", "task already submitted: "+t.ID.String())
		}
		d.seq++
		d.entries[t.ID] = &entry{task: t, seq: d.seq}
		d.mu.Unlock()

		// 先于本任务恢复的下游不再等待
		if t.Status == task.StatusFailed {
			d.failDependents(t.ID)
		}
		return nil
	}
}

// Breakers 熔断器注册表
func (d *Distributor) Breakers() *Breakers {
	return d.breakers
}

// Queue 底层队列
func (d *Distributor) Queue() *queue.Queue {
	return d.queue
}
