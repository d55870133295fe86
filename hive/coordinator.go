package hive

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/agenthive/hive/agent"
	"github.com/BaSui01/agenthive/hive/analytics"
	"github.com/BaSui01/agenthive/hive/bus"
	"github.com/BaSui01/agenthive/hive/distributor"
	"github.com/BaSui01/agenthive/hive/executor"
	"github.com/BaSui01/agenthive/hive/queue"
	"github.com/BaSui01/agenthive/hive/registry"
	"github.com/BaSui01/agenthive/hive/resource"
	"github.com/BaSui01/agenthive/hive/task"
	"github.com/BaSui01/agenthive/internal/pool"
	"github.com/BaSui01/agenthive/internal/search"
	"github.com/BaSui01/agenthive/types"
)

// coordinatorSubscriber 协调循环在总线上的订阅名
const coordinatorSubscriber = "coordinator"

// =============================================================================
// ⚙️ 选项
// =============================================================================

type options struct {
	sampler  resource.Sampler
	cache    registry.AgentCache
	body     executor.Body
	pool     *pool.Workers
	recorder Recorder
}

// Option 协调器选项
type Option func(*options)

// WithSampler 替换资源采样器
func WithSampler(s resource.Sampler) Option {
	return func(o *options) { o.sampler = s }
}

// WithAgentCache 为注册表设置读缓存
func WithAgentCache(c registry.AgentCache) Option {
	return func(o *options) { o.cache = c }
}

// WithBody 设置任务体
func WithBody(b executor.Body) Option {
	return func(o *options) { o.body = b }
}

// WithPool 设置执行器使用的工作池
func WithPool(p *pool.Workers) Option {
	return func(o *options) { o.pool = p }
}

// WithRecorder 设置指标记录器
func WithRecorder(r Recorder) Option {
	return func(o *options) {
		if r != nil {
			o.recorder = r
		}
	}
}

// =============================================================================
// 🐝 协调器
// =============================================================================

// Coordinator 蜂巢的组合根，持有总线、注册表、队列、分发器、执行器、
// 分析引擎与资源监控，并驱动后台进程。
type Coordinator struct {
	id        uuid.UUID
	createdAt time.Time
	config    Config

	bus         *bus.Bus
	registry    *registry.Registry
	queue       *queue.Queue
	executor    *executor.Executor
	distributor *distributor.Distributor
	tracker     *analytics.Tracker
	collector   *analytics.Collector
	monitor     *resource.Monitor
	index       *search.TaskIndex
	recorder    Recorder
	logger      *zap.Logger

	mu         sync.Mutex
	running    bool
	cancel     context.CancelFunc
	done       chan struct{}
	lastUpdate time.Time
	processes  map[string]*processState
}

// New 创建协调器
func New(config Config, logger *zap.Logger, opts ...Option) (*Coordinator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	config = config.withDefaults()
	o := options{recorder: nopRecorder{}}
	for _, opt := range opts {
		opt(&o)
	}

	id := uuid.New()
	if config.ID != "" {
		parsed, err := uuid.Parse(config.ID)
		if err != nil {
			return nil, types.NewValidationError("hive.id", "must be a UUID").WithCause(err)
		}
		id = parsed
	}

	index, err := search.NewTaskIndex(logger)
	if err != nil {
		return nil, err
	}

	b := bus.New(config.BusBuffer, logger)
	var regOpts []registry.Option
	if o.cache != nil {
		regOpts = append(regOpts, registry.WithCache(o.cache))
	}
	reg := registry.New(b, logger, regOpts...)
	q := queue.New(config.Queue, logger)

	var execOpts []executor.Option
	if o.body != nil {
		execOpts = append(execOpts, executor.WithBody(o.body))
	}
	if o.pool != nil {
		execOpts = append(execOpts, executor.WithPool(o.pool))
	}
	exec := executor.New(config.Executor, reg, b, logger, execOpts...)

	c := &Coordinator{
		id:        id,
		createdAt: time.Now().UTC(),
		config:    config,
		bus:       b,
		registry:  reg,
		queue:     q,
		executor:  exec,
		tracker:   analytics.NewTracker(config.TrackerHistory, logger),
		collector: analytics.NewCollector(logger),
		monitor:   resource.NewMonitor(o.sampler, config.MemoryLimitMB, config.AutoOptimize, logger),
		index:     index,
		recorder:  o.recorder,
		logger:    logger.With(zap.String("component", "hive_coordinator"), zap.String("hive_id", id.String())),
		processes: newProcessStates(config.Processes),
	}
	c.lastUpdate = c.createdAt
	c.distributor = distributor.New(config.Distributor, q,
		instrumented{exec: exec, recorder: o.recorder},
		logger,
		distributor.WithTracker(c.tracker),
		distributor.WithPerformanceRecorder(reg),
		distributor.WithBreakerEvents(distributor.BreakerEventFunc(c.onBreakerEvent)),
	)

	c.logger.Info("hive coordinator created",
		zap.Int("queue_capacity", q.Capacity()),
		zap.Int("max_concurrent_tasks", config.Distributor.MaxConcurrent))
	return c, nil
}

// ID 蜂巢标识
func (c *Coordinator) ID() uuid.UUID { return c.id }

// Bus 协调总线
func (c *Coordinator) Bus() *bus.Bus { return c.bus }

// =============================================================================
// 🤖 Agent 管理
// =============================================================================

// CreateAgent 校验请求并注册 Agent。CPU 使用率超过阈值时拒绝。
func (c *Coordinator) CreateAgent(ctx context.Context, raw []byte) (uuid.UUID, error) {
	spec, err := agent.ParseCreateRequest(raw)
	if err != nil {
		return uuid.Nil, err
	}

	usage, err := c.currentUsage(ctx)
	if err != nil {
		c.logger.Warn("resource sampling failed, admitting agent", zap.Error(err))
	} else if usage.CPU > c.config.CPUThreshold {
		c.logger.Warn("agent creation refused: cpu over threshold",
			zap.Float64("cpu_usage", usage.CPU),
			zap.Float64("threshold", c.config.CPUThreshold))
		return uuid.Nil, types.NewResourceExhaustedError("cpu")
	}
	if limit := c.agentLimit(); limit > 0 && c.registry.Count() >= limit {
		return uuid.Nil, types.NewResourceExhaustedError("agents")
	}

	a := spec.Build()
	id, err := c.registry.Register(ctx, a)
	if err != nil {
		return uuid.Nil, err
	}
	c.queue.RegisterAgent(id)
	c.collector.RecordAgentEvent(analytics.EventRegistered, id)
	c.touch()

	c.logger.Info("agent created",
		zap.String("agent_id", id.String()),
		zap.String("name", a.Name),
		zap.String("type", a.Type.String()))
	return id, nil
}

// RemoveAgent 注销 Agent，其本地队列中的任务回到共享队列
func (c *Coordinator) RemoveAgent(ctx context.Context, id uuid.UUID) error {
	if err := c.registry.Unregister(ctx, id); err != nil {
		return err
	}
	moved := c.queue.UnregisterAgent(id)
	c.collector.RecordAgentEvent(analytics.EventRemoved, id)
	c.touch()

	c.logger.Info("agent removed",
		zap.String("agent_id", id.String()),
		zap.Int("redistributed_tasks", moved))
	return nil
}

// GetAgent 返回 Agent 副本
func (c *Coordinator) GetAgent(ctx context.Context, id uuid.UUID) (*agent.Agent, error) {
	a, ok := c.registry.Get(ctx, id)
	if !ok {
		return nil, types.NewNotFoundError("agent", id.String())
	}
	return a, nil
}

// GetAgents 全部 Agent 副本，按创建时间排序
func (c *Coordinator) GetAgents(ctx context.Context) []*agent.Agent {
	return c.registry.Agents(ctx)
}

// TopPerformers 表现最好的 Agent
func (c *Coordinator) TopPerformers(limit int) []registry.Performer {
	return c.registry.TopPerformers(limit)
}

func (c *Coordinator) agentLimit() int {
	limit := c.config.MaxAgents
	if c.config.AutoOptimize {
		if p := c.monitor.Profile().MaxAgents; p > 0 && (limit == 0 || p < limit) {
			limit = p
		}
	}
	return limit
}

// currentUsage 尚无采样时立即采样一次
func (c *Coordinator) currentUsage(ctx context.Context) (resource.Usage, error) {
	if u := c.monitor.Latest(); !u.SampledAt.IsZero() {
		return u, nil
	}
	u, _, err := c.monitor.Update(ctx)
	return u, err
}

// =============================================================================
// 📋 任务管理
// =============================================================================

// CreateTask 校验请求并入队，队列满时返回 ResourceExhausted
func (c *Coordinator) CreateTask(ctx context.Context, raw []byte) (uuid.UUID, error) {
	t, err := task.ParseCreateRequest(raw)
	if err != nil {
		return uuid.Nil, err
	}
	if err := c.distributor.Enqueue(t); err != nil {
		return uuid.Nil, err
	}
	if err := c.index.Index(t); err != nil {
		c.logger.Warn("failed to index task", zap.String("task_id", t.ID.String()), zap.Error(err))
	}
	c.touch()

	c.logger.Info("task created",
		zap.String("task_id", t.ID.String()),
		zap.String("type", t.Type),
		zap.String("priority", t.Priority.String()))
	return t.ID, nil
}

// GetTask 返回任务副本
func (c *Coordinator) GetTask(id uuid.UUID) (*task.Task, error) {
	t, ok := c.distributor.Task(id)
	if !ok {
		return nil, types.NewNotFoundError("task", id.String())
	}
	return t, nil
}

// GetTasks 全部任务副本，按提交顺序
func (c *Coordinator) GetTasks() []*task.Task {
	return c.distributor.Tasks()
}

// SearchTasks 全文检索任务，返回按相关度排序的最新副本
func (c *Coordinator) SearchTasks(ctx context.Context, query string, limit int) ([]*task.Task, error) {
	hits, err := c.index.Search(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	out := make([]*task.Task, 0, len(hits))
	for _, h := range hits {
		if t, ok := c.distributor.Task(h.TaskID); ok {
			out = append(out, t)
		}
	}
	return out, nil
}

// =============================================================================
// 🛠️ 运维操作
// =============================================================================

// ResizeQueue 调整待执行队列容量，已排队的任务不受影响
func (c *Coordinator) ResizeQueue(capacity int) error {
	if err := c.queue.Resize(capacity); err != nil {
		return err
	}
	c.touch()
	return nil
}

// ResetCircuitBreakers 手动恢复全部熔断器，返回重置前未处于 closed 的任务类型
func (c *Coordinator) ResetCircuitBreakers() []string {
	breakers := c.distributor.Breakers()
	tripped := make([]string, 0)
	for taskType, state := range breakers.States() {
		if state != distributor.BreakerClosed {
			tripped = append(tripped, taskType)
		}
	}
	sort.Strings(tripped)
	breakers.ResetAll()
	c.touch()

	c.logger.Info("circuit breakers reset", zap.Strings("tripped", tripped))
	return tripped
}

// =============================================================================
// 🔌 内部回调
// =============================================================================

func (c *Coordinator) onBreakerEvent(ev distributor.BreakerEvent) {
	c.collector.IncrementEvent("circuit_breaker_" + ev.NewState.String())
	c.recorder.SetBreakerState(ev.TaskType, int(ev.NewState))
	c.logger.Warn("circuit breaker state changed",
		zap.String("task_type", ev.TaskType),
		zap.String("from", ev.OldState.String()),
		zap.String("to", ev.NewState.String()),
		zap.String("reason", ev.Reason))
}

func (c *Coordinator) touch() {
	c.mu.Lock()
	c.lastUpdate = time.Now().UTC()
	c.mu.Unlock()
}

// Close 释放执行器工作池、总线与检索索引。之后协调器不可再用。
func (c *Coordinator) Close() error {
	c.executor.Close()
	c.bus.Close()
	if err := c.index.Close(); err != nil {
		return fmt.Errorf("close task index: %w", err)
	}
	return nil
}
