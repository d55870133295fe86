package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/agenthive/hive/agent"
	"github.com/BaSui01/agenthive/hive/bus"
	"github.com/BaSui01/agenthive/hive/task"
	"github.com/BaSui01/agenthive/internal/pool"
	"github.com/BaSui01/agenthive/types"
)

const instrumentationName = "github.com/BaSui01/agenthive/hive/executor"

// =============================================================================
// ⚙️ 配置
// =============================================================================

// Config 执行器配置
type Config struct {
	Timeout               time.Duration `json:"timeout" yaml:"timeout"`
	MaxConcurrent         int           `json:"max_concurrent" yaml:"max_concurrent"`
	EnergyCost            float64       `json:"energy_cost" yaml:"energy_cost"`
	SuccessLearningFactor float64       `json:"success_learning_factor" yaml:"success_learning_factor"`
	FailureLearningFactor float64       `json:"failure_learning_factor" yaml:"failure_learning_factor"`
	HistoryLimit          int           `json:"history_limit" yaml:"history_limit"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Timeout:               300 * time.Second,
		MaxConcurrent:         100,
		EnergyCost:            5,
		SuccessLearningFactor: 0.1,
		FailureLearningFactor: 0.05,
		HistoryLimit:          1000,
	}
}

// AgentStore Agent 状态的读改写入口，由注册表实现
type AgentStore interface {
	Modify(ctx context.Context, id uuid.UUID, fn func(a *agent.Agent) error) (*agent.Agent, error)
}

// =============================================================================
// 🏃 执行器
// =============================================================================

// Executor 校验能力后在超时约束下执行任务体，并把结果反馈到 Agent 的学习状态。
type Executor struct {
	config Config
	store  AgentStore
	body   Body
	pool   *pool.Workers
	owns   bool
	sender bus.Sender
	tracer trace.Tracer
	logger *zap.Logger

	executions metric.Int64Counter
	duration   metric.Float64Histogram

	mu      sync.RWMutex
	history []task.ExecutionResult
	active  map[uuid.UUID]uuid.UUID
	stats   counters
}

type counters struct {
	total     int64
	succeeded int64
	failed    int64
	timedOut  int64
	rejected  int64
	totalMs   int64
}

// Option 执行器选项
type Option func(*Executor)

// WithBody 设置任务体
func WithBody(b Body) Option {
	return func(e *Executor) {
		if b != nil {
			e.body = b
		}
	}
}

// WithPool 设置共享工作池
func WithPool(p *pool.Workers) Option {
	return func(e *Executor) {
		if p != nil {
			e.pool = p
		}
	}
}

// New 创建执行器。未提供工作池时按 MaxConcurrent 创建一个。
func New(config Config, store AgentStore, sender bus.Sender, logger *zap.Logger, opts ...Option) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if sender == nil {
		sender = bus.Nop
	}
	defaults := DefaultConfig()
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = defaults.MaxConcurrent
	}
	if config.HistoryLimit <= 0 {
		config.HistoryLimit = defaults.HistoryLimit
	}

	e := &Executor{
		config: config,
		store:  store,
		body:   SimulatedBody{},
		sender: sender,
		tracer: otel.Tracer(instrumentationName),
		logger: logger.With(zap.String("component", "task_executor")),
		active: make(map[uuid.UUID]uuid.UUID),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.pool == nil {
		e.pool = pool.New(pool.Config{
			MaxWorkers: config.MaxConcurrent,
			QueueSize:  config.MaxConcurrent,
		}, logger)
		e.owns = true
	}
	e.initInstruments()
	return e
}

func (e *Executor) initInstruments() {
	meter := otel.Meter(instrumentationName)
	var err error
	if e.executions, err = meter.Int64Counter("hive.task.executions",
		metric.WithDescription("Task executions by outcome")); err != nil {
		e.logger.Warn("failed to create execution counter", zap.Error(err))
		e.executions = noop.Int64Counter{}
	}
	if e.duration, err = meter.Float64Histogram("hive.task.duration",
		metric.WithDescription("Task execution time"),
		metric.WithUnit("ms")); err != nil {
		e.logger.Warn("failed to create duration histogram", zap.Error(err))
		e.duration = noop.Float64Histogram{}
	}
}

// Verify 检查 Agent 是否空闲且满足任务的全部能力要求
func Verify(t *task.Task, a *agent.Agent) error {
	for _, req := range t.RequiredCapabilities {
		p, ok := a.Proficiency(req.Name)
		if !ok || p < req.MinimumProficiency {
			return types.NewValidationError("agent_capabilities", fmt.Sprintf(
				"Agent %s lacks required capability: %s (min proficiency: %g)",
				a.ID, req.Name, req.MinimumProficiency))
		}
	}
	if a.State != agent.StateIdle {
		return types.NewValidationError("agent_state", fmt.Sprintf(
			"Agent %s is not available (current state: %s)", a.ID, a.State))
	}
	return nil
}

// ExecuteWithVerification 校验、执行并返回结果。
// 校验失败时不执行任务体、不修改 Agent，结果中的错误为 ValidationError。
func (e *Executor) ExecuteWithVerification(ctx context.Context, t *task.Task, agentID uuid.UUID) task.ExecutionResult {
	start := time.Now()
	ctx, span := e.tracer.Start(ctx, "hive.task.execute",
		trace.WithAttributes(
			attribute.String("task.id", t.ID.String()),
			attribute.String("task.type", t.Type),
			attribute.String("agent.id", agentID.String())))
	defer span.End()

	result := task.ExecutionResult{TaskID: t.ID, AgentID: agentID, TaskType: t.Type}

	// Verifying
	snapshot, err := e.store.Modify(ctx, agentID, func(a *agent.Agent) error {
		if err := Verify(t, a); err != nil {
			return err
		}
		a.State = agent.StateWorking
		a.LastActive = time.Now().UTC()
		return nil
	})
	if err != nil {
		result = e.fail(result, start, err)
		e.mu.Lock()
		e.stats.rejected++
		e.mu.Unlock()
		span.SetStatus(codes.Error, "verification failed")
		span.RecordError(err)
		e.logger.Debug("task verification failed",
			zap.String("task_id", t.ID.String()),
			zap.String("agent_id", agentID.String()),
			zap.Error(err))
		return result
	}

	// Running
	e.trackActive(t.ID, agentID, true)
	output, runErr := e.run(ctx, t, snapshot)
	e.trackActive(t.ID, agentID, false)

	if runErr != nil {
		result = e.fail(result, start, runErr)
	} else {
		result.Success = true
		result.Output = output
		result.ExecutionTimeMs = time.Since(start).Milliseconds()
		result.CompletedAt = time.Now().UTC()
	}

	e.learn(ctx, t, agentID, result)
	e.record(result)
	e.sender.Send(bus.TaskCompleted{TaskID: t.ID, AgentID: agentID, Success: result.Success})

	outcome := outcomeOf(result)
	e.executions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("task_type", t.Type),
		attribute.String("outcome", outcome)))
	e.duration.Record(ctx, float64(result.ExecutionTimeMs), metric.WithAttributes(
		attribute.String("task_type", t.Type)))
	span.SetAttributes(
		attribute.String("task.outcome", outcome),
		attribute.Int64("task.duration_ms", result.ExecutionTimeMs))
	if !result.Success {
		span.SetStatus(codes.Error, result.ErrorMessage)
	}

	e.logger.Info("task executed",
		zap.String("task_id", t.ID.String()),
		zap.String("agent_id", agentID.String()),
		zap.String("outcome", outcome),
		zap.Int64("execution_time_ms", result.ExecutionTimeMs))
	return result
}

// run 在工作池中执行任务体，与超时计时器竞速，先完成者胜出。
// 计时器胜出时取消任务体的 ctx 并丢弃其结果。
func (e *Executor) run(ctx context.Context, t *task.Task, a *agent.Agent) (string, error) {
	type outcome struct {
		output string
		err    error
	}

	bodyCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan outcome, 1)
	done, err := e.pool.Submit(bodyCtx, func(ctx context.Context) error {
		out, err := e.body.Run(ctx, t, a)
		results <- outcome{out, err}
		return err
	})
	if err != nil {
		return "", types.NewResourceExhaustedError("worker_pool").WithCause(err)
	}

	timer := time.NewTimer(e.config.Timeout)
	defer timer.Stop()

	select {
	case o := <-results:
		return o.output, o.err
	case err := <-done:
		// 任务体 panic 时不会写入 results
		select {
		case o := <-results:
			return o.output, o.err
		default:
			return "", err
		}
	case <-timer.C:
		return "", types.NewTimeoutError("task_execution", e.config.Timeout)
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (e *Executor) fail(result task.ExecutionResult, start time.Time, err error) task.ExecutionResult {
	result.Success = false
	result.Err = err
	result.ErrorMessage = err.Error()
	result.ExecutionTimeMs = time.Since(start).Milliseconds()
	result.CompletedAt = time.Now().UTC()
	return result
}

// learn 根据结果调整熟练度与能量，记录经验并让 Agent 回到 idle
func (e *Executor) learn(ctx context.Context, t *task.Task, agentID uuid.UUID, result task.ExecutionResult) {
	_, err := e.store.Modify(ctx, agentID, func(a *agent.Agent) error {
		for _, req := range t.RequiredCapabilities {
			c, ok := a.Capability(req.Name)
			if !ok {
				continue
			}
			if result.Success {
				a.AdjustProficiency(req.Name, c.LearningRate*e.config.SuccessLearningFactor)
			} else {
				a.AdjustProficiency(req.Name, -c.LearningRate*e.config.FailureLearningFactor)
			}
		}
		if result.Success {
			a.ConsumeEnergy(e.config.EnergyCost)
		}

		exp := agent.Experience{
			Timestamp: result.CompletedAt,
			TaskType:  t.Type,
			Success:   result.Success,
			Context:   t.Description,
		}
		if result.Success {
			exp.LearnedInsight = fmt.Sprintf("completed %s task in %dms", t.Type, result.ExecutionTimeMs)
		} else {
			exp.LearnedInsight = fmt.Sprintf("failed %s task: %s", t.Type, result.ErrorMessage)
		}
		a.LearnFromExperience(exp)
		a.State = agent.StateIdle
		return nil
	})
	if err != nil {
		// Agent 在执行期间被移除
		e.logger.Warn("failed to apply execution feedback",
			zap.String("agent_id", agentID.String()),
			zap.Error(err))
	}
}

func (e *Executor) record(result task.ExecutionResult) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.history = append(e.history, result)
	if over := len(e.history) - e.config.HistoryLimit; over > 0 {
		e.history = append([]task.ExecutionResult(nil), e.history[over:]...)
	}

	e.stats.total++
	e.stats.totalMs += result.ExecutionTimeMs
	switch {
	case result.Success:
		e.stats.succeeded++
	case types.IsCode(result.Err, types.ErrTimeout):
		e.stats.timedOut++
		e.stats.failed++
	default:
		e.stats.failed++
	}
}

func (e *Executor) trackActive(taskID, agentID uuid.UUID, running bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if running {
		e.active[taskID] = agentID
	} else {
		delete(e.active, taskID)
	}
}

func outcomeOf(r task.ExecutionResult) string {
	switch {
	case r.Success:
		return "succeeded"
	case types.IsCode(r.Err, types.ErrTimeout):
		return "timed_out"
	default:
		return "failed"
	}
}

// Close 关闭执行器自建的工作池，共享工作池由其创建者关闭
func (e *Executor) Close() {
	if e.owns {
		e.pool.Close()
	}
}
