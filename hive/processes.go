package hive

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/agenthive/hive/agent"
	"github.com/BaSui01/agenthive/hive/bus"
	"github.com/BaSui01/agenthive/types"
)

// 后台进程名
const (
	ProcessDistribution = "work_distribution"
	ProcessLearning     = "learning"
	ProcessSwarm        = "swarm_coordination"
	ProcessMetrics      = "metrics_collection"
	ProcessResources    = "resource_monitoring"
	ProcessCoordination = "coordination"
)

// ProcessStatus 单个后台进程的运行情况
type ProcessStatus struct {
	Interval time.Duration `json:"interval"`
	Runs     uint64        `json:"runs"`
	Errors   uint64        `json:"errors"`
	LastRun  time.Time     `json:"last_run,omitempty"`
}

type processState struct {
	mu sync.Mutex
	ProcessStatus
}

func (p *processState) record(err error) {
	p.mu.Lock()
	p.Runs++
	if err != nil {
		p.Errors++
	}
	p.LastRun = time.Now().UTC()
	p.mu.Unlock()
}

func (p *processState) snapshot() ProcessStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ProcessStatus
}

func newProcessStates(cfg ProcessConfig) map[string]*processState {
	intervals := map[string]time.Duration{
		ProcessDistribution: cfg.Distribution,
		ProcessLearning:     cfg.Learning,
		ProcessSwarm:        cfg.Swarm,
		ProcessMetrics:      cfg.Metrics,
		ProcessResources:    cfg.Resources,
		ProcessCoordination: 0,
	}
	out := make(map[string]*processState, len(intervals))
	for name, d := range intervals {
		out[name] = &processState{ProcessStatus: ProcessStatus{Interval: d}}
	}
	return out
}

// =============================================================================
// ▶️ 生命周期
// =============================================================================

// Start 启动后台进程。重复启动返回 ALREADY_STARTED。
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return types.NewError(types.ErrAlreadyStarted, "hive coordinator already started")
	}

	sub, err := c.bus.Subscribe(coordinatorSubscriber)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	g, gctx := errgroup.WithContext(runCtx)
	p := c.config.Processes
	c.every(gctx, g, ProcessDistribution, p.Distribution, c.distributeWork)
	c.every(gctx, g, ProcessLearning, p.Learning, c.learn)
	c.every(gctx, g, ProcessSwarm, p.Swarm, c.coordinateSwarm)
	c.every(gctx, g, ProcessMetrics, p.Metrics, c.collectMetrics)
	c.every(gctx, g, ProcessResources, p.Resources, c.monitorResources)
	g.Go(func() error {
		c.coordinate(gctx, sub)
		return nil
	})

	done := make(chan struct{})
	go func() {
		if err := g.Wait(); err != nil {
			c.logger.Error("background process exited with error", zap.Error(err))
		}
		sub.Unsubscribe()
		close(done)
	}()

	c.running = true
	c.cancel = cancel
	c.done = done
	c.logger.Info("hive coordinator started",
		zap.Duration("work_distribution", p.Distribution),
		zap.Duration("learning", p.Learning),
		zap.Duration("swarm_coordination", p.Swarm),
		zap.Duration("metrics_collection", p.Metrics),
		zap.Duration("resource_monitoring", p.Resources))
	return nil
}

// Shutdown 广播 Shutdown，停止后台进程并等待退出，ctx 到期时返回超时错误
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	cancel, done := c.cancel, c.done
	c.running = false
	c.mu.Unlock()

	c.bus.Send(bus.Shutdown{})
	cancel()

	start := time.Now()
	select {
	case <-done:
		c.logger.Info("hive coordinator stopped", zap.Duration("took", time.Since(start)))
		return nil
	case <-ctx.Done():
		return types.NewTimeoutError("shutdown", time.Since(start)).WithCause(ctx.Err())
	}
}

// Running 后台进程是否在运行
func (c *Coordinator) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// every 按间隔运行 fn 直到 ctx 取消
func (c *Coordinator) every(ctx context.Context, g *errgroup.Group, name string, interval time.Duration, fn func(context.Context) error) {
	state := c.processes[name]
	g.Go(func() error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				err := fn(ctx)
				state.record(err)
				if err != nil && ctx.Err() == nil {
					c.logger.Warn("background process failed", zap.String("process", name), zap.Error(err))
				}
			}
		}
	})
}

// =============================================================================
// 🔁 后台进程
// =============================================================================

// distributeWork 为空闲 Agent 分派任务
func (c *Coordinator) distributeWork(ctx context.Context) error {
	if c.queue.Len() == 0 {
		return nil
	}
	if n := c.distributor.Distribute(ctx, c.registry.Agents(ctx)); n > 0 {
		c.touch()
	}
	return nil
}

// learn 每个 Agent 回放最近的经验强化模式权重
func (c *Coordinator) learn(ctx context.Context) error {
	replayed := 0
	for _, a := range c.registry.Agents(ctx) {
		if len(a.Memory.Experiences) == 0 {
			continue
		}
		_, err := c.registry.Modify(ctx, a.ID, func(a *agent.Agent) error {
			replayed += a.Reflect(c.config.LearningWindow)
			return nil
		})
		if err != nil && !types.IsCode(err, types.ErrNotFound) {
			return err
		}
	}
	if replayed > 0 {
		c.logger.Debug("learning cycle completed", zap.Int("experiences", replayed))
	}
	return nil
}

// coordinateSwarm 以本轮开始时的位置快照执行一步群集更新，空闲 Agent 同时恢复能量
func (c *Coordinator) coordinateSwarm(ctx context.Context) error {
	agents := c.registry.Agents(ctx)
	if len(agents) == 0 {
		return nil
	}
	center := agent.SwarmCenter(agents)
	for _, a := range agents {
		_, err := c.registry.Modify(ctx, a.ID, func(cur *agent.Agent) error {
			cur.UpdatePosition(center, agents)
			if cur.State == agent.StateIdle {
				cur.RestoreEnergy(c.config.IdleEnergyRecovery)
			}
			return nil
		})
		if err != nil && !types.IsCode(err, types.ErrNotFound) {
			return err
		}
	}
	return nil
}

// collectMetrics 汇总执行统计与 Agent 表现，写入历史并广播 MetricsUpdate
func (c *Coordinator) collectMetrics(ctx context.Context) error {
	perf := c.tracker.Performance()
	errorRate := 0.0
	if perf.TotalTasks > 0 {
		errorRate = float64(perf.FailedTasks) / float64(perf.TotalTasks) * 100
	}
	c.collector.UpdateTaskTiming(c.queue.Len(), perf.AverageExecutionTimeMs, errorRate)

	agents := c.registry.Agents(ctx)
	active := 0
	var fitness float64
	for _, a := range agents {
		fitness += a.Fitness()
		if a.State == agent.StateWorking {
			active++
		}
	}
	avg := 0.0
	if len(agents) > 0 {
		avg = fitness / float64(len(agents))
	}
	var top *uuid.UUID
	if best := c.registry.TopPerformers(1); len(best) > 0 {
		id := best[0].AgentID
		top = &id
	}
	c.collector.UpdateAgentPerformance(avg, top)
	snap := c.collector.CollectPeriodic()
	c.tracker.Cleanup(c.config.TrackerRetention)

	stats := c.queue.Stats()
	c.recorder.SetAgents(len(agents), active)
	c.recorder.SetQueue(stats.Legacy, stats.WorkStealing, stats.Utilization)
	for taskType, state := range c.distributor.Breakers().States() {
		c.recorder.SetBreakerState(taskType, int(state))
	}

	c.bus.Send(bus.MetricsUpdate{Metrics: map[string]float64{
		"total_agents":         float64(len(agents)),
		"active_agents":        float64(active),
		"pending_tasks":        float64(stats.Pending),
		"success_rate":         perf.SuccessRate,
		"average_execution_ms": perf.AverageExecutionTimeMs,
		"average_performance":  avg,
		"tasks_per_hour":       snap.Tasks.TasksPerHour,
	}})
	c.touch()
	return nil
}

// monitorResources 采样资源，越过阈值时广播 ResourceAlert
func (c *Coordinator) monitorResources(ctx context.Context) error {
	usage, alerts, err := c.monitor.Update(ctx)
	if err != nil {
		return err
	}
	c.collector.UpdateSystemMetrics(usage.CPU, usage.MemoryUsedMB)
	c.recorder.SetResourceUsage("cpu", usage.CPU)
	c.recorder.SetResourceUsage("memory", usage.Memory)
	for _, a := range alerts {
		c.recorder.RecordResourceAlert(a.Resource)
		c.bus.Send(bus.ResourceAlert{Resource: a.Resource, Usage: a.Usage})
		c.logger.Warn("resource usage over threshold",
			zap.String("resource", a.Resource),
			zap.Float64("usage", a.Usage))
	}
	return nil
}

// coordinate 消费协调器的总线订阅，把通知计入事件计数器
func (c *Coordinator) coordinate(ctx context.Context, sub *bus.Subscription) {
	state := c.processes[ProcessCoordination]
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-sub.C():
			if !ok {
				return
			}
			state.record(nil)
			c.collector.IncrementEvent(string(d.Message.Kind()))
			switch m := d.Message.(type) {
			case bus.TaskCompleted:
				c.collector.RecordTaskCompletion(m.TaskID, m.AgentID, m.Success)
				c.updateTrust(ctx, m)
			case bus.ResourceAlert:
				c.collector.IncrementEvent("resource_alert_" + m.Resource)
			case bus.Shutdown:
				c.logger.Debug("coordination loop received shutdown")
				return
			}
		}
	}
}

// updateTrust 执行者根据结果调整对其依赖任务执行者的信任度
func (c *Coordinator) updateTrust(ctx context.Context, m bus.TaskCompleted) {
	t, ok := c.distributor.Task(m.TaskID)
	if !ok || len(t.Dependencies) == 0 {
		return
	}
	peers := make([]uuid.UUID, 0, len(t.Dependencies))
	for _, dep := range t.Dependencies {
		d, ok := c.distributor.Task(dep)
		if !ok || d.AssignedAgent == nil || *d.AssignedAgent == m.AgentID {
			continue
		}
		peers = append(peers, *d.AssignedAgent)
	}
	if len(peers) == 0 {
		return
	}
	_, err := c.registry.Modify(ctx, m.AgentID, func(a *agent.Agent) error {
		for _, peer := range peers {
			a.UpdateSocialConnection(peer, m.Success)
		}
		return nil
	})
	if err != nil && !types.IsCode(err, types.ErrNotFound) {
		c.logger.Warn("failed to update social connections",
			zap.String("agent_id", m.AgentID.String()),
			zap.Error(err))
	}
}
