package hive

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/agenthive/hive/agent"
	"github.com/BaSui01/agenthive/hive/analytics"
	"github.com/BaSui01/agenthive/hive/checkpoint"
)

// HiveID 实现 checkpoint.Source
func (c *Coordinator) HiveID() uuid.UUID { return c.id }

// Snapshot 当前全部 Agent 与任务的副本
func (c *Coordinator) Snapshot(ctx context.Context) *checkpoint.Snapshot {
	return checkpoint.New(c.id, c.registry.Agents(ctx), c.distributor.Tasks())
}

// Restore 注册快照中尚不存在的 Agent 与任务。工作中的 Agent 恢复为空闲，
// 未结束的任务重新入队。单个条目失败不影响其余条目，错误合并返回。
func (c *Coordinator) Restore(ctx context.Context, snap *checkpoint.Snapshot) error {
	var errs []error
	agents, tasks := 0, 0

	for _, a := range snap.Agents {
		if _, ok := c.registry.Get(ctx, a.ID); ok {
			continue
		}
		if a.State == agent.StateWorking || a.State == agent.StateCommunicating {
			a.State = agent.StateIdle
		}
		id, err := c.registry.Register(ctx, a)
		if err != nil {
			errs = append(errs, fmt.Errorf("agent %s: %w", a.ID, err))
			continue
		}
		c.queue.RegisterAgent(id)
		c.collector.RecordAgentEvent(analytics.EventRegistered, id)
		agents++
	}

	for _, t := range snap.Tasks {
		if _, ok := c.distributor.Task(t.ID); ok {
			continue
		}
		if err := c.distributor.Restore(t); err != nil {
			errs = append(errs, fmt.Errorf("task %s: %w", t.ID, err))
			continue
		}
		if err := c.index.Index(t); err != nil {
			c.logger.Warn("failed to index restored task", zap.String("task_id", t.ID.String()), zap.Error(err))
		}
		tasks++
	}

	c.touch()
	c.logger.Info("hive state restored",
		zap.String("checkpoint_id", snap.ID.String()),
		zap.Int("agents", agents),
		zap.Int("tasks", tasks),
		zap.Int("errors", len(errs)))
	return errors.Join(errs...)
}
