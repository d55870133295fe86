package executor

import (
	"context"
	"encoding/json"
	"time"

	"github.com/BaSui01/agenthive/hive/agent"
	"github.com/BaSui01/agenthive/hive/task"
)

// Body 任务体。Run 在工作池的 goroutine 中执行，超时后结果被丢弃。
type Body interface {
	Run(ctx context.Context, t *task.Task, a *agent.Agent) (string, error)
}

// BodyFunc 函数适配器
type BodyFunc func(ctx context.Context, t *task.Task, a *agent.Agent) (string, error)

// Run 实现 Body
func (f BodyFunc) Run(ctx context.Context, t *task.Task, a *agent.Agent) (string, error) {
	return f(ctx, t, a)
}

// SimulatedBody 按任务类型模拟耗时的默认任务体
type SimulatedBody struct {
	// Durations 覆盖默认耗时，键为任务类型
	Durations map[string]time.Duration
}

var simulatedDurations = map[string]time.Duration{
	"computation": 100 * time.Millisecond,
	"io":          50 * time.Millisecond,
	"network":     200 * time.Millisecond,
}

var simulatedResults = map[string]map[string]any{
	"computation": {"result": "computation_complete", "value": 42},
	"io":          {"result": "io_complete", "bytes_processed": 1024},
	"network":     {"result": "network_complete", "requests_processed": 10},
}

const defaultSimulatedDuration = 75 * time.Millisecond

// Duration 返回任务类型对应的模拟耗时
func (b SimulatedBody) Duration(taskType string) time.Duration {
	if d, ok := b.Durations[taskType]; ok {
		return d
	}
	if d, ok := simulatedDurations[taskType]; ok {
		return d
	}
	return defaultSimulatedDuration
}

// Run 实现 Body，ctx 取消时提前返回
func (b SimulatedBody) Run(ctx context.Context, t *task.Task, a *agent.Agent) (string, error) {
	timer := time.NewTimer(b.Duration(t.Type))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-timer.C:
	}

	out := map[string]any{"result": "task_complete", "task_type": t.Type}
	for k, v := range simulatedResults[t.Type] {
		out[k] = v
	}
	out["agent_id"] = a.ID.String()
	out["task_id"] = t.ID.String()
	data, err := json.Marshal(out)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
