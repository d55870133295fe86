package hive

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/BaSui01/agenthive/hive/distributor"
	"github.com/BaSui01/agenthive/hive/task"
	"github.com/BaSui01/agenthive/types"
)

// Recorder 对外暴露的指标，由 internal/metrics.Collector 实现
type Recorder interface {
	RecordTaskExecution(taskType, status string, duration time.Duration)
	SetAgents(total, active int)
	SetQueue(legacy, workStealing int, utilizationPercent float64)
	SetBreakerState(taskType string, state int)
	SetResourceUsage(resource string, usage float64)
	RecordResourceAlert(resource string)
}

type nopRecorder struct{}

func (nopRecorder) RecordTaskExecution(string, string, time.Duration) {}
func (nopRecorder) SetAgents(int, int)                                {}
func (nopRecorder) SetQueue(int, int, float64)                        {}
func (nopRecorder) SetBreakerState(string, int)                       {}
func (nopRecorder) SetResourceUsage(string, float64)                  {}
func (nopRecorder) RecordResourceAlert(string)                        {}

// instrumented 在执行器外记录每次执行的结果类别与耗时
type instrumented struct {
	exec     distributor.Executor
	recorder Recorder
}

func (i instrumented) ExecuteWithVerification(ctx context.Context, t *task.Task, agentID uuid.UUID) task.ExecutionResult {
	res := i.exec.ExecuteWithVerification(ctx, t, agentID)
	i.recorder.RecordTaskExecution(t.Type, outcome(res), time.Duration(res.ExecutionTimeMs)*time.Millisecond)
	return res
}

func outcome(res task.ExecutionResult) string {
	switch {
	case res.Success:
		return "success"
	case types.IsCode(res.Err, types.ErrTimeout):
		return "timeout"
	case types.IsCode(res.Err, types.ErrValidation):
		return "rejected"
	default:
		return "failure"
	}
}
