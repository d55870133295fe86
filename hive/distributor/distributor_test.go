package distributor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/agenthive/hive/agent"
	"github.com/BaSui01/agenthive/hive/analytics"
	"github.com/BaSui01/agenthive/hive/executor"
	"github.com/BaSui01/agenthive/hive/queue"
	"github.com/BaSui01/agenthive/hive/registry"
	"github.com/BaSui01/agenthive/hive/task"
	"github.com/BaSui01/agenthive/types"
)

type execFunc func(ctx context.Context, t *task.Task, agentID uuid.UUID) task.ExecutionResult

func (f execFunc) ExecuteWithVerification(ctx context.Context, t *task.Task, agentID uuid.UUID) task.ExecutionResult {
	return f(ctx, t, agentID)
}

func succeed() execFunc {
	return func(ctx context.Context, t *task.Task, agentID uuid.UUID) task.ExecutionResult {
		return task.ExecutionResult{TaskID: t.ID, AgentID: agentID, TaskType: t.Type, Success: true, ExecutionTimeMs: 1}
	}
}

func failWith(err error) execFunc {
	return func(ctx context.Context, t *task.Task, agentID uuid.UUID) task.ExecutionResult {
		return task.ExecutionResult{TaskID: t.ID, AgentID: agentID, TaskType: t.Type, ErrorMessage: err.Error(), Err: err}
	}
}

func idleAgents(n int) []*agent.Agent {
	out := make([]*agent.Agent, n)
	for i := range out {
		out[i] = agent.New("w", agent.Worker())
	}
	return out
}

func newTask(title, taskType string) *task.Task {
	return task.New(title, title, taskType, task.PriorityMedium, nil)
}

func newDistributor(cfg Config, exec Executor, opts ...Option) *Distributor {
	q := queue.New(queue.DefaultConfig(), zap.NewNop())
	return New(cfg, q, exec, zap.NewNop(), opts...)
}

// =============================================================================
// 🧪 分发测试
// =============================================================================

func TestDistribute_NothingToDo(t *testing.T) {
	d := newDistributor(DefaultConfig(), succeed())
	assert.Zero(t, d.Distribute(context.Background(), idleAgents(3)))

	tk := newTask("a", "io")
	require.NoError(t, d.Enqueue(tk))
	busy := agent.New("busy", agent.Worker())
	busy.State = agent.StateWorking
	assert.Zero(t, d.Distribute(context.Background(), []*agent.Agent{busy}))

	got, ok := d.Task(tk.ID)
	require.True(t, ok)
	assert.Equal(t, task.StatusPending, got.Status)
	assert.Equal(t, 1, d.Stats().Pending)
}

func TestDistribute_SuccessLifecycle(t *testing.T) {
	tracker := analytics.NewTracker(0, zap.NewNop())
	d := newDistributor(DefaultConfig(), succeed(), WithTracker(tracker))
	tk := newTask("a", "io")
	require.NoError(t, d.Enqueue(tk))

	assert.Equal(t, 1, d.Distribute(context.Background(), idleAgents(2)))

	got, _ := d.Task(tk.ID)
	assert.Equal(t, task.StatusCompleted, got.Status)
	assert.Equal(t, []task.Status{
		task.StatusPending, task.StatusAssigned, task.StatusRunning, task.StatusCompleted,
	}, got.Statuses())
	assert.Equal(t, 1, got.Attempts)
	require.NotNil(t, got.AssignedAgent)

	m, ok := tracker.TaskMetrics(tk.ID)
	require.True(t, ok)
	assert.Equal(t, task.StatusCompleted, m.Status)
	assert.Equal(t, 1, m.Attempts)
	assert.Equal(t, int64(1), d.Stats().Completed)
}

func TestDistribute_RunsConcurrentlyUpToLimit(t *testing.T) {
	entered := make(chan struct{}, 10)
	release := make(chan struct{})
	exec := execFunc(func(ctx context.Context, t *task.Task, agentID uuid.UUID) task.ExecutionResult {
		entered <- struct{}{}
		<-release
		return succeed()(ctx, t, agentID)
	})
	cfg := DefaultConfig()
	cfg.MaxConcurrent = 3
	d := newDistributor(cfg, exec)
	for i := 0; i < 10; i++ {
		require.NoError(t, d.Enqueue(newTask("t", "io")))
	}

	done := make(chan int, 1)
	go func() { done <- d.Distribute(context.Background(), idleAgents(5)) }()

	for i := 0; i < 3; i++ {
		select {
		case <-entered:
		case <-time.After(2 * time.Second):
			t.Fatalf("only %d executions started concurrently", i)
		}
	}
	close(release)
	assert.Equal(t, 3, <-done)
	assert.Equal(t, 7, d.Stats().Pending)
}

func TestDistribute_DependenciesHoldBack(t *testing.T) {
	d := newDistributor(DefaultConfig(), succeed())
	parent := newTask("parent", "io")
	child := newTask("child", "io")
	child.Dependencies = []uuid.UUID{parent.ID}
	require.NoError(t, d.Enqueue(parent))
	require.NoError(t, d.Enqueue(child))

	agents := idleAgents(2)
	assert.Equal(t, 1, d.Distribute(context.Background(), agents))
	got, _ := d.Task(child.ID)
	assert.Equal(t, task.StatusPending, got.Status)

	assert.Equal(t, 1, d.Distribute(context.Background(), agents))
	got, _ = d.Task(child.ID)
	assert.Equal(t, task.StatusCompleted, got.Status)
}

func TestDequeueNext(t *testing.T) {
	d := newDistributor(DefaultConfig(), succeed())
	assert.Nil(t, d.DequeueNext())

	parent := newTask("parent", "io")
	blocked := newTask("blocked", "io")
	blocked.Dependencies = []uuid.UUID{parent.ID}
	free := newTask("free", "io")
	require.NoError(t, d.Enqueue(parent))
	require.NoError(t, d.Enqueue(blocked))
	require.NoError(t, d.Enqueue(free))

	got := d.DequeueNext()
	require.NotNil(t, got)
	assert.Equal(t, parent.ID, got.ID)

	// parent 仅出队未执行，blocked 仍需等待
	got = d.DequeueNext()
	require.NotNil(t, got)
	assert.Equal(t, free.ID, got.ID)
	assert.Nil(t, d.DequeueNext())
}

// =============================================================================
// 🧪 依赖测试
// =============================================================================

func TestEnqueue_RejectsInvalidDependencies(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxRetryAttempts = 0
	d := newDistributor(cfg, failWith(errors.New("boom")))

	orphan := newTask("orphan", "io")
	orphan.Dependencies = []uuid.UUID{uuid.New()}
	err := d.Enqueue(orphan)
	assert.True(t, types.IsCode(err, types.ErrValidation))
	assert.Contains(t, err.Error(), "unknown dependency")

	self := newTask("self", "io")
	self.Dependencies = []uuid.UUID{self.ID}
	assert.True(t, types.IsCode(d.Enqueue(self), types.ErrValidation))

	parent := newTask("parent", "io")
	require.NoError(t, d.Enqueue(parent))
	d.Distribute(context.Background(), idleAgents(1))
	got, _ := d.Task(parent.ID)
	require.Equal(t, task.StatusFailed, got.Status)

	late := newTask("late", "io")
	late.Dependencies = []uuid.UUID{parent.ID}
	err = d.Enqueue(late)
	assert.True(t, types.IsCode(err, types.ErrValidation))
	assert.Contains(t, err.Error(), "already failed")

	assert.Len(t, d.Tasks(), 1)
	assert.Zero(t, d.Stats().Pending)
}

func TestDistribute_FailedDependencyFailsDependents(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxRetryAttempts = 1
	exec := execFunc(func(ctx context.Context, t *task.Task, agentID uuid.UUID) task.ExecutionResult {
		if t.Type == "bad" {
			return failWith(errors.New("boom"))(ctx, t, agentID)
		}
		return succeed()(ctx, t, agentID)
	})
	tracker := analytics.NewTracker(0, zap.NewNop())
	d := newDistributor(cfg, exec, WithTracker(tracker))

	parent := newTask("parent", "bad")
	child := newTask("child", "io")
	child.Dependencies = []uuid.UUID{parent.ID}
	grandchild := newTask("grandchild", "io")
	grandchild.Dependencies = []uuid.UUID{child.ID}
	unrelated := newTask("unrelated", "io")
	for _, tk := range []*task.Task{parent, child, grandchild, unrelated} {
		require.NoError(t, d.Enqueue(tk))
	}

	assert.Equal(t, 2, d.Distribute(context.Background(), idleAgents(4)))

	for _, id := range []uuid.UUID{parent.ID, child.ID, grandchild.ID} {
		got, _ := d.Task(id)
		assert.Equal(t, task.StatusFailed, got.Status, got.Title)
	}
	got, _ := d.Task(child.ID)
	assert.Equal(t, "dependency failed: "+parent.ID.String(), got.LastError)
	assert.Zero(t, got.Attempts)
	got, _ = d.Task(grandchild.ID)
	assert.Equal(t, "dependency failed: "+child.ID.String(), got.LastError)
	got, _ = d.Task(unrelated.ID)
	assert.Equal(t, task.StatusCompleted, got.Status)

	st := d.Stats()
	assert.Zero(t, st.Pending)
	assert.Equal(t, int64(3), st.Failed)
	m, ok := tracker.TaskMetrics(grandchild.ID)
	require.True(t, ok)
	assert.Equal(t, task.StatusFailed, m.Status)
}

func TestStats_Overdue(t *testing.T) {
	d := newDistributor(DefaultConfig(), succeed())
	past := time.Now().Add(-time.Minute)
	future := time.Now().Add(time.Hour)

	late := newTask("late", "io")
	late.Deadline = &past
	onTime := newTask("on-time", "io")
	onTime.Deadline = &future
	require.NoError(t, d.Enqueue(late))
	require.NoError(t, d.Enqueue(onTime))
	assert.Equal(t, 1, d.Stats().Overdue)

	d.Distribute(context.Background(), idleAgents(2))
	assert.Zero(t, d.Stats().Overdue, "completed tasks are not overdue")
}

// =============================================================================
// 🧪 重试测试
// =============================================================================

func TestDistribute_BoundedRetry(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Breaker.FailureThreshold = 100
	var mu sync.Mutex
	calls := 0
	exec := execFunc(func(ctx context.Context, t *task.Task, agentID uuid.UUID) task.ExecutionResult {
		mu.Lock()
		calls++
		mu.Unlock()
		return failWith(errors.New("boom"))(ctx, t, agentID)
	})
	d := newDistributor(cfg, exec)
	tk := newTask("a", "io")
	require.NoError(t, d.Enqueue(tk))

	agents := idleAgents(1)
	for i := 0; i < 5; i++ {
		d.Distribute(context.Background(), agents)
	}

	got, _ := d.Task(tk.ID)
	assert.Equal(t, task.StatusFailed, got.Status)
	assert.Equal(t, cfg.MaxRetryAttempts, got.Attempts)
	assert.Equal(t, "boom", got.LastError)
	assert.Contains(t, got.Statuses(), task.StatusRetrying)
	assert.Equal(t, cfg.MaxRetryAttempts, calls)

	st := d.Stats()
	assert.Equal(t, int64(1), st.Failed)
	assert.Equal(t, int64(cfg.MaxRetryAttempts-1), st.Retried)
	assert.Zero(t, st.Pending)
}

func TestNew_RetryAttempts(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxRetryAttempts = 0
	assert.Zero(t, newDistributor(cfg, succeed()).config.MaxRetryAttempts)

	cfg.MaxRetryAttempts = -1
	assert.Equal(t, DefaultConfig().MaxRetryAttempts, newDistributor(cfg, succeed()).config.MaxRetryAttempts)
}

func TestDistribute_ZeroRetryAttemptsRunsOnce(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxRetryAttempts = 0
	var mu sync.Mutex
	calls := 0
	exec := execFunc(func(ctx context.Context, t *task.Task, agentID uuid.UUID) task.ExecutionResult {
		mu.Lock()
		calls++
		mu.Unlock()
		return failWith(errors.New("boom"))(ctx, t, agentID)
	})
	d := newDistributor(cfg, exec)
	tk := newTask("a", "io")
	require.NoError(t, d.Enqueue(tk))

	agents := idleAgents(1)
	assert.Equal(t, 1, d.Distribute(context.Background(), agents))
	assert.Zero(t, d.Distribute(context.Background(), agents))

	got, _ := d.Task(tk.ID)
	assert.Equal(t, task.StatusFailed, got.Status)
	assert.Equal(t, 1, got.Attempts)
	assert.NotContains(t, got.Statuses(), task.StatusRetrying)
	assert.Equal(t, 1, calls)
	assert.Zero(t, d.Stats().Retried)
}

func TestDistribute_VerificationFailureRequeuesOnce(t *testing.T) {
	exec := failWith(types.NewValidationError("agent_capabilities", "missing"))
	d := newDistributor(DefaultConfig(), exec)
	pinnedTo := uuid.New()
	tk := newTask("a", "io")
	tk.AssignedAgent = &pinnedTo
	require.NoError(t, d.Enqueue(tk))

	agents := idleAgents(1)
	assert.Equal(t, 1, d.Distribute(context.Background(), agents))
	got, _ := d.Task(tk.ID)
	assert.Equal(t, task.StatusRetrying, got.Status)
	assert.Nil(t, got.AssignedAgent, "not tied to the agent that failed verification")
	assert.Equal(t, 1, got.Attempts)

	assert.Equal(t, 1, d.Distribute(context.Background(), agents))
	got, _ = d.Task(tk.ID)
	assert.Equal(t, task.StatusFailed, got.Status)
	assert.Equal(t, 2, got.Attempts)

	st := d.Stats()
	assert.Equal(t, int64(1), st.VerificationRequeues)
	assert.Equal(t, BreakerClosed, st.Breakers["io"], "verification failures do not trip the breaker")
}

func TestDistribute_RequeueRejectedFailsPermanently(t *testing.T) {
	q := queue.New(queue.Config{Capacity: 1}, zap.NewNop())
	var d *Distributor
	filler := newTask("filler", "other")
	exec := execFunc(func(ctx context.Context, tk *task.Task, agentID uuid.UUID) task.ExecutionResult {
		// 执行期间队列被占满
		assert.NoError(t, d.Enqueue(filler))
		return failWith(errors.New("boom"))(ctx, tk, agentID)
	})
	d = New(DefaultConfig(), q, exec, zap.NewNop())

	tk := newTask("a", "io")
	require.NoError(t, d.Enqueue(tk))
	assert.Equal(t, 1, d.Distribute(context.Background(), idleAgents(1)))

	got, _ := d.Task(tk.ID)
	assert.Equal(t, task.StatusFailed, got.Status)
	assert.True(t, types.IsCode(d.Enqueue(newTask("late", "io")), types.ErrResourceExhausted))
	assert.Equal(t, int64(1), d.Stats().Failed)
	assert.Equal(t, int64(1), d.Stats().Rejected)
}

func TestEnqueue_Duplicate(t *testing.T) {
	d := newDistributor(DefaultConfig(), succeed())
	tk := newTask("a", "io")
	require.NoError(t, d.Enqueue(tk))
	assert.True(t, types.IsCode(d.Enqueue(tk), types.ErrValidation))
	assert.Len(t, d.Tasks(), 1)
}

// =============================================================================
// 🧪 熔断测试
// =============================================================================

func TestDistribute_CircuitBreakerHoldsType(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxRetryAttempts = 10
	cfg.Breaker.FailureThreshold = 2
	cfg.Breaker.RecoveryTimeout = time.Hour
	exec := execFunc(func(ctx context.Context, t *task.Task, agentID uuid.UUID) task.ExecutionResult {
		if t.Type == "flaky" {
			return failWith(errors.New("flaky"))(ctx, t, agentID)
		}
		return succeed()(ctx, t, agentID)
	})

	events := make(chan BreakerEvent, 4)
	d := newDistributor(cfg, exec, WithBreakerEvents(BreakerEventFunc(func(e BreakerEvent) { events <- e })))
	require.NoError(t, d.Enqueue(newTask("f1", "flaky")))
	require.NoError(t, d.Enqueue(newTask("f2", "flaky")))

	agents := idleAgents(2)
	assert.Equal(t, 2, d.Distribute(context.Background(), agents))
	assert.Equal(t, BreakerOpen, d.Breakers().GetOrCreate("flaky").State())

	select {
	case e := <-events:
		assert.Equal(t, "flaky", e.TaskType)
		assert.Equal(t, BreakerOpen, e.NewState)
	case <-time.After(time.Second):
		t.Fatal("no breaker event")
	}

	// 熔断期间该类型任务留在队列中，其他类型照常
	assert.Zero(t, d.Distribute(context.Background(), agents))
	assert.Equal(t, 2, d.Stats().Pending)

	ok := newTask("ok", "io")
	require.NoError(t, d.Enqueue(ok))
	assert.Equal(t, 1, d.Distribute(context.Background(), agents))
	got, _ := d.Task(ok.ID)
	assert.Equal(t, task.StatusCompleted, got.Status)

	d.Breakers().ResetAll()
	assert.Equal(t, BreakerClosed, d.Stats().Breakers["flaky"])
}

func TestDistribute_VerificationFailuresKeepHalfOpenUsable(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxRetryAttempts = 1
	cfg.Breaker = BreakerConfig{
		FailureThreshold:           5,
		RecoveryTimeout:            time.Minute,
		HalfOpenMaxProbes:          3,
		SuccessThresholdInHalfOpen: 2,
	}
	exec := execFunc(func(ctx context.Context, t *task.Task, agentID uuid.UUID) task.ExecutionResult {
		if t.Title == "unqualified" {
			return failWith(types.NewValidationError("agent_capabilities", "missing"))(ctx, t, agentID)
		}
		return succeed()(ctx, t, agentID)
	})
	d := newDistributor(cfg, exec)

	now := time.Now()
	b := d.Breakers().GetOrCreate("x")
	b.now = func() time.Time { return now }
	for i := 0; i < 5; i++ {
		b.RecordFailure()
	}
	require.Equal(t, BreakerOpen, b.State())

	now = now.Add(time.Minute)
	for i := 0; i < 3; i++ {
		require.NoError(t, d.Enqueue(newTask("unqualified", "x")))
	}
	assert.Equal(t, 3, d.Distribute(context.Background(), idleAgents(3)))
	assert.Equal(t, BreakerHalfOpen, b.State())
	assert.True(t, b.Permits(), "verification failures return their probes")

	now = now.Add(time.Hour)
	ok := newTask("ok", "x")
	require.NoError(t, d.Enqueue(ok))
	assert.Equal(t, 1, d.Distribute(context.Background(), idleAgents(1)))

	got, _ := d.Task(ok.ID)
	assert.Equal(t, task.StatusCompleted, got.Status)
}

func TestRestore(t *testing.T) {
	d := newDistributor(DefaultConfig(), succeed())

	interrupted := newTask("running", "io")
	require.NoError(t, interrupted.Transition(task.StatusAssigned))
	require.NoError(t, interrupted.Transition(task.StatusRunning))
	done := newTask("done", "io")
	done.Status = task.StatusCompleted

	require.NoError(t, d.Restore(interrupted))
	require.NoError(t, d.Restore(done))

	assert.Equal(t, 1, d.Stats().Pending)
	got, _ := d.Task(interrupted.ID)
	assert.Equal(t, task.StatusRetrying, got.Status)
	assert.Len(t, d.Tasks(), 2)
	assert.Equal(t, interrupted.ID, d.Tasks()[0].ID)
}

func TestRestore_DependentBeforeFailedParent(t *testing.T) {
	d := newDistributor(DefaultConfig(), succeed())

	parent := newTask("parent", "io")
	parent.Status = task.StatusFailed
	child := newTask("child", "io")
	child.Dependencies = []uuid.UUID{parent.ID}

	require.NoError(t, d.Restore(child))
	assert.Equal(t, 1, d.Stats().Pending)
	require.NoError(t, d.Restore(parent))

	got, _ := d.Task(child.ID)
	assert.Equal(t, task.StatusFailed, got.Status)
	assert.Zero(t, d.Stats().Pending)
}

// =============================================================================
// 🧪 端到端测试
// =============================================================================

func TestDistribute_WithExecutorAndRegistry(t *testing.T) {
	ctx := context.Background()
	reg := registry.New(nil, zap.NewNop())
	a := agent.New("coder", agent.Specialist("go"))
	a.AddCapability(agent.NewCapability("golang", 0.8, 0.2))
	id, err := reg.Register(ctx, a)
	require.NoError(t, err)

	body := executor.BodyFunc(func(ctx context.Context, t *task.Task, a *agent.Agent) (string, error) {
		return "ok", nil
	})
	exec := executor.New(executor.DefaultConfig(), reg, nil, zap.NewNop(), executor.WithBody(body))
	t.Cleanup(exec.Close)

	tracker := analytics.NewTracker(0, zap.NewNop())
	d := newDistributor(DefaultConfig(), exec, WithTracker(tracker), WithPerformanceRecorder(reg))

	tk := task.New("build", "compile", "computation", task.PriorityHigh,
		[]task.Requirement{{Name: "golang", MinimumProficiency: 0.5}})
	require.NoError(t, d.Enqueue(tk))

	assert.Equal(t, 1, d.Distribute(ctx, reg.Agents(ctx)))

	got, _ := d.Task(tk.ID)
	assert.Equal(t, task.StatusCompleted, got.Status)
	assert.Equal(t, id, *got.AssignedAgent)

	m, ok := reg.Metrics(id)
	require.True(t, ok)
	assert.Equal(t, int64(1), m.TasksCompleted)
	assert.Equal(t, int64(1), tracker.Performance().SuccessfulTasks)
}
