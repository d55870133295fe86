package task

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/BaSui01/agenthive/types"
)

// =============================================================================
// 🎯 优先级
// =============================================================================

// Priority 任务优先级，数值越大越优先
type Priority int

const (
	PriorityLow Priority = iota
	PriorityMedium
	PriorityHigh
	PriorityCritical
)

var priorityNames = map[Priority]string{
	PriorityLow:      "low",
	PriorityMedium:   "medium",
	PriorityHigh:     "high",
	PriorityCritical: "critical",
}

func (p Priority) String() string {
	if s, ok := priorityNames[p]; ok {
		return s
	}
	return "unknown"
}

// ParsePriority 解析小写优先级名称
func ParsePriority(s string) (Priority, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return PriorityLow, nil
	case "medium":
		return PriorityMedium, nil
	case "high":
		return PriorityHigh, nil
	case "critical":
		return PriorityCritical, nil
	default:
		return PriorityLow, types.NewValidationError("priority", fmt.Sprintf("Unknown priority: %s", s))
	}
}

// MarshalJSON 输出小写名称
func (p Priority) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

// UnmarshalJSON 解析小写名称
func (p *Priority) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	v, err := ParsePriority(s)
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// =============================================================================
// 🔄 状态机
// =============================================================================

// Status 任务状态
type Status string

const (
	StatusPending   Status = "pending"
	StatusAssigned  Status = "assigned"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusRetrying  Status = "retrying"
)

// validTransitions 合法的状态转换，Completed 为终态
var validTransitions = map[Status][]Status{
	StatusPending:   {StatusAssigned, StatusFailed},
	StatusAssigned:  {StatusRunning, StatusFailed},
	StatusRunning:   {StatusCompleted, StatusFailed},
	StatusFailed:    {StatusRetrying},
	StatusRetrying:  {StatusAssigned, StatusFailed},
	StatusCompleted: {},
}

// CanTransition 检查状态转换是否合法
func CanTransition(from, to Status) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal 已完成的任务不会再变化
func (s Status) IsTerminal() bool {
	return s == StatusCompleted
}

// =============================================================================
// 📋 任务
// =============================================================================

// Requirement 任务所需能力
type Requirement struct {
	Name               string  `json:"name"`
	MinimumProficiency float64 `json:"min_proficiency"`
}

// Transition 状态历史中的一条记录
type Transition struct {
	Status Status    `json:"status"`
	At     time.Time `json:"at"`
}

// Task 工作单元。待执行队列与分发器是唯一的所有者。
type Task struct {
	ID                   uuid.UUID         `json:"id"`
	Title                string            `json:"title"`
	Description          string            `json:"description"`
	Type                 string            `json:"type"`
	Priority             Priority          `json:"priority"`
	Status               Status            `json:"status"`
	RequiredCapabilities []Requirement     `json:"required_capabilities"`
	AssignedAgent        *uuid.UUID        `json:"assigned_agent,omitempty"`
	Deadline             *time.Time        `json:"deadline,omitempty"`
	EstimatedDuration    time.Duration     `json:"estimated_duration,omitempty"`
	Context              map[string]string `json:"context,omitempty"`
	Dependencies         []uuid.UUID       `json:"dependencies,omitempty"`
	Attempts             int               `json:"attempts"`
	LastError            string            `json:"last_error,omitempty"`
	CreatedAt            time.Time         `json:"created_at"`
	UpdatedAt            time.Time         `json:"updated_at"`
	History              []Transition      `json:"history"`
}

// New 创建 pending 状态的任务
func New(title, description, taskType string, priority Priority, reqs []Requirement) *Task {
	now := time.Now().UTC()
	if reqs == nil {
		reqs = make([]Requirement, 0)
	}
	return &Task{
		ID:                   uuid.New(),
		Title:                title,
		Description:          description,
		Type:                 taskType,
		Priority:             priority,
		Status:               StatusPending,
		RequiredCapabilities: reqs,
		Context:              make(map[string]string),
		CreatedAt:            now,
		UpdatedAt:            now,
		History:              []Transition{{Status: StatusPending, At: now}},
	}
}

// Transition 执行状态转换，非法转换返回 INVALID_TRANSITION
func (t *Task) Transition(to Status) error {
	if !CanTransition(t.Status, to) {
		return types.NewError(types.ErrInvalidTransition,
			fmt.Sprintf("invalid task transition: %s -> %s", t.Status, to))
	}
	now := time.Now().UTC()
	t.Status = to
	t.UpdatedAt = now
	t.History = append(t.History, Transition{Status: to, At: now})
	return nil
}

// Statuses 状态历史序列
func (t *Task) Statuses() []Status {
	out := make([]Status, len(t.History))
	for i, h := range t.History {
		out[i] = h.Status
	}
	return out
}

// Overdue 截止时间已过且仍在处理中
func (t *Task) Overdue(now time.Time) bool {
	if t.Deadline == nil || t.Status == StatusCompleted || t.Status == StatusFailed {
		return false
	}
	return now.After(*t.Deadline)
}

// Clone 深拷贝
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	c := *t
	c.RequiredCapabilities = append([]Requirement(nil), t.RequiredCapabilities...)
	c.Dependencies = append([]uuid.UUID(nil), t.Dependencies...)
	c.History = append([]Transition(nil), t.History...)
	if t.AssignedAgent != nil {
		id := *t.AssignedAgent
		c.AssignedAgent = &id
	}
	if t.Deadline != nil {
		d := *t.Deadline
		c.Deadline = &d
	}
	c.Context = make(map[string]string, len(t.Context))
	for k, v := range t.Context {
		c.Context[k] = v
	}
	return &c
}

// =============================================================================
// 📊 执行结果
// =============================================================================

// ExecutionResult 单次执行的不可变结果
type ExecutionResult struct {
	TaskID          uuid.UUID `json:"task_id"`
	AgentID         uuid.UUID `json:"agent_id"`
	TaskType        string    `json:"task_type"`
	Success         bool      `json:"success"`
	ExecutionTimeMs int64     `json:"execution_time_ms"`
	Output          string    `json:"output,omitempty"`
	ErrorMessage    string    `json:"error_message,omitempty"`
	Err             error     `json:"-"`
	CompletedAt     time.Time `json:"completed_at"`
}
