package bus

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Kind 消息种类
type Kind string

const (
	KindAgentRegistered Kind = "agent_registered"
	KindAgentRemoved    Kind = "agent_removed"
	KindTaskCompleted   Kind = "task_completed"
	KindMetricsUpdate   Kind = "metrics_update"
	KindResourceAlert   Kind = "resource_alert"
	KindShutdown        Kind = "shutdown"
)

// Message 协调消息。封闭集合：只有本包内的类型实现它。
// 消息仅用于通知与观测，从不作为权威状态。
type Message interface {
	Kind() Kind
	sealed()
}

// AgentRegistered Agent 已注册
type AgentRegistered struct {
	AgentID uuid.UUID `json:"agent_id"`
}

// AgentRemoved Agent 已移除
type AgentRemoved struct {
	AgentID uuid.UUID `json:"agent_id"`
}

// TaskCompleted 一次任务执行结束（成功或失败）
type TaskCompleted struct {
	TaskID  uuid.UUID `json:"task_id"`
	AgentID uuid.UUID `json:"agent_id"`
	Success bool      `json:"success"`
}

// MetricsUpdate 周期性指标快照
type MetricsUpdate struct {
	Metrics map[string]float64 `json:"metrics"`
}

// ResourceAlert 资源使用越过阈值
type ResourceAlert struct {
	Resource string  `json:"resource"`
	Usage    float64 `json:"usage"`
}

// Shutdown 协调器停止
type Shutdown struct{}

func (AgentRegistered) Kind() Kind { return KindAgentRegistered }
func (AgentRemoved) Kind() Kind    { return KindAgentRemoved }
func (TaskCompleted) Kind() Kind   { return KindTaskCompleted }
func (MetricsUpdate) Kind() Kind   { return KindMetricsUpdate }
func (ResourceAlert) Kind() Kind   { return KindResourceAlert }
func (Shutdown) Kind() Kind        { return KindShutdown }

func (AgentRegistered) sealed() {}
func (AgentRemoved) sealed()    {}
func (TaskCompleted) sealed()   {}
func (MetricsUpdate) sealed()   {}
func (ResourceAlert) sealed()   {}
func (Shutdown) sealed()        {}

// Envelope 消息的 JSON 外层，用于事件流
type Envelope struct {
	Seq       uint64          `json:"seq"`
	Kind      Kind            `json:"kind"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// Delivery 投递给订阅者的消息
type Delivery struct {
	Seq       uint64
	Timestamp time.Time
	Message   Message
}

// Envelope 转换为 JSON 外层
func (d Delivery) Envelope() (Envelope, error) {
	payload, err := json.Marshal(d.Message)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		Seq:       d.Seq,
		Kind:      d.Message.Kind(),
		Timestamp: d.Timestamp,
		Payload:   payload,
	}, nil
}
