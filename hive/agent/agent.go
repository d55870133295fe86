package agent

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MaxExperiences 经验记录上限，超出时淘汰最旧记录
const MaxExperiences = 1000

// MaxEnergy 能量上限
const MaxEnergy = 100.0

// =============================================================================
// 🏷️ Agent 类型与状态
// =============================================================================

// Kind Agent 类型枚举
type Kind string

const (
	KindWorker      Kind = "worker"
	KindCoordinator Kind = "coordinator"
	KindSpecialist  Kind = "specialist"
	KindLearner     Kind = "learner"
)

// Type Agent 类型。Specialist 携带专业方向标签。
type Type struct {
	Kind           Kind   `json:"kind"`
	Specialization string `json:"specialization,omitempty"`
}

// Worker 等构造函数
func Worker() Type      { return Type{Kind: KindWorker} }
func Coordinator() Type { return Type{Kind: KindCoordinator} }
func Learner() Type     { return Type{Kind: KindLearner} }

// Specialist 创建带专业方向的类型
func Specialist(tag string) Type {
	return Type{Kind: KindSpecialist, Specialization: tag}
}

// String 返回类型名，Specialist 形如 "specialist(general)"
func (t Type) String() string {
	if t.Kind == KindSpecialist && t.Specialization != "" {
		return fmt.Sprintf("%s(%s)", t.Kind, t.Specialization)
	}
	return string(t.Kind)
}

// State Agent 生命周期状态
type State string

const (
	StateIdle          State = "idle"
	StateWorking       State = "working"
	StateLearning      State = "learning"
	StateCommunicating State = "communicating"
	StateFailed        State = "failed"
)

// =============================================================================
// 🧠 能力与记忆
// =============================================================================

// Capability 命名技能，Proficiency 与 LearningRate 始终位于 [0,1]
type Capability struct {
	Name         string  `json:"name"`
	Proficiency  float64 `json:"proficiency"`
	LearningRate float64 `json:"learning_rate"`
}

// NewCapability 创建能力并钳制数值
func NewCapability(name string, proficiency, learningRate float64) Capability {
	return Capability{
		Name:         name,
		Proficiency:  clamp(proficiency, 0, 1),
		LearningRate: clamp(learningRate, 0, 1),
	}
}

// Experience 一次任务执行留下的经验
type Experience struct {
	Timestamp      time.Time `json:"timestamp"`
	TaskType       string    `json:"task_type"`
	Success        bool      `json:"success"`
	Context        string    `json:"context,omitempty"`
	LearnedInsight string    `json:"learned_insight,omitempty"`
}

// Memory 经验历史、学习到的模式权重与社交信任表
type Memory struct {
	Experiences       []Experience          `json:"experiences"`
	LearnedPatterns   map[string]float64    `json:"learned_patterns"`
	SocialConnections map[uuid.UUID]float64 `json:"social_connections"`
}

func newMemory() Memory {
	return Memory{
		Experiences:       make([]Experience, 0),
		LearnedPatterns:   make(map[string]float64),
		SocialConnections: make(map[uuid.UUID]float64),
	}
}

// Position 二维蜂群坐标
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// =============================================================================
// 🤖 Agent
// =============================================================================

// Agent 自治工作单元。注册表是唯一权威来源，外部只持有克隆。
type Agent struct {
	ID           uuid.UUID    `json:"id"`
	Name         string       `json:"name"`
	Type         Type         `json:"type"`
	State        State        `json:"state"`
	Capabilities []Capability `json:"capabilities"`
	Memory       Memory       `json:"memory"`
	Position     Position     `json:"position"`
	Energy       float64      `json:"energy"`
	CreatedAt    time.Time    `json:"created_at"`
	LastActive   time.Time    `json:"last_active"`
}

// New 创建处于 idle 状态、满能量的 Agent
func New(name string, t Type) *Agent {
	now := time.Now().UTC()
	return &Agent{
		ID:           uuid.New(),
		Name:         name,
		Type:         t,
		State:        StateIdle,
		Capabilities: make([]Capability, 0),
		Memory:       newMemory(),
		Energy:       MaxEnergy,
		CreatedAt:    now,
		LastActive:   now,
	}
}

// AddCapability 追加能力，同名能力被替换
func (a *Agent) AddCapability(c Capability) {
	c = NewCapability(c.Name, c.Proficiency, c.LearningRate)
	for i := range a.Capabilities {
		if a.Capabilities[i].Name == c.Name {
			a.Capabilities[i] = c
			return
		}
	}
	a.Capabilities = append(a.Capabilities, c)
}

// Capability 按名称查找能力
func (a *Agent) Capability(name string) (Capability, bool) {
	for _, c := range a.Capabilities {
		if c.Name == name {
			return c, true
		}
	}
	return Capability{}, false
}

// Proficiency 返回能力熟练度
func (a *Agent) Proficiency(name string) (float64, bool) {
	c, ok := a.Capability(name)
	return c.Proficiency, ok
}

// AdjustProficiency 按增量调整熟练度，结果钳制到 [0,1]
func (a *Agent) AdjustProficiency(name string, delta float64) bool {
	for i := range a.Capabilities {
		if a.Capabilities[i].Name == name {
			a.Capabilities[i].Proficiency = clamp(a.Capabilities[i].Proficiency+delta, 0, 1)
			return true
		}
	}
	return false
}

// LearnFromExperience 记录经验并更新模式权重。
// 模式键为 "<task_type>_<success|failure>"，每次 ±0.1，钳制到 [-1,1]。
func (a *Agent) LearnFromExperience(exp Experience) {
	if exp.Timestamp.IsZero() {
		exp.Timestamp = time.Now().UTC()
	}
	a.Memory.Experiences = append(a.Memory.Experiences, exp)
	if over := len(a.Memory.Experiences) - MaxExperiences; over > 0 {
		a.Memory.Experiences = append([]Experience(nil), a.Memory.Experiences[over:]...)
	}
	a.reinforcePattern(exp)
	a.LastActive = time.Now().UTC()
}

// Reflect 回放最近的经验以强化模式权重，返回处理的经验数
func (a *Agent) Reflect(window int) int {
	n := len(a.Memory.Experiences)
	if window <= 0 || n == 0 {
		return 0
	}
	if window > n {
		window = n
	}
	for _, exp := range a.Memory.Experiences[n-window:] {
		a.reinforcePattern(exp)
	}
	return window
}

func (a *Agent) reinforcePattern(exp Experience) {
	if a.Memory.LearnedPatterns == nil {
		a.Memory.LearnedPatterns = make(map[string]float64)
	}
	outcome, sentiment := "failure", -1.0
	if exp.Success {
		outcome, sentiment = "success", 1.0
	}
	key := exp.TaskType + "_" + outcome
	a.Memory.LearnedPatterns[key] = clamp(a.Memory.LearnedPatterns[key]+sentiment*0.1, -1, 1)
}

// UpdateSocialConnection 调整对同伴的信任度，默认 0.5
func (a *Agent) UpdateSocialConnection(peer uuid.UUID, success bool) float64 {
	if a.Memory.SocialConnections == nil {
		a.Memory.SocialConnections = make(map[uuid.UUID]float64)
	}
	trust, ok := a.Memory.SocialConnections[peer]
	if !ok {
		trust = 0.5
	}
	if success {
		trust += 0.1
	} else {
		trust -= 0.1
	}
	trust = clamp(trust, 0, 1)
	a.Memory.SocialConnections[peer] = trust
	return trust
}

// ConsumeEnergy 消耗能量，下限为 0
func (a *Agent) ConsumeEnergy(amount float64) {
	a.Energy = clamp(a.Energy-amount, 0, MaxEnergy)
}

// RestoreEnergy 恢复能量，上限为 MaxEnergy
func (a *Agent) RestoreEnergy(amount float64) {
	a.Energy = clamp(a.Energy+amount, 0, MaxEnergy)
}

// AverageProficiency 所有能力的平均熟练度
func (a *Agent) AverageProficiency() float64 {
	if len(a.Capabilities) == 0 {
		return 0
	}
	var sum float64
	for _, c := range a.Capabilities {
		sum += c.Proficiency
	}
	return sum / float64(len(a.Capabilities))
}

// Fitness 综合熟练度与能量的适应度
func (a *Agent) Fitness() float64 {
	return a.AverageProficiency() * a.Energy / MaxEnergy
}

// Healthy 无能力或处于 failed 状态的 Agent 视为不健康
func (a *Agent) Healthy() bool {
	return len(a.Capabilities) > 0 && a.State != StateFailed
}

// Clone 深拷贝
func (a *Agent) Clone() *Agent {
	if a == nil {
		return nil
	}
	c := *a
	if a.Capabilities != nil {
		c.Capabilities = make([]Capability, len(a.Capabilities))
		copy(c.Capabilities, a.Capabilities)
	}
	if a.Memory.Experiences != nil {
		c.Memory.Experiences = make([]Experience, len(a.Memory.Experiences))
		copy(c.Memory.Experiences, a.Memory.Experiences)
	}
	if a.Memory.LearnedPatterns != nil {
		c.Memory.LearnedPatterns = make(map[string]float64, len(a.Memory.LearnedPatterns))
		for k, v := range a.Memory.LearnedPatterns {
			c.Memory.LearnedPatterns[k] = v
		}
	}
	if a.Memory.SocialConnections != nil {
		c.Memory.SocialConnections = make(map[uuid.UUID]float64, len(a.Memory.SocialConnections))
		for k, v := range a.Memory.SocialConnections {
			c.Memory.SocialConnections[k] = v
		}
	}
	return &c
}

// MarshalJSON 输出扁平的类型字段，便于 API 展示
func (t Type) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Kind           Kind   `json:"kind"`
		Specialization string `json:"specialization,omitempty"`
		Label          string `json:"label"`
	}{t.Kind, t.Specialization, t.String()})
}

// UnmarshalJSON 兼容 MarshalJSON 的输出
func (t *Type) UnmarshalJSON(data []byte) error {
	var raw struct {
		Kind           Kind   `json:"kind"`
		Specialization string `json:"specialization"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	t.Kind = Kind(strings.ToLower(string(raw.Kind)))
	t.Specialization = raw.Specialization
	return nil
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}
