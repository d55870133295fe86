package agent

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/BaSui01/agenthive/types"
)

// DefaultLearningRate 请求未给出 learning_rate 时使用
const DefaultLearningRate = 0.1

// CapabilityRequest 创建请求中的能力描述
type CapabilityRequest struct {
	Name         string   `json:"name"`
	Proficiency  *float64 `json:"proficiency"`
	LearningRate *float64 `json:"learning_rate,omitempty"`
}

// CreateRequest Agent 创建请求（JSON 边界）
type CreateRequest struct {
	Type         string              `json:"type"`
	Name         string              `json:"name,omitempty"`
	Capabilities []CapabilityRequest `json:"capabilities,omitempty"`
}

// Spec 校验后的 Agent 配置，进入核心前的唯一形态
type Spec struct {
	Name         string
	Type         Type
	Capabilities []Capability
}

// ParseCreateRequest 解析并校验原始 JSON
func ParseCreateRequest(raw []byte) (Spec, error) {
	var req CreateRequest
	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(&req); err != nil {
		return Spec{}, types.NewValidationError("body", "Agent configuration must be an object").WithCause(err)
	}
	return req.Validate()
}

// ParseType 解析类型字符串，"specialist" 对应 Specialist("general")
func ParseType(s string) (Type, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Type{}, types.NewValidationError("type", "Agent type is required")
	}
	switch strings.ToLower(s) {
	case string(KindWorker):
		return Worker(), nil
	case string(KindCoordinator):
		return Coordinator(), nil
	case string(KindSpecialist):
		return Specialist("general"), nil
	case string(KindLearner):
		return Learner(), nil
	default:
		return Type{}, types.NewValidationError("type", fmt.Sprintf("Unknown agent type: %s", s))
	}
}

// Validate 校验请求并生成 Spec，任何错误都发生在状态变更之前
func (r CreateRequest) Validate() (Spec, error) {
	t, err := ParseType(r.Type)
	if err != nil {
		return Spec{}, err
	}

	spec := Spec{
		Name:         strings.TrimSpace(r.Name),
		Type:         t,
		Capabilities: make([]Capability, 0, len(r.Capabilities)),
	}
	if spec.Name == "" {
		spec.Name = string(t.Kind)
	}

	seen := make(map[string]struct{}, len(r.Capabilities))
	for i, c := range r.Capabilities {
		field := fmt.Sprintf("capabilities[%d]", i)
		name := strings.TrimSpace(c.Name)
		if name == "" {
			return Spec{}, types.NewValidationError(field+".name", "Capability name is required")
		}
		if _, dup := seen[name]; dup {
			return Spec{}, types.NewValidationError(field+".name", fmt.Sprintf("Duplicate capability: %s", name))
		}
		seen[name] = struct{}{}

		if c.Proficiency == nil {
			return Spec{}, types.NewValidationError(field+".proficiency", "Proficiency is required")
		}
		if !inUnitRange(*c.Proficiency) {
			return Spec{}, types.NewValidationError(field+".proficiency", "Proficiency must be between 0 and 1")
		}
		rate := DefaultLearningRate
		if c.LearningRate != nil {
			if !inUnitRange(*c.LearningRate) {
				return Spec{}, types.NewValidationError(field+".learning_rate", "Learning rate must be between 0 and 1")
			}
			rate = *c.LearningRate
		}
		spec.Capabilities = append(spec.Capabilities, NewCapability(name, *c.Proficiency, rate))
	}
	return spec, nil
}

// Build 根据 Spec 创建 Agent
func (s Spec) Build() *Agent {
	a := New(s.Name, s.Type)
	for _, c := range s.Capabilities {
		a.AddCapability(c)
	}
	return a
}

func inUnitRange(v float64) bool {
	return v >= 0 && v <= 1
}
