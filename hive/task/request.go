package task

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/BaSui01/agenthive/types"
)

// RequirementRequest 创建请求中的能力要求
type RequirementRequest struct {
	Name           string   `json:"name"`
	MinProficiency *float64 `json:"min_proficiency"`
}

// CreateRequest 任务创建请求（JSON 边界）
type CreateRequest struct {
	Title                string               `json:"title,omitempty"`
	Description          string               `json:"description"`
	Type                 string               `json:"type"`
	Priority             string               `json:"priority,omitempty"`
	RequiredCapabilities []RequirementRequest `json:"required_capabilities,omitempty"`
	AssignedAgent        string               `json:"assigned_agent,omitempty"`
	Deadline             *time.Time           `json:"deadline,omitempty"`
	EstimatedDurationSec int64                `json:"estimated_duration,omitempty"`
	Dependencies         []string             `json:"dependencies,omitempty"`
	Context              map[string]string    `json:"context,omitempty"`
}

// ParseCreateRequest 解析并校验原始 JSON，返回尚未入队的任务
func ParseCreateRequest(raw []byte) (*Task, error) {
	var req CreateRequest
	if err := json.NewDecoder(bytes.NewReader(raw)).Decode(&req); err != nil {
		return nil, types.NewValidationError("body", "Task configuration must be an object").WithCause(err)
	}
	return req.Build()
}

// Build 校验请求并创建任务，所有错误都发生在状态变更之前
func (r CreateRequest) Build() (*Task, error) {
	description := strings.TrimSpace(r.Description)
	if description == "" {
		return nil, types.NewValidationError("description", "Task description is required")
	}
	taskType := strings.TrimSpace(r.Type)
	if taskType == "" {
		return nil, types.NewValidationError("type", "Task type is required")
	}

	priority := PriorityMedium
	if r.Priority != "" {
		p, err := ParsePriority(r.Priority)
		if err != nil {
			return nil, err
		}
		priority = p
	}

	reqs := make([]Requirement, 0, len(r.RequiredCapabilities))
	for i, rc := range r.RequiredCapabilities {
		field := fmt.Sprintf("required_capabilities[%d]", i)
		name := strings.TrimSpace(rc.Name)
		if name == "" {
			return nil, types.NewValidationError(field+".name", "Capability name is required")
		}
		if rc.MinProficiency == nil {
			return nil, types.NewValidationError(field+".min_proficiency", "Minimum proficiency is required")
		}
		if *rc.MinProficiency < 0 || *rc.MinProficiency > 1 {
			return nil, types.NewValidationError(field+".min_proficiency", "Minimum proficiency must be between 0 and 1")
		}
		reqs = append(reqs, Requirement{Name: name, MinimumProficiency: *rc.MinProficiency})
	}

	var assigned *uuid.UUID
	if r.AssignedAgent != "" {
		id, err := uuid.Parse(r.AssignedAgent)
		if err != nil {
			return nil, types.NewValidationError("assigned_agent", "Invalid agent id").WithCause(err)
		}
		assigned = &id
	}

	deps := make([]uuid.UUID, 0, len(r.Dependencies))
	for i, d := range r.Dependencies {
		id, err := uuid.Parse(d)
		if err != nil {
			return nil, types.NewValidationError(fmt.Sprintf("dependencies[%d]", i), "Invalid task id").WithCause(err)
		}
		deps = append(deps, id)
	}

	if r.EstimatedDurationSec < 0 {
		return nil, types.NewValidationError("estimated_duration", "Estimated duration must not be negative")
	}

	title := strings.TrimSpace(r.Title)
	if title == "" {
		title = truncate(description, 64)
	}

	t := New(title, description, taskType, priority, reqs)
	t.AssignedAgent = assigned
	t.Deadline = r.Deadline
	t.EstimatedDuration = time.Duration(r.EstimatedDurationSec) * time.Second
	if len(deps) > 0 {
		t.Dependencies = deps
	}
	for k, v := range r.Context {
		t.Context[k] = v
	}
	return t, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
