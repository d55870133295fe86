package checkpoint

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/BaSui01/agenthive/hive/agent"
	"github.com/BaSui01/agenthive/hive/task"
	"github.com/BaSui01/agenthive/types"
)

// Snapshot 蜂巢在某一时刻的 Agent 与任务
type Snapshot struct {
	ID        uuid.UUID      `json:"id"`
	HiveID    uuid.UUID      `json:"hive_id"`
	CreatedAt time.Time      `json:"created_at"`
	Agents    []*agent.Agent `json:"agents"`
	Tasks     []*task.Task   `json:"tasks"`
}

// New 以当前时间创建快照
func New(hiveID uuid.UUID, agents []*agent.Agent, tasks []*task.Task) *Snapshot {
	if agents == nil {
		agents = make([]*agent.Agent, 0)
	}
	if tasks == nil {
		tasks = make([]*task.Task, 0)
	}
	return &Snapshot{
		ID:        uuid.New(),
		HiveID:    hiveID,
		CreatedAt: time.Now().UTC(),
		Agents:    agents,
		Tasks:     tasks,
	}
}

// Store 检查点存储。List 按创建时间从新到旧返回。
type Store interface {
	Save(ctx context.Context, s *Snapshot) error
	Latest(ctx context.Context, hiveID uuid.UUID) (*Snapshot, error)
	List(ctx context.Context, hiveID uuid.UUID, limit int) ([]*Snapshot, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Close() error
}

// errNoCheckpoint 没有可用检查点
func errNoCheckpoint(hiveID uuid.UUID) error {
	return types.NewNotFoundError("checkpoint", hiveID.String())
}
