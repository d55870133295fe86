package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/agenthive/hive/agent"
	"github.com/BaSui01/agenthive/hive/bus"
	"github.com/BaSui01/agenthive/types"
)

// =============================================================================
// 📇 Agent 注册表
// =============================================================================

// slot 单个 Agent 的存储槽，同一 id 上的操作由 mu 串行化
type slot struct {
	mu      sync.RWMutex
	agent   *agent.Agent
	removed bool
}

// Entry GetAll 返回的条目
type Entry struct {
	ID    uuid.UUID    `json:"id"`
	Agent *agent.Agent `json:"agent"`
}

// Registry 并发 Agent 存储，是 Agent 状态的唯一权威来源。
// 不同 id 的读写互不阻塞。
type Registry struct {
	slots  sync.Map // uuid.UUID -> *slot
	count  atomic.Int64
	cache  AgentCache
	sender bus.Sender
	daily  *DailyCounters
	perf   *performanceBook
	logger *zap.Logger
}

// Option 注册表选项
type Option func(*Registry)

// WithCache 设置读缓存
func WithCache(c AgentCache) Option {
	return func(r *Registry) {
		if c != nil {
			r.cache = c
		}
	}
}

// WithDailyCounters 设置每日计数器（测试中注入时钟）
func WithDailyCounters(d *DailyCounters) Option {
	return func(r *Registry) {
		if d != nil {
			r.daily = d
		}
	}
}

// New 创建注册表
func New(sender bus.Sender, logger *zap.Logger, opts ...Option) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	if sender == nil {
		sender = bus.Nop
	}
	r := &Registry{
		cache:  NopCache{},
		sender: sender,
		daily:  NewDailyCounters(nil),
		perf:   newPerformanceBook(),
		logger: logger.With(zap.String("component", "agent_registry")),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register 注册 Agent，返回其 id。零值 id 会被分配新 id；重复 id 被拒绝。
func (r *Registry) Register(ctx context.Context, a *agent.Agent) (uuid.UUID, error) {
	if a == nil {
		return uuid.Nil, types.NewValidationError("agent", "Agent is required")
	}
	a = a.Clone()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}

	s := &slot{agent: a}
	s.mu.Lock()
	if _, loaded := r.slots.LoadOrStore(a.ID, s); loaded {
		s.mu.Unlock()
		return uuid.Nil, types.NewError(types.ErrInvalidRequest,
			fmt.Sprintf("agent already registered: %s", a.ID)).WithHTTPStatus(409)
	}
	r.count.Add(1)
	r.invalidate(ctx, a.ID)
	s.mu.Unlock()

	r.daily.IncCreated()
	r.sender.Send(bus.AgentRegistered{AgentID: a.ID})

	r.logger.Info("agent registered",
		zap.String("agent_id", a.ID.String()),
		zap.String("name", a.Name),
		zap.String("type", a.Type.String()))
	return a.ID, nil
}

// Unregister 移除 Agent，未知 id 返回 NotFound
func (r *Registry) Unregister(ctx context.Context, id uuid.UUID) error {
	v, ok := r.slots.LoadAndDelete(id)
	if !ok {
		return types.NewNotFoundError("agent", id.String())
	}
	s := v.(*slot)
	s.mu.Lock()
	s.removed = true
	r.invalidate(ctx, id)
	s.mu.Unlock()

	r.count.Add(-1)
	r.perf.remove(id)
	r.daily.IncRemoved()
	r.sender.Send(bus.AgentRemoved{AgentID: id})

	r.logger.Info("agent unregistered", zap.String("agent_id", id.String()))
	return nil
}

// Get 返回 Agent 的克隆，优先读缓存
func (r *Registry) Get(ctx context.Context, id uuid.UUID) (*agent.Agent, bool) {
	if a, ok := r.cache.Get(ctx, id); ok {
		return a, true
	}

	s, ok := r.load(id)
	if !ok {
		return nil, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.removed {
		return nil, false
	}
	// 在读锁内回填缓存，写操作持写锁失效，避免回填旧值
	r.cache.Set(ctx, s.agent)
	return s.agent.Clone(), true
}

// GetAll 返回所有 Agent 的克隆，按创建时间排序
func (r *Registry) GetAll(ctx context.Context) []Entry {
	entries := make([]Entry, 0, r.count.Load())
	r.slots.Range(func(key, value any) bool {
		s := value.(*slot)
		s.mu.RLock()
		if !s.removed {
			entries = append(entries, Entry{ID: key.(uuid.UUID), Agent: s.agent.Clone()})
		}
		s.mu.RUnlock()
		return true
	})
	sort.Slice(entries, func(i, j int) bool {
		ai, aj := entries[i].Agent, entries[j].Agent
		if !ai.CreatedAt.Equal(aj.CreatedAt) {
			return ai.CreatedAt.Before(aj.CreatedAt)
		}
		return entries[i].ID.String() < entries[j].ID.String()
	})
	return entries
}

// Agents GetAll 的便捷形式
func (r *Registry) Agents(ctx context.Context) []*agent.Agent {
	entries := r.GetAll(ctx)
	out := make([]*agent.Agent, len(entries))
	for i, e := range entries {
		out[i] = e.Agent
	}
	return out
}

// Update 替换 Agent。未知 id 视为注册。
func (r *Registry) Update(ctx context.Context, id uuid.UUID, a *agent.Agent) error {
	if a == nil {
		return types.NewValidationError("agent", "Agent is required")
	}
	a = a.Clone()
	a.ID = id

	s, ok := r.load(id)
	if !ok {
		_, err := r.Register(ctx, a)
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.removed {
		return types.NewNotFoundError("agent", id.String())
	}
	s.agent = a
	r.invalidate(ctx, id)
	return nil
}

// Modify 在 id 的写锁内原子地读改写 Agent。fn 返回错误时不做任何修改。
func (r *Registry) Modify(ctx context.Context, id uuid.UUID, fn func(a *agent.Agent) error) (*agent.Agent, error) {
	s, ok := r.load(id)
	if !ok {
		return nil, types.NewNotFoundError("agent", id.String())
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.removed {
		return nil, types.NewNotFoundError("agent", id.String())
	}

	working := s.agent.Clone()
	if err := fn(working); err != nil {
		return nil, err
	}
	working.ID = id
	s.agent = working
	r.invalidate(ctx, id)
	return working.Clone(), nil
}

// Count Agent 数量
func (r *Registry) Count() int {
	return int(r.count.Load())
}

// DailyCounts 今日创建与移除计数
func (r *Registry) DailyCounts() DailySnapshot {
	return r.daily.Snapshot()
}

func (r *Registry) load(id uuid.UUID) (*slot, bool) {
	v, ok := r.slots.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*slot), true
}

// invalidate 不随调用方取消，避免缓存残留旧值
func (r *Registry) invalidate(ctx context.Context, id uuid.UUID) {
	r.cache.Invalidate(context.WithoutCancel(ctx), id)
}
