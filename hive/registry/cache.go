package registry

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/agenthive/hive/agent"
	"github.com/BaSui01/agenthive/internal/cache"
)

// AgentCache 注册表读缓存。实现必须吞掉自身错误，缓存故障只降级为未命中。
type AgentCache interface {
	Get(ctx context.Context, id uuid.UUID) (*agent.Agent, bool)
	Set(ctx context.Context, a *agent.Agent)
	Invalidate(ctx context.Context, id uuid.UUID)
}

// NopCache 不缓存
type NopCache struct{}

func (NopCache) Get(context.Context, uuid.UUID) (*agent.Agent, bool) { return nil, false }
func (NopCache) Set(context.Context, *agent.Agent)                   {}
func (NopCache) Invalidate(context.Context, uuid.UUID)               {}

// RedisCache 基于 cache.Manager 的读缓存
type RedisCache struct {
	manager *cache.Manager
	ttl     time.Duration
	logger  *zap.Logger
}

// NewRedisCache 创建 Redis 读缓存
func NewRedisCache(manager *cache.Manager, ttl time.Duration, logger *zap.Logger) *RedisCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisCache{
		manager: manager,
		ttl:     ttl,
		logger:  logger.With(zap.String("component", "agent_cache")),
	}
}

func (c *RedisCache) key(id uuid.UUID) string {
	return c.manager.Key("agent", id.String())
}

// Get 读取缓存
func (c *RedisCache) Get(ctx context.Context, id uuid.UUID) (*agent.Agent, bool) {
	var a agent.Agent
	if err := c.manager.GetJSON(ctx, c.key(id), &a); err != nil {
		if !cache.IsCacheMiss(err) {
			c.logger.Warn("agent cache read failed", zap.String("agent_id", id.String()), zap.Error(err))
		}
		return nil, false
	}
	return &a, true
}

// Set 写入缓存
func (c *RedisCache) Set(ctx context.Context, a *agent.Agent) {
	if err := c.manager.SetJSON(ctx, c.key(a.ID), a, c.ttl); err != nil {
		c.logger.Warn("agent cache write failed", zap.String("agent_id", a.ID.String()), zap.Error(err))
	}
}

// Invalidate 失效缓存
func (c *RedisCache) Invalidate(ctx context.Context, id uuid.UUID) {
	if err := c.manager.Delete(ctx, c.key(id)); err != nil {
		c.logger.Warn("agent cache invalidation failed", zap.String("agent_id", id.String()), zap.Error(err))
	}
}
