package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/agenthive/types"
)

// =============================================================================
// 🧠 Redis 存储
// =============================================================================

// DefaultRedisPrefix 默认键前缀
const DefaultRedisPrefix = "agenthive:checkpoint"

// RedisStore 快照正文存为字符串，每个蜂巢一个按创建时间排序的有序集合索引
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisStore 创建 Redis 检查点存储。ttl 为 0 时不过期。
func NewRedisStore(client *redis.Client, prefix string, ttl time.Duration, logger *zap.Logger) *RedisStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		logger: logger.With(zap.String("store", "redis_checkpoint")),
	}
}

func (s *RedisStore) dataKey(id string) string      { return s.prefix + ":data:" + id }
func (s *RedisStore) indexKey(hiveID string) string { return s.prefix + ":hive:" + hiveID }

// Save 保存快照并写入索引
func (s *RedisStore) Save(ctx context.Context, snap *Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}
	id := snap.ID.String()
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.dataKey(id), data, s.ttl)
	pipe.ZAdd(ctx, s.indexKey(snap.HiveID.String()), redis.Z{
		Score:  float64(snap.CreatedAt.UnixNano()),
		Member: id,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	s.logger.Debug("checkpoint saved to redis",
		zap.String("checkpoint_id", id),
		zap.String("hive_id", snap.HiveID.String()))
	return nil
}

// Latest 最新快照，没有时返回 NOT_FOUND
func (s *RedisStore) Latest(ctx context.Context, hiveID uuid.UUID) (*Snapshot, error) {
	list, err := s.List(ctx, hiveID, 1)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, errNoCheckpoint(hiveID)
	}
	return list[0], nil
}

// List 最多 limit 个快照，从新到旧。已过期的正文从索引中清理。
func (s *RedisStore) List(ctx context.Context, hiveID uuid.UUID, limit int) ([]*Snapshot, error) {
	if limit <= 0 {
		return []*Snapshot{}, nil
	}
	index := s.indexKey(hiveID.String())
	ids, err := s.client.ZRevRange(ctx, index, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}
	out := make([]*Snapshot, 0, len(ids))
	for _, id := range ids {
		data, err := s.client.Get(ctx, s.dataKey(id)).Result()
		if errors.Is(err, redis.Nil) {
			s.client.ZRem(ctx, index, id)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load checkpoint %s: %w", id, err)
		}
		snap, err := decode(data)
		if err != nil {
			s.logger.Warn("skipping corrupt checkpoint", zap.String("id", id), zap.Error(err))
			continue
		}
		out = append(out, snap)
	}
	return out, nil
}

// Delete 删除快照正文及其索引项
func (s *RedisStore) Delete(ctx context.Context, id uuid.UUID) error {
	key := s.dataKey(id.String())
	data, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return types.NewNotFoundError("checkpoint", id.String())
	}
	if err != nil {
		return fmt.Errorf("failed to load checkpoint: %w", err)
	}
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	if snap, err := decode(data); err == nil {
		pipe.ZRem(ctx, s.indexKey(snap.HiveID.String()), id.String())
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	return nil
}

// Close 关闭客户端
func (s *RedisStore) Close() error {
	return s.client.Close()
}
