package checkpoint

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Source 产生快照的一方
type Source interface {
	HiveID() uuid.UUID
	Snapshot(ctx context.Context) *Snapshot
}

// Target 从快照恢复状态的一方
type Target interface {
	Restore(ctx context.Context, s *Snapshot) error
}

// Config 周期检查点配置
type Config struct {
	Interval time.Duration `json:"interval" yaml:"interval" toml:"interval" env:"INTERVAL"`
	Retain   int           `json:"retain" yaml:"retain" toml:"retain" env:"RETAIN"`
}

// DefaultConfig 每分钟一次，保留最近 10 个
func DefaultConfig() Config {
	return Config{Interval: time.Minute, Retain: 10}
}

// Manager 周期保存快照并清理超出保留数量的旧快照
type Manager struct {
	store  Store
	source Source
	target Target
	config Config
	logger *zap.Logger
}

// NewManager 创建检查点管理器
func NewManager(store Store, source Source, target Target, config Config, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultConfig()
	if config.Interval <= 0 {
		config.Interval = def.Interval
	}
	if config.Retain <= 0 {
		config.Retain = def.Retain
	}
	return &Manager{
		store:  store,
		source: source,
		target: target,
		config: config,
		logger: logger.With(zap.String("component", "checkpoint_manager")),
	}
}

// Checkpoint 立即保存一个快照
func (m *Manager) Checkpoint(ctx context.Context) (*Snapshot, error) {
	snap := m.source.Snapshot(ctx)
	if err := m.store.Save(ctx, snap); err != nil {
		return nil, err
	}
	if err := m.prune(ctx, snap.HiveID); err != nil {
		m.logger.Warn("checkpoint pruning failed", zap.Error(err))
	}
	m.logger.Info("checkpoint saved",
		zap.String("checkpoint_id", snap.ID.String()),
		zap.Int("agents", len(snap.Agents)),
		zap.Int("tasks", len(snap.Tasks)))
	return snap, nil
}

// Restore 用最新快照恢复状态
func (m *Manager) Restore(ctx context.Context) (*Snapshot, error) {
	snap, err := m.store.Latest(ctx, m.source.HiveID())
	if err != nil {
		return nil, err
	}
	if err := m.target.Restore(ctx, snap); err != nil {
		return nil, fmt.Errorf("restore checkpoint %s: %w", snap.ID, err)
	}
	m.logger.Info("checkpoint restored",
		zap.String("checkpoint_id", snap.ID.String()),
		zap.Time("created_at", snap.CreatedAt))
	return snap, nil
}

// Run 按间隔保存快照直到 ctx 取消，退出前再保存一次
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.config.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			final, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			if _, err := m.Checkpoint(final); err != nil {
				m.logger.Warn("final checkpoint failed", zap.Error(err))
			}
			cancel()
			return
		case <-ticker.C:
			if _, err := m.Checkpoint(ctx); err != nil {
				m.logger.Warn("periodic checkpoint failed", zap.Error(err))
			}
		}
	}
}

func (m *Manager) prune(ctx context.Context, hiveID uuid.UUID) error {
	all, err := m.store.List(ctx, hiveID, m.config.Retain+100)
	if err != nil {
		return err
	}
	for _, old := range all[min(len(all), m.config.Retain):] {
		if err := m.store.Delete(ctx, old.ID); err != nil {
			return err
		}
	}
	return nil
}
