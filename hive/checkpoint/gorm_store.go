package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BaSui01/agenthive/types"
)

// =============================================================================
// 🗄️ SQL 存储（gorm）
// =============================================================================

// record hive_checkpoints 表的一行，快照正文以 JSON 保存
type record struct {
	ID         string    `gorm:"primaryKey;size:36"`
	HiveID     string    `gorm:"size:36;index:idx_hive_checkpoints_hive_created,priority:1;not null"`
	CreatedAt  time.Time `gorm:"index:idx_hive_checkpoints_hive_created,priority:2;not null"`
	AgentCount int       `gorm:"not null;default:0"`
	TaskCount  int       `gorm:"not null;default:0"`
	Payload    string    `gorm:"type:text;not null"`
}

// TableName 表名由迁移创建
func (record) TableName() string { return "hive_checkpoints" }

// GormStore 基于 gorm 的检查点存储，支持 postgres、mysql、sqlite
type GormStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewGormStore 创建 SQL 检查点存储。db 的生命周期由调用方管理。
func NewGormStore(db *gorm.DB, logger *zap.Logger) *GormStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GormStore{
		db:     db,
		logger: logger.With(zap.String("store", "gorm_checkpoint")),
	}
}

// EnsureSchema 在未执行迁移的环境中建表
func (s *GormStore) EnsureSchema(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&record{}); err != nil {
		return fmt.Errorf("migrate hive_checkpoints: %w", err)
	}
	return nil
}

// Save 保存快照
func (s *GormStore) Save(ctx context.Context, snap *Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}
	rec := record{
		ID:         snap.ID.String(),
		HiveID:     snap.HiveID.String(),
		CreatedAt:  snap.CreatedAt,
		AgentCount: len(snap.Agents),
		TaskCount:  len(snap.Tasks),
		Payload:    string(payload),
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	s.logger.Debug("checkpoint saved",
		zap.String("checkpoint_id", rec.ID),
		zap.Int("agents", rec.AgentCount),
		zap.Int("tasks", rec.TaskCount))
	return nil
}

// Latest 最新快照，没有时返回 NOT_FOUND
func (s *GormStore) Latest(ctx context.Context, hiveID uuid.UUID) (*Snapshot, error) {
	var rec record
	err := s.db.WithContext(ctx).
		Where("hive_id = ?", hiveID.String()).
		Order("created_at DESC").
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errNoCheckpoint(hiveID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	return decode(rec.Payload)
}

// List 最多 limit 个快照，从新到旧
func (s *GormStore) List(ctx context.Context, hiveID uuid.UUID, limit int) ([]*Snapshot, error) {
	if limit <= 0 {
		return []*Snapshot{}, nil
	}
	var recs []record
	err := s.db.WithContext(ctx).
		Where("hive_id = ?", hiveID.String()).
		Order("created_at DESC").
		Limit(limit).
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}
	out := make([]*Snapshot, 0, len(recs))
	for _, rec := range recs {
		snap, err := decode(rec.Payload)
		if err != nil {
			s.logger.Warn("skipping corrupt checkpoint", zap.String("id", rec.ID), zap.Error(err))
			continue
		}
		out = append(out, snap)
	}
	return out, nil
}

// Delete 删除快照，不存在时返回 NOT_FOUND
func (s *GormStore) Delete(ctx context.Context, id uuid.UUID) error {
	res := s.db.WithContext(ctx).Where("id = ?", id.String()).Delete(&record{})
	if res.Error != nil {
		return fmt.Errorf("failed to delete checkpoint: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return types.NewNotFoundError("checkpoint", id.String())
	}
	return nil
}

// Close 实现 Store，连接由数据库池管理
func (s *GormStore) Close() error { return nil }

func decode(payload string) (*Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal([]byte(payload), &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
	}
	return &snap, nil
}
