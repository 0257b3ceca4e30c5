package pipeline

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BaSui01/kpreconcile/internal/database"
	"github.com/BaSui01/kpreconcile/types"
)

// GormStore 基于 GORM 的管道存储，写操作走 PoolManager 的重试事务
type GormStore struct {
	pool   *database.PoolManager
	logger *zap.Logger
}

// NewGormStore 创建 GORM 存储
func NewGormStore(pool *database.PoolManager, logger *zap.Logger) *GormStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GormStore{
		pool:   pool,
		logger: logger.With(zap.String("component", "pipeline_store")),
	}
}

// FindRunning 查询所有运行中的管道
func (s *GormStore) FindRunning(ctx context.Context) ([]Record, error) {
	var records []Record
	err := s.pool.DB().WithContext(ctx).
		Where("load_status = ?", LoadRunning).
		Order("id ASC").
		Find(&records).Error
	if err != nil {
		return nil, types.NewError(types.ErrStoreRead, "find running pipelines").WithCause(err)
	}
	return records, nil
}

// FindSyncTargets 查询指定环境的同步目标
func (s *GormStore) FindSyncTargets(ctx context.Context, env Environment) ([]Record, error) {
	column := "dev_sync_target"
	if env.IsProduction() {
		column = "prod_sync_target"
	}

	var records []Record
	err := s.pool.DB().WithContext(ctx).
		Where(column+" = ?", true).
		Order("id ASC").
		Find(&records).Error
	if err != nil {
		return nil, types.NewError(types.ErrStoreRead,
			fmt.Sprintf("find %s sync targets", env)).WithCause(err)
	}
	return records, nil
}

// UpdateLoad 更新执行状态与进度
func (s *GormStore) UpdateLoad(ctx context.Context, id string, update LoadUpdate) error {
	values := map[string]any{
		"load_status": update.Status,
	}
	if update.Progress != nil {
		values["progress"] = *update.Progress
	}
	if update.CompletedAt != nil {
		values["completed_at"] = *update.CompletedAt
	}
	return s.update(ctx, id, values)
}

// UpdateSyncStatus 更新同步状态
func (s *GormStore) UpdateSyncStatus(ctx context.Context, id string, status SyncStatus) error {
	return s.update(ctx, id, map[string]any{"sync_status": status})
}

// Get 按主键读取
func (s *GormStore) Get(ctx context.Context, id string) (*Record, error) {
	var record Record
	err := s.pool.DB().WithContext(ctx).Where("id = ?", id).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, types.NewError(types.ErrStoreRead, "get pipeline "+id).WithCause(err)
	}
	return &record, nil
}

func (s *GormStore) update(ctx context.Context, id string, values map[string]any) error {
	err := s.pool.WithTransactionRetry(ctx, 0, func(tx *gorm.DB) error {
		res := tx.Model(&Record{}).Where("id = ?", id).Updates(values)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
	if errors.Is(err, ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		s.logger.Debug("pipeline update failed", zap.String("pipeline_id", id), zap.Error(err))
		return types.NewError(types.ErrStoreWrite, "update pipeline "+id).
			WithCause(err).
			WithRetryable(database.IsRetryableError(err))
	}
	return nil
}
