package pipeline

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound 记录不存在
var ErrNotFound = errors.New("pipeline record not found")

// LoadUpdate 一次执行状态写入
// Progress 为 nil 表示保持原值；CompletedAt 为 nil 表示不修改。
type LoadUpdate struct {
	Status      LoadStatus
	Progress    *float64
	CompletedAt *time.Time
}

// Store 管道记录存储契约
type Store interface {
	// FindRunning 返回所有 load_status = running 的记录
	FindRunning(ctx context.Context) ([]Record, error)

	// FindSyncTargets 返回指定环境的同步目标记录（生产与开发互斥选择）
	FindSyncTargets(ctx context.Context, env Environment) ([]Record, error)

	// UpdateLoad 按主键更新 load_status / progress / completed_at
	UpdateLoad(ctx context.Context, id string, update LoadUpdate) error

	// UpdateSyncStatus 按主键更新 sync_status，不触碰其他字段
	UpdateSyncStatus(ctx context.Context, id string, status SyncStatus) error

	// Get 按主键读取
	Get(ctx context.Context, id string) (*Record, error)
}
