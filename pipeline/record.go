package pipeline

import (
	"fmt"
	"strings"
	"time"

	"github.com/BaSui01/kpreconcile/types"
)

// ============================================================
// 状态枚举
// ============================================================

// LoadStatus 管道执行状态
type LoadStatus string

const (
	LoadRunning  LoadStatus = "running"
	LoadComplete LoadStatus = "complete"
	LoadError    LoadStatus = "error"
)

// IsTerminal 是否为终止状态（complete / error）
func (s LoadStatus) IsTerminal() bool {
	return s == LoadComplete || s == LoadError
}

// SyncStatus 持续同步链路的健康状态，空字符串表示未设置
type SyncStatus string

const (
	SyncUnset  SyncStatus = ""
	SyncNormal SyncStatus = "normal"
	SyncError  SyncStatus = "error"
)

// ============================================================
// 运行环境
// ============================================================

// Environment 同步对账的目标环境，构造时注入，不再依赖全局 profile 字符串
type Environment string

const (
	EnvProduction  Environment = "production"
	EnvDevelopment Environment = "development"
)

// ParseEnvironment 解析环境名（大小写不敏感，支持 prod/dev 简写）
func ParseEnvironment(s string) (Environment, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "prod", "production":
		return EnvProduction, nil
	case "dev", "development":
		return EnvDevelopment, nil
	default:
		return "", types.NewError(types.ErrInvalidEnvironment,
			fmt.Sprintf("unknown environment %q (want production or development)", s))
	}
}

// String implements fmt.Stringer.
func (e Environment) String() string {
	return string(e)
}

// IsProduction 是否为生产环境
func (e Environment) IsProduction() bool {
	return e == EnvProduction
}

// ============================================================
// 管道记录
// ============================================================

// DefaultRecipePrefix 持续同步 recipe 的 key 前缀
const DefaultRecipePrefix = "sync_recipe_"

// Record 知识管道记录
// 由外部协作方创建，对账只读取 running / 同步目标记录，
// 并且只修改 LoadStatus、Progress、CompletedAt、SyncStatus 四个字段。
type Record struct {
	ID             string     `gorm:"primaryKey;size:64" json:"id"`
	Name           string     `gorm:"size:255" json:"name"`
	IndexName      string     `gorm:"size:255;index:idx_kp_index_name" json:"index_name"`             // 状态索引中的 index_name
	LoadStatus     LoadStatus `gorm:"size:16;not null;index:idx_kp_load_status" json:"load_status"`   // running / complete / error
	Progress       float64    `gorm:"not null;default:0" json:"progress"`                             // 0-100，error 时冻结
	SyncStatus     SyncStatus `gorm:"size:16;not null;default:''" json:"sync_status"`                 // normal / error / 空
	ProdSyncTarget bool       `gorm:"not null;default:false;index:idx_kp_prod_sync" json:"prod_sync_target"`
	DevSyncTarget  bool       `gorm:"not null;default:false;index:idx_kp_dev_sync" json:"dev_sync_target"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"` // 首次进入 complete 时写入
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// TableName 表名
func (Record) TableName() string {
	return "knowledge_pipelines"
}

// RecipeKey 返回与编排器 continuous activity 关联的 recipe id
func (r *Record) RecipeKey(prefix string) string {
	if prefix == "" {
		prefix = DefaultRecipePrefix
	}
	return prefix + r.IndexName
}

// IsSyncTarget 判断记录是否属于指定环境的同步目标
func (r *Record) IsSyncTarget(env Environment) bool {
	if env.IsProduction() {
		return r.ProdSyncTarget
	}
	return r.DevSyncTarget
}

// HasIndexName 是否配置了状态索引名
func (r *Record) HasIndexName() bool {
	return strings.TrimSpace(r.IndexName) != ""
}
