// =============================================================================
// 📦 测试数据工厂 - 管道记录与外部数据
// =============================================================================
package fixtures

import (
	"time"

	"github.com/BaSui01/kpreconcile/pipeline"
	"github.com/BaSui01/kpreconcile/sources"
)

// BaseTime 测试用固定时间
var BaseTime = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

// =============================================================================
// 🗂️ 管道记录
// =============================================================================

// RunningPipeline 返回一条 running 状态的管道
func RunningPipeline(id, indexName string) pipeline.Record {
	return pipeline.Record{
		ID:         id,
		Name:       "pipeline " + id,
		IndexName:  indexName,
		LoadStatus: pipeline.LoadRunning,
		CreatedAt:  BaseTime,
		UpdatedAt:  BaseTime,
	}
}

// SyncTarget 返回一条指定环境的同步目标管道，recipe key 为前缀加 indexName
func SyncTarget(id, indexName string, env pipeline.Environment, current pipeline.SyncStatus) pipeline.Record {
	rec := pipeline.Record{
		ID:         id,
		Name:       "pipeline " + id,
		IndexName:  indexName,
		LoadStatus: pipeline.LoadComplete,
		Progress:   100,
		SyncStatus: current,
		CreatedAt:  BaseTime,
		UpdatedAt:  BaseTime,
	}
	if env.IsProduction() {
		rec.ProdSyncTarget = true
	} else {
		rec.DevSyncTarget = true
	}
	return rec
}

// =============================================================================
// 📄 分片状态文档
// =============================================================================

// Doc 构造一份分片状态文档，rate 为空串时表示缺失
func Doc(status, rate string) sources.StatusDocument {
	d := sources.StatusDocument{Status: status}
	if rate != "" {
		d.Rate = sources.NewRate(rate)
	}
	return d
}

// RunningDocs 返回若干 running 分片，rate 按给定值
func RunningDocs(rates ...string) []sources.StatusDocument {
	docs := make([]sources.StatusDocument, 0, len(rates))
	for _, r := range rates {
		docs = append(docs, Doc("running", r))
	}
	return docs
}

// CompleteDocs 返回一份已完成的分片
func CompleteDocs() []sources.StatusDocument {
	return []sources.StatusDocument{Doc("complete", "100")}
}

// =============================================================================
// 🔁 Continuous activity
// =============================================================================

// Activity 构造一个 activity，desired 为 nil 表示 desiredState 为 null
func Activity(recipeID string, desired *string) sources.Activity {
	return sources.Activity{RecipeID: recipeID, DesiredState: desired}
}

// Started 返回 desiredState 为 STARTED 的 activity
func Started(recipeID string) sources.Activity {
	return Activity(recipeID, StringPtr("STARTED"))
}

// StringPtr 返回字符串指针
func StringPtr(s string) *string { return &s }
