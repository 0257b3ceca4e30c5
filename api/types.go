package api

import (
	"time"
)

// =============================================================================
// 协调周期类型
// =============================================================================

// CycleSummary 单个协调周期的计数摘要。
// @Description 协调周期摘要，只包含计数，不包含逐条结果
type CycleSummary struct {
	// 协调器名称（status / sync）
	Reconciler string `json:"reconciler" example:"status"`
	// 周期 ID
	CycleID string `json:"cycle_id" example:"6f1c2d9e-0b7a-4c39-9a53-3e0f5c1d2b44"`
	// 周期结果（ok、partial、failed）
	Outcome string `json:"outcome" example:"ok"`
	// 开始时间
	StartedAt time.Time `json:"started_at"`
	// 结束时间
	FinishedAt time.Time `json:"finished_at"`
	// 耗时（毫秒）
	DurationMS int64 `json:"duration_ms" example:"1250"`
	// 处理的管道总数
	Total int `json:"total" example:"12"`
	// 已写入
	Updated int `json:"updated" example:"10"`
	// 值未变化
	Unchanged int `json:"unchanged" example:"0"`
	// 跳过（索引名为空、无文档、周期取消）
	Skipped int `json:"skipped" example:"1"`
	// 失败（查询或写入失败）
	Failed int `json:"failed" example:"1"`
	// 周期级错误
	Error string `json:"error,omitempty"`
}

// SummaryListResponse 每个协调器最近一次周期的摘要。
// @Description 最近周期摘要列表
type SummaryListResponse struct {
	// 摘要列表，按协调器名称排序
	Summaries []CycleSummary `json:"summaries"`
	// 尚未完成过周期的协调器
	Pending []string `json:"pending,omitempty"`
}

// =============================================================================
// 错误类型
// =============================================================================

// ErrorResponse表示错误响应。
// @Description 错误响应结构
type ErrorResponse struct {
	// 错误详情
	Error ErrorDetail `json:"error"`
}

// ErrorDetail 表示错误详细信息。
// @Description 错误详细结构
type ErrorDetail struct {
	// 错误代码
	Code string `json:"code" example:"CYCLE_IN_PROGRESS"`
	// 人类可读的错误消息
	Message string `json:"message" example:"reconciliation cycle already in progress"`
	// HTTP 状态码
	HTTPStatus int `json:"http_status,omitempty" example:"409"`
	// 请求是否可以重试
	Retryable bool `json:"retryable,omitempty" example:"false"`
}
