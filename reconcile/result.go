package reconcile

import (
	"time"
)

// Result 单条管道在一次周期中的处理结果
type Result string

const (
	ResultUpdated   Result = "updated"   // 已写入
	ResultUnchanged Result = "unchanged" // 值未变化，写入被抑制
	ResultSkipped   Result = "skipped"   // 本周期跳过，等待下一周期
	ResultFailed    Result = "failed"    // 查询或写入失败
)

// 跳过 / 失败原因
const (
	ReasonBlankIndexName    = "blank_index_name"
	ReasonNoDocuments       = "no_documents"
	ReasonQueryFailed       = "query_failed"
	ReasonCircuitOpen       = "circuit_open"
	ReasonWriteFailed       = "write_failed"
	ReasonCycleCanceled     = "cycle_canceled"
	ReasonRecipeNotFound    = "recipe_not_found"
	ReasonDesiredStateNull  = "desired_state_null"
	ReasonUnexpectedDesired = "unexpected_desired_state"
)

// Outcome 单条管道的处理结果，收集进 Summary 后仅用于日志与指标
type Outcome struct {
	PipelineID string `json:"pipeline_id"`
	IndexName  string `json:"index_name,omitempty"`
	Result     Result `json:"result"`
	Reason     string `json:"reason,omitempty"`
	From       string `json:"from,omitempty"`
	To         string `json:"to,omitempty"`
	Err        error  `json:"-"`
	Error      string `json:"error,omitempty"`
}

// Summary 一次对账周期的批次摘要
type Summary struct {
	Reconciler string    `json:"reconciler"`
	CycleID    string    `json:"cycle_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Total     int `json:"total"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`

	// Error 周期级错误（读取目标或批量拉取失败），为空表示周期正常完成
	Error string `json:"error,omitempty"`

	Outcomes []Outcome `json:"outcomes,omitempty"`
}

// Add 记录一条结果并更新计数
func (s *Summary) Add(o Outcome) {
	if o.Err != nil && o.Error == "" {
		o.Error = o.Err.Error()
	}
	s.Outcomes = append(s.Outcomes, o)
	s.Total++
	switch o.Result {
	case ResultUpdated:
		s.Updated++
	case ResultUnchanged:
		s.Unchanged++
	case ResultSkipped:
		s.Skipped++
	case ResultFailed:
		s.Failed++
	}
}

// Duration 周期耗时
func (s *Summary) Duration() time.Duration {
	if s.FinishedAt.IsZero() {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}

// 周期整体结论
const (
	CycleOutcomeOK      = "ok"
	CycleOutcomePartial = "partial"
	CycleOutcomeFailed  = "failed"
)

// CycleOutcome 周期级错误为 failed，存在失败条目为 partial，否则为 ok
func (s *Summary) CycleOutcome() string {
	switch {
	case s.Error != "":
		return CycleOutcomeFailed
	case s.Failed > 0:
		return CycleOutcomePartial
	default:
		return CycleOutcomeOK
	}
}

// Compact 返回只保留非成功条目的副本，最多 limit 条，用于持久化与 API 展示
func (s *Summary) Compact(limit int) *Summary {
	out := *s
	out.Outcomes = nil
	for _, o := range s.Outcomes {
		if o.Result == ResultUpdated || o.Result == ResultUnchanged {
			continue
		}
		if limit > 0 && len(out.Outcomes) >= limit {
			break
		}
		out.Outcomes = append(out.Outcomes, o)
	}
	return &out
}
