package handlers

import (
	"context"
	"errors"
	"net/http"
	"sort"

	"go.uber.org/zap"

	"github.com/BaSui01/kpreconcile/api"
	"github.com/BaSui01/kpreconcile/reconcile"
	"github.com/BaSui01/kpreconcile/types"
)

// =============================================================================
// 🔁 协调周期 Handler
// =============================================================================

// ReconcileHandler 手动触发协调周期并查询最近摘要
type ReconcileHandler struct {
	reconcilers map[string]reconcile.Reconciler
	summaries   reconcile.SummaryStore
	logger      *zap.Logger
}

// NewReconcileHandler 创建处理器，summaries 可以为 nil（此时摘要接口返回空列表）
func NewReconcileHandler(summaries reconcile.SummaryStore, logger *zap.Logger, reconcilers ...reconcile.Reconciler) *ReconcileHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	byName := make(map[string]reconcile.Reconciler, len(reconcilers))
	for _, rec := range reconcilers {
		byName[rec.Name()] = rec
	}
	return &ReconcileHandler{
		reconcilers: byName,
		summaries:   summaries,
		logger:      logger.With(zap.String("handler", "reconcile")),
	}
}

// HandleRun 处理 POST /api/v1/reconcile/{reconciler}/run
// @Summary 触发协调周期
// @Description 同步执行一次协调周期并返回计数，周期重叠时返回 409
// @Tags 协调
// @Produce json
// @Param reconciler path string true "协调器名称（status / sync）"
// @Success 200 {object} api.CycleSummary "周期完成"
// @Failure 404 {object} Response "协调器不存在"
// @Failure 409 {object} Response "周期正在执行"
// @Failure 502 {object} Response "周期级失败"
// @Router /api/v1/reconcile/{reconciler}/run [post]
func (h *ReconcileHandler) HandleRun(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("reconciler")
	rec, ok := h.reconcilers[name]
	if !ok {
		WriteErrorMessage(w, http.StatusNotFound, types.ErrRecordNotFound, "unknown reconciler: "+name, h.logger)
		return
	}

	// 客户端断开不应中途取消周期，周期自身的超时仍然生效
	ctx := context.WithoutCancel(r.Context())
	h.logger.Info("manual cycle triggered", triggerFields(ctx, name)...)

	summary, err := rec.RunCycle(ctx)
	if err != nil {
		if errors.Is(err, reconcile.ErrCycleInProgress) {
			WriteError(w, reconcile.ErrCycleInProgress, nil)
			return
		}
		apiErr := types.NewError(types.ErrInternalError, "reconciliation cycle failed").
			WithCause(err).
			WithHTTPStatus(http.StatusBadGateway)
		if typed, ok := types.AsError(err); ok {
			apiErr.Code = typed.Code
			apiErr.Retryable = typed.Retryable
		}
		WriteError(w, apiErr, h.logger)
		return
	}

	WriteSuccess(w, ToCycleSummary(summary))
}

// HandleSummaries 处理 GET /api/v1/reconcile/summaries
// @Summary 最近周期摘要
// @Description 返回每个协调器最近一次周期的计数
// @Tags 协调
// @Produce json
// @Success 200 {object} api.SummaryListResponse "摘要列表"
// @Router /api/v1/reconcile/summaries [get]
func (h *ReconcileHandler) HandleSummaries(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0, len(h.reconcilers))
	for name := range h.reconcilers {
		names = append(names, name)
	}
	sort.Strings(names)

	resp := api.SummaryListResponse{Summaries: []api.CycleSummary{}}
	for _, name := range names {
		if h.summaries == nil {
			resp.Pending = append(resp.Pending, name)
			continue
		}
		summary, err := h.summaries.Latest(r.Context(), name)
		if errors.Is(err, reconcile.ErrNoSummary) {
			resp.Pending = append(resp.Pending, name)
			continue
		}
		if err != nil {
			WriteError(w, types.NewError(types.ErrServiceUnavailable, "load cycle summary").
				WithCause(err).
				WithRetryable(true), h.logger)
			return
		}
		resp.Summaries = append(resp.Summaries, ToCycleSummary(summary))
	}

	WriteSuccess(w, resp)
}

// ToCycleSummary 只保留计数字段
func ToCycleSummary(s *reconcile.Summary) api.CycleSummary {
	return api.CycleSummary{
		Reconciler: s.Reconciler,
		CycleID:    s.CycleID,
		Outcome:    s.CycleOutcome(),
		StartedAt:  s.StartedAt,
		FinishedAt: s.FinishedAt,
		DurationMS: s.Duration().Milliseconds(),
		Total:      s.Total,
		Updated:    s.Updated,
		Unchanged:  s.Unchanged,
		Skipped:    s.Skipped,
		Failed:     s.Failed,
		Error:      s.Error,
	}
}

// triggerFields 记录谁、经由哪个请求触发了周期
func triggerFields(ctx context.Context, name string) []zap.Field {
	fields := []zap.Field{zap.String("reconciler", name)}
	if sub, ok := types.Subject(ctx); ok {
		fields = append(fields, zap.String("subject", sub))
	}
	if id, ok := types.RequestID(ctx); ok {
		fields = append(fields, zap.String("request_id", id))
	}
	if id, ok := types.TraceID(ctx); ok {
		fields = append(fields, zap.String("trace_id", id))
	}
	return fields
}
