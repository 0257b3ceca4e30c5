package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/kpreconcile/types"
)

// =============================================================================
// 📦 通用响应结构
// =============================================================================

// Response 统一 API 响应结构
type Response struct {
	Success   bool       `json:"success"`
	Data      any        `json:"data,omitempty"`
	Error     *ErrorInfo `json:"error,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
	RequestID string     `json:"request_id,omitempty"`
}

// ErrorInfo 错误信息结构
type ErrorInfo struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Source    string `json:"source,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

// =============================================================================
// 🎯 响应辅助函数
// =============================================================================

// WriteJSON 写入 JSON 响应
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)

	// 响应头已写出，编码失败无法再改变状态码
	_ = json.NewEncoder(w).Encode(data)
}

// WriteSuccess 写入成功响应
func WriteSuccess(w http.ResponseWriter, data any) {
	WriteJSON(w, http.StatusOK, envelope(w, data, nil))
}

// WriteError 写入错误响应。5xx 记 error 日志，4xx 记 warn。
func WriteError(w http.ResponseWriter, err *types.Error, logger *zap.Logger) {
	status := StatusFor(err)

	if logger != nil {
		fields := []zap.Field{
			zap.String("code", string(err.Code)),
			zap.String("message", err.Message),
			zap.Int("status", status),
			zap.Bool("retryable", err.Retryable),
		}
		if err.Source != "" {
			fields = append(fields, zap.String("source", err.Source))
		}
		if err.Cause != nil {
			fields = append(fields, zap.Error(err.Cause))
		}
		if status >= http.StatusInternalServerError {
			logger.Error("API error", fields...)
		} else {
			logger.Warn("API error", fields...)
		}
	}

	WriteJSON(w, status, envelope(w, nil, &ErrorInfo{
		Code:      string(err.Code),
		Message:   err.Message,
		Source:    err.Source,
		Retryable: err.Retryable,
	}))
}

// WriteErrorMessage 写入简单错误消息
func WriteErrorMessage(w http.ResponseWriter, status int, code types.ErrorCode, message string, logger *zap.Logger) {
	WriteError(w, types.NewError(code, message).WithHTTPStatus(status), logger)
}

// envelope 组装响应体，request id 取自 RequestID 中间件已写出的响应头
func envelope(w http.ResponseWriter, data any, info *ErrorInfo) Response {
	return Response{
		Success:   info == nil,
		Data:      data,
		Error:     info,
		Timestamp: time.Now().UTC(),
		RequestID: w.Header().Get("X-Request-ID"),
	}
}

// =============================================================================
// 🔄 错误码到 HTTP 状态码映射
// =============================================================================

// StatusFor 返回错误对应的 HTTP 状态码，显式设置的 HTTPStatus 优先
func StatusFor(err *types.Error) int {
	if err.HTTPStatus != 0 {
		return err.HTTPStatus
	}
	switch err.Code {
	case types.ErrInvalidRequest, types.ErrInvalidEnvironment:
		return http.StatusBadRequest
	case types.ErrUnauthorized:
		return http.StatusUnauthorized
	case types.ErrForbidden:
		return http.StatusForbidden
	case types.ErrRecordNotFound:
		return http.StatusNotFound
	case types.ErrCycleInProgress:
		return http.StatusConflict
	case types.ErrRateLimited:
		return http.StatusTooManyRequests
	case types.ErrTimeout, types.ErrSourceTimeout:
		return http.StatusGatewayTimeout
	case types.ErrServiceUnavailable, types.ErrSourceUnavailable:
		return http.StatusServiceUnavailable
	case types.ErrSourceBadResponse, types.ErrSourceRejected:
		return http.StatusBadGateway
	default:
		// ErrStoreRead、ErrStoreWrite、ErrInvalidConfig、ErrInternalError 及未知错误码
		return http.StatusInternalServerError
	}
}

// ErrorFrom 把任意错误转换为 *types.Error，非结构化错误视为内部错误
func ErrorFrom(err error) *types.Error {
	if typed, ok := types.AsError(err); ok {
		return typed
	}
	return types.NewError(types.ErrInternalError, "internal error").WithCause(err)
}

// =============================================================================
// 📊 响应包装器
// =============================================================================

// ResponseWriter 记录状态码与响应字节数，供日志、指标与追踪中间件使用
type ResponseWriter struct {
	http.ResponseWriter
	StatusCode   int
	BytesWritten int64
	wroteHeader  bool
}

// NewResponseWriter 包装 w；已经是 *ResponseWriter 时直接返回
func NewResponseWriter(w http.ResponseWriter) *ResponseWriter {
	if rw, ok := w.(*ResponseWriter); ok {
		return rw
	}
	return &ResponseWriter{ResponseWriter: w, StatusCode: http.StatusOK}
}

// WriteHeader 只记录第一次写出的状态码
func (rw *ResponseWriter) WriteHeader(code int) {
	if rw.wroteHeader {
		return
	}
	rw.StatusCode = code
	rw.wroteHeader = true
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *ResponseWriter) Write(b []byte) (int, error) {
	if !rw.wroteHeader {
		rw.WriteHeader(http.StatusOK)
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.BytesWritten += int64(n)
	return n, err
}

// Unwrap 供 http.ResponseController 访问底层 writer
func (rw *ResponseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}
