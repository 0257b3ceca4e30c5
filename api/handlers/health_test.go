package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/kpreconcile/internal/cache"
)

// =============================================================================
// 🧪 测试辅助类型
// =============================================================================

type mockHealthCheck struct {
	name string
	err  error
}

func (m *mockHealthCheck) Name() string { return m.name }
func (m *mockHealthCheck) Check(ctx context.Context) error { return m.err }

func decodeHealth(t *testing.T, w *httptest.ResponseRecorder) HealthStatus {
	t.Helper()
	var status HealthStatus
	require.NoError(t, json.NewDecoder(w.Body).Decode(&status))
	return status
}

// =============================================================================
// 🧪 HealthHandler 测试
// =============================================================================

func TestHealthHandler_HandleHealth(t *testing.T) {
	handler := NewHealthHandler(zap.NewNop())
	handler.RegisterCheck(&mockHealthCheck{name: "database", err: errors.New("down")})

	w := httptest.NewRecorder()
	handler.HandleHealth(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	// 存活探针不受依赖影响
	assert.Equal(t, http.StatusOK, w.Code)
	status := decodeHealth(t, w)
	assert.Equal(t, "healthy", status.Status)
	assert.False(t, status.Timestamp.IsZero())
}

func TestHealthHandler_HandleReady(t *testing.T) {
	ping := func(err error) func(context.Context) error {
		return func(context.Context) error { return err }
	}

	tests := []struct {
		name           string
		checks         []HealthCheck
		expectedStatus int
		expectedHealth string
	}{
		{
			name:           "no checks",
			expectedStatus: http.StatusOK,
			expectedHealth: "healthy",
		},
		{
			name: "all pass",
			checks: []HealthCheck{
				NewDatabaseHealthCheck("database", ping(nil)),
				NewRedisHealthCheck("redis", ping(nil)),
			},
			expectedStatus: http.StatusOK,
			expectedHealth: "healthy",
		},
		{
			name: "redis down degrades",
			checks: []HealthCheck{
				NewDatabaseHealthCheck("database", ping(nil)),
				NewRedisHealthCheck("redis", ping(errors.New("connection refused"))),
			},
			expectedStatus: http.StatusOK,
			expectedHealth: "degraded",
		},
		{
			name: "database down is unhealthy",
			checks: []HealthCheck{
				NewDatabaseHealthCheck("database", ping(errors.New("connection refused"))),
				NewRedisHealthCheck("redis", ping(errors.New("connection refused"))),
			},
			expectedStatus: http.StatusServiceUnavailable,
			expectedHealth: "unhealthy",
		},
		{
			name:           "plain checks are critical",
			checks:         []HealthCheck{&mockHealthCheck{name: "custom", err: errors.New("boom")}},
			expectedStatus: http.StatusServiceUnavailable,
			expectedHealth: "unhealthy",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(zap.NewNop())
			for _, c := range tt.checks {
				h.RegisterCheck(c)
			}

			w := httptest.NewRecorder()
			h.HandleReady(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

			assert.Equal(t, tt.expectedStatus, w.Code)
			status := decodeHealth(t, w)
			assert.Equal(t, tt.expectedHealth, status.Status)
			assert.Len(t, status.Checks, len(tt.checks))
		})
	}
}

func TestHealthHandler_CheckResultDetails(t *testing.T) {
	h := NewHealthHandler(zap.NewNop())
	h.RegisterCheck(NewDatabaseHealthCheck("database", func(context.Context) error { return nil }))
	h.RegisterCheck(NewRedisHealthCheck("redis", func(context.Context) error { return errors.New("timeout") }))

	status := h.Evaluate(context.Background())
	assert.Equal(t, CheckResult{Status: "pass", Latency: status.Checks["database"].Latency, Critical: true}, status.Checks["database"])
	assert.Equal(t, "warn", status.Checks["redis"].Status)
	assert.Equal(t, "timeout", status.Checks["redis"].Message)
	assert.False(t, status.Checks["redis"].Critical)
}

func TestHealthHandler_RedisCheckWithMiniredis(t *testing.T) {
	mr := miniredis.RunT(t)
	mgr, err := cache.NewManager(cache.Config{Addr: mr.Addr()}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = mgr.Close() })

	h := NewHealthHandler(zap.NewNop())
	h.RegisterCheck(NewRedisHealthCheck("redis", mgr.Ping))
	assert.Equal(t, "healthy", h.Evaluate(context.Background()).Status)

	mr.Close()
	assert.Equal(t, "degraded", h.Evaluate(context.Background()).Status)
}

func TestHealthHandler_HandleVersion(t *testing.T) {
	handler := NewHealthHandler(zap.NewNop())

	w := httptest.NewRecorder()
	handler.HandleVersion("1.0.0", "2026-03-01T00:00:00Z", "abc123")(w, httptest.NewRequest(http.MethodGet, "/version", nil))

	assert.Equal(t, http.StatusOK, w.Code)

	var resp Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.True(t, resp.Success)

	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "1.0.0", data["version"])
	assert.Equal(t, "abc123", data["git_commit"])
}

func TestHealthHandler_ConcurrentReady(t *testing.T) {
	handler := NewHealthHandler(zap.NewNop())
	for i := 0; i < 10; i++ {
		handler.RegisterCheck(&mockHealthCheck{name: string(rune('a' + i))})
	}

	done := make(chan int, 10)
	for i := 0; i < 10; i++ {
		go func() {
			w := httptest.NewRecorder()
			handler.HandleReady(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
			done <- w.Code
		}()
	}
	for i := 0; i < 10; i++ {
		assert.Equal(t, http.StatusOK, <-done)
	}
}
