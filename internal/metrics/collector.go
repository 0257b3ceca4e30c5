// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/BaSui01/kpreconcile/internal/circuitbreaker"
	"github.com/BaSui01/kpreconcile/internal/database"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器
type Collector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpResponseSize    *prometheus.HistogramVec

	// 对账周期指标
	cyclesTotal        *prometheus.CounterVec
	cycleDuration      *prometheus.HistogramVec
	cyclesSkipped      *prometheus.CounterVec
	itemsTotal         *prometheus.CounterVec
	statusTransitions  *prometheus.CounterVec
	lastCycleTimestamp *prometheus.GaugeVec

	// 外部数据源指标
	sourceRequestsTotal   *prometheus.CounterVec
	sourceRequestDuration *prometheus.HistogramVec
	breakerState          *prometheus.GaugeVec

	// 分布式租约指标
	leaseAttempts *prometheus.CounterVec

	// 数据库指标
	dbConnectionsOpen  *prometheus.GaugeVec
	dbConnectionsIdle  *prometheus.GaugeVec
	dbConnectionsInUse *prometheus.GaugeVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// HTTP 指标
	c.httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	c.httpResponseSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_response_size_bytes",
			Help:      "HTTP response size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 6),
		},
		[]string{"method", "path"},
	)

	// 对账周期指标
	c.cyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Total number of reconciliation cycles by outcome",
		},
		[]string{"reconciler", "outcome"},
	)

	c.cycleDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Reconciliation cycle duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"reconciler"},
	)

	c.cyclesSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_skipped_total",
			Help:      "Cycles skipped because a previous cycle was still running",
		},
		[]string{"reconciler"},
	)

	c.itemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_total",
			Help:      "Per-pipeline reconciliation results",
		},
		[]string{"reconciler", "result"},
	)

	c.statusTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_transitions_total",
			Help:      "Pipeline status transitions written by reconciliation",
		},
		[]string{"field", "from", "to"},
	)

	c.lastCycleTimestamp = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_cycle_timestamp_seconds",
			Help:      "Unix time of the last finished reconciliation cycle",
		},
		[]string{"reconciler"},
	)

	// 外部数据源指标
	c.sourceRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_requests_total",
			Help:      "Total number of requests to external signal sources",
		},
		[]string{"source", "status"},
	)

	c.sourceRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "source_request_duration_seconds",
			Help:      "External signal source request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"source"},
	)

	c.breakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state (0 closed, 1 open, 2 half-open)",
		},
		[]string{"name"},
	)

	c.leaseAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lease_attempts_total",
			Help:      "Distributed cycle lease acquisition attempts",
		},
		[]string{"reconciler", "result"},
	)

	// 数据库指标
	c.dbConnectionsOpen = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_open",
			Help:      "Number of open database connections",
		},
		[]string{"database"},
	)

	c.dbConnectionsIdle = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_idle",
			Help:      "Number of idle database connections",
		},
		[]string{"database"},
	)

	c.dbConnectionsInUse = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_in_use",
			Help:      "Number of in-use database connections",
		},
		[]string{"database"},
	)

	c.logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🎯 HTTP 指标记录
// =============================================================================

// RecordHTTPRequest 记录 HTTP 请求
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration, responseSize int64) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	c.httpResponseSize.WithLabelValues(method, path).Observe(float64(responseSize))
}

// =============================================================================
// 🔁 对账周期指标记录
// =============================================================================

// ObserveCycle 记录一次完成的对账周期
func (c *Collector) ObserveCycle(reconciler, outcome string, duration time.Duration) {
	c.cyclesTotal.WithLabelValues(reconciler, outcome).Inc()
	c.cycleDuration.WithLabelValues(reconciler).Observe(duration.Seconds())
	c.lastCycleTimestamp.WithLabelValues(reconciler).SetToCurrentTime()
}

// ObserveSkippedCycle 记录因重入保护被跳过的周期
func (c *Collector) ObserveSkippedCycle(reconciler string) {
	c.cyclesSkipped.WithLabelValues(reconciler).Inc()
}

// ObserveItem 记录单条管道的处理结果
func (c *Collector) ObserveItem(reconciler, result string) {
	c.itemsTotal.WithLabelValues(reconciler, result).Inc()
}

// ObserveTransition 记录一次实际写入的状态变化
func (c *Collector) ObserveTransition(field, from, to string) {
	if from == "" {
		from = "unset"
	}
	c.statusTransitions.WithLabelValues(field, from, to).Inc()
}

// ObserveLease 记录分布式租约获取结果（acquired / held / error）
func (c *Collector) ObserveLease(reconciler, result string) {
	c.leaseAttempts.WithLabelValues(reconciler, result).Inc()
}

// =============================================================================
// 🌐 外部数据源指标记录
// =============================================================================

// ObserveSourceRequest 记录一次外部数据源请求，实现 sources.RequestObserver
func (c *Collector) ObserveSourceRequest(source, status string, seconds float64) {
	c.sourceRequestsTotal.WithLabelValues(source, status).Inc()
	c.sourceRequestDuration.WithLabelValues(source).Observe(seconds)
}

// RecordBreakerState 记录熔断器状态，签名与熔断器回调一致
func (c *Collector) RecordBreakerState(name string, from, to circuitbreaker.State) {
	c.breakerState.WithLabelValues(name).Set(float64(to))
	c.logger.Info("circuit breaker state changed",
		zap.String("name", name),
		zap.String("from", from.String()),
		zap.String("to", to.String()))
}

// =============================================================================
// 🗄️ 数据库指标记录
// =============================================================================

// RecordDBConnections 记录数据库连接数
func (c *Collector) RecordDBConnections(db string, stats database.PoolStats) {
	c.dbConnectionsOpen.WithLabelValues(db).Set(float64(stats.OpenConnections))
	c.dbConnectionsIdle.WithLabelValues(db).Set(float64(stats.Idle))
	c.dbConnectionsInUse.WithLabelValues(db).Set(float64(stats.InUse))
}

// DBStatsObserver 返回可注册到 database.PoolManager 的统计回调
func (c *Collector) DBStatsObserver(db string) database.StatsObserver {
	return func(stats database.PoolStats) {
		c.RecordDBConnections(db, stats)
	}
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// statusCode 将 HTTP 状态码转换为字符串
func statusCode(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
