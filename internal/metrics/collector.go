// Package metrics registers and records the relay's Prometheus
// instruments. Internal use only.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/BaSui01/agentrelay/handoff"
)

// =============================================================================
// 📊 Prometheus 指标收集器
// =============================================================================

// Collector 汇集交接管线、HTTP 接口与连接池三类指标
type Collector struct {
	// 交接生命周期
	handoffInitiationsTotal *prometheus.CounterVec
	handoffCompletionsTotal *prometheus.CounterVec
	handoffDuration         *prometheus.HistogramVec
	handoffActive           prometheus.Gauge
	hydrationsTotal         *prometheus.CounterVec

	// HTTP 服务
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpRequestSize     *prometheus.HistogramVec
	httpResponseSize    *prometheus.HistogramVec

	// 连接池水位
	dbConnectionsOpen *prometheus.GaugeVec
	dbConnectionsIdle *prometheus.GaugeVec

	logger *zap.Logger
}

var _ handoff.MetricsRecorder = (*Collector)(nil)

// NewCollector 创建指标收集器并经 promauto 注册到默认 registry
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	newCounter := func(name, help string, labels ...string) *prometheus.CounterVec {
		return promauto.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: name, Help: help}, labels)
	}
	newHistogram := func(name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
		return promauto.NewHistogramVec(prometheus.HistogramOpts{Namespace: namespace, Name: name, Help: help, Buckets: buckets}, labels)
	}
	newGauge := func(name, help string, labels ...string) *prometheus.GaugeVec {
		return promauto.NewGaugeVec(prometheus.GaugeOpts{Namespace: namespace, Name: name, Help: help}, labels)
	}

	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),

		handoffInitiationsTotal: newCounter("handoff_initiations_total",
			"Total number of handoff initiation attempts", "source", "target", "outcome"),
		handoffCompletionsTotal: newCounter("handoff_completions_total",
			"Total number of handoffs reaching a terminal status", "source", "target", "status", "durable"),
		handoffDuration: newHistogram("handoff_duration_seconds",
			"Time from initiation to terminal status",
			[]float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10}, "source", "target"),
		handoffActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "handoff_active",
			Help:      "Number of handoffs currently in a non-terminal status",
		}),
		hydrationsTotal: newCounter("handoff_hydrations_total",
			"Total number of target-side context hydration attempts", "target", "outcome"),

		httpRequestsTotal: newCounter("http_requests_total",
			"Total number of HTTP requests", "method", "path", "status"),
		httpRequestDuration: newHistogram("http_request_duration_seconds",
			"HTTP request duration in seconds", prometheus.DefBuckets, "method", "path"),
		httpRequestSize: newHistogram("http_request_size_bytes",
			"HTTP request size in bytes", prometheus.ExponentialBuckets(100, 10, 8), "method", "path"),
		httpResponseSize: newHistogram("http_response_size_bytes",
			"HTTP response size in bytes", prometheus.ExponentialBuckets(100, 10, 8), "method", "path"),

		dbConnectionsOpen: newGauge("db_connections_open",
			"Number of open database connections", "database"),
		dbConnectionsIdle: newGauge("db_connections_idle",
			"Number of idle database connections", "database"),
	}

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))
	return c
}

// =============================================================================
// 🔁 交接指标记录
// =============================================================================

// RecordInitiation 记录一次交接发起尝试
func (c *Collector) RecordInitiation(source, target, outcome string) {
	c.handoffInitiationsTotal.WithLabelValues(source, target, outcome).Inc()
}

// RecordCompletion 记录一次到达终态的交接
func (c *Collector) RecordCompletion(source, target string, status handoff.HandoffStatus, durable bool, elapsed time.Duration) {
	c.handoffCompletionsTotal.WithLabelValues(source, target, string(status), strconv.FormatBool(durable)).Inc()
	c.handoffDuration.WithLabelValues(source, target).Observe(elapsed.Seconds())
}

// RecordHydration 记录一次目标侧上下文水合尝试
func (c *Collector) RecordHydration(target, outcome string) {
	c.hydrationsTotal.WithLabelValues(target, outcome).Inc()
}

// SetActiveHandoffs 更新在途交接数量
func (c *Collector) SetActiveHandoffs(count int) {
	c.handoffActive.Set(float64(count))
}

// =============================================================================
// 🎯 HTTP 指标记录
// =============================================================================

// RecordHTTPRequest 记录 HTTP 请求
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration, requestSize, responseSize int64) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	c.httpRequestSize.WithLabelValues(method, path).Observe(float64(requestSize))
	c.httpResponseSize.WithLabelValues(method, path).Observe(float64(responseSize))
}

// =============================================================================
// 🗄️ 连接池指标记录
// =============================================================================

// RecordDBConnections 上报连接池的打开与空闲连接数
func (c *Collector) RecordDBConnections(database string, open, idle int) {
	c.dbConnectionsOpen.WithLabelValues(database).Set(float64(open))
	c.dbConnectionsIdle.WithLabelValues(database).Set(float64(idle))
}

// =============================================================================
// 🔧 标签辅助
// =============================================================================

// statusCode 把具体状态码折叠为 2xx/3xx/4xx/5xx 桶，1xx 等罕见
// 情况归入 unknown，避免标签基数膨胀
func statusCode(code int) string {
	switch code / 100 {
	case 2:
		return "2xx"
	case 3:
		return "3xx"
	case 4:
		return "4xx"
	case 5:
		return "5xx"
	default:
		return "unknown"
	}
}
