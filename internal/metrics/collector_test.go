package metrics

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/BaSui01/agentrelay/handoff"
)

// =============================================================================
// 🧪 指标收集与记录测试
// =============================================================================

var namespaceSeq atomic.Uint64

// newTestCollector 为每个测试分配独立命名空间，规避默认 registry
// 的重复注册冲突
func newTestCollector(t *testing.T) *Collector {
	t.Helper()
	return NewCollector(fmt.Sprintf("test_%d", namespaceSeq.Add(1)), zap.NewNop())
}

func TestNewCollector(t *testing.T) {
	c := newTestCollector(t)

	assert.NotNil(t, c)
	assert.NotNil(t, c.handoffInitiationsTotal)
	assert.NotNil(t, c.handoffCompletionsTotal)
	assert.NotNil(t, c.handoffDuration)
	assert.NotNil(t, c.hydrationsTotal)
	assert.NotNil(t, c.httpRequestsTotal)
	assert.NotNil(t, c.httpRequestDuration)
}

func TestCollector_RecordInitiation(t *testing.T) {
	c := newTestCollector(t)

	c.RecordInitiation("companion", "analyst", "accepted")
	c.RecordInitiation("companion", "scribe", "rejected")
	c.RecordInitiation("companion", "analyst", "accepted")

	assert.Equal(t, float64(2), testutil.ToFloat64(c.handoffInitiationsTotal.WithLabelValues("companion", "analyst", "accepted")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.handoffInitiationsTotal.WithLabelValues("companion", "scribe", "rejected")))
}

func TestCollector_RecordCompletion(t *testing.T) {
	c := newTestCollector(t)

	c.RecordCompletion("companion", "analyst", handoff.StatusCompleted, true, 120*time.Millisecond)
	c.RecordCompletion("companion", "analyst", handoff.StatusCompleted, false, 80*time.Millisecond)
	c.RecordCompletion("companion", "analyst", handoff.StatusFailed, false, 30*time.Millisecond)

	// durable 标签区分落盘完成与降级完成
	assert.Equal(t, float64(1), testutil.ToFloat64(c.handoffCompletionsTotal.WithLabelValues("companion", "analyst", "completed", "true")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.handoffCompletionsTotal.WithLabelValues("companion", "analyst", "completed", "false")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.handoffCompletionsTotal.WithLabelValues("companion", "analyst", "failed", "false")))
	assert.Greater(t, testutil.CollectAndCount(c.handoffDuration), 0)
}

func TestCollector_RecordHydration(t *testing.T) {
	c := newTestCollector(t)

	c.RecordHydration("analyst", "ok")
	c.RecordHydration("analyst", "degraded")

	assert.Equal(t, float64(1), testutil.ToFloat64(c.hydrationsTotal.WithLabelValues("analyst", "ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.hydrationsTotal.WithLabelValues("analyst", "degraded")))
}

func TestCollector_SetActiveHandoffs(t *testing.T) {
	c := newTestCollector(t)

	c.SetActiveHandoffs(3)
	assert.Equal(t, float64(3), testutil.ToFloat64(c.handoffActive))

	c.SetActiveHandoffs(0)
	assert.Equal(t, float64(0), testutil.ToFloat64(c.handoffActive))
}

func TestCollector_RecordHTTPRequest(t *testing.T) {
	c := newTestCollector(t)

	c.RecordHTTPRequest("POST", "/api/v1/handoffs", 202, 100*time.Millisecond, 1024, 2048)
	assert.Greater(t, testutil.CollectAndCount(c.httpRequestsTotal), 0)

	// 同一路由再次记录，计数落入 2xx 桶累加
	c.RecordHTTPRequest("POST", "/api/v1/handoffs", 202, 50*time.Millisecond, 512, 1024)
	assert.Equal(t, float64(2), testutil.ToFloat64(c.httpRequestsTotal.WithLabelValues("POST", "/api/v1/handoffs", "2xx")))
}

func TestCollector_RecordDBConnections(t *testing.T) {
	c := newTestCollector(t)

	c.RecordDBConnections("postgres", 10, 5)

	assert.Equal(t, float64(10), testutil.ToFloat64(c.dbConnectionsOpen.WithLabelValues("postgres")))
	assert.Equal(t, float64(5), testutil.ToFloat64(c.dbConnectionsIdle.WithLabelValues("postgres")))
}

func TestCollector_ConcurrentRecording(t *testing.T) {
	c := newTestCollector(t)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.RecordInitiation("companion", "analyst", "accepted")
			c.RecordCompletion("companion", "analyst", handoff.StatusCompleted, true, 100*time.Millisecond)
			c.RecordHydration("analyst", "ok")
		}()
	}
	wg.Wait()

	assert.Equal(t, float64(10), testutil.ToFloat64(c.handoffInitiationsTotal.WithLabelValues("companion", "analyst", "accepted")))
	assert.Equal(t, float64(10), testutil.ToFloat64(c.handoffCompletionsTotal.WithLabelValues("companion", "analyst", "completed", "true")))
	assert.Equal(t, float64(10), testutil.ToFloat64(c.hydrationsTotal.WithLabelValues("analyst", "ok")))
}

func TestCollector_ManualRegistration(t *testing.T) {
	c := newTestCollector(t)

	// promauto 已挂默认 registry，向量仍可另挂自定义 registry
	registry := prometheus.NewRegistry()
	registry.MustRegister(c.handoffInitiationsTotal, c.handoffCompletionsTotal)

	c.RecordInitiation("companion", "analyst", "accepted")
	assert.Greater(t, testutil.CollectAndCount(c.handoffInitiationsTotal), 0)
}

func TestStatusCode(t *testing.T) {
	cases := map[int]string{200: "2xx", 204: "2xx", 301: "3xx", 404: "4xx", 500: "5xx", 503: "5xx", 100: "unknown"}
	for code, want := range cases {
		assert.Equal(t, want, statusCode(code), "code %d", code)
	}
}
