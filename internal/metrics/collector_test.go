package metrics

import (
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/cardflow/llm/poller"
	"github.com/BaSui01/cardflow/orchestrator"
	"github.com/BaSui01/cardflow/structured"
)

var (
	_ orchestrator.Recorder = (*Collector)(nil)
	_ poller.Observer       = (*Collector)(nil)
)

func newTestCollector(t *testing.T) (*Collector, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return NewCollector("cardflow", reg, zap.NewNop()), reg
}

// =============================================================================
// 🧪 Collector 测试
// =============================================================================

func TestCollector_RecordHTTPRequest(t *testing.T) {
	c, _ := newTestCollector(t)

	c.RecordHTTPRequest("GET", "/api/v1/health", 200, 100*time.Millisecond, 1024)
	c.RecordHTTPRequest("GET", "/api/v1/health", 204, 50*time.Millisecond, 0)
	c.RecordHTTPRequest("POST", "/api/v1/generate/outline", 503, time.Second, 128)

	assert.Equal(t, float64(2), testutil.ToFloat64(c.httpRequestsTotal.WithLabelValues("GET", "/api/v1/health", "2xx")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.httpRequestsTotal.WithLabelValues("POST", "/api/v1/generate/outline", "5xx")))
}

func TestCollector_RecordOperation(t *testing.T) {
	c, _ := newTestCollector(t)

	c.RecordOperation("outline", "openai-compatible", "success", 2*time.Second)
	c.RecordOperation("outline", "openai-compatible", "RECOVERY_PARSE", time.Second)
	c.RecordOperation("image", "", "CONFIGURATION_UNAVAILABLE", time.Millisecond)

	assert.Equal(t, float64(1), testutil.ToFloat64(c.operationsTotal.WithLabelValues("outline", "openai-compatible", "success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.operationsTotal.WithLabelValues("outline", "openai-compatible", "RECOVERY_PARSE")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.operationsTotal.WithLabelValues("image", "none", "CONFIGURATION_UNAVAILABLE")))
	assert.Equal(t, 2, testutil.CollectAndCount(c.operationDuration))
}

func TestCollector_RecordRecovery(t *testing.T) {
	c, _ := newTestCollector(t)

	c.RecordRecovery("outline", structured.StageExtract, 0)
	c.RecordRecovery("outline", structured.StageRepairImagePrompt, 3)
	c.RecordCardFallback()
	c.RecordCardFallback()

	assert.Equal(t, float64(1), testutil.ToFloat64(c.recoveryStages.WithLabelValues("outline", string(structured.StageRepairImagePrompt))))
	assert.Equal(t, float64(3), testutil.ToFloat64(c.autoPrompts.WithLabelValues("outline")))
	assert.Equal(t, float64(2), testutil.ToFloat64(c.cardFallbacks))
}

func TestCollector_ObservePoll(t *testing.T) {
	c, _ := newTestCollector(t)

	c.ObservePoll("dashscope", string(poller.StatusSucceeded), 3, 6*time.Second)
	c.ObservePoll("dashscope", string(poller.StatusTimedOut), 60, 2*time.Minute)

	assert.Equal(t, float64(1), testutil.ToFloat64(c.pollsTotal.WithLabelValues("dashscope", string(poller.StatusTimedOut))))
	assert.Equal(t, 1, testutil.CollectAndCount(c.pollAttempts))
}

func TestCollector_RecordDBConnections(t *testing.T) {
	c, _ := newTestCollector(t)

	c.RecordDBConnections("sqlite", 10, 5)

	assert.Equal(t, float64(10), testutil.ToFloat64(c.dbConnectionsOpen.WithLabelValues("sqlite")))
	assert.Equal(t, float64(5), testutil.ToFloat64(c.dbConnectionsIdle.WithLabelValues("sqlite")))
}

func TestCollector_ConcurrentRecording(t *testing.T) {
	c, _ := newTestCollector(t)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.RecordHTTPRequest("GET", "/test", 200, 100*time.Millisecond, 1024)
			c.RecordOperation("chat", "openai-compatible", "success", time.Second)
			c.RecordCardFallback()
		}()
	}
	wg.Wait()

	assert.Equal(t, float64(10), testutil.ToFloat64(c.httpRequestsTotal.WithLabelValues("GET", "/test", "2xx")))
	assert.Equal(t, float64(10), testutil.ToFloat64(c.cardFallbacks))
}

func TestCollector_RegistersOnGivenRegistry(t *testing.T) {
	c, reg := newTestCollector(t)
	c.RecordCardFallback()

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "cardflow_card_prompt_fallbacks_total")

	// 同一 registry 重复注册会 panic
	assert.Panics(t, func() { NewCollector("cardflow", reg, zap.NewNop()) })
}

func TestStatusCode(t *testing.T) {
	assert.Equal(t, "2xx", statusCode(201))
	assert.Equal(t, "3xx", statusCode(302))
	assert.Equal(t, "4xx", statusCode(422))
	assert.Equal(t, "5xx", statusCode(503))
	assert.Equal(t, "unknown", statusCode(0))
}
