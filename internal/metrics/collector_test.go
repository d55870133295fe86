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
)

var collectorNamespaceSeq uint64

func nextTestNamespace() string {
	seq := atomic.AddUint64(&collectorNamespaceSeq, 1)
	return fmt.Sprintf("test_%d", seq)
}

// =============================================================================
// 🧪 Collector 测试
// =============================================================================

func TestNewCollector(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), nil)

	assert.NotNil(t, collector)
	assert.NotNil(t, collector.httpRequestsTotal)
	assert.NotNil(t, collector.taskExecutionsTotal)
	assert.NotNil(t, collector.queuePending)
	assert.NotNil(t, collector.breakerState)
}

func TestCollector_RecordHTTPRequest(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordHTTPRequest("GET", "/test", 200, 100*time.Millisecond, 1024, 2048)
	collector.RecordHTTPRequest("GET", "/test", 200, 50*time.Millisecond, 512, 1024)
	collector.RecordHTTPRequest("POST", "/test", 503, 10*time.Millisecond, 0, 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(collector.httpRequestsTotal.WithLabelValues("GET", "/test", "2xx")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.httpRequestsTotal.WithLabelValues("POST", "/test", "5xx")))
}

func TestCollector_RecordTaskExecution(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordTaskExecution("analysis", "success", 200*time.Millisecond)
	collector.RecordTaskExecution("analysis", "failure", time.Second)
	collector.RecordTaskExecution("analysis", "success", 50*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(collector.taskExecutionsTotal.WithLabelValues("analysis", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.taskExecutionsTotal.WithLabelValues("analysis", "failure")))
	assert.Equal(t, 1, testutil.CollectAndCount(collector.taskExecutionDuration))
}

func TestCollector_HiveGauges(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.SetAgents(5, 2)
	collector.SetQueue(3, 7, 0.1)
	collector.SetBreakerState("io", 1)
	collector.SetResourceUsage("cpu", 0.42)
	collector.RecordResourceAlert("memory")
	collector.RecordResourceAlert("memory")

	assert.Equal(t, 5.0, testutil.ToFloat64(collector.agentsTotal))
	assert.Equal(t, 2.0, testutil.ToFloat64(collector.agentsActive))
	assert.Equal(t, 3.0, testutil.ToFloat64(collector.queuePending.WithLabelValues("legacy")))
	assert.Equal(t, 7.0, testutil.ToFloat64(collector.queuePending.WithLabelValues("work_stealing")))
	assert.Equal(t, 0.1, testutil.ToFloat64(collector.queueUtilization))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.breakerState.WithLabelValues("io")))
	assert.Equal(t, 0.42, testutil.ToFloat64(collector.resourceUsage.WithLabelValues("cpu")))
	assert.Equal(t, 2.0, testutil.ToFloat64(collector.resourceAlerts.WithLabelValues("memory")))
}

func TestCollector_UpdateConnectionPool(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordDBConnections("postgres", 10, 5)

	assert.Equal(t, 10.0, testutil.ToFloat64(collector.dbConnectionsOpen.WithLabelValues("postgres")))
	assert.Equal(t, 5.0, testutil.ToFloat64(collector.dbConnectionsIdle.WithLabelValues("postgres")))
}

func TestCollector_ConcurrentRecording(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			collector.RecordHTTPRequest("GET", "/test", 200, 100*time.Millisecond, 1024, 2048)
			collector.RecordTaskExecution("io", "success", 10*time.Millisecond)
		}()
	}
	wg.Wait()

	assert.Equal(t, 10.0, testutil.ToFloat64(collector.httpRequestsTotal.WithLabelValues("GET", "/test", "2xx")))
	assert.Equal(t, 10.0, testutil.ToFloat64(collector.taskExecutionsTotal.WithLabelValues("io", "success")))
}

func TestCollector_MetricsRegistration(t *testing.T) {
	registry := prometheus.NewRegistry()
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	registry.MustRegister(collector.httpRequestsTotal)
	registry.MustRegister(collector.taskExecutionsTotal)

	collector.RecordHTTPRequest("GET", "/test", 200, 100*time.Millisecond, 0, 0)
	collector.RecordTaskExecution("io", "timeout", time.Second)

	count, err := testutil.GatherAndCount(registry)
	assert.NoError(t, err)
	assert.Equal(t, 2, count)
}
