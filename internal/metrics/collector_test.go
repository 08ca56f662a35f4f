package metrics

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

// promauto registers on the default registry, so every test gets its own
// namespace to avoid duplicate registration across the package run.
var collectorNamespaceSeq uint64

func nextTestNamespace() string {
	seq := atomic.AddUint64(&collectorNamespaceSeq, 1)
	return fmt.Sprintf("test_%d", seq)
}

func TestNewCollector(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	assert.NotNil(t, collector)
	assert.NotNil(t, collector.httpRequestsTotal)
	assert.NotNil(t, collector.httpRequestDuration)
	assert.NotNil(t, collector.sendsTotal)
	assert.NotNil(t, collector.sendDuration)
	assert.NotNil(t, collector.retriesTotal)
	assert.NotNil(t, collector.rateLimitWait)
}

func TestCollector_RecordHTTPRequest(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordHTTPRequest("POST", "/v1/chat/completions", 200, 100*time.Millisecond, 2048)

	count := testutil.CollectAndCount(collector.httpRequestsTotal)
	assert.Greater(t, count, 0)

	collector.RecordHTTPRequest("POST", "/v1/chat/completions", 500, 50*time.Millisecond, 128)

	newCount := testutil.CollectAndCount(collector.httpRequestsTotal)
	assert.GreaterOrEqual(t, newCount, count)
}

func TestCollector_RecordSend(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordSend("claude-2.1", "ok", 42*time.Second)
	collector.RecordSend("claude-2.1", "NO_RESPONSE", 120*time.Second)

	count := testutil.CollectAndCount(collector.sendsTotal)
	assert.Equal(t, 2, count)

	durCount := testutil.CollectAndCount(collector.sendDuration)
	assert.Greater(t, durCount, 0)
}

func TestCollector_RecordRetry(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordRetry("CAPACITY")
	collector.RecordRetry("")

	count := testutil.CollectAndCount(collector.retriesTotal)
	// empty code lands in the "unknown" series
	assert.Equal(t, 2, count)
}

func TestCollector_RecordRecovery(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordRateLimitWait(90 * time.Minute)
	collector.RecordReload()
	collector.RecordThrottle()
	collector.RecordPolls(7)

	assert.Greater(t, testutil.CollectAndCount(collector.rateLimitWait), 0)
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.reloadsTotal))
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.throttles))
	assert.Greater(t, testutil.CollectAndCount(collector.pollsPerSend), 0)
}

func TestCollector_SetConversations(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.SetConversations(3)
	assert.Equal(t, float64(3), testutil.ToFloat64(collector.conversations))

	collector.SetConversations(1)
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.conversations))
}

func TestCollector_ConcurrentRecording(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	done := make(chan bool)
	for i := 0; i < 10; i++ {
		go func() {
			collector.RecordHTTPRequest("POST", "/v1/completions", 200, 100*time.Millisecond, 1024)
			collector.RecordSend("claude-2.1", "ok", 30*time.Second)
			collector.RecordRetry("TIMEOUT")
			done <- true
		}()
	}
	for i := 0; i < 10; i++ {
		<-done
	}

	assert.Greater(t, testutil.CollectAndCount(collector.httpRequestsTotal), 0)
	assert.Greater(t, testutil.CollectAndCount(collector.sendsTotal), 0)
	assert.Greater(t, testutil.CollectAndCount(collector.retriesTotal), 0)
}
