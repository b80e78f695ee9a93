package metrics

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// collectorNamespaceSeq avoids Prometheus default-registry collisions when
// multiple tests construct a Collector under the same process.
var collectorNamespaceSeq uint64

func nextTestNamespace() string {
	n := atomic.AddUint64(&collectorNamespaceSeq, 1)
	return fmt.Sprintf("beads_test_%d", n)
}

func TestNewCollector(t *testing.T) {
	c := NewCollector(nextTestNamespace(), zap.NewNop())
	require.NotNil(t, c)
	assert.NotNil(t, c.taskClaimsTotal)
	assert.NotNil(t, c.leaseAcquisitionsTotal)
	assert.NotNil(t, c.busMessagesSentTotal)
	assert.NotNil(t, c.memoryCompactionsTotal)
	assert.NotNil(t, c.regressionsDetectedTotal)
	assert.NotNil(t, c.dbConnectionsOpen)
}

func TestCollector_RecordTaskClaim(t *testing.T) {
	c := NewCollector(nextTestNamespace(), zap.NewNop())

	c.RecordTaskClaim("agent-1", "claimed", 15*time.Millisecond)
	c.RecordTaskClaim("agent-1", "empty", 2*time.Millisecond)

	assert.Equal(t, float64(1), testutil.ToFloat64(c.taskClaimsTotal.WithLabelValues("agent-1", "claimed")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.taskClaimsTotal.WithLabelValues("agent-1", "empty")))
}

func TestCollector_RecordTaskRetry(t *testing.T) {
	c := NewCollector(nextTestNamespace(), zap.NewNop())

	c.RecordTaskRetry("timeout")
	c.RecordTaskRetry("timeout")

	assert.Equal(t, float64(2), testutil.ToFloat64(c.taskRetriesTotal.WithLabelValues("timeout")))
}

func TestCollector_RecordTaskStateTransition(t *testing.T) {
	c := NewCollector(nextTestNamespace(), zap.NewNop())

	c.RecordTaskStateTransition("ready", "claimed")

	assert.Equal(t, float64(1), testutil.ToFloat64(c.taskStateTransitions.WithLabelValues("ready", "claimed")))
}

func TestCollector_RecordLeaseAcquisition(t *testing.T) {
	c := NewCollector(nextTestNamespace(), zap.NewNop())

	c.RecordLeaseAcquisition(true)
	c.RecordLeaseAcquisition(false)
	c.RecordLeaseAcquisition(false)

	assert.Equal(t, float64(1), testutil.ToFloat64(c.leaseAcquisitionsTotal.WithLabelValues("acquired")))
	assert.Equal(t, float64(2), testutil.ToFloat64(c.leaseAcquisitionsTotal.WithLabelValues("denied")))
}

func TestCollector_RecordLeaseExpired(t *testing.T) {
	c := NewCollector(nextTestNamespace(), zap.NewNop())

	c.RecordLeaseExpired()
	c.RecordLeaseExpired()

	assert.Equal(t, float64(2), testutil.ToFloat64(c.leaseExpiredTotal))
}

func TestCollector_RecordMessageLifecycle(t *testing.T) {
	c := NewCollector(nextTestNamespace(), zap.NewNop())

	c.RecordMessageSent("task_assigned", false)
	c.RecordMessageSent("broadcast_halt", true)
	c.RecordMessageDelivered("task_assigned")
	c.RecordMessageAcknowledged("task_assigned")

	assert.Equal(t, float64(1), testutil.ToFloat64(c.busMessagesSentTotal.WithLabelValues("task_assigned", "false")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.busMessagesSentTotal.WithLabelValues("broadcast_halt", "true")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.busMessagesDeliveredTotal.WithLabelValues("task_assigned")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.busMessagesAcknowledged.WithLabelValues("task_assigned")))
}

func TestCollector_RecordCompaction(t *testing.T) {
	c := NewCollector(nextTestNamespace(), zap.NewNop())

	c.RecordCompaction("adaptive", 7)
	c.RecordCompaction("full", 3)

	assert.Equal(t, float64(1), testutil.ToFloat64(c.memoryCompactionsTotal.WithLabelValues("adaptive")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.memoryCompactionsTotal.WithLabelValues("full")))
	assert.Equal(t, float64(10), testutil.ToFloat64(c.memoryEntriesEvicted))
}

func TestCollector_RecordSearchDuration(t *testing.T) {
	c := NewCollector(nextTestNamespace(), zap.NewNop())

	c.RecordSearchDuration(5 * time.Millisecond)

	assert.Equal(t, 1, testutil.CollectAndCount(c.memorySearchDuration))
}

func TestCollector_RecordRegression(t *testing.T) {
	c := NewCollector(nextTestNamespace(), zap.NewNop())

	c.RecordRegression("lint_regression", "medium")
	c.RecordRegression("build_failure", "critical")

	assert.Equal(t, float64(1), testutil.ToFloat64(c.regressionsDetectedTotal.WithLabelValues("lint_regression", "medium")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.regressionsDetectedTotal.WithLabelValues("build_failure", "critical")))
}

func TestCollector_RecordGateFailure(t *testing.T) {
	c := NewCollector(nextTestNamespace(), zap.NewNop())

	c.RecordGateFailure("lint_errors", true)

	assert.Equal(t, float64(1), testutil.ToFloat64(c.qualityGateFailures.WithLabelValues("lint_errors", "true")))
}

func TestCollector_RecordDBConnections(t *testing.T) {
	c := NewCollector(nextTestNamespace(), zap.NewNop())

	c.RecordDBConnections("primary", 10, 4)

	assert.Equal(t, float64(10), testutil.ToFloat64(c.dbConnectionsOpen.WithLabelValues("primary")))
	assert.Equal(t, float64(4), testutil.ToFloat64(c.dbConnectionsIdle.WithLabelValues("primary")))
}

func TestCollector_RecordDBQuery(t *testing.T) {
	c := NewCollector(nextTestNamespace(), zap.NewNop())

	c.RecordDBQuery("primary", "select", 3*time.Millisecond)

	assert.Equal(t, 1, testutil.CollectAndCount(c.dbQueryDuration))
}

func TestCollector_ConcurrentRecording(t *testing.T) {
	c := NewCollector(nextTestNamespace(), zap.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c.RecordTaskClaim("agent-1", "claimed", time.Millisecond)
			c.RecordLeaseAcquisition(i%2 == 0)
			c.RecordMessageSent("heartbeat", false)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, float64(50), testutil.ToFloat64(c.taskClaimsTotal.WithLabelValues("agent-1", "claimed")))
	assert.Equal(t, float64(50), testutil.ToFloat64(c.busMessagesSentTotal.WithLabelValues("heartbeat", "false")))
}

func TestCollector_MetricsRegistration(t *testing.T) {
	c := NewCollector(nextTestNamespace(), zap.NewNop())
	require.NotNil(t, c)

	// A second collector under a distinct namespace must not collide with
	// the default Prometheus registry.
	c2 := NewCollector(nextTestNamespace(), zap.NewNop())
	require.NotNil(t, c2)
}
