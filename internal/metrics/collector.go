// =============================================================================
// beads Prometheus collector
// =============================================================================
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// Metrics collector
// =============================================================================

// Collector aggregates the Prometheus metrics emitted by the task store,
// lease manager, message bus, memory store, quality engine, and scheduler.
type Collector struct {
	// Task claim metrics
	taskClaimsTotal      *prometheus.CounterVec
	taskClaimDuration    *prometheus.HistogramVec
	taskRetriesTotal     *prometheus.CounterVec
	taskStateTransitions *prometheus.CounterVec

	// Lease metrics
	leaseAcquisitionsTotal *prometheus.CounterVec
	leaseExpiredTotal      prometheus.Counter

	// Message bus metrics
	busMessagesSentTotal      *prometheus.CounterVec
	busMessagesDeliveredTotal *prometheus.CounterVec
	busMessagesAcknowledged   *prometheus.CounterVec

	// Memory store metrics
	memoryCompactionsTotal *prometheus.CounterVec
	memoryEntriesEvicted   prometheus.Counter
	memorySearchDuration   prometheus.Histogram

	// Quality engine metrics
	regressionsDetectedTotal *prometheus.CounterVec
	qualityGateFailures      *prometheus.CounterVec

	// Database metrics
	dbConnectionsOpen *prometheus.GaugeVec
	dbConnectionsIdle *prometheus.GaugeVec
	dbQueryDuration   *prometheus.HistogramVec

	logger *zap.Logger
}

// NewCollector creates a metrics collector whose series are namespaced under
// the given prefix (e.g. "beads").
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.taskClaimsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "task_claims_total",
			Help:      "Total number of task claim attempts",
		},
		[]string{"agent_id", "result"}, // result: claimed, empty, stolen
	)

	c.taskClaimDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "task_claim_duration_seconds",
			Help:      "Duration of the claim transaction",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"agent_id"},
	)

	c.taskRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "task_retries_total",
			Help:      "Total number of task retry transitions",
		},
		[]string{"failure_type"},
	)

	c.taskStateTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "task_state_transitions_total",
			Help:      "Total number of task status transitions",
		},
		[]string{"from_status", "to_status"},
	)

	c.leaseAcquisitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lease_acquisitions_total",
			Help:      "Total number of lease acquire attempts",
		},
		[]string{"result"}, // result: acquired, denied
	)

	c.leaseExpiredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lease_expired_total",
			Help:      "Total number of leases reclaimed after expiry",
		},
	)

	c.busMessagesSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bus_messages_sent_total",
			Help:      "Total number of messages sent on the bus",
		},
		[]string{"type", "broadcast"},
	)

	c.busMessagesDeliveredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bus_messages_delivered_total",
			Help:      "Total number of messages marked delivered",
		},
		[]string{"type"},
	)

	c.busMessagesAcknowledged = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bus_messages_acknowledged_total",
			Help:      "Total number of messages acknowledged",
		},
		[]string{"type"},
	)

	c.memoryCompactionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "memory_compactions_total",
			Help:      "Total number of compaction runs",
		},
		[]string{"kind"}, // kind: adaptive, full
	)

	c.memoryEntriesEvicted = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "memory_entries_evicted_total",
			Help:      "Total number of memory entries evicted by compaction",
		},
	)

	c.memorySearchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "memory_search_duration_seconds",
			Help:      "Duration of semantic search over stored embeddings",
			Buckets:   prometheus.DefBuckets,
		},
	)

	c.regressionsDetectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "regressions_detected_total",
			Help:      "Total number of regressions detected, by type and severity",
		},
		[]string{"type", "severity"},
	)

	c.qualityGateFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quality_gate_failures_total",
			Help:      "Total number of quality gate failures",
		},
		[]string{"gate_id", "blocking"},
	)

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

	c.dbQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "db_query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"database", "operation"},
	)

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// Task Store
// =============================================================================

// RecordTaskClaim records the outcome of a claim attempt.
func (c *Collector) RecordTaskClaim(agentID, result string, duration time.Duration) {
	c.taskClaimsTotal.WithLabelValues(agentID, result).Inc()
	c.taskClaimDuration.WithLabelValues(agentID).Observe(duration.Seconds())
}

// RecordTaskRetry records a retry transition for the given failure type.
func (c *Collector) RecordTaskRetry(failureType string) {
	c.taskRetriesTotal.WithLabelValues(failureType).Inc()
}

// RecordTaskStateTransition records a task status change.
func (c *Collector) RecordTaskStateTransition(fromStatus, toStatus string) {
	c.taskStateTransitions.WithLabelValues(fromStatus, toStatus).Inc()
}

// =============================================================================
// Lease Manager
// =============================================================================

// RecordLeaseAcquisition records the outcome of an acquire call.
func (c *Collector) RecordLeaseAcquisition(acquired bool) {
	result := "denied"
	if acquired {
		result = "acquired"
	}
	c.leaseAcquisitionsTotal.WithLabelValues(result).Inc()
}

// RecordLeaseExpired records a lease reclaimed by the stale reaper or a
// competing acquire.
func (c *Collector) RecordLeaseExpired() {
	c.leaseExpiredTotal.Inc()
}

// =============================================================================
// Message Bus
// =============================================================================

// RecordMessageSent records a send/broadcast call.
func (c *Collector) RecordMessageSent(msgType string, broadcast bool) {
	b := "false"
	if broadcast {
		b = "true"
	}
	c.busMessagesSentTotal.WithLabelValues(msgType, b).Inc()
}

// RecordMessageDelivered records a markDelivered call.
func (c *Collector) RecordMessageDelivered(msgType string) {
	c.busMessagesDeliveredTotal.WithLabelValues(msgType).Inc()
}

// RecordMessageAcknowledged records an acknowledge call.
func (c *Collector) RecordMessageAcknowledged(msgType string) {
	c.busMessagesAcknowledged.WithLabelValues(msgType).Inc()
}

// =============================================================================
// Memory Store
// =============================================================================

// RecordCompaction records a compaction run and how many entries it evicted.
func (c *Collector) RecordCompaction(kind string, evicted int) {
	c.memoryCompactionsTotal.WithLabelValues(kind).Inc()
	c.memoryEntriesEvicted.Add(float64(evicted))
}

// RecordSearchDuration records a semanticSearch call's wall time.
func (c *Collector) RecordSearchDuration(d time.Duration) {
	c.memorySearchDuration.Observe(d.Seconds())
}

// =============================================================================
// Quality Engine
// =============================================================================

// RecordRegression records a detected regression by type and severity.
func (c *Collector) RecordRegression(regressionType, severity string) {
	c.regressionsDetectedTotal.WithLabelValues(regressionType, severity).Inc()
}

// RecordGateFailure records a failed quality gate.
func (c *Collector) RecordGateFailure(gateID string, blocking bool) {
	b := "false"
	if blocking {
		b = "true"
	}
	c.qualityGateFailures.WithLabelValues(gateID, b).Inc()
}

// =============================================================================
// Database
// =============================================================================

// RecordDBConnections records the current open/idle connection counts.
func (c *Collector) RecordDBConnections(database string, open, idle int) {
	c.dbConnectionsOpen.WithLabelValues(database).Set(float64(open))
	c.dbConnectionsIdle.WithLabelValues(database).Set(float64(idle))
}

// RecordDBQuery records a single query's duration.
func (c *Collector) RecordDBQuery(database, operation string, duration time.Duration) {
	c.dbQueryDuration.WithLabelValues(database, operation).Observe(duration.Seconds())
}
