package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Transaction metrics
	TransactionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hollow_transactions_total",
			Help: "Total number of applied transactions by outcome",
		},
		[]string{"outcome"},
	)

	TransactionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hollow_transaction_duration_seconds",
			Help:    "Time taken to apply a transaction in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	DocumentOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hollow_document_operations_total",
			Help: "Total number of document operations by collection and kind",
		},
		[]string{"collection", "kind"},
	)

	// Collection / view size metrics, refreshed by Collector
	DocumentsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hollow_documents_total",
			Help: "Current number of live documents by collection",
		},
		[]string{"collection"},
	)

	ViewEntriesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hollow_view_entries_total",
			Help: "Current number of index entries by qualified view name",
		},
		[]string{"view"},
	)

	// Query metrics
	QueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hollow_query_duration_seconds",
			Help:    "Query execution duration in seconds by view and operation",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"view", "operation"},
	)

	QueryRowsReturned = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hollow_query_rows_returned",
			Help:    "Number of rows returned per query by view",
			Buckets: []float64{0, 1, 10, 100, 1000, 10000},
		},
		[]string{"view"},
	)

	// Key-value sidestore metrics
	KVOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hollow_kv_operations_total",
			Help: "Total number of key-value sidestore operations by namespace and kind",
		},
		[]string{"namespace", "kind"},
	)

	// Compaction metrics
	CompactionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hollow_compactions_total",
			Help: "Total number of completed compaction passes",
		},
	)

	CompactionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hollow_compaction_duration_seconds",
			Help:    "Time taken to run a compaction pass in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300},
		},
	)

	// Replication metrics; registered, but pkg/replicate does not set them
	RaftLeader = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hollow_raft_is_leader",
			Help: "Whether this node is the Raft leader (1 = leader, 0 = follower)",
		},
	)

	RaftPeers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hollow_raft_peers_total",
			Help: "Total number of Raft peers in the cluster",
		},
	)

	RaftAppliedIndex = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hollow_raft_applied_index",
			Help: "Last applied Raft log index",
		},
	)

	// RPC facade metrics; registered, but pkg/rpc does not set them
	RPCRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hollow_rpc_requests_total",
			Help: "Total number of RPC requests by method and status",
		},
		[]string{"method", "status"},
	)

	RPCRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hollow_rpc_request_duration_seconds",
			Help:    "RPC request duration in seconds by method",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)
)

func init() {
	prometheus.MustRegister(TransactionsTotal)
	prometheus.MustRegister(TransactionDuration)
	prometheus.MustRegister(DocumentOperationsTotal)
	prometheus.MustRegister(DocumentsTotal)
	prometheus.MustRegister(ViewEntriesTotal)
	prometheus.MustRegister(QueryDuration)
	prometheus.MustRegister(QueryRowsReturned)
	prometheus.MustRegister(KVOperationsTotal)
	prometheus.MustRegister(CompactionsTotal)
	prometheus.MustRegister(CompactionDuration)
	prometheus.MustRegister(RaftLeader)
	prometheus.MustRegister(RaftPeers)
	prometheus.MustRegister(RaftAppliedIndex)
	prometheus.MustRegister(RPCRequestsTotal)
	prometheus.MustRegister(RPCRequestDuration)
}

// Handler returns the Prometheus HTTP handler for /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
