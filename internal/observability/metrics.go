// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Ingestion metrics
	BlocksProcessed   *prometheus.CounterVec
	BlocksSkipped     *prometheus.CounterVec
	ContractsDetected *prometheus.CounterVec
	TokensClassified  *prometheus.CounterVec
	CheckpointHeight  *prometheus.GaugeVec
	ChainHead         *prometheus.GaugeVec

	// Analysis metrics
	PoolProbes       *prometheus.CounterVec
	AnalysesTotal    *prometheus.CounterVec
	AnalysisDuration prometheus.Histogram
	TasksEnqueued    *prometheus.CounterVec
	RiskLevels       *prometheus.CounterVec

	// Dependency metrics
	RPCCallLatency *prometheus.HistogramVec
	RPCCallErrors  *prometheus.CounterVec
	GraphFailures  *prometheus.CounterVec

	// Health metrics
	LastSuccessfulBatch    *prometheus.GaugeVec
	LastSuccessfulAnalysis prometheus.Gauge
}

// NewMetrics creates a new Metrics instance registered on the default registry.
func NewMetrics(namespace string) *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer, namespace)
}

// NewMetricsWith registers the metrics on reg. Tests pass a fresh registry.
func NewMetricsWith(reg prometheus.Registerer, namespace string) *Metrics {
	if namespace == "" {
		namespace = "sentinel"
	}
	f := promauto.With(reg)

	return &Metrics{
		BlocksProcessed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "blocks_processed_total",
			Help:      "Total number of blocks processed by chain",
		}, []string{"chain"}),
		BlocksSkipped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "blocks_skipped_total",
			Help:      "Total number of blocks skipped after a fetch or processing failure",
		}, []string{"chain"}),
		ContractsDetected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "contracts_detected_total",
			Help:      "Total number of contract creations detected",
		}, []string{"chain"}),
		TokensClassified: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "tokens_classified_total",
			Help:      "Total number of contracts classified as fungible tokens",
		}, []string{"chain"}),
		CheckpointHeight: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "checkpoint_block",
			Help:      "Last checkpointed block number by chain",
		}, []string{"chain"}),
		ChainHead: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "chain_head_block",
			Help:      "Latest chain head observed by chain",
		}, []string{"chain"}),

		PoolProbes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "analysis",
			Name:      "pool_probes_total",
			Help:      "Total number of DEX factory probes by dex and result",
		}, []string{"dex", "result"}),
		AnalysesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "analysis",
			Name:      "runs_total",
			Help:      "Total number of token analyses by outcome",
		}, []string{"outcome"}),
		AnalysisDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "analysis",
			Name:      "duration_seconds",
			Help:      "Token analysis duration in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		}),
		TasksEnqueued: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tasks",
			Name:      "enqueued_total",
			Help:      "Total number of analysis tasks enqueued by queue",
		}, []string{"queue"}),
		RiskLevels: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "analysis",
			Name:      "risk_levels_total",
			Help:      "Total number of scoring passes by resulting level",
		}, []string{"level"}),

		RPCCallLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "call_latency_seconds",
			Help:      "Chain RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"chain", "method"}),
		RPCCallErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "call_errors_total",
			Help:      "Total number of failed chain RPC calls",
		}, []string{"chain", "method"}),
		GraphFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "graph",
			Name:      "failures_total",
			Help:      "Total number of graph store operations that failed and were ignored",
		}, []string{"operation"}),

		LastSuccessfulBatch: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_batch_timestamp",
			Help:      "Unix timestamp of the last checkpointed batch by chain",
		}, []string{"chain"}),
		LastSuccessfulAnalysis: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_analysis_timestamp",
			Help:      "Unix timestamp of the last successful analysis",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordBlockProcessed increments the processed block counter.
func RecordBlockProcessed(chain string) {
	DefaultMetrics.BlocksProcessed.WithLabelValues(chain).Inc()
}

// RecordBlockSkipped increments the skipped block counter.
func RecordBlockSkipped(chain string) {
	DefaultMetrics.BlocksSkipped.WithLabelValues(chain).Inc()
}

// RecordContractDetected increments the contract creation counter.
func RecordContractDetected(chain string) {
	DefaultMetrics.ContractsDetected.WithLabelValues(chain).Inc()
}

// RecordTokenClassified increments the token counter.
func RecordTokenClassified(chain string) {
	DefaultMetrics.TokensClassified.WithLabelValues(chain).Inc()
}

// UpdateCheckpoint records a new checkpoint and the batch success time.
func UpdateCheckpoint(chain string, block uint64, unixSeconds int64) {
	DefaultMetrics.CheckpointHeight.WithLabelValues(chain).Set(float64(block))
	DefaultMetrics.LastSuccessfulBatch.WithLabelValues(chain).Set(float64(unixSeconds))
}

// UpdateChainHead records the latest observed head.
func UpdateChainHead(chain string, block uint64) {
	DefaultMetrics.ChainHead.WithLabelValues(chain).Set(float64(block))
}

// RecordPoolProbe counts one factory lookup. result is "found", "none" or "error".
func RecordPoolProbe(dex, result string) {
	DefaultMetrics.PoolProbes.WithLabelValues(dex, result).Inc()
}

// RecordAnalysis records an analysis outcome and its duration.
func RecordAnalysis(outcome string, durationSeconds float64) {
	DefaultMetrics.AnalysesTotal.WithLabelValues(outcome).Inc()
	DefaultMetrics.AnalysisDuration.Observe(durationSeconds)
}

// RecordRiskLevel counts a scoring pass by level.
func RecordRiskLevel(level string) {
	DefaultMetrics.RiskLevels.WithLabelValues(level).Inc()
}

// RecordTaskEnqueued counts an enqueue on the named queue.
func RecordTaskEnqueued(queue string) {
	DefaultMetrics.TasksEnqueued.WithLabelValues(queue).Inc()
}

// RecordRPCCall records RPC call latency and failures.
func RecordRPCCall(chain, method string, seconds float64, err error) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(chain, method).Observe(seconds)
	if err != nil {
		DefaultMetrics.RPCCallErrors.WithLabelValues(chain, method).Inc()
	}
}

// RecordGraphFailure counts a swallowed graph store failure.
func RecordGraphFailure(operation string) {
	DefaultMetrics.GraphFailures.WithLabelValues(operation).Inc()
}

// MarkAnalysisSuccess stamps the last successful analysis time.
func MarkAnalysisSuccess(unixSeconds int64) {
	DefaultMetrics.LastSuccessfulAnalysis.Set(float64(unixSeconds))
}
