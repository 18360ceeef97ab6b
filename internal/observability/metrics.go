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
	// Signal metrics
	SignalsAccepted prometheus.Counter
	SignalsRejected *prometheus.CounterVec
	SignalsDeduped  prometheus.Counter

	// Trade metrics
	TradesEntered prometheus.Counter
	TradesExited  *prometheus.CounterVec
	TradesFailed  *prometheus.CounterVec
	ActiveTrades  prometheus.Gauge

	// Scheduler metrics
	QueueDepth       *prometheus.GaugeVec
	RequestsDropped  prometheus.Counter
	ExitRequeues     prometheus.Counter
	DispatchLatency  prometheus.Histogram
	ExecutionLatency *prometheus.HistogramVec

	// Monitor metrics
	MonitorEmissions *prometheus.CounterVec
	MonitorTickSkips prometheus.Counter
	MonitoredTrades  prometheus.Gauge

	// Chain metrics
	RPCCallLatency      *prometheus.HistogramVec
	ApprovalsSubmitted  prometheus.Counter
	SwapsBroadcast      *prometheus.CounterVec
	ReceiptWaitDuration prometheus.Histogram
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "multisig_trader"
	}

	return &Metrics{
		SignalsAccepted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "signals",
			Name:      "accepted_total",
			Help:      "Total number of signals admitted into the pipeline",
		}),
		SignalsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "signals",
			Name:      "rejected_total",
			Help:      "Total number of rejected signals by error code",
		}, []string{"code"}),
		SignalsDeduped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "signals",
			Name:      "deduplicated_total",
			Help:      "Total number of re-delivered signals answered from the dedup set",
		}),

		TradesEntered: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trades",
			Name:      "entered_total",
			Help:      "Total number of trades that reached entered",
		}),
		TradesExited: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trades",
			Name:      "exited_total",
			Help:      "Total number of terminal exits by kind",
		}, []string{"kind"}),
		TradesFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trades",
			Name:      "failed_total",
			Help:      "Total number of failed trades by error code",
		}, []string{"code"}),
		ActiveTrades: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "trades",
			Name:      "active",
			Help:      "Number of non-terminal trades",
		}),

		QueueDepth: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "queue_depth",
			Help:      "Queued execution requests by priority",
		}, []string{"priority"}),
		RequestsDropped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "requests_dropped_total",
			Help:      "Execution requests dropped as illegal in the trade's state",
		}),
		ExitRequeues: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "exit_requeues_total",
			Help:      "Failed exit requests re-queued with backoff",
		}),
		DispatchLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "dispatch_latency_seconds",
			Help:      "Time from enqueue to dispatch",
			Buckets:   prometheus.DefBuckets,
		}),
		ExecutionLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "execution_latency_seconds",
			Help:      "End-to-end execution duration by action",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
		}, []string{"action"}),

		MonitorEmissions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "emissions_total",
			Help:      "Monitor exit emissions by kind",
		}, []string{"kind"}),
		MonitorTickSkips: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "tick_skips_total",
			Help:      "Ticks skipped because the price fetch failed",
		}),
		MonitoredTrades: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "attached_trades",
			Help:      "Trades currently attached to the monitor",
		}),

		RPCCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "evm",
			Name:      "rpc_call_latency_seconds",
			Help:      "EVM RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		ApprovalsSubmitted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "evm",
			Name:      "approvals_submitted_total",
			Help:      "Multi-sig approval transactions submitted",
		}),
		SwapsBroadcast: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "evm",
			Name:      "swaps_broadcast_total",
			Help:      "Swap transactions broadcast by action",
		}, []string{"action"}),
		ReceiptWaitDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "evm",
			Name:      "receipt_wait_seconds",
			Help:      "Time spent awaiting transaction receipts",
			Buckets:   []float64{1, 2, 5, 10, 30, 60, 120},
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordSignalAccepted increments the accepted signals counter.
func RecordSignalAccepted() {
	DefaultMetrics.SignalsAccepted.Inc()
}

// RecordSignalRejected increments the rejected signals counter.
func RecordSignalRejected(code string) {
	DefaultMetrics.SignalsRejected.WithLabelValues(code).Inc()
}

// RecordSignalDeduped increments the dedup counter.
func RecordSignalDeduped() {
	DefaultMetrics.SignalsDeduped.Inc()
}

// RecordTradeEntered increments the entered trades counter.
func RecordTradeEntered() {
	DefaultMetrics.TradesEntered.Inc()
}

// RecordTradeExited increments the exited trades counter for a kind.
func RecordTradeExited(kind string) {
	DefaultMetrics.TradesExited.WithLabelValues(kind).Inc()
}

// RecordTradeFailed increments the failed trades counter for a code.
func RecordTradeFailed(code string) {
	DefaultMetrics.TradesFailed.WithLabelValues(code).Inc()
}

// SetActiveTrades updates the active trades gauge.
func SetActiveTrades(n int) {
	DefaultMetrics.ActiveTrades.Set(float64(n))
}

// SetQueueDepth updates the queue depth gauge for a priority.
func SetQueueDepth(priority string, n int) {
	DefaultMetrics.QueueDepth.WithLabelValues(priority).Set(float64(n))
}

// RecordRequestDropped increments the dropped requests counter.
func RecordRequestDropped() {
	DefaultMetrics.RequestsDropped.Inc()
}

// RecordExitRequeue increments the exit requeue counter.
func RecordExitRequeue() {
	DefaultMetrics.ExitRequeues.Inc()
}

// RecordExecution records one executor call.
func RecordExecution(action string, seconds float64) {
	DefaultMetrics.ExecutionLatency.WithLabelValues(action).Observe(seconds)
}

// RecordMonitorEmission increments the emissions counter for a kind.
func RecordMonitorEmission(kind string) {
	DefaultMetrics.MonitorEmissions.WithLabelValues(kind).Inc()
}

// RecordMonitorTickSkip increments the skipped-tick counter.
func RecordMonitorTickSkip() {
	DefaultMetrics.MonitorTickSkips.Inc()
}

// SetMonitoredTrades updates the attached trades gauge.
func SetMonitoredTrades(n int) {
	DefaultMetrics.MonitoredTrades.Set(float64(n))
}

// RecordRPCLatency records one RPC call's latency.
func RecordRPCLatency(method string, seconds float64) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(seconds)
}

// RecordApprovalSubmitted increments the submitted-approvals counter.
func RecordApprovalSubmitted() {
	DefaultMetrics.ApprovalsSubmitted.Inc()
}

// RecordSwapBroadcast increments the broadcast counter for an action.
func RecordSwapBroadcast(action string) {
	DefaultMetrics.SwapsBroadcast.WithLabelValues(action).Inc()
}

// RecordReceiptWait records time spent awaiting one receipt.
func RecordReceiptWait(seconds float64) {
	DefaultMetrics.ReceiptWaitDuration.Observe(seconds)
}
