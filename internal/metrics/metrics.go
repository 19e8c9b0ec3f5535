// Package metrics provides Prometheus metrics collection for the trading
// engine. It defines and manages the counters, gauges, and histograms
// exposed via the Prometheus endpoint for monitoring order execution,
// position lifecycle health, and scheduler latency.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every Prometheus metric the engine exposes.
type Metrics struct {
	// Order execution.
	OrdersTotal            prometheus.Counter   // Total number of entry/exit orders submitted
	OrderTimeouts          prometheus.Counter   // Total number of order execution timeouts
	OrderRetries           prometheus.Counter   // Total number of order placement retries
	OrderExecutionDuration prometheus.Histogram // Duration of order execution attempts

	// Position lifecycle.
	ActivePositions         prometheus.Gauge   // Number of currently live positions
	UnprotectedFillsTotal   prometheus.Counter // Total number of fills that entered the Unprotected alarm state
	GuardRejectionsTotal    prometheus.Counter // Total number of signals discarded by the liquidation-buffer guard
	ConditionalDriftTotal   prometheus.Counter // Total number of conditional-order verification mismatches found
	ConditionalReplaceTotal prometheus.Counter // Total number of conditional orders re-placed after drift/cancellation

	// Scheduler latency.
	ScanLoopDuration    prometheus.Histogram // Wall-clock duration of one scan tick across the universe
	MonitorLoopDuration prometheus.Histogram // Wall-clock duration of one monitor tick across live positions

	// Market data transport.
	WSReconnects   prometheus.Counter // Total number of WebSocket reconnections
	TradesReceived prometheus.Counter // Total number of trade messages received
	DepthsReceived prometheus.Counter // Total number of depth messages received

	// System.
	ErrorsTotal prometheus.Counter // Total number of errors encountered
}

// New creates and registers all Prometheus metrics using the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics with a custom registry, for test
// isolation from the global registry.
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		OrdersTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "orders_total",
			Help: "Total number of entry/exit orders submitted",
		}),
		OrderTimeouts: factory.NewCounter(prometheus.CounterOpts{
			Name: "order_timeouts_total",
			Help: "Total number of order execution timeouts",
		}),
		OrderRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: "order_retries_total",
			Help: "Total number of order placement retries",
		}),
		OrderExecutionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "order_execution_duration_seconds",
			Help:    "Duration of order execution attempts in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
		}),
		ActivePositions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "active_positions",
			Help: "Number of currently live positions",
		}),
		UnprotectedFillsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "unprotected_fills_total",
			Help: "Total number of fills that entered the unprotected alarm state",
		}),
		GuardRejectionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "guard_rejections_total",
			Help: "Total number of signals discarded by the liquidation-buffer guard",
		}),
		ConditionalDriftTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "conditional_drift_total",
			Help: "Total number of conditional-order verification mismatches found",
		}),
		ConditionalReplaceTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "conditional_replace_total",
			Help: "Total number of conditional orders re-placed after drift or cancellation",
		}),
		ScanLoopDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "scan_loop_duration_seconds",
			Help:    "Wall-clock duration of one scan tick across the universe",
			Buckets: prometheus.DefBuckets,
		}),
		MonitorLoopDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "monitor_loop_duration_seconds",
			Help:    "Wall-clock duration of one monitor tick across live positions",
			Buckets: prometheus.DefBuckets,
		}),
		WSReconnects: factory.NewCounter(prometheus.CounterOpts{
			Name: "ws_reconnects_total",
			Help: "Total number of WebSocket reconnections",
		}),
		TradesReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "trades_received_total",
			Help: "Total number of trade messages received",
		}),
		DepthsReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "depths_received_total",
			Help: "Total number of depth messages received",
		}),
		ErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "errors_total",
			Help: "Total number of errors encountered",
		}),
	}
}

// UpdatePositions sets ActivePositions from a symbol->size map, counting
// only non-zero entries.
func (m *Metrics) UpdatePositions(positions map[string]float64) {
	count := 0
	for _, pos := range positions {
		if pos != 0 {
			count++
		}
	}
	m.ActivePositions.Set(float64(count))
}

// GetErrorRate returns the ratio of errors to orders submitted, or 0 if no
// orders have been recorded.
func (m *Metrics) GetErrorRate() float64 {
	var totalOps, totalErrors float64

	metricFamilies, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		return 0
	}

	for _, mf := range metricFamilies {
		switch *mf.Name {
		case "orders_total":
			for _, m := range mf.Metric {
				totalOps = *m.Counter.Value
			}
		case "errors_total":
			for _, m := range mf.Metric {
				totalErrors = *m.Counter.Value
			}
		}
	}

	if totalOps == 0 {
		return 0
	}
	return totalErrors / totalOps
}
