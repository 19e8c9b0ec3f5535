package metrics

import "github.com/prometheus/client_golang/prometheus"

// Interfaces for metrics to avoid circular imports between this package
// and its consumers (internal/lifecycle, internal/coordinator).
type MetricsCounter interface {
	Inc()
}

type MetricsGauge interface {
	Set(float64)
	Add(float64)
}

type MetricsHistogram interface {
	Observe(float64)
}

// MetricsWrapper lets the lifecycle manager and coordinator record metrics
// through narrow accessor interfaces rather than depending on
// *prometheus.Counter/Gauge/Histogram directly.
type MetricsWrapper struct {
	m *Metrics
}

func NewWrapper(m *Metrics) *MetricsWrapper {
	return &MetricsWrapper{m: m}
}

func (w *MetricsWrapper) OrdersTotal() MetricsCounter { return &CounterWrapper{w.m.OrdersTotal} }
func (w *MetricsWrapper) OrderTimeouts() MetricsCounter {
	return &CounterWrapper{w.m.OrderTimeouts}
}
func (w *MetricsWrapper) OrderRetries() MetricsCounter { return &CounterWrapper{w.m.OrderRetries} }
func (w *MetricsWrapper) OrderExecutionDuration() MetricsHistogram {
	return &HistogramWrapper{w.m.OrderExecutionDuration}
}

func (w *MetricsWrapper) ActivePositions() MetricsGauge { return &GaugeWrapper{w.m.ActivePositions} }
func (w *MetricsWrapper) UnprotectedFillsTotal() MetricsCounter {
	return &CounterWrapper{w.m.UnprotectedFillsTotal}
}
func (w *MetricsWrapper) GuardRejectionsTotal() MetricsCounter {
	return &CounterWrapper{w.m.GuardRejectionsTotal}
}
func (w *MetricsWrapper) ConditionalDriftTotal() MetricsCounter {
	return &CounterWrapper{w.m.ConditionalDriftTotal}
}
func (w *MetricsWrapper) ConditionalReplaceTotal() MetricsCounter {
	return &CounterWrapper{w.m.ConditionalReplaceTotal}
}

func (w *MetricsWrapper) ScanLoopDuration() MetricsHistogram {
	return &HistogramWrapper{w.m.ScanLoopDuration}
}
func (w *MetricsWrapper) MonitorLoopDuration() MetricsHistogram {
	return &HistogramWrapper{w.m.MonitorLoopDuration}
}

func (w *MetricsWrapper) WSReconnects() MetricsCounter   { return &CounterWrapper{w.m.WSReconnects} }
func (w *MetricsWrapper) TradesReceived() MetricsCounter { return &CounterWrapper{w.m.TradesReceived} }
func (w *MetricsWrapper) DepthsReceived() MetricsCounter { return &CounterWrapper{w.m.DepthsReceived} }
func (w *MetricsWrapper) ErrorsTotal() MetricsCounter    { return &CounterWrapper{w.m.ErrorsTotal} }

func (w *MetricsWrapper) UpdatePositions(positions map[string]float64) {
	w.m.UpdatePositions(positions)
}

type CounterWrapper struct {
	c prometheus.Counter
}

func (cw *CounterWrapper) Inc() {
	cw.c.Inc()
}

type GaugeWrapper struct {
	g prometheus.Gauge
}

func (gw *GaugeWrapper) Set(v float64) {
	gw.g.Set(v)
}

func (gw *GaugeWrapper) Add(v float64) {
	gw.g.Add(v)
}

type HistogramWrapper struct {
	h prometheus.Histogram
}

func (hw *HistogramWrapper) Observe(v float64) {
	hw.h.Observe(v)
}
