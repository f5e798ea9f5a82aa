package mruntime

import "sync"

// maxLabelLength bounds the component label attached to the recovered-panic
// metric, since an unbounded label (e.g. one built from user input) would be
// a cardinality-explosion risk for the metrics backend (spec §9,
// Observability Hooks).
const maxLabelLength = 63

// sanitizeLabel truncates s to maxLabelLength.
func sanitizeLabel(s string) string {
	if len(s) <= maxLabelLength {
		return s
	}

	return s[:maxLabelLength]
}

// MetricsFactory is the minimal counter-creation surface mruntime needs
// from whatever metrics backend the service configures (Prometheus or
// OpenTelemetry, per spec §11's Observability Hooks wiring).
type MetricsFactory interface {
	Counter(name string) Counter
}

// Counter increments a single named metric.
type Counter interface {
	Inc(labels map[string]string)
}

// PanicMetrics tracks recovered-panic counts by component label.
type PanicMetrics struct {
	counter Counter
}

var (
	panicMetricsMu sync.RWMutex
	panicMetrics   *PanicMetrics
)

// InitPanicMetrics wires a MetricsFactory for recovered-panic counting. A
// nil factory is a valid no-op, leaving panic recovery metrics-free until
// telemetry is configured.
func InitPanicMetrics(factory MetricsFactory) {
	panicMetricsMu.Lock()
	defer panicMetricsMu.Unlock()

	if factory == nil {
		panicMetrics = nil
		return
	}

	panicMetrics = &PanicMetrics{counter: factory.Counter("recovered_panics_total")}
}

// GetPanicMetrics returns the currently configured PanicMetrics, or nil if
// InitPanicMetrics has not been called (or was called with a nil factory).
func GetPanicMetrics() *PanicMetrics {
	panicMetricsMu.RLock()
	defer panicMetricsMu.RUnlock()

	return panicMetrics
}

func recordPanicMetric(component string) {
	pm := GetPanicMetrics()
	if pm == nil || pm.counter == nil {
		return
	}

	pm.counter.Inc(map[string]string{"component": sanitizeLabel(component)})
}
