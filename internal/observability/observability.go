// Package observability is the Observability Hooks component (spec
// §4.9): uniform metrics for outbox depth, dispatcher attempts/
// quarantine, publish latency, consumer lag, retry rate, DLQ size, and
// RPC/circuit-breaker counters, plus correlation-id/causation-id
// propagation through a task-local context so callers never thread
// them manually. Metric instruments are OpenTelemetry (go.opentelemetry.io/otel/sdk/metric),
// with a Prometheus registry exposed alongside for the two example
// services' /metrics endpoint (spec §6.5).
package observability

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/metric"
)

// correlationKey and causationKey back the task-local context the
// runtime installs on every RPC call and event dispatch (spec §4.9,
// §9 "Manual correlation threading").
type correlationKey struct{}
type causationKey struct{}

// ContextWithCorrelation attaches a correlation id to ctx.
func ContextWithCorrelation(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, correlationKey{}, correlationID)
}

// CorrelationFromContext returns the correlation id attached by
// ContextWithCorrelation, or "" if none is present.
func CorrelationFromContext(ctx context.Context) string {
	v, _ := ctx.Value(correlationKey{}).(string)
	return v
}

// ContextWithCausation attaches a causation id (the id of the event
// that caused the current operation) to ctx.
func ContextWithCausation(ctx context.Context, causationID string) context.Context {
	return context.WithValue(ctx, causationKey{}, causationID)
}

// CausationFromContext returns the causation id attached by
// ContextWithCausation, or "" if none is present.
func CausationFromContext(ctx context.Context) string {
	v, _ := ctx.Value(causationKey{}).(string)
	return v
}

// Hooks bundles every metric instrument the core emits (spec §4.9). A
// service constructs one Hooks at startup and passes it to
// dispatcher.New, consumer.New, and rpcpool.New, which record against
// it directly from their real call sites (publishRow, processOne,
// routeToDeadLetter, Call) rather than through a side channel.
type Hooks struct {
	Meter                 metric.Meter
	OutboxDepth           metric.Int64ObservableGauge
	DispatcherAttempts    metric.Int64Counter
	DispatcherQuarantined metric.Int64Counter
	PublishLatency        metric.Float64Histogram
	ConsumerLag           metric.Int64ObservableGauge
	ConsumerRetries       metric.Int64Counter
	DLQSize               metric.Int64ObservableGauge
	RPCAttempts           metric.Int64Counter
	RPCFailures           metric.Int64Counter
	CircuitTransitions    metric.Int64Counter
}

// New builds every instrument from meter, named consistently so a
// dashboard built for one service works for all of them.
func New(meter metric.Meter) (*Hooks, error) {
	h := &Hooks{Meter: meter}

	var err error

	if h.OutboxDepth, err = meter.Int64ObservableGauge("substrate.outbox.depth"); err != nil {
		return nil, err
	}

	if h.DispatcherAttempts, err = meter.Int64Counter("substrate.dispatcher.attempts"); err != nil {
		return nil, err
	}

	if h.DispatcherQuarantined, err = meter.Int64Counter("substrate.dispatcher.quarantined"); err != nil {
		return nil, err
	}

	if h.PublishLatency, err = meter.Float64Histogram("substrate.dispatcher.publish_latency_ms"); err != nil {
		return nil, err
	}

	if h.ConsumerLag, err = meter.Int64ObservableGauge("substrate.consumer.lag"); err != nil {
		return nil, err
	}

	if h.ConsumerRetries, err = meter.Int64Counter("substrate.consumer.retries"); err != nil {
		return nil, err
	}

	if h.DLQSize, err = meter.Int64ObservableGauge("substrate.consumer.dlq_size"); err != nil {
		return nil, err
	}

	if h.RPCAttempts, err = meter.Int64Counter("substrate.rpc.attempts"); err != nil {
		return nil, err
	}

	if h.RPCFailures, err = meter.Int64Counter("substrate.rpc.failures"); err != nil {
		return nil, err
	}

	if h.CircuitTransitions, err = meter.Int64Counter("substrate.rpc.circuit_transitions"); err != nil {
		return nil, err
	}

	return h, nil
}

// PrometheusRegistry builds a registry pre-populated with the process
// and Go runtime collectors, for services that expose /metrics via
// promhttp alongside their otel meter (spec §6.5's health/metrics
// surface).
func PrometheusRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	reg.MustRegister(prometheus.NewGoCollector())

	return reg
}

// Health is the read-only operational surface spec §6.5 requires per
// service: outbox unpublished depth, max consumer lag, circuit states
// per target, and whether any subscription's DLQ is non-empty.
type Health struct {
	OutboxUnpublishedDepth int64
	MaxConsumerLag         int64
	CircuitStates          map[string]string
	DLQNonEmpty            bool
}

// Status is "unhealthy" only when the service cannot serve reads or
// writes at all; sustained lag or a non-empty DLQ is "degraded" (spec
// §6.5).
func (h Health) Status(lagWarningThreshold int64, canServe bool) string {
	if !canServe {
		return "unhealthy"
	}

	if h.MaxConsumerLag > lagWarningThreshold || h.DLQNonEmpty {
		return "degraded"
	}

	return "healthy"
}
