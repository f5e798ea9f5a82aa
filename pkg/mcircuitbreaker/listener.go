// Package mcircuitbreaker bridges the internal/breaker circuit engine to
// a service-facing StateChangeEvent type, the way the teacher's
// lib-commons adapter packages bridge a shared engine into each service's
// own event shape. A StateListener registered through it receives every
// circuit transition in one uniform shape (spec §9); no package in this
// module registers one.
package mcircuitbreaker

import "github.com/nimbusline/platform-core/internal/breaker"

// State mirrors breaker.State plus an Unknown value for transitions this
// adapter cannot map (defensive against a future breaker engine state).
type State string

const (
	StateClosed  State = "closed"
	StateOpen    State = "open"
	StateHalfOpen State = "half_open"
	StateUnknown State = "unknown"
)

// Counts mirrors breaker.Counts.
type Counts struct {
	Requests             uint32
	TotalSuccesses       uint32
	TotalFailures        uint32
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
}

// StateChangeEvent is the uniform shape every circuit transition is
// reported in, regardless of which target or component owns the breaker.
type StateChangeEvent struct {
	ServiceName string
	FromState   State
	ToState     State
	Counts      Counts
}

// StateListener receives StateChangeEvents.
type StateListener interface {
	OnCircuitBreakerStateChange(event StateChangeEvent)
}

// LibCommonsAdapter implements breaker.StateChangeListener and forwards
// every transition to a StateListener, translating the engine's State and
// Counts into this package's types. The name dates back to when this
// adapter's counterpart lived in lib-commons; kept so downstream imports
// and dashboards didn't need to change across the migration.
type LibCommonsAdapter struct {
	listener StateListener
}

// NewLibCommonsAdapter wraps listener. A nil listener is valid: OnStateChange
// becomes a no-op, useful when a target opts out of transition reporting.
func NewLibCommonsAdapter(listener StateListener) *LibCommonsAdapter {
	return &LibCommonsAdapter{listener: listener}
}

// OnStateChange implements breaker.StateChangeListener.
func (a *LibCommonsAdapter) OnStateChange(name string, from, to breaker.State, counts breaker.Counts) {
	if a.listener == nil {
		return
	}

	a.listener.OnCircuitBreakerStateChange(StateChangeEvent{
		ServiceName: name,
		FromState:   convertState(from),
		ToState:     convertState(to),
		Counts: Counts{
			Requests:             counts.Requests,
			TotalSuccesses:       counts.TotalSuccesses,
			TotalFailures:        counts.TotalFailures,
			ConsecutiveSuccesses: counts.ConsecutiveSuccesses,
			ConsecutiveFailures:  counts.ConsecutiveFailures,
		},
	})
}

func convertState(s breaker.State) State {
	switch s {
	case breaker.StateClosed:
		return StateClosed
	case breaker.StateOpen:
		return StateOpen
	case breaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateUnknown
	}
}
