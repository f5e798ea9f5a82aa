// Package breaker is the circuit-breaker engine behind the RPC Client
// Pool's per-target state machine (spec §3.7, §4.7). It wraps
// sony/gobreaker/v2 so the rest of the substrate depends on a small,
// stable State/Counts/StateChangeListener surface instead of the broker
// library directly — the same indirection the teacher's own
// lib-commons/commons/circuitbreaker package provided, reimplemented here
// since that library is not part of this module's dependency surface.
package breaker

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"
)

// State mirrors the three circuit states from spec §3.7.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

// Counts mirrors gobreaker's rolling window counters.
type Counts struct {
	Requests             uint32
	TotalSuccesses        uint32
	TotalFailures         uint32
	ConsecutiveSuccesses  uint32
	ConsecutiveFailures   uint32
}

// StateChangeListener is notified on every circuit transition. The RPC
// pool's per-target breaker (internal/rpcpool) and Observability Hooks
// both register one to emit metrics on transition (spec §9).
type StateChangeListener interface {
	OnStateChange(name string, from, to State, counts Counts)
}

// Config configures a target's circuit breaker.
type Config struct {
	// Name identifies the target service; forwarded to StateChangeListener.
	Name string
	// MaxConsecutiveFailures opens the circuit after this many consecutive
	// failures. Zero disables the consecutive-failure trip and relies
	// solely on FailureRatio.
	MaxConsecutiveFailures uint32
	// FailureRatio opens the circuit when TotalFailures/Requests reaches or
	// exceeds this ratio, evaluated once at least MinRequests have been seen.
	FailureRatio float64
	// MinRequests is the minimum sample size before FailureRatio applies.
	MinRequests uint32
	// OpenTimeout is how long the circuit stays Open before probing
	// HalfOpen.
	OpenTimeout time.Duration
	// HalfOpenMaxRequests bounds concurrent probes while HalfOpen.
	HalfOpenMaxRequests uint32
	// Listener receives every state transition. May be nil.
	Listener StateChangeListener
}

// DefaultConfig returns the defaults spec §4.7 assumes when a target has
// no explicit tuning: open after 5 consecutive failures or a 50% failure
// ratio over at least 10 requests, 30s open timeout, single half-open
// probe at a time.
func DefaultConfig(name string) Config {
	return Config{
		Name:                   name,
		MaxConsecutiveFailures: 5,
		FailureRatio:           0.5,
		MinRequests:            10,
		OpenTimeout:            30 * time.Second,
		HalfOpenMaxRequests:    1,
	}
}

// CircuitBreaker is the per-target circuit used by the RPC Client Pool.
// It is the only mutator of circuit state for its target (spec §5).
type CircuitBreaker struct {
	gb *gobreaker.CircuitBreaker[any]
}

// New builds a CircuitBreaker from cfg.
func New(cfg Config) *CircuitBreaker {
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.HalfOpenMaxRequests,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if cfg.MaxConsecutiveFailures > 0 && counts.ConsecutiveFailures >= cfg.MaxConsecutiveFailures {
				return true
			}

			if cfg.FailureRatio > 0 && counts.Requests >= cfg.MinRequests {
				ratio := float64(counts.TotalFailures) / float64(counts.Requests)
				return ratio >= cfg.FailureRatio
			}

			return false
		},
	}

	if cfg.Listener != nil {
		settings.OnStateChange = func(name string, from, to gobreaker.State) {
			cfg.Listener.OnStateChange(name, convertState(from), convertState(to), Counts{})
		}
	}

	return &CircuitBreaker{gb: gobreaker.NewCircuitBreaker[any](settings)}
}

// Execute runs fn through the breaker, short-circuiting with
// gobreaker.ErrOpenState / gobreaker.ErrTooManyRequests when the circuit
// is not Closed (and not permitting this probe while HalfOpen).
func (c *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) (any, error)) (any, error) {
	return c.gb.Execute(func() (any, error) {
		return fn(ctx)
	})
}

// State returns the breaker's current state.
func (c *CircuitBreaker) State() State {
	return convertState(c.gb.State())
}

// Counts returns the breaker's current rolling counters.
func (c *CircuitBreaker) Counts() Counts {
	gc := c.gb.Counts()

	return Counts{
		Requests:             gc.Requests,
		TotalSuccesses:       gc.TotalSuccesses,
		TotalFailures:        gc.TotalFailures,
		ConsecutiveSuccesses: gc.ConsecutiveSuccesses,
		ConsecutiveFailures:  gc.ConsecutiveFailures,
	}
}

// IsOpenError reports whether err is the breaker's fail-fast error —
// either the circuit is Open or a HalfOpen probe slot was unavailable.
// Callers use this to distinguish "the target itself failed" from "we
// didn't even attempt the call" (spec §7 "Circuit open").
func IsOpenError(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

func convertState(s gobreaker.State) State {
	switch s {
	case gobreaker.StateClosed:
		return StateClosed
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}
