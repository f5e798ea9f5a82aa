// Package rpcpool is the RPC Client Pool (spec §3.6, §4.7): the single
// supported mechanism for synchronous cross-service calls. Every call
// carries a mandatory deadline, a bounded retry budget, and runs
// through a per-target circuit breaker; the pool itself enforces
// backpressure so a caller gets a typed overload error instead of
// queueing unboundedly.
package rpcpool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/nimbusline/platform-core/internal/boundary"
	"github.com/nimbusline/platform-core/internal/breaker"
	"github.com/nimbusline/platform-core/internal/observability"
	"github.com/nimbusline/platform-core/pkg/mgrpc"
	"github.com/nimbusline/platform-core/pkg/mretry"
)

// Descriptor is an RPC Call Descriptor (spec §3.6). Deadline must be
// set; NewCall rejects a zero Deadline at construction time (spec §4.7
// "a call without a deadline is rejected at construction").
type Descriptor struct {
	TargetService  string
	Method         string
	Deadline       time.Time
	MaxRetries     int
	IdempotencyKey string
	CorrelationID  string
}

// ErrMissingDeadline is returned by NewCall when Deadline is zero.
var ErrMissingDeadline = errors.New("rpcpool: call descriptor requires a deadline")

// NewCall validates and returns a Descriptor. This is the only
// constructor the pool accepts; there is no path to invoke a call
// without going through it.
func NewCall(targetService, method string, deadline time.Time) (Descriptor, error) {
	if deadline.IsZero() {
		return Descriptor{}, ErrMissingDeadline
	}

	return Descriptor{TargetService: targetService, Method: method, Deadline: deadline, MaxRetries: 3}, nil
}

// WithIdempotencyKey attaches an idempotency key, required for mutating
// RPCs (spec §3.6, §4.7).
func (d Descriptor) WithIdempotencyKey(key string) Descriptor {
	d.IdempotencyKey = key
	return d
}

// WithCorrelationID attaches a correlation id propagated on the
// outgoing metadata.
func (d Descriptor) WithCorrelationID(id string) Descriptor {
	d.CorrelationID = id
	return d
}

// WithMaxRetries overrides the default retry budget (spec §4.7 default
// 3).
func (d Descriptor) WithMaxRetries(n int) Descriptor {
	d.MaxRetries = n
	return d
}

// ErrCircuitOpen is returned when a target's breaker is Open; callers
// can choose to degrade gracefully (spec §7 "Circuit open").
var ErrCircuitOpen = errors.New("rpcpool: circuit open")

// ErrOverloaded is the typed backpressure error (spec §5 Backpressure,
// §4.7 "Connection management") returned instead of queueing when a
// target's request rate limit (WithTargetRateLimit) is exceeded.
var ErrOverloaded = errors.New("rpcpool: target overloaded")

// retriable classifies errors eligible for a retry attempt (spec §4.7:
// "network, unavailable, deadline-exceeded-on-fresh-attempt").
func retriable(err error) bool {
	if err == nil {
		return false
	}

	if s, ok := status.FromError(err); ok && s.Code() == codes.Unavailable {
		return true
	}

	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrOverloaded)
}

// target holds one target service's connection, breaker, and
// backpressure limiter.
type target struct {
	conn     *mgrpc.GRPCConnection
	cb       *breaker.CircuitBreaker
	limiter  *rate.Limiter
}

// Pool is the process-wide RPC Client Pool: one target entry per
// distinct target_service, built lazily on first use and reused for
// the process lifetime (spec §4.7 "typed client shared across the
// process").
type Pool struct {
	mu      sync.Mutex
	targets map[string]*target
	dial    func(ctx context.Context, targetService string) (*grpc.ClientConn, error)
	retry   mretry.Config
	authToken func(ctx context.Context) string
	hooks     *observability.Hooks
	// maxConcurrentPerTarget is the per-target token-bucket rate, in
	// requests per second (with burst); a call beyond it gets
	// ErrOverloaded rather than being queued.
	maxConcurrentPerTarget rate.Limit
	burst                  int
}

// Option configures a Pool at construction time.
type Option func(*Pool)

// WithAuthToken installs a function producing a bearer token injected
// via mgrpc.GRPCConnection.ContextMetadataInjection on every call.
func WithAuthToken(f func(ctx context.Context) string) Option {
	return func(p *Pool) { p.authToken = f }
}

// WithTargetRateLimit bounds the sustained request rate per target;
// bursts beyond burst return ErrOverloaded immediately (spec §5
// Backpressure).
func WithTargetRateLimit(requestsPerSecond float64, burst int) Option {
	return func(p *Pool) {
		p.maxConcurrentPerTarget = rate.Limit(requestsPerSecond)
		p.burst = burst
	}
}

// WithHooks installs the Observability Hooks (spec §4.9) the pool
// records RPC attempts, failures, and circuit transitions against. A
// Pool built without this option emits no metrics.
func WithHooks(hooks *observability.Hooks) Option {
	return func(p *Pool) { p.hooks = hooks }
}

// New builds a Pool. dial opens a fresh *grpc.ClientConn for a target
// service name (typically resolved via service discovery or DNS); the
// pool calls it at most once per target and caches the result.
func New(dial func(ctx context.Context, targetService string) (*grpc.ClientConn, error), opts ...Option) *Pool {
	p := &Pool{
		targets:                make(map[string]*target),
		dial:                   dial,
		retry:                  mretry.DefaultMetadataOutboxConfig().WithMaxRetries(3).WithInitialBackoff(50 * time.Millisecond),
		maxConcurrentPerTarget: 50,
		burst:                  10,
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

func (p *Pool) targetFor(ctx context.Context, name string) (*target, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if t, ok := p.targets[name]; ok {
		return t, nil
	}

	conn, err := p.dial(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("rpcpool: dial %s: %w", name, err)
	}

	t := &target{
		conn:    &mgrpc.GRPCConnection{Target: name, Conn: conn},
		cb:      breaker.New(breaker.DefaultConfig(name)),
		limiter: rate.NewLimiter(p.maxConcurrentPerTarget, p.burst),
	}

	p.targets[name] = t

	return t, nil
}

// Call invokes fn (a typed gRPC stub method wired by the caller) through
// the pool: it enforces the descriptor's deadline, runs the breaker,
// applies backpressure, and retries transient failures within the
// caller's deadline and the descriptor's retry budget.
//
// fn receives a context carrying the deadline, correlation id, and
// (when configured) the auth token, plus the pooled *grpc.ClientConn.
func (p *Pool) Call(ctx context.Context, d Descriptor, fn func(ctx context.Context, conn *grpc.ClientConn) error) error {
	callCtx, cancel := context.WithDeadline(ctx, d.Deadline)
	defer cancel()

	if err := boundary.RequireDeadline(callCtx); err != nil {
		return ErrMissingDeadline
	}

	t, err := p.targetFor(ctx, d.TargetService)
	if err != nil {
		return err
	}

	if !t.limiter.Allow() {
		return ErrOverloaded
	}

	if d.CorrelationID != "" {
		callCtx = metadata.AppendToOutgoingContext(callCtx, "correlation-id", d.CorrelationID)
	}

	if p.authToken != nil {
		callCtx = t.conn.ContextMetadataInjection(callCtx, p.authToken(callCtx))
	}

	maxRetries := d.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 1
	}

	var lastErr error

	for attempt := 0; attempt < maxRetries; attempt++ {
		if callCtx.Err() != nil {
			return callCtx.Err()
		}

		if p.hooks != nil {
			p.hooks.RPCAttempts.Add(ctx, 1)
		}

		stateBefore := t.cb.State()

		_, err := t.cb.Execute(callCtx, func(execCtx context.Context) (any, error) {
			return nil, fn(execCtx, t.conn.Conn)
		})

		if p.hooks != nil && t.cb.State() != stateBefore {
			p.hooks.CircuitTransitions.Add(ctx, 1)
		}

		if err == nil {
			return nil
		}

		if p.hooks != nil {
			p.hooks.RPCFailures.Add(ctx, 1)
		}

		if breaker.IsOpenError(err) {
			return ErrCircuitOpen
		}

		lastErr = err

		if !retriable(err) {
			return err
		}

		backoff := time.Duration(p.retry.Backoff(attempt+1)) * time.Millisecond
		select {
		case <-time.After(backoff):
		case <-callCtx.Done():
			return callCtx.Err()
		}
	}

	return lastErr
}

// State returns the current circuit state for a target, or
// breaker.StateClosed if the target has never been dialed.
func (p *Pool) State(targetService string) breaker.State {
	p.mu.Lock()
	defer p.mu.Unlock()

	t, ok := p.targets[targetService]
	if !ok {
		return breaker.StateClosed
	}

	return t.cb.State()
}
