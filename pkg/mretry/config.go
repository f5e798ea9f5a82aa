// Package mretry holds the backoff configuration shared by the Outbox
// Dispatcher (spec §4.3) and the Consumer Runtime's dead-letter retry path
// (spec §4.5): exponential backoff with jitter, capped at a maximum, with a
// bounded attempt count before the caller gives up and quarantines/DLQs the
// record.
package mretry

import (
	"fmt"
	"time"
)

// Defaults: 1s initial backoff capped at 30m, 10 attempts, 25% jitter;
// the DLQ variant starts at 1m with the same cap and jitter. Callers
// such as the dispatcher override these with the With* builders.
const (
	DefaultMaxRetries     = 10
	DefaultInitialBackoff = 1 * time.Second
	DefaultMaxBackoff     = 30 * time.Minute
	DefaultJitterFactor   = 0.25

	// DLQInitialBackoff is the starting backoff for the consumer's
	// dead-letter retry path, which backs off more conservatively than the
	// dispatcher since a failing handler is more likely to need a human.
	DLQInitialBackoff = 1 * time.Minute
)

// Config is a chainable functional-options-style backoff configuration, in
// the teacher's With* builder idiom.
type Config struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	JitterFactor   float64
}

// DefaultMetadataOutboxConfig is the base retry configuration (1s -> 30m
// capped backoff, 10 attempts) that the dispatcher, consumer runtime and
// RPC pool each start from and adjust.
func DefaultMetadataOutboxConfig() Config {
	return Config{
		MaxRetries:     DefaultMaxRetries,
		InitialBackoff: DefaultInitialBackoff,
		MaxBackoff:     DefaultMaxBackoff,
		JitterFactor:   DefaultJitterFactor,
	}
}

// DefaultDLQConfig is a retry configuration with the slower 1m initial
// backoff for a dead-letter retry path. internal/consumer.DefaultConfig
// does not use it; it starts from DefaultMetadataOutboxConfig.
func DefaultDLQConfig() Config {
	return Config{
		MaxRetries:     DefaultMaxRetries,
		InitialBackoff: DLQInitialBackoff,
		MaxBackoff:     DefaultMaxBackoff,
		JitterFactor:   DefaultJitterFactor,
	}
}

// WithMaxRetries returns a copy of cfg with MaxRetries set.
func (c Config) WithMaxRetries(n int) Config {
	c.MaxRetries = n
	return c
}

// WithInitialBackoff returns a copy of cfg with InitialBackoff set.
func (c Config) WithInitialBackoff(d time.Duration) Config {
	c.InitialBackoff = d
	return c
}

// WithMaxBackoff returns a copy of cfg with MaxBackoff set.
func (c Config) WithMaxBackoff(d time.Duration) Config {
	c.MaxBackoff = d
	return c
}

// WithJitterFactor returns a copy of cfg with JitterFactor set.
func (c Config) WithJitterFactor(f float64) Config {
	c.JitterFactor = f
	return c
}

// ConfigValidationError reports a single invalid field on a Config.
type ConfigValidationError struct {
	Field   string
	Message string
}

func (e ConfigValidationError) Error() string {
	return fmt.Sprintf("mretry: invalid %s: %s", e.Field, e.Message)
}

// Validate rejects configurations that would produce a nonsensical backoff
// schedule (spec §6.4: outbox.max_attempts / outbox.poll_interval knobs
// must resolve to a consistent schedule before the dispatcher starts).
func (c Config) Validate() error {
	if c.MaxRetries < 1 {
		return ConfigValidationError{Field: "MaxRetries", Message: "must be >= 1"}
	}

	if c.InitialBackoff <= 0 {
		return ConfigValidationError{Field: "InitialBackoff", Message: "must be > 0"}
	}

	if c.MaxBackoff <= 0 {
		return ConfigValidationError{Field: "MaxBackoff", Message: "must be > 0"}
	}

	if c.MaxBackoff < c.InitialBackoff {
		return ConfigValidationError{Field: "MaxBackoff", Message: "must be >= InitialBackoff"}
	}

	if c.JitterFactor < 0.0 || c.JitterFactor > 1.0 {
		return ConfigValidationError{Field: "JitterFactor", Message: "must be in range [0.0, 1.0]"}
	}

	return nil
}
