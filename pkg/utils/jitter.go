package utils

import (
	"math/rand"
	"os"
	"strconv"
	"sync"
	"time"
)

// Defaults for the env-driven retry/backoff helpers below when no
// RETRY_* env override is set. The Outbox Dispatcher and Consumer
// Runtime take their schedules from pkg/mretry, not from these.
const (
	DefaultMaxRetries     = 5
	DefaultInitialBackoff = 500 * time.Millisecond
	DefaultMaxBackoff     = 10 * time.Second
	DefaultBackoffFactor  = 2.0
)

type retryConfig struct {
	maxRetries     int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	backoffFactor  float64
}

var (
	configOnce  sync.Once
	configValue retryConfig
	configMu    sync.Mutex
)

func loadConfig() retryConfig {
	cfg := retryConfig{
		maxRetries:     DefaultMaxRetries,
		initialBackoff: DefaultInitialBackoff,
		maxBackoff:     DefaultMaxBackoff,
		backoffFactor:  DefaultBackoffFactor,
	}

	if raw := os.Getenv("RETRY_MAX_RETRIES"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n >= 0 {
			cfg.maxRetries = n
		}
	}

	if raw := os.Getenv("RETRY_INITIAL_BACKOFF"); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			cfg.initialBackoff = d
		}
	}

	if raw := os.Getenv("RETRY_MAX_BACKOFF"); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			cfg.maxBackoff = d
		}
	}

	if raw := os.Getenv("RETRY_BACKOFF_FACTOR"); raw != "" {
		if f, err := strconv.ParseFloat(raw, 64); err == nil && f >= 1.0 {
			cfg.backoffFactor = f
		}
	}

	if cfg.initialBackoff > cfg.maxBackoff {
		cfg.initialBackoff = cfg.maxBackoff
	}

	return cfg
}

func getConfig() retryConfig {
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		configValue = loadConfig()
	})

	configMu.Lock()
	defer configMu.Unlock()

	return configValue
}

// ResetConfigForTesting clears the cached singleton so the next call to
// MaxRetries/InitialBackoff/MaxBackoff/BackoffFactor re-reads the
// environment. Not safe for concurrent use; tests must serialize around it.
func ResetConfigForTesting() {
	configMu.Lock()
	configOnce = sync.Once{}
	configMu.Unlock()
}

// MaxRetries returns the process-wide retry budget, read once from
// RETRY_MAX_RETRIES and cached.
func MaxRetries() int { return getConfig().maxRetries }

// InitialBackoff returns the first retry delay, capped at MaxBackoff.
func InitialBackoff() time.Duration { return getConfig().initialBackoff }

// MaxBackoff returns the backoff ceiling.
func MaxBackoff() time.Duration { return getConfig().maxBackoff }

// BackoffFactor returns the exponential growth multiplier applied by
// NextBackoff.
func BackoffFactor() float64 { return getConfig().backoffFactor }

// FullJitter returns a random delay in [0, min(baseDelay, MaxBackoff)],
// the AWS "full jitter" strategy: it spreads retries from many concurrent
// dispatcher/consumer instances instead of having them all wake at exactly
// baseDelay.
func FullJitter(baseDelay time.Duration) time.Duration {
	ceiling := baseDelay
	if max := MaxBackoff(); ceiling > max {
		ceiling = max
	}

	if ceiling <= 0 {
		return 0
	}

	return time.Duration(rand.Int63n(int64(ceiling) + 1))
}

// NextBackoff grows current by BackoffFactor, capped at MaxBackoff. A
// current of zero stays zero (there is no schedule to advance).
func NextBackoff(current time.Duration) time.Duration {
	if current <= 0 {
		return 0
	}

	next := time.Duration(float64(current) * BackoffFactor())
	if max := MaxBackoff(); next > max {
		next = max
	}

	return next
}
