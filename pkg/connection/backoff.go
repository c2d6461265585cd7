package connection

import (
	"math/rand/v2"
	"sync"
	"time"
)

// Backoff defaults.
const (
	DefaultInitialBackoff    = 1 * time.Second
	DefaultMaxBackoff        = 60 * time.Second
	DefaultBackoffMultiplier = 2.0
	DefaultJitterFactor      = 0.25
)

// BackoffConfig configures a Backoff. Zero Initial, Max or Multiplier
// take the defaults; Jitter is used as given.
type BackoffConfig struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
	Jitter     float64
}

// DefaultBackoffConfig returns 1s doubling to 60s with 25% jitter.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		Initial:    DefaultInitialBackoff,
		Max:        DefaultMaxBackoff,
		Multiplier: DefaultBackoffMultiplier,
		Jitter:     DefaultJitterFactor,
	}
}

// Backoff computes exponentially growing delays with jitter.
type Backoff struct {
	mu       sync.Mutex
	config   BackoffConfig
	current  time.Duration
	attempts int
}

// NewBackoff creates a backoff starting at config.Initial.
func NewBackoff(config BackoffConfig) *Backoff {
	if config.Initial <= 0 {
		config.Initial = DefaultInitialBackoff
	}
	if config.Max <= 0 {
		config.Max = DefaultMaxBackoff
	}
	if config.Max < config.Initial {
		config.Max = config.Initial
	}
	if config.Multiplier <= 1 {
		config.Multiplier = DefaultBackoffMultiplier
	}
	if config.Jitter < 0 {
		config.Jitter = 0
	}
	return &Backoff{config: config, current: config.Initial}
}

// Next returns the current delay with jitter and advances.
func (b *Backoff) Next() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	delay := b.jittered(b.current)
	b.attempts++
	b.current = min(time.Duration(float64(b.current)*b.config.Multiplier), b.config.Max)
	return delay
}

// Reset returns to the initial delay.
func (b *Backoff) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.current = b.config.Initial
	b.attempts = 0
}

// Attempts returns how many delays were handed out since the last reset.
func (b *Backoff) Attempts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempts
}

// Current returns the next base delay, without jitter.
func (b *Backoff) Current() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}

func (b *Backoff) jittered(d time.Duration) time.Duration {
	if b.config.Jitter == 0 {
		return d
	}
	return d + time.Duration(float64(d)*b.config.Jitter*rand.Float64())
}
