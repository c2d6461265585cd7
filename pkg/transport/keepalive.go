package transport

import (
	"sync"
	"time"
)

// Keep-alive defaults.
const (
	DefaultPingInterval   = 5 * time.Second
	DefaultMaxMissedPongs = 2
)

// KeepAliveConfig configures keep-alive behavior.
type KeepAliveConfig struct {
	// PingInterval is the time between pings. A pong must arrive
	// before the next tick.
	PingInterval time.Duration

	// MaxMissedPongs is the number of consecutive unanswered pings
	// that declares the link dead.
	MaxMissedPongs int
}

// DefaultKeepAliveConfig returns the default keep-alive configuration.
func DefaultKeepAliveConfig() KeepAliveConfig {
	return KeepAliveConfig{
		PingInterval:   DefaultPingInterval,
		MaxMissedPongs: DefaultMaxMissedPongs,
	}
}

// DetectionDelay is the longest time a dead peer goes unnoticed.
func (c KeepAliveConfig) DetectionDelay() time.Duration {
	return c.PingInterval * time.Duration(c.MaxMissedPongs+1)
}

// KeepAlive pings on a ticker and calls onTimeout once too many pings
// went unanswered.
type KeepAlive struct {
	config KeepAliveConfig

	sendPing  func() error
	onTimeout func(missed int)

	mu           sync.Mutex
	running      bool
	stopCh       chan struct{}
	pongCh       chan struct{}
	missedPongs  int
	awaitingPong bool
	lastPingTime time.Time
	lastPongTime time.Time
	lastLatency  time.Duration
}

// NewKeepAlive creates a keep-alive monitor. Zero config fields take
// their defaults.
func NewKeepAlive(config KeepAliveConfig, sendPing func() error, onTimeout func(missed int)) *KeepAlive {
	if config.PingInterval == 0 {
		config.PingInterval = DefaultPingInterval
	}
	if config.MaxMissedPongs == 0 {
		config.MaxMissedPongs = DefaultMaxMissedPongs
	}
	return &KeepAlive{
		config:    config,
		sendPing:  sendPing,
		onTimeout: onTimeout,
		pongCh:    make(chan struct{}, 1),
	}
}

// Start begins monitoring. It is a no-op while running.
func (ka *KeepAlive) Start() {
	ka.mu.Lock()
	defer ka.mu.Unlock()

	if ka.running {
		return
	}
	ka.running = true
	ka.missedPongs = 0
	ka.awaitingPong = false
	ka.stopCh = make(chan struct{})

	go ka.loop(ka.stopCh)
}

// Stop ends monitoring. Safe to call from onTimeout.
func (ka *KeepAlive) Stop() {
	ka.mu.Lock()
	defer ka.mu.Unlock()

	if !ka.running {
		return
	}
	ka.running = false
	close(ka.stopCh)
}

// PongReceived records an answer to the outstanding ping.
func (ka *KeepAlive) PongReceived() {
	select {
	case ka.pongCh <- struct{}{}:
	default:
	}
}

// IsRunning reports whether monitoring is active.
func (ka *KeepAlive) IsRunning() bool {
	ka.mu.Lock()
	defer ka.mu.Unlock()
	return ka.running
}

// KeepAliveStats is a snapshot of keep-alive state.
type KeepAliveStats struct {
	LastPingTime time.Time
	LastPongTime time.Time
	Latency      time.Duration
	MissedPongs  int
}

// Stats returns current keep-alive statistics.
func (ka *KeepAlive) Stats() KeepAliveStats {
	ka.mu.Lock()
	defer ka.mu.Unlock()
	return KeepAliveStats{
		LastPingTime: ka.lastPingTime,
		LastPongTime: ka.lastPongTime,
		Latency:      ka.lastLatency,
		MissedPongs:  ka.missedPongs,
	}
}

func (ka *KeepAlive) loop(stopCh chan struct{}) {
	ticker := time.NewTicker(ka.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			if !ka.handleTick() {
				return
			}
		case <-ka.pongCh:
			ka.handlePong()
		}
	}
}

// handleTick counts an unanswered ping and sends the next one.
// It returns false once the timeout has fired.
func (ka *KeepAlive) handleTick() bool {
	ka.mu.Lock()
	if ka.awaitingPong {
		ka.missedPongs++
		if ka.missedPongs >= ka.config.MaxMissedPongs {
			missed := ka.missedPongs
			ka.mu.Unlock()
			if ka.onTimeout != nil {
				ka.onTimeout(missed)
			}
			return false
		}
	}
	ka.awaitingPong = true
	ka.lastPingTime = time.Now()
	ka.mu.Unlock()

	// A failed write shows up as a missed pong on the next tick.
	_ = ka.sendPing()
	return true
}

func (ka *KeepAlive) handlePong() {
	ka.mu.Lock()
	defer ka.mu.Unlock()

	now := time.Now()
	ka.lastPongTime = now
	if ka.awaitingPong {
		ka.lastLatency = now.Sub(ka.lastPingTime)
		ka.awaitingPong = false
		ka.missedPongs = 0
	}
}
