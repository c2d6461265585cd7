package connection

import (
	"context"
	"errors"
	"sync"
	"time"
)

// DefaultAttemptTimeout bounds a single reconnection attempt.
const DefaultAttemptTimeout = 30 * time.Second

// ErrGaveUp is passed to OnGiveUp, wrapping the last attempt's error.
var ErrGaveUp = errors.New("reconnection abandoned")

// ConnectFunc performs one connection attempt.
type ConnectFunc func(ctx context.Context) error

// ReconnectConfig configures a Reconnector.
type ReconnectConfig struct {
	Backoff BackoffConfig

	AttemptTimeout time.Duration

	// MaxAttempts stops retrying after that many failures. Zero retries
	// until cancelled.
	MaxAttempts int

	// OnAttempt is called before waiting for an attempt.
	OnAttempt func(attempt int, delay time.Duration)

	// OnReconnected is called after a successful attempt.
	OnReconnected func()

	// OnGiveUp is called when MaxAttempts is reached.
	OnGiveUp func(err error)
}

// Reconnector retries a ConnectFunc with backoff until it succeeds, is
// cancelled or gives up. At most one retry sequence runs at a time.
type Reconnector struct {
	config    ReconnectConfig
	connectFn ConnectFunc
	backoff   *Backoff

	mu        sync.Mutex
	running   bool
	closed    bool
	cancelRun context.CancelFunc
	wg        sync.WaitGroup
}

// NewReconnector creates an idle reconnector.
func NewReconnector(connectFn ConnectFunc, config ReconnectConfig) *Reconnector {
	if config.Backoff == (BackoffConfig{}) {
		config.Backoff = DefaultBackoffConfig()
	}
	if config.AttemptTimeout <= 0 {
		config.AttemptTimeout = DefaultAttemptTimeout
	}
	return &Reconnector{
		config:    config,
		connectFn: connectFn,
		backoff:   NewBackoff(config.Backoff),
	}
}

// Trigger starts a retry sequence unless one is already running.
func (r *Reconnector) Trigger() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed || r.running {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	r.running = true
	r.cancelRun = cancel
	r.wg.Add(1)
	go r.run(ctx)
}

// Cancel aborts the running sequence, if any, and resets the backoff.
func (r *Reconnector) Cancel() {
	r.mu.Lock()
	if r.cancelRun != nil {
		r.cancelRun()
	}
	r.mu.Unlock()
}

// Close cancels the running sequence and waits for it to end. Later
// triggers are ignored.
func (r *Reconnector) Close() {
	r.mu.Lock()
	r.closed = true
	if r.cancelRun != nil {
		r.cancelRun()
	}
	r.mu.Unlock()
	r.wg.Wait()
}

// Running reports whether a sequence is in progress.
func (r *Reconnector) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// Attempts returns the attempts made by the current sequence.
func (r *Reconnector) Attempts() int {
	return r.backoff.Attempts()
}

func (r *Reconnector) run(ctx context.Context) {
	defer r.wg.Done()
	defer func() {
		r.backoff.Reset()
		r.mu.Lock()
		r.running = false
		r.cancelRun = nil
		r.mu.Unlock()
	}()

	timer := time.NewTimer(0)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		delay := r.backoff.Next()
		attempt := r.backoff.Attempts()
		if r.config.OnAttempt != nil {
			r.config.OnAttempt(attempt, delay)
		}

		timer.Reset(delay)
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		actx, cancel := context.WithTimeout(ctx, r.config.AttemptTimeout)
		err := r.connectFn(actx)
		cancel()

		if ctx.Err() != nil {
			return
		}
		if err == nil {
			if r.config.OnReconnected != nil {
				r.config.OnReconnected()
			}
			return
		}
		if r.config.MaxAttempts > 0 && attempt >= r.config.MaxAttempts {
			if r.config.OnGiveUp != nil {
				r.config.OnGiveUp(errors.Join(ErrGaveUp, err))
			}
			return
		}
	}
}
