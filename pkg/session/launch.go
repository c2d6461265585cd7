package session

import (
	"context"
	"fmt"
	"time"

	"github.com/Orange-OpenSource/ocast-go/pkg/wire"
)

// StartApplication makes sure the web application runs, starting it and
// waiting for its connectedStatus event when needed.
func (s *Session) StartApplication(done func(error)) {
	s.mu.Lock()
	noLifecycle := s.lifecycle == nil
	s.mu.Unlock()
	if noLifecycle {
		resolve(done, wire.NewError(wire.KindApplication, "start", ErrNoLifecycle))
		return
	}
	s.ensureApplicationRunning(done)
}

// StopApplication stops the web application.
func (s *Session) StopApplication(done func(error)) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		resolve(done, s.closedError("stop"))
		return
	}
	name := s.appName
	ctx := s.ctx
	s.mu.Unlock()

	if s.lifecycle == nil {
		resolve(done, wire.NewError(wire.KindApplication, "stop", ErrNoLifecycle))
		return
	}

	go func() {
		lctx, cancel := context.WithTimeout(ctx, s.config.LifecycleTimeout)
		err := s.lifecycle.Stop(lctx, name)
		cancel()
		if err != nil {
			resolve(done, wire.NewError(wire.KindApplication, "stop", err))
			return
		}

		s.mu.Lock()
		changed := s.appName == name && s.appRunning
		if changed {
			s.appRunning = false
		}
		s.mu.Unlock()
		if changed {
			s.captureApplication(false, "stopped")
		}
		resolve(done, nil)
	}()
}

// ensureApplicationRunning calls done once the application is known to
// run. Concurrent callers share one launch.
func (s *Session) ensureApplicationRunning(done func(error)) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		resolve(done, s.closedError("launch"))
		return
	}
	if s.appRunning || s.lifecycle == nil || s.appName == "" {
		s.mu.Unlock()
		resolve(done, nil)
		return
	}
	if s.starting != nil {
		if done != nil {
			s.starting.waiters = append(s.starting.waiters, done)
		}
		s.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(s.ctx)
	l := &appLaunch{connected: make(chan struct{}), cancel: cancel}
	if done != nil {
		l.waiters = append(l.waiters, done)
	}
	s.starting = l
	connected := l.connected
	name := s.appName
	s.mu.Unlock()

	go func() {
		s.finishLaunch(l, name, s.launch(ctx, name, connected))
	}()
}

// abortLaunchLocked cancels the launch in flight, if any, and returns its
// waiters for the caller to fail once s.mu is released.
func (s *Session) abortLaunchLocked() []func(error) {
	l := s.starting
	if l == nil {
		return nil
	}
	s.starting = nil
	l.cancel()
	return l.waiters
}

// launch starts the application unless it already runs, then waits for
// connected to close.
func (s *Session) launch(ctx context.Context, name string, connected <-chan struct{}) error {
	lctx, cancel := context.WithTimeout(ctx, s.config.LifecycleTimeout)
	info, err := s.lifecycle.Info(lctx, name)
	cancel()
	if err != nil {
		return s.launchError(ctx, err)
	}
	if info.Running() {
		return nil
	}

	s.logger.Info("starting application", "app", name)
	lctx, cancel = context.WithTimeout(ctx, s.config.LifecycleTimeout)
	err = s.lifecycle.Start(lctx, name)
	cancel()
	if err != nil {
		return s.launchError(ctx, err)
	}

	timer := time.NewTimer(s.config.LaunchTimeout)
	defer timer.Stop()

	select {
	case <-connected:
		return nil
	case <-timer.C:
		s.logger.Warn("application did not connect", "app", name, "timeout", s.config.LaunchTimeout)
		return wire.NewError(wire.KindApplication, "launch", wire.ErrLaunchTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// launchError reports a lifecycle failure. Failures caused by an aborted
// launch return the context error; their waiters were already failed.
func (s *Session) launchError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return wire.NewError(wire.KindApplication, "launch", fmt.Errorf("%w: %w", wire.ErrLaunchFailed, err))
}

func (s *Session) finishLaunch(l *appLaunch, name string, err error) {
	l.cancel()
	s.mu.Lock()
	if s.starting != l {
		// Aborted by teardown.
		s.mu.Unlock()
		return
	}
	s.starting = nil
	waiters := l.waiters
	changed := err == nil && s.appName == name && !s.appRunning
	if changed {
		s.appRunning = true
	}
	s.mu.Unlock()

	if changed {
		s.captureApplication(true, "launched")
	}
	for _, w := range waiters {
		w(err)
	}
}

// handleConnectedStatus tracks the web application's own announcements.
func (s *Session) handleConnectedStatus(status string) {
	s.mu.Lock()
	var running bool
	switch status {
	case wire.ConnectedStatusConnected:
		running = true
		if s.starting != nil && s.starting.connected != nil {
			close(s.starting.connected)
			s.starting.connected = nil
		}
	case wire.ConnectedStatusDisconnected:
	default:
		s.mu.Unlock()
		return
	}
	changed := s.appRunning != running
	s.appRunning = running
	s.mu.Unlock()

	if changed {
		s.captureApplication(running, "connectedStatus")
	}
}
