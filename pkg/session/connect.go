package session

import (
	"context"
	"crypto/tls"
	"fmt"
	"sync"

	"github.com/Orange-OpenSource/ocast-go/pkg/transport"
	"github.com/Orange-OpenSource/ocast-go/pkg/version"
	"github.com/Orange-OpenSource/ocast-go/pkg/wire"
)

// Connect connects the application module, the public settings module
// and, when allowed, the private settings module. The application
// endpoint and run state come from the lifecycle service; a receiver
// advertising an incompatible protocol version is refused. done gets the
// first module error, after every module has settled.
func (s *Session) Connect(tlsConfig *tls.Config, done func(error)) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		resolve(done, s.closedError("connect"))
		return
	}
	appName := s.appName
	ctx := s.ctx
	s.mu.Unlock()

	go func() {
		resolve(done, s.connectAll(ctx, tlsConfig, appName))
	}()
}

func (s *Session) connectAll(ctx context.Context, tlsConfig *tls.Config, appName string) error {
	targets, err := s.targets(ctx, appName)
	if err != nil {
		return err
	}

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		first error
	)
	for _, t := range targets {
		wg.Add(1)
		s.ConnectModule(t.module, t.url, tlsConfig, func(err error) {
			if err != nil {
				mu.Lock()
				if first == nil {
					first = err
				}
				mu.Unlock()
			}
			wg.Done()
		})
	}
	wg.Wait()
	return first
}

// targets resolves the endpoint of every module Connect handles.
func (s *Session) targets(ctx context.Context, appName string) ([]target, error) {
	settingsURL := s.config.SettingsURL
	if settingsURL == "" && s.device.Host != "" {
		settingsURL = LinkURL(s.device.Host, DefaultLinkPort)
	}
	if settingsURL == "" {
		return nil, wire.NewError(wire.KindState, "connect", fmt.Errorf("%w: %s", ErrNoEndpoint, ModulePublicSettings))
	}

	var targets []target
	if appName != "" {
		appURL, err := s.applicationURL(ctx, appName)
		if err != nil {
			return nil, err
		}
		if appURL == "" {
			appURL = settingsURL
		}
		targets = append(targets, target{module: ModuleApplication, url: appURL})
	}
	targets = append(targets, target{module: ModulePublicSettings, url: settingsURL})

	if s.config.PrivateSettingsAllowed {
		privateURL := s.config.PrivateSettingsURL
		if privateURL == "" && s.device.Host != "" {
			privateURL = LinkURL(s.device.Host, DefaultPrivateLinkPort)
		}
		if privateURL == "" {
			return nil, wire.NewError(wire.KindState, "connect", fmt.Errorf("%w: %s", ErrNoEndpoint, ModulePrivateSettings))
		}
		targets = append(targets, target{module: ModulePrivateSettings, url: privateURL})
	}
	return targets, nil
}

// applicationURL asks the lifecycle service where the application
// listens, checking its protocol version and caching its run state.
// An empty result means the default link endpoint.
func (s *Session) applicationURL(ctx context.Context, appName string) (string, error) {
	if s.lifecycle == nil {
		return "", nil
	}

	lctx, cancel := context.WithTimeout(ctx, s.config.LifecycleTimeout)
	info, err := s.lifecycle.Info(lctx, appName)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return "", s.closedError("connect")
		}
		return "", wire.NewError(wire.KindApplication, "connect", err)
	}

	if err := version.Check(info.Version); err != nil {
		return "", wire.NewError(wire.KindProtocol, "connect", fmt.Errorf("%w: %w", wire.ErrIncompatibleVersion, err))
	}

	s.mu.Lock()
	if s.appName == appName && s.appRunning != info.Running() {
		s.appRunning = info.Running()
		s.mu.Unlock()
		s.captureApplication(info.Running(), "info")
	} else {
		s.mu.Unlock()
	}
	return info.App2AppURL, nil
}

// ConnectModule connects one module to url. A module already connected or
// connecting to url shares that outcome. If another module uses a link to
// the same url, that link is reused.
func (s *Session) ConnectModule(m Module, url string, tlsConfig *tls.Config, done func(error)) {
	if !m.valid() {
		resolve(done, unknownModule("connect", m))
		return
	}
	if m == ModulePrivateSettings && !s.config.PrivateSettingsAllowed {
		resolve(done, wire.NewError(wire.KindState, "connect",
			fmt.Errorf("%w: %s", ErrNotPermitted, m)))
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		resolve(done, s.closedError("connect"))
		return
	}

	b := s.modules[m]
	switch b.state {
	case StateConnected, StateConnecting:
		if b.url != url {
			s.mu.Unlock()
			resolve(done, wire.NewError(wire.KindState, "connect",
				fmt.Errorf("%w: %s is bound to %s", wire.ErrInvalidState, m, b.url)))
			return
		}
		if b.state == StateConnected {
			s.mu.Unlock()
			resolve(done, nil)
			return
		}
		if done != nil {
			b.connectDone = append(b.connectDone, done)
		}
		s.mu.Unlock()
		return
	}

	prev := b.state
	old := b.link
	link := s.linkForLocked(url)
	b.link, b.url, b.tls = link, url, tlsConfig
	b.state = StateConnecting
	if done != nil {
		b.connectDone = append(b.connectDone, done)
	}
	superseded := b.disconnectDone
	b.disconnectDone = nil

	var release *transport.Link
	if old != nil && old != link && !s.referencedLocked(old) {
		s.dropLinkLocked(old)
		release = old
	}
	linkConnected := link.State() == transport.StateConnected
	s.mu.Unlock()

	for _, d := range superseded {
		d(nil)
	}
	if release != nil {
		release.Disconnect(nil)
	}

	s.logger.Debug("connecting module", "module", m, "url", url, "shared", linkConnected)
	s.captureModule(m, prev, StateConnecting, "")

	if linkConnected {
		s.finishConnect(m, link, nil)
		return
	}
	link.Connect(tlsConfig, func(err error) {
		s.finishConnect(m, link, err)
	})
}

func (s *Session) finishConnect(m Module, link *transport.Link, err error) {
	s.mu.Lock()
	b := s.modules[m]
	if b.link != link || b.state != StateConnecting {
		s.mu.Unlock()
		return
	}
	done := b.connectDone
	b.connectDone = nil
	next := StateConnected
	if err != nil {
		next = StateDisconnected
		b.link = nil
		if !s.referencedLocked(link) {
			s.dropLinkLocked(link)
		}
	}
	b.state = next
	s.mu.Unlock()

	reason := ""
	if err != nil {
		reason = err.Error()
		s.logger.Debug("module connect failed", "module", m, "error", err)
	}
	s.captureModule(m, StateConnecting, next, reason)
	for _, d := range done {
		d(err)
	}
}

// Disconnect disconnects every module. done is called once all of them
// are disconnected.
func (s *Session) Disconnect(done func(error)) {
	var wg sync.WaitGroup
	for _, m := range allModules {
		wg.Add(1)
		s.DisconnectModule(m, func(error) { wg.Done() })
	}
	go func() {
		wg.Wait()
		resolve(done, nil)
	}()
}

// DisconnectModule disconnects one module. Its pending commands fail with
// ErrDisconnected. The link is closed only if no other module uses it.
func (s *Session) DisconnectModule(m Module, done func(error)) {
	if !m.valid() {
		resolve(done, unknownModule("disconnect", m))
		return
	}

	s.mu.Lock()
	b := s.modules[m]
	switch b.state {
	case StateDisconnected:
		delete(s.lost, m)
		s.cancelReconnectLocked()
		s.mu.Unlock()
		resolve(done, nil)
		return
	case StateDisconnecting:
		if done != nil {
			b.disconnectDone = append(b.disconnectDone, done)
		}
		s.mu.Unlock()
		return
	}

	prev := b.state
	link := b.link
	connectDone := b.connectDone
	b.connectDone = nil
	pending := b.takePending()
	delete(s.lost, m)
	s.cancelReconnectLocked()
	var launchWaiters []func(error)
	if m == ModuleApplication {
		launchWaiters = s.abortLaunchLocked()
	}

	shared := s.sharedLocked(link, m)
	if shared {
		b.state = StateDisconnected
		b.link = nil
	} else {
		b.state = StateDisconnecting
		if done != nil {
			b.disconnectDone = append(b.disconnectDone, done)
		}
	}
	s.mu.Unlock()

	connectErr := wire.NewError(wire.KindNetwork, "connect", wire.ErrDisconnected)
	for _, d := range connectDone {
		d(connectErr)
	}
	purgeErr := wire.NewError(wire.KindNetwork, "send", wire.ErrDisconnected)
	purge(pending, purgeErr)
	for _, w := range launchWaiters {
		w(purgeErr)
	}

	if shared {
		s.logger.Debug("module released shared link", "module", m)
		s.captureModule(m, prev, StateDisconnected, "link shared")
		resolve(done, nil)
		return
	}

	s.captureModule(m, prev, StateDisconnecting, "requested")
	link.Disconnect(func(error) {
		s.finishDisconnect(m, link)
	})
}

func (s *Session) finishDisconnect(m Module, link *transport.Link) {
	s.mu.Lock()
	b := s.modules[m]
	if b.link != link || b.state != StateDisconnecting {
		s.mu.Unlock()
		return
	}
	b.state = StateDisconnected
	b.link = nil
	done := b.disconnectDone
	b.disconnectDone = nil
	if !s.referencedLocked(link) {
		s.dropLinkLocked(link)
	}
	s.mu.Unlock()

	s.captureModule(m, StateDisconnecting, StateDisconnected, "requested")
	for _, d := range done {
		d(nil)
	}
}

// linkForLocked returns the link to url, creating it when no module uses
// one.
func (s *Session) linkForLocked(url string) *transport.Link {
	if l, ok := s.links[url]; ok {
		return l
	}
	l := transport.NewLink(url, s.identity, s.factory, s, s.config.Link)
	s.links[url] = l
	return l
}

// referencedLocked reports whether any module is bound to l.
func (s *Session) referencedLocked(l *transport.Link) bool {
	for _, b := range s.modules {
		if b.link == l && b.state != StateDisconnected {
			return true
		}
	}
	return false
}

// sharedLocked reports whether a module other than m is bound to l.
func (s *Session) sharedLocked(l *transport.Link, m Module) bool {
	for other, b := range s.modules {
		if other != m && b.link == l && b.state != StateDisconnected {
			return true
		}
	}
	return false
}

func (s *Session) dropLinkLocked(l *transport.Link) {
	if s.links[l.URL()] == l {
		delete(s.links, l.URL())
	}
}

// LinkDidConnect implements transport.Delegate.
func (s *Session) LinkDidConnect(l *transport.Link) {
	s.logger.Debug("link connected", "url", l.URL())
}

// LinkDidDisconnect implements transport.Delegate.
func (s *Session) LinkDidDisconnect(l *transport.Link) {
	s.logger.Debug("link disconnected", "url", l.URL())
}

// LinkDidFail implements transport.Delegate. Every module bound to l is
// disconnected, its pending work purged and the failure handler told.
func (s *Session) LinkDidFail(l *transport.Link, err error) {
	type lostModule struct {
		module Module
		prev   State
	}

	s.mu.Lock()
	var (
		failed         []lostModule
		pending        []map[uint64]func(transport.Result)
		connectDone    []func(error)
		disconnectDone []func(error)
		launchWaiters  []func(error)
	)
	for _, m := range allModules {
		b := s.modules[m]
		if b.link != l || b.state == StateDisconnected {
			continue
		}
		failed = append(failed, lostModule{module: m, prev: b.state})
		pending = append(pending, b.takePending())
		connectDone = append(connectDone, b.connectDone...)
		disconnectDone = append(disconnectDone, b.disconnectDone...)
		if s.config.Reconnect && !s.closed && b.state == StateConnected {
			s.lost[m] = target{module: m, url: b.url}
		}
		if m == ModuleApplication {
			s.appRunning = false
			launchWaiters = s.abortLaunchLocked()
		}
		b.state = StateDisconnected
		b.link = nil
		b.connectDone = nil
		b.disconnectDone = nil
	}
	s.dropLinkLocked(l)
	handler := s.failure
	reconnect := s.reconnector != nil && len(s.lost) > 0
	s.mu.Unlock()

	s.logger.Warn("link failed", "url", l.URL(), "modules", len(failed), "error", err)
	l.Disconnect(nil)

	purgeErr := wire.NewError(wire.KindNetwork, "send", wire.ErrDisconnected)
	for _, p := range pending {
		purge(p, purgeErr)
	}
	for _, w := range launchWaiters {
		w(purgeErr)
	}
	for _, d := range connectDone {
		d(err)
	}
	for _, d := range disconnectDone {
		d(nil)
	}
	for _, f := range failed {
		s.captureModule(f.module, f.prev, StateDisconnected, err.Error())
		if handler != nil {
			handler(f.module, err)
		}
	}
	if reconnect {
		s.reconnector.Trigger()
	}
}
