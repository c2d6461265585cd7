package session

import (
	"fmt"

	"github.com/Orange-OpenSource/ocast-go/pkg/transport"
	"github.com/Orange-OpenSource/ocast-go/pkg/wire"
)

// Send sends msg to domain and calls done with the reply.
//
// Browser-domain commands go through the application module, after the
// web application was confirmed running. Settings-domain commands go
// through the private settings module when it is connected, else through
// the public one.
func (s *Session) Send(domain string, msg wire.Message, done func(transport.Result)) {
	m, err := s.moduleFor(domain)
	if err != nil {
		resolveResult(done, transport.Result{Err: err})
		return
	}
	if domain != wire.DomainBrowser {
		s.sendOn(m, domain, msg, done)
		return
	}

	if state := s.ModuleState(m); state != StateConnected {
		resolveResult(done, transport.Result{Err: wire.NewError(wire.KindState, "send", wire.ErrNotConnected)})
		return
	}
	s.ensureApplicationRunning(func(err error) {
		if err != nil {
			resolveResult(done, transport.Result{Err: err})
			return
		}
		s.sendOn(m, domain, msg, done)
	})
}

func (s *Session) moduleFor(domain string) (Module, error) {
	switch domain {
	case wire.DomainBrowser:
		return ModuleApplication, nil
	case wire.DomainSettings:
		if s.ModuleState(ModulePrivateSettings) == StateConnected {
			return ModulePrivateSettings, nil
		}
		return ModulePublicSettings, nil
	default:
		return 0, wire.NewError(wire.KindState, "send", fmt.Errorf("%w: %q", ErrUnknownDomain, domain))
	}
}

// sendOn writes through module m. The completion is tracked per module so
// that a module disconnect fails it even when the link stays up.
func (s *Session) sendOn(m Module, domain string, msg wire.Message, done func(transport.Result)) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		resolveResult(done, transport.Result{Err: s.closedError("send")})
		return
	}
	b := s.modules[m]
	if b.state != StateConnected {
		s.mu.Unlock()
		resolveResult(done, transport.Result{Err: wire.NewError(wire.KindState, "send", wire.ErrNotConnected)})
		return
	}
	if done == nil {
		done = func(transport.Result) {}
	}
	s.nextToken++
	token := s.nextToken
	if b.pending == nil {
		b.pending = make(map[uint64]func(transport.Result))
	}
	b.pending[token] = done
	link := b.link
	s.mu.Unlock()

	link.Send(domain, msg, func(res transport.Result) {
		if d := s.takePending(m, token); d != nil {
			d(res)
		}
	})
}

func (s *Session) takePending(m Module, token uint64) func(transport.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.modules[m]
	d, ok := b.pending[token]
	if !ok {
		return nil
	}
	delete(b.pending, token)
	return d
}

func purge(pending map[uint64]func(transport.Result), err error) {
	for _, d := range pending {
		d(transport.Result{Err: err})
	}
}
