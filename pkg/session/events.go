package session

import (
	"github.com/Orange-OpenSource/ocast-go/pkg/transport"
	"github.com/Orange-OpenSource/ocast-go/pkg/wire"
)

// RegisterEvent routes events named name to h, replacing any previous
// handler for that name.
func (s *Session) RegisterEvent(name string, h EventHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[name] = h
}

// UnregisterEvent removes the handler for name.
func (s *Session) UnregisterEvent(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.events, name)
}

// RegisterService routes every event of service to h.
func (s *Session) RegisterService(service string, h EventHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.services[service] = h
}

// UnregisterService removes the handler for service.
func (s *Session) UnregisterService(service string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.services, service)
}

// LinkDidReceiveEvent implements transport.Delegate. Settings-domain
// events are dropped unless private settings are allowed. Only the browser
// domain reports the web application's connected status.
func (s *Session) LinkDidReceiveEvent(l *transport.Link, source string, msg wire.Message) {
	switch source {
	case wire.DomainBrowser:
		if status, ok := msg.ConnectedStatus(); ok {
			s.handleConnectedStatus(status)
		}
	case wire.DomainSettings:
		if !s.config.PrivateSettingsAllowed {
			s.logger.Debug("dropping settings event", "service", msg.Service, "name", msg.Data.Name)
			return
		}
	default:
		s.logger.Debug("dropping event from unknown domain", "domain", source, "url", l.URL())
		return
	}

	s.mu.Lock()
	byService := s.services[msg.Service]
	byName := s.events[msg.Data.Name]
	s.mu.Unlock()

	ev := Event{Domain: source, Message: msg}
	if byService != nil {
		byService(ev)
	}
	if byName != nil {
		byName(ev)
	}
}
