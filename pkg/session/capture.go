package session

import (
	"time"

	"github.com/Orange-OpenSource/ocast-go/pkg/log"
)

func (s *Session) stateEvent(domain string) log.Event {
	return log.Event{
		Timestamp:    time.Now(),
		ConnectionID: s.identity,
		Direction:    log.DirectionOut,
		Layer:        log.LayerSession,
		Category:     log.CategoryState,
		DeviceID:     s.device.ID,
		Domain:       domain,
	}
}

func (s *Session) captureModule(m Module, from, to State, reason string) {
	if s.plog == nil {
		return
	}
	e := s.stateEvent(m.Domain())
	e.StateChange = &log.StateChangeEvent{
		Entity:   log.StateEntityModule,
		OldState: m.String() + " " + from.String(),
		NewState: m.String() + " " + to.String(),
		Reason:   reason,
	}
	s.plog.Log(e)
}

func (s *Session) captureApplication(running bool, reason string) {
	if s.plog == nil {
		return
	}
	from, to := "RUNNING", "STOPPED"
	if running {
		from, to = to, from
	}
	e := s.stateEvent(ModuleApplication.Domain())
	e.StateChange = &log.StateChangeEvent{
		Entity:   log.StateEntityApplication,
		OldState: from,
		NewState: to,
		Reason:   reason,
	}
	s.plog.Log(e)
}
