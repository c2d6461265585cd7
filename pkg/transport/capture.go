package transport

import (
	"time"

	"github.com/Orange-OpenSource/ocast-go/pkg/log"
	"github.com/Orange-OpenSource/ocast-go/pkg/wire"
)

func (l *Link) event(dir log.Direction, layer log.Layer, cat log.Category) log.Event {
	return log.Event{
		Timestamp:    time.Now(),
		ConnectionID: l.connID,
		Direction:    dir,
		Layer:        layer,
		Category:     cat,
		URL:          l.url,
		DeviceID:     l.config.DeviceID,
	}
}

func (l *Link) captureFrame(dir log.Direction, data []byte) {
	if l.plog == nil {
		return
	}
	e := l.event(dir, log.LayerSocket, log.CategoryMessage)
	e.Frame = log.NewFrameEvent(data)
	l.plog.Log(e)
}

func (l *Link) captureMessage(dir log.Direction, env *wire.Envelope, rtt *time.Duration) {
	if l.plog == nil {
		return
	}
	e := l.event(dir, log.LayerLink, log.CategoryMessage)
	e.Domain = env.Destination
	if dir == log.DirectionIn {
		e.Domain = env.Source
	}
	e.Message = &log.MessageEvent{
		Type:        string(env.Type),
		ID:          env.ID,
		Destination: env.Destination,
		Source:      env.Source,
		Service:     env.Message.Service,
		Name:        env.Message.Data.Name,
		Status:      env.Status,
		Params:      string(env.Message.Data.Params),
		RoundTrip:   rtt,
	}
	l.plog.Log(e)
}

func (l *Link) captureState(from, to State, reason string) {
	if l.plog == nil {
		return
	}
	e := l.event(log.DirectionOut, log.LayerLink, log.CategoryState)
	e.StateChange = &log.StateChangeEvent{
		Entity:   log.StateEntityLink,
		OldState: from.String(),
		NewState: to.String(),
		Reason:   reason,
	}
	l.plog.Log(e)
}

func (l *Link) captureControl(t log.ControlMsgType, missed int) {
	if l.plog == nil {
		return
	}
	dir := log.DirectionOut
	if t == log.ControlMsgPong {
		dir = log.DirectionIn
	}
	e := l.event(dir, log.LayerSocket, log.CategoryControl)
	e.ControlMsg = &log.ControlMsgEvent{Type: t, Missed: missed}
	l.plog.Log(e)
}

func (l *Link) captureError(err error, context string) {
	if l.plog == nil {
		return
	}
	e := l.event(log.DirectionIn, log.LayerLink, log.CategoryError)
	e.Error = &log.ErrorEventData{
		Layer:   log.LayerLink,
		Message: err.Error(),
		Kind:    wire.KindOf(err).String(),
		Context: context,
	}
	l.plog.Log(e)
}
