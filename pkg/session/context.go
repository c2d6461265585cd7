package session

import (
	"context"
	"crypto/tls"

	"github.com/Orange-OpenSource/ocast-go/pkg/transport"
	"github.com/Orange-OpenSource/ocast-go/pkg/wire"
)

// ConnectContext is Connect, blocking until it completes or ctx ends.
// Leaving early does not cancel the connection attempt.
func (s *Session) ConnectContext(ctx context.Context, tlsConfig *tls.Config) error {
	ch := make(chan error, 1)
	s.Connect(tlsConfig, func(err error) { ch <- err })
	return wait(ctx, ch)
}

// ConnectModuleContext is ConnectModule, blocking until it completes or
// ctx ends.
func (s *Session) ConnectModuleContext(ctx context.Context, m Module, url string, tlsConfig *tls.Config) error {
	ch := make(chan error, 1)
	s.ConnectModule(m, url, tlsConfig, func(err error) { ch <- err })
	return wait(ctx, ch)
}

// DisconnectContext is Disconnect, blocking until it completes or ctx ends.
func (s *Session) DisconnectContext(ctx context.Context) error {
	ch := make(chan error, 1)
	s.Disconnect(func(err error) { ch <- err })
	return wait(ctx, ch)
}

// SendContext is Send, blocking until the reply arrives or ctx ends.
// A late reply is discarded.
func (s *Session) SendContext(ctx context.Context, domain string, msg wire.Message) (wire.Message, error) {
	ch := make(chan transport.Result, 1)
	s.Send(domain, msg, func(res transport.Result) { ch <- res })

	select {
	case res := <-ch:
		return res.Message, res.Err
	case <-ctx.Done():
		return wire.Message{}, ctx.Err()
	}
}

// StartApplicationContext is StartApplication, blocking until it completes
// or ctx ends.
func (s *Session) StartApplicationContext(ctx context.Context) error {
	ch := make(chan error, 1)
	s.StartApplication(func(err error) { ch <- err })
	return wait(ctx, ch)
}

// StopApplicationContext is StopApplication, blocking until it completes
// or ctx ends.
func (s *Session) StopApplicationContext(ctx context.Context) error {
	ch := make(chan error, 1)
	s.StopApplication(func(err error) { ch <- err })
	return wait(ctx, ch)
}

func wait(ctx context.Context, ch <-chan error) error {
	select {
	case err := <-ch:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
