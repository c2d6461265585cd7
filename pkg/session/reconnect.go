package session

import (
	"context"
	"crypto/tls"
	"maps"
)

// reconnect restores the modules lost to link failures. It is the
// reconnector's attempt function.
func (s *Session) reconnect(ctx context.Context) error {
	s.mu.Lock()
	lost := maps.Clone(s.lost)
	tlsByModule := make(map[Module]*tls.Config, len(lost))
	for m := range lost {
		tlsByModule[m] = s.modules[m].tls
	}
	s.mu.Unlock()

	for m, t := range lost {
		if err := s.ConnectModuleContext(ctx, m, t.url, tlsByModule[m]); err != nil {
			return err
		}
		s.mu.Lock()
		if cur, ok := s.lost[m]; ok && cur == t {
			delete(s.lost, m)
		}
		s.mu.Unlock()
	}
	return nil
}

// cancelReconnectLocked stops retrying once nothing is left to restore.
func (s *Session) cancelReconnectLocked() {
	if s.reconnector != nil && len(s.lost) == 0 {
		s.reconnector.Cancel()
	}
}
