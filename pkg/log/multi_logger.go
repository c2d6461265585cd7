package log

// MultiLogger fans events out to several loggers, typically a
// SlogAdapter and a FileLogger.
type MultiLogger struct {
	loggers []Logger
}

// NewMultiLogger returns a logger writing to every non-nil logger given.
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	m := &MultiLogger{}
	for _, l := range loggers {
		if l != nil {
			m.loggers = append(m.loggers, l)
		}
	}
	return m
}

// Log sends the event to all loggers in order.
func (m *MultiLogger) Log(event Event) {
	for _, l := range m.loggers {
		l.Log(event)
	}
}

var _ Logger = (*MultiLogger)(nil)
