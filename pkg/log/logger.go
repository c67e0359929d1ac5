package log

// Logger receives protocol events as the engine produces them. The engine
// calls Log from its tick goroutine; implementations that do real I/O
// should either be fast or hand off to their own writer.
type Logger interface {
	Log(event Event)
}

// NoopLogger discards all events. The zero value is ready to use; it is
// the engine's default when no protocol log is configured.
type NoopLogger struct{}

// Log discards the event.
func (NoopLogger) Log(Event) {}

// MultiLogger fans events out to several loggers, typically a FileLogger
// for capture plus a SlogAdapter for live console output.
type MultiLogger struct {
	sinks []Logger
}

// NewMultiLogger creates a MultiLogger over the given sinks.
func NewMultiLogger(sinks ...Logger) *MultiLogger {
	return &MultiLogger{sinks: sinks}
}

// Log delivers the event to every sink in order.
func (m *MultiLogger) Log(event Event) {
	for _, s := range m.sinks {
		s.Log(event)
	}
}

var (
	_ Logger = NoopLogger{}
	_ Logger = (*MultiLogger)(nil)
)
