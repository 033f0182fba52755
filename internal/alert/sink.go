package alert

import (
	"sync"

	"go.uber.org/zap"

	"github.com/your-org/signal-trader/pkg/ring"
)

// Sink receives events. Publish must not block the caller for long; slow
// transports queue internally.
type Sink interface {
	Publish(tenantID string, kind Kind, payload Payload)
}

// NoOpSink is a sink that does nothing. It is used when notifications are disabled.
type NoOpSink struct{}

// Publish does nothing.
func (NoOpSink) Publish(string, Kind, Payload) {}

// Fanout forwards every event to each of its sinks in order.
type Fanout []Sink

// Publish forwards the event to every sink.
func (f Fanout) Publish(tenantID string, kind Kind, payload Payload) {
	for _, s := range f {
		if s != nil {
			s.Publish(tenantID, kind, payload)
		}
	}
}

// LogSink writes every event as a structured log line.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink creates a LogSink.
func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger.Named("events")}
}

// Publish logs the event.
func (s *LogSink) Publish(tenantID string, kind Kind, payload Payload) {
	sub := SubjectOf(payload)
	fields := []zap.Field{
		zap.String("tenant", tenantID),
		zap.String("kind", string(kind)),
		zap.String("symbol", sub.Symbol),
		zap.String("side", sub.Side),
		zap.Any("payload", payload),
	}
	if kind == KindOrderFailed {
		s.logger.Warn(Render(kind, payload), fields...)
		return
	}
	s.logger.Info(Render(kind, payload), fields...)
}

// History keeps the most recent events in memory.
type History struct {
	mu  sync.Mutex
	buf *ring.Buffer[Event]
}

// NewHistory creates a History holding up to size events.
func NewHistory(size int) *History {
	return &History{buf: ring.New[Event](size)}
}

// Publish records the event.
func (h *History) Publish(tenantID string, kind Kind, payload Payload) {
	ev := NewEvent(tenantID, kind, payload)
	h.mu.Lock()
	defer h.mu.Unlock()
	h.buf.Add(ev)
}

// Events returns the recorded events, oldest first.
func (h *History) Events() []Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.buf.Items()
}

// OfKind returns the recorded events of one kind, oldest first.
func (h *History) OfKind(kind Kind) []Event {
	var out []Event
	for _, ev := range h.Events() {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}
