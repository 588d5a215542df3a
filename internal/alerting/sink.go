package alerting

import (
	"log/slog"
	"sync"

	"fleet-sentinel/internal/metrics"
	"fleet-sentinel/internal/queue"
)

// Recorder accepts alerts. Record must not fail or block.
type Recorder interface {
	Record(alert Alert)
}

// Sink is the ordered, append-only alert log. It is safe for concurrent use.
type Sink struct {
	mu     sync.RWMutex
	alerts []Alert
	cursor int

	outbox  *queue.RingBuffer[Alert]
	metrics *metrics.Detection
	logger  *slog.Logger
}

// SinkOption configures a Sink.
type SinkOption func(*Sink)

// WithOutbox pushes every recorded alert onto outbox for asynchronous
// delivery. A full outbox drops the notification, never the log entry.
func WithOutbox(outbox *queue.RingBuffer[Alert]) SinkOption {
	return func(s *Sink) { s.outbox = outbox }
}

// WithMetrics counts dropped notifications on m.
func WithMetrics(m *metrics.Detection) SinkOption {
	return func(s *Sink) { s.metrics = m }
}

// WithLogger sets the sink's logger.
func WithLogger(logger *slog.Logger) SinkOption {
	return func(s *Sink) { s.logger = logger }
}

// NewSink creates an empty sink.
func NewSink(opts ...SinkOption) *Sink {
	s := &Sink{logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Record appends alert to the log and queues it for notification.
func (s *Sink) Record(alert Alert) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.alerts = append(s.alerts, alert)

	if s.outbox == nil {
		return
	}
	// Pushing under the lock keeps outbox order equal to log order.
	if err := s.outbox.Push(alert); err != nil {
		s.metrics.IncOutboxDropped()
		s.logger.Warn("alert notification dropped",
			"alert_id", alert.ID,
			"category", alert.Category,
			"error", err,
		)
	}
}

// List returns a copy of every recorded alert in order.
func (s *Sink) List() []Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Alert, len(s.alerts))
	copy(out, s.alerts)
	return out
}

// Drain returns the alerts recorded since the previous Drain. The log
// itself is not truncated.
func (s *Sink) Drain() []Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Alert, len(s.alerts)-s.cursor)
	copy(out, s.alerts[s.cursor:])
	s.cursor = len(s.alerts)
	return out
}

// Since returns the alerts at positions >= index and the index to pass on
// the next call. A negative or out-of-range index is clamped.
func (s *Sink) Since(index int) ([]Alert, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if index < 0 {
		index = 0
	}
	if index > len(s.alerts) {
		index = len(s.alerts)
	}
	out := make([]Alert, len(s.alerts)-index)
	copy(out, s.alerts[index:])
	return out, len(s.alerts)
}

// ByCategory returns the recorded alerts of category c in order.
func (s *Sink) ByCategory(c Category) []Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Alert
	for _, a := range s.alerts {
		if a.Category == c {
			out = append(out, a)
		}
	}
	return out
}

// Len returns the number of recorded alerts.
func (s *Sink) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.alerts)
}
