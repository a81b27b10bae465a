package middleware

import "sync"

// Event statuses emitted by the middleware pipeline.
const (
	StatusSuccess   = "success"
	StatusRecovered = "recovered"
	StatusRetrying  = "retrying"
	StatusPassed    = "passed"
	StatusFailed    = "failed"
	StatusError     = "error"
	StatusSkipped   = "skipped"
)

// Event is one immutable record of middleware activity during a request.
type Event struct {
	Middleware string                 `json:"middleware"`
	Status     string                 `json:"status"`
	Message    string                 `json:"message"`
	Details    map[string]interface{} `json:"details,omitempty"`
}

// Sink collects middleware events for exactly one inbound request. A fresh
// sink is created per request so concurrent requests never observe each
// other's events.
type Sink struct {
	mu     sync.Mutex
	events []Event
}

func NewSink() *Sink {
	return &Sink{}
}

// Reset clears the sink for a new request.
func (s *Sink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
}

// Emit appends one event. A nil details map is omitted from the record.
func (s *Sink) Emit(middleware, status, message string, details map[string]interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, Event{
		Middleware: middleware,
		Status:     status,
		Message:    message,
		Details:    details,
	})
}

// Drain returns the collected events in emission order and clears the sink.
func (s *Sink) Drain() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.events
	s.events = nil
	if out == nil {
		out = []Event{}
	}
	return out
}
