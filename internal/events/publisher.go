package events

import (
	"context"
	"sync"
	"time"
)

// Sink delivers events to an external transport. Implementations must be
// safe for concurrent use.
type Sink interface {
	Publish(ctx context.Context, event Event) error
}

// Publisher stamps and forwards entitlement lifecycle events. A nil
// publisher is usable and drops everything, so services need no
// configuration branch.
type Publisher struct {
	sink Sink
}

// NewPublisher wraps a sink. A nil sink yields a drop-everything publisher.
func NewPublisher(sink Sink) *Publisher {
	return &Publisher{sink: sink}
}

// Emit forwards the event, defaulting its timestamp.
func (p *Publisher) Emit(ctx context.Context, event Event) error {
	if p == nil || p.sink == nil {
		return nil
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	return p.sink.Publish(ctx, event)
}

// MemorySink collects events in memory; used by tests.
type MemorySink struct {
	mu     sync.Mutex
	events []Event
}

// NewMemorySink constructs an empty memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) Publish(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

// Events returns a copy of everything published so far.
func (s *MemorySink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}
