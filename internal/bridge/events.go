package bridge

import (
	"context"
	"sync"

	"zkbridge/internal/domain"
)

// EventSink receives events after a transition commits. Publish must not
// block for long and its failures never affect the ledger.
type EventSink interface {
	Publish(ctx context.Context, e domain.Event)
}

// NopSink discards every event.
type NopSink struct{}

func (NopSink) Publish(context.Context, domain.Event) {}

// RecordingSink keeps published events in memory.
type RecordingSink struct {
	mu     sync.Mutex
	events []domain.Event
}

func NewRecordingSink() *RecordingSink {
	return &RecordingSink{}
}

func (s *RecordingSink) Publish(_ context.Context, e domain.Event) {
	s.mu.Lock()
	s.events = append(s.events, e)
	s.mu.Unlock()
}

func (s *RecordingSink) Events() []domain.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Event(nil), s.events...)
}
