package memory

import (
	"context"
	"sync"

	audit "bikeauth/pkg/platform/audit"
)

// InMemoryStore is an audit.Sink that keeps events in memory. Used in tests and
// local development when no Kafka brokers are configured.
type InMemoryStore struct {
	mu     sync.RWMutex
	events []audit.SecurityEvent
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Write(_ context.Context, events []audit.SecurityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, events...)
	return nil
}

// ListBySubject returns events recorded for the subject in emission order.
func (s *InMemoryStore) ListBySubject(_ context.Context, subject string) ([]audit.SecurityEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []audit.SecurityEvent
	for _, e := range s.events {
		if e.Subject == subject {
			out = append(out, e)
		}
	}
	return out, nil
}

// ListAll returns a copy of every recorded event.
func (s *InMemoryStore) ListAll(_ context.Context) ([]audit.SecurityEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]audit.SecurityEvent{}, s.events...), nil
}
