package session

import (
	"context"
	"sync"
	"time"

	"bikeauth/internal/auth/models"
	id "bikeauth/pkg/domain"
	"bikeauth/pkg/platform/sentinel"
)

// InMemorySessionStore keeps sessions in process memory. Expired sessions
// read as ErrExpired and are dropped on access.
type InMemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[id.SessionID]models.Session
	now      func() time.Time
}

type Option func(*InMemorySessionStore)

// WithClock overrides time.Now for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(s *InMemorySessionStore) { s.now = now }
}

func New(opts ...Option) *InMemorySessionStore {
	s := &InMemorySessionStore{
		sessions: make(map[id.SessionID]models.Session),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *InMemorySessionStore) Save(_ context.Context, session *models.Session) error {
	if session == nil || session.ID.IsNil() {
		return sentinel.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = *session
	return nil
}

func (s *InMemorySessionStore) FindByID(_ context.Context, sessionID id.SessionID) (*models.Session, error) {
	s.mu.RLock()
	session, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	now := s.now()
	if !session.IsExpired(now) {
		return &session, nil
	}

	// A Save may have replaced the entry since the read lock was released.
	s.mu.Lock()
	defer s.mu.Unlock()
	if current, ok := s.sessions[sessionID]; ok && !current.IsExpired(now) {
		return &current, nil
	}
	delete(s.sessions, sessionID)
	return nil, sentinel.ErrExpired
}

// Delete removes the session. Deleting an unknown session is not an error.
func (s *InMemorySessionStore) Delete(_ context.Context, sessionID id.SessionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}

// Len reports the number of stored sessions, expired ones included.
func (s *InMemorySessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
