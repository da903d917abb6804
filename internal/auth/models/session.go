package models

import (
	"time"

	id "bikeauth/pkg/domain"
)

// Session is the per-browser server-side state that carries redirect hints
// across the login round trip.
type Session struct {
	ID                id.SessionID `json:"id"`
	ReturnTo          string       `json:"return_to,omitempty"`
	DiscourseRedirect string       `json:"discourse_redirect,omitempty"`
	// UserID is set once the browser authenticates and cleared on rejection.
	UserID    id.UserID `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NewSession returns an empty session valid for ttl from now.
func NewSession(now time.Time, ttl time.Duration) *Session {
	return &Session{
		ID:        id.NewSessionID(),
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}

// IsExpired reports whether the session has passed its expiry at now.
func (s *Session) IsExpired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// ClearHints drops both redirect hints; they are single-use.
func (s *Session) ClearHints() {
	s.ReturnTo = ""
	s.DiscourseRedirect = ""
}
