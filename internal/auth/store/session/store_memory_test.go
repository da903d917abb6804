package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"bikeauth/internal/auth/models"
	id "bikeauth/pkg/domain"
	"bikeauth/pkg/platform/sentinel"
)

type SessionStoreSuite struct {
	suite.Suite
	store *InMemorySessionStore
	now   time.Time
}

func (s *SessionStoreSuite) SetupTest() {
	s.now = time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	s.store = New(WithClock(func() time.Time { return s.now }))
}

func TestSessionStoreSuite(t *testing.T) {
	suite.Run(t, new(SessionStoreSuite))
}

func (s *SessionStoreSuite) TestSessionLookup() {
	s.Run("returns stored session when found", func() {
		session := models.NewSession(s.now, time.Hour)
		session.ReturnTo = "/my_account"
		s.Require().NoError(s.store.Save(context.Background(), session))

		found, err := s.store.FindByID(context.Background(), session.ID)
		s.Require().NoError(err)
		s.Equal(session, found)
	})

	s.Run("returns ErrNotFound when session does not exist", func() {
		_, err := s.store.FindByID(context.Background(), id.NewSessionID())
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("returns a copy so callers cannot mutate stored state", func() {
		session := models.NewSession(s.now, time.Hour)
		s.Require().NoError(s.store.Save(context.Background(), session))

		found, err := s.store.FindByID(context.Background(), session.ID)
		s.Require().NoError(err)
		found.ReturnTo = "/elsewhere"

		again, err := s.store.FindByID(context.Background(), session.ID)
		s.Require().NoError(err)
		s.Empty(again.ReturnTo)
	})
}

func (s *SessionStoreSuite) TestExpiry() {
	session := models.NewSession(s.now, time.Minute)
	s.Require().NoError(s.store.Save(context.Background(), session))

	s.now = s.now.Add(2 * time.Minute)
	_, err := s.store.FindByID(context.Background(), session.ID)
	s.Require().ErrorIs(err, sentinel.ErrExpired)
	s.Equal(0, s.store.Len(), "expired session is dropped on access")
}

// TestExpiryKeepsConcurrentReplacement saves a fresh session under the same id
// between the expiry check and the delete; the fresh one must survive.
func (s *SessionStoreSuite) TestExpiryKeepsConcurrentReplacement() {
	ctx := context.Background()
	stale := models.NewSession(s.now.Add(-2*time.Hour), time.Hour)

	fresh := *stale
	fresh.ExpiresAt = s.now.Add(time.Hour)
	fresh.ReturnTo = "/my_account"

	var store *InMemorySessionStore
	replaced := false
	store = New(WithClock(func() time.Time {
		if !replaced {
			replaced = true
			s.Require().NoError(store.Save(ctx, &fresh))
		}
		return s.now
	}))
	s.Require().NoError(store.Save(ctx, stale))

	found, err := store.FindByID(ctx, stale.ID)
	s.Require().NoError(err)
	s.Equal("/my_account", found.ReturnTo)
	s.Equal(1, store.Len())

	again, err := store.FindByID(ctx, stale.ID)
	s.Require().NoError(err)
	s.Equal(fresh.ExpiresAt, again.ExpiresAt)
}

func (s *SessionStoreSuite) TestDelete() {
	session := models.NewSession(s.now, time.Hour)
	s.Require().NoError(s.store.Save(context.Background(), session))

	s.Require().NoError(s.store.Delete(context.Background(), session.ID))
	_, err := s.store.FindByID(context.Background(), session.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)

	s.NoError(s.store.Delete(context.Background(), session.ID), "second delete is a no-op")
}

func (s *SessionStoreSuite) TestSaveRejectsNilID() {
	s.ErrorIs(s.store.Save(context.Background(), &models.Session{}), sentinel.ErrInvalidInput)
	s.ErrorIs(s.store.Save(context.Background(), nil), sentinel.ErrInvalidInput)
}

func (s *SessionStoreSuite) TestConcurrentAccess() {
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			session := models.NewSession(s.now, time.Hour)
			_ = s.store.Save(context.Background(), session)
			_, _ = s.store.FindByID(context.Background(), session.ID)
			_ = s.store.Delete(context.Background(), session.ID)
		}()
	}
	wg.Wait()
	s.Equal(0, s.store.Len())
}
