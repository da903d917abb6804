package user

import (
	"context"
	"errors"
	"sync"

	"bikeauth/internal/auth/models"
	"bikeauth/internal/auth/secrets"
	id "bikeauth/pkg/domain"
	"bikeauth/pkg/platform/sentinel"
	pstrings "bikeauth/pkg/platform/strings"
)

// InMemoryUserStore is a directory held in process memory. Emails (primary
// and secondary) are indexed in normalized form.
type InMemoryUserStore struct {
	mu     sync.RWMutex
	users  map[id.UserID]*models.User
	emails map[string]id.UserID
}

func New() *InMemoryUserStore {
	return &InMemoryUserStore{
		users:  make(map[id.UserID]*models.User),
		emails: make(map[string]id.UserID),
	}
}

// Save inserts or replaces a user. An email already owned by another user
// yields ErrConflict.
func (s *InMemoryUserStore) Save(_ context.Context, user *models.User) error {
	if user == nil || user.ID.IsNil() || models.NormalizeEmail(user.Email) == "" {
		return sentinel.ErrInvalidInput
	}
	stored := cloneUser(user)
	stored.Email = models.NormalizeEmail(stored.Email)
	stored.SecondaryEmails = normalizeAll(stored.SecondaryEmails)
	addresses := append([]string{stored.Email}, stored.SecondaryEmails...)

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, addr := range addresses {
		if owner, ok := s.emails[addr]; ok && owner != stored.ID {
			return sentinel.ErrConflict
		}
	}
	s.unindex(stored.ID)
	for _, addr := range addresses {
		s.emails[addr] = stored.ID
	}
	s.users[stored.ID] = stored
	return nil
}

// Seed saves each user, skipping ones whose email is already taken.
func (s *InMemoryUserStore) Seed(ctx context.Context, users []*models.User) error {
	for _, u := range users {
		if err := s.Save(ctx, u); err != nil && !errors.Is(err, sentinel.ErrConflict) {
			return err
		}
	}
	return nil
}

func (s *InMemoryUserStore) FindByID(_ context.Context, userID id.UserID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if u, ok := s.users[userID]; ok {
		return cloneUser(u), nil
	}
	return nil, sentinel.ErrNotFound
}

// FindByFuzzyEmail matches case- and whitespace-insensitively against primary
// and secondary emails.
func (s *InMemoryUserStore) FindByFuzzyEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	userID, ok := s.emails[models.NormalizeEmail(email)]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneUser(s.users[userID]), nil
}

func (s *InMemoryUserStore) Authenticate(ctx context.Context, user *models.User, password string) (bool, error) {
	return checkPassword(ctx, user, password)
}

// RotateAuthToken replaces the user's auth token, invalidating outstanding identity cookies.
func (s *InMemoryUserStore) RotateAuthToken(_ context.Context, userID id.UserID) (string, error) {
	token, err := secrets.GenerateAuthToken()
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return "", sentinel.ErrNotFound
	}
	u.AuthToken = token
	return token, nil
}

func (s *InMemoryUserStore) Delete(_ context.Context, userID id.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[userID]; !ok {
		return sentinel.ErrNotFound
	}
	s.unindex(userID)
	delete(s.users, userID)
	return nil
}

func (s *InMemoryUserStore) unindex(userID id.UserID) {
	for addr, owner := range s.emails {
		if owner == userID {
			delete(s.emails, addr)
		}
	}
}

func normalizeAll(emails []string) []string {
	return pstrings.Dedupe(emails, models.NormalizeEmail)
}
