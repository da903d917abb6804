package user

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"

	"bikeauth/internal/auth/models"
	id "bikeauth/pkg/domain"
	"bikeauth/pkg/platform/sentinel"
)

type InMemoryUserStoreSuite struct {
	suite.Suite
	store *InMemoryUserStore
}

func (s *InMemoryUserStoreSuite) SetupTest() {
	s.store = New()
}

func TestInMemoryUserStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryUserStoreSuite))
}

func (s *InMemoryUserStoreSuite) newUser(email, password string) *models.User {
	u, err := Build(NewUserParams{Email: email, Password: password, Confirmed: true}, bcrypt.MinCost, time.Now())
	s.Require().NoError(err)
	return u
}

func (s *InMemoryUserStoreSuite) TestLookupBehavior() {
	s.Run("returns user by ID when exists", func() {
		user := s.newUser("jane.doe@example.com", "pw")
		s.Require().NoError(s.store.Save(context.Background(), user))

		found, err := s.store.FindByID(context.Background(), user.ID)
		s.Require().NoError(err)
		s.Equal(user, found)
	})

	s.Run("fuzzy email ignores case and surrounding whitespace", func() {
		user := s.newUser("email.lookup@example.com", "pw")
		s.Require().NoError(s.store.Save(context.Background(), user))

		found, err := s.store.FindByFuzzyEmail(context.Background(), "  Email.Lookup@EXAMPLE.com\t")
		s.Require().NoError(err)
		s.Equal(user.ID, found.ID)
	})

	s.Run("secondary emails resolve to the owner", func() {
		user := s.newUser("primary@example.com", "pw")
		user.SecondaryEmails = []string{"Alt@Example.com"}
		s.Require().NoError(s.store.Save(context.Background(), user))

		found, err := s.store.FindByFuzzyEmail(context.Background(), "alt@example.com")
		s.Require().NoError(err)
		s.Equal(user.ID, found.ID)
	})

	s.Run("returns ErrNotFound when user ID does not exist", func() {
		_, err := s.store.FindByID(context.Background(), id.NewUserID())
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("returns ErrNotFound when email does not exist", func() {
		_, err := s.store.FindByFuzzyEmail(context.Background(), "missing@example.com")
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *InMemoryUserStoreSuite) TestSaveConflicts() {
	first := s.newUser("taken@example.com", "pw")
	s.Require().NoError(s.store.Save(context.Background(), first))

	second := s.newUser("taken@example.com", "pw")
	s.ErrorIs(s.store.Save(context.Background(), second), sentinel.ErrConflict)

	s.Run("changing email frees the old address", func() {
		first.Email = "renamed@example.com"
		s.Require().NoError(s.store.Save(context.Background(), first))
		s.NoError(s.store.Save(context.Background(), second))
	})
}

func (s *InMemoryUserStoreSuite) TestEmailsAreUniqueAcrossPrimaryAndSecondary() {
	owner := s.newUser("owner@example.com", "pw")
	owner.SecondaryEmails = []string{"alt@example.com"}
	s.Require().NoError(s.store.Save(context.Background(), owner))

	s.ErrorIs(s.store.Save(context.Background(), s.newUser("alt@example.com", "pw")), sentinel.ErrConflict)
	other := s.newUser("other@example.com", "pw")
	other.SecondaryEmails = []string{"OWNER@example.com"}
	s.ErrorIs(s.store.Save(context.Background(), other), sentinel.ErrConflict)

	found, err := s.store.FindByFuzzyEmail(context.Background(), "alt@example.com")
	s.Require().NoError(err)
	s.Equal(owner.ID, found.ID)
}

func (s *InMemoryUserStoreSuite) TestAuthenticate() {
	user := s.newUser("rider@example.com", "correct horse")
	s.Require().NoError(s.store.Save(context.Background(), user))

	ok, err := s.store.Authenticate(context.Background(), user, "correct horse")
	s.Require().NoError(err)
	s.True(ok)

	ok, err = s.store.Authenticate(context.Background(), user, "wrong")
	s.Require().NoError(err)
	s.False(ok)

	s.Run("corrupt hash is a fault, not a mismatch", func() {
		broken := *user
		broken.PasswordHash = []byte("garbage")
		ok, err := s.store.Authenticate(context.Background(), &broken, "correct horse")
		s.Error(err)
		s.False(ok)
	})

	s.Run("no password hash never authenticates", func() {
		empty := *user
		empty.PasswordHash = nil
		ok, err := s.store.Authenticate(context.Background(), &empty, "")
		s.NoError(err)
		s.False(ok)
	})
}

func (s *InMemoryUserStoreSuite) TestRotateAuthToken() {
	user := s.newUser("rotate@example.com", "pw")
	s.Require().NoError(s.store.Save(context.Background(), user))

	token, err := s.store.RotateAuthToken(context.Background(), user.ID)
	s.Require().NoError(err)
	s.NotEqual(user.AuthToken, token)

	found, err := s.store.FindByID(context.Background(), user.ID)
	s.Require().NoError(err)
	s.Equal(token, found.AuthToken)

	_, err = s.store.RotateAuthToken(context.Background(), id.NewUserID())
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *InMemoryUserStoreSuite) TestDelete() {
	s.Run("deletes user and makes them unfindable", func() {
		user := s.newUser("delete.me@example.com", "pw")
		s.Require().NoError(s.store.Save(context.Background(), user))
		s.Require().NoError(s.store.Delete(context.Background(), user.ID))

		_, err := s.store.FindByID(context.Background(), user.ID)
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
		_, err = s.store.FindByFuzzyEmail(context.Background(), user.Email)
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("returns ErrNotFound when deleting non-existent user", func() {
		err := s.store.Delete(context.Background(), id.NewUserID())
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *InMemoryUserStoreSuite) TestSeedSkipsExisting() {
	existing := s.newUser("seed@example.com", "pw")
	s.Require().NoError(s.store.Save(context.Background(), existing))

	dup := s.newUser("seed@example.com", "other")
	fresh := s.newUser("fresh@example.com", "pw")
	s.Require().NoError(s.store.Seed(context.Background(), []*models.User{dup, fresh}))

	found, err := s.store.FindByFuzzyEmail(context.Background(), "seed@example.com")
	s.Require().NoError(err)
	s.Equal(existing.ID, found.ID)
	_, err = s.store.FindByID(context.Background(), fresh.ID)
	s.NoError(err)
}

func TestBuild(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	u, err := Build(NewUserParams{
		Email:           " Rider@Example.com ",
		Password:        "pw",
		SecondaryEmails: []string{"rider@example.com", "Other@Example.com", ""},
	}, bcrypt.MinCost, now)
	if err != nil {
		t.Fatal(err)
	}
	if u.Email != "rider@example.com" || len(u.SecondaryEmails) != 1 || u.SecondaryEmails[0] != "other@example.com" {
		t.Fatalf("unexpected normalization: %+v", u)
	}
	if u.AuthToken == "" || u.ID.IsNil() || !u.CreatedAt.Equal(now) {
		t.Fatalf("incomplete user: %+v", u)
	}

	if _, err := Build(NewUserParams{Email: "  ", Password: "pw"}, bcrypt.MinCost, now); err == nil {
		t.Fatal("expected error for blank email")
	}
}
