//go:build integration

package user_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"

	"bikeauth/internal/auth/models"
	"bikeauth/internal/auth/store/user"
	id "bikeauth/pkg/domain"
	"bikeauth/pkg/platform/sentinel"
	"bikeauth/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *user.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = user.NewPostgres(s.postgres.DB)
	s.Require().NoError(s.store.Migrate(context.Background()))
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "user_emails", "users"))
}

func (s *PostgresStoreSuite) build(email string, secondary ...string) *models.User {
	u, err := user.Build(user.NewUserParams{
		Email:           email,
		Password:        "correct horse",
		Confirmed:       true,
		SecondaryEmails: secondary,
	}, bcrypt.MinCost, time.Now())
	s.Require().NoError(err)
	return u
}

func (s *PostgresStoreSuite) TestSaveAndFind() {
	ctx := context.Background()
	u := s.build("rider@example.com", "alt@example.com")
	s.Require().NoError(s.store.Save(ctx, u))

	byID, err := s.store.FindByID(ctx, u.ID)
	s.Require().NoError(err)
	s.Equal(u.Email, byID.Email)
	s.Equal(u.AuthToken, byID.AuthToken)
	s.Equal([]string{"alt@example.com"}, byID.SecondaryEmails)

	byEmail, err := s.store.FindByFuzzyEmail(ctx, "  RIDER@example.com ")
	s.Require().NoError(err)
	s.Equal(u.ID, byEmail.ID)

	bySecondary, err := s.store.FindByFuzzyEmail(ctx, "Alt@Example.com")
	s.Require().NoError(err)
	s.Equal(u.ID, bySecondary.ID)

	ok, err := s.store.Authenticate(ctx, byEmail, "correct horse")
	s.Require().NoError(err)
	s.True(ok)
}

func (s *PostgresStoreSuite) TestNotFound() {
	ctx := context.Background()
	_, err := s.store.FindByID(ctx, id.NewUserID())
	s.ErrorIs(err, sentinel.ErrNotFound)
	_, err = s.store.FindByFuzzyEmail(ctx, "nobody@example.com")
	s.ErrorIs(err, sentinel.ErrNotFound)
	_, err = s.store.RotateAuthToken(ctx, id.NewUserID())
	s.ErrorIs(err, sentinel.ErrNotFound)
	s.ErrorIs(s.store.Delete(ctx, id.NewUserID()), sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestDuplicateEmailConflicts() {
	ctx := context.Background()
	s.Require().NoError(s.store.Save(ctx, s.build("dup@example.com")))
	s.ErrorIs(s.store.Save(ctx, s.build("dup@example.com")), sentinel.ErrConflict)
}

func (s *PostgresStoreSuite) TestEmailsAreUniqueAcrossPrimaryAndSecondary() {
	ctx := context.Background()
	owner := s.build("owner@example.com", "alt@example.com")
	s.Require().NoError(s.store.Save(ctx, owner))

	s.ErrorIs(s.store.Save(ctx, s.build("alt@example.com")), sentinel.ErrConflict,
		"primary email already used as a secondary")
	s.ErrorIs(s.store.Save(ctx, s.build("other@example.com", "OWNER@example.com")), sentinel.ErrConflict,
		"secondary email already used as a primary")

	owner.SecondaryEmails = []string{"alt@example.com", "alt2@example.com"}
	s.Require().NoError(s.store.Save(ctx, owner), "re-saving a user keeps their own addresses")

	s.Require().NoError(s.store.Seed(ctx, []*models.User{
		s.build("alt@example.com"),
		s.build("seeded@example.com", "owner@example.com"),
	}))
	found, err := s.store.FindByFuzzyEmail(ctx, "alt@example.com")
	s.Require().NoError(err)
	s.Equal(owner.ID, found.ID)
	found, err = s.store.FindByFuzzyEmail(ctx, "owner@example.com")
	s.Require().NoError(err)
	s.Equal(owner.ID, found.ID)
}

func (s *PostgresStoreSuite) TestRotateAuthToken() {
	ctx := context.Background()
	u := s.build("rotate@example.com")
	s.Require().NoError(s.store.Save(ctx, u))

	token, err := s.store.RotateAuthToken(ctx, u.ID)
	s.Require().NoError(err)

	found, err := s.store.FindByID(ctx, u.ID)
	s.Require().NoError(err)
	s.Equal(token, found.AuthToken)
	s.NotEqual(u.AuthToken, found.AuthToken)
}

func (s *PostgresStoreSuite) TestSeedIsIdempotent() {
	ctx := context.Background()
	seed := []*models.User{
		s.build("one@example.com", "one.alt@example.com"),
		s.build("two@example.com"),
	}
	s.Require().NoError(s.store.Seed(ctx, seed))

	again := []*models.User{s.build("one@example.com"), s.build("three@example.com")}
	s.Require().NoError(s.store.Seed(ctx, again))

	one, err := s.store.FindByFuzzyEmail(ctx, "one.alt@example.com")
	s.Require().NoError(err)
	s.Equal(seed[0].ID, one.ID, "first seed wins")

	_, err = s.store.FindByFuzzyEmail(ctx, "three@example.com")
	s.NoError(err)
}

func (s *PostgresStoreSuite) TestSeedStampsCreatedAtFromClock() {
	ctx := context.Background()
	seededAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := user.NewPostgres(s.postgres.DB, user.WithPostgresClock(func() time.Time { return seededAt }))

	u := s.build("stamped@example.com")
	s.Require().NoError(store.Seed(ctx, []*models.User{u}))

	found, err := store.FindByID(ctx, u.ID)
	s.Require().NoError(err)
	s.True(seededAt.Equal(found.CreatedAt), "created_at %s", found.CreatedAt)
}

func (s *PostgresStoreSuite) TestDeleteCascadesEmails() {
	ctx := context.Background()
	u := s.build("gone@example.com", "gone.alt@example.com")
	s.Require().NoError(s.store.Save(ctx, u))
	s.Require().NoError(s.store.Delete(ctx, u.ID))

	_, err := s.store.FindByFuzzyEmail(ctx, "gone.alt@example.com")
	s.ErrorIs(err, sentinel.ErrNotFound)
}
