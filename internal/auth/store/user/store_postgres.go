package user

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"bikeauth/internal/auth/models"
	"bikeauth/internal/auth/secrets"
	id "bikeauth/pkg/domain"
	"bikeauth/pkg/platform/sentinel"
	"bikeauth/pkg/platform/tx"
)

//go:embed schema.sql
var schema string

const uniqueViolation = "23505"

// PostgresStore is the directory backed by the users and user_emails tables.
type PostgresStore struct {
	db    *sql.DB
	clock func() time.Time
}

type PostgresOption func(*PostgresStore)

// WithPostgresClock sets the clock used for created_at on seeded users.
func WithPostgresClock(clock func() time.Time) PostgresOption {
	return func(s *PostgresStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

func NewPostgres(db *sql.DB, opts ...PostgresOption) *PostgresStore {
	s := &PostgresStore{db: db, clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Migrate creates the directory tables if they are missing.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate user directory: %w", err)
	}
	return nil
}

const selectUser = `
	SELECT u.id, u.email, u.username, u.password_hash, u.confirmed, u.is_content_admin,
	       u.auth_token, u.created_at,
	       ARRAY(SELECT e.email FROM user_emails e WHERE e.user_id = u.id ORDER BY e.email)
	FROM users u
`

func scanUser(row *sql.Row) (*models.User, error) {
	var (
		u         models.User
		secondary pq.StringArray
	)
	err := row.Scan((*uuid.UUID)(&u.ID), &u.Email, &u.Username, &u.PasswordHash, &u.Confirmed,
		&u.IsContentAdmin, &u.AuthToken, &u.CreatedAt, &secondary)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if len(secondary) > 0 {
		u.SecondaryEmails = []string(secondary)
	}
	return &u, nil
}

func (s *PostgresStore) FindByID(ctx context.Context, userID id.UserID) (*models.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, selectUser+` WHERE u.id = $1`, uuid.UUID(userID)))
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return nil, fmt.Errorf("find user by id: %w", err)
	}
	return u, err
}

// FindByFuzzyEmail matches the normalized email against primary and secondary addresses.
func (s *PostgresStore) FindByFuzzyEmail(ctx context.Context, email string) (*models.User, error) {
	email = models.NormalizeEmail(email)
	if email == "" {
		return nil, sentinel.ErrNotFound
	}
	query := selectUser + `
		WHERE u.email = $1
		   OR u.id = (SELECT user_id FROM user_emails WHERE email = $1)
		ORDER BY (u.email = $1) DESC
		LIMIT 1
	`
	u, err := scanUser(s.db.QueryRowContext(ctx, query, email))
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return nil, fmt.Errorf("find user by email: %w", err)
	}
	return u, err
}

func (s *PostgresStore) Authenticate(ctx context.Context, user *models.User, password string) (bool, error) {
	return checkPassword(ctx, user, password)
}

// Save upserts the user and replaces their secondary emails in one transaction.
func (s *PostgresStore) Save(ctx context.Context, user *models.User) error {
	if user == nil || user.ID.IsNil() || models.NormalizeEmail(user.Email) == "" {
		return sentinel.ErrInvalidInput
	}
	createdAt := user.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.clock()
	}

	primary := models.NormalizeEmail(user.Email)
	secondary := normalizeAll(user.SecondaryEmails)
	addresses := append([]string{primary}, secondary...)

	return tx.Run(ctx, s.db, func(ctx context.Context, dbtx *sql.Tx) error {
		if err := claimEmails(ctx, dbtx, user.ID, addresses); err != nil {
			return err
		}

		_, err := dbtx.ExecContext(ctx, `
			INSERT INTO users (id, email, username, password_hash, confirmed, is_content_admin, auth_token, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (id) DO UPDATE SET
				email = EXCLUDED.email,
				username = EXCLUDED.username,
				password_hash = EXCLUDED.password_hash,
				confirmed = EXCLUDED.confirmed,
				is_content_admin = EXCLUDED.is_content_admin,
				auth_token = EXCLUDED.auth_token
		`, uuid.UUID(user.ID), primary, user.Username, user.PasswordHash,
			user.Confirmed, user.IsContentAdmin, user.AuthToken, createdAt)
		if err != nil {
			return translateWriteErr("save user", err)
		}

		if _, err := dbtx.ExecContext(ctx, `DELETE FROM user_emails WHERE user_id = $1`, uuid.UUID(user.ID)); err != nil {
			return fmt.Errorf("clear secondary emails: %w", err)
		}
		if len(secondary) > 0 {
			_, err = dbtx.ExecContext(ctx, `
				INSERT INTO user_emails (email, user_id)
				SELECT unnest($1::text[]), $2
			`, pq.Array(secondary), uuid.UUID(user.ID))
			if err != nil {
				return translateWriteErr("save secondary emails", err)
			}
		}
		return nil
	})
}

// Seed inserts users in one batch using unnest. Emails that already exist
// are skipped so seeding is safe on every start.
func (s *PostgresStore) Seed(ctx context.Context, users []*models.User) error {
	if len(users) == 0 {
		return nil
	}
	n := len(users)
	ids := make([]uuid.UUID, 0, n)
	emails := make([]string, 0, n)
	usernames := make([]string, 0, n)
	hashes := make([][]byte, 0, n)
	confirmed := make([]bool, 0, n)
	admins := make([]bool, 0, n)
	tokens := make([]string, 0, n)
	var secEmails []string
	var secOwners []uuid.UUID
	for _, u := range users {
		ids = append(ids, uuid.UUID(u.ID))
		emails = append(emails, models.NormalizeEmail(u.Email))
		usernames = append(usernames, u.Username)
		hashes = append(hashes, u.PasswordHash)
		confirmed = append(confirmed, u.Confirmed)
		admins = append(admins, u.IsContentAdmin)
		tokens = append(tokens, u.AuthToken)
		for _, e := range normalizeAll(u.SecondaryEmails) {
			secEmails = append(secEmails, e)
			secOwners = append(secOwners, uuid.UUID(u.ID))
		}
	}

	return tx.Run(ctx, s.db, func(ctx context.Context, dbtx *sql.Tx) error {
		_, err := dbtx.ExecContext(ctx, `
			INSERT INTO users (id, email, username, password_hash, confirmed, is_content_admin, auth_token, created_at)
			SELECT t.id, t.email, t.username, t.password_hash, t.confirmed, t.is_content_admin, t.auth_token, $8
			FROM unnest($1::uuid[], $2::text[], $3::text[], $4::bytea[], $5::bool[], $6::bool[], $7::text[])
				AS t(id, email, username, password_hash, confirmed, is_content_admin, auth_token)
			WHERE NOT EXISTS (SELECT 1 FROM user_emails e WHERE e.email = t.email)
			ON CONFLICT (email) DO NOTHING
		`, pq.Array(ids), pq.Array(emails), pq.Array(usernames), pq.ByteaArray(hashes),
			pq.BoolArray(confirmed), pq.BoolArray(admins), pq.Array(tokens), s.clock())
		if err != nil {
			return fmt.Errorf("seed users: %w", err)
		}

		if len(secEmails) > 0 {
			_, err = dbtx.ExecContext(ctx, `
				INSERT INTO user_emails (email, user_id)
				SELECT t.email, t.user_id
				FROM unnest($1::text[], $2::uuid[]) AS t(email, user_id)
				WHERE EXISTS (SELECT 1 FROM users WHERE id = t.user_id)
				  AND NOT EXISTS (SELECT 1 FROM users WHERE email = t.email)
				ON CONFLICT (email) DO NOTHING
			`, pq.Array(secEmails), pq.Array(secOwners))
			if err != nil {
				return fmt.Errorf("seed secondary emails: %w", err)
			}
		}
		return nil
	})
}

// RotateAuthToken replaces the user's auth token, invalidating outstanding identity cookies.
func (s *PostgresStore) RotateAuthToken(ctx context.Context, userID id.UserID) (string, error) {
	token, err := secrets.GenerateAuthToken()
	if err != nil {
		return "", err
	}
	res, err := s.db.ExecContext(ctx, `UPDATE users SET auth_token = $2 WHERE id = $1`, uuid.UUID(userID), token)
	if err != nil {
		return "", fmt.Errorf("rotate auth token: %w", err)
	}
	if rows, err := res.RowsAffected(); err == nil && rows == 0 {
		return "", sentinel.ErrNotFound
	}
	return token, nil
}

func (s *PostgresStore) Delete(ctx context.Context, userID id.UserID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, uuid.UUID(userID))
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if rows, err := res.RowsAffected(); err == nil && rows == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

// claimEmails serializes writers on the given addresses and fails with
// ErrConflict when any of them already belongs to another user, as either a
// primary or a secondary email.
func claimEmails(ctx context.Context, dbtx *sql.Tx, userID id.UserID, addresses []string) error {
	if _, err := dbtx.ExecContext(ctx, `
		SELECT pg_advisory_xact_lock(hashtext(a))
		FROM (SELECT a FROM unnest($1::text[]) AS a ORDER BY a) ordered
	`, pq.Array(addresses)); err != nil {
		return fmt.Errorf("lock emails: %w", err)
	}

	var taken bool
	err := dbtx.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM users WHERE email = ANY($1) AND id <> $2)
		    OR EXISTS (SELECT 1 FROM user_emails WHERE email = ANY($1) AND user_id <> $2)
	`, pq.Array(addresses), uuid.UUID(userID)).Scan(&taken)
	if err != nil {
		return fmt.Errorf("check emails: %w", err)
	}
	if taken {
		return fmt.Errorf("save user: %w", sentinel.ErrConflict)
	}
	return nil
}

func translateWriteErr(op string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return fmt.Errorf("%s: %w", op, sentinel.ErrConflict)
	}
	return fmt.Errorf("%s: %w", op, err)
}
