package identity

import (
	"context"
	"crypto/subtle"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"bikeauth/internal/auth/models"
	id "bikeauth/pkg/domain"
	dErrors "bikeauth/pkg/domain-errors"
	"bikeauth/pkg/platform/sentinel"
)

// Claims is the payload of the identity cookie: who the browser is and the
// auth token that was current when it logged in.
type Claims struct {
	UserID    string `json:"uid"`
	AuthToken string `json:"tok"`
	jwt.RegisteredClaims
}

// UserLookup is the part of the user directory needed to resolve a token.
type UserLookup interface {
	FindByID(ctx context.Context, userID id.UserID) (*models.User, error)
}

// Codec issues and verifies identity tokens.
type Codec struct {
	signingKey []byte
	issuer     string
	ttl        time.Duration
	now        func() time.Time
}

type Option func(*Codec)

// WithTTL bounds token validity. Zero means the token never expires.
func WithTTL(ttl time.Duration) Option {
	return func(c *Codec) { c.ttl = ttl }
}

// WithClock overrides time.Now for issuance and validation.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) { c.now = now }
}

func NewCodec(signingKey, issuer string, opts ...Option) *Codec {
	c := &Codec{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Issue mints a token binding the user's id to their current auth token.
func (c *Codec) Issue(user *models.User) (string, error) {
	if user == nil || user.ID.IsNil() || user.AuthToken == "" {
		return "", dErrors.New(dErrors.CodeInternal, "cannot issue identity token for incomplete user")
	}
	now := c.now()
	registered := jwt.RegisteredClaims{
		IssuedAt: jwt.NewNumericDate(now),
		Issuer:   c.issuer,
		Subject:  user.ID.String(),
	}
	if c.ttl > 0 {
		registered.ExpiresAt = jwt.NewNumericDate(now.Add(c.ttl))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID:           user.ID.String(),
		AuthToken:        user.AuthToken,
		RegisteredClaims: registered,
	})
	signed, err := token.SignedString(c.signingKey)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to sign identity token")
	}
	return signed, nil
}

// Parse verifies the signature and registered claims without touching the directory.
func (c *Codec) Parse(raw string) (*Claims, error) {
	if raw == "" {
		return nil, invalidToken(nil)
	}
	parsed, err := jwt.ParseWithClaims(raw, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return c.signingKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return nil, invalidToken(err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.AuthToken == "" {
		return nil, invalidToken(nil)
	}
	return claims, nil
}

// Resolve returns the user a token identifies. The stored auth token must
// still match, so rotating it invalidates every outstanding cookie.
func (c *Codec) Resolve(ctx context.Context, raw string, users UserLookup) (*models.User, error) {
	claims, err := c.Parse(raw)
	if err != nil {
		return nil, err
	}
	userID, err := id.ParseUserID(claims.UserID)
	if err != nil {
		return nil, invalidToken(err)
	}

	user, err := users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, invalidToken(err)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve identity")
	}
	if subtle.ConstantTimeCompare([]byte(user.AuthToken), []byte(claims.AuthToken)) != 1 {
		return nil, invalidToken(nil)
	}
	return user, nil
}

// IsInvalidToken reports whether err means the cookie should be discarded.
func IsInvalidToken(err error) bool {
	return errors.Is(err, models.ErrInvalidToken)
}

func invalidToken(cause error) error {
	if cause != nil {
		cause = errors.Join(models.ErrInvalidToken, cause)
	} else {
		cause = models.ErrInvalidToken
	}
	return dErrors.Wrap(cause, dErrors.CodeUnauthorized, "invalid identity token")
}
