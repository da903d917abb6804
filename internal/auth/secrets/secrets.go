package secrets

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	dErrors "bikeauth/pkg/domain-errors"
)

// GenerateAuthToken creates the per-user token embedded in identity cookies.
// Replacing it on a user logs out every browser holding an older cookie.
func GenerateAuthToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("could not generate auth token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// HashPassword creates a bcrypt hash of the password.
func HashPassword(password string, cost int) ([]byte, error) {
	if password == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "password cannot be empty")
	}
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return nil, dErrors.New(dErrors.CodeInvalidInput, "password is too long")
		}
		return nil, fmt.Errorf("could not hash password: %w", err)
	}
	return hashed, nil
}

// VerifyPassword reports whether password matches hash. A mismatch is false
// with no error; an error means the hash itself is unusable.
func VerifyPassword(password string, hash []byte) (bool, error) {
	err := bcrypt.CompareHashAndPassword(hash, []byte(password))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, fmt.Errorf("could not verify password: %w", err)
	}
}
