package user

import (
	"context"
	"fmt"
	"time"

	"bikeauth/internal/auth/models"
	"bikeauth/internal/auth/secrets"
	id "bikeauth/pkg/domain"
	dErrors "bikeauth/pkg/domain-errors"
)

// NewUserParams describes a directory entry to create.
type NewUserParams struct {
	Email           string
	Username        string
	Password        string
	Confirmed       bool
	ContentAdmin    bool
	SecondaryEmails []string
}

// Build hashes the password, mints an auth token and normalizes emails.
// cost 0 uses the bcrypt default.
func Build(p NewUserParams, cost int, now time.Time) (*models.User, error) {
	email := models.NormalizeEmail(p.Email)
	if email == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "email is required")
	}
	hash, err := secrets.HashPassword(p.Password, cost)
	if err != nil {
		return nil, err
	}
	token, err := secrets.GenerateAuthToken()
	if err != nil {
		return nil, err
	}
	var secondary []string
	for _, e := range p.SecondaryEmails {
		if e = models.NormalizeEmail(e); e != "" && e != email {
			secondary = append(secondary, e)
		}
	}
	return &models.User{
		ID:              id.NewUserID(),
		Email:           email,
		Username:        p.Username,
		PasswordHash:    hash,
		Confirmed:       p.Confirmed,
		IsContentAdmin:  p.ContentAdmin,
		AuthToken:       token,
		SecondaryEmails: secondary,
		CreatedAt:       now,
	}, nil
}

// checkPassword is the credential check shared by every directory adapter.
// Users without a password hash can never authenticate.
func checkPassword(_ context.Context, user *models.User, password string) (bool, error) {
	if user == nil || len(user.PasswordHash) == 0 {
		return false, nil
	}
	ok, err := secrets.VerifyPassword(password, user.PasswordHash)
	if err != nil {
		return false, fmt.Errorf("check password for user %s: %w", user.ID, err)
	}
	return ok, nil
}

func cloneUser(u *models.User) *models.User {
	c := *u
	c.PasswordHash = append([]byte(nil), u.PasswordHash...)
	c.SecondaryEmails = append([]string(nil), u.SecondaryEmails...)
	return &c
}
