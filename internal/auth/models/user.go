package models

import (
	"strings"
	"time"

	id "bikeauth/pkg/domain"
)

// User is a directory entry as seen by the authentication core.
type User struct {
	ID              id.UserID `json:"id"`
	Email           string    `json:"email"`
	Username        string    `json:"username,omitempty"`
	PasswordHash    []byte    `json:"-"`
	Confirmed       bool      `json:"confirmed"`
	IsContentAdmin  bool      `json:"is_content_admin"`
	AuthToken       string    `json:"-"`
	// SecondaryEmails holds confirmed alternate addresses only. An address
	// becomes a secondary email once confirmed; pending ones live elsewhere.
	SecondaryEmails []string  `json:"secondary_emails,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// NormalizeEmail is the canonical form used for every directory lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
