package models

import (
	id "bikeauth/pkg/domain"
	dErrors "bikeauth/pkg/domain-errors"
)

// AuthState is the position of a browser in the login lifecycle.
type AuthState string

const (
	StateAnonymous      AuthState = "anonymous"
	StateAuthenticating AuthState = "authenticating"
	StateAuthenticated  AuthState = "authenticated"
	StateRejected       AuthState = "rejected"
	StateLoggedOut      AuthState = "logged_out"
)

// LoginRequest is the submitted login form.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Normalize canonicalizes the email; the password is left as typed.
func (r *LoginRequest) Normalize() {
	if r == nil {
		return
	}
	r.Email = NormalizeEmail(r.Email)
}

// Validate checks that both fields are present. A blank form is reported the
// same way as an unknown account.
func (r *LoginRequest) Validate() error {
	if r == nil || r.Email == "" || r.Password == "" {
		return dErrors.Wrap(ErrUserNotFound, dErrors.CodeUnauthorized, MsgInvalidCredentials)
	}
	return nil
}

// LoginResult is returned by every service operation that moves the state machine.
type LoginResult struct {
	State       AuthState
	SessionID   id.SessionID
	User        *User
	Token       string
	Destination string
	// Source names the hint that produced Destination.
	Source string
	// ReturnToRejected is set when a return_to hint failed the safety check.
	ReturnToRejected bool
}
