package models

import "errors"

var (
	ErrUserNotFound         = errors.New("user not found")
	ErrUnconfirmed          = errors.New("user email not confirmed")
	ErrCredentialMismatch   = errors.New("credential mismatch")
	ErrUnsafeRedirectTarget = errors.New("unsafe redirect target")
	ErrInvalidToken         = errors.New("invalid identity token")
)

// User-visible messages. Not-found and mismatch share one message so the
// response does not reveal which accounts exist.
const (
	MsgInvalidCredentials = "Invalid email or password"
	MsgUnconfirmed        = "You must confirm your email address before you can log in. Check your inbox for the confirmation link."
)
