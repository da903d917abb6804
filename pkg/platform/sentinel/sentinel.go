package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (optionally
// wrapped) so the auth service can translate them into domain errors.
//
//   - ErrNotFound: user or session does not exist in the store
//   - ErrExpired: session outlived its TTL
//   - ErrUnavailable: backing store temporarily unreachable
//   - ErrInvalidInput: record rejected before reaching the store
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrExpired      = errors.New("expired")
	ErrUnavailable  = errors.New("unavailable")
	ErrInvalidInput = errors.New("invalid input")
)
