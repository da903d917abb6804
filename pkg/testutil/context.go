package testutil

import (
	"net/http"

	"bikeauth/internal/auth/identity"
	"bikeauth/internal/auth/models"
	"bikeauth/pkg/requestcontext"
)

// WithUser marks the request as authenticated the way the current-user
// middleware would.
func WithUser(req *http.Request, user *models.User) *http.Request {
	ctx := identity.WithUser(req.Context(), user)
	ctx = requestcontext.WithUserID(ctx, user.ID)
	return req.WithContext(ctx)
}
