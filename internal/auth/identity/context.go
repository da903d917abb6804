package identity

import (
	"context"

	"bikeauth/internal/auth/models"
)

type currentUserKey struct{}

// WithUser attaches the resolved user to ctx.
func WithUser(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, currentUserKey{}, user)
}

// UserFrom returns the user resolved from the identity cookie, or nil for an
// anonymous request.
func UserFrom(ctx context.Context) *models.User {
	user, _ := ctx.Value(currentUserKey{}).(*models.User)
	return user
}
