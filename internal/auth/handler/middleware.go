package handler

import (
	"net/http"

	"bikeauth/internal/auth/identity"
	"bikeauth/pkg/requestcontext"
)

// Identify resolves the identity cookie and attaches the user to the request
// context. Requests without a valid cookie continue anonymously; an invalid
// cookie is cleared.
func (h *Handler) Identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		raw := identity.FromRequest(r)
		if raw == "" {
			next.ServeHTTP(w, r)
			return
		}

		user, err := h.auth.CurrentUser(ctx, raw)
		switch {
		case err != nil && identity.IsInvalidToken(err):
			h.cookies.Revoke(w)
		case err != nil:
			h.logger.ErrorContext(ctx, "failed to resolve current user",
				"request_id", requestcontext.RequestID(ctx),
				"error", err,
			)
		case user != nil:
			ctx = identity.WithUser(ctx, user)
			ctx = requestcontext.WithUserID(ctx, user.ID)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
