package service

import (
	"context"

	"bikeauth/internal/auth/identity"
	"bikeauth/internal/auth/models"
	"bikeauth/pkg/platform/audit"
)

// CurrentUser resolves the identity cookie. An absent cookie is anonymous
// (nil user, nil error). An invalid one returns an error for which
// identity.IsInvalidToken is true; the caller should clear the cookie.
func (s *Service) CurrentUser(ctx context.Context, raw string) (*models.User, error) {
	if raw == "" {
		return nil, nil
	}
	ctx, span := s.tracer.Start(ctx, "auth.CurrentUser")
	defer span.End()

	user, err := s.tokens.Resolve(ctx, raw, s.users)
	if err != nil {
		span.RecordError(err)
		if identity.IsInvalidToken(err) {
			s.metrics.IncrementInvalidToken()
			s.emit(ctx, audit.EventInvalidToken, "", "")
			s.logger.InfoContext(ctx, "invalid identity token presented")
		} else {
			s.logger.ErrorContext(ctx, "failed to resolve identity token", "error", err)
		}
		return nil, err
	}
	return user, nil
}
