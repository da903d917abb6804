package service

import (
	"context"
	"errors"

	"bikeauth/internal/auth/models"
	id "bikeauth/pkg/domain"
	dErrors "bikeauth/pkg/domain-errors"
	"bikeauth/pkg/platform/audit"
	"bikeauth/pkg/platform/sentinel"
)

// End logs the browser out. It succeeds from any state: the session is
// deleted if present and the caller is sent to the goodbye page.
func (s *Service) End(ctx context.Context, sessionID id.SessionID) (*models.LoginResult, error) {
	ctx, span := s.tracer.Start(ctx, "auth.End")
	defer span.End()

	subject := ""
	if !sessionID.IsNil() {
		if sess, err := s.sessions.FindByID(ctx, sessionID); err == nil && !sess.UserID.IsNil() {
			subject = sess.UserID.String()
		}
		if err := s.sessions.Delete(ctx, sessionID); err != nil {
			span.RecordError(err)
			s.logger.ErrorContext(ctx, "failed to delete session on logout", "error", err, "session_id", sessionID.String())
		}
	}

	s.metrics.IncrementLogout()
	s.emit(ctx, audit.EventLoggedOut, subject, "")

	return &models.LoginResult{State: models.StateLoggedOut, Destination: s.cfg.GoodbyeURL}, nil
}

// SignOutEverywhere rotates the user's auth token so every identity cookie
// issued before now stops resolving.
func (s *Service) SignOutEverywhere(ctx context.Context, userID id.UserID) error {
	ctx, span := s.tracer.Start(ctx, "auth.SignOutEverywhere")
	defer span.End()

	if userID.IsNil() {
		return dErrors.New(dErrors.CodeUnauthorized, "user ID required")
	}
	if _, err := s.users.RotateAuthToken(ctx, userID); err != nil {
		span.RecordError(err)
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "user not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to rotate auth token")
	}

	s.emit(ctx, audit.EventAuthTokenRotate, userID.String(), "")
	s.logger.InfoContext(ctx, "auth token rotated", "user_id", userID.String())
	return nil
}
