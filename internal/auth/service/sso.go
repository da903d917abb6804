package service

import (
	"context"

	"bikeauth/internal/auth/models"
	id "bikeauth/pkg/domain"
	dErrors "bikeauth/pkg/domain-errors"
)

// StashDiscourseRedirect keeps a forum SSO request in the session so the
// next successful login can complete it.
func (s *Service) StashDiscourseRedirect(ctx context.Context, sessionID id.SessionID, payload string) (*models.LoginResult, error) {
	ctx, span := s.tracer.Start(ctx, "auth.StashDiscourseRedirect")
	defer span.End()

	if payload == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "sso payload is required")
	}
	sess, err := s.loadOrCreate(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	sess.DiscourseRedirect = payload
	if err := s.sessions.Save(ctx, sess); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save session")
	}
	return &models.LoginResult{State: models.StateAnonymous, SessionID: sess.ID}, nil
}
