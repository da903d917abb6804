package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"bikeauth/internal/auth/models"
	"bikeauth/internal/auth/redirect"
	"bikeauth/internal/platform/metrics"
	id "bikeauth/pkg/domain"
	dErrors "bikeauth/pkg/domain-errors"
	"bikeauth/pkg/platform/audit"
	"bikeauth/pkg/platform/sentinel"
)

// Begin moves the browser to Authenticating. A non-empty returnTo is stored
// as given; it is only validated when a login consumes it.
func (s *Service) Begin(ctx context.Context, sessionID id.SessionID, returnTo string) (*models.LoginResult, error) {
	ctx, span := s.tracer.Start(ctx, "auth.Begin")
	defer span.End()

	sess, err := s.loadOrCreate(ctx, sessionID)
	if err != nil {
		span.SetStatus(codes.Error, "load session")
		return nil, err
	}
	if returnTo != "" {
		sess.ReturnTo = returnTo
	}
	if err := s.sessions.Save(ctx, sess); err != nil {
		span.SetStatus(codes.Error, "save session")
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save session")
	}
	span.SetAttributes(attribute.Bool("auth.return_to", sess.ReturnTo != ""))

	return &models.LoginResult{State: models.StateAuthenticating, SessionID: sess.ID}, nil
}

// Authenticate checks the submitted credentials. On success the browser is
// Authenticated: a token is issued, the destination resolved and both redirect
// hints consumed. On any failure it is Rejected: no token, hints left in
// place, and an error whose message is safe to show.
//
// Unknown accounts, wrong passwords and directory faults all produce the same
// error so responses do not reveal which accounts exist.
func (s *Service) Authenticate(ctx context.Context, sessionID id.SessionID, req models.LoginRequest) (*models.LoginResult, error) {
	ctx, span := s.tracer.Start(ctx, "auth.Authenticate")
	defer span.End()

	sess, err := s.loadOrCreate(ctx, sessionID)
	if err != nil {
		span.SetStatus(codes.Error, "load session")
		return nil, err
	}

	req.Normalize()
	if err := req.Validate(); err != nil {
		return s.reject(ctx, sess, req.Email, metrics.OutcomeNotFound, err)
	}

	start := time.Now()
	user, err := s.users.FindByFuzzyEmail(ctx, req.Email)
	s.metrics.ObserveDirectoryLookup(start)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return s.reject(ctx, sess, req.Email, metrics.OutcomeNotFound,
				dErrors.Wrap(models.ErrUserNotFound, dErrors.CodeUnauthorized, models.MsgInvalidCredentials))
		}
		span.RecordError(err)
		s.logger.ErrorContext(ctx, "user directory lookup failed", "error", err)
		return s.reject(ctx, sess, req.Email, metrics.OutcomeError,
			dErrors.Wrap(errors.Join(models.ErrUserNotFound, err), dErrors.CodeUnauthorized, models.MsgInvalidCredentials))
	}

	if !user.Confirmed {
		return s.reject(ctx, sess, user.ID.String(), metrics.OutcomeUnconfirmed,
			dErrors.Wrap(models.ErrUnconfirmed, dErrors.CodeForbidden, models.MsgUnconfirmed))
	}

	ok, err := s.users.Authenticate(ctx, user, req.Password)
	if err != nil {
		span.RecordError(err)
		s.logger.ErrorContext(ctx, "credential check failed", "error", err, "user_id", user.ID.String())
		return s.reject(ctx, sess, user.ID.String(), metrics.OutcomeError,
			dErrors.Wrap(errors.Join(models.ErrUserNotFound, err), dErrors.CodeUnauthorized, models.MsgInvalidCredentials))
	}
	if !ok {
		return s.reject(ctx, sess, user.ID.String(), metrics.OutcomeMismatch,
			dErrors.Wrap(models.ErrCredentialMismatch, dErrors.CodeUnauthorized, models.MsgInvalidCredentials))
	}

	token, err := s.tokens.Issue(user)
	if err != nil {
		span.RecordError(err)
		s.logger.ErrorContext(ctx, "failed to issue identity token", "error", err, "user_id", user.ID.String())
		return s.reject(ctx, sess, user.ID.String(), metrics.OutcomeError, err)
	}

	decision := s.cfg.Redirects.Resolve(redirect.Hints{
		ReturnTo:          sess.ReturnTo,
		DiscourseRedirect: sess.DiscourseRedirect,
	}, user.IsContentAdmin)

	if decision.ReturnToRejected {
		unsafe := fmt.Errorf("%w: %q", models.ErrUnsafeRedirectTarget, sess.ReturnTo)
		span.RecordError(unsafe)
		s.logger.WarnContext(ctx, "return_to rejected by redirect safety check",
			"user_id", user.ID.String(),
			"error", unsafe,
		)
		s.emit(ctx, audit.EventUnsafeRedirect, user.ID.String(), sess.ReturnTo)
	}

	sess.ClearHints()
	sess.UserID = user.ID
	if err := s.sessions.Save(ctx, sess); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "save session")
		return &models.LoginResult{State: models.StateRejected, SessionID: sess.ID},
			dErrors.Wrap(err, dErrors.CodeInternal, "failed to save session")
	}

	s.metrics.IncrementLoginAttempt(metrics.OutcomeSuccess)
	s.metrics.IncrementRedirectDecision(string(decision.Source), decision.ReturnToRejected)
	s.emit(ctx, audit.EventLoginSucceeded, user.ID.String(), string(decision.Source))
	s.logger.InfoContext(ctx, "login succeeded",
		"user_id", user.ID.String(),
		"redirect_source", string(decision.Source),
	)
	span.SetAttributes(
		attribute.String("auth.user_id", user.ID.String()),
		attribute.String("auth.redirect_source", string(decision.Source)),
	)

	return &models.LoginResult{
		State:            models.StateAuthenticated,
		SessionID:        sess.ID,
		User:             user,
		Token:            token,
		Destination:      decision.URL,
		Source:           string(decision.Source),
		ReturnToRejected: decision.ReturnToRejected,
	}, nil
}

// reject records a failed attempt. The session keeps its hints but loses any
// user binding.
func (s *Service) reject(ctx context.Context, sess *models.Session, subject, outcome string, cause error) (*models.LoginResult, error) {
	sess.UserID = id.UserID{}
	if err := s.sessions.Save(ctx, sess); err != nil {
		s.logger.ErrorContext(ctx, "failed to save session after rejected login", "error", err)
	}

	s.metrics.IncrementLoginAttempt(outcome)
	s.emit(ctx, audit.EventAuthFailed, subject, outcome)
	s.logger.InfoContext(ctx, "login rejected", "outcome", outcome)

	return &models.LoginResult{State: models.StateRejected, SessionID: sess.ID}, cause
}
