package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"bikeauth/internal/auth/device"
	"bikeauth/internal/auth/identity"
	"bikeauth/internal/auth/models"
	"bikeauth/internal/auth/redirect"
	"bikeauth/internal/platform/metrics"
	id "bikeauth/pkg/domain"
	dErrors "bikeauth/pkg/domain-errors"
	"bikeauth/pkg/platform/audit"
	"bikeauth/pkg/platform/sentinel"
	"bikeauth/pkg/requestcontext"
)

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks UserDirectory,SessionStore,TokenCodec

// UserDirectory is the account store the login flow authenticates against.
// Lookups return sentinel.ErrNotFound for unknown users; Authenticate returns
// false for a wrong password and an error only for infrastructure faults.
type UserDirectory interface {
	FindByFuzzyEmail(ctx context.Context, email string) (*models.User, error)
	Authenticate(ctx context.Context, user *models.User, password string) (bool, error)
	FindByID(ctx context.Context, userID id.UserID) (*models.User, error)
	RotateAuthToken(ctx context.Context, userID id.UserID) (string, error)
}

// SessionStore persists per-browser session state.
type SessionStore interface {
	FindByID(ctx context.Context, sessionID id.SessionID) (*models.Session, error)
	Save(ctx context.Context, session *models.Session) error
	Delete(ctx context.Context, sessionID id.SessionID) error
}

// TokenCodec issues and resolves identity tokens.
type TokenCodec interface {
	Issue(user *models.User) (string, error)
	Resolve(ctx context.Context, raw string, users identity.UserLookup) (*models.User, error)
}

// Config holds the fixed inputs of the login flow.
type Config struct {
	SessionTTL time.Duration
	// GoodbyeURL is where every logout lands.
	GoodbyeURL string
	Redirects  redirect.Resolver
}

// Service runs the login state machine: it authenticates credentials, mints
// identity tokens, resolves post-login destinations and ends sessions.
type Service struct {
	users    UserDirectory
	sessions SessionStore
	tokens   TokenCodec
	cfg      Config

	logger  *slog.Logger
	metrics *metrics.Metrics
	auditor audit.Emitter
	tracer  trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithAuditEmitter(e audit.Emitter) Option {
	return func(s *Service) { s.auditor = e }
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

func New(users UserDirectory, sessions SessionStore, tokens TokenCodec, cfg Config, opts ...Option) (*Service, error) {
	if users == nil || sessions == nil || tokens == nil {
		return nil, fmt.Errorf("users, sessions and tokens are required")
	}
	if cfg.SessionTTL <= 0 {
		return nil, fmt.Errorf("session ttl must be positive")
	}
	if cfg.GoodbyeURL == "" || cfg.Redirects.Destinations.UserHome == "" || cfg.Redirects.Destinations.AdminHome == "" {
		return nil, fmt.Errorf("goodbye, user-home and admin-home destinations are required")
	}
	s := &Service{
		users:    users,
		sessions: sessions,
		tokens:   tokens,
		cfg:      cfg,
		logger:   slog.Default(),
		tracer:   otel.Tracer("bikeauth/internal/auth/service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// loadOrCreate returns the caller's session, or a fresh one (with a new id)
// when it is missing or expired. Caller-chosen ids are never adopted.
func (s *Service) loadOrCreate(ctx context.Context, sessionID id.SessionID) (*models.Session, error) {
	if !sessionID.IsNil() {
		sess, err := s.sessions.FindByID(ctx, sessionID)
		if err == nil {
			return sess, nil
		}
		if !errors.Is(err, sentinel.ErrNotFound) && !errors.Is(err, sentinel.ErrExpired) {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load session")
		}
	}
	return models.NewSession(requestcontext.Now(ctx), s.cfg.SessionTTL), nil
}

func (s *Service) emit(ctx context.Context, event audit.AuditEvent, subject, reason string) {
	if s.auditor == nil {
		return
	}
	s.auditor.Emit(ctx, audit.SecurityEvent{
		Subject: subject,
		Action:  string(event),
		Reason:  reason,
		Device:  device.ParseUserAgent(requestcontext.UserAgent(ctx)),
	})
}
