package discourse

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"bikeauth/internal/auth/device"
	"bikeauth/internal/auth/identity"
	"bikeauth/internal/auth/models"
	"bikeauth/internal/platform/metrics"
	id "bikeauth/pkg/domain"
	dErrors "bikeauth/pkg/domain-errors"
	"bikeauth/pkg/email"
	"bikeauth/pkg/platform/audit"
	"bikeauth/pkg/platform/httputil"
	"bikeauth/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Stasher

// Stasher keeps a handshake in the browser session until the next login.
type Stasher interface {
	StashDiscourseRedirect(ctx context.Context, sessionID id.SessionID, payload string) (*models.LoginResult, error)
}

// Config holds the forum settings.
type Config struct {
	Secret string
	// ForumURL is the Discourse base URL; return_sso_url must live under it.
	ForumURL string
	// LoginURL is where anonymous browsers are sent.
	LoginURL string
}

// Handler serves the SSO endpoint. It must run behind the identity middleware.
type Handler struct {
	stash   Stasher
	secret  string
	forum   *url.URL
	login   string
	cookies identity.Cookies

	logger  *slog.Logger
	metrics *metrics.Metrics
	auditor audit.Emitter
}

type Option func(*Handler)

func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Handler) { h.metrics = m }
}

func WithAuditEmitter(e audit.Emitter) Option {
	return func(h *Handler) { h.auditor = e }
}

func New(stash Stasher, cfg Config, cookies identity.Cookies, opts ...Option) (*Handler, error) {
	if stash == nil {
		return nil, errors.New("discourse sso requires a session stasher")
	}
	if cfg.Secret == "" {
		return nil, errors.New("discourse sso secret is required")
	}
	forum, err := url.Parse(cfg.ForumURL)
	if err != nil || forum.Scheme == "" || forum.Host == "" {
		return nil, fmt.Errorf("discourse url must be absolute: %q", cfg.ForumURL)
	}
	if cfg.LoginURL == "" {
		return nil, errors.New("discourse sso login url is required")
	}
	h := &Handler{
		stash:   stash,
		secret:  cfg.Secret,
		forum:   forum,
		login:   cfg.LoginURL,
		cookies: cookies,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Register mounts the SSO endpoint at path.
func (h *Handler) Register(r chi.Router, path string) {
	r.Get(path, h.handleSSO)
}

func (h *Handler) handleSSO(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	q := r.URL.Query()
	payload, sig := q.Get("sso"), q.Get("sig")
	if payload == "" || sig == "" {
		h.metrics.IncrementSSOHandshake(metrics.SSOBadRequest)
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "sso and sig are required"))
		return
	}

	req, err := ParseRequest(h.secret, payload, sig)
	if err != nil {
		if errors.Is(err, ErrSignatureMismatch) {
			h.metrics.IncrementSSOHandshake(metrics.SSOSignatureMismatch)
			h.emit(ctx, audit.EventSSOSigMismatch, "", "")
			h.logger.WarnContext(ctx, "discourse sso signature mismatch", "request_id", requestID)
			httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "invalid sso signature"))
			return
		}
		h.metrics.IncrementSSOHandshake(metrics.SSOBadRequest)
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid sso payload"))
		return
	}

	user := identity.UserFrom(ctx)
	if user == nil {
		h.stashAndLogin(w, r, url.Values{"sso": {payload}, "sig": {sig}}.Encode())
		return
	}

	target, ok := h.returnURL(req.ReturnURL)
	if !ok {
		h.metrics.IncrementSSOHandshake(metrics.SSOForeignReturnURL)
		h.emit(ctx, audit.EventUnsafeRedirect, user.ID.String(), req.ReturnURL)
		h.logger.WarnContext(ctx, "discourse return_sso_url outside the forum",
			"request_id", requestID,
			"user_id", user.ID.String(),
			"return_sso_url", req.ReturnURL,
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "return_sso_url is not the configured forum"))
		return
	}

	username := user.Username
	if username == "" {
		username = email.DeriveUsername(user.Email)
	}
	respPayload, respSig := Response{
		Nonce:      req.Nonce,
		Email:      user.Email,
		ExternalID: user.ID.String(),
		Username:   username,
		Admin:      user.IsContentAdmin,
	}.Encode(h.secret)
	values := target.Query()
	values.Set("sso", respPayload)
	values.Set("sig", respSig)
	target.RawQuery = values.Encode()

	h.metrics.IncrementSSOHandshake(metrics.SSOCompleted)
	h.emit(ctx, audit.EventSSOHandshake, user.ID.String(), h.forum.Host)
	h.logger.InfoContext(ctx, "discourse sso completed",
		"request_id", requestID,
		"user_id", user.ID.String(),
	)
	http.Redirect(w, r, target.String(), http.StatusFound)
}

func (h *Handler) stashAndLogin(w http.ResponseWriter, r *http.Request, handshake string) {
	ctx := r.Context()
	res, err := h.stash.StashDiscourseRedirect(ctx, identity.SessionFromRequest(r), handshake)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to stash discourse handshake",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	h.cookies.SetSession(w, res.SessionID)
	h.metrics.IncrementSSOHandshake(metrics.SSOStashed)
	http.Redirect(w, r, h.login, http.StatusFound)
}

// returnURL accepts only URLs on the forum's scheme and host, under its path.
func (h *Handler) returnURL(raw string) (*url.URL, bool) {
	u, err := url.Parse(raw)
	if err != nil || u.User != nil || u.Opaque != "" {
		return nil, false
	}
	if !strings.EqualFold(u.Scheme, h.forum.Scheme) || !strings.EqualFold(u.Host, h.forum.Host) {
		return nil, false
	}
	base := strings.TrimSuffix(h.forum.Path, "/")
	if base != "" && u.Path != base && !strings.HasPrefix(u.Path, base+"/") {
		return nil, false
	}
	return u, true
}

func (h *Handler) emit(ctx context.Context, event audit.AuditEvent, subject, reason string) {
	if h.auditor == nil {
		return
	}
	h.auditor.Emit(ctx, audit.SecurityEvent{
		Subject: subject,
		Action:  string(event),
		Reason:  reason,
		Device:  device.ParseUserAgent(requestcontext.UserAgent(ctx)),
	})
}
