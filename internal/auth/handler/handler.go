// Package handler serves the browser login flow: the login form, the form
// post, logout and the current-user endpoints.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"bikeauth/internal/auth/identity"
	"bikeauth/internal/auth/models"
	id "bikeauth/pkg/domain"
	dErrors "bikeauth/pkg/domain-errors"
	"bikeauth/pkg/platform/httputil"
	"bikeauth/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

// Service is the login state machine as seen from HTTP.
type Service interface {
	Begin(ctx context.Context, sessionID id.SessionID, returnTo string) (*models.LoginResult, error)
	Authenticate(ctx context.Context, sessionID id.SessionID, req models.LoginRequest) (*models.LoginResult, error)
	End(ctx context.Context, sessionID id.SessionID) (*models.LoginResult, error)
	CurrentUser(ctx context.Context, raw string) (*models.User, error)
	SignOutEverywhere(ctx context.Context, userID id.UserID) error
}

// Handler handles the login routes.
type Handler struct {
	auth    Service
	cookies identity.Cookies
	logger  *slog.Logger
	pages   *pages
}

// New creates a new login Handler.
func New(auth Service, cookies identity.Cookies, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		auth:    auth,
		cookies: cookies,
		logger:  logger,
		pages:   loadPages(),
	}
}

// Register mounts the login routes. Identify must run in front of them.
func (h *Handler) Register(r chi.Router) {
	r.Get("/login/new", h.handleLoginForm)
	r.Post("/login", h.handleLogin)
	r.Get("/logout", h.handleLogout)
	r.Get("/goodbye", h.handleGoodbye)
	r.Get("/me", h.handleMe)
	r.Post("/logout/everywhere", h.handleSignOutEverywhere)
}

func (h *Handler) handleLoginForm(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	res, err := h.auth.Begin(ctx, identity.SessionFromRequest(r), r.URL.Query().Get("return_to"))
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to begin login",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.cookies.SetSession(w, res.SessionID)
	h.render(ctx, w, http.StatusOK, pageLogin, loginPage{})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := r.ParseForm(); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid form body"))
		return
	}
	req := models.LoginRequest{
		Email:    r.PostForm.Get("email"),
		Password: r.PostForm.Get("password"),
	}

	res, err := h.auth.Authenticate(ctx, identity.SessionFromRequest(r), req)
	if res != nil && !res.SessionID.IsNil() {
		h.cookies.SetSession(w, res.SessionID)
	}
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeUnauthorized) || dErrors.HasCode(err, dErrors.CodeForbidden) {
			de, _ := dErrors.As(err)
			h.cookies.Revoke(w)
			h.render(ctx, w, http.StatusOK, pageLogin, loginPage{Flash: de.Message})
			return
		}
		h.logger.ErrorContext(ctx, "login failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.cookies.Set(w, res.Token)
	http.Redirect(w, r, res.Destination, http.StatusSeeOther)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	res, err := h.auth.End(ctx, identity.SessionFromRequest(r))
	h.cookies.Revoke(w)
	h.cookies.RevokeSession(w)
	if err != nil {
		h.logger.ErrorContext(ctx, "logout failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	http.Redirect(w, r, res.Destination, http.StatusFound)
}

func (h *Handler) handleGoodbye(w http.ResponseWriter, r *http.Request) {
	h.render(r.Context(), w, http.StatusOK, pageGoodbye, nil)
}

type meResponse struct {
	ID             string `json:"id"`
	Email          string `json:"email"`
	Username       string `json:"username,omitempty"`
	IsContentAdmin bool   `json:"is_content_admin"`
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	user := identity.UserFrom(r.Context())
	if user == nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, meResponse{
		ID:             user.ID.String(),
		Email:          user.Email,
		Username:       user.Username,
		IsContentAdmin: user.IsContentAdmin,
	})
}

func (h *Handler) handleSignOutEverywhere(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := identity.UserFrom(ctx)
	if user == nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}
	if err := h.auth.SignOutEverywhere(ctx, user.ID); err != nil {
		h.logger.ErrorContext(ctx, "failed to sign out everywhere",
			"request_id", requestcontext.RequestID(ctx),
			"user_id", user.ID.String(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	h.cookies.Revoke(w)
	w.WriteHeader(http.StatusNoContent)
}
