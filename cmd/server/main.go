package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"bikeauth/internal/auth/handler"
	"bikeauth/internal/auth/identity"
	"bikeauth/internal/auth/service"
	"bikeauth/internal/platform/config"
	"bikeauth/internal/platform/httpserver"
	"bikeauth/internal/platform/logger"
	"bikeauth/internal/platform/metrics"
	"bikeauth/internal/sso/discourse"
	"bikeauth/pkg/platform/audit/publishers/security"
	"bikeauth/pkg/platform/httputil"
	"bikeauth/pkg/platform/middleware/metadata"
	"bikeauth/pkg/platform/middleware/requesttime"
)

const shutdownTimeout = 10 * time.Second

// main wires dependencies and owns the server lifecycle. Business logic lives
// in the internal packages.
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Server.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	infra, err := openInfra(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer infra.Close()

	publisher := security.New(infra.auditSink, security.WithLogger(log))
	defer func() {
		publisher.Close()
		if dropped := publisher.Dropped(); dropped > 0 {
			log.Warn("audit events dropped", "count", dropped)
		}
	}()

	resolver, err := buildResolver(cfg)
	if err != nil {
		return err
	}
	codec := identity.NewCodec(cfg.Auth.IdentitySigningKey, "bikeauth", identity.WithTTL(cfg.Auth.IdentityTTL))
	cookies := identity.Cookies{Secure: cfg.Auth.CookieSecure, MaxAge: cfg.Auth.IdentityTTL}

	authService, err := service.New(infra.users, infra.sessions, codec, service.Config{
		SessionTTL: cfg.Auth.SessionTTL,
		GoodbyeURL: cfg.URL(cfg.Redirect.GoodbyePath),
		Redirects:  resolver,
	},
		service.WithLogger(log),
		service.WithMetrics(m),
		service.WithAuditEmitter(publisher),
		service.WithTracer(otel.Tracer("bikeauth/auth")),
	)
	if err != nil {
		return err
	}
	loginHandler := handler.New(authService, cookies, log)

	var ssoHandler *discourse.Handler
	if cfg.Discourse.Secret != "" && cfg.Discourse.URL != "" {
		ssoHandler, err = discourse.New(authService, discourse.Config{
			Secret:   cfg.Discourse.Secret,
			ForumURL: cfg.Discourse.URL,
			LoginURL: cfg.URL("/login/new"),
		}, cookies,
			discourse.WithLogger(log),
			discourse.WithMetrics(m),
			discourse.WithAuditEmitter(publisher),
		)
		if err != nil {
			return err
		}
	} else {
		log.Info("discourse sso disabled")
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(metadata.ClientMetadata)
	r.Use(requesttime.Middleware)

	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := infra.Health(r.Context()); err != nil {
			log.WarnContext(r.Context(), "health check failed", "error", err)
			httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Group(func(r chi.Router) {
		r.Use(loginHandler.Identify)
		loginHandler.Register(r)
		if ssoHandler != nil {
			ssoHandler.Register(r, cfg.Redirect.SSOEndpointPath)
		}
	})

	srv := httpserver.New(cfg.Server.Addr, r)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting bikeauth", "addr", cfg.Server.Addr, "base_url", cfg.Server.BaseURL)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
