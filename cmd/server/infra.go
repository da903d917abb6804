package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"bikeauth/internal/auth/models"
	"bikeauth/internal/auth/redirect"
	"bikeauth/internal/auth/service"
	sessionStore "bikeauth/internal/auth/store/session"
	userStore "bikeauth/internal/auth/store/user"
	"bikeauth/internal/platform/config"
	"bikeauth/internal/platform/postgres"
	"bikeauth/internal/platform/redis"
	"bikeauth/pkg/platform/audit"
	"bikeauth/pkg/platform/audit/sink/kafka"
)

// seeder is implemented by both user directories.
type seeder interface {
	Seed(ctx context.Context, users []*models.User) error
}

// infra holds the stores chosen by configuration and what must be closed on exit.
type infra struct {
	users     service.UserDirectory
	sessions  service.SessionStore
	auditSink audit.Sink

	db     *sql.DB
	redis  *redis.Client
	kafka  *kafka.Sink
	logger *slog.Logger
}

// openInfra picks Postgres or the in-memory directory, Redis or in-memory
// sessions, and adds a Kafka audit sink when brokers are configured.
func openInfra(ctx context.Context, cfg config.Config, log *slog.Logger) (*infra, error) {
	in := &infra{logger: log}
	ok := false
	defer func() {
		if !ok {
			in.Close()
		}
	}()

	db, err := postgres.Open(ctx, cfg.Postgres)
	if err != nil {
		return nil, err
	}
	var directory interface {
		service.UserDirectory
		seeder
	}
	if db != nil {
		in.db = db
		pg := userStore.NewPostgres(db)
		if err := pg.Migrate(ctx); err != nil {
			return nil, err
		}
		directory = pg
		log.Info("user directory: postgres")
	} else {
		directory = userStore.New()
		log.Info("user directory: in-memory")
	}
	if err := seedUsers(ctx, directory, cfg.SeedUsers); err != nil {
		return nil, err
	}
	in.users = directory

	rc, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}
	if rc != nil {
		in.redis = rc
		in.sessions = sessionStore.NewRedis(rc.Client)
		log.Info("session store: redis")
	} else {
		in.sessions = sessionStore.New()
		log.Info("session store: in-memory")
	}

	sinks := audit.MultiSink{audit.NewLogSink(log)}
	if len(cfg.Audit.KafkaBrokers) > 0 {
		ks, err := kafka.New(cfg.Audit.KafkaBrokers, cfg.Audit.KafkaTopic)
		if err != nil {
			return nil, err
		}
		in.kafka = ks
		topicCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err = ks.EnsureTopic(topicCtx, 1, 1)
		cancel()
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, ks)
		log.Info("audit sink: kafka", "topic", cfg.Audit.KafkaTopic)
	}
	in.auditSink = sinks

	ok = true
	return in, nil
}

func seedUsers(ctx context.Context, dst seeder, seeds []config.SeedUser) error {
	if len(seeds) == 0 {
		return nil
	}
	users := make([]*models.User, 0, len(seeds))
	now := time.Now()
	for _, s := range seeds {
		u, err := userStore.Build(userStore.NewUserParams{
			Email:        s.Email,
			Username:     s.Username,
			Password:     s.Password,
			Confirmed:    s.Confirmed,
			ContentAdmin: s.ContentAdmin,
		}, 0, now)
		if err != nil {
			return fmt.Errorf("seed user %q: %w", s.Email, err)
		}
		users = append(users, u)
	}
	return dst.Seed(ctx, users)
}

// Health reports the first failing backing service.
func (in *infra) Health(ctx context.Context) error {
	var errs []error
	if in.db != nil {
		if err := in.db.PingContext(ctx); err != nil {
			errs = append(errs, fmt.Errorf("postgres: %w", err))
		}
	}
	if in.redis != nil {
		if err := in.redis.Health(ctx); err != nil {
			errs = append(errs, fmt.Errorf("redis: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (in *infra) Close() {
	if in.kafka != nil {
		in.kafka.Close()
	}
	if in.redis != nil {
		if err := in.redis.Close(); err != nil {
			in.logger.Warn("failed to close redis", "error", err)
		}
	}
	if in.db != nil {
		if err := in.db.Close(); err != nil {
			in.logger.Warn("failed to close postgres", "error", err)
		}
	}
}

// buildResolver turns the configured paths and allow-list into the redirect resolver.
func buildResolver(cfg config.Config) (redirect.Resolver, error) {
	self, err := url.Parse(cfg.Server.BaseURL)
	if err != nil {
		return redirect.Resolver{}, fmt.Errorf("parse base url: %w", err)
	}
	patterns := append([]string{
		cfg.Redirect.UserHomePath,
		cfg.Redirect.AdminHomePath,
		cfg.Redirect.OAuthAuthorizePath,
	}, cfg.Redirect.InternalRoutes...)
	routes, err := redirect.NewRouteTable(patterns...)
	if err != nil {
		return redirect.Resolver{}, fmt.Errorf("build route table: %w", err)
	}
	allow, err := redirect.ParseAllowList(cfg.Redirect.AllowedExternal)
	if err != nil {
		return redirect.Resolver{}, fmt.Errorf("parse redirect allow-list: %w", err)
	}
	return redirect.Resolver{
		Destinations: redirect.Destinations{
			UserHome:    cfg.URL(cfg.Redirect.UserHomePath),
			AdminHome:   cfg.URL(cfg.Redirect.AdminHomePath),
			SSOEndpoint: cfg.URL(cfg.Redirect.SSOEndpointPath),
		},
		Checker: redirect.Checker{Self: self, Routes: routes, Allow: allow},
	}, nil
}
