package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	pstrings "bikeauth/pkg/platform/strings"
)

// Config is the full service configuration. Defaults come from Default, an
// optional YAML file (BIKEAUTH_CONFIG) is layered on top, and environment
// variables win over both.
type Config struct {
	Server    Server         `yaml:"server"`
	Auth      Auth           `yaml:"auth"`
	Redirect  Redirect       `yaml:"redirect"`
	Discourse Discourse      `yaml:"discourse"`
	Redis     RedisConfig    `yaml:"redis"`
	Postgres  PostgresConfig `yaml:"postgres"`
	Audit     Audit          `yaml:"audit"`
	SeedUsers []SeedUser     `yaml:"seed_users"`
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr     string `yaml:"addr"`
	BaseURL  string `yaml:"base_url"`
	LogLevel string `yaml:"log_level"`
}

// Auth configures the identity cookie and browser sessions.
type Auth struct {
	IdentitySigningKey string        `yaml:"identity_signing_key"`
	CookieSecure       bool          `yaml:"cookie_secure"`
	IdentityTTL        time.Duration `yaml:"identity_ttl"`
	SessionTTL         time.Duration `yaml:"session_ttl"`
}

// Redirect holds the fixed post-login destinations and the open-redirect allow-list.
// Paths are relative to Server.BaseURL.
type Redirect struct {
	UserHomePath       string   `yaml:"user_home_path"`
	AdminHomePath      string   `yaml:"admin_home_path"`
	GoodbyePath        string   `yaml:"goodbye_path"`
	SSOEndpointPath    string   `yaml:"sso_endpoint_path"`
	OAuthAuthorizePath string   `yaml:"oauth_authorize_path"`
	InternalRoutes     []string `yaml:"internal_routes"`
	// AllowedExternal entries are "host/path-prefix", e.g. "facebook.com/bikeindex".
	AllowedExternal []string `yaml:"allowed_external"`
}

// Discourse configures the forum single-sign-on handshake.
type Discourse struct {
	Secret string `yaml:"secret"`
	URL    string `yaml:"url"`
}

// RedisConfig configures the session store. Empty URL selects the in-memory store.
type RedisConfig struct {
	URL          string        `yaml:"url"`
	PoolSize     int           `yaml:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// PostgresConfig configures the user directory. Empty DSN selects the in-memory directory.
type PostgresConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// Audit configures where security events go. Without brokers events are only logged.
type Audit struct {
	KafkaBrokers []string `yaml:"kafka_brokers"`
	KafkaTopic   string   `yaml:"kafka_topic"`
}

// SeedUser is a directory entry created at startup for local development.
type SeedUser struct {
	Email        string `yaml:"email"`
	Username     string `yaml:"username"`
	Password     string `yaml:"password"`
	Confirmed    bool   `yaml:"confirmed"`
	ContentAdmin bool   `yaml:"content_admin"`
}

// Default returns the development configuration.
func Default() Config {
	return Config{
		Server: Server{
			Addr:     ":8080",
			BaseURL:  "http://localhost:8080",
			LogLevel: "info",
		},
		Auth: Auth{
			// Use a default for development - should be overridden in production
			IdentitySigningKey: "dev-secret-key-change-in-production",
			IdentityTTL:        20 * 365 * 24 * time.Hour,
			SessionTTL:         24 * time.Hour,
		},
		Redirect: Redirect{
			UserHomePath:       "/user_home",
			AdminHomePath:      "/admin/news",
			GoodbyePath:        "/goodbye",
			SSOEndpointPath:    "/discourse_authentication",
			OAuthAuthorizePath: "/oauth/authorize",
			InternalRoutes: []string{
				"/bikes/{bikeID}",
				"/bikes/{bikeID}/edit",
				"/my_account",
				"/user_home",
			},
			AllowedExternal: []string{"facebook.com/bikeindex"},
		},
		Redis: RedisConfig{
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Postgres: PostgresConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Audit: Audit{KafkaTopic: "bikeauth.security-audit"},
	}
}

// FromEnv builds the config so main stays lean.
func FromEnv() (Config, error) {
	cfg := Default()

	if path := os.Getenv("BIKEAUTH_CONFIG"); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return Config{}, err
		}
	}

	setString(&cfg.Server.Addr, "BIKEAUTH_ADDR")
	setString(&cfg.Server.BaseURL, "BIKEAUTH_BASE_URL")
	setString(&cfg.Server.LogLevel, "LOG_LEVEL")
	setString(&cfg.Auth.IdentitySigningKey, "IDENTITY_SIGNING_KEY")
	setString(&cfg.Discourse.Secret, "DISCOURSE_SECRET")
	setString(&cfg.Discourse.URL, "DISCOURSE_URL")
	setString(&cfg.Redis.URL, "REDIS_URL")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setString(&cfg.Audit.KafkaTopic, "AUDIT_KAFKA_TOPIC")
	setList(&cfg.Audit.KafkaBrokers, "AUDIT_KAFKA_BROKERS")
	setList(&cfg.Redirect.AllowedExternal, "REDIRECT_ALLOWED_EXTERNAL")

	if err := setBool(&cfg.Auth.CookieSecure, "COOKIE_SECURE"); err != nil {
		return Config{}, err
	}
	if err := setDuration(&cfg.Auth.SessionTTL, "SESSION_TTL"); err != nil {
		return Config{}, err
	}
	if err := setDuration(&cfg.Auth.IdentityTTL, "IDENTITY_TTL"); err != nil {
		return Config{}, err
	}

	cfg.Server.BaseURL = strings.TrimRight(cfg.Server.BaseURL, "/")
	return cfg, cfg.Validate()
}

// Validate rejects configurations the service cannot run with.
func (c Config) Validate() error {
	if c.Auth.IdentitySigningKey == "" {
		return fmt.Errorf("identity signing key is required")
	}
	if !strings.HasPrefix(c.Server.BaseURL, "http://") && !strings.HasPrefix(c.Server.BaseURL, "https://") {
		return fmt.Errorf("base url must be absolute http(s): %q", c.Server.BaseURL)
	}
	if c.Auth.SessionTTL <= 0 {
		return fmt.Errorf("session ttl must be positive")
	}
	for _, p := range []string{c.Redirect.UserHomePath, c.Redirect.AdminHomePath, c.Redirect.GoodbyePath, c.Redirect.SSOEndpointPath} {
		if !strings.HasPrefix(p, "/") {
			return fmt.Errorf("destination path must start with /: %q", p)
		}
	}
	return nil
}

// URL joins a destination path onto the base URL.
func (c Config) URL(path string) string {
	return c.Server.BaseURL + path
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setList(dst *[]string, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	*dst = pstrings.SplitList(v)
}

func setBool(dst *bool, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("parse %s: %w", key, err)
	}
	*dst = b
	return nil
}

func setDuration(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("parse %s: %w", key, err)
	}
	*dst = d
	return nil
}
