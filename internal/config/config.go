package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config aggregates all runtime settings.
type Config struct {
	App      AppConfig      `envPrefix:"WYI_"`
	HTTP     HTTPConfig     `envPrefix:"WYI_HTTP_"`
	Database DatabaseConfig `envPrefix:"WYI_DB_"`
	Redis    RedisConfig    `envPrefix:"WYI_REDIS_"`
	OAuth    OAuthConfig    `envPrefix:"WYI_OAUTH_"`
	Session  SessionConfig  `envPrefix:"WYI_SESSION_"`
}

type AppConfig struct {
	Environment string `env:"ENV" envDefault:"development"`
	ServiceName string `env:"SERVICE_NAME" envDefault:"oauth-service"`
}

type HTTPConfig struct {
	Host              string        `env:"HOST" envDefault:"0.0.0.0"`
	Port              int           `env:"PORT" envDefault:"4200"`
	ReadTimeout       time.Duration `env:"READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout      time.Duration `env:"WRITE_TIMEOUT" envDefault:"10s"`
	IdleTimeout       time.Duration `env:"IDLE_TIMEOUT" envDefault:"120s"`
	ReadHeaderTimeout time.Duration `env:"READ_HEADER_TIMEOUT" envDefault:"5s"`
	ShutdownTimeout   time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"25s"`
}

type DatabaseConfig struct {
	URL             string        `env:"URL"`
	MaxConns        int32         `env:"MAX_CONNS" envDefault:"20"`
	MinConns        int32         `env:"MIN_CONNS" envDefault:"2"`
	ConnMaxLifetime time.Duration `env:"CONN_MAX_LIFETIME" envDefault:"30m"`
	RunMigrations   bool          `env:"RUN_MIGRATIONS" envDefault:"true"`
}

type RedisConfig struct {
	Addr      string `env:"ADDR" envDefault:"127.0.0.1:6379"`
	Password  string `env:"PASSWORD"`
	DB        int    `env:"DB" envDefault:"0"`
	EnableTLS bool   `env:"ENABLE_TLS" envDefault:"false"`
	Namespace string `env:"NAMESPACE" envDefault:"oauth"`
}

// OAuthConfig carries the protocol lifetimes. Defaults mirror the platform's
// historical values: 10 minute authorization codes, 1 hour access tokens,
// 90 day refresh tokens.
type OAuthConfig struct {
	CodeTTL         time.Duration `env:"CODE_TTL" envDefault:"10m"`
	AccessTokenTTL  time.Duration `env:"ACCESS_TTL" envDefault:"1h"`
	RefreshTokenTTL time.Duration `env:"REFRESH_TTL" envDefault:"2160h"`
}

type SessionConfig struct {
	Secret string        `env:"SECRET"`
	TTL    time.Duration `env:"TTL" envDefault:"168h"`
}

// Load parses environment variables into Config and performs validation.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if cfg.Database.URL == "" {
		return nil, fmt.Errorf("WYI_DB_URL is required")
	}
	if cfg.Session.Secret == "" {
		return nil, fmt.Errorf("WYI_SESSION_SECRET is required")
	}
	if cfg.OAuth.CodeTTL <= 0 || cfg.OAuth.AccessTokenTTL <= 0 || cfg.OAuth.RefreshTokenTTL <= 0 {
		return nil, fmt.Errorf("oauth lifetimes must be positive")
	}

	return cfg, nil
}
