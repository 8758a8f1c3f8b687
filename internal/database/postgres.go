package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/whatsyourinfo/oauth-service/internal/config"
)

// New initialises a pgx connection pool against PostgreSQL.
func New(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse postgres url: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

// RunMigrations applies the schema. Statements are idempotent so the service
// can run them at every boot.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()
	for _, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
	}
	return nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id uuid PRIMARY KEY,
		username text NOT NULL UNIQUE,
		name text NOT NULL DEFAULT '',
		email text NOT NULL DEFAULT '',
		avatar_url text NOT NULL DEFAULT '',
		is_pro boolean NOT NULL DEFAULT false,
		created_at timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS oauth_clients (
		id uuid PRIMARY KEY,
		client_id text NOT NULL UNIQUE,
		client_secret text NOT NULL,
		owner_id uuid NOT NULL,
		name text NOT NULL,
		description text NOT NULL DEFAULT '',
		app_logo text NOT NULL DEFAULT '',
		homepage_url text NOT NULL DEFAULT '',
		redirect_uris text[] NOT NULL,
		granted_scopes text[] NOT NULL DEFAULT '{}',
		is_internal boolean NOT NULL DEFAULT false,
		op_by_wyi boolean NOT NULL DEFAULT false,
		is_active boolean NOT NULL DEFAULT true,
		users bigint NOT NULL DEFAULT 0,
		created_at timestamptz NOT NULL DEFAULT now(),
		updated_at timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS oauth_clients_owner_idx ON oauth_clients (owner_id, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS oauth_authorizations (
		id uuid PRIMARY KEY,
		client_id uuid NOT NULL REFERENCES oauth_clients (id) ON DELETE CASCADE,
		user_id uuid NOT NULL,
		granted_scopes text[] NOT NULL,
		created_at timestamptz NOT NULL DEFAULT now(),
		updated_at timestamptz NOT NULL DEFAULT now(),
		UNIQUE (client_id, user_id)
	)`,
	`CREATE INDEX IF NOT EXISTS oauth_authorizations_user_idx ON oauth_authorizations (user_id, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS oauth_codes (
		code_hash text PRIMARY KEY,
		client_id uuid NOT NULL,
		user_id uuid NOT NULL,
		redirect_uri text NOT NULL,
		scope text NOT NULL,
		family_id uuid NOT NULL,
		expires_at timestamptz NOT NULL,
		consumed_at timestamptz,
		created_at timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS oauth_refresh_tokens (
		token_hash text PRIMARY KEY,
		client_id uuid NOT NULL,
		user_id uuid NOT NULL,
		scope text NOT NULL,
		family_id uuid NOT NULL,
		expires_at timestamptz NOT NULL,
		revoked_at timestamptz,
		created_at timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS oauth_refresh_tokens_family_idx ON oauth_refresh_tokens (family_id)`,
	`CREATE INDEX IF NOT EXISTS oauth_refresh_tokens_pair_idx ON oauth_refresh_tokens (client_id, user_id)`,
	`CREATE TABLE IF NOT EXISTS oauth_audit_log (
		id uuid PRIMARY KEY,
		action text NOT NULL,
		client_id uuid,
		user_id uuid,
		context jsonb,
		occurred_at timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS oauth_audit_log_time_idx ON oauth_audit_log (occurred_at DESC)`,
}
