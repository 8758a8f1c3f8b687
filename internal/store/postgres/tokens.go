package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/whatsyourinfo/oauth-service/internal/store"
)

var _ store.TokenStore = (*TokenStore)(nil)

// TokenStore implements store.TokenStore on PostgreSQL.
type TokenStore struct {
	db *pgxpool.Pool
}

func NewTokenStore(db *pgxpool.Pool) *TokenStore {
	return &TokenStore{db: db}
}

const tokenColumns = `token_hash, client_id, user_id, scope, family_id, expires_at, revoked_at, created_at`

const insertTokenSQL = `INSERT INTO oauth_refresh_tokens (token_hash, client_id, user_id, scope, family_id, expires_at, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

func (s *TokenStore) Create(ctx context.Context, token *store.RefreshToken) error {
	_, err := s.db.Exec(ctx, insertTokenSQL,
		token.TokenHash,
		token.ClientID,
		token.UserID,
		token.Scope,
		token.FamilyID,
		token.ExpiresAt,
		token.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert refresh token: %w", err)
	}
	return nil
}

func (s *TokenStore) Rotate(ctx context.Context, presentedHash string, clientID uuid.UUID, successorHash string, successorExpiresAt time.Time) (*store.RefreshToken, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("rotate refresh token: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	// Compare-and-set revoke of the presented token. Concurrent redemptions
	// of the same token see revoked_at already set and fail. Client binding
	// and expiry sit inside the predicate so a wrong-client guess can never
	// revoke a victim's live token.
	query := `UPDATE oauth_refresh_tokens SET revoked_at = now()
WHERE token_hash = $1 AND client_id = $2 AND revoked_at IS NULL AND expires_at > now()
RETURNING ` + tokenColumns

	presented, err := scanToken(tx.QueryRow(ctx, query, presentedHash, clientID))
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("rotate refresh token: %w", err)
		}
		presented, err = scanToken(tx.QueryRow(ctx, `SELECT `+tokenColumns+` FROM oauth_refresh_tokens WHERE token_hash = $1`, presentedHash))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, store.ErrNotFound
			}
			return nil, fmt.Errorf("rotate refresh token: %w", err)
		}
		if presented.ClientID == clientID && presented.RevokedAt != nil {
			return presented, store.ErrReplayed
		}
		return nil, store.ErrNotFound
	}

	const insertSuccessorSQL = `INSERT INTO oauth_refresh_tokens (token_hash, client_id, user_id, scope, family_id, expires_at, created_at)
SELECT $2, client_id, user_id, scope, family_id, $3, now() FROM oauth_refresh_tokens WHERE token_hash = $1`

	if _, err := tx.Exec(ctx, insertSuccessorSQL, presentedHash, successorHash, successorExpiresAt); err != nil {
		return nil, fmt.Errorf("insert successor token: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("rotate refresh token: %w", err)
	}
	return presented, nil
}

func (s *TokenStore) RevokeFamily(ctx context.Context, familyID uuid.UUID) error {
	const query = `UPDATE oauth_refresh_tokens SET revoked_at = now() WHERE family_id = $1 AND revoked_at IS NULL`
	if _, err := s.db.Exec(ctx, query, familyID); err != nil {
		return fmt.Errorf("revoke token family: %w", err)
	}
	return nil
}

func (s *TokenStore) RevokeByClientUser(ctx context.Context, clientID, userID uuid.UUID) error {
	const query = `UPDATE oauth_refresh_tokens SET revoked_at = now() WHERE client_id = $1 AND user_id = $2 AND revoked_at IS NULL`
	if _, err := s.db.Exec(ctx, query, clientID, userID); err != nil {
		return fmt.Errorf("revoke pair tokens: %w", err)
	}
	return nil
}

func (s *TokenStore) RevokeByClient(ctx context.Context, clientID uuid.UUID) error {
	const query = `UPDATE oauth_refresh_tokens SET revoked_at = now() WHERE client_id = $1 AND revoked_at IS NULL`
	if _, err := s.db.Exec(ctx, query, clientID); err != nil {
		return fmt.Errorf("revoke client tokens: %w", err)
	}
	return nil
}

func scanToken(row rowScanner) (*store.RefreshToken, error) {
	var t store.RefreshToken
	err := row.Scan(
		&t.TokenHash,
		&t.ClientID,
		&t.UserID,
		&t.Scope,
		&t.FamilyID,
		&t.ExpiresAt,
		&t.RevokedAt,
		&t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
