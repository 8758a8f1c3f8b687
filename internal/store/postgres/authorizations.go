package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/whatsyourinfo/oauth-service/internal/store"
)

var _ store.AuthorizationStore = (*AuthorizationStore)(nil)

// AuthorizationStore implements store.AuthorizationStore on PostgreSQL.
type AuthorizationStore struct {
	db *pgxpool.Pool
}

func NewAuthorizationStore(db *pgxpool.Pool) *AuthorizationStore {
	return &AuthorizationStore{db: db}
}

func (s *AuthorizationStore) Upsert(ctx context.Context, clientID, userID uuid.UUID, grantedScopes []string) (bool, error) {
	// Re-approval replaces the scope set. xmax = 0 distinguishes a fresh
	// insert from a conflict-update so first-time authorizations are counted
	// exactly once even under concurrent consent submissions.
	const query = `INSERT INTO oauth_authorizations (id, client_id, user_id, granted_scopes)
VALUES ($1, $2, $3, $4)
ON CONFLICT (client_id, user_id)
DO UPDATE SET granted_scopes = EXCLUDED.granted_scopes, updated_at = now()
RETURNING (xmax = 0)`

	var created bool
	if err := s.db.QueryRow(ctx, query, uuid.New(), clientID, userID, grantedScopes).Scan(&created); err != nil {
		return false, fmt.Errorf("upsert authorization: %w", err)
	}
	return created, nil
}

const authorizationColumns = `id, client_id, user_id, granted_scopes, created_at, updated_at`

func (s *AuthorizationStore) Get(ctx context.Context, clientID, userID uuid.UUID) (*store.Authorization, error) {
	query := `SELECT ` + authorizationColumns + ` FROM oauth_authorizations WHERE client_id = $1 AND user_id = $2`
	auth, err := scanAuthorization(s.db.QueryRow(ctx, query, clientID, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("get authorization: %w", err)
	}
	return auth, nil
}

func (s *AuthorizationStore) ListByClient(ctx context.Context, clientID uuid.UUID) ([]store.Authorization, error) {
	query := `SELECT ` + authorizationColumns + ` FROM oauth_authorizations WHERE client_id = $1 ORDER BY created_at DESC`
	return s.list(ctx, query, clientID)
}

func (s *AuthorizationStore) ListByUser(ctx context.Context, userID uuid.UUID) ([]store.Authorization, error) {
	query := `SELECT ` + authorizationColumns + ` FROM oauth_authorizations WHERE user_id = $1 ORDER BY created_at DESC`
	return s.list(ctx, query, userID)
}

func (s *AuthorizationStore) list(ctx context.Context, query string, arg any) ([]store.Authorization, error) {
	rows, err := s.db.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("list authorizations: %w", err)
	}
	defer rows.Close()

	var auths []store.Authorization
	for rows.Next() {
		auth, err := scanAuthorization(rows)
		if err != nil {
			return nil, fmt.Errorf("scan authorization: %w", err)
		}
		auths = append(auths, *auth)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list authorizations: %w", err)
	}
	return auths, nil
}

func (s *AuthorizationStore) Delete(ctx context.Context, clientID, userID uuid.UUID) (bool, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM oauth_authorizations WHERE client_id = $1 AND user_id = $2`, clientID, userID)
	if err != nil {
		return false, fmt.Errorf("delete authorization: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *AuthorizationStore) DeleteByClient(ctx context.Context, clientID uuid.UUID) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM oauth_authorizations WHERE client_id = $1`, clientID); err != nil {
		return fmt.Errorf("delete client authorizations: %w", err)
	}
	return nil
}

func scanAuthorization(row rowScanner) (*store.Authorization, error) {
	var a store.Authorization
	err := row.Scan(&a.ID, &a.ClientID, &a.UserID, &a.GrantedScopes, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}
