package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/whatsyourinfo/oauth-service/internal/store"
)

var _ store.ClientStore = (*ClientStore)(nil)

// ClientStore implements store.ClientStore on PostgreSQL.
type ClientStore struct {
	db *pgxpool.Pool
}

func NewClientStore(db *pgxpool.Pool) *ClientStore {
	return &ClientStore{db: db}
}

const clientColumns = `id, client_id, client_secret, owner_id, name, description, app_logo, homepage_url,
redirect_uris, granted_scopes, is_internal, op_by_wyi, is_active, users, created_at, updated_at`

func (s *ClientStore) Create(ctx context.Context, client *store.Client) error {
	const query = `INSERT INTO oauth_clients
(id, client_id, client_secret, owner_id, name, description, app_logo, homepage_url, redirect_uris, granted_scopes, is_internal, op_by_wyi, is_active, users, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $15)`

	_, err := s.db.Exec(ctx, query,
		client.ID,
		client.ClientID,
		client.ClientSecret,
		client.OwnerID,
		client.Name,
		client.Description,
		client.AppLogo,
		client.HomepageURL,
		client.RedirectURIs,
		client.GrantedScopes,
		client.IsInternal,
		client.OpByWYI,
		client.IsActive,
		client.Users,
		client.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return store.ErrConflict
		}
		return fmt.Errorf("insert client: %w", err)
	}
	return nil
}

func (s *ClientStore) Get(ctx context.Context, id uuid.UUID) (*store.Client, error) {
	query := `SELECT ` + clientColumns + ` FROM oauth_clients WHERE id = $1`
	client, err := scanClient(s.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("get client: %w", err)
	}
	return client, nil
}

func (s *ClientStore) GetByClientID(ctx context.Context, clientID string) (*store.Client, error) {
	query := `SELECT ` + clientColumns + ` FROM oauth_clients WHERE client_id = $1`
	client, err := scanClient(s.db.QueryRow(ctx, query, clientID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("get client: %w", err)
	}
	return client, nil
}

func (s *ClientStore) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]store.Client, error) {
	query := `SELECT ` + clientColumns + ` FROM oauth_clients WHERE owner_id = $1 ORDER BY created_at DESC`
	rows, err := s.db.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}
	defer rows.Close()

	var clients []store.Client
	for rows.Next() {
		client, err := scanClient(rows)
		if err != nil {
			return nil, fmt.Errorf("scan client: %w", err)
		}
		clients = append(clients, *client)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}
	return clients, nil
}

func (s *ClientStore) Update(ctx context.Context, id uuid.UUID, update store.ClientUpdate) (*store.Client, error) {
	sets := make([]string, 0, 7)
	args := make([]any, 0, 8)
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if update.Name != nil {
		add("name", *update.Name)
	}
	if update.Description != nil {
		add("description", *update.Description)
	}
	if update.AppLogo != nil {
		add("app_logo", *update.AppLogo)
	}
	if update.HomepageURL != nil {
		add("homepage_url", *update.HomepageURL)
	}
	if update.RedirectURIs != nil {
		add("redirect_uris", update.RedirectURIs)
	}
	if update.GrantedScopes != nil {
		add("granted_scopes", update.GrantedScopes)
	}
	if len(sets) == 0 {
		return nil, fmt.Errorf("update client: no fields")
	}
	sets = append(sets, "updated_at = now()")

	args = append(args, id)
	query := fmt.Sprintf("UPDATE oauth_clients SET %s WHERE id = $%d RETURNING %s",
		strings.Join(sets, ", "), len(args), clientColumns)

	client, err := scanClient(s.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("update client: %w", err)
	}
	return client, nil
}

func (s *ClientStore) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM oauth_clients WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete client: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *ClientStore) AdjustUsers(ctx context.Context, id uuid.UUID, delta int64) error {
	const query = `UPDATE oauth_clients SET users = GREATEST(users + $2, 0) WHERE id = $1`
	if _, err := s.db.Exec(ctx, query, id, delta); err != nil {
		return fmt.Errorf("adjust client users: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanClient(row rowScanner) (*store.Client, error) {
	var c store.Client
	err := row.Scan(
		&c.ID,
		&c.ClientID,
		&c.ClientSecret,
		&c.OwnerID,
		&c.Name,
		&c.Description,
		&c.AppLogo,
		&c.HomepageURL,
		&c.RedirectURIs,
		&c.GrantedScopes,
		&c.IsInternal,
		&c.OpByWYI,
		&c.IsActive,
		&c.Users,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}
