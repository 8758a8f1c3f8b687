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

var _ store.UserStore = (*UserStore)(nil)

// UserStore reads platform user records. The profile platform owns writes;
// this service only projects.
type UserStore struct {
	db *pgxpool.Pool
}

func NewUserStore(db *pgxpool.Pool) *UserStore {
	return &UserStore{db: db}
}

const userColumns = `id, username, name, email, avatar_url, is_pro, created_at`

func (s *UserStore) Get(ctx context.Context, id uuid.UUID) (*store.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	user, err := scanUser(s.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

func (s *UserStore) GetBatch(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*store.User, error) {
	if len(ids) == 0 {
		return map[uuid.UUID]*store.User{}, nil
	}
	query := `SELECT ` + userColumns + ` FROM users WHERE id = ANY($1)`
	rows, err := s.db.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("batch get users: %w", err)
	}
	defer rows.Close()

	users := make(map[uuid.UUID]*store.User, len(ids))
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users[user.ID] = user
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("batch get users: %w", err)
	}
	return users, nil
}

func scanUser(row rowScanner) (*store.User, error) {
	var u store.User
	err := row.Scan(&u.ID, &u.Username, &u.Name, &u.Email, &u.AvatarURL, &u.IsPro, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}
