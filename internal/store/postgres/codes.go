package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/whatsyourinfo/oauth-service/internal/store"
)

var _ store.CodeStore = (*CodeStore)(nil)

// CodeStore implements store.CodeStore on PostgreSQL.
type CodeStore struct {
	db *pgxpool.Pool
}

func NewCodeStore(db *pgxpool.Pool) *CodeStore {
	return &CodeStore{db: db}
}

func (s *CodeStore) Create(ctx context.Context, code *store.AuthorizationCode) error {
	const query = `INSERT INTO oauth_codes (code_hash, client_id, user_id, redirect_uri, scope, family_id, expires_at, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := s.db.Exec(ctx, query,
		code.CodeHash,
		code.ClientID,
		code.UserID,
		code.RedirectURI,
		code.Scope,
		code.FamilyID,
		code.ExpiresAt,
		code.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert code: %w", err)
	}
	return nil
}

const codeColumns = `code_hash, client_id, user_id, redirect_uri, scope, family_id, expires_at, consumed_at, created_at`

func (s *CodeStore) Consume(ctx context.Context, codeHash string) (*store.AuthorizationCode, error) {
	// Single-statement compare-and-set: of any number of concurrent
	// exchanges for the same code, exactly one sees the unconsumed row.
	query := `UPDATE oauth_codes SET consumed_at = now()
WHERE code_hash = $1 AND consumed_at IS NULL
RETURNING ` + codeColumns

	code, err := scanCode(s.db.QueryRow(ctx, query, codeHash))
	if err == nil {
		return code, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("consume code: %w", err)
	}

	// Lost the race or the code was never issued. Distinguish replay so the
	// caller can revoke the token family descended from this code.
	code, err = scanCode(s.db.QueryRow(ctx, `SELECT `+codeColumns+` FROM oauth_codes WHERE code_hash = $1`, codeHash))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("consume code: %w", err)
	}
	return code, store.ErrReplayed
}

func scanCode(row rowScanner) (*store.AuthorizationCode, error) {
	var c store.AuthorizationCode
	err := row.Scan(
		&c.CodeHash,
		&c.ClientID,
		&c.UserID,
		&c.RedirectURI,
		&c.Scope,
		&c.FamilyID,
		&c.ExpiresAt,
		&c.ConsumedAt,
		&c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}
