package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrConflict indicates a uniqueness violation.
	ErrConflict = errors.New("record already exists")
	// ErrReplayed indicates a single-use credential was presented again
	// after having been consumed or rotated away.
	ErrReplayed = errors.New("credential already used")
)

// User is the platform's user record as seen by this service. The profile
// platform owns the full document; only the fields subject to scope-gated
// disclosure live here.
type User struct {
	ID        uuid.UUID
	Username  string
	Name      string
	Email     string
	AvatarURL string
	IsPro     bool
	CreatedAt time.Time
}

// Client is a registered third-party OAuth application.
type Client struct {
	ID            uuid.UUID
	ClientID      string
	ClientSecret  string
	OwnerID       uuid.UUID
	Name          string
	Description   string
	AppLogo       string
	HomepageURL   string
	RedirectURIs  []string
	GrantedScopes []string
	IsInternal    bool
	OpByWYI       bool
	IsActive      bool
	Users         int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ClientUpdate carries a partial edit. Nil fields are left unchanged; an
// absent field is never interpreted as a clear.
type ClientUpdate struct {
	Name          *string
	Description   *string
	AppLogo       *string
	HomepageURL   *string
	RedirectURIs  []string
	GrantedScopes []string
}

// Empty reports whether the update carries no fields at all.
func (u ClientUpdate) Empty() bool {
	return u.Name == nil && u.Description == nil && u.AppLogo == nil &&
		u.HomepageURL == nil && u.RedirectURIs == nil && u.GrantedScopes == nil
}

// Authorization records that a user approved a client for a scope set.
// At most one row exists per (client, user) pair.
type Authorization struct {
	ID            uuid.UUID
	ClientID      uuid.UUID
	UserID        uuid.UUID
	GrantedScopes []string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// AuthorizationCode is the single-use credential minted on consent. Only the
// SHA-256 fingerprint of the code is persisted.
type AuthorizationCode struct {
	CodeHash    string
	ClientID    uuid.UUID
	UserID      uuid.UUID
	RedirectURI string
	Scope       string
	FamilyID    uuid.UUID
	ExpiresAt   time.Time
	ConsumedAt  *time.Time
	CreatedAt   time.Time
}

// RefreshToken is the durable half of an issued token pair, stored hashed.
// FamilyID ties together every token descended from one authorization code.
type RefreshToken struct {
	TokenHash string
	ClientID  uuid.UUID
	UserID    uuid.UUID
	Scope     string
	FamilyID  uuid.UUID
	ExpiresAt time.Time
	RevokedAt *time.Time
	CreatedAt time.Time
}

// AccessTokenRecord is the cache-resident binding of an opaque access token.
type AccessTokenRecord struct {
	UserID   uuid.UUID `json:"user_id"`
	ClientID uuid.UUID `json:"client_id"`
	Scope    string    `json:"scope"`
}

// ClientStore persists OAuth client registrations.
type ClientStore interface {
	Create(ctx context.Context, client *Client) error
	Get(ctx context.Context, id uuid.UUID) (*Client, error)
	GetByClientID(ctx context.Context, clientID string) (*Client, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]Client, error)
	Update(ctx context.Context, id uuid.UUID, update ClientUpdate) (*Client, error)
	Delete(ctx context.Context, id uuid.UUID) error
	// AdjustUsers moves the distinct-user counter by delta, flooring at zero.
	AdjustUsers(ctx context.Context, id uuid.UUID, delta int64) error
}

// AuthorizationStore persists user consent grants.
type AuthorizationStore interface {
	// Upsert stores the grant for (clientID, userID), replacing the scope
	// set on re-approval. created reports whether a new row was inserted,
	// and is exact under concurrent upserts for the same pair.
	Upsert(ctx context.Context, clientID, userID uuid.UUID, grantedScopes []string) (created bool, err error)
	Get(ctx context.Context, clientID, userID uuid.UUID) (*Authorization, error)
	ListByClient(ctx context.Context, clientID uuid.UUID) ([]Authorization, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]Authorization, error)
	Delete(ctx context.Context, clientID, userID uuid.UUID) (bool, error)
	DeleteByClient(ctx context.Context, clientID uuid.UUID) error
}

// UserStore reads platform user records.
type UserStore interface {
	Get(ctx context.Context, id uuid.UUID) (*User, error)
	GetBatch(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*User, error)
}

// CodeStore persists authorization codes.
type CodeStore interface {
	Create(ctx context.Context, code *AuthorizationCode) error
	// Consume atomically marks the code used and returns it. Exactly one of
	// any number of concurrent calls for the same hash succeeds. When the
	// code was already consumed the record is returned alongside
	// ErrReplayed so the caller can revoke the descended token family.
	Consume(ctx context.Context, codeHash string) (*AuthorizationCode, error)
}

// TokenStore persists refresh tokens.
type TokenStore interface {
	Create(ctx context.Context, token *RefreshToken) error
	// Rotate atomically revokes the presented token and inserts a successor
	// inheriting its (user, client, scope, family) binding. The presented
	// token must belong to clientID and be unexpired; exactly one of any
	// number of concurrent calls for the same hash succeeds. When the token
	// was already rotated away the stored record is returned alongside
	// ErrReplayed so the caller can revoke the family.
	Rotate(ctx context.Context, presentedHash string, clientID uuid.UUID, successorHash string, successorExpiresAt time.Time) (*RefreshToken, error)
	RevokeFamily(ctx context.Context, familyID uuid.UUID) error
	RevokeByClientUser(ctx context.Context, clientID, userID uuid.UUID) error
	RevokeByClient(ctx context.Context, clientID uuid.UUID) error
}

// AccessTokenStore holds short-lived access token bindings.
type AccessTokenStore interface {
	Save(ctx context.Context, tokenHash string, record AccessTokenRecord, ttl time.Duration) error
	Get(ctx context.Context, tokenHash string) (*AccessTokenRecord, error)
}
