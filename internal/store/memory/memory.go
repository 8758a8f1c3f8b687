// Package memory provides in-memory store implementations with the same
// atomicity guarantees as the PostgreSQL/Redis backends. The services are
// constructed against the store interfaces, so tests run entirely in-process.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/whatsyourinfo/oauth-service/internal/store"
)

var (
	_ store.ClientStore        = (*ClientStore)(nil)
	_ store.AuthorizationStore = (*AuthorizationStore)(nil)
	_ store.UserStore          = (*UserStore)(nil)
	_ store.CodeStore          = (*CodeStore)(nil)
	_ store.TokenStore         = (*TokenStore)(nil)
	_ store.AccessTokenStore   = (*AccessTokenStore)(nil)
)

// ClientStore is an in-memory store.ClientStore.
type ClientStore struct {
	mu      sync.Mutex
	clients map[uuid.UUID]*store.Client
}

func NewClientStore() *ClientStore {
	return &ClientStore{clients: make(map[uuid.UUID]*store.Client)}
}

func (s *ClientStore) Create(_ context.Context, client *store.Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.clients {
		if existing.ClientID == client.ClientID {
			return store.ErrConflict
		}
	}
	cp := cloneClient(client)
	s.clients[client.ID] = cp
	return nil
}

func (s *ClientStore) Get(_ context.Context, id uuid.UUID) (*store.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.clients[id]; ok {
		return cloneClient(c), nil
	}
	return nil, store.ErrNotFound
}

func (s *ClientStore) GetByClientID(_ context.Context, clientID string) (*store.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.clients {
		if c.ClientID == clientID {
			return cloneClient(c), nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *ClientStore) ListByOwner(_ context.Context, ownerID uuid.UUID) ([]store.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []store.Client
	for _, c := range s.clients {
		if c.OwnerID == ownerID {
			out = append(out, *cloneClient(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *ClientStore) Update(_ context.Context, id uuid.UUID, update store.ClientUpdate) (*store.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clients[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if update.Name != nil {
		c.Name = *update.Name
	}
	if update.Description != nil {
		c.Description = *update.Description
	}
	if update.AppLogo != nil {
		c.AppLogo = *update.AppLogo
	}
	if update.HomepageURL != nil {
		c.HomepageURL = *update.HomepageURL
	}
	if update.RedirectURIs != nil {
		c.RedirectURIs = append([]string(nil), update.RedirectURIs...)
	}
	if update.GrantedScopes != nil {
		c.GrantedScopes = append([]string(nil), update.GrantedScopes...)
	}
	c.UpdatedAt = time.Now().UTC()
	return cloneClient(c), nil
}

func (s *ClientStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.clients, id)
	return nil
}

func (s *ClientStore) AdjustUsers(_ context.Context, id uuid.UUID, delta int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clients[id]
	if !ok {
		return store.ErrNotFound
	}
	c.Users += delta
	if c.Users < 0 {
		c.Users = 0
	}
	return nil
}

// AuthorizationStore is an in-memory store.AuthorizationStore.
type AuthorizationStore struct {
	mu     sync.Mutex
	grants map[pairKey]*store.Authorization
}

type pairKey struct {
	clientID uuid.UUID
	userID   uuid.UUID
}

func NewAuthorizationStore() *AuthorizationStore {
	return &AuthorizationStore{grants: make(map[pairKey]*store.Authorization)}
}

func (s *AuthorizationStore) Upsert(_ context.Context, clientID, userID uuid.UUID, grantedScopes []string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := pairKey{clientID, userID}
	now := time.Now().UTC()
	if existing, ok := s.grants[key]; ok {
		existing.GrantedScopes = append([]string(nil), grantedScopes...)
		existing.UpdatedAt = now
		return false, nil
	}
	s.grants[key] = &store.Authorization{
		ID:            uuid.New(),
		ClientID:      clientID,
		UserID:        userID,
		GrantedScopes: append([]string(nil), grantedScopes...),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	return true, nil
}

func (s *AuthorizationStore) Get(_ context.Context, clientID, userID uuid.UUID) (*store.Authorization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.grants[pairKey{clientID, userID}]; ok {
		return cloneAuthorization(a), nil
	}
	return nil, store.ErrNotFound
}

func (s *AuthorizationStore) ListByClient(_ context.Context, clientID uuid.UUID) ([]store.Authorization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []store.Authorization
	for key, a := range s.grants {
		if key.clientID == clientID {
			out = append(out, *cloneAuthorization(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *AuthorizationStore) ListByUser(_ context.Context, userID uuid.UUID) ([]store.Authorization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []store.Authorization
	for key, a := range s.grants {
		if key.userID == userID {
			out = append(out, *cloneAuthorization(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *AuthorizationStore) Delete(_ context.Context, clientID, userID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := pairKey{clientID, userID}
	if _, ok := s.grants[key]; !ok {
		return false, nil
	}
	delete(s.grants, key)
	return true, nil
}

func (s *AuthorizationStore) DeleteByClient(_ context.Context, clientID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.grants {
		if key.clientID == clientID {
			delete(s.grants, key)
		}
	}
	return nil
}

// UserStore is an in-memory store.UserStore.
type UserStore struct {
	mu    sync.Mutex
	users map[uuid.UUID]*store.User
}

func NewUserStore() *UserStore {
	return &UserStore{users: make(map[uuid.UUID]*store.User)}
}

// Add seeds a user record.
func (s *UserStore) Add(user store.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := user
	s.users[user.ID] = &cp
}

func (s *UserStore) Get(_ context.Context, id uuid.UUID) (*store.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, store.ErrNotFound
}

func (s *UserStore) GetBatch(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]*store.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[uuid.UUID]*store.User, len(ids))
	for _, id := range ids {
		if u, ok := s.users[id]; ok {
			cp := *u
			out[id] = &cp
		}
	}
	return out, nil
}

// CodeStore is an in-memory store.CodeStore with the same consume-once
// guarantee as the SQL implementation.
type CodeStore struct {
	mu    sync.Mutex
	codes map[string]*store.AuthorizationCode
}

func NewCodeStore() *CodeStore {
	return &CodeStore{codes: make(map[string]*store.AuthorizationCode)}
}

func (s *CodeStore) Create(_ context.Context, code *store.AuthorizationCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *code
	s.codes[code.CodeHash] = &cp
	return nil
}

func (s *CodeStore) Consume(_ context.Context, codeHash string) (*store.AuthorizationCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	code, ok := s.codes[codeHash]
	if !ok {
		return nil, store.ErrNotFound
	}
	if code.ConsumedAt != nil {
		cp := *code
		return &cp, store.ErrReplayed
	}
	now := time.Now().UTC()
	code.ConsumedAt = &now
	cp := *code
	return &cp, nil
}

// TokenStore is an in-memory store.TokenStore with rotate-once semantics.
type TokenStore struct {
	mu     sync.Mutex
	tokens map[string]*store.RefreshToken
}

func NewTokenStore() *TokenStore {
	return &TokenStore{tokens: make(map[string]*store.RefreshToken)}
}

func (s *TokenStore) Create(_ context.Context, token *store.RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *token
	s.tokens[token.TokenHash] = &cp
	return nil
}

func (s *TokenStore) Rotate(_ context.Context, presentedHash string, clientID uuid.UUID, successorHash string, successorExpiresAt time.Time) (*store.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	presented, ok := s.tokens[presentedHash]
	if !ok {
		return nil, store.ErrNotFound
	}
	if presented.ClientID != clientID {
		return nil, store.ErrNotFound
	}
	if presented.RevokedAt != nil {
		cp := *presented
		return &cp, store.ErrReplayed
	}
	now := time.Now().UTC()
	if now.After(presented.ExpiresAt) {
		return nil, store.ErrNotFound
	}
	presented.RevokedAt = &now
	s.tokens[successorHash] = &store.RefreshToken{
		TokenHash: successorHash,
		ClientID:  presented.ClientID,
		UserID:    presented.UserID,
		Scope:     presented.Scope,
		FamilyID:  presented.FamilyID,
		ExpiresAt: successorExpiresAt,
		CreatedAt: now,
	}
	out := *presented
	return &out, nil
}

func (s *TokenStore) RevokeFamily(_ context.Context, familyID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	for _, t := range s.tokens {
		if t.FamilyID == familyID && t.RevokedAt == nil {
			at := now
			t.RevokedAt = &at
		}
	}
	return nil
}

func (s *TokenStore) RevokeByClientUser(_ context.Context, clientID, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	for _, t := range s.tokens {
		if t.ClientID == clientID && t.UserID == userID && t.RevokedAt == nil {
			at := now
			t.RevokedAt = &at
		}
	}
	return nil
}

func (s *TokenStore) RevokeByClient(_ context.Context, clientID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	for _, t := range s.tokens {
		if t.ClientID == clientID && t.RevokedAt == nil {
			at := now
			t.RevokedAt = &at
		}
	}
	return nil
}

// Get returns the stored token for assertions in tests.
func (s *TokenStore) Get(tokenHash string) (*store.RefreshToken, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[tokenHash]
	if !ok {
		return nil, false
	}
	cp := *t
	return &cp, true
}

// AccessTokenStore is an in-memory store.AccessTokenStore.
type AccessTokenStore struct {
	mu      sync.Mutex
	records map[string]accessEntry
}

type accessEntry struct {
	record    store.AccessTokenRecord
	expiresAt time.Time
}

func NewAccessTokenStore() *AccessTokenStore {
	return &AccessTokenStore{records: make(map[string]accessEntry)}
}

func (s *AccessTokenStore) Save(_ context.Context, tokenHash string, record store.AccessTokenRecord, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[tokenHash] = accessEntry{record: record, expiresAt: time.Now().Add(ttl)}
	return nil
}

func (s *AccessTokenStore) Get(_ context.Context, tokenHash string) (*store.AccessTokenRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.records[tokenHash]
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, store.ErrNotFound
	}
	cp := entry.record
	return &cp, nil
}

func cloneClient(c *store.Client) *store.Client {
	cp := *c
	cp.RedirectURIs = append([]string(nil), c.RedirectURIs...)
	cp.GrantedScopes = append([]string(nil), c.GrantedScopes...)
	return &cp
}

func cloneAuthorization(a *store.Authorization) *store.Authorization {
	cp := *a
	cp.GrantedScopes = append([]string(nil), a.GrantedScopes...)
	return &cp
}
