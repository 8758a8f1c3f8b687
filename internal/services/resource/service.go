// Package resource serves scope-gated reads of the authenticated user's
// profile to clients presenting a bearer access token.
package resource

import (
	"context"
	"errors"
	"fmt"

	"github.com/whatsyourinfo/oauth-service/internal/credentials"
	"github.com/whatsyourinfo/oauth-service/internal/scopes"
	"github.com/whatsyourinfo/oauth-service/internal/store"
)

// ErrInvalidToken is returned for unknown, expired, or malformed tokens.
var ErrInvalidToken = errors.New("invalid or expired access token")

// Profile is the token-scoped view of the user behind an access token.
// Fields outside the token's scope are nil.
type Profile struct {
	UserID    string   `json:"user_id"`
	Scope     []string `json:"scope"`
	Username  *string  `json:"username,omitempty"`
	Name      *string  `json:"name,omitempty"`
	AvatarURL *string  `json:"avatar_url,omitempty"`
	IsPro     *bool    `json:"is_pro,omitempty"`
	Email     *string  `json:"email,omitempty"`
}

// Service resolves bearer access tokens into scoped profile views.
type Service struct {
	accessTokens store.AccessTokenStore
	users        store.UserStore
}

// New initialises the resource service.
func New(accessTokens store.AccessTokenStore, users store.UserStore) *Service {
	return &Service{accessTokens: accessTokens, users: users}
}

// Resolve looks up the presented token and applies the scope gate. The raw
// token is hashed before lookup; only fingerprints leave this function.
func (s *Service) Resolve(ctx context.Context, token string) (*Profile, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}
	record, err := s.accessTokens.Get(ctx, credentials.Hash(token))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("resolve access token: %w", err)
	}

	user, err := s.users.Get(ctx, record.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("load user: %w", err)
	}

	granted := scopes.Parse(record.Scope)
	profile := &Profile{
		UserID: user.ID.String(),
		Scope:  granted,
	}
	if scopes.Contains(granted, scopes.ProfileRead) {
		profile.Username = &user.Username
		profile.Name = &user.Name
		profile.AvatarURL = &user.AvatarURL
		profile.IsPro = &user.IsPro
	}
	if scopes.Contains(granted, scopes.EmailRead) {
		profile.Email = &user.Email
	}
	return profile, nil
}
