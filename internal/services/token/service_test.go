package token

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/whatsyourinfo/oauth-service/internal/config"
	"github.com/whatsyourinfo/oauth-service/internal/credentials"
	"github.com/whatsyourinfo/oauth-service/internal/scopes"
	"github.com/whatsyourinfo/oauth-service/internal/store"
	"github.com/whatsyourinfo/oauth-service/internal/store/memory"
	"go.uber.org/zap"
)

const (
	callbackURI  = "https://app.example/callback"
	clientPubID  = "wyi_client_abc123"
	clientSecret = "wyi_secret_abc123"
)

type fixture struct {
	service      *Service
	clients      *memory.ClientStore
	codes        *memory.CodeStore
	tokens       *memory.TokenStore
	accessTokens *memory.AccessTokenStore
	client       *store.Client
	userID       uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clients := memory.NewClientStore()
	codes := memory.NewCodeStore()
	tokens := memory.NewTokenStore()
	accessTokens := memory.NewAccessTokenStore()

	client := &store.Client{
		ID:            uuid.New(),
		ClientID:      clientPubID,
		ClientSecret:  clientSecret,
		OwnerID:       uuid.New(),
		Name:          "Linkroll",
		RedirectURIs:  []string{callbackURI},
		GrantedScopes: scopes.All(),
		IsActive:      true,
	}
	require.NoError(t, clients.Create(context.Background(), client))

	service := New(Dependencies{
		Clients:      clients,
		Codes:        codes,
		Tokens:       tokens,
		AccessTokens: accessTokens,
		Config: config.OAuthConfig{
			CodeTTL:         10 * time.Minute,
			AccessTokenTTL:  time.Hour,
			RefreshTokenTTL: 2160 * time.Hour,
		},
		Logger: zap.NewNop(),
	})
	return &fixture{
		service:      service,
		clients:      clients,
		codes:        codes,
		tokens:       tokens,
		accessTokens: accessTokens,
		client:       client,
		userID:       uuid.New(),
	}
}

// mintCode seeds a pending authorization code the way the consent flow does.
func (f *fixture) mintCode(t *testing.T, scope string) string {
	t.Helper()
	code := "wyi_code_" + uuid.NewString()
	now := time.Now().UTC()
	require.NoError(t, f.codes.Create(context.Background(), &store.AuthorizationCode{
		CodeHash:    credentials.Hash(code),
		ClientID:    f.client.ID,
		UserID:      f.userID,
		RedirectURI: callbackURI,
		Scope:       scope,
		FamilyID:    uuid.New(),
		ExpiresAt:   now.Add(10 * time.Minute),
		CreatedAt:   now,
	}))
	return code
}

func codeExchange(code string) ExchangeInput {
	return ExchangeInput{
		GrantType:    "authorization_code",
		ClientID:     clientPubID,
		ClientSecret: clientSecret,
		Code:         code,
		RedirectURI:  callbackURI,
	}
}

func refreshExchange(refreshToken string) ExchangeInput {
	return ExchangeInput{
		GrantType:    "refresh_token",
		ClientID:     clientPubID,
		ClientSecret: clientSecret,
		RefreshToken: refreshToken,
	}
}

func TestCodeExchangeIssuesTokenPair(t *testing.T) {
	f := newFixture(t)
	code := f.mintCode(t, "profile:read email:read")

	resp, err := f.service.Exchange(context.Background(), codeExchange(code))
	require.NoError(t, err)

	require.True(t, strings.HasPrefix(resp.AccessToken, credentials.AccessTokenPrefix))
	require.True(t, strings.HasPrefix(resp.RefreshToken, credentials.RefreshTokenPrefix))
	require.Equal(t, "Bearer", resp.TokenType)
	require.Equal(t, 3600, resp.ExpiresIn)
	require.Equal(t, "profile:read email:read", resp.Scope)

	record, err := f.accessTokens.Get(context.Background(), credentials.Hash(resp.AccessToken))
	require.NoError(t, err)
	require.Equal(t, f.userID, record.UserID)
	require.Equal(t, f.client.ID, record.ClientID)
	require.Equal(t, "profile:read email:read", record.Scope)
}

func TestCodeIsSingleUse(t *testing.T) {
	f := newFixture(t)
	code := f.mintCode(t, "profile:read")
	ctx := context.Background()

	first, err := f.service.Exchange(ctx, codeExchange(code))
	require.NoError(t, err)

	_, err = f.service.Exchange(ctx, codeExchange(code))
	require.ErrorIs(t, err, ErrInvalidGrant)

	// Replay burns every descendant of the first exchange.
	stored, ok := f.tokens.Get(credentials.Hash(first.RefreshToken))
	require.True(t, ok)
	require.NotNil(t, stored.RevokedAt)
}

func TestCodeGrantFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t.Run("unknown code", func(t *testing.T) {
		_, err := f.service.Exchange(ctx, codeExchange("wyi_code_missing"))
		require.ErrorIs(t, err, ErrInvalidGrant)
	})

	t.Run("wrong secret", func(t *testing.T) {
		code := f.mintCode(t, "profile:read")
		in := codeExchange(code)
		in.ClientSecret = "wyi_secret_wrong"
		_, err := f.service.Exchange(ctx, in)
		require.ErrorIs(t, err, ErrInvalidGrant)
	})

	t.Run("redirect uri mismatch", func(t *testing.T) {
		code := f.mintCode(t, "profile:read")
		in := codeExchange(code)
		in.RedirectURI = callbackURI + "/"
		_, err := f.service.Exchange(ctx, in)
		require.ErrorIs(t, err, ErrInvalidGrant)
	})

	t.Run("expired code", func(t *testing.T) {
		code := "wyi_code_expired"
		require.NoError(t, f.codes.Create(ctx, &store.AuthorizationCode{
			CodeHash:    credentials.Hash(code),
			ClientID:    f.client.ID,
			UserID:      f.userID,
			RedirectURI: callbackURI,
			Scope:       "profile:read",
			FamilyID:    uuid.New(),
			ExpiresAt:   time.Now().Add(-time.Minute),
		}))
		_, err := f.service.Exchange(ctx, codeExchange(code))
		require.ErrorIs(t, err, ErrInvalidGrant)
	})

	t.Run("missing fields", func(t *testing.T) {
		in := codeExchange("")
		_, err := f.service.Exchange(ctx, in)
		require.ErrorIs(t, err, ErrInvalidRequest)
	})
}

func TestRefreshRotation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	code := f.mintCode(t, "profile:read")

	pair, err := f.service.Exchange(ctx, codeExchange(code))
	require.NoError(t, err)

	rotated, err := f.service.Exchange(ctx, refreshExchange(pair.RefreshToken))
	require.NoError(t, err)
	require.NotEqual(t, pair.RefreshToken, rotated.RefreshToken)
	require.NotEqual(t, pair.AccessToken, rotated.AccessToken)
	require.Equal(t, "profile:read", rotated.Scope)

	// The presented token is now dead.
	old, ok := f.tokens.Get(credentials.Hash(pair.RefreshToken))
	require.True(t, ok)
	require.NotNil(t, old.RevokedAt)
}

func TestRefreshReplayRevokesFamily(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	code := f.mintCode(t, "profile:read")

	pair, err := f.service.Exchange(ctx, codeExchange(code))
	require.NoError(t, err)

	rotated, err := f.service.Exchange(ctx, refreshExchange(pair.RefreshToken))
	require.NoError(t, err)

	// Presenting the rotated-away token again kills the whole family,
	// including the live successor.
	_, err = f.service.Exchange(ctx, refreshExchange(pair.RefreshToken))
	require.ErrorIs(t, err, ErrInvalidGrant)

	successor, ok := f.tokens.Get(credentials.Hash(rotated.RefreshToken))
	require.True(t, ok)
	require.NotNil(t, successor.RevokedAt)

	_, err = f.service.Exchange(ctx, refreshExchange(rotated.RefreshToken))
	require.ErrorIs(t, err, ErrInvalidGrant)
}

func TestRefreshFromAnotherClientRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	code := f.mintCode(t, "profile:read")

	pair, err := f.service.Exchange(ctx, codeExchange(code))
	require.NoError(t, err)

	other := &store.Client{
		ID:            uuid.New(),
		ClientID:      "wyi_client_other",
		ClientSecret:  "wyi_secret_other",
		OwnerID:       uuid.New(),
		Name:          "Other",
		RedirectURIs:  []string{callbackURI},
		GrantedScopes: scopes.All(),
		IsActive:      true,
	}
	require.NoError(t, f.clients.Create(ctx, other))

	in := refreshExchange(pair.RefreshToken)
	in.ClientID = other.ClientID
	in.ClientSecret = other.ClientSecret
	_, err = f.service.Exchange(ctx, in)
	require.ErrorIs(t, err, ErrInvalidGrant)

	// The victim's token survives a cross-client probe.
	stored, ok := f.tokens.Get(credentials.Hash(pair.RefreshToken))
	require.True(t, ok)
	require.Nil(t, stored.RevokedAt)
}

func TestGrantTypeDispatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.Exchange(ctx, ExchangeInput{GrantType: "password"})
	require.ErrorIs(t, err, ErrUnsupportedGrantType)

	_, err = f.service.Exchange(ctx, ExchangeInput{})
	require.ErrorIs(t, err, ErrInvalidRequest)
}

func TestInactiveClientCannotExchange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	code := f.mintCode(t, "profile:read")

	f.client.IsActive = false
	require.NoError(t, f.clients.Delete(ctx, f.client.ID))
	require.NoError(t, f.clients.Create(ctx, f.client))

	_, err := f.service.Exchange(ctx, codeExchange(code))
	require.ErrorIs(t, err, ErrInvalidGrant)
}
