package authorize

import (
	"context"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/whatsyourinfo/oauth-service/internal/config"
	"github.com/whatsyourinfo/oauth-service/internal/scopes"
	"github.com/whatsyourinfo/oauth-service/internal/store"
	"github.com/whatsyourinfo/oauth-service/internal/store/memory"
	"go.uber.org/zap"
)

const callbackURI = "https://app.example/callback"

type fixture struct {
	service *Service
	clients *memory.ClientStore
	auths   *memory.AuthorizationStore
	codes   *memory.CodeStore
	client  *store.Client
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clients := memory.NewClientStore()
	auths := memory.NewAuthorizationStore()
	codes := memory.NewCodeStore()

	client := &store.Client{
		ID:            uuid.New(),
		ClientID:      "wyi_client_abc123",
		ClientSecret:  "wyi_secret_abc123",
		OwnerID:       uuid.New(),
		Name:          "Linkroll",
		RedirectURIs:  []string{callbackURI},
		GrantedScopes: scopes.All(),
		IsActive:      true,
		CreatedAt:     time.Now().UTC(),
	}
	require.NoError(t, clients.Create(context.Background(), client))

	service := New(Dependencies{
		Clients: clients,
		Auths:   auths,
		Codes:   codes,
		Config: config.OAuthConfig{
			CodeTTL:         10 * time.Minute,
			AccessTokenTTL:  time.Hour,
			RefreshTokenTTL: 2160 * time.Hour,
		},
		Logger: zap.NewNop(),
	})
	return &fixture{service: service, clients: clients, auths: auths, codes: codes, client: client}
}

func request(scope string) Request {
	return Request{
		ClientID:     "wyi_client_abc123",
		RedirectURI:  callbackURI,
		ResponseType: "code",
		Scope:        scope,
		State:        "xyz",
	}
}

func TestStartPromptsForConsent(t *testing.T) {
	f := newFixture(t)

	result, err := f.service.Start(context.Background(), uuid.New(), request("profile:read email:read"))
	require.NoError(t, err)
	require.Equal(t, StateAwaitingConsent, result.State)
	require.NotNil(t, result.Prompt)

	require.Equal(t, "Linkroll", result.Prompt.Name)
	require.Equal(t, "profile:read email:read", result.Prompt.Scope)
	require.Equal(t, "xyz", result.Prompt.State)
	require.Len(t, result.Prompt.Scopes, 2)
	require.Equal(t, "profile:read", result.Prompt.Scopes[0].ID)
	require.NotEmpty(t, result.Prompt.Scopes[0].Description)
}

func TestStartValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.New()

	t.Run("unsupported response type", func(t *testing.T) {
		req := request("profile:read")
		req.ResponseType = "token"
		_, err := f.service.Start(ctx, userID, req)
		require.ErrorIs(t, err, ErrUnsupportedResponseType)
	})

	t.Run("missing response type", func(t *testing.T) {
		req := request("profile:read")
		req.ResponseType = ""
		_, err := f.service.Start(ctx, userID, req)
		require.ErrorIs(t, err, ErrUnsupportedResponseType)
	})

	t.Run("missing params", func(t *testing.T) {
		req := request("profile:read")
		req.ClientID = ""
		_, err := f.service.Start(ctx, userID, req)
		require.ErrorIs(t, err, ErrMissingParams)
	})

	t.Run("unknown client", func(t *testing.T) {
		req := request("profile:read")
		req.ClientID = "wyi_client_other"
		_, err := f.service.Start(ctx, userID, req)
		require.ErrorIs(t, err, ErrInvalidClient)
	})

	t.Run("redirect uri must match exactly", func(t *testing.T) {
		req := request("profile:read")
		req.RedirectURI = callbackURI + "/"
		_, err := f.service.Start(ctx, userID, req)
		require.ErrorIs(t, err, ErrInvalidClient)
	})

	t.Run("empty scope", func(t *testing.T) {
		_, err := f.service.Start(ctx, userID, request(""))
		require.ErrorIs(t, err, ErrInvalidScope)
	})

	t.Run("unknown scope", func(t *testing.T) {
		_, err := f.service.Start(ctx, userID, request("profile:read admin"))
		require.ErrorIs(t, err, ErrInvalidScope)
	})

	t.Run("scope outside client ceiling", func(t *testing.T) {
		_, err := f.clients.Update(ctx, f.client.ID, store.ClientUpdate{GrantedScopes: []string{scopes.ProfileRead}})
		require.NoError(t, err)
		_, err = f.service.Start(ctx, userID, request("profile:read email:read"))
		require.ErrorIs(t, err, ErrInvalidScope)
	})
}

func TestStartSkipsConsentWhenGrantCovers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.New()

	_, err := f.auths.Upsert(ctx, f.client.ID, userID, []string{scopes.ProfileRead, scopes.EmailRead})
	require.NoError(t, err)

	result, err := f.service.Start(ctx, userID, request("profile:read"))
	require.NoError(t, err)
	require.Equal(t, StateCodeIssued, result.State)
	require.Nil(t, result.Prompt)

	redirect, err := url.Parse(result.RedirectURL)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(redirect.Query().Get("code"), "wyi_code_"))
	require.Equal(t, "xyz", redirect.Query().Get("state"))
}

func TestStartStillPromptsWhenGrantNarrower(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.New()

	_, err := f.auths.Upsert(ctx, f.client.ID, userID, []string{scopes.ProfileRead})
	require.NoError(t, err)

	result, err := f.service.Start(ctx, userID, request("profile:read email:read"))
	require.NoError(t, err)
	require.Equal(t, StateAwaitingConsent, result.State)
}

func TestDecideDenyRedirectsWithAccessDenied(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.New()

	state, redirectURL, err := f.service.Decide(ctx, userID, request("profile:read"), false)
	require.NoError(t, err)
	require.Equal(t, StateDenied, state)

	redirect, err := url.Parse(redirectURL)
	require.NoError(t, err)
	require.Equal(t, "access_denied", redirect.Query().Get("error"))
	require.Equal(t, "xyz", redirect.Query().Get("state"))
	require.Empty(t, redirect.Query().Get("code"))

	// A denial records nothing.
	_, err = f.auths.Get(ctx, f.client.ID, userID)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestDecideAllowGrantsAndIssuesCode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.New()

	state, redirectURL, err := f.service.Decide(ctx, userID, request("profile:read email:read"), true)
	require.NoError(t, err)
	require.Equal(t, StateCodeIssued, state)

	redirect, err := url.Parse(redirectURL)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(redirect.Query().Get("code"), "wyi_code_"))

	auth, err := f.auths.Get(ctx, f.client.ID, userID)
	require.NoError(t, err)
	require.Equal(t, []string{"profile:read", "email:read"}, auth.GrantedScopes)

	client, err := f.clients.Get(ctx, f.client.ID)
	require.NoError(t, err)
	require.Equal(t, int64(1), client.Users)
}

func TestReApprovalReplacesScopesWithoutDoubleCounting(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.New()

	_, _, err := f.service.Decide(ctx, userID, request("profile:read email:read"), true)
	require.NoError(t, err)
	_, _, err = f.service.Decide(ctx, userID, request("profile:read"), true)
	require.NoError(t, err)

	auth, err := f.auths.Get(ctx, f.client.ID, userID)
	require.NoError(t, err)
	require.Equal(t, []string{"profile:read"}, auth.GrantedScopes)

	client, err := f.clients.Get(ctx, f.client.ID)
	require.NoError(t, err)
	require.Equal(t, int64(1), client.Users)
}

func TestStateOmittedWhenAbsent(t *testing.T) {
	f := newFixture(t)
	req := request("profile:read")
	req.State = ""

	_, redirectURL, err := f.service.Decide(context.Background(), uuid.New(), req, false)
	require.NoError(t, err)

	redirect, err := url.Parse(redirectURL)
	require.NoError(t, err)
	require.False(t, redirect.Query().Has("state"))
}

func TestInactiveClientRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Deactivation is a kill switch: in-flight authorize requests fail.
	f.client.IsActive = false
	require.NoError(t, f.clients.Delete(ctx, f.client.ID))
	require.NoError(t, f.clients.Create(ctx, f.client))

	_, err := f.service.Start(ctx, uuid.New(), request("profile:read"))
	require.ErrorIs(t, err, ErrInvalidClient)
}
