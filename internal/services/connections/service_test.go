package connections

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/whatsyourinfo/oauth-service/internal/scopes"
	"github.com/whatsyourinfo/oauth-service/internal/store"
	"github.com/whatsyourinfo/oauth-service/internal/store/memory"
	"go.uber.org/zap"
)

type fixture struct {
	service *Service
	clients *memory.ClientStore
	auths   *memory.AuthorizationStore
	tokens  *memory.TokenStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clients := memory.NewClientStore()
	auths := memory.NewAuthorizationStore()
	tokens := memory.NewTokenStore()
	service := New(Dependencies{
		Clients: clients,
		Auths:   auths,
		Tokens:  tokens,
		Logger:  zap.NewNop(),
	})
	return &fixture{service: service, clients: clients, auths: auths, tokens: tokens}
}

func (f *fixture) addClient(t *testing.T, publicID, name string) *store.Client {
	t.Helper()
	client := &store.Client{
		ID:            uuid.New(),
		ClientID:      publicID,
		ClientSecret:  "wyi_secret_" + publicID,
		OwnerID:       uuid.New(),
		Name:          name,
		RedirectURIs:  []string{"https://app.example/callback"},
		GrantedScopes: scopes.All(),
		IsActive:      true,
		Users:         1,
	}
	require.NoError(t, f.clients.Create(context.Background(), client))
	return client
}

func TestListJoinsGrantsWithClientCards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.New()

	linkroll := f.addClient(t, "wyi_client_linkroll", "Linkroll")
	crm := f.addClient(t, "wyi_client_crm", "CRM")

	_, err := f.auths.Upsert(ctx, linkroll.ID, userID, []string{scopes.ProfileRead, scopes.EmailRead})
	require.NoError(t, err)
	_, err = f.auths.Upsert(ctx, crm.ID, userID, []string{scopes.LinksRead})
	require.NoError(t, err)

	conns, err := f.service.List(ctx, userID)
	require.NoError(t, err)
	require.Len(t, conns, 2)

	byName := make(map[string]Connection, 2)
	for _, c := range conns {
		byName[c.Name] = c
	}
	require.Len(t, byName["Linkroll"].GrantedScopes, 2)
	require.Equal(t, scopes.ProfileRead, byName["Linkroll"].GrantedScopes[0].ID)
	require.NotEmpty(t, byName["Linkroll"].GrantedScopes[0].Description)
	require.Equal(t, "wyi_client_crm", byName["CRM"].ClientID)
}

func TestListSkipsDeletedClients(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.New()

	client := f.addClient(t, "wyi_client_gone", "Gone")
	_, err := f.auths.Upsert(ctx, client.ID, userID, []string{scopes.ProfileRead})
	require.NoError(t, err)
	require.NoError(t, f.clients.Delete(ctx, client.ID))

	conns, err := f.service.List(ctx, userID)
	require.NoError(t, err)
	require.Empty(t, conns)
}

func TestRevokeDeletesGrantAndTokens(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.New()

	client := f.addClient(t, "wyi_client_linkroll", "Linkroll")
	_, err := f.auths.Upsert(ctx, client.ID, userID, []string{scopes.ProfileRead})
	require.NoError(t, err)
	require.NoError(t, f.tokens.Create(ctx, &store.RefreshToken{
		TokenHash: "hash",
		ClientID:  client.ID,
		UserID:    userID,
		FamilyID:  uuid.New(),
		ExpiresAt: time.Now().Add(time.Hour),
	}))

	require.NoError(t, f.service.Revoke(ctx, userID, client.ClientID))

	_, err = f.auths.Get(ctx, client.ID, userID)
	require.ErrorIs(t, err, store.ErrNotFound)

	stored, ok := f.tokens.Get("hash")
	require.True(t, ok)
	require.NotNil(t, stored.RevokedAt)

	updated, err := f.clients.Get(ctx, client.ID)
	require.NoError(t, err)
	require.Equal(t, int64(0), updated.Users)
}

func TestRevokeLeavesOtherUsersTokens(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.New()
	otherID := uuid.New()

	client := f.addClient(t, "wyi_client_linkroll", "Linkroll")
	_, err := f.auths.Upsert(ctx, client.ID, userID, []string{scopes.ProfileRead})
	require.NoError(t, err)
	_, err = f.auths.Upsert(ctx, client.ID, otherID, []string{scopes.ProfileRead})
	require.NoError(t, err)
	require.NoError(t, f.tokens.Create(ctx, &store.RefreshToken{
		TokenHash: "other-hash",
		ClientID:  client.ID,
		UserID:    otherID,
		FamilyID:  uuid.New(),
		ExpiresAt: time.Now().Add(time.Hour),
	}))

	require.NoError(t, f.service.Revoke(ctx, userID, client.ClientID))

	stored, ok := f.tokens.Get("other-hash")
	require.True(t, ok)
	require.Nil(t, stored.RevokedAt)

	_, err = f.auths.Get(ctx, client.ID, otherID)
	require.NoError(t, err)
}

func TestRevokeWithoutGrant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	client := f.addClient(t, "wyi_client_linkroll", "Linkroll")

	require.ErrorIs(t, f.service.Revoke(ctx, uuid.New(), client.ClientID), ErrNotFound)
	require.ErrorIs(t, f.service.Revoke(ctx, uuid.New(), "wyi_client_missing"), ErrNotFound)
}
