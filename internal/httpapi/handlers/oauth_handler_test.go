package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/whatsyourinfo/oauth-service/internal/config"
	"github.com/whatsyourinfo/oauth-service/internal/credentials"
	"github.com/whatsyourinfo/oauth-service/internal/scopes"
	"github.com/whatsyourinfo/oauth-service/internal/services/token"
	"github.com/whatsyourinfo/oauth-service/internal/store"
	"github.com/whatsyourinfo/oauth-service/internal/store/memory"
	"go.uber.org/zap"
)

const callbackURI = "https://app.example/callback"

func newTokenHandler(t *testing.T) (*OAuthHandler, *store.Client, *memory.CodeStore) {
	t.Helper()
	clients := memory.NewClientStore()
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
	}
	require.NoError(t, clients.Create(context.Background(), client))

	tokenSvc := token.New(token.Dependencies{
		Clients:      clients,
		Codes:        codes,
		Tokens:       memory.NewTokenStore(),
		AccessTokens: memory.NewAccessTokenStore(),
		Config: config.OAuthConfig{
			CodeTTL:         10 * time.Minute,
			AccessTokenTTL:  time.Hour,
			RefreshTokenTTL: 2160 * time.Hour,
		},
		Logger: zap.NewNop(),
	})
	return NewOAuthHandler(nil, tokenSvc, zap.NewNop()), client, codes
}

func mintCode(t *testing.T, codes *memory.CodeStore, client *store.Client) string {
	t.Helper()
	code := "wyi_code_" + uuid.NewString()
	now := time.Now().UTC()
	require.NoError(t, codes.Create(context.Background(), &store.AuthorizationCode{
		CodeHash:    credentials.Hash(code),
		ClientID:    client.ID,
		UserID:      uuid.New(),
		RedirectURI: callbackURI,
		Scope:       "profile:read",
		FamilyID:    uuid.New(),
		ExpiresAt:   now.Add(10 * time.Minute),
		CreatedAt:   now,
	}))
	return code
}

func TestTokenEndpointAcceptsFormBody(t *testing.T) {
	handler, client, codes := newTokenHandler(t)
	code := mintCode(t, codes, client)

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("client_id", client.ClientID)
	form.Set("client_secret", client.ClientSecret)
	form.Set("code", code)
	form.Set("redirect_uri", callbackURI)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/oauth/token", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()

	handler.Token(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	var resp token.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "Bearer", resp.TokenType)
	require.Equal(t, 3600, resp.ExpiresIn)
	require.Equal(t, "profile:read", resp.Scope)
}

func TestTokenEndpointAcceptsJSONBody(t *testing.T) {
	handler, client, codes := newTokenHandler(t)
	code := mintCode(t, codes, client)

	body, err := json.Marshal(map[string]string{
		"grant_type":    "authorization_code",
		"client_id":     client.ClientID,
		"client_secret": client.ClientSecret,
		"code":          code,
		"redirect_uri":  callbackURI,
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/oauth/token", strings.NewReader(string(body)))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	handler.Token(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestTokenEndpointErrorShapes(t *testing.T) {
	handler, client, _ := newTokenHandler(t)

	cases := []struct {
		name      string
		form      map[string]string
		wantError string
	}{
		{
			name:      "unsupported grant type",
			form:      map[string]string{"grant_type": "password"},
			wantError: "unsupported_grant_type",
		},
		{
			name:      "missing parameters",
			form:      map[string]string{"grant_type": "authorization_code"},
			wantError: "invalid_request",
		},
		{
			name: "bad code",
			form: map[string]string{
				"grant_type":    "authorization_code",
				"client_id":     client.ClientID,
				"client_secret": client.ClientSecret,
				"code":          "wyi_code_bogus",
				"redirect_uri":  callbackURI,
			},
			wantError: "invalid_grant",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			form := url.Values{}
			for k, v := range tc.form {
				form.Set(k, v)
			}
			req := httptest.NewRequest(http.MethodPost, "/api/v1/oauth/token", strings.NewReader(form.Encode()))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			rec := httptest.NewRecorder()

			handler.Token(rec, req)
			require.Equal(t, http.StatusBadRequest, rec.Code)

			var resp map[string]any
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			require.Equal(t, tc.wantError, resp["error"])
		})
	}
}
