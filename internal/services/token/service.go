package token

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/whatsyourinfo/oauth-service/internal/audit"
	"github.com/whatsyourinfo/oauth-service/internal/config"
	"github.com/whatsyourinfo/oauth-service/internal/credentials"
	"github.com/whatsyourinfo/oauth-service/internal/store"
	"go.uber.org/zap"
)

// Error codes surfaced verbatim on the token endpoint. invalid_grant is
// deliberately generic: an unknown client, a wrong secret, and a bad code
// all look identical to the caller.
var (
	ErrInvalidRequest       = errors.New("invalid_request")
	ErrInvalidGrant         = errors.New("invalid_grant")
	ErrUnsupportedGrantType = errors.New("unsupported_grant_type")
)

// ExchangeInput is the token endpoint's request body.
type ExchangeInput struct {
	GrantType    string
	ClientID     string
	ClientSecret string
	Code         string
	RedirectURI  string
	RefreshToken string
}

// Response is the successful token endpoint payload.
type Response struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	Scope        string `json:"scope"`
}

// Service exchanges authorization codes and refresh tokens for token pairs.
type Service struct {
	clients      store.ClientStore
	codes        store.CodeStore
	tokens       store.TokenStore
	accessTokens store.AccessTokenStore
	cfg          config.OAuthConfig
	auditor      *audit.Logger
	logger       *zap.Logger
}

// Dependencies aggregates constructor inputs.
type Dependencies struct {
	Clients      store.ClientStore
	Codes        store.CodeStore
	Tokens       store.TokenStore
	AccessTokens store.AccessTokenStore
	Config       config.OAuthConfig
	Auditor      *audit.Logger
	Logger       *zap.Logger
}

// New initialises the token service.
func New(deps Dependencies) *Service {
	return &Service{
		clients:      deps.Clients,
		codes:        deps.Codes,
		tokens:       deps.Tokens,
		accessTokens: deps.AccessTokens,
		cfg:          deps.Config,
		auditor:      deps.Auditor,
		logger:       deps.Logger,
	}
}

// Exchange dispatches on grant_type. Both grants are one-shot: nothing here
// retries, and there is no partial success.
func (s *Service) Exchange(ctx context.Context, in ExchangeInput) (*Response, error) {
	switch in.GrantType {
	case "authorization_code":
		return s.exchangeCode(ctx, in)
	case "refresh_token":
		return s.exchangeRefresh(ctx, in)
	case "":
		return nil, ErrInvalidRequest
	default:
		return nil, ErrUnsupportedGrantType
	}
}

func (s *Service) exchangeCode(ctx context.Context, in ExchangeInput) (*Response, error) {
	if in.ClientID == "" || in.ClientSecret == "" || in.Code == "" || in.RedirectURI == "" {
		return nil, ErrInvalidRequest
	}

	client, err := s.authenticateClient(ctx, in.ClientID, in.ClientSecret)
	if err != nil {
		return nil, err
	}

	code, err := s.codes.Consume(ctx, credentials.Hash(in.Code))
	if err != nil {
		if errors.Is(err, store.ErrReplayed) {
			// Code interception defense: a replayed code poisons every
			// token descended from its first exchange.
			if code != nil {
				if revokeErr := s.tokens.RevokeFamily(ctx, code.FamilyID); revokeErr != nil {
					s.logger.Error("failed to revoke token family on code replay", zap.Error(revokeErr))
				}
				s.auditor.Record(ctx, audit.Entry{
					Action:   "code.replayed",
					ClientID: &code.ClientID,
					UserID:   &code.UserID,
				})
			}
			return nil, ErrInvalidGrant
		}
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidGrant
		}
		return nil, fmt.Errorf("consume code: %w", err)
	}

	// The code stays consumed even when these checks fail: single use means
	// single attempt.
	if code.ClientID != client.ID || time.Now().After(code.ExpiresAt) || code.RedirectURI != in.RedirectURI {
		return nil, ErrInvalidGrant
	}

	pair, err := s.issuePair(ctx, code.ClientID, code.UserID, code.Scope, code.FamilyID)
	if err != nil {
		return nil, err
	}

	s.auditor.Record(ctx, audit.Entry{
		Action:   "code.exchanged",
		ClientID: &code.ClientID,
		UserID:   &code.UserID,
		Context:  map[string]any{"scope": code.Scope},
	})
	return pair, nil
}

func (s *Service) exchangeRefresh(ctx context.Context, in ExchangeInput) (*Response, error) {
	if in.ClientID == "" || in.ClientSecret == "" || in.RefreshToken == "" {
		return nil, ErrInvalidRequest
	}

	client, err := s.authenticateClient(ctx, in.ClientID, in.ClientSecret)
	if err != nil {
		return nil, err
	}

	successor, err := credentials.NewRefreshToken()
	if err != nil {
		return nil, fmt.Errorf("issue refresh token: %w", err)
	}

	presented, err := s.tokens.Rotate(ctx,
		credentials.Hash(in.RefreshToken),
		client.ID,
		credentials.Hash(successor),
		time.Now().UTC().Add(s.cfg.RefreshTokenTTL),
	)
	if err != nil {
		if errors.Is(err, store.ErrReplayed) {
			// Replay of a rotated token signals theft: kill the family.
			if presented != nil {
				if revokeErr := s.tokens.RevokeFamily(ctx, presented.FamilyID); revokeErr != nil {
					s.logger.Error("failed to revoke token family on refresh replay", zap.Error(revokeErr))
				}
				s.auditor.Record(ctx, audit.Entry{
					Action:   "token.replayed",
					ClientID: &presented.ClientID,
					UserID:   &presented.UserID,
				})
			}
			return nil, ErrInvalidGrant
		}
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidGrant
		}
		return nil, fmt.Errorf("rotate refresh token: %w", err)
	}

	accessToken, err := s.issueAccessToken(ctx, presented.UserID, presented.ClientID, presented.Scope)
	if err != nil {
		return nil, err
	}

	s.auditor.Record(ctx, audit.Entry{
		Action:   "token.refreshed",
		ClientID: &presented.ClientID,
		UserID:   &presented.UserID,
	})
	return &Response{
		AccessToken:  accessToken,
		TokenType:    "Bearer",
		ExpiresIn:    int(s.cfg.AccessTokenTTL.Seconds()),
		RefreshToken: successor,
		Scope:        presented.Scope,
	}, nil
}

func (s *Service) authenticateClient(ctx context.Context, clientID, clientSecret string) (*store.Client, error) {
	client, err := s.clients.GetByClientID(ctx, clientID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidGrant
		}
		return nil, fmt.Errorf("load client: %w", err)
	}
	if subtle.ConstantTimeCompare([]byte(client.ClientSecret), []byte(clientSecret)) != 1 {
		return nil, ErrInvalidGrant
	}
	if !client.IsActive {
		return nil, ErrInvalidGrant
	}
	return client, nil
}

func (s *Service) issuePair(ctx context.Context, clientID, userID uuid.UUID, scope string, familyID uuid.UUID) (*Response, error) {
	accessToken, err := s.issueAccessToken(ctx, userID, clientID, scope)
	if err != nil {
		return nil, err
	}

	refreshToken, err := credentials.NewRefreshToken()
	if err != nil {
		return nil, fmt.Errorf("issue refresh token: %w", err)
	}
	now := time.Now().UTC()
	if err := s.tokens.Create(ctx, &store.RefreshToken{
		TokenHash: credentials.Hash(refreshToken),
		ClientID:  clientID,
		UserID:    userID,
		Scope:     scope,
		FamilyID:  familyID,
		ExpiresAt: now.Add(s.cfg.RefreshTokenTTL),
		CreatedAt: now,
	}); err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}

	return &Response{
		AccessToken:  accessToken,
		TokenType:    "Bearer",
		ExpiresIn:    int(s.cfg.AccessTokenTTL.Seconds()),
		RefreshToken: refreshToken,
		Scope:        scope,
	}, nil
}

func (s *Service) issueAccessToken(ctx context.Context, userID, clientID uuid.UUID, scope string) (string, error) {
	accessToken, err := credentials.NewAccessToken()
	if err != nil {
		return "", fmt.Errorf("issue access token: %w", err)
	}
	record := store.AccessTokenRecord{UserID: userID, ClientID: clientID, Scope: scope}
	if err := s.accessTokens.Save(ctx, credentials.Hash(accessToken), record, s.cfg.AccessTokenTTL); err != nil {
		return "", fmt.Errorf("store access token: %w", err)
	}
	return accessToken, nil
}
