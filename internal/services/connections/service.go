package connections

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/whatsyourinfo/oauth-service/internal/audit"
	"github.com/whatsyourinfo/oauth-service/internal/scopes"
	"github.com/whatsyourinfo/oauth-service/internal/store"
	"go.uber.org/zap"
)

// ErrNotFound is returned when the user holds no grant for the client.
var ErrNotFound = errors.New("connection not found")

// GrantedScope is one scope row in a connection listing.
type GrantedScope struct {
	ID          string `json:"id"`
	Description string `json:"description"`
}

// Connection describes one client the user has authorized.
type Connection struct {
	ClientID      string         `json:"client_id"`
	Name          string         `json:"name"`
	Description   string         `json:"description"`
	AppLogo       string         `json:"app_logo,omitempty"`
	HomepageURL   string         `json:"homepage_url,omitempty"`
	Verified      bool           `json:"verified"`
	GrantedScopes []GrantedScope `json:"granted_scopes"`
	AuthorizedAt  time.Time      `json:"authorized_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// Service lists and revokes a user's authorized connections.
type Service struct {
	clients store.ClientStore
	auths   store.AuthorizationStore
	tokens  store.TokenStore
	auditor *audit.Logger
	logger  *zap.Logger
}

// Dependencies aggregates constructor inputs.
type Dependencies struct {
	Clients store.ClientStore
	Auths   store.AuthorizationStore
	Tokens  store.TokenStore
	Auditor *audit.Logger
	Logger  *zap.Logger
}

// New initialises the connections service.
func New(deps Dependencies) *Service {
	return &Service{
		clients: deps.Clients,
		auths:   deps.Auths,
		tokens:  deps.Tokens,
		auditor: deps.Auditor,
		logger:  deps.Logger,
	}
}

// List returns the user's grants joined with each client's public card.
// Grants whose client has since been deleted are skipped.
func (s *Service) List(ctx context.Context, userID uuid.UUID) ([]Connection, error) {
	auths, err := s.auths.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list authorizations: %w", err)
	}

	out := make([]Connection, 0, len(auths))
	for _, auth := range auths {
		client, err := s.clients.Get(ctx, auth.ClientID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return nil, fmt.Errorf("load client: %w", err)
		}
		granted := make([]GrantedScope, 0, len(auth.GrantedScopes))
		for _, id := range auth.GrantedScopes {
			granted = append(granted, GrantedScope{ID: id, Description: scopes.Describe(id)})
		}
		out = append(out, Connection{
			ClientID:      client.ClientID,
			Name:          client.Name,
			Description:   client.Description,
			AppLogo:       client.AppLogo,
			HomepageURL:   client.HomepageURL,
			Verified:      client.OpByWYI,
			GrantedScopes: granted,
			AuthorizedAt:  auth.CreatedAt,
			UpdatedAt:     auth.UpdatedAt,
		})
	}
	return out, nil
}

// Revoke removes the user's grant for the client identified by its public
// client id and revokes every refresh token the pair holds. Live access
// tokens age out on their own TTL.
func (s *Service) Revoke(ctx context.Context, userID uuid.UUID, clientID string) error {
	client, err := s.clients.GetByClientID(ctx, clientID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("load client: %w", err)
	}

	deleted, err := s.auths.Delete(ctx, client.ID, userID)
	if err != nil {
		return fmt.Errorf("delete authorization: %w", err)
	}
	if !deleted {
		return ErrNotFound
	}

	if err := s.tokens.RevokeByClientUser(ctx, client.ID, userID); err != nil {
		return fmt.Errorf("revoke tokens: %w", err)
	}
	if err := s.clients.AdjustUsers(ctx, client.ID, -1); err != nil {
		s.logger.Warn("failed to decrement client user count",
			zap.String("client_id", clientID), zap.Error(err))
	}

	s.auditor.Record(ctx, audit.Entry{
		Action:   "access.revoked",
		ClientID: &client.ID,
		UserID:   &userID,
	})
	return nil
}
