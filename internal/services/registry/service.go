package registry

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/whatsyourinfo/oauth-service/internal/audit"
	"github.com/whatsyourinfo/oauth-service/internal/credentials"
	"github.com/whatsyourinfo/oauth-service/internal/scopes"
	"github.com/whatsyourinfo/oauth-service/internal/store"
	"go.uber.org/zap"
)

var (
	// ErrNotFound covers both missing clients and clients owned by someone
	// else: non-owners never learn whether a client exists.
	ErrNotFound = errors.New("oauth client not found")
)

// ValidationError reports field-level input problems. The detail is only
// surfaced on the authenticated developer endpoints.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %d field(s)", len(e.Fields))
}

const (
	maxNameLength        = 50
	maxDescriptionLength = 300
)

// Service implements the OAuth client registry.
type Service struct {
	clients store.ClientStore
	auths   store.AuthorizationStore
	users   store.UserStore
	tokens  store.TokenStore
	auditor *audit.Logger
	logger  *zap.Logger
}

// Dependencies aggregates constructor inputs.
type Dependencies struct {
	Clients store.ClientStore
	Auths   store.AuthorizationStore
	Users   store.UserStore
	Tokens  store.TokenStore
	Auditor *audit.Logger
	Logger  *zap.Logger
}

// New initialises the registry service.
func New(deps Dependencies) *Service {
	return &Service{
		clients: deps.Clients,
		auths:   deps.Auths,
		users:   deps.Users,
		tokens:  deps.Tokens,
		auditor: deps.Auditor,
		logger:  deps.Logger,
	}
}

// CreateInput captures a registration payload.
type CreateInput struct {
	Name          string
	Description   string
	AppLogo       string
	HomepageURL   string
	RedirectURIs  []string
	GrantedScopes []string
}

// ClientDetail is the owner-facing view of a client, including the
// privacy-gated list of end-users who authorized it.
type ClientDetail struct {
	Client          store.Client
	AuthorizedUsers []AuthorizedUser
}

// PublicClient is the unauthenticated client card: descriptive fields only.
type PublicClient struct {
	ClientID    string    `json:"client_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	AppLogo     string    `json:"app_logo"`
	HomepageURL string    `json:"homepage_url"`
	OpByWYI     bool      `json:"op_by_wyi"`
	Users       int64     `json:"users"`
	CreatedAt   time.Time `json:"created_at"`
}

// Create registers a new client for the owner. The secret is returned in
// full; it is shown at creation and on explicit owner reads only.
func (s *Service) Create(ctx context.Context, ownerID uuid.UUID, in CreateInput) (*store.Client, error) {
	if err := validateCreate(in); err != nil {
		return nil, err
	}

	clientID, err := credentials.NewClientID()
	if err != nil {
		return nil, fmt.Errorf("issue client id: %w", err)
	}
	clientSecret, err := credentials.NewClientSecret()
	if err != nil {
		return nil, fmt.Errorf("issue client secret: %w", err)
	}

	grantedScopes := in.GrantedScopes
	if len(grantedScopes) == 0 {
		grantedScopes = scopes.All()
	}

	now := time.Now().UTC()
	client := &store.Client{
		ID:            uuid.New(),
		ClientID:      clientID,
		ClientSecret:  clientSecret,
		OwnerID:       ownerID,
		Name:          in.Name,
		Description:   in.Description,
		AppLogo:       in.AppLogo,
		HomepageURL:   in.HomepageURL,
		RedirectURIs:  in.RedirectURIs,
		GrantedScopes: grantedScopes,
		IsActive:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.clients.Create(ctx, client); err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}

	s.auditor.Record(ctx, audit.Entry{
		Action:   "client.created",
		ClientID: &client.ID,
		UserID:   &ownerID,
		Context:  map[string]any{"client_id": client.ClientID, "name": client.Name},
	})
	return client, nil
}

// Get returns the owner's view of a client, with the authorized-user list
// projected through each authorization's own scope set.
func (s *Service) Get(ctx context.Context, clientID string, requesterID uuid.UUID) (*ClientDetail, error) {
	client, err := s.ownedClient(ctx, clientID, requesterID)
	if err != nil {
		return nil, err
	}

	auths, err := s.auths.ListByClient(ctx, client.ID)
	if err != nil {
		return nil, fmt.Errorf("list client authorizations: %w", err)
	}

	userIDs := make([]uuid.UUID, 0, len(auths))
	for _, a := range auths {
		userIDs = append(userIDs, a.UserID)
	}
	users, err := s.users.GetBatch(ctx, userIDs)
	if err != nil {
		return nil, fmt.Errorf("load authorizing users: %w", err)
	}

	authorized := make([]AuthorizedUser, 0, len(auths))
	for _, a := range auths {
		authorized = append(authorized, ProjectUser(users[a.UserID], a))
	}

	return &ClientDetail{Client: *client, AuthorizedUsers: authorized}, nil
}

// GetPublic returns the descriptive client card shown on consent and public
// pages. It never carries the secret, owner, or internal flags.
func (s *Service) GetPublic(ctx context.Context, clientID string) (*PublicClient, error) {
	client, err := s.clients.GetByClientID(ctx, clientID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load client: %w", err)
	}
	return &PublicClient{
		ClientID:    client.ClientID,
		Name:        client.Name,
		Description: client.Description,
		AppLogo:     client.AppLogo,
		HomepageURL: client.HomepageURL,
		OpByWYI:     client.OpByWYI,
		Users:       client.Users,
		CreatedAt:   client.CreatedAt,
	}, nil
}

// List returns the owner's clients, newest first.
func (s *Service) List(ctx context.Context, ownerID uuid.UUID) ([]store.Client, error) {
	clients, err := s.clients.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}
	return clients, nil
}

// Update applies a partial edit. Only supplied fields change; at least one
// field is required.
func (s *Service) Update(ctx context.Context, clientID string, requesterID uuid.UUID, update store.ClientUpdate) (*store.Client, error) {
	if update.Empty() {
		return nil, &ValidationError{Fields: map[string]string{"body": "at least one field is required"}}
	}
	if err := validateUpdate(update); err != nil {
		return nil, err
	}

	client, err := s.ownedClient(ctx, clientID, requesterID)
	if err != nil {
		return nil, err
	}

	updated, err := s.clients.Update(ctx, client.ID, update)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("update client: %w", err)
	}

	s.auditor.Record(ctx, audit.Entry{
		Action:   "client.updated",
		ClientID: &client.ID,
		UserID:   &requesterID,
	})
	return updated, nil
}

// Delete removes a client and cascades: consent grants are deleted and every
// refresh token issued to the client is revoked.
func (s *Service) Delete(ctx context.Context, clientID string, requesterID uuid.UUID) error {
	client, err := s.ownedClient(ctx, clientID, requesterID)
	if err != nil {
		return err
	}

	if err := s.tokens.RevokeByClient(ctx, client.ID); err != nil {
		return fmt.Errorf("revoke client tokens: %w", err)
	}
	if err := s.auths.DeleteByClient(ctx, client.ID); err != nil {
		return fmt.Errorf("delete client authorizations: %w", err)
	}
	if err := s.clients.Delete(ctx, client.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("delete client: %w", err)
	}

	s.auditor.Record(ctx, audit.Entry{
		Action:   "client.deleted",
		ClientID: &client.ID,
		UserID:   &requesterID,
		Context:  map[string]any{"client_id": client.ClientID},
	})
	return nil
}

func (s *Service) ownedClient(ctx context.Context, clientID string, requesterID uuid.UUID) (*store.Client, error) {
	client, err := s.clients.GetByClientID(ctx, clientID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load client: %w", err)
	}
	if client.OwnerID != requesterID {
		return nil, ErrNotFound
	}
	return client, nil
}

func validateCreate(in CreateInput) error {
	fields := map[string]string{}
	if len(in.Name) == 0 || len(in.Name) > maxNameLength {
		fields["name"] = fmt.Sprintf("name must be 1-%d characters", maxNameLength)
	}
	if len(in.Description) > maxDescriptionLength {
		fields["description"] = fmt.Sprintf("description must be at most %d characters", maxDescriptionLength)
	}
	if in.AppLogo != "" && !validHTTPURL(in.AppLogo) {
		fields["appLogo"] = "must be a valid absolute URL"
	}
	if in.HomepageURL != "" && !validHTTPURL(in.HomepageURL) {
		fields["homepageUrl"] = "must be a valid absolute URL"
	}
	validateRedirectURIs(in.RedirectURIs, fields)
	validateScopes(in.GrantedScopes, fields)
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

func validateUpdate(update store.ClientUpdate) error {
	fields := map[string]string{}
	if update.Name != nil && (len(*update.Name) == 0 || len(*update.Name) > maxNameLength) {
		fields["name"] = fmt.Sprintf("name must be 1-%d characters", maxNameLength)
	}
	if update.Description != nil && len(*update.Description) > maxDescriptionLength {
		fields["description"] = fmt.Sprintf("description must be at most %d characters", maxDescriptionLength)
	}
	if update.AppLogo != nil && *update.AppLogo != "" && !validHTTPURL(*update.AppLogo) {
		fields["appLogo"] = "must be a valid absolute URL"
	}
	if update.HomepageURL != nil && *update.HomepageURL != "" && !validHTTPURL(*update.HomepageURL) {
		fields["homepageUrl"] = "must be a valid absolute URL"
	}
	if update.RedirectURIs != nil {
		validateRedirectURIs(update.RedirectURIs, fields)
	}
	if update.GrantedScopes != nil {
		validateScopes(update.GrantedScopes, fields)
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

func validateRedirectURIs(uris []string, fields map[string]string) {
	if len(uris) == 0 {
		fields["redirectUris"] = "at least one redirect URI is required"
		return
	}
	for _, uri := range uris {
		if !validHTTPURL(uri) {
			fields["redirectUris"] = fmt.Sprintf("%q is not a valid absolute URL", uri)
			return
		}
	}
}

func validateScopes(ids []string, fields map[string]string) {
	for _, id := range ids {
		if !scopes.Valid(id) {
			fields["grantedScopes"] = fmt.Sprintf("unknown scope %q", id)
			return
		}
	}
}

func validHTTPURL(raw string) bool {
	parsed, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (parsed.Scheme == "http" || parsed.Scheme == "https") && parsed.Host != ""
}
