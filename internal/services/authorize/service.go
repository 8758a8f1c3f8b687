package authorize

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/whatsyourinfo/oauth-service/internal/audit"
	"github.com/whatsyourinfo/oauth-service/internal/config"
	"github.com/whatsyourinfo/oauth-service/internal/credentials"
	"github.com/whatsyourinfo/oauth-service/internal/scopes"
	"github.com/whatsyourinfo/oauth-service/internal/store"
	"go.uber.org/zap"
)

// Validation failures on the authorize leg are rendered in-process and never
// redirected: the redirect target itself is unverified at that point.
var (
	ErrUnsupportedResponseType = errors.New("unsupported response_type, must be \"code\"")
	ErrMissingParams           = errors.New("client_id and redirect_uri are required")
	ErrInvalidClient           = errors.New("invalid client_id or redirect_uri")
	ErrInvalidScope            = errors.New("invalid or unauthorized scope")
)

// Flow states.
type State string

const (
	StateAwaitingConsent State = "AWAITING_CONSENT"
	StateCodeIssued      State = "CODE_ISSUED"
	StateDenied          State = "DENIED"
)

// Request carries the query parameters of an authorize request. The redirect
// URI validated here is captured verbatim into the issued code, so client
// edits mid-flow never affect an in-flight exchange.
type Request struct {
	ClientID     string
	RedirectURI  string
	ResponseType string
	Scope        string
	State        string
}

// ScopeDisclosure is one consent-screen row.
type ScopeDisclosure struct {
	ID          string `json:"id"`
	Description string `json:"description"`
}

// ConsentPrompt is everything the consent screen needs to render.
type ConsentPrompt struct {
	ClientID    string            `json:"client_id"`
	Name        string            `json:"name"`
	AppLogo     string            `json:"app_logo"`
	HomepageURL string            `json:"homepage_url"`
	Verified    bool              `json:"verified"`
	Users       int64             `json:"users"`
	Scopes      []ScopeDisclosure `json:"scopes"`
	RedirectURI string            `json:"redirect_uri"`
	Scope       string            `json:"scope"`
	State       string            `json:"state"`
}

// StartResult is either a consent prompt or, when a prior grant already
// covers the request, an immediate redirect carrying a fresh code.
type StartResult struct {
	State       State
	Prompt      *ConsentPrompt
	RedirectURL string
}

// Service orchestrates the redirect-based consent flow.
type Service struct {
	clients store.ClientStore
	auths   store.AuthorizationStore
	codes   store.CodeStore
	cfg     config.OAuthConfig
	auditor *audit.Logger
	logger  *zap.Logger
}

// Dependencies aggregates constructor inputs.
type Dependencies struct {
	Clients store.ClientStore
	Auths   store.AuthorizationStore
	Codes   store.CodeStore
	Config  config.OAuthConfig
	Auditor *audit.Logger
	Logger  *zap.Logger
}

// New initialises the authorization flow service.
func New(deps Dependencies) *Service {
	return &Service{
		clients: deps.Clients,
		auths:   deps.Auths,
		codes:   deps.Codes,
		cfg:     deps.Config,
		auditor: deps.Auditor,
		logger:  deps.Logger,
	}
}

// Start validates an inbound authorize request for the session user. When an
// existing authorization already covers every requested scope the consent
// screen is skipped and a code is issued directly.
func (s *Service) Start(ctx context.Context, userID uuid.UUID, req Request) (*StartResult, error) {
	// The inbound leg requires response_type=code explicitly; a consent
	// decision body carries no response_type and is exempt.
	if req.ResponseType != "code" {
		return nil, ErrUnsupportedResponseType
	}
	client, requested, err := s.validate(ctx, req)
	if err != nil {
		return nil, err
	}

	existing, err := s.auths.Get(ctx, client.ID, userID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("load authorization: %w", err)
	}
	if existing != nil && scopes.CoveredBy(requested, existing.GrantedScopes) {
		redirect, err := s.issueCode(ctx, client, userID, req, requested)
		if err != nil {
			return nil, err
		}
		return &StartResult{State: StateCodeIssued, RedirectURL: redirect}, nil
	}

	disclosures := make([]ScopeDisclosure, 0, len(requested))
	for _, id := range requested {
		disclosures = append(disclosures, ScopeDisclosure{ID: id, Description: scopes.Describe(id)})
	}

	return &StartResult{
		State: StateAwaitingConsent,
		Prompt: &ConsentPrompt{
			ClientID:    client.ClientID,
			Name:        client.Name,
			AppLogo:     client.AppLogo,
			HomepageURL: client.HomepageURL,
			Verified:    client.OpByWYI,
			Users:       client.Users,
			Scopes:      disclosures,
			RedirectURI: req.RedirectURI,
			Scope:       scopes.Join(requested),
			State:       req.State,
		},
	}, nil
}

// Decide records the user's consent decision and returns the URL the browser
// should navigate to next.
func (s *Service) Decide(ctx context.Context, userID uuid.UUID, req Request, allow bool) (State, string, error) {
	client, requested, err := s.validate(ctx, req)
	if err != nil {
		return "", "", err
	}

	if !allow {
		s.auditor.Record(ctx, audit.Entry{
			Action:   "consent.denied",
			ClientID: &client.ID,
			UserID:   &userID,
		})
		redirect, err := buildRedirect(req.RedirectURI, map[string]string{"error": "access_denied"}, req.State)
		if err != nil {
			return "", "", err
		}
		return StateDenied, redirect, nil
	}

	// Approval is all-or-nothing over the requested scope list; re-approval
	// replaces the stored scope set rather than accumulating.
	created, err := s.auths.Upsert(ctx, client.ID, userID, requested)
	if err != nil {
		return "", "", fmt.Errorf("persist authorization: %w", err)
	}
	if created {
		if err := s.clients.AdjustUsers(ctx, client.ID, 1); err != nil {
			s.logger.Warn("failed to increment client user counter", zap.Error(err))
		}
	}

	s.auditor.Record(ctx, audit.Entry{
		Action:   "consent.granted",
		ClientID: &client.ID,
		UserID:   &userID,
		Context:  map[string]any{"scope": scopes.Join(requested), "first_time": created},
	})

	redirect, err := s.issueCode(ctx, client, userID, req, requested)
	if err != nil {
		return "", "", err
	}
	return StateCodeIssued, redirect, nil
}

// validate performs the pre-consent checks shared by both legs of the flow.
func (s *Service) validate(ctx context.Context, req Request) (*store.Client, []string, error) {
	if req.ResponseType != "" && req.ResponseType != "code" {
		return nil, nil, ErrUnsupportedResponseType
	}
	if req.ClientID == "" || req.RedirectURI == "" {
		return nil, nil, ErrMissingParams
	}

	client, err := s.clients.GetByClientID(ctx, req.ClientID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, ErrInvalidClient
		}
		return nil, nil, fmt.Errorf("load client: %w", err)
	}
	if !client.IsActive {
		return nil, nil, ErrInvalidClient
	}

	// Exact string equality is the anti-open-redirect control. No prefix or
	// normalization matching.
	if !containsString(client.RedirectURIs, req.RedirectURI) {
		return nil, nil, ErrInvalidClient
	}

	requested := scopes.Parse(req.Scope)
	if len(requested) == 0 {
		return nil, nil, ErrInvalidScope
	}
	for _, id := range requested {
		if !scopes.Valid(id) {
			return nil, nil, ErrInvalidScope
		}
	}
	if !scopes.CoveredBy(requested, client.GrantedScopes) {
		return nil, nil, ErrInvalidScope
	}

	return client, requested, nil
}

func (s *Service) issueCode(ctx context.Context, client *store.Client, userID uuid.UUID, req Request, requested []string) (string, error) {
	code, err := credentials.NewAuthorizationCode()
	if err != nil {
		return "", fmt.Errorf("issue authorization code: %w", err)
	}

	now := time.Now().UTC()
	record := &store.AuthorizationCode{
		CodeHash:    credentials.Hash(code),
		ClientID:    client.ID,
		UserID:      userID,
		RedirectURI: req.RedirectURI,
		Scope:       scopes.Join(requested),
		FamilyID:    uuid.New(),
		ExpiresAt:   now.Add(s.cfg.CodeTTL),
		CreatedAt:   now,
	}
	if err := s.codes.Create(ctx, record); err != nil {
		return "", fmt.Errorf("store authorization code: %w", err)
	}

	return buildRedirect(req.RedirectURI, map[string]string{"code": code}, req.State)
}

func buildRedirect(redirectURI string, params map[string]string, state string) (string, error) {
	parsed, err := url.Parse(redirectURI)
	if err != nil {
		return "", fmt.Errorf("parse redirect uri: %w", err)
	}
	query := parsed.Query()
	for k, v := range params {
		query.Set(k, v)
	}
	if state != "" {
		query.Set("state", state)
	}
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}

func containsString(list []string, target string) bool {
	for _, s := range list {
		if s == target {
			return true
		}
	}
	return false
}
