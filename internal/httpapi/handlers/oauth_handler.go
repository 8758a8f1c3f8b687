package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	authmiddleware "github.com/whatsyourinfo/oauth-service/internal/httpapi/middleware"
	"github.com/whatsyourinfo/oauth-service/internal/services/authorize"
	"github.com/whatsyourinfo/oauth-service/internal/services/token"
	"go.uber.org/zap"
)

// AuthorizeService describes the consent flow capabilities used by HTTP
// handlers.
type AuthorizeService interface {
	Start(ctx context.Context, userID uuid.UUID, req authorize.Request) (*authorize.StartResult, error)
	Decide(ctx context.Context, userID uuid.UUID, req authorize.Request, allow bool) (authorize.State, string, error)
}

// TokenService describes the token exchange capabilities used by HTTP
// handlers.
type TokenService interface {
	Exchange(ctx context.Context, in token.ExchangeInput) (*token.Response, error)
}

// OAuthHandler exposes the authorize, consent decision, and token endpoints.
type OAuthHandler struct {
	authorizeSvc AuthorizeService
	tokenSvc     TokenService
	logger       *zap.Logger
}

// NewOAuthHandler constructs a handler.
func NewOAuthHandler(authorizeSvc AuthorizeService, tokenSvc TokenService, logger *zap.Logger) *OAuthHandler {
	return &OAuthHandler{
		authorizeSvc: authorizeSvc,
		tokenSvc:     tokenSvc,
		logger:       logger,
	}
}

// Authorize validates an inbound authorization request. The response is
// either a consent prompt for the UI to render or, when a prior grant covers
// the request, a redirect carrying a fresh code. Validation failures are
// answered in place; nothing is ever redirected to an unverified URI.
func (h *OAuthHandler) Authorize(w http.ResponseWriter, r *http.Request) {
	userID, ok := authmiddleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "authentication required", nil)
		return
	}

	query := r.URL.Query()
	result, err := h.authorizeSvc.Start(r.Context(), userID, authorize.Request{
		ClientID:     query.Get("client_id"),
		RedirectURI:  query.Get("redirect_uri"),
		ResponseType: query.Get("response_type"),
		Scope:        query.Get("scope"),
		State:        query.Get("state"),
	})
	if err != nil {
		h.handleAuthorizeError(w, err)
		return
	}

	if result.State == authorize.StateCodeIssued {
		writeJSON(w, http.StatusOK, map[string]any{
			"state":    result.State,
			"redirect": result.RedirectURL,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"state":  result.State,
		"prompt": result.Prompt,
	})
}

type decisionRequest struct {
	ClientID    string `json:"client_id"`
	RedirectURI string `json:"redirect_uri"`
	Scope       string `json:"scope"`
	State       string `json:"state"`
	Allow       bool   `json:"allow"`
}

// Decision records the user's consent choice and returns the redirect the
// browser should follow. A denial redirects with error=access_denied.
func (h *OAuthHandler) Decision(w http.ResponseWriter, r *http.Request) {
	userID, ok := authmiddleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "authentication required", nil)
		return
	}

	var req decisionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON payload", nil)
		return
	}

	state, redirect, err := h.authorizeSvc.Decide(r.Context(), userID, authorize.Request{
		ClientID:    req.ClientID,
		RedirectURI: req.RedirectURI,
		Scope:       req.Scope,
		State:       req.State,
	}, req.Allow)
	if err != nil {
		h.handleAuthorizeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"state":    state,
		"redirect": redirect,
	})
}

// tokenRequest is accepted both as JSON and as a form-encoded body.
type tokenRequest struct {
	GrantType    string `json:"grant_type"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	Code         string `json:"code"`
	RedirectURI  string `json:"redirect_uri"`
	RefreshToken string `json:"refresh_token"`
}

// Token exchanges an authorization code or refresh token for a token pair.
func (h *OAuthHandler) Token(w http.ResponseWriter, r *http.Request) {
	req, err := parseTokenRequest(r)
	if err != nil {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "malformed request body")
		return
	}

	resp, err := h.tokenSvc.Exchange(r.Context(), token.ExchangeInput{
		GrantType:    req.GrantType,
		ClientID:     req.ClientID,
		ClientSecret: req.ClientSecret,
		Code:         req.Code,
		RedirectURI:  req.RedirectURI,
		RefreshToken: req.RefreshToken,
	})
	if err != nil {
		h.handleTokenError(w, err)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	writeJSON(w, http.StatusOK, resp)
}

func parseTokenRequest(r *http.Request) (*tokenRequest, error) {
	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "application/json") {
		var req tokenRequest
		if err := decodeJSON(r, &req); err != nil {
			return nil, err
		}
		return &req, nil
	}

	if err := r.ParseForm(); err != nil {
		return nil, err
	}
	return &tokenRequest{
		GrantType:    r.PostFormValue("grant_type"),
		ClientID:     r.PostFormValue("client_id"),
		ClientSecret: r.PostFormValue("client_secret"),
		Code:         r.PostFormValue("code"),
		RedirectURI:  r.PostFormValue("redirect_uri"),
		RefreshToken: r.PostFormValue("refresh_token"),
	}, nil
}

func (h *OAuthHandler) handleAuthorizeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, authorize.ErrUnsupportedResponseType):
		writeOAuthError(w, http.StatusBadRequest, "unsupported_response_type", err.Error())
	case errors.Is(err, authorize.ErrMissingParams):
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, authorize.ErrInvalidClient):
		writeOAuthError(w, http.StatusBadRequest, "invalid_client", err.Error())
	case errors.Is(err, authorize.ErrInvalidScope):
		writeOAuthError(w, http.StatusBadRequest, "invalid_scope", err.Error())
	default:
		h.logger.Error("authorize request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error", nil)
	}
}

func (h *OAuthHandler) handleTokenError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, token.ErrInvalidRequest):
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "missing required parameters")
	case errors.Is(err, token.ErrUnsupportedGrantType):
		writeOAuthError(w, http.StatusBadRequest, "unsupported_grant_type", "grant_type must be authorization_code or refresh_token")
	case errors.Is(err, token.ErrInvalidGrant):
		writeOAuthError(w, http.StatusBadRequest, "invalid_grant", "invalid client credentials, code, or refresh token")
	default:
		h.logger.Error("token exchange failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error", nil)
	}
}

// writeOAuthError renders the error body shape clients of the token and
// authorize endpoints expect.
func writeOAuthError(w http.ResponseWriter, status int, code string, description string) {
	writeJSON(w, status, map[string]any{
		"error":             code,
		"error_description": description,
	})
}
