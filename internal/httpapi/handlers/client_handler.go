package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	authmiddleware "github.com/whatsyourinfo/oauth-service/internal/httpapi/middleware"
	"github.com/whatsyourinfo/oauth-service/internal/services/registry"
	"github.com/whatsyourinfo/oauth-service/internal/store"
	"go.uber.org/zap"
)

// RegistryService describes the client registry capabilities used by HTTP
// handlers.
type RegistryService interface {
	Create(ctx context.Context, ownerID uuid.UUID, in registry.CreateInput) (*store.Client, error)
	Get(ctx context.Context, clientID string, requesterID uuid.UUID) (*registry.ClientDetail, error)
	GetPublic(ctx context.Context, clientID string) (*registry.PublicClient, error)
	List(ctx context.Context, ownerID uuid.UUID) ([]store.Client, error)
	Update(ctx context.Context, clientID string, requesterID uuid.UUID, update store.ClientUpdate) (*store.Client, error)
	Delete(ctx context.Context, clientID string, requesterID uuid.UUID) error
}

// ClientHandler exposes the developer dashboard endpoints for managing OAuth
// client registrations.
type ClientHandler struct {
	service RegistryService
	logger  *zap.Logger
}

// NewClientHandler constructs a handler.
func NewClientHandler(service RegistryService, logger *zap.Logger) *ClientHandler {
	return &ClientHandler{service: service, logger: logger}
}

type createClientRequest struct {
	Name          string   `json:"name"`
	Description   string   `json:"description"`
	AppLogo       string   `json:"app_logo"`
	HomepageURL   string   `json:"homepage_url"`
	RedirectURIs  []string `json:"redirect_uris"`
	GrantedScopes []string `json:"granted_scopes"`
}

type updateClientRequest struct {
	Name          *string  `json:"name"`
	Description   *string  `json:"description"`
	AppLogo       *string  `json:"app_logo"`
	HomepageURL   *string  `json:"homepage_url"`
	RedirectURIs  []string `json:"redirect_uris"`
	GrantedScopes []string `json:"granted_scopes"`
}

// ownerClientResponse is the owner-facing serialization. It is the only
// surface that carries the client secret.
type ownerClientResponse struct {
	ClientID      string    `json:"client_id"`
	ClientSecret  string    `json:"client_secret"`
	Name          string    `json:"name"`
	Description   string    `json:"description"`
	AppLogo       string    `json:"app_logo"`
	HomepageURL   string    `json:"homepage_url"`
	RedirectURIs  []string  `json:"redirect_uris"`
	GrantedScopes []string  `json:"granted_scopes"`
	IsActive      bool      `json:"is_active"`
	OpByWYI       bool      `json:"op_by_wyi"`
	Users         int64     `json:"users"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func toOwnerClient(c *store.Client) ownerClientResponse {
	return ownerClientResponse{
		ClientID:      c.ClientID,
		ClientSecret:  c.ClientSecret,
		Name:          c.Name,
		Description:   c.Description,
		AppLogo:       c.AppLogo,
		HomepageURL:   c.HomepageURL,
		RedirectURIs:  c.RedirectURIs,
		GrantedScopes: c.GrantedScopes,
		IsActive:      c.IsActive,
		OpByWYI:       c.OpByWYI,
		Users:         c.Users,
		CreatedAt:     c.CreatedAt,
		UpdatedAt:     c.UpdatedAt,
	}
}

// Create registers a new OAuth client for the session user.
func (h *ClientHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := authmiddleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "authentication required", nil)
		return
	}

	var req createClientRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON payload", nil)
		return
	}

	client, err := h.service.Create(r.Context(), userID, registry.CreateInput{
		Name:          req.Name,
		Description:   req.Description,
		AppLogo:       req.AppLogo,
		HomepageURL:   req.HomepageURL,
		RedirectURIs:  req.RedirectURIs,
		GrantedScopes: req.GrantedScopes,
	})
	if err != nil {
		h.handleError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOwnerClient(client))
}

// Get returns the caller's clients: all of them, or one (with its
// authorized-user list) when ?id= is present.
func (h *ClientHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := authmiddleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "authentication required", nil)
		return
	}

	clientID := r.URL.Query().Get("id")
	if clientID == "" {
		clients, err := h.service.List(r.Context(), userID)
		if err != nil {
			h.handleError(w, err)
			return
		}
		out := make([]ownerClientResponse, 0, len(clients))
		for i := range clients {
			out = append(out, toOwnerClient(&clients[i]))
		}
		writeJSON(w, http.StatusOK, map[string]any{"clients": out})
		return
	}

	detail, err := h.service.Get(r.Context(), clientID, userID)
	if err != nil {
		h.handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"client":           toOwnerClient(&detail.Client),
		"authorized_users": detail.AuthorizedUsers,
	})
}

// Update applies a partial edit to one of the caller's clients.
func (h *ClientHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := authmiddleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "authentication required", nil)
		return
	}
	clientID := r.URL.Query().Get("id")
	if clientID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "id query parameter is required", nil)
		return
	}

	var req updateClientRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON payload", nil)
		return
	}

	client, err := h.service.Update(r.Context(), clientID, userID, store.ClientUpdate{
		Name:          req.Name,
		Description:   req.Description,
		AppLogo:       req.AppLogo,
		HomepageURL:   req.HomepageURL,
		RedirectURIs:  req.RedirectURIs,
		GrantedScopes: req.GrantedScopes,
	})
	if err != nil {
		h.handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOwnerClient(client))
}

// Delete removes one of the caller's clients along with its grants and
// tokens.
func (h *ClientHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := authmiddleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "authentication required", nil)
		return
	}
	clientID := r.URL.Query().Get("id")
	if clientID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "id query parameter is required", nil)
		return
	}

	if err := h.service.Delete(r.Context(), clientID, userID); err != nil {
		h.handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

// PublicCard serves the unauthenticated client card rendered on consent and
// profile surfaces.
func (h *ClientHandler) PublicCard(w http.ResponseWriter, r *http.Request) {
	clientID := chi.URLParam(r, "clientID")
	if clientID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "client id is required", nil)
		return
	}
	card, err := h.service.GetPublic(r.Context(), clientID)
	if err != nil {
		h.handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, card)
}

func (h *ClientHandler) handleError(w http.ResponseWriter, err error) {
	var validationErr *registry.ValidationError
	switch {
	case errors.As(err, &validationErr):
		details := make(map[string]any, len(validationErr.Fields))
		for field, msg := range validationErr.Fields {
			details[field] = msg
		}
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid client payload", details)
	case errors.Is(err, registry.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "oauth client not found", nil)
	default:
		h.logger.Error("client registry request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error", nil)
	}
}
