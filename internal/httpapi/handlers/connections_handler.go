package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	authmiddleware "github.com/whatsyourinfo/oauth-service/internal/httpapi/middleware"
	"github.com/whatsyourinfo/oauth-service/internal/services/connections"
	"go.uber.org/zap"
)

// ConnectionsService describes the authorized-connections capabilities used
// by HTTP handlers.
type ConnectionsService interface {
	List(ctx context.Context, userID uuid.UUID) ([]connections.Connection, error)
	Revoke(ctx context.Context, userID uuid.UUID, clientID string) error
}

// ConnectionsHandler exposes the settings endpoints for reviewing and
// revoking authorized applications.
type ConnectionsHandler struct {
	service ConnectionsService
	logger  *zap.Logger
}

// NewConnectionsHandler constructs a handler.
func NewConnectionsHandler(service ConnectionsService, logger *zap.Logger) *ConnectionsHandler {
	return &ConnectionsHandler{service: service, logger: logger}
}

// List returns every client the session user has authorized.
func (h *ConnectionsHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := authmiddleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "authentication required", nil)
		return
	}

	conns, err := h.service.List(r.Context(), userID)
	if err != nil {
		h.logger.Error("failed to list connections", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error", nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"connections": conns})
}

// Revoke removes the session user's grant for one client.
func (h *ConnectionsHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	userID, ok := authmiddleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "authentication required", nil)
		return
	}
	clientID := chi.URLParam(r, "clientID")
	if clientID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "client id is required", nil)
		return
	}

	if err := h.service.Revoke(r.Context(), userID, clientID); err != nil {
		if errors.Is(err, connections.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "connection not found", nil)
			return
		}
		h.logger.Error("failed to revoke connection", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error", nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"revoked": true})
}
