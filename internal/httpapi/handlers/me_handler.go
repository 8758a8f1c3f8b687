package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/whatsyourinfo/oauth-service/internal/services/resource"
	"go.uber.org/zap"
)

// ResourceService describes the scope-gated profile reads used by HTTP
// handlers.
type ResourceService interface {
	Resolve(ctx context.Context, token string) (*resource.Profile, error)
}

// MeHandler serves the profile of the user behind a bearer access token.
type MeHandler struct {
	service ResourceService
	logger  *zap.Logger
}

// NewMeHandler constructs a handler.
func NewMeHandler(service ResourceService, logger *zap.Logger) *MeHandler {
	return &MeHandler{service: service, logger: logger}
}

// Me resolves the presented access token into the token-scoped profile view.
func (h *MeHandler) Me(w http.ResponseWriter, r *http.Request) {
	profile, err := h.service.Resolve(r.Context(), bearerToken(r))
	if err != nil {
		if errors.Is(err, resource.ErrInvalidToken) {
			writeOAuthError(w, http.StatusUnauthorized, "invalid_token", "invalid or expired access token")
			return
		}
		h.logger.Error("profile resolution failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error", nil)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}
