package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/whatsyourinfo/oauth-service/internal/session"
)

// SessionParser defines the capabilities required to validate session tokens.
type SessionParser interface {
	Parse(tokenString string) (uuid.UUID, *session.Claims, error)
}

// Auth provides session-backed authentication middleware for the consent and
// developer dashboard surfaces.
type Auth struct {
	sessions SessionParser
}

// NewAuth creates a new instance.
func NewAuth(sessions SessionParser) *Auth {
	return &Auth{sessions: sessions}
}

// RequireAuth ensures incoming requests carry a valid session token, either
// as a bearer header or as the platform's session cookie.
func (a *Auth) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenStr := sessionToken(r)
		if tokenStr == "" {
			writeAuthError(w, http.StatusUnauthorized, "missing session token")
			return
		}

		userID, claims, err := a.sessions.Parse(tokenStr)
		if err != nil {
			writeAuthError(w, http.StatusUnauthorized, "invalid session")
			return
		}

		ctx := context.WithValue(r.Context(), identityContextKey{}, &identity{userID: userID, claims: claims})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func sessionToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header != "" && strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	if cookie, err := r.Cookie("wyi_session"); err == nil {
		return cookie.Value
	}
	return ""
}

func writeAuthError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": message,
		"code":  "unauthorized",
	})
}

type identityContextKey struct{}

type identity struct {
	userID uuid.UUID
	claims *session.Claims
}

// UserIDFromContext extracts the authenticated user id stored by middleware.
func UserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(identityContextKey{}).(*identity)
	if !ok || id == nil {
		return uuid.Nil, false
	}
	return id.userID, true
}

// ClaimsFromContext extracts session claims stored by middleware.
func ClaimsFromContext(ctx context.Context) (*session.Claims, bool) {
	id, ok := ctx.Value(identityContextKey{}).(*identity)
	if !ok || id == nil {
		return nil, false
	}
	return id.claims, id.claims != nil
}
