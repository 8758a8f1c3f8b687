package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouterDeps defines router construction dependencies.
type RouterDeps struct {
	HealthHandler      http.HandlerFunc
	OAuthHandlers      OAuthHandlers
	RequireAuthHandler func(http.Handler) http.Handler
	RateLimitAuthorize func(http.Handler) http.Handler
	RateLimitToken     func(http.Handler) http.Handler
	MetricsHandler     http.Handler
}

// OAuthHandlers groups the HTTP handlers for the service's routes.
type OAuthHandlers struct {
	Authorize        http.HandlerFunc
	Decision         http.HandlerFunc
	Token            http.HandlerFunc
	Me               http.HandlerFunc
	PublicClient     http.HandlerFunc
	CreateClient     http.HandlerFunc
	GetClients       http.HandlerFunc
	UpdateClient     http.HandlerFunc
	DeleteClient     http.HandlerFunc
	ListConnections  http.HandlerFunc
	RevokeConnection http.HandlerFunc
}

// NewRouter wires HTTP routes.
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if deps.HealthHandler != nil {
		r.Get("/healthz", deps.HealthHandler)
	}
	if deps.MetricsHandler != nil {
		r.Method("GET", "/metrics", deps.MetricsHandler)
	}

	r.Route("/oauth", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			if deps.RequireAuthHandler != nil {
				r.Use(deps.RequireAuthHandler)
			}
			if deps.RateLimitAuthorize != nil {
				r.Use(deps.RateLimitAuthorize)
			}
			r.Get("/authorize", deps.OAuthHandlers.Authorize)
			r.Post("/authorize/decision", deps.OAuthHandlers.Decision)
		})
	})

	r.Route("/api/v1", func(r chi.Router) {
		if deps.RateLimitToken != nil {
			r.With(deps.RateLimitToken).Post("/oauth/token", deps.OAuthHandlers.Token)
		} else {
			r.Post("/oauth/token", deps.OAuthHandlers.Token)
		}
		r.Get("/me", deps.OAuthHandlers.Me)
		r.Get("/oauth-client/{clientID}", deps.OAuthHandlers.PublicClient)
	})

	r.Route("/api/dev/oauth-clients", func(r chi.Router) {
		if deps.RequireAuthHandler != nil {
			r.Use(deps.RequireAuthHandler)
		}
		r.Post("/", deps.OAuthHandlers.CreateClient)
		r.Get("/", deps.OAuthHandlers.GetClients)
		r.Patch("/", deps.OAuthHandlers.UpdateClient)
		r.Delete("/", deps.OAuthHandlers.DeleteClient)
	})

	r.Route("/api/settings/connections", func(r chi.Router) {
		if deps.RequireAuthHandler != nil {
			r.Use(deps.RequireAuthHandler)
		}
		r.Get("/", deps.OAuthHandlers.ListConnections)
		r.Delete("/{clientID}", deps.OAuthHandlers.RevokeConnection)
	})

	return r
}
