package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/whatsyourinfo/oauth-service/internal/audit"
	"github.com/whatsyourinfo/oauth-service/internal/cache"
	"github.com/whatsyourinfo/oauth-service/internal/config"
	"github.com/whatsyourinfo/oauth-service/internal/database"
	"github.com/whatsyourinfo/oauth-service/internal/httpapi"
	"github.com/whatsyourinfo/oauth-service/internal/httpapi/handlers"
	httpmiddleware "github.com/whatsyourinfo/oauth-service/internal/httpapi/middleware"
	"github.com/whatsyourinfo/oauth-service/internal/services/authorize"
	"github.com/whatsyourinfo/oauth-service/internal/services/connections"
	"github.com/whatsyourinfo/oauth-service/internal/services/registry"
	"github.com/whatsyourinfo/oauth-service/internal/services/resource"
	"github.com/whatsyourinfo/oauth-service/internal/services/token"
	"github.com/whatsyourinfo/oauth-service/internal/session"
	"github.com/whatsyourinfo/oauth-service/internal/store/postgres"
	"github.com/whatsyourinfo/oauth-service/internal/store/redisstore"
	"go.uber.org/zap"
)

// App wires core dependencies and exposes server lifecycle controls.
type App struct {
	cfg        *config.Config
	logger     *zap.Logger
	pool       *pgxpool.Pool
	redis      *redis.Client
	httpServer *http.Server
}

// New constructs the application.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	pool, err := database.New(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	if cfg.Database.RunMigrations {
		if err := database.RunMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
	}

	redisClient, err := cache.New(cfg.Redis)
	if err != nil {
		pool.Close()
		return nil, err
	}

	clientStore := postgres.NewClientStore(pool)
	authStore := postgres.NewAuthorizationStore(pool)
	userStore := postgres.NewUserStore(pool)
	codeStore := postgres.NewCodeStore(pool)
	tokenStore := postgres.NewTokenStore(pool)
	accessTokenStore := redisstore.NewAccessTokenStore(redisClient, cfg.Redis.Namespace)

	auditor := audit.New(pool, logger)
	sessions := session.New(cfg.Session)

	registrySvc := registry.New(registry.Dependencies{
		Clients: clientStore,
		Auths:   authStore,
		Users:   userStore,
		Tokens:  tokenStore,
		Auditor: auditor,
		Logger:  logger,
	})
	authorizeSvc := authorize.New(authorize.Dependencies{
		Clients: clientStore,
		Auths:   authStore,
		Codes:   codeStore,
		Config:  cfg.OAuth,
		Auditor: auditor,
		Logger:  logger,
	})
	tokenSvc := token.New(token.Dependencies{
		Clients:      clientStore,
		Codes:        codeStore,
		Tokens:       tokenStore,
		AccessTokens: accessTokenStore,
		Config:       cfg.OAuth,
		Auditor:      auditor,
		Logger:       logger,
	})
	connectionsSvc := connections.New(connections.Dependencies{
		Clients: clientStore,
		Auths:   authStore,
		Tokens:  tokenStore,
		Auditor: auditor,
		Logger:  logger,
	})
	resourceSvc := resource.New(accessTokenStore, userStore)

	clientHandler := handlers.NewClientHandler(registrySvc, logger)
	oauthHandler := handlers.NewOAuthHandler(authorizeSvc, tokenSvc, logger)
	meHandler := handlers.NewMeHandler(resourceSvc, logger)
	connectionsHandler := handlers.NewConnectionsHandler(connectionsSvc, logger)

	authMiddleware := httpmiddleware.NewAuth(sessions)
	rateLimiter := httpmiddleware.NewRateLimiter(redisClient, cfg.Redis.Namespace)

	router := httpapi.NewRouter(httpapi.RouterDeps{
		HealthHandler:  handlers.Health,
		MetricsHandler: promhttp.Handler(),
		OAuthHandlers: httpapi.OAuthHandlers{
			Authorize:        oauthHandler.Authorize,
			Decision:         oauthHandler.Decision,
			Token:            oauthHandler.Token,
			Me:               meHandler.Me,
			PublicClient:     clientHandler.PublicCard,
			CreateClient:     clientHandler.Create,
			GetClients:       clientHandler.Get,
			UpdateClient:     clientHandler.Update,
			DeleteClient:     clientHandler.Delete,
			ListConnections:  connectionsHandler.List,
			RevokeConnection: connectionsHandler.Revoke,
		},
		RequireAuthHandler: authMiddleware.RequireAuth,
		RateLimitAuthorize: rateLimiter.Limit("authorize", 60, time.Minute, func(r *http.Request) string { return r.RemoteAddr }),
		RateLimitToken:     rateLimiter.Limit("token", 120, time.Minute, func(r *http.Request) string { return r.RemoteAddr }),
	})

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:           router,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
		IdleTimeout:       cfg.HTTP.IdleTimeout,
	}

	return &App{
		cfg:        cfg,
		logger:     logger,
		pool:       pool,
		redis:      redisClient,
		httpServer: server,
	}, nil
}

// Run starts the HTTP server.
func (a *App) Run() error {
	a.logger.Info("starting HTTP server", zap.String("addr", a.httpServer.Addr))
	return a.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server and closes resources.
func (a *App) Shutdown(ctx context.Context) error {
	shutdownErr := a.httpServer.Shutdown(ctx)

	a.pool.Close()
	if err := a.redis.Close(); err != nil {
		a.logger.Warn("failed to close redis client", zap.Error(err))
		if shutdownErr == nil {
			shutdownErr = err
		}
	}
	return shutdownErr
}
