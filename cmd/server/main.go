// Package main is the entrypoint for the memberbase API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kiranshivaraju/memberbase/internal/api"
	"github.com/kiranshivaraju/memberbase/internal/api/handler"
	mw "github.com/kiranshivaraju/memberbase/internal/api/middleware"
	"github.com/kiranshivaraju/memberbase/internal/api/response"
	"github.com/kiranshivaraju/memberbase/internal/cache"
	"github.com/kiranshivaraju/memberbase/internal/config"
	"github.com/kiranshivaraju/memberbase/internal/customer"
	"github.com/kiranshivaraju/memberbase/internal/identity"
	"github.com/kiranshivaraju/memberbase/internal/logging"
	"github.com/kiranshivaraju/memberbase/internal/store"
	"github.com/kiranshivaraju/memberbase/internal/tenant"
	"github.com/kiranshivaraju/memberbase/internal/users"
	"github.com/rs/zerolog/log"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		log.Error().Err(err).Msg("server failed")
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config, fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := logging.New(cfg.Server.Env, cfg.Log.Level)
	logger.Info().Str("env", cfg.Server.Env).Msg("config loaded")

	// 2. Identity boundary; no network needed, so check it before connecting
	sessions, err := identity.NewVerifier(cfg.Identity.JWTSecret, cfg.Identity.JWTPublicKey, cfg.Identity.JWTIssuer)
	if err != nil {
		return fmt.Errorf("create session verifier: %w", err)
	}
	webhooks, err := identity.NewWebhookVerifier(cfg.Identity.WebhookSecret)
	if err != nil {
		return fmt.Errorf("create webhook verifier: %w", err)
	}
	var inviter identity.Inviter
	if cfg.Identity.APISecretKey != "" {
		inviter = identity.NewClient(cfg.Identity.APIBaseURL, cfg.Identity.APISecretKey,
			cfg.Identity.InviteRedirectURL, cfg.Identity.Timeout)
	} else {
		logger.Warn().Msg("IDENTITY_API_SECRET_KEY not set, invitations will not be emailed")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	logger.Info().Msg("database connected")

	// 4. Run migrations
	if err := store.RunMigrations(cfg.Database.URL); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	logger.Info().Msg("database migrations applied")

	// 5. Create Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	logger.Info().Msg("redis connected")

	// 6. Services
	pgStore := store.NewPostgresStore(pool)
	tenants := tenant.NewResolver(pgStore)
	customers := customer.NewService(pgStore)
	members := users.NewService(pgStore, inviter, logger)

	// 7. Build router with dependencies
	deps := api.Dependencies{
		Logger:  logger,
		Auth:    mw.NewAuth(sessions),
		Tenants: tenants,
		Members: members,

		HealthHandler:    healthHandler(pgStore, redisCache),
		CountriesHandler: handler.NewCountriesHandler(),
		WebhookHandler:   handler.NewIdentityWebhookHandler(webhooks, redisCache, members, cfg.Redis.WebhookDedupeTTL),

		ValidatePhone:   handler.NewValidatePhoneHandler(customers, tenants),
		RegisterHandler: handler.NewRegisterHandler(customers),

		MeHandler:       handler.NewMeHandler(),
		ListCustomers:   handler.NewListCustomersHandler(customers),
		ExportCustomers: handler.NewExportCustomersHandler(customers),
		CreateCustomer:  handler.NewCreateCustomerHandler(customers),
		GetCustomer:     handler.NewGetCustomerHandler(customers),
		UpdateCustomer:  handler.NewUpdateCustomerHandler(customers),
		DeleteCustomer:  handler.NewDeleteCustomerHandler(customers),

		GetSettings:    handler.NewGetSettingsHandler(tenants),
		UpdateSettings: handler.NewUpdateSettingsHandler(tenants),

		ListUsers:  handler.NewListUsersHandler(members),
		InviteUser: handler.NewInviteUserHandler(members),
		ChangeRole: handler.NewChangeRoleHandler(members),
		RemoveUser: handler.NewRemoveUserHandler(members),
	}

	router := api.NewRouter(deps)

	// 8. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info().Msg("server stopped gracefully")
	return nil
}

type pinger interface {
	Ping(ctx context.Context) error
}

// healthHandler checks database and cache connectivity.
func healthHandler(db, c pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"cache":    "ok",
		}

		if err := db.Ping(r.Context()); err != nil {
			checks["database"] = "degraded"
		}
		if err := c.Ping(r.Context()); err != nil {
			checks["cache"] = "degraded"
		}

		degraded := checks["database"] != "ok" || checks["cache"] != "ok"
		if degraded {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", checks)
			return
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}
