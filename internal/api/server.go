// Package api provides the HTTP API server for contractdesk.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/narvanalabs/contractdesk/internal/api/handlers"
	"github.com/narvanalabs/contractdesk/internal/api/health"
	"github.com/narvanalabs/contractdesk/internal/api/middleware"
	"github.com/narvanalabs/contractdesk/internal/auth"
	"github.com/narvanalabs/contractdesk/internal/lifecycle"
	"github.com/narvanalabs/contractdesk/internal/store"
	"github.com/narvanalabs/contractdesk/pkg/config"
)

// Version is the current version of the API server.
// This should be set at build time using ldflags.
var Version = "dev"

// Deps are the services the API routes to.
type Deps struct {
	Store     store.Store
	Auth      middleware.Authenticator
	Scanner   handlers.Scanner
	Renewals  handlers.RenewalWorkflow
	Reminders handlers.ReminderService
	// Health defaults to a checker that pings Store.
	Health *health.Checker
	// Clock defaults to the wall clock in the configured scan time zone.
	Clock lifecycle.Clock
}

// Server represents the HTTP API server.
type Server struct {
	router     chi.Router
	httpServer *http.Server
	deps       Deps
	config     *config.Config
	logger     *slog.Logger
}

// NewServer creates a new API server with the given dependencies.
func NewServer(cfg *config.Config, deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Health == nil {
		deps.Health = health.NewChecker(deps.Store, Version)
	}
	if deps.Clock == nil {
		deps.Clock = lifecycle.InLocation(cfg.Location())
	}

	s := &Server{
		deps:   deps,
		config: cfg,
		logger: logger,
	}
	s.setupRouter()

	addr := fmt.Sprintf("%s:%d", cfg.APIHost, cfg.APIPort)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

// setupRouter configures the router with middleware and routes.
func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestContext)
	r.Use(middleware.RequestLogger(s.logger))
	r.Use(middleware.Recovery(s.logger))
	r.Use(chimiddleware.Timeout(60 * time.Second))

	// Health check endpoint (no auth required)
	r.Get("/health", s.deps.Health.Handler())

	threshold := s.config.Scanner.DefaultThresholdDays
	scanHandler := handlers.NewScanHandler(s.deps.Scanner, threshold, s.logger)
	renewalHandler := handlers.NewRenewalHandler(s.deps.Renewals, s.logger)
	contractHandler := handlers.NewContractHandler(s.deps.Store.Contracts(), s.deps.Clock, threshold, s.logger)
	reminderHandler := handlers.NewReminderHandler(s.deps.Reminders, s.logger)

	canView := middleware.RequirePermission(auth.PermissionViewContracts)
	canManage := middleware.RequirePermission(auth.PermissionManageRenewals)

	r.Route("/v1", func(r chi.Router) {
		authMiddleware := middleware.NewAuthMiddleware(s.deps.Auth, s.config.APIKeyHeader, s.logger)
		r.Use(authMiddleware.Authenticate)

		r.Route("/contracts", func(r chi.Router) {
			r.With(middleware.RequirePermission(auth.PermissionScanContracts)).Post("/scan", scanHandler.Scan)
			r.Route("/{contractID}", func(r chi.Router) {
				r.Use(canView)
				r.Get("/expiry", contractHandler.Expiry)
				r.Get("/renewals", renewalHandler.ListByContract)
				r.Get("/reminders", reminderHandler.ListByContract)
			})
		})

		r.Route("/orgs/{orgID}", func(r chi.Router) {
			r.Use(canManage)
			r.Use(middleware.OrgContext(s.deps.Store.Orgs(), s.logger))
			r.Post("/contracts/{contractID}/renewals", renewalHandler.Create)
		})

		r.Route("/renewals/{renewalID}", func(r chi.Router) {
			r.With(canView).Get("/", renewalHandler.Get)
			r.With(canManage).Patch("/", renewalHandler.Update)
		})

		r.With(middleware.RequirePermission(auth.PermissionAcknowledgeReminders)).
			Post("/reminders/{reminderID}/acknowledge", reminderHandler.Acknowledge)
	})

	s.router = r
}

// Start starts the HTTP server and blocks until ctx is cancelled or the server fails.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("starting API server", "addr", s.httpServer.Addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if !ok {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	}
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down API server")
	timeout := s.config.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

// HTTPServer returns the underlying server for the shutdown coordinator.
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// Router returns the chi router for testing purposes.
func (s *Server) Router() chi.Router {
	return s.router
}
