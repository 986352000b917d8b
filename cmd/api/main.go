// Package main provides the entry point for the contractdesk API server.
package main

import (
	"context"
	"os"

	"github.com/narvanalabs/contractdesk/internal/api"
	"github.com/narvanalabs/contractdesk/internal/api/health"
	"github.com/narvanalabs/contractdesk/internal/audit"
	"github.com/narvanalabs/contractdesk/internal/auth"
	"github.com/narvanalabs/contractdesk/internal/grpc"
	"github.com/narvanalabs/contractdesk/internal/lifecycle"
	"github.com/narvanalabs/contractdesk/internal/models"
	"github.com/narvanalabs/contractdesk/internal/notify"
	pgqueue "github.com/narvanalabs/contractdesk/internal/queue/postgres"
	"github.com/narvanalabs/contractdesk/internal/reminder"
	"github.com/narvanalabs/contractdesk/internal/renewal"
	"github.com/narvanalabs/contractdesk/internal/scanner"
	"github.com/narvanalabs/contractdesk/internal/shutdown"
	pgstore "github.com/narvanalabs/contractdesk/internal/store/postgres"
	"github.com/narvanalabs/contractdesk/pkg/config"
	"github.com/narvanalabs/contractdesk/pkg/logger"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		logger.Default().Error("failed to load configuration", "error", err)
		return 1
	}
	log := logger.New(logger.ParseLevel(cfg.Log.Level), cfg.Log.Format != "text")

	// Initialize database store
	store, err := pgstore.NewPostgresStore(pgstore.DefaultConfig(cfg.DatabaseDSN), log.WithComponent("store").Logger)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		return 1
	}

	// Notifications and audit entries go through the outbox; cmd/worker delivers them.
	queue := pgqueue.NewPostgresQueue(store.DB(), log.WithComponent("outbox").Logger)
	auditor := audit.NewOutbox(queue)
	clock := lifecycle.InLocation(cfg.Location())

	keys, err := auth.ParseAPIKeys(cfg.APIKeys)
	if err != nil {
		log.Error("invalid API_KEYS", "error", err)
		store.Close()
		return 1
	}
	authService := auth.NewService(&auth.Config{
		JWTSecret:   []byte(cfg.JWTSecret),
		TokenExpiry: cfg.JWTExpiry,
	}, auth.NewStaticKeyStore(keys...), log.Logger)

	workflowOpts := []renewal.Option{
		renewal.WithClock(clock),
		renewal.WithPartyKind(models.PartyKind(cfg.Renewal.PartyKind)),
	}
	if cfg.Renewal.EnforceGateConsistency {
		workflowOpts = append(workflowOpts, renewal.WithGatePolicy(renewal.ValidateGateConsistency))
	}

	checker := health.NewChecker(store, api.Version)
	checker.AddOptional("outbox", queue)

	server := api.NewServer(cfg, api.Deps{
		Store:     store,
		Auth:      authService,
		Scanner:   scanner.NewService(store, notify.NewOutbox(queue), log.Logger, scanner.WithClock(clock)),
		Renewals:  renewal.NewWorkflow(store, auditor, log.Logger, workflowOpts...),
		Reminders: reminder.NewService(store, auditor, log.Logger, clock),
		Health:    checker,
		Clock:     clock,
	}, log.WithComponent("http").Logger)

	grpcCfg := grpc.DefaultConfig()
	grpcCfg.Port = cfg.GRPCPort
	grpcServer, err := grpc.NewServer(grpcCfg, checker, log.Logger)
	if err != nil {
		log.Error("failed to create gRPC server", "error", err)
		store.Close()
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Components stop in reverse order, so the store closes last.
	coordinator := shutdown.NewCoordinator(
		shutdown.WithTimeout(cfg.ShutdownTimeout),
		shutdown.WithLogger(log.WithComponent("shutdown").Logger),
	)
	coordinator.Register(shutdown.NewCloserComponent("store", store))
	coordinator.Register(shutdown.NewGRPCServerComponent("grpc", grpcServer))
	coordinator.Register(shutdown.NewHTTPServerComponent("api", server.HTTPServer()))

	go func() {
		if err := grpcServer.Start(ctx); err != nil {
			log.Error("gRPC server error", "error", err)
			cancel()
		}
	}()
	go func() {
		if err := server.Start(ctx); err != nil {
			log.Error("server error", "error", err)
			cancel()
		}
	}()

	log.Info("contractdesk API started",
		"host", cfg.APIHost,
		"port", cfg.APIPort,
		"grpc_port", cfg.GRPCPort,
		"version", api.Version,
	)

	coordinator.WaitForSignal(ctx)
	coordinator.Wait()
	log.Info("server stopped")
	return coordinator.ExitCode()
}
