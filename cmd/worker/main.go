// Package main provides the entry point for the outbox worker, which delivers
// expiration notices and writes audit entries queued by the API.
package main

import (
	"context"
	"os"

	"github.com/narvanalabs/contractdesk/internal/dispatch"
	"github.com/narvanalabs/contractdesk/internal/notify"
	pgqueue "github.com/narvanalabs/contractdesk/internal/queue/postgres"
	"github.com/narvanalabs/contractdesk/internal/shutdown"
	"github.com/narvanalabs/contractdesk/internal/store/postgres"
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
	store, err := postgres.NewPostgresStore(postgres.DefaultConfig(cfg.DatabaseDSN), log.WithComponent("store").Logger)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		return 1
	}

	queue := pgqueue.NewPostgresQueue(store.DB(), log.WithComponent("outbox").Logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Messages claimed by a worker that died mid-delivery are put back.
	if _, err := queue.RequeueStale(ctx, cfg.ShutdownTimeout*2); err != nil {
		log.Error("failed to requeue stale outbox messages", "error", err)
	}

	var sender notify.Sender = notify.LogSender{Logger: log.WithComponent("notify").Logger}
	if cfg.Notify.WebhookURL != "" {
		sender = notify.NewWebhookSender(cfg.Notify.WebhookURL, cfg.Notify.Timeout)
	}

	worker := dispatch.NewWorker(&dispatch.WorkerConfig{
		Concurrency:  cfg.Outbox.Concurrency,
		PollInterval: cfg.Outbox.PollInterval,
		MaxAttempts:  cfg.Outbox.MaxAttempts,
	}, queue, store.Audit(), sender, log.Logger)

	coordinator := shutdown.NewCoordinator(
		shutdown.WithTimeout(cfg.ShutdownTimeout),
		shutdown.WithLogger(log.WithComponent("shutdown").Logger),
	)
	coordinator.Register(shutdown.NewCloserComponent("store", store))
	coordinator.Register(shutdown.NewWorkerComponent("outbox-worker", worker))

	log.Info("starting outbox worker",
		"concurrency", cfg.Outbox.Concurrency,
		"poll_interval", cfg.Outbox.PollInterval,
		"max_attempts", cfg.Outbox.MaxAttempts,
		"webhook", cfg.Notify.WebhookURL != "",
	)

	if err := worker.Start(ctx); err != nil {
		log.Error("failed to start worker", "error", err)
		store.Close()
		return 1
	}

	coordinator.WaitForSignal(ctx)
	coordinator.Wait()
	log.Info("outbox worker shutdown complete")
	return coordinator.ExitCode()
}
