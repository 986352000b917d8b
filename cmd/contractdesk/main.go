// Package main provides the contractdesk operator CLI: running expiration scans
// from cron, applying the schema, draining the outbox and minting API tokens.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/narvanalabs/contractdesk/internal/queue"
	pgqueue "github.com/narvanalabs/contractdesk/internal/queue/postgres"
	"github.com/narvanalabs/contractdesk/internal/store"
	pgstore "github.com/narvanalabs/contractdesk/internal/store/postgres"
	"github.com/narvanalabs/contractdesk/pkg/config"
	"github.com/narvanalabs/contractdesk/pkg/logger"
)

// backend is the storage a command runs against.
type backend struct {
	store   store.Store
	queue   queue.Queue
	migrate func(ctx context.Context) error
}

// cli carries what commands share. Tests replace open and loadConfig.
type cli struct {
	out        io.Writer
	logger     *slog.Logger
	loadConfig func() (*config.Config, error)
	open       func(ctx context.Context, cfg *config.Config, log *slog.Logger) (*backend, error)
}

func openPostgres(ctx context.Context, cfg *config.Config, log *slog.Logger) (*backend, error) {
	st, err := pgstore.NewPostgresStore(pgstore.DefaultConfig(cfg.DatabaseDSN), log)
	if err != nil {
		return nil, err
	}
	return &backend{
		store:   st,
		queue:   pgqueue.NewPostgresQueue(st.DB(), log),
		migrate: st.Migrate,
	}, nil
}

func newRootCmd(c *cli) *cobra.Command {
	var configFile string

	root := &cobra.Command{
		Use:           "contractdesk",
		Short:         "Contract expiration and renewal operations",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if configFile != "" {
				return os.Setenv("CONFIG_FILE", configFile)
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "YAML config file (overrides CONFIG_FILE)")

	root.AddCommand(
		newScanCmd(c),
		newMigrateCmd(c),
		newDrainCmd(c),
		newTokenCmd(c),
	)
	return root
}

func main() {
	log := logger.Default()
	c := &cli{
		out:        os.Stdout,
		logger:     log.Logger,
		loadConfig: config.Load,
		open:       openPostgres,
	}

	if err := newRootCmd(c).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
