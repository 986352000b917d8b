package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/narvanalabs/contractdesk/internal/dispatch"
	"github.com/narvanalabs/contractdesk/internal/lifecycle"
	"github.com/narvanalabs/contractdesk/internal/notify"
	"github.com/narvanalabs/contractdesk/internal/scanner"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func newScanCmd(c *cli) *cobra.Command {
	var (
		threshold int
		direct    bool
	)

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Record reminders and notify owners of contracts expiring soon",
		Long: `Scan finds ACTIVE contracts ending between today and today+threshold days.
Each contract gets one expiration reminder no matter how often the scan runs.
Notices are queued for the outbox worker unless --direct is set.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("threshold") {
				threshold = cfg.Scanner.DefaultThresholdDays
			}

			ctx := cmd.Context()
			b, err := c.open(ctx, cfg, c.logger)
			if err != nil {
				return fmt.Errorf("opening store: %w", err)
			}
			defer b.store.Close()

			var notifier notify.Port = notify.NewOutbox(b.queue)
			if direct {
				sender := senderFor(cfg.Notify.WebhookURL, cfg.Notify.Timeout, c.logger)
				notifier = notify.PortFunc(func(ctx context.Context, n notify.Notice) error {
					return sender.Send(ctx, n)
				})
			}

			svc := scanner.NewService(b.store, notifier, c.logger,
				scanner.WithClock(lifecycle.InLocation(cfg.Location())))
			summary, err := svc.Run(ctx, threshold)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(c.out)
			enc.SetIndent("", "  ")
			return enc.Encode(summary)
		},
	}

	cmd.Flags().IntVarP(&threshold, "threshold", "t", scanner.DefaultThresholdDays, "days ahead to look for expiring contracts")
	cmd.Flags().BoolVar(&direct, "direct", false, "deliver notices immediately instead of queueing them")
	return cmd
}

func newMigrateCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			b, err := c.open(cmd.Context(), cfg, c.logger)
			if err != nil {
				return fmt.Errorf("opening store: %w", err)
			}
			defer b.store.Close()

			if b.migrate == nil {
				return fmt.Errorf("store does not support migrations")
			}
			if err := b.migrate(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(c.out, "schema applied")
			return nil
		},
	}
}

func newDrainCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "drain",
		Short: "Deliver every queued outbox message once and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			b, err := c.open(cmd.Context(), cfg, c.logger)
			if err != nil {
				return fmt.Errorf("opening store: %w", err)
			}
			defer b.store.Close()

			worker := dispatch.NewWorker(&dispatch.WorkerConfig{
				Concurrency:  1,
				PollInterval: cfg.Outbox.PollInterval,
				MaxAttempts:  cfg.Outbox.MaxAttempts,
			}, b.queue, b.store.Audit(), senderFor(cfg.Notify.WebhookURL, cfg.Notify.Timeout, c.logger), c.logger)

			n, err := worker.Drain(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(c.out, "processed %d outbox messages\n", n)
			return nil
		},
	}
}

func senderFor(webhookURL string, timeout time.Duration, log *slog.Logger) notify.Sender {
	if webhookURL != "" {
		return notify.NewWebhookSender(webhookURL, timeout)
	}
	return notify.LogSender{Logger: log}
}
