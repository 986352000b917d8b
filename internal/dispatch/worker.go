// Package dispatch delivers outbox messages: expiration notices go to a
// notify.Sender and audit entries go to the AuditStore.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/narvanalabs/contractdesk/internal/models"
	"github.com/narvanalabs/contractdesk/internal/notify"
	"github.com/narvanalabs/contractdesk/internal/queue"
	"github.com/narvanalabs/contractdesk/internal/store"
)

// errPermanent marks failures that retrying cannot fix.
var errPermanent = errors.New("permanent delivery failure")

// Worker processes outbox messages from the queue.
type Worker struct {
	queue  queue.Queue
	audit  store.AuditStore
	sender notify.Sender
	logger *slog.Logger

	concurrency  int
	pollInterval time.Duration
	maxAttempts  int
	stopCh       chan struct{}
	stopOnce     sync.Once
	wg           sync.WaitGroup

	delivered metric.Int64Counter
	failed    metric.Int64Counter
}

// WorkerConfig holds configuration for the dispatch worker.
type WorkerConfig struct {
	Concurrency  int
	PollInterval time.Duration
	MaxAttempts  int
}

// DefaultWorkerConfig returns a WorkerConfig with sensible defaults.
func DefaultWorkerConfig() *WorkerConfig {
	return &WorkerConfig{
		Concurrency:  2,
		PollInterval: time.Second,
		MaxAttempts:  5,
	}
}

// NewWorker creates a new dispatch worker.
func NewWorker(cfg *WorkerConfig, q queue.Queue, auditStore store.AuditStore, sender notify.Sender, logger *slog.Logger) *Worker {
	if cfg == nil {
		cfg = DefaultWorkerConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = time.Second
	}

	meter := otel.Meter("github.com/narvanalabs/contractdesk/internal/dispatch")
	delivered, _ := meter.Int64Counter("contractdesk.outbox.delivered")
	failed, _ := meter.Int64Counter("contractdesk.outbox.failed")

	return &Worker{
		queue:        q,
		audit:        auditStore,
		sender:       sender,
		logger:       logger.With("component", "dispatch"),
		concurrency:  max(cfg.Concurrency, 1),
		pollInterval: poll,
		maxAttempts:  max(cfg.MaxAttempts, 1),
		stopCh:       make(chan struct{}),
		delivered:    delivered,
		failed:       failed,
	}
}

// Start begins processing messages from the queue.
// It spawns multiple goroutines based on the configured concurrency.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("starting dispatch worker",
		"concurrency", w.concurrency,
		"max_attempts", w.maxAttempts,
	)

	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.workerLoop(ctx, i)
	}

	return nil
}

// Stop gracefully stops the worker and waits for in-flight messages to complete.
func (w *Worker) Stop() {
	w.logger.Info("stopping dispatch worker")
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
	w.logger.Info("dispatch worker stopped")
}

// workerLoop is the main loop for a single worker goroutine.
func (w *Worker) workerLoop(ctx context.Context, workerID int) {
	defer w.wg.Done()

	logger := w.logger.With("worker_id", workerID)
	logger.Debug("worker started")

	for {
		select {
		case <-ctx.Done():
			logger.Debug("worker context cancelled")
			return
		case <-w.stopCh:
			logger.Debug("worker stop signal received")
			return
		default:
		}

		processed, err := w.ProcessNext(ctx)
		switch {
		case err != nil:
			logger.Error("failed to dequeue message", "error", err)
			w.sleep(ctx, 5*w.pollInterval)
		case !processed:
			w.sleep(ctx, w.pollInterval)
		}
	}
}

func (w *Worker) sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	case <-w.stopCh:
	}
}

// ProcessNext delivers one message. It reports false when the queue was empty.
// Delivery failures are handled by Nack or Bury and are not returned; only a
// failure to dequeue is.
func (w *Worker) ProcessNext(ctx context.Context) (bool, error) {
	msg, err := w.queue.Dequeue(ctx)
	if err != nil {
		if errors.Is(err, queue.ErrNoMessages) {
			return false, nil
		}
		return false, err
	}

	logger := w.logger.With("message_id", msg.ID, "topic", msg.Topic, "attempt", msg.Attempts+1)

	if err := w.deliver(ctx, msg); err != nil {
		w.failed.Add(ctx, 1, metric.WithAttributes(attribute.String("topic", string(msg.Topic))))

		if errors.Is(err, errPermanent) || msg.Attempts+1 >= w.maxAttempts {
			logger.Error("giving up on outbox message", "error", err)
			if buryErr := w.queue.Bury(ctx, msg.ID, err.Error()); buryErr != nil {
				logger.Error("failed to bury message", "error", buryErr)
			}
			return true, nil
		}

		logger.Warn("outbox delivery failed, will retry", "error", err)
		if nackErr := w.queue.Nack(ctx, msg.ID, err.Error()); nackErr != nil {
			logger.Error("failed to nack message", "error", nackErr)
		}
		return true, nil
	}

	if err := w.queue.Ack(ctx, msg.ID); err != nil {
		logger.Error("failed to ack message", "error", err)
	}
	w.delivered.Add(ctx, 1, metric.WithAttributes(attribute.String("topic", string(msg.Topic))))
	logger.Debug("outbox message delivered")
	return true, nil
}

// Drain processes messages until the queue is empty or ctx is done, and returns
// how many were handled.
func (w *Worker) Drain(ctx context.Context) (int, error) {
	n := 0
	for ctx.Err() == nil {
		processed, err := w.ProcessNext(ctx)
		if err != nil {
			return n, err
		}
		if !processed {
			return n, nil
		}
		n++
	}
	return n, ctx.Err()
}

func (w *Worker) deliver(ctx context.Context, msg *models.OutboxMessage) error {
	switch msg.Topic {
	case models.TopicExpirationNotice:
		var n notify.Notice
		if err := queue.Decode(msg, &n); err != nil {
			return fmt.Errorf("%w: %v", errPermanent, err)
		}
		return w.sender.Send(ctx, n)

	case models.TopicAuditEntry:
		var e models.AuditEntry
		if err := queue.Decode(msg, &e); err != nil {
			return fmt.Errorf("%w: %v", errPermanent, err)
		}
		err := w.audit.Append(ctx, &e)
		if errors.Is(err, store.ErrDuplicateKey) {
			// Written by an earlier attempt whose ack was lost.
			return nil
		}
		return err

	default:
		return fmt.Errorf("%w: unknown topic %q", errPermanent, msg.Topic)
	}
}
