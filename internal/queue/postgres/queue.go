// Package postgres provides a PostgreSQL-backed implementation of the outbox queue.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/narvanalabs/contractdesk/internal/models"
	"github.com/narvanalabs/contractdesk/internal/queue"
)

// PostgresQueue implements queue.Queue on the outbox table.
type PostgresQueue struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresQueue creates a new PostgreSQL-backed queue.
func NewPostgresQueue(db *sql.DB, logger *slog.Logger) *PostgresQueue {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresQueue{
		db:     db,
		logger: logger,
	}
}

// Enqueue adds a new message to the outbox.
func (q *PostgresQueue) Enqueue(ctx context.Context, msg *models.OutboxMessage) error {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	msg.Status = models.OutboxStatusPending

	query := `
		INSERT INTO outbox (id, topic, payload, status, attempts, created_at)
		VALUES ($1, $2, $3, 'pending', 0, $4)`

	_, err := q.db.ExecContext(ctx, query, msg.ID, msg.Topic, msg.Payload, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting message into outbox: %w", err)
	}

	q.logger.Debug("enqueued outbox message", "message_id", msg.ID, "topic", msg.Topic)
	return nil
}

// Dequeue retrieves and locks the next pending message.
// Uses SELECT FOR UPDATE SKIP LOCKED for concurrent worker safety.
func (q *PostgresQueue) Dequeue(ctx context.Context) (*models.OutboxMessage, error) {
	// Use a transaction to atomically select and update the message status
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	selectQuery := `
		SELECT id, topic, payload, attempts, COALESCE(last_error, ''), created_at
		FROM outbox
		WHERE status = 'pending'
		ORDER BY created_at ASC
		LIMIT 1
		FOR UPDATE SKIP LOCKED`

	msg := &models.OutboxMessage{}
	err = tx.QueryRowContext(ctx, selectQuery).Scan(
		&msg.ID,
		&msg.Topic,
		&msg.Payload,
		&msg.Attempts,
		&msg.LastError,
		&msg.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, queue.ErrNoMessages
		}
		return nil, fmt.Errorf("selecting message from outbox: %w", err)
	}

	updateQuery := `
		UPDATE outbox
		SET status = 'processing', started_at = $2
		WHERE id = $1`

	if _, err := tx.ExecContext(ctx, updateQuery, msg.ID, time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("updating message status: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}

	msg.Status = models.OutboxStatusProcessing
	q.logger.Debug("dequeued outbox message", "message_id", msg.ID, "topic", msg.Topic)
	return msg, nil
}

// Ack acknowledges successful delivery, removing the message from the outbox.
func (q *PostgresQueue) Ack(ctx context.Context, id string) error {
	query := `
		DELETE FROM outbox
		WHERE id = $1 AND status = 'processing'`

	return q.exec(ctx, "acknowledged", query, id)
}

// Nack records a failed attempt and returns the message to pending.
func (q *PostgresQueue) Nack(ctx context.Context, id string, reason string) error {
	query := `
		UPDATE outbox
		SET status = 'pending', started_at = NULL, attempts = attempts + 1, last_error = $2
		WHERE id = $1 AND status = 'processing'`

	return q.exec(ctx, "nacked", query, id, reason)
}

// Bury marks a message dead after its final failed attempt.
func (q *PostgresQueue) Bury(ctx context.Context, id string, reason string) error {
	query := `
		UPDATE outbox
		SET status = 'dead', started_at = NULL, attempts = attempts + 1, last_error = $2
		WHERE id = $1 AND status = 'processing'`

	return q.exec(ctx, "buried", query, id, reason)
}

func (q *PostgresQueue) exec(ctx context.Context, verb, query string, id string, args ...any) error {
	result, err := q.db.ExecContext(ctx, query, append([]any{id}, args...)...)
	if err != nil {
		return fmt.Errorf("updating outbox message: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return queue.ErrMessageNotFound
	}

	q.logger.Debug(verb+" outbox message", "message_id", id)
	return nil
}

// RequeueStale returns messages stuck in processing for longer than olderThan to
// pending. A worker that crashed mid-delivery leaves such messages behind.
func (q *PostgresQueue) RequeueStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	query := `
		UPDATE outbox
		SET status = 'pending', started_at = NULL
		WHERE status = 'processing' AND started_at < $1`

	result, err := q.db.ExecContext(ctx, query, time.Now().UTC().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("requeueing stale outbox messages: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("getting rows affected: %w", err)
	}
	if n > 0 {
		q.logger.Warn("requeued stale outbox messages", "count", n)
	}
	return n, nil
}

// Ping checks that the outbox table is reachable.
func (q *PostgresQueue) Ping(ctx context.Context) error {
	var one int
	err := q.db.QueryRowContext(ctx, `SELECT 1 FROM outbox LIMIT 1`).Scan(&one)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("querying outbox: %w", err)
	}
	return nil
}
