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
	"github.com/narvanalabs/contractdesk/internal/store"
)

// ReminderStore implements store.ReminderStore using PostgreSQL.
// Uniqueness of (contract_id, kind) is enforced by the reminders_contract_kind_key constraint.
type ReminderStore struct {
	db     *sql.DB
	tx     *sql.Tx
	logger *slog.Logger
}

// conn returns the queryable connection (transaction or database).
func (s *ReminderStore) conn() queryable {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

const reminderColumns = `
	id, contract_id, kind, reminder_date, is_acknowledged,
	COALESCE(acknowledged_by, ''), acknowledged_at, created_at`

func scanReminder(row rowScanner) (*models.Reminder, error) {
	r := &models.Reminder{}
	var ackAt sql.NullTime
	err := row.Scan(
		&r.ID,
		&r.ContractID,
		&r.Kind,
		&r.ReminderDate,
		&r.IsAcknowledged,
		&r.AcknowledgedBy,
		&ackAt,
		&r.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if ackAt.Valid {
		t := ackAt.Time
		r.AcknowledgedAt = &t
	}
	return r, nil
}

// GetByContractKind retrieves the reminder for a contract and kind.
func (s *ReminderStore) GetByContractKind(ctx context.Context, contractID string, kind models.ReminderKind) (*models.Reminder, error) {
	if !validID(contractID) {
		return nil, store.ErrNotFound
	}

	query := `SELECT` + reminderColumns + ` FROM reminders WHERE contract_id = $1 AND kind = $2`

	r, err := scanReminder(s.conn().QueryRowContext(ctx, query, contractID, kind))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("querying reminder: %w", err)
	}
	return r, nil
}

// CreateIfAbsent inserts r unless a reminder for the same contract and kind exists.
func (s *ReminderStore) CreateIfAbsent(ctx context.Context, r *models.Reminder) (bool, error) {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO reminders (id, contract_id, kind, reminder_date, is_acknowledged, created_at)
		VALUES ($1, $2, $3, $4, FALSE, $5)
		ON CONFLICT ON CONSTRAINT ` + constraintReminderUnique + ` DO NOTHING
		RETURNING id`

	var id string
	err := s.conn().QueryRowContext(ctx, query,
		r.ID,
		r.ContractID,
		r.Kind,
		r.ReminderDate,
		r.CreatedAt,
	).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Debug("reminder already exists",
				"contract_id", r.ContractID,
				"kind", r.Kind,
			)
			return false, nil
		}
		return false, fmt.Errorf("inserting reminder: %w", err)
	}
	return true, nil
}

// Get retrieves a reminder by ID.
func (s *ReminderStore) Get(ctx context.Context, id string) (*models.Reminder, error) {
	if !validID(id) {
		return nil, store.ErrNotFound
	}

	query := `SELECT` + reminderColumns + ` FROM reminders WHERE id = $1`

	r, err := scanReminder(s.conn().QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("querying reminder: %w", err)
	}
	return r, nil
}

// Acknowledge marks a reminder acknowledged unless it already is.
func (s *ReminderStore) Acknowledge(ctx context.Context, id, actorID string, at time.Time) (*models.Reminder, bool, error) {
	if !validID(id) {
		return nil, false, store.ErrNotFound
	}

	query := `
		UPDATE reminders
		SET is_acknowledged = TRUE, acknowledged_by = $2, acknowledged_at = $3
		WHERE id = $1 AND NOT is_acknowledged
		RETURNING` + reminderColumns

	r, err := scanReminder(s.conn().QueryRowContext(ctx, query, id, actorID, at))
	if err == nil {
		return r, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("acknowledging reminder: %w", err)
	}

	// Either missing or already acknowledged.
	r, err = s.Get(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return r, false, nil
}

// ListByContract retrieves all reminders for a contract.
func (s *ReminderStore) ListByContract(ctx context.Context, contractID string) ([]*models.Reminder, error) {
	if !validID(contractID) {
		return nil, nil
	}

	query := `SELECT` + reminderColumns + `
		FROM reminders
		WHERE contract_id = $1
		ORDER BY created_at ASC`

	rows, err := s.conn().QueryContext(ctx, query, contractID)
	if err != nil {
		return nil, fmt.Errorf("querying reminders: %w", err)
	}
	defer rows.Close()

	var reminders []*models.Reminder
	for rows.Next() {
		r, err := scanReminder(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning reminder: %w", err)
		}
		reminders = append(reminders, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating reminders: %w", err)
	}
	return reminders, nil
}
