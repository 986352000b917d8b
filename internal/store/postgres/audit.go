package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"

	"github.com/narvanalabs/contractdesk/internal/models"
	"github.com/narvanalabs/contractdesk/internal/store"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// AuditStore implements store.AuditStore using PostgreSQL.
type AuditStore struct {
	db     *sql.DB
	tx     *sql.Tx
	logger *slog.Logger
}

// conn returns the queryable connection (transaction or database).
func (s *AuditStore) conn() queryable {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

// Append inserts an audit entry. Entries keep the ID they were emitted with, so a
// redelivered entry is reported as store.ErrDuplicateKey instead of being logged twice.
func (s *AuditStore) Append(ctx context.Context, e *models.AuditEntry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	var details []byte
	if len(e.Details) > 0 {
		var err error
		details, err = json.Marshal(e.Details)
		if err != nil {
			return fmt.Errorf("marshaling audit details: %w", err)
		}
	}

	query := `
		INSERT INTO audit_log (id, action, entity_type, entity_id, details, severity, actor_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8)`

	_, err := s.conn().ExecContext(ctx, query,
		e.ID,
		e.Action,
		e.EntityType,
		e.EntityID,
		details,
		e.Severity,
		e.ActorID,
		e.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicateKey
		}
		return fmt.Errorf("inserting audit entry: %w", err)
	}
	return nil
}

// List returns the audit entries of an entity, oldest first.
func (s *AuditStore) List(ctx context.Context, entityType, entityID string) ([]*models.AuditEntry, error) {
	query := `
		SELECT id, action, entity_type, entity_id, details, severity, COALESCE(actor_id, ''), created_at
		FROM audit_log
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY created_at ASC`

	rows, err := s.conn().QueryContext(ctx, query, entityType, entityID)
	if err != nil {
		return nil, fmt.Errorf("querying audit log: %w", err)
	}
	defer rows.Close()

	var entries []*models.AuditEntry
	for rows.Next() {
		e := &models.AuditEntry{}
		var details []byte
		if err := rows.Scan(
			&e.ID,
			&e.Action,
			&e.EntityType,
			&e.EntityID,
			&details,
			&e.Severity,
			&e.ActorID,
			&e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning audit entry: %w", err)
		}
		if len(details) > 0 {
			if err := json.Unmarshal(details, &e.Details); err != nil {
				return nil, fmt.Errorf("unmarshaling audit details: %w", err)
			}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit log: %w", err)
	}
	return entries, nil
}
