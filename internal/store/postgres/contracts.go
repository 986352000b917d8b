package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/narvanalabs/contractdesk/internal/models"
	"github.com/narvanalabs/contractdesk/internal/store"
)

// ContractStore implements store.ContractStore using PostgreSQL.
type ContractStore struct {
	db     *sql.DB
	tx     *sql.Tx
	logger *slog.Logger
}

// conn returns the queryable connection (transaction or database).
func (s *ContractStore) conn() queryable {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

const contractColumns = `
	id, contract_number, status, start_date, end_date,
	COALESCE(owner_id, ''), COALESCE(owner_email, ''), COALESCE(owner_name, ''),
	party_kind, party_id, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanContract(row rowScanner) (*models.Contract, error) {
	c := &models.Contract{}
	err := row.Scan(
		&c.ID,
		&c.ContractNumber,
		&c.Status,
		&c.StartDate,
		&c.EndDate,
		&c.Owner.ID,
		&c.Owner.Email,
		&c.Owner.Name,
		&c.Party.Kind,
		&c.Party.ID,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	return c, err
}

// Create inserts a contract.
func (s *ContractStore) Create(ctx context.Context, c *models.Contract) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("validating contract: %w", err)
	}
	if c.ID == "" {
		c.ID = uuid.New().String()
	}

	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now

	query := `
		INSERT INTO contracts (id, contract_number, status, start_date, end_date,
			owner_id, owner_email, owner_name, party_kind, party_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''), NULLIF($8, ''), $9, $10, $11, $12)`

	_, err := s.conn().ExecContext(ctx, query,
		c.ID,
		c.ContractNumber,
		c.Status,
		c.StartDate,
		c.EndDate,
		c.Owner.ID,
		c.Owner.Email,
		c.Owner.Name,
		c.Party.Kind,
		c.Party.ID,
		c.CreatedAt,
		c.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicateKey
		}
		return fmt.Errorf("inserting contract: %w", err)
	}

	s.logger.Debug("contract created", "contract_id", c.ID, "contract_number", c.ContractNumber)
	return nil
}

// Get retrieves a contract by ID.
func (s *ContractStore) Get(ctx context.Context, id string) (*models.Contract, error) {
	if !validID(id) {
		return nil, store.ErrNotFound
	}

	query := `SELECT` + contractColumns + ` FROM contracts WHERE id = $1`

	c, err := scanContract(s.conn().QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("querying contract: %w", err)
	}
	return c, nil
}

// ListEndingBetween returns contracts in one of statuses whose end date lies in [from, to].
func (s *ContractStore) ListEndingBetween(ctx context.Context, statuses []models.ContractStatus, from, to time.Time) ([]*models.Contract, error) {
	names := make([]string, len(statuses))
	for i, st := range statuses {
		names[i] = string(st)
	}

	query := `SELECT` + contractColumns + `
		FROM contracts
		WHERE status = ANY($1::text[])
		  AND end_date >= $2
		  AND end_date <= $3
		ORDER BY end_date ASC, id ASC`

	rows, err := s.conn().QueryContext(ctx, query, pq.Array(names), from, to)
	if err != nil {
		return nil, fmt.Errorf("querying contracts by end date: %w", err)
	}
	defer rows.Close()

	var contracts []*models.Contract
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning contract: %w", err)
		}
		contracts = append(contracts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating contracts: %w", err)
	}
	return contracts, nil
}
