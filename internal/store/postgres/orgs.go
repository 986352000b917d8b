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

// OrgStore implements store.OrgStore using PostgreSQL.
type OrgStore struct {
	db     *sql.DB
	tx     *sql.Tx
	logger *slog.Logger
}

// conn returns the queryable connection (transaction or database).
func (s *OrgStore) conn() queryable {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

// Create creates a new organization.
func (s *OrgStore) Create(ctx context.Context, org *models.Organization) error {
	if err := org.Validate(); err != nil {
		return fmt.Errorf("validating organization: %w", err)
	}
	if org.ID == "" {
		org.ID = uuid.New().String()
	}

	query := `
		INSERT INTO organizations (id, name, slug, contact_email, created_at, updated_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6)
		RETURNING id, created_at, updated_at`

	now := time.Now().UTC()
	if org.CreatedAt.IsZero() {
		org.CreatedAt = now
	}
	if org.UpdatedAt.IsZero() {
		org.UpdatedAt = now
	}

	err := s.conn().QueryRowContext(ctx, query,
		org.ID,
		org.Name,
		org.Slug,
		org.ContactEmail,
		org.CreatedAt,
		org.UpdatedAt,
	).Scan(&org.ID, &org.CreatedAt, &org.UpdatedAt)

	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicateKey
		}
		return fmt.Errorf("inserting organization: %w", err)
	}

	return nil
}

// Get retrieves an organization by ID.
func (s *OrgStore) Get(ctx context.Context, id string) (*models.Organization, error) {
	if !validID(id) {
		return nil, store.ErrNotFound
	}

	query := `
		SELECT id, name, slug, COALESCE(contact_email, ''), created_at, updated_at
		FROM organizations
		WHERE id = $1`

	org := &models.Organization{}
	err := s.conn().QueryRowContext(ctx, query, id).Scan(
		&org.ID,
		&org.Name,
		&org.Slug,
		&org.ContactEmail,
		&org.CreatedAt,
		&org.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("querying organization: %w", err)
	}

	return org, nil
}
