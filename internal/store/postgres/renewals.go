package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect registration
	"github.com/google/uuid"

	"github.com/narvanalabs/contractdesk/internal/models"
	"github.com/narvanalabs/contractdesk/internal/store"
)

const dialectPostgres = "postgres"

// RenewalStore implements store.RenewalStore using PostgreSQL.
// The renewals_one_active_per_contract partial unique index guarantees at most one
// renewal per contract outside FINAL_PROCESSING.
type RenewalStore struct {
	db     *sql.DB
	tx     *sql.Tx
	logger *slog.Logger
}

// conn returns the queryable connection (transaction or database).
func (s *RenewalStore) conn() queryable {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

const renewalColumns = `
	id, contract_id, org_id, sub_status, proposed_start_date, proposed_end_date,
	proposed_revenue, documents_received, legal_approved, financial_approved,
	signature_received, COALESCE(notes, ''), created_by, last_modified_by,
	created_at, updated_at`

func scanRenewal(row rowScanner) (*models.Renewal, error) {
	r := &models.Renewal{}
	err := row.Scan(
		&r.ID,
		&r.ContractID,
		&r.OrgID,
		&r.SubStatus,
		&r.ProposedStartDate,
		&r.ProposedEndDate,
		&r.ProposedRevenue,
		&r.DocumentsReceived,
		&r.LegalApproved,
		&r.FinancialApproved,
		&r.SignatureReceived,
		&r.Notes,
		&r.CreatedBy,
		&r.LastModifiedBy,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	return r, err
}

// Get retrieves a renewal by ID.
func (s *RenewalStore) Get(ctx context.Context, id string) (*models.Renewal, error) {
	return s.get(ctx, id, "")
}

// GetForUpdate retrieves a renewal and locks its row until the enclosing
// transaction ends.
func (s *RenewalStore) GetForUpdate(ctx context.Context, id string) (*models.Renewal, error) {
	return s.get(ctx, id, " FOR UPDATE")
}

func (s *RenewalStore) get(ctx context.Context, id, lock string) (*models.Renewal, error) {
	if !validID(id) {
		return nil, store.ErrNotFound
	}

	query := `SELECT` + renewalColumns + ` FROM renewals WHERE id = $1` + lock

	r, err := scanRenewal(s.conn().QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("querying renewal: %w", err)
	}
	return r, nil
}

// GetActiveByContract retrieves the renewal of a contract that is not in FINAL_PROCESSING.
func (s *RenewalStore) GetActiveByContract(ctx context.Context, contractID string) (*models.Renewal, error) {
	if !validID(contractID) {
		return nil, store.ErrNotFound
	}

	query := `SELECT` + renewalColumns + `
		FROM renewals
		WHERE contract_id = $1 AND sub_status <> $2`

	r, err := scanRenewal(s.conn().QueryRowContext(ctx, query, contractID, models.SubStatusFinalProcessing))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("querying active renewal: %w", err)
	}
	return r, nil
}

// CreateIfNoActive inserts r. A second active renewal for the same contract is
// rejected by the partial unique index and reported as ErrActiveRenewalExists.
func (s *RenewalStore) CreateIfNoActive(ctx context.Context, r *models.Renewal) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now

	query := `
		INSERT INTO renewals (id, contract_id, org_id, sub_status, proposed_start_date,
			proposed_end_date, proposed_revenue, documents_received, legal_approved,
			financial_approved, signature_received, notes, created_by, last_modified_by,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NULLIF($12, ''), $13, $14, $15, $16)`

	_, err := s.conn().ExecContext(ctx, query,
		r.ID,
		r.ContractID,
		r.OrgID,
		r.SubStatus,
		r.ProposedStartDate,
		r.ProposedEndDate,
		r.ProposedRevenue,
		r.DocumentsReceived,
		r.LegalApproved,
		r.FinancialApproved,
		r.SignatureReceived,
		r.Notes,
		r.CreatedBy,
		r.LastModifiedBy,
		r.CreatedAt,
		r.UpdatedAt,
	)
	if err != nil {
		if violatesConstraint(err, constraintActiveRenewalUnique) {
			return store.ErrActiveRenewalExists
		}
		if isUniqueViolation(err) {
			return store.ErrDuplicateKey
		}
		return fmt.Errorf("inserting renewal: %w", err)
	}

	s.logger.Debug("renewal created", "renewal_id", r.ID, "contract_id", r.ContractID)
	return nil
}

// Update persists the mutable fields of r. contract_id, org_id, created_by and
// created_at are never written.
func (s *RenewalStore) Update(ctx context.Context, r *models.Renewal) error {
	if !validID(r.ID) {
		return store.ErrNotFound
	}
	r.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE renewals
		SET sub_status = $2, proposed_start_date = $3, proposed_end_date = $4,
			proposed_revenue = $5, documents_received = $6, legal_approved = $7,
			financial_approved = $8, signature_received = $9, notes = NULLIF($10, ''),
			last_modified_by = $11, updated_at = $12
		WHERE id = $1
		RETURNING` + renewalColumns

	updated, err := scanRenewal(s.conn().QueryRowContext(ctx, query,
		r.ID,
		r.SubStatus,
		r.ProposedStartDate,
		r.ProposedEndDate,
		r.ProposedRevenue,
		r.DocumentsReceived,
		r.LegalApproved,
		r.FinancialApproved,
		r.SignatureReceived,
		r.Notes,
		r.LastModifiedBy,
		r.UpdatedAt,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrNotFound
		}
		if violatesConstraint(err, constraintActiveRenewalUnique) {
			return store.ErrActiveRenewalExists
		}
		return fmt.Errorf("updating renewal: %w", err)
	}

	*r = *updated
	return nil
}

// ListByContract retrieves the renewals of a contract, newest first.
func (s *RenewalStore) ListByContract(ctx context.Context, contractID string, filter store.RenewalFilter) ([]*models.Renewal, error) {
	if !validID(contractID) {
		return nil, nil
	}

	query, args, err := buildRenewalListQuery(contractID, filter)
	if err != nil {
		return nil, fmt.Errorf("building renewal list query: %w", err)
	}

	rows, err := s.conn().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying renewals: %w", err)
	}
	defer rows.Close()

	var renewals []*models.Renewal
	for rows.Next() {
		r, err := scanRenewal(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning renewal: %w", err)
		}
		renewals = append(renewals, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating renewals: %w", err)
	}
	return renewals, nil
}

// buildRenewalListQuery renders the filtered list query with positional arguments.
func buildRenewalListQuery(contractID string, filter store.RenewalFilter) (string, []any, error) {
	ds := goqu.Dialect(dialectPostgres).
		From("renewals").
		Select(goqu.L(renewalColumns)).
		Where(goqu.C("contract_id").Eq(contractID))

	if len(filter.SubStatuses) > 0 {
		names := make([]string, len(filter.SubStatuses))
		for i, st := range filter.SubStatuses {
			names[i] = string(st)
		}
		ds = ds.Where(goqu.C("sub_status").In(names))
	}
	if filter.ActiveOnly {
		ds = ds.Where(goqu.C("sub_status").Neq(string(models.SubStatusFinalProcessing)))
	}

	return ds.Order(goqu.C("created_at").Desc(), goqu.C("id").Asc()).
		Prepared(true).
		ToSQL()
}
