// Package store provides database access interfaces and implementations.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/narvanalabs/contractdesk/internal/models"
)

// Common store errors.
var (
	// ErrNotFound is returned when a requested resource does not exist.
	ErrNotFound = errors.New("resource not found")

	// ErrDuplicateKey is returned when attempting to create a resource with a duplicate key.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrActiveRenewalExists is returned when a write would leave a contract with more
	// than one renewal outside FINAL_PROCESSING.
	ErrActiveRenewalExists = errors.New("active renewal already exists")
)

// ContractStore defines read access to contracts. Contracts are owned by the
// surrounding CRUD application; Create exists for seeding and tests.
type ContractStore interface {
	// Create inserts a contract.
	Create(ctx context.Context, c *models.Contract) error
	// Get retrieves a contract by ID.
	Get(ctx context.Context, id string) (*models.Contract, error)
	// ListEndingBetween returns contracts in one of the given statuses whose end date
	// lies in [from, to], ordered by end date.
	ListEndingBetween(ctx context.Context, statuses []models.ContractStatus, from, to time.Time) ([]*models.Contract, error)
}

// ReminderStore defines operations for contract reminders.
// At most one reminder exists per (contract, kind).
type ReminderStore interface {
	// GetByContractKind retrieves the reminder for a contract and kind.
	GetByContractKind(ctx context.Context, contractID string, kind models.ReminderKind) (*models.Reminder, error)
	// CreateIfAbsent inserts r unless a reminder for the same contract and kind
	// already exists. It reports whether r was inserted. The check and insert are atomic.
	CreateIfAbsent(ctx context.Context, r *models.Reminder) (bool, error)
	// Get retrieves a reminder by ID.
	Get(ctx context.Context, id string) (*models.Reminder, error)
	// Acknowledge marks the reminder acknowledged by actorID unless it already is.
	// It returns the stored reminder and whether this call changed it.
	Acknowledge(ctx context.Context, id, actorID string, at time.Time) (*models.Reminder, bool, error)
	// ListByContract retrieves all reminders for a contract.
	ListByContract(ctx context.Context, contractID string) ([]*models.Reminder, error)
}

// RenewalFilter narrows ListByContract.
type RenewalFilter struct {
	SubStatuses []models.SubStatus
	ActiveOnly  bool
}

// RenewalStore defines operations for renewals.
type RenewalStore interface {
	// Get retrieves a renewal by ID.
	Get(ctx context.Context, id string) (*models.Renewal, error)
	// GetForUpdate retrieves a renewal by ID and holds it against concurrent
	// writers until the transaction started by WithTx finishes.
	GetForUpdate(ctx context.Context, id string) (*models.Renewal, error)
	// GetActiveByContract retrieves the renewal of a contract that is not in
	// FINAL_PROCESSING. Returns ErrNotFound when there is none.
	GetActiveByContract(ctx context.Context, contractID string) (*models.Renewal, error)
	// CreateIfNoActive inserts r unless the contract already has an active renewal,
	// in which case ErrActiveRenewalExists is returned. The check and insert are atomic.
	CreateIfNoActive(ctx context.Context, r *models.Renewal) error
	// Update persists the mutable fields of r.
	Update(ctx context.Context, r *models.Renewal) error
	// ListByContract retrieves the renewals of a contract, newest first.
	ListByContract(ctx context.Context, contractID string, filter RenewalFilter) ([]*models.Renewal, error)
}

// OrgStore defines operations for organization management.
type OrgStore interface {
	// Create creates a new organization.
	Create(ctx context.Context, org *models.Organization) error
	// Get retrieves an organization by ID.
	Get(ctx context.Context, id string) (*models.Organization, error)
}

// AuditStore persists audit entries. Entries are append-only.
type AuditStore interface {
	Append(ctx context.Context, e *models.AuditEntry) error
	// List returns entries for an entity, oldest first.
	List(ctx context.Context, entityType, entityID string) ([]*models.AuditEntry, error)
}

// Store is the main interface for database operations.
type Store interface {
	// Contracts returns the ContractStore.
	Contracts() ContractStore
	// Reminders returns the ReminderStore.
	Reminders() ReminderStore
	// Renewals returns the RenewalStore.
	Renewals() RenewalStore
	// Orgs returns the OrgStore.
	Orgs() OrgStore
	// Audit returns the AuditStore.
	Audit() AuditStore

	// WithTx executes the given function within a database transaction.
	// If the function returns an error, the transaction is rolled back.
	// Otherwise, the transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error

	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
