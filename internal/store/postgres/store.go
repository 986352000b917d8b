// Package postgres provides PostgreSQL implementation of the store interfaces.
package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/narvanalabs/contractdesk/internal/store"
)

//go:embed schema.sql
var schema string

// PostgresStore implements the Store interface using PostgreSQL.
type PostgresStore struct {
	db        *sql.DB
	logger    *slog.Logger
	contracts *ContractStore
	reminders *ReminderStore
	renewals  *RenewalStore
	orgs      *OrgStore
	audit     *AuditStore
}

// Config holds PostgreSQL connection configuration.
type Config struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig(dsn string) *Config {
	return &Config{
		DSN:             dsn,
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 1 * time.Minute,
	}
}

// NewPostgresStore creates a new PostgreSQL store with the given configuration.
func NewPostgresStore(cfg *Config, logger *slog.Logger) (*PostgresStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	logger.Info("connected to PostgreSQL database")
	return newStore(db, logger), nil
}

func newStore(db *sql.DB, logger *slog.Logger) *PostgresStore {
	return &PostgresStore{
		db:        db,
		logger:    logger,
		contracts: &ContractStore{db: db, logger: logger},
		reminders: &ReminderStore{db: db, logger: logger},
		renewals:  &RenewalStore{db: db, logger: logger},
		orgs:      &OrgStore{db: db, logger: logger},
		audit:     &AuditStore{db: db, logger: logger},
	}
}

// Migrate applies the embedded schema. Every statement is idempotent.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("applying schema: %w", err)
	}
	s.logger.Info("database schema applied")
	return nil
}

// Contracts returns the ContractStore.
func (s *PostgresStore) Contracts() store.ContractStore {
	return s.contracts
}

// Reminders returns the ReminderStore.
func (s *PostgresStore) Reminders() store.ReminderStore {
	return s.reminders
}

// Renewals returns the RenewalStore.
func (s *PostgresStore) Renewals() store.RenewalStore {
	return s.renewals
}

// Orgs returns the OrgStore.
func (s *PostgresStore) Orgs() store.OrgStore {
	return s.orgs
}

// Audit returns the AuditStore.
func (s *PostgresStore) Audit() store.AuditStore {
	return s.audit
}

// WithTx executes the given function within a database transaction.
func (s *PostgresStore) WithTx(ctx context.Context, fn func(store.Store) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	// Create a transaction-scoped store
	txStore := &txStore{
		tx:     tx,
		logger: s.logger,
	}

	// Execute the function
	if err := fn(txStore); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Error("failed to rollback transaction", "error", rbErr)
		}
		return err
	}

	// Commit the transaction
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

// Ping verifies the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	s.logger.Info("closing PostgreSQL connection")
	return s.db.Close()
}

// DB returns the underlying database connection.
// The outbox queue shares it.
func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

// txStore wraps a transaction and implements the Store interface.
type txStore struct {
	tx        *sql.Tx
	logger    *slog.Logger
	contracts *ContractStore
	reminders *ReminderStore
	renewals  *RenewalStore
	orgs      *OrgStore
	audit     *AuditStore
}

func (s *txStore) Contracts() store.ContractStore {
	if s.contracts == nil {
		s.contracts = &ContractStore{tx: s.tx, logger: s.logger}
	}
	return s.contracts
}

func (s *txStore) Reminders() store.ReminderStore {
	if s.reminders == nil {
		s.reminders = &ReminderStore{tx: s.tx, logger: s.logger}
	}
	return s.reminders
}

func (s *txStore) Renewals() store.RenewalStore {
	if s.renewals == nil {
		s.renewals = &RenewalStore{tx: s.tx, logger: s.logger}
	}
	return s.renewals
}

func (s *txStore) Orgs() store.OrgStore {
	if s.orgs == nil {
		s.orgs = &OrgStore{tx: s.tx, logger: s.logger}
	}
	return s.orgs
}

func (s *txStore) Audit() store.AuditStore {
	if s.audit == nil {
		s.audit = &AuditStore{tx: s.tx, logger: s.logger}
	}
	return s.audit
}

func (s *txStore) WithTx(ctx context.Context, fn func(store.Store) error) error {
	// Already in a transaction, just execute the function
	return fn(s)
}

func (s *txStore) Ping(ctx context.Context) error {
	return nil
}

func (s *txStore) Close() error {
	// No-op for transaction store
	return nil
}

// queryable is an interface that both *sql.DB and *sql.Tx implement.
type queryable interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}
