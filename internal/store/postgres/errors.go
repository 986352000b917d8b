package postgres

import (
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// PostgreSQL error code for unique_violation.
const uniqueViolation = "23505"

// Constraint names from schema.sql that the stores translate into sentinel errors.
const (
	constraintReminderUnique      = "reminders_contract_kind_key"
	constraintActiveRenewalUnique = "renewals_one_active_per_contract"
)

// isUniqueViolation checks if the error is a PostgreSQL unique constraint violation.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// violatesConstraint reports whether err is a unique violation of the named constraint.
func violatesConstraint(err error, name string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == name
}

// validID reports whether id can be a primary key. Keys are UUIDs, so anything
// else cannot match a row and is treated as not found rather than sent to the server.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
