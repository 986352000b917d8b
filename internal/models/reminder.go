package models

import "time"

// ReminderKind distinguishes the reasons a reminder can be raised for a contract.
// (ContractID, Kind) is the idempotence key: at most one reminder exists per pair.
type ReminderKind string

const (
	// ReminderKindExpiration marks that an expiration notice was produced.
	ReminderKindExpiration ReminderKind = "expiration"
)

// Reminder is a one-time record that a notice has been produced for a contract.
type Reminder struct {
	ID             string       `json:"id"`
	ContractID     string       `json:"contract_id"`
	Kind           ReminderKind `json:"kind"`
	ReminderDate   time.Time    `json:"reminder_date"`
	IsAcknowledged bool         `json:"is_acknowledged"`
	AcknowledgedBy string       `json:"acknowledged_by,omitempty"`
	AcknowledgedAt *time.Time   `json:"acknowledged_at,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
}

// Acknowledge marks the reminder acknowledged by actorID at the given time.
// It returns false when the reminder was already acknowledged; the first
// acknowledgement is kept.
func (r *Reminder) Acknowledge(actorID string, at time.Time) bool {
	if r.IsAcknowledged {
		return false
	}
	r.IsAcknowledged = true
	r.AcknowledgedBy = actorID
	r.AcknowledgedAt = &at
	return true
}
