package models

import "time"

// Severity grades an audit entry.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Audit actions emitted by the renewal and reminder flows.
const (
	AuditActionRenewalCreated       = "renewal.created"
	AuditActionRenewalUpdated       = "renewal.updated"
	AuditActionRenewalStatusChanged = "renewal.status_changed"
	AuditActionReminderAcknowledged = "reminder.acknowledged"
)

// Audited entity types.
const (
	EntityRenewal  = "renewal"
	EntityReminder = "reminder"
)

// AuditEntry is an immutable activity record.
type AuditEntry struct {
	ID         string         `json:"id"`
	Action     string         `json:"action"`
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id"`
	Details    map[string]any `json:"details,omitempty"`
	Severity   Severity       `json:"severity"`
	ActorID    string         `json:"actor_id,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}
