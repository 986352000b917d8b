package models

import "time"

// OutboxTopic names the kind of side effect an outbox message carries.
type OutboxTopic string

const (
	// TopicExpirationNotice carries an ExpirationNotice for the contract owner.
	TopicExpirationNotice OutboxTopic = "notification.expiration"
	// TopicAuditEntry carries an AuditEntry to be appended to the audit log.
	TopicAuditEntry OutboxTopic = "audit.entry"
)

// OutboxStatus is the delivery state of an outbox message.
type OutboxStatus string

const (
	OutboxStatusPending    OutboxStatus = "pending"
	OutboxStatusProcessing OutboxStatus = "processing"
	// OutboxStatusDead marks a message that exhausted its delivery attempts.
	OutboxStatusDead OutboxStatus = "dead"
)

// OutboxMessage is a side-effect intent recorded by the core and delivered
// by the outbox worker.
type OutboxMessage struct {
	ID        string       `json:"id"`
	Topic     OutboxTopic  `json:"topic"`
	Payload   []byte       `json:"payload"`
	Status    OutboxStatus `json:"status"`
	Attempts  int          `json:"attempts"`
	LastError string       `json:"last_error,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}

// ExpirationNotice is the payload of a TopicExpirationNotice message.
type ExpirationNotice struct {
	ContractID     string    `json:"contract_id"`
	ContractNumber string    `json:"contract_number"`
	EndDate        time.Time `json:"end_date"`
	OwnerID        string    `json:"owner_id"`
	OwnerEmail     string    `json:"owner_email"`
	OwnerName      string    `json:"owner_name,omitempty"`
	DaysLeft       int       `json:"days_left"`
	ThresholdDays  int       `json:"threshold_days"`
}
