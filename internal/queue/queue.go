// Package queue provides the side-effect outbox: notification and audit intents
// recorded by the core and delivered by the dispatch worker.
package queue

import (
	"context"
	"errors"
	"fmt"

	jsoniter "github.com/json-iterator/go"

	"github.com/narvanalabs/contractdesk/internal/models"
)

// Common errors returned by queue operations.
var (
	// ErrNoMessages is returned when no messages are available in the queue.
	ErrNoMessages = errors.New("no messages available")
	// ErrMessageNotFound is returned when a message cannot be found.
	ErrMessageNotFound = errors.New("message not found")
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Queue defines the interface for outbox operations.
type Queue interface {
	// Enqueue adds a new message to the queue.
	Enqueue(ctx context.Context, msg *models.OutboxMessage) error

	// Dequeue retrieves and locks the next pending message.
	// Returns ErrNoMessages if none is available.
	Dequeue(ctx context.Context) (*models.OutboxMessage, error)

	// Ack acknowledges successful delivery, removing the message from the queue.
	Ack(ctx context.Context, id string) error

	// Nack records a failed delivery attempt and makes the message available again.
	Nack(ctx context.Context, id string, reason string) error

	// Bury marks a message dead. Dead messages are kept for inspection and never redelivered.
	Bury(ctx context.Context, id string, reason string) error
}

// NewMessage encodes payload into a pending message for topic.
func NewMessage(id string, topic models.OutboxTopic, payload any) (*models.OutboxMessage, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshaling %s payload: %w", topic, err)
	}
	return &models.OutboxMessage{
		ID:      id,
		Topic:   topic,
		Payload: data,
		Status:  models.OutboxStatusPending,
	}, nil
}

// Decode unmarshals a message payload into v.
func Decode(msg *models.OutboxMessage, v any) error {
	if err := json.Unmarshal(msg.Payload, v); err != nil {
		return fmt.Errorf("unmarshaling %s payload: %w", msg.Topic, err)
	}
	return nil
}
