// Package memory provides an in-process outbox queue for tests and single-process runs.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/narvanalabs/contractdesk/internal/models"
	"github.com/narvanalabs/contractdesk/internal/queue"
)

// Queue implements queue.Queue in memory. Messages are delivered in enqueue order.
type Queue struct {
	mu       sync.Mutex
	order    []string
	messages map[string]*models.OutboxMessage
	// FailWith, when set, is returned by Enqueue.
	FailWith error
}

// New creates an empty queue.
func New() *Queue {
	return &Queue{messages: make(map[string]*models.OutboxMessage)}
}

var _ queue.Queue = (*Queue)(nil)

func (q *Queue) Enqueue(ctx context.Context, msg *models.OutboxMessage) error {
	if q.FailWith != nil {
		return q.FailWith
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	msg.Status = models.OutboxStatusPending

	stored := *msg
	q.messages[msg.ID] = &stored
	q.order = append(q.order, msg.ID)
	return nil
}

func (q *Queue) Dequeue(ctx context.Context) (*models.OutboxMessage, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, id := range q.order {
		m := q.messages[id]
		if m.Status == models.OutboxStatusPending {
			m.Status = models.OutboxStatusProcessing
			out := *m
			return &out, nil
		}
	}
	return nil, queue.ErrNoMessages
}

func (q *Queue) Ack(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	m, ok := q.messages[id]
	if !ok || m.Status != models.OutboxStatusProcessing {
		return queue.ErrMessageNotFound
	}
	delete(q.messages, id)
	for i, v := range q.order {
		if v == id {
			q.order = append(q.order[:i], q.order[i+1:]...)
			break
		}
	}
	return nil
}

func (q *Queue) Nack(ctx context.Context, id string, reason string) error {
	return q.fail(id, reason, models.OutboxStatusPending)
}

func (q *Queue) Bury(ctx context.Context, id string, reason string) error {
	return q.fail(id, reason, models.OutboxStatusDead)
}

func (q *Queue) fail(id, reason string, next models.OutboxStatus) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	m, ok := q.messages[id]
	if !ok || m.Status != models.OutboxStatusProcessing {
		return queue.ErrMessageNotFound
	}
	m.Attempts++
	m.LastError = reason
	m.Status = next
	return nil
}

// Messages returns a snapshot of all messages still held, in enqueue order.
func (q *Queue) Messages() []models.OutboxMessage {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]models.OutboxMessage, 0, len(q.order))
	for _, id := range q.order {
		out = append(out, *q.messages[id])
	}
	return out
}
