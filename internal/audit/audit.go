// Package audit records immutable activity entries for renewals and reminders.
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/narvanalabs/contractdesk/internal/models"
	"github.com/narvanalabs/contractdesk/internal/queue"
	"github.com/narvanalabs/contractdesk/internal/store"
)

// Entry is one audit record.
type Entry = models.AuditEntry

// Port appends audit entries. Callers treat it as fire-and-forget.
type Port interface {
	Append(ctx context.Context, e Entry) error
}

// Outbox implements Port by enqueuing entries for the dispatch worker, which
// writes them to the AuditStore.
type Outbox struct {
	q   queue.Queue
	now func() time.Time
}

// NewOutbox creates an Outbox on q.
func NewOutbox(q queue.Queue) *Outbox {
	return &Outbox{q: q, now: func() time.Time { return time.Now().UTC() }}
}

// Append assigns the entry its ID and timestamp at emit time, so retried
// deliveries insert the same row.
func (o *Outbox) Append(ctx context.Context, e Entry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = o.now()
	}
	if e.Severity == "" {
		e.Severity = models.SeverityInfo
	}

	msg, err := queue.NewMessage(uuid.New().String(), models.TopicAuditEntry, e)
	if err != nil {
		return err
	}
	if err := o.q.Enqueue(ctx, msg); err != nil {
		return fmt.Errorf("enqueuing audit entry: %w", err)
	}
	return nil
}

// Direct implements Port by writing straight to an AuditStore. The CLI uses it
// when no worker runs.
type Direct struct {
	Store store.AuditStore
}

func (d Direct) Append(ctx context.Context, e Entry) error {
	if e.Severity == "" {
		e.Severity = models.SeverityInfo
	}
	return d.Store.Append(ctx, &e)
}
