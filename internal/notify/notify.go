// Package notify delivers contract expiration notices to contract owners.
//
// The core never sends anything itself. It hands a Notice to a Port, and the
// production Port (Outbox) records the intent in the outbox queue. The dispatch
// worker later hands each intent to a Sender.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"

	"github.com/narvanalabs/contractdesk/internal/models"
	"github.com/narvanalabs/contractdesk/internal/queue"
)

// Notice is an expiration notice for one contract owner.
type Notice = models.ExpirationNotice

// Port is what the scanner calls to notify a contract owner.
// Errors are non-fatal to the caller.
type Port interface {
	SendExpirationNotice(ctx context.Context, n Notice) error
}

// PortFunc adapts a function to Port.
type PortFunc func(ctx context.Context, n Notice) error

func (f PortFunc) SendExpirationNotice(ctx context.Context, n Notice) error { return f(ctx, n) }

// Outbox implements Port by enqueuing the notice for the dispatch worker.
type Outbox struct {
	q queue.Queue
}

// NewOutbox creates an Outbox on q.
func NewOutbox(q queue.Queue) *Outbox {
	return &Outbox{q: q}
}

func (o *Outbox) SendExpirationNotice(ctx context.Context, n Notice) error {
	msg, err := queue.NewMessage(uuid.New().String(), models.TopicExpirationNotice, n)
	if err != nil {
		return err
	}
	if err := o.q.Enqueue(ctx, msg); err != nil {
		return fmt.Errorf("enqueuing expiration notice: %w", err)
	}
	return nil
}

// Sender performs the actual delivery of a notice.
type Sender interface {
	Send(ctx context.Context, n Notice) error
}

// LogSender writes notices to the log. It is used when no webhook is configured.
type LogSender struct {
	Logger *slog.Logger
}

func (s LogSender) Send(ctx context.Context, n Notice) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "contract expiration notice",
		"contract_id", n.ContractID,
		"contract_number", n.ContractNumber,
		"owner_id", n.OwnerID,
		"owner_email", n.OwnerEmail,
		"days_left", n.DaysLeft,
		"threshold_days", n.ThresholdDays,
	)
	return nil
}

// WebhookSender POSTs notices as JSON to a URL, typically a mail relay.
type WebhookSender struct {
	url    string
	client *http.Client
}

// NewWebhookSender creates a WebhookSender. A zero timeout means 10 seconds.
func NewWebhookSender(url string, timeout time.Duration) *WebhookSender {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookSender{
		url: url,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

func (s *WebhookSender) Send(ctx context.Context, n Notice) error {
	body, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshaling notice: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", n.ContractID+":"+string(models.ReminderKindExpiration))

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	return nil
}
