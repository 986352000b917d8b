package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/narvanalabs/contractdesk/internal/audit"
	"github.com/narvanalabs/contractdesk/internal/models"
	"github.com/narvanalabs/contractdesk/internal/notify"
	queuemem "github.com/narvanalabs/contractdesk/internal/queue/memory"
	"github.com/narvanalabs/contractdesk/internal/store/memory"
)

type recordingSender struct {
	mu    sync.Mutex
	sent  []notify.Notice
	fails int
}

func (s *recordingSender) Send(ctx context.Context, n notify.Notice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fails > 0 {
		s.fails--
		return errors.New("relay unavailable")
	}
	s.sent = append(s.sent, n)
	return nil
}

func (s *recordingSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

func testConfig(maxAttempts int) *WorkerConfig {
	return &WorkerConfig{Concurrency: 1, PollInterval: 5 * time.Millisecond, MaxAttempts: maxAttempts}
}

func TestDrainDeliversBothTopics(t *testing.T) {
	ctx := context.Background()
	q := queuemem.New()
	st := memory.New()
	sender := &recordingSender{}

	notice := notify.Notice{ContractID: "c1", ContractNumber: "HUM-1", OwnerEmail: "owner@example.org", DaysLeft: 12, ThresholdDays: 30}
	require.NoError(t, notify.NewOutbox(q).SendExpirationNotice(ctx, notice))
	require.NoError(t, audit.NewOutbox(q).Append(ctx, audit.Entry{
		Action: models.AuditActionRenewalCreated, EntityType: models.EntityRenewal, EntityID: "r1", ActorID: "alice",
	}))

	w := NewWorker(testConfig(3), q, st.Audit(), sender, nil)
	n, err := w.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Empty(t, q.Messages())

	require.Equal(t, 1, sender.count())
	assert.Equal(t, notice.ContractID, sender.sent[0].ContractID)
	assert.Equal(t, 12, sender.sent[0].DaysLeft)

	entries, err := st.Audit().List(ctx, models.EntityRenewal, "r1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "alice", entries[0].ActorID)
	assert.Equal(t, models.SeverityInfo, entries[0].Severity)
}

func TestFailedDeliveryIsRetried(t *testing.T) {
	ctx := context.Background()
	q := queuemem.New()
	sender := &recordingSender{fails: 1}
	require.NoError(t, notify.NewOutbox(q).SendExpirationNotice(ctx, notify.Notice{ContractID: "c1"}))

	w := NewWorker(testConfig(3), q, memory.New().Audit(), sender, nil)

	processed, err := w.ProcessNext(ctx)
	require.NoError(t, err)
	assert.True(t, processed)

	msgs := q.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, models.OutboxStatusPending, msgs[0].Status)
	assert.Equal(t, 1, msgs[0].Attempts)
	assert.Equal(t, "relay unavailable", msgs[0].LastError)

	processed, err = w.ProcessNext(ctx)
	require.NoError(t, err)
	assert.True(t, processed)
	assert.Empty(t, q.Messages())
	assert.Equal(t, 1, sender.count())
}

func TestMessageBuriedAfterMaxAttempts(t *testing.T) {
	ctx := context.Background()
	q := queuemem.New()
	sender := &recordingSender{fails: 10}
	require.NoError(t, notify.NewOutbox(q).SendExpirationNotice(ctx, notify.Notice{ContractID: "c1"}))

	w := NewWorker(testConfig(2), q, memory.New().Audit(), sender, nil)
	n, err := w.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	msgs := q.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, models.OutboxStatusDead, msgs[0].Status)
	assert.Equal(t, 2, msgs[0].Attempts)
	assert.Zero(t, sender.count())
}

func TestUnknownTopicAndBadPayloadAreBuried(t *testing.T) {
	ctx := context.Background()
	q := queuemem.New()
	require.NoError(t, q.Enqueue(ctx, &models.OutboxMessage{Topic: "something.else", Payload: []byte(`{}`)}))
	require.NoError(t, q.Enqueue(ctx, &models.OutboxMessage{Topic: models.TopicAuditEntry, Payload: []byte(`not json`)}))

	w := NewWorker(testConfig(5), q, memory.New().Audit(), &recordingSender{}, nil)
	_, err := w.Drain(ctx)
	require.NoError(t, err)

	for _, m := range q.Messages() {
		assert.Equal(t, models.OutboxStatusDead, m.Status, m.Topic)
		assert.Equal(t, 1, m.Attempts)
	}
	assert.Len(t, q.Messages(), 2)
}

func TestRedeliveredAuditEntryIsAcked(t *testing.T) {
	ctx := context.Background()
	q := queuemem.New()
	st := memory.New()

	entry := audit.Entry{ID: "a1", Action: models.AuditActionReminderAcknowledged, EntityType: models.EntityReminder, EntityID: "rem1"}
	require.NoError(t, st.Audit().Append(ctx, &entry))
	require.NoError(t, audit.NewOutbox(q).Append(ctx, entry))

	w := NewWorker(testConfig(3), q, st.Audit(), &recordingSender{}, nil)
	_, err := w.Drain(ctx)
	require.NoError(t, err)
	assert.Empty(t, q.Messages())

	entries, err := st.Audit().List(ctx, models.EntityReminder, "rem1")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestStartStop(t *testing.T) {
	ctx := context.Background()
	q := queuemem.New()
	sender := &recordingSender{}
	for i := 0; i < 5; i++ {
		require.NoError(t, notify.NewOutbox(q).SendExpirationNotice(ctx, notify.Notice{ContractID: "c"}))
	}

	w := NewWorker(&WorkerConfig{Concurrency: 3, PollInterval: 5 * time.Millisecond, MaxAttempts: 3}, q, memory.New().Audit(), sender, nil)
	require.NoError(t, w.Start(ctx))

	assert.Eventually(t, func() bool { return sender.count() == 5 }, 2*time.Second, 5*time.Millisecond)

	w.Stop()
	w.Stop()
	assert.Empty(t, q.Messages())
}

// **Property 1: Every enqueued message ends delivered or dead**
// A sender that fails k times leaves a message dead exactly when k reaches the
// attempt limit, and delivered otherwise.
func TestDeliveryOutcomeProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("message is delivered iff failures < max attempts", prop.ForAll(
		func(failures, maxAttempts int) bool {
			ctx := context.Background()
			q := queuemem.New()
			sender := &recordingSender{fails: failures}
			if err := notify.NewOutbox(q).SendExpirationNotice(ctx, notify.Notice{ContractID: "c1"}); err != nil {
				return false
			}

			w := NewWorker(testConfig(maxAttempts), q, memory.New().Audit(), sender, nil)
			if _, err := w.Drain(ctx); err != nil {
				return false
			}

			msgs := q.Messages()
			if failures < maxAttempts {
				return len(msgs) == 0 && sender.count() == 1
			}
			return len(msgs) == 1 &&
				msgs[0].Status == models.OutboxStatusDead &&
				msgs[0].Attempts == maxAttempts &&
				sender.count() == 0
		},
		gen.IntRange(0, 8),
		gen.IntRange(1, 6),
	))

	properties.TestingRun(t)
}
