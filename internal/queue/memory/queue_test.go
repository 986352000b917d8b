package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/narvanalabs/contractdesk/internal/models"
	"github.com/narvanalabs/contractdesk/internal/queue"
)

func TestDeliveryLifecycle(t *testing.T) {
	q := New()
	ctx := context.Background()

	first, err := queue.NewMessage("", models.TopicAuditEntry, map[string]string{"n": "1"})
	require.NoError(t, err)
	second, err := queue.NewMessage("", models.TopicAuditEntry, map[string]string{"n": "2"})
	require.NoError(t, err)
	require.NoError(t, q.Enqueue(ctx, first))
	require.NoError(t, q.Enqueue(ctx, second))

	got, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)
	assert.Equal(t, models.OutboxStatusProcessing, got.Status)

	// A processing message is not handed out twice.
	next, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, second.ID, next.ID)

	_, err = q.Dequeue(ctx)
	assert.ErrorIs(t, err, queue.ErrNoMessages)

	require.NoError(t, q.Nack(ctx, first.ID, "smtp timeout"))
	require.NoError(t, q.Ack(ctx, second.ID))
	assert.ErrorIs(t, q.Ack(ctx, second.ID), queue.ErrMessageNotFound)

	retry, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.ID, retry.ID)
	assert.Equal(t, 1, retry.Attempts)
	assert.Equal(t, "smtp timeout", retry.LastError)

	require.NoError(t, q.Bury(ctx, first.ID, "gave up"))
	_, err = q.Dequeue(ctx)
	assert.ErrorIs(t, err, queue.ErrNoMessages)

	msgs := q.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, models.OutboxStatusDead, msgs[0].Status)
	assert.Equal(t, 2, msgs[0].Attempts)
}

func TestPayloadDecode(t *testing.T) {
	notice := models.ExpirationNotice{ContractID: "c1", OwnerEmail: "o@example.org", DaysLeft: 10, ThresholdDays: 30}
	msg, err := queue.NewMessage("m1", models.TopicExpirationNotice, notice)
	require.NoError(t, err)

	var got models.ExpirationNotice
	require.NoError(t, queue.Decode(msg, &got))
	assert.Equal(t, notice, got)
}
