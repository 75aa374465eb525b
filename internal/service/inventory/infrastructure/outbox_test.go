package infrastructure

import (
	"context"
	"encoding/json"
	"testing"

	"stockledger/internal/service/inventory/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutboxPublisherEnqueues(t *testing.T) {
	outbox := NewMemoryOutbox()
	pub := NewOutboxPublisher(outbox)
	ctx := context.Background()

	event := &domain.Event{
		EventID:       "evt-1",
		Type:          domain.EventStockReserved,
		ProductID:     "SKU-001",
		ReservationID: "res-1",
		Quantity:      3,
	}
	require.NoError(t, pub.Publish(ctx, event))

	batch, err := outbox.PendingBatch(ctx, 10)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, "SKU-001", batch[0].MessageKey)

	var decoded domain.Event
	require.NoError(t, json.Unmarshal(batch[0].Payload, &decoded))
	assert.Equal(t, domain.EventStockReserved, decoded.Type)
	assert.Equal(t, "res-1", decoded.ReservationID)
}

func TestOutboxLifecycle(t *testing.T) {
	outbox := NewMemoryOutbox()
	ctx := context.Background()

	require.NoError(t, outbox.Enqueue(ctx, "SKU-001", []byte("a")))
	require.NoError(t, outbox.Enqueue(ctx, "SKU-002", []byte("b")))
	require.NoError(t, outbox.Enqueue(ctx, "SKU-003", []byte("c")))

	batch, err := outbox.PendingBatch(ctx, 2)
	require.NoError(t, err)
	require.Len(t, batch, 2)

	require.NoError(t, outbox.MarkPublished(ctx, batch[0].ID))
	require.NoError(t, outbox.MarkFailed(ctx, batch[1].ID, "broker unreachable"))

	// 已投递和已失败的记录都不再出现在待投递批次里
	remaining, err := outbox.PendingBatch(ctx, 10)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "SKU-003", remaining[0].MessageKey)

	assert.Error(t, outbox.MarkPublished(ctx, 999))
}
