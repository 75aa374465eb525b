package application

import (
	"context"
	"testing"
	"time"

	"stockledger/internal/service/inventory/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpireSweepReleasesStock(t *testing.T) {
	engine, pub := newTestEngine(t, 10)
	ctx := context.Background()

	result, err := engine.Reserve(ctx, &ReserveRequest{
		ProductID:  "SKU-001",
		CustomerID: "cust-1",
		Quantity:   4,
		TTL:        10 * time.Millisecond,
	})
	require.NoError(t, err)
	require.True(t, result.Success)

	time.Sleep(30 * time.Millisecond)

	sweeper := NewExpirySweeper(engine, time.Second, 100)
	swept, err := sweeper.RunExpirySweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, swept)

	item, err := engine.Snapshot(ctx, "SKU-001")
	require.NoError(t, err)
	assert.Equal(t, 10, item.QuantityOnHand)
	assert.Equal(t, 0, item.QuantityReserved)
	assert.Equal(t, 10, item.QuantityAvailable)

	r, err := engine.GetReservation(ctx, result.ReservationID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusExpired, r.Status)
	assert.Len(t, pub.byType(domain.EventReservationExpired), 1)

	// 重跑清扫必须是无害的空操作
	swept, err = sweeper.RunExpirySweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, swept)

	report, err := engine.VerifyLedger(ctx, "SKU-001")
	require.NoError(t, err)
	assert.True(t, report.Consistent)
}

func TestExpireSweepSkipsActiveAndTerminal(t *testing.T) {
	engine, _ := newTestEngine(t, 10)
	ctx := context.Background()

	// 一条未过期，一条已确认，都不应被清扫
	live := reserve(t, engine, 2)
	confirmed, err := engine.Reserve(ctx, &ReserveRequest{
		ProductID:  "SKU-001",
		CustomerID: "cust-2",
		Quantity:   3,
		TTL:        10 * time.Millisecond,
	})
	require.NoError(t, err)
	require.NoError(t, engine.Confirm(ctx, confirmed.ReservationID))

	time.Sleep(30 * time.Millisecond)

	swept, err := engine.ExpireSweep(ctx, 100)
	require.NoError(t, err)
	assert.Zero(t, swept)

	r, err := engine.GetReservation(ctx, live)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, r.Status)
}

func TestExpireSweepRespectsBatchSize(t *testing.T) {
	engine, _ := newTestEngine(t, 100)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		result, err := engine.Reserve(ctx, &ReserveRequest{
			ProductID:  "SKU-001",
			CustomerID: "cust-1",
			Quantity:   1,
			TTL:        10 * time.Millisecond,
		})
		require.NoError(t, err)
		require.True(t, result.Success)
	}
	time.Sleep(30 * time.Millisecond)

	swept, err := engine.ExpireSweep(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, swept)

	// 剩余的留给下一轮
	swept, err = engine.ExpireSweep(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, 3, swept)
}
