package application

import (
	"context"
	"sync"
	"testing"
	"time"

	"stockledger/internal/service/inventory/domain"
	"stockledger/internal/service/inventory/infrastructure"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// capturePublisher 收集引擎发布的事件，供断言使用。
type capturePublisher struct {
	mu     sync.Mutex
	events []*domain.Event
}

func (p *capturePublisher) Publish(_ context.Context, event *domain.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *capturePublisher) byType(t domain.EventType) []*domain.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []*domain.Event
	for _, e := range p.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func newTestEngine(t *testing.T, onHand int) (*ReservationEngine, *capturePublisher) {
	t.Helper()
	pub := &capturePublisher{}
	engine := NewReservationEngine(
		infrastructure.NewMemoryInventoryStore(),
		infrastructure.NewMemoryReservationRegistry(),
		infrastructure.NewMemoryLedgerStore(),
		infrastructure.NewKeyMutexLocker(),
		pub,
		nil,
		2*time.Second,
	)
	if onHand >= 0 {
		_, err := engine.CreateItem(context.Background(), "SKU-001", onHand, 0, 0, "WH-A", "test")
		require.NoError(t, err)
	}
	return engine, pub
}

func reserve(t *testing.T, engine *ReservationEngine, qty int) string {
	t.Helper()
	result, err := engine.Reserve(context.Background(), &ReserveRequest{
		ProductID:  "SKU-001",
		CustomerID: "cust-1",
		Quantity:   qty,
		TTL:        time.Minute,
	})
	require.NoError(t, err)
	require.True(t, result.Success)
	return result.ReservationID
}

func TestReserveConfirmLifecycle(t *testing.T) {
	engine, pub := newTestEngine(t, 100)
	ctx := context.Background()

	id := reserve(t, engine, 4)

	item, err := engine.Snapshot(ctx, "SKU-001")
	require.NoError(t, err)
	assert.Equal(t, 100, item.QuantityOnHand)
	assert.Equal(t, 4, item.QuantityReserved)
	assert.Equal(t, 96, item.QuantityAvailable)

	require.NoError(t, engine.Confirm(ctx, id))

	item, err = engine.Snapshot(ctx, "SKU-001")
	require.NoError(t, err)
	assert.Equal(t, 96, item.QuantityOnHand)
	assert.Equal(t, 0, item.QuantityReserved)
	assert.Equal(t, 96, item.QuantityAvailable)

	r, err := engine.GetReservation(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusConfirmed, r.Status)

	assert.Len(t, pub.byType(domain.EventStockReserved), 1)
	assert.Len(t, pub.byType(domain.EventReservationConfirmed), 1)
}

func TestCancelRestoresAvailability(t *testing.T) {
	engine, pub := newTestEngine(t, 10)
	ctx := context.Background()

	id := reserve(t, engine, 7)
	require.NoError(t, engine.Cancel(ctx, id))

	item, err := engine.Snapshot(ctx, "SKU-001")
	require.NoError(t, err)
	assert.Equal(t, 10, item.QuantityOnHand)
	assert.Equal(t, 0, item.QuantityReserved)
	assert.Equal(t, 10, item.QuantityAvailable)

	assert.Len(t, pub.byType(domain.EventStockReleased), 1)
}

func TestConfirmIsIdempotent(t *testing.T) {
	engine, pub := newTestEngine(t, 10)
	ctx := context.Background()

	id := reserve(t, engine, 3)
	require.NoError(t, engine.Confirm(ctx, id))
	// 重复确认：幂等成功，不再扣减、不再落账
	require.NoError(t, engine.Confirm(ctx, id))

	item, err := engine.Snapshot(ctx, "SKU-001")
	require.NoError(t, err)
	assert.Equal(t, 7, item.QuantityOnHand)
	assert.Equal(t, 0, item.QuantityReserved)

	entries, err := engine.LedgerEntries(ctx, "SKU-001", time.Time{}, time.Time{})
	require.NoError(t, err)
	// onboarding + reserve + confirm，重复确认没有新流水
	assert.Len(t, entries, 3)
	assert.Len(t, pub.byType(domain.EventReservationConfirmed), 1)
}

func TestFinalizeOnTerminalReservation(t *testing.T) {
	engine, _ := newTestEngine(t, 10)
	ctx := context.Background()

	id := reserve(t, engine, 2)
	require.NoError(t, engine.Cancel(ctx, id))

	err := engine.Confirm(ctx, id)
	assert.True(t, errors.Is(err, domain.ErrReservationNotActive))

	err = engine.Cancel(ctx, id)
	assert.True(t, errors.Is(err, domain.ErrReservationNotActive))

	// 失败的转移不得产生任何变更
	item, _ := engine.Snapshot(ctx, "SKU-001")
	assert.Equal(t, 10, item.QuantityOnHand)
	assert.Equal(t, 0, item.QuantityReserved)
}

func TestReserveInsufficientStock(t *testing.T) {
	engine, _ := newTestEngine(t, 5)
	ctx := context.Background()

	result, err := engine.Reserve(ctx, &ReserveRequest{
		ProductID:  "SKU-001",
		CustomerID: "cust-1",
		Quantity:   6,
		TTL:        time.Minute,
	})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, FailureInsufficientStock, result.FailureReason)

	// 不足是正常业务结果：无变更、无流水
	entries, err := engine.LedgerEntries(ctx, "SKU-001", time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Len(t, entries, 1) // 只有建档流水
}

func TestReserveValidation(t *testing.T) {
	engine, _ := newTestEngine(t, 5)
	ctx := context.Background()

	for _, req := range []*ReserveRequest{
		{ProductID: "", CustomerID: "c", Quantity: 1, TTL: time.Minute},
		{ProductID: "SKU-001", CustomerID: "", Quantity: 1, TTL: time.Minute},
		{ProductID: "SKU-001", CustomerID: "c", Quantity: 0, TTL: time.Minute},
		{ProductID: "SKU-001", CustomerID: "c", Quantity: -1, TTL: time.Minute},
		{ProductID: "SKU-001", CustomerID: "c", Quantity: 1, TTL: 0},
	} {
		_, err := engine.Reserve(ctx, req)
		assert.True(t, errors.Is(err, domain.ErrInvalidArgument))
	}
}

func TestReserveUnknownProduct(t *testing.T) {
	engine, _ := newTestEngine(t, -1)
	_, err := engine.Reserve(context.Background(), &ReserveRequest{
		ProductID:  "SKU-404",
		CustomerID: "cust-1",
		Quantity:   1,
		TTL:        time.Minute,
	})
	assert.True(t, errors.Is(err, domain.ErrItemNotFound))
}

func TestConfirmUnknownReservation(t *testing.T) {
	engine, _ := newTestEngine(t, 5)
	err := engine.Confirm(context.Background(), "no-such-id")
	assert.True(t, errors.Is(err, domain.ErrReservationNotFound))
}

func TestConcurrentReserveNeverOversells(t *testing.T) {
	engine, _ := newTestEngine(t, 10)
	ctx := context.Background()

	const attempts = 20
	var wg sync.WaitGroup
	var mu sync.Mutex
	var succeeded int

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := engine.Reserve(ctx, &ReserveRequest{
				ProductID:  "SKU-001",
				CustomerID: "cust-1",
				Quantity:   1,
				TTL:        time.Minute,
			})
			if err == nil && result.Success {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, succeeded)

	item, err := engine.Snapshot(ctx, "SKU-001")
	require.NoError(t, err)
	assert.Equal(t, 10, item.QuantityReserved)
	assert.Equal(t, 0, item.QuantityAvailable)
	assert.NoError(t, item.CheckInvariant())
}

func TestConcurrentFinalizeSingleWinner(t *testing.T) {
	engine, _ := newTestEngine(t, 10)
	ctx := context.Background()
	id := reserve(t, engine, 5)

	// Confirm 和 Cancel 同时竞争，恰好一个赢
	var wg sync.WaitGroup
	results := make([]error, 2)
	wg.Add(2)
	go func() { defer wg.Done(); results[0] = engine.Confirm(ctx, id) }()
	go func() { defer wg.Done(); results[1] = engine.Cancel(ctx, id) }()
	wg.Wait()

	item, err := engine.Snapshot(ctx, "SKU-001")
	require.NoError(t, err)
	assert.Equal(t, 0, item.QuantityReserved)
	assert.NoError(t, item.CheckInvariant())

	r, err := engine.GetReservation(ctx, id)
	require.NoError(t, err)
	switch r.Status {
	case domain.StatusConfirmed:
		assert.NoError(t, results[0])
		assert.Equal(t, 5, item.QuantityOnHand)
	case domain.StatusCancelled:
		assert.NoError(t, results[1])
		assert.Equal(t, 10, item.QuantityOnHand)
	default:
		t.Fatalf("reservation left in unexpected status %s", r.Status)
	}
}

func TestLedgerReplayMatchesCounters(t *testing.T) {
	engine, _ := newTestEngine(t, 100)
	ctx := context.Background()

	confirmed := reserve(t, engine, 4)
	require.NoError(t, engine.Confirm(ctx, confirmed))

	cancelled := reserve(t, engine, 3)
	require.NoError(t, engine.Cancel(ctx, cancelled))

	_ = reserve(t, engine, 7) // 仍然 Active

	_, err := engine.AdjustStock(ctx, "SKU-001", -6, "stocktake", "ops")
	require.NoError(t, err)

	report, err := engine.VerifyLedger(ctx, "SKU-001")
	require.NoError(t, err)
	assert.True(t, report.Consistent)
	assert.Equal(t, report.CurrentOnHand, report.LedgerOnHand)
	assert.Equal(t, report.CurrentReserved, report.LedgerReserved)
	assert.Equal(t, 90, report.LedgerOnHand)
	assert.Equal(t, 7, report.LedgerReserved)
}

func TestAdjustStockGuardsReservations(t *testing.T) {
	engine, _ := newTestEngine(t, 10)
	ctx := context.Background()

	_ = reserve(t, engine, 8)

	// 把 on-hand 调到预留量以下会架空现有预留，必须拒绝
	_, err := engine.AdjustStock(ctx, "SKU-001", -5, "stocktake", "ops")
	assert.True(t, errors.Is(err, domain.ErrInvariantViolation))

	_, err = engine.AdjustStock(ctx, "SKU-001", 0, "noop", "ops")
	assert.True(t, errors.Is(err, domain.ErrInvalidArgument))

	item, _ := engine.Snapshot(ctx, "SKU-001")
	assert.Equal(t, 10, item.QuantityOnHand)
}

func TestRetireItem(t *testing.T) {
	engine, _ := newTestEngine(t, 10)
	ctx := context.Background()

	id := reserve(t, engine, 2)
	// 有 Active 预留时拒绝下架
	assert.Error(t, engine.RetireItem(ctx, "SKU-001"))

	require.NoError(t, engine.Cancel(ctx, id))
	require.NoError(t, engine.RetireItem(ctx, "SKU-001"))

	// 下架后拒绝新预占
	_, err := engine.Reserve(ctx, &ReserveRequest{
		ProductID:  "SKU-001",
		CustomerID: "cust-1",
		Quantity:   1,
		TTL:        time.Minute,
	})
	assert.True(t, errors.Is(err, domain.ErrItemRetired))
}

func TestCreateItemWritesOnboardingEntry(t *testing.T) {
	engine, _ := newTestEngine(t, 50)
	ctx := context.Background()

	entries, err := engine.LedgerEntries(ctx, "SKU-001", time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.EntryAdjustment, entries[0].EntryType)
	assert.Equal(t, 50, entries[0].QuantityDelta)

	_, err = engine.CreateItem(ctx, "SKU-001", 10, 0, 0, "", "test")
	assert.True(t, errors.Is(err, domain.ErrItemExists))
}
