package infrastructure

import (
	"context"
	"sync"
	"testing"
	"time"

	"stockledger/internal/service/inventory/domain"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransitionCAS(t *testing.T) {
	reg := NewMemoryReservationRegistry()
	ctx := context.Background()

	res, err := domain.NewReservation("SKU-001", "cust-1", 1, time.Minute)
	require.NoError(t, err)
	require.NoError(t, reg.Create(ctx, res))

	require.NoError(t, reg.Transition(ctx, res.ID, domain.StatusActive, domain.StatusConfirmed))

	err = reg.Transition(ctx, res.ID, domain.StatusActive, domain.StatusCancelled)
	assert.True(t, errors.Is(err, domain.ErrTransitionConflict))

	err = reg.Transition(ctx, "no-such-id", domain.StatusActive, domain.StatusCancelled)
	assert.True(t, errors.Is(err, domain.ErrReservationNotFound))
}

func TestTransitionConcurrentSingleWinner(t *testing.T) {
	reg := NewMemoryReservationRegistry()
	ctx := context.Background()

	res, err := domain.NewReservation("SKU-001", "cust-1", 1, time.Minute)
	require.NoError(t, err)
	require.NoError(t, reg.Create(ctx, res))

	const racers = 16
	var wg sync.WaitGroup
	var winners int32
	var mu sync.Mutex

	for i := 0; i < racers; i++ {
		wg.Add(1)
		target := domain.StatusConfirmed
		if i%2 == 1 {
			target = domain.StatusCancelled
		}
		go func(to domain.ReservationStatus) {
			defer wg.Done()
			if err := reg.Transition(ctx, res.ID, domain.StatusActive, to); err == nil {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}(target)
	}
	wg.Wait()

	assert.EqualValues(t, 1, winners)

	stored, err := reg.Get(ctx, res.ID)
	require.NoError(t, err)
	assert.True(t, stored.Status.IsTerminal())
}

func TestListExpired(t *testing.T) {
	reg := NewMemoryReservationRegistry()
	ctx := context.Background()

	mk := func(ttl time.Duration) *domain.Reservation {
		res, err := domain.NewReservation("SKU-001", "cust-1", 1, ttl)
		require.NoError(t, err)
		require.NoError(t, reg.Create(ctx, res))
		return res
	}

	first := mk(time.Millisecond)
	second := mk(2 * time.Millisecond)
	live := mk(time.Hour)
	done := mk(time.Millisecond)
	require.NoError(t, reg.Transition(ctx, done.ID, domain.StatusActive, domain.StatusConfirmed))

	time.Sleep(10 * time.Millisecond)

	expired, err := reg.ListExpired(ctx, time.Now(), 10)
	require.NoError(t, err)
	require.Len(t, expired, 2)
	// 先过期的排在前面
	assert.Equal(t, first.ID, expired[0].ID)
	assert.Equal(t, second.ID, expired[1].ID)

	limited, err := reg.ListExpired(ctx, time.Now(), 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	active, err := reg.ListActiveBySKU(ctx, "SKU-001")
	require.NoError(t, err)
	assert.Len(t, active, 3) // live + 两条已过期但仍 Active
	_ = live
}
