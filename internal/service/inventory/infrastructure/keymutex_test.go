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

func TestAcquireMutualExclusion(t *testing.T) {
	locker := NewKeyMutexLocker()
	ctx := context.Background()

	const workers = 50
	var counter, concurrent, peak int
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := locker.Acquire(ctx, "SKU-001", 5*time.Second)
			require.NoError(t, err)
			defer release()

			mu.Lock()
			concurrent++
			if concurrent > peak {
				peak = concurrent
			}
			counter++
			concurrent--
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, workers, counter)
	assert.Equal(t, 1, peak)
}

func TestAcquireBoundedWait(t *testing.T) {
	locker := NewKeyMutexLocker()
	ctx := context.Background()

	release, err := locker.Acquire(ctx, "SKU-001", time.Second)
	require.NoError(t, err)

	started := time.Now()
	_, err = locker.Acquire(ctx, "SKU-001", 50*time.Millisecond)
	assert.True(t, errors.Is(err, domain.ErrSKUBusy))
	assert.Less(t, time.Since(started), time.Second)

	release()

	// 释放后立刻可重新获取
	release2, err := locker.Acquire(ctx, "SKU-001", 50*time.Millisecond)
	require.NoError(t, err)
	release2()
}

func TestAcquireIndependentKeys(t *testing.T) {
	locker := NewKeyMutexLocker()
	ctx := context.Background()

	releaseA, err := locker.Acquire(ctx, "SKU-A", time.Second)
	require.NoError(t, err)
	defer releaseA()

	// 不同 SKU 互不阻塞
	releaseB, err := locker.Acquire(ctx, "SKU-B", 50*time.Millisecond)
	require.NoError(t, err)
	releaseB()
}

func TestReleaseIsIdempotent(t *testing.T) {
	locker := NewKeyMutexLocker()
	ctx := context.Background()

	release, err := locker.Acquire(ctx, "SKU-001", time.Second)
	require.NoError(t, err)
	release()
	release() // 重复释放不得破坏信号量

	release2, err := locker.Acquire(ctx, "SKU-001", 50*time.Millisecond)
	require.NoError(t, err)
	release2()
}

func TestAcquireContextCancelled(t *testing.T) {
	locker := NewKeyMutexLocker()

	release, err := locker.Acquire(context.Background(), "SKU-001", time.Second)
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = locker.Acquire(ctx, "SKU-001", time.Minute)
	assert.True(t, errors.Is(err, domain.ErrSKUBusy))
}
