// internal/service/inventory/infrastructure/keymutex.go
package infrastructure

import (
	"context"
	"sync"
	"time"

	"stockledger/internal/service/inventory/domain"

	"github.com/pkg/errors"
)

// KeyMutexLocker 是 SKULocker 的进程内实现：每个 SKU 一个容量为 1 的信号量。
// 等待预算耗尽返回 ErrSKUBusy。单进程部署的默认选择；
// 多实例部署换用 Redis 或 ZooKeeper 实现。
type KeyMutexLocker struct {
	mu   sync.Mutex
	sems map[string]chan struct{}
}

func NewKeyMutexLocker() *KeyMutexLocker {
	return &KeyMutexLocker{sems: make(map[string]chan struct{})}
}

func (l *KeyMutexLocker) sem(productID string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	sem, ok := l.sems[productID]
	if !ok {
		// SKU 基数有限，条目不回收
		sem = make(chan struct{}, 1)
		l.sems[productID] = sem
	}
	return sem
}

// Acquire 在 wait 预算内尝试获得 productID 的排他访问。
func (l *KeyMutexLocker) Acquire(ctx context.Context, productID string, wait time.Duration) (func(), error) {
	sem := l.sem(productID)

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case sem <- struct{}{}:
		var once sync.Once
		return func() { once.Do(func() { <-sem }) }, nil
	case <-timer.C:
		return nil, errors.Wrapf(domain.ErrSKUBusy, "lock wait exceeded %v for %s", wait, productID)
	case <-ctx.Done():
		return nil, errors.Wrapf(domain.ErrSKUBusy, "context cancelled while waiting for %s", productID)
	}
}
