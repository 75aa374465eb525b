// internal/service/inventory/infrastructure/memory_ledger.go
package infrastructure

import (
	"context"
	"sync"
	"time"

	"stockledger/internal/service/inventory/domain"
)

// MemoryLedgerStore 是 LedgerStore 的进程内实现：一个只追加的切片。
type MemoryLedgerStore struct {
	mu      sync.RWMutex
	entries []*domain.LedgerEntry
	nextSeq int64
}

func NewMemoryLedgerStore() *MemoryLedgerStore {
	return &MemoryLedgerStore{nextSeq: 1}
}

func (l *MemoryLedgerStore) Append(ctx context.Context, entry *domain.LedgerEntry) (*domain.LedgerEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	stored := *entry
	stored.Sequence = l.nextSeq
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	l.nextSeq++
	l.entries = append(l.entries, &stored)
	out := stored
	return &out, nil
}

func (l *MemoryLedgerStore) Query(ctx context.Context, productID string, from, to time.Time) ([]*domain.LedgerEntry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []*domain.LedgerEntry
	for _, e := range l.entries {
		if e.InventoryItem != productID {
			continue
		}
		if !from.IsZero() && e.CreatedAt.Before(from) {
			continue
		}
		if !to.IsZero() && e.CreatedAt.After(to) {
			continue
		}
		c := *e
		out = append(out, &c)
	}
	return out, nil
}
