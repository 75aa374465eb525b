// internal/service/inventory/infrastructure/memory_store.go
package infrastructure

import (
	"context"
	"sync"
	"time"

	"stockledger/internal/service/inventory/domain"

	"github.com/pkg/errors"
)

// MemoryInventoryStore 是 InventoryStore 的进程内实现。
// 用于测试和嵌入式部署；持久化部署使用 GORM 实现。
type MemoryInventoryStore struct {
	mu    sync.RWMutex
	items map[string]*domain.InventoryItem
}

func NewMemoryInventoryStore() *MemoryInventoryStore {
	return &MemoryInventoryStore{items: make(map[string]*domain.InventoryItem)}
}

func (s *MemoryInventoryStore) Get(ctx context.Context, productID string) (*domain.InventoryItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[productID]
	if !ok {
		return nil, errors.Wrapf(domain.ErrItemNotFound, "product %s", productID)
	}
	return item.Clone(), nil
}

func (s *MemoryInventoryStore) Create(ctx context.Context, item *domain.InventoryItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[item.ProductID]; ok {
		return errors.Wrapf(domain.ErrItemExists, "product %s", item.ProductID)
	}
	s.items[item.ProductID] = item.Clone()
	return nil
}

// ApplyDelta 在存储锁内做读-校验-写，失败的变更不留下任何痕迹。
func (s *MemoryInventoryStore) ApplyDelta(ctx context.Context, productID string, reservedDelta, onHandDelta int) (*domain.InventoryItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[productID]
	if !ok {
		return nil, errors.Wrapf(domain.ErrItemNotFound, "product %s", productID)
	}

	next := item.Clone()
	if err := next.ApplyDelta(reservedDelta, onHandDelta); err != nil {
		return nil, err
	}
	s.items[productID] = next
	return next.Clone(), nil
}

func (s *MemoryInventoryStore) Retire(ctx context.Context, productID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[productID]
	if !ok {
		return errors.Wrapf(domain.ErrItemNotFound, "product %s", productID)
	}
	item.Retired = true
	item.LastUpdated = time.Now()
	return nil
}
