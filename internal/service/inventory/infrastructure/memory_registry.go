// internal/service/inventory/infrastructure/memory_registry.go
package infrastructure

import (
	"context"
	"sort"
	"sync"
	"time"

	"stockledger/internal/service/inventory/domain"

	"github.com/pkg/errors"
)

// MemoryReservationRegistry 是 ReservationRegistry 的进程内实现。
// Transition 在注册表锁内完成比较和写入，等价于一次 CAS。
type MemoryReservationRegistry struct {
	mu           sync.RWMutex
	reservations map[string]*domain.Reservation
	bySKU        map[string][]string // productID -> reservation ids
}

func NewMemoryReservationRegistry() *MemoryReservationRegistry {
	return &MemoryReservationRegistry{
		reservations: make(map[string]*domain.Reservation),
		bySKU:        make(map[string][]string),
	}
}

func (r *MemoryReservationRegistry) Create(ctx context.Context, res *domain.Reservation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.reservations[res.ID]; ok {
		return errors.Errorf("reservation %s already exists", res.ID)
	}
	r.reservations[res.ID] = res.Clone()
	r.bySKU[res.ProductID] = append(r.bySKU[res.ProductID], res.ID)
	return nil
}

func (r *MemoryReservationRegistry) Get(ctx context.Context, id string) (*domain.Reservation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res, ok := r.reservations[id]
	if !ok {
		return nil, errors.Wrapf(domain.ErrReservationNotFound, "reservation %s", id)
	}
	return res.Clone(), nil
}

// Transition 仅当存量状态等于 from 时写入 to，否则返回 ErrTransitionConflict。
// 两个并发调用方竞争同一条边时恰好一个成功。
func (r *MemoryReservationRegistry) Transition(ctx context.Context, id string, from, to domain.ReservationStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.reservations[id]
	if !ok {
		return errors.Wrapf(domain.ErrReservationNotFound, "reservation %s", id)
	}
	if res.Status != from {
		return errors.Wrapf(domain.ErrTransitionConflict, "reservation %s is %s, expected %s", id, res.Status, from)
	}
	res.Status = to
	res.UpdatedAt = time.Now()
	return nil
}

func (r *MemoryReservationRegistry) ListExpired(ctx context.Context, cutoff time.Time, limit int) ([]*domain.Reservation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.Reservation
	for _, res := range r.reservations {
		if res.Status == domain.StatusActive && res.ExpiresAt.Before(cutoff) {
			out = append(out, res.Clone())
		}
	}
	// 稳定输出顺序，先过期的先清
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryReservationRegistry) ListActiveBySKU(ctx context.Context, productID string) ([]*domain.Reservation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.Reservation
	for _, id := range r.bySKU[productID] {
		if res := r.reservations[id]; res != nil && res.Status == domain.StatusActive {
			out = append(out, res.Clone())
		}
	}
	return out, nil
}
