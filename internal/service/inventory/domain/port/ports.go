// internal/service/inventory/domain/port/ports.go
package port

import (
	"context"
	"time"

	"stockledger/internal/service/inventory/domain"
)

// InventoryStore 是 SKU 计数器的持久化端口。
// ApplyDelta 是唯一的变更路径：实现必须原子地执行读-校验-写，
// 拒绝破坏不变式的变更且不产生任何部分写入。
type InventoryStore interface {
	Get(ctx context.Context, productID string) (*domain.InventoryItem, error)
	Create(ctx context.Context, item *domain.InventoryItem) error
	ApplyDelta(ctx context.Context, productID string, reservedDelta, onHandDelta int) (*domain.InventoryItem, error)
	Retire(ctx context.Context, productID string) error
}

// ReservationRegistry 管理预留的生命周期。
// Transition 是状态 CAS：仅当存量状态等于 from 时成功，
// 保证每条生命周期边在并发竞争下至多执行一次。
type ReservationRegistry interface {
	Create(ctx context.Context, r *domain.Reservation) error
	Get(ctx context.Context, id string) (*domain.Reservation, error)
	Transition(ctx context.Context, id string, from, to domain.ReservationStatus) error
	// ListExpired 返回 ExpiresAt 早于 cutoff 的 Active 预留，最多 limit 条。
	ListExpired(ctx context.Context, cutoff time.Time, limit int) ([]*domain.Reservation, error)
	ListActiveBySKU(ctx context.Context, productID string) ([]*domain.Reservation, error)
}

// LedgerStore 是只追加的流水存储。Append 分配 Sequence。
// 追加天然无需写者协调，排序依赖 Sequence 而非时钟。
type LedgerStore interface {
	Append(ctx context.Context, entry *domain.LedgerEntry) (*domain.LedgerEntry, error)
	// Query 按 SKU 和可选时间范围查询，零值时间表示不限。结果按 Sequence 升序。
	Query(ctx context.Context, productID string, from, to time.Time) ([]*domain.LedgerEntry, error)
}

// SKULocker 提供 SKU 粒度的排他访问。
// 实现必须支持有界等待：预算耗尽时返回 domain.ErrSKUBusy，绝不无限排队。
// 每次操作只持有一把锁，不存在死锁风险。
type SKULocker interface {
	Acquire(ctx context.Context, productID string, wait time.Duration) (release func(), err error)
}

// EventPublisher 在流水落账后发布领域事件，at-least-once。
type EventPublisher interface {
	Publish(ctx context.Context, event *domain.Event) error
}

// ReplenishmentPolicy 在库存变化后评估是否需要触发补货告警。
// 返回命中的规则名；未命中时 ok 为 false。
type ReplenishmentPolicy interface {
	ShouldReorder(ctx context.Context, item *domain.InventoryItem) (ok bool, rule string, err error)
}
