// internal/service/inventory/domain/reservation.go
package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// ReservationStatus 定义了预留的生命周期状态。
type ReservationStatus string

const (
	StatusActive    ReservationStatus = "ACTIVE"    // 占用中，等待确认或过期
	StatusConfirmed ReservationStatus = "CONFIRMED" // 已确认，库存被永久消耗
	StatusCancelled ReservationStatus = "CANCELLED" // 已取消，库存退回可用池
	StatusExpired   ReservationStatus = "EXPIRED"   // 超时被清理，库存退回可用池
)

// IsTerminal 终态不允许再发生任何转移。
func (s ReservationStatus) IsTerminal() bool {
	return s == StatusConfirmed || s == StatusCancelled || s == StatusExpired
}

// Reservation 是一次对库存的时限性占用。
// 由 Reserve 创建，恰好进入一个终态，之后不可变。
type Reservation struct {
	ID         string
	ProductID  string
	CustomerID string
	Quantity   int
	Status     ReservationStatus
	CreatedAt  time.Time
	ExpiresAt  time.Time
	UpdatedAt  time.Time
}

// NewReservation 工厂函数，校验入参后生成一个 Active 预留。
func NewReservation(productID, customerID string, quantity int, ttl time.Duration) (*Reservation, error) {
	if productID == "" || customerID == "" {
		return nil, errors.Wrap(ErrInvalidArgument, "product id and customer id are required")
	}
	if quantity <= 0 {
		return nil, errors.Wrapf(ErrInvalidArgument, "quantity must be positive, got %d", quantity)
	}
	if ttl <= 0 {
		return nil, errors.Wrapf(ErrInvalidArgument, "ttl must be positive, got %v", ttl)
	}

	now := time.Now()
	return &Reservation{
		ID:         uuid.New().String(),
		ProductID:  productID,
		CustomerID: customerID,
		Quantity:   quantity,
		Status:     StatusActive,
		CreatedAt:  now,
		ExpiresAt:  now.Add(ttl),
		UpdatedAt:  now,
	}, nil
}

// IsExpired 判断预留是否已过 TTL。过期本身只是“可被清扫”，状态转移由扫描器驱动。
func (r *Reservation) IsExpired(now time.Time) bool {
	return r.Status == StatusActive && now.After(r.ExpiresAt)
}

// Clone 返回深拷贝，注册表用它对外隔离内部状态。
func (r *Reservation) Clone() *Reservation {
	c := *r
	return &c
}
