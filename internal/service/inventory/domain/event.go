// internal/service/inventory/domain/event.go
package domain

import "time"

// EventType 定义了引擎对外发布的领域事件类型。
type EventType string

const (
	EventStockReserved        EventType = "stock.reserved"
	EventReservationConfirmed EventType = "reservation.confirmed"
	EventStockReleased        EventType = "stock.released"
	EventReservationExpired   EventType = "reservation.expired"
	EventStockAdjusted        EventType = "stock.adjusted"
	EventReorderAlert         EventType = "stock.reorder_alert"
)

// Event 在流水落账之后发布，投递语义是 at-least-once。
// 消费方必须以 ReservationID 做幂等去重。
type Event struct {
	EventID       string    `json:"eventId"`
	Type          EventType `json:"type"`
	ProductID     string    `json:"productId"`
	ReservationID string    `json:"reservationId,omitempty"`
	CustomerID    string    `json:"customerId,omitempty"`
	Quantity      int       `json:"quantity,omitempty"`
	Rule          string    `json:"rule,omitempty"` // 补货告警命中的规则名
	OccurredAt    time.Time `json:"occurredAt"`
}
