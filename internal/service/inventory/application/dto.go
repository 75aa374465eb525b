// internal/service/inventory/application/dto.go
package application

import "time"

// ReserveRequest 是预占库存的入参 DTO。
type ReserveRequest struct {
	ProductID  string        `json:"productId"`
	CustomerID string        `json:"customerId"`
	Quantity   int           `json:"quantity"`
	TTL        time.Duration `json:"ttl"`
}

// ReservationResult 返回给下单方。
// 库存不足是正常业务结果，通过 FailureReason 表达，不走 error 通道。
type ReservationResult struct {
	Success       bool   `json:"success"`
	ReservationID string `json:"reservationId,omitempty"`
	FailureReason string `json:"failureReason,omitempty"`
}

const (
	// FailureInsufficientStock 可用库存小于请求数量。
	FailureInsufficientStock = "INSUFFICIENT_STOCK"
)

// ReplayReport 是流水回放对账的结果，供审计方使用。
type ReplayReport struct {
	ProductID       string `json:"productId"`
	Entries         int    `json:"entries"`
	LedgerOnHand    int    `json:"ledgerOnHand"`
	LedgerReserved  int    `json:"ledgerReserved"`
	CurrentOnHand   int    `json:"currentOnHand"`
	CurrentReserved int    `json:"currentReserved"`
	Consistent      bool   `json:"consistent"`
}
