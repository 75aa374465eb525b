// internal/service/inventory/domain/errors.go
package domain

import "github.com/pkg/errors"

// 领域错误分为两类：
// 业务结果（库存不足、预留已终态）直接返回给调用方，不算故障；
// ErrInvariantViolation 属于内部一致性破坏信号，正常路径不可达。
var (
	// ErrInvalidArgument 非法入参（数量/TTL 非正数、ID 为空），在加锁前拒绝。
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrItemNotFound 未知 SKU。
	ErrItemNotFound = errors.New("inventory item not found")

	// ErrItemExists SKU 已存在，重复建档。
	ErrItemExists = errors.New("inventory item already exists")

	// ErrItemRetired SKU 已软下架，不再接受新预留。
	ErrItemRetired = errors.New("inventory item retired")

	// ErrInsufficientStock 可用库存不足，属于正常业务结果而非故障。
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrReservationNotFound 未知预留 ID。
	ErrReservationNotFound = errors.New("reservation not found")

	// ErrReservationNotActive 对已终态的预留执行 Confirm/Cancel。
	ErrReservationNotActive = errors.New("reservation is not active")

	// ErrTransitionConflict 状态 CAS 失败：存量状态与期望的 from 状态不符，
	// 或行级乐观锁竞争耗尽重试。调用方可带退避重试。
	ErrTransitionConflict = errors.New("concurrent transition conflict")

	// ErrSKUBusy 在等待预算内未能获得 SKU 级排他访问，调用方应退避重试。
	ErrSKUBusy = errors.New("sku is busy, retry later")

	// ErrInvariantViolation 计数器不变式被破坏。正确使用 ApplyDelta 时不可达，
	// 一旦出现说明存在程序缺陷或数据损坏，只上报、绝不自动修正。
	ErrInvariantViolation = errors.New("inventory invariant violation")
)
