// internal/service/inventory/domain/ledger.go
package domain

import "time"

// LedgerEntryType 定义了库存流水的动作类型。
type LedgerEntryType string

const (
	EntryReserve    LedgerEntryType = "RESERVE"    // 预占，Delta = +qty (reserved)
	EntryConfirm    LedgerEntryType = "CONFIRM"    // 确认消耗，Delta = -qty (on-hand 与 reserved 同减)
	EntryRelease    LedgerEntryType = "RELEASE"    // 取消退回，Delta = -qty (reserved)
	EntryExpire     LedgerEntryType = "EXPIRE"     // 过期退回，Delta = -qty (reserved)
	EntryAdjustment LedgerEntryType = "ADJUSTMENT" // 人工调整，Delta 作用于 on-hand
)

// LedgerEntry 是一条只追加的库存流水。写入后不可修改、不可删除。
// Sequence 由 LedgerStore 在追加时分配，回放按 Sequence 排序。
type LedgerEntry struct {
	Sequence      int64
	InventoryItem string // ProductID
	EntryType     LedgerEntryType
	QuantityDelta int    // 有符号数量
	Reference     string // 预留 ID 或外部单号
	Actor         string
	CreatedAt     time.Time
}

// ReplayState 按序回放一个 SKU 的全部流水，重建 OnHand / Reserved。
// 不变式：回放结果必须与当前计数器完全一致，否则说明流水或计数器被破坏。
func ReplayState(entries []*LedgerEntry) (onHand, reserved int) {
	for _, e := range entries {
		switch e.EntryType {
		case EntryReserve:
			reserved += e.QuantityDelta
		case EntryConfirm:
			// 确认同时消耗 on-hand 和 reserved
			reserved += e.QuantityDelta
			onHand += e.QuantityDelta
		case EntryRelease, EntryExpire:
			reserved += e.QuantityDelta
		case EntryAdjustment:
			onHand += e.QuantityDelta
		}
	}
	return onHand, reserved
}
