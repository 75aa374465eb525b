// internal/service/inventory/infrastructure/gorm_model.go
package infrastructure

import "time"

// InventoryItemModel 是 inventory_items 表的数据库模型。
// Version 是乐观锁版本号，ApplyDelta 的条件更新依赖它。
type InventoryItemModel struct {
	ProductID         string `gorm:"primaryKey;size:64"`
	QuantityOnHand    int    `gorm:"not null"`
	QuantityReserved  int    `gorm:"not null"`
	QuantityAvailable int    `gorm:"not null"`
	ReorderLevel      int
	MaxStockLevel     int
	Location          string `gorm:"size:128"`
	Retired           bool   `gorm:"not null;default:false"`
	Version           int64  `gorm:"not null;default:0"`
	LastUpdated       time.Time
}

func (InventoryItemModel) TableName() string { return "inventory_items" }

// ReservationModel 是 reservations 表的数据库模型。
// 状态转移通过 WHERE id AND status 的条件更新实现 CAS。
type ReservationModel struct {
	ID         string `gorm:"primaryKey;size:36"`
	ProductID  string `gorm:"index;size:64;not null"`
	CustomerID string `gorm:"size:64;not null"`
	Quantity   int    `gorm:"not null"`
	Status     string `gorm:"index;size:16;not null"`
	CreatedAt  time.Time
	ExpiresAt  time.Time `gorm:"index"`
	UpdatedAt  time.Time
}

func (ReservationModel) TableName() string { return "reservations" }

// LedgerEntryModel 是 ledger_entries 表的数据库模型。
// 只插入，自增主键即回放顺序；没有任何 UPDATE/DELETE 路径。
type LedgerEntryModel struct {
	Sequence      int64  `gorm:"primaryKey;autoIncrement"`
	ProductID     string `gorm:"index;size:64;not null"`
	EntryType     string `gorm:"size:16;not null"`
	QuantityDelta int    `gorm:"not null"`
	Reference     string `gorm:"size:64"`
	Actor         string `gorm:"size:64"`
	CreatedAt     time.Time `gorm:"index"`
}

func (LedgerEntryModel) TableName() string { return "ledger_entries" }

// OutboxModel 是 outbox_events 表的数据库模型，中继器轮询 PENDING 记录投递。
type OutboxModel struct {
	ID          int64  `gorm:"primaryKey;autoIncrement"`
	MessageKey  string `gorm:"size:64"`
	Payload     []byte `gorm:"type:blob"`
	Status      string `gorm:"index;size:16;not null"`
	Attempts    int    `gorm:"not null;default:0"`
	LastError   string `gorm:"size:512"`
	CreatedAt   time.Time
	PublishedAt *time.Time
}

func (OutboxModel) TableName() string { return "outbox_events" }
