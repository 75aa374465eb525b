// internal/service/inventory/domain/item.go
package domain

import (
	"time"

	"github.com/pkg/errors"
)

// InventoryItem 是单个 SKU 的库存聚合根。
// 三个计数器满足严格不变式: OnHand - Reserved == Available，且三者均 >= 0。
// 它只负责计数，不感知预留的生命周期。
type InventoryItem struct {
	ProductID         string
	QuantityOnHand    int
	QuantityReserved  int
	QuantityAvailable int // 派生值，每次变更后重算

	ReorderLevel  int
	MaxStockLevel int
	Location      string

	Retired     bool // 软下架标记，有预留引用时不允许物理删除
	LastUpdated time.Time
}

// NewInventoryItem 工厂函数，SKU 建档时调用一次。
func NewInventoryItem(productID string, onHand, reorderLevel, maxStockLevel int, location string) (*InventoryItem, error) {
	if productID == "" {
		return nil, errors.Wrap(ErrInvalidArgument, "product id is empty")
	}
	if onHand < 0 {
		return nil, errors.Wrap(ErrInvalidArgument, "initial on-hand quantity is negative")
	}
	return &InventoryItem{
		ProductID:         productID,
		QuantityOnHand:    onHand,
		QuantityReserved:  0,
		QuantityAvailable: onHand,
		ReorderLevel:      reorderLevel,
		MaxStockLevel:     maxStockLevel,
		Location:          location,
		LastUpdated:       time.Now(),
	}, nil
}

// ApplyDelta 是计数器唯一的变更入口。
// 任何会让 Available < 0 或 Reserved > OnHand 的变更都被原样拒绝，不产生部分写入。
func (i *InventoryItem) ApplyDelta(reservedDelta, onHandDelta int) error {
	newReserved := i.QuantityReserved + reservedDelta
	newOnHand := i.QuantityOnHand + onHandDelta

	if newReserved < 0 || newOnHand < 0 || newReserved > newOnHand {
		return errors.Wrapf(ErrInvariantViolation,
			"delta rejected for %s: onHand %d%+d reserved %d%+d",
			i.ProductID, i.QuantityOnHand, onHandDelta, i.QuantityReserved, reservedDelta)
	}

	i.QuantityReserved = newReserved
	i.QuantityOnHand = newOnHand
	i.QuantityAvailable = newOnHand - newReserved
	i.LastUpdated = time.Now()
	return nil
}

// CheckInvariant 校验当前计数器是否自洽，供存储层和对账使用。
func (i *InventoryItem) CheckInvariant() error {
	if i.QuantityOnHand < 0 || i.QuantityReserved < 0 ||
		i.QuantityReserved > i.QuantityOnHand ||
		i.QuantityOnHand-i.QuantityReserved != i.QuantityAvailable {
		return errors.Wrapf(ErrInvariantViolation,
			"item %s: onHand=%d reserved=%d available=%d",
			i.ProductID, i.QuantityOnHand, i.QuantityReserved, i.QuantityAvailable)
	}
	return nil
}

// Clone 返回一份深拷贝，存储层用它避免把内部状态泄漏给调用方。
func (i *InventoryItem) Clone() *InventoryItem {
	c := *i
	return &c
}
