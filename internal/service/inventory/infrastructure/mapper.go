// internal/service/inventory/infrastructure/mapper.go
package infrastructure

import "stockledger/internal/service/inventory/domain"

// 数据库模型与领域模型之间的转换。领域层不感知 GORM 标签和版本号。

func toDomainItem(m *InventoryItemModel) *domain.InventoryItem {
	return &domain.InventoryItem{
		ProductID:         m.ProductID,
		QuantityOnHand:    m.QuantityOnHand,
		QuantityReserved:  m.QuantityReserved,
		QuantityAvailable: m.QuantityAvailable,
		ReorderLevel:      m.ReorderLevel,
		MaxStockLevel:     m.MaxStockLevel,
		Location:          m.Location,
		Retired:           m.Retired,
		LastUpdated:       m.LastUpdated,
	}
}

func toItemModel(i *domain.InventoryItem) *InventoryItemModel {
	return &InventoryItemModel{
		ProductID:         i.ProductID,
		QuantityOnHand:    i.QuantityOnHand,
		QuantityReserved:  i.QuantityReserved,
		QuantityAvailable: i.QuantityAvailable,
		ReorderLevel:      i.ReorderLevel,
		MaxStockLevel:     i.MaxStockLevel,
		Location:          i.Location,
		Retired:           i.Retired,
		LastUpdated:       i.LastUpdated,
	}
}

func toDomainReservation(m *ReservationModel) *domain.Reservation {
	return &domain.Reservation{
		ID:         m.ID,
		ProductID:  m.ProductID,
		CustomerID: m.CustomerID,
		Quantity:   m.Quantity,
		Status:     domain.ReservationStatus(m.Status),
		CreatedAt:  m.CreatedAt,
		ExpiresAt:  m.ExpiresAt,
		UpdatedAt:  m.UpdatedAt,
	}
}

func toReservationModel(r *domain.Reservation) *ReservationModel {
	return &ReservationModel{
		ID:         r.ID,
		ProductID:  r.ProductID,
		CustomerID: r.CustomerID,
		Quantity:   r.Quantity,
		Status:     string(r.Status),
		CreatedAt:  r.CreatedAt,
		ExpiresAt:  r.ExpiresAt,
		UpdatedAt:  r.UpdatedAt,
	}
}

func toDomainEntry(m *LedgerEntryModel) *domain.LedgerEntry {
	return &domain.LedgerEntry{
		Sequence:      m.Sequence,
		InventoryItem: m.ProductID,
		EntryType:     domain.LedgerEntryType(m.EntryType),
		QuantityDelta: m.QuantityDelta,
		Reference:     m.Reference,
		Actor:         m.Actor,
		CreatedAt:     m.CreatedAt,
	}
}

func toEntryModel(e *domain.LedgerEntry) *LedgerEntryModel {
	return &LedgerEntryModel{
		ProductID:     e.InventoryItem,
		EntryType:     string(e.EntryType),
		QuantityDelta: e.QuantityDelta,
		Reference:     e.Reference,
		Actor:         e.Actor,
		CreatedAt:     e.CreatedAt,
	}
}
