// internal/service/inventory/infrastructure/gorm_repository.go
package infrastructure

import (
	"context"
	"time"

	"stockledger/internal/service/inventory/domain"

	sqlmysql "github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// applyDeltaRetries 行级乐观锁的重试上限。
// SKU 锁已经把同 SKU 的写串行化了，这里的竞争只来自跨进程部署。
const applyDeltaRetries = 5

// OpenMySQL 建立 GORM 连接并迁移表结构。
func OpenMySQL(addr, user, password, database string) (*gorm.DB, error) {
	cfg := sqlmysql.Config{
		User:                 user,
		Passwd:               password,
		Net:                  "tcp",
		Addr:                 addr,
		DBName:               database,
		ParseTime:            true,
		AllowNativePasswords: true,
	}
	db, err := gorm.Open(gormmysql.Open(cfg.FormatDSN()), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "open mysql")
	}
	if err := db.AutoMigrate(&InventoryItemModel{}, &ReservationModel{}, &LedgerEntryModel{}, &OutboxModel{}); err != nil {
		return nil, errors.Wrap(err, "auto migrate")
	}
	return db, nil
}

// GormInventoryStore 是 InventoryStore 的 MySQL 实现。
// ApplyDelta 用版本号条件更新实现行级 CAS。
type GormInventoryStore struct {
	db *gorm.DB
}

func NewGormInventoryStore(db *gorm.DB) *GormInventoryStore {
	return &GormInventoryStore{db: db}
}

func (s *GormInventoryStore) Get(ctx context.Context, productID string) (*domain.InventoryItem, error) {
	var m InventoryItemModel
	err := s.db.WithContext(ctx).Where("product_id = ?", productID).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Wrapf(domain.ErrItemNotFound, "product %s", productID)
		}
		return nil, errors.Wrap(err, "query inventory item")
	}
	return toDomainItem(&m), nil
}

func (s *GormInventoryStore) Create(ctx context.Context, item *domain.InventoryItem) error {
	m := toItemModel(item)
	err := s.db.WithContext(ctx).Create(m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return errors.Wrapf(domain.ErrItemExists, "product %s", item.ProductID)
		}
		return errors.Wrap(err, "insert inventory item")
	}
	return nil
}

func (s *GormInventoryStore) ApplyDelta(ctx context.Context, productID string, reservedDelta, onHandDelta int) (*domain.InventoryItem, error) {
	for attempt := 0; attempt < applyDeltaRetries; attempt++ {
		var m InventoryItemModel
		err := s.db.WithContext(ctx).Where("product_id = ?", productID).First(&m).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, errors.Wrapf(domain.ErrItemNotFound, "product %s", productID)
			}
			return nil, errors.Wrap(err, "load inventory item")
		}

		item := toDomainItem(&m)
		if err := item.ApplyDelta(reservedDelta, onHandDelta); err != nil {
			// 不变式校验失败：不写库，原样拒绝
			return nil, err
		}

		res := s.db.WithContext(ctx).Model(&InventoryItemModel{}).
			Where("product_id = ? AND version = ?", productID, m.Version).
			Updates(map[string]interface{}{
				"quantity_on_hand":   item.QuantityOnHand,
				"quantity_reserved":  item.QuantityReserved,
				"quantity_available": item.QuantityAvailable,
				"last_updated":       item.LastUpdated,
				"version":            m.Version + 1,
			})
		if res.Error != nil {
			return nil, errors.Wrap(res.Error, "update inventory item")
		}
		if res.RowsAffected == 1 {
			return item, nil
		}
		// 版本号已被其他写者推进，重读重试
	}
	return nil, errors.Wrapf(domain.ErrTransitionConflict, "inventory row contention on %s", productID)
}

func (s *GormInventoryStore) Retire(ctx context.Context, productID string) error {
	res := s.db.WithContext(ctx).Model(&InventoryItemModel{}).
		Where("product_id = ?", productID).
		Updates(map[string]interface{}{"retired": true, "last_updated": time.Now()})
	if res.Error != nil {
		return errors.Wrap(res.Error, "retire inventory item")
	}
	if res.RowsAffected == 0 {
		return errors.Wrapf(domain.ErrItemNotFound, "product %s", productID)
	}
	return nil
}

// GormReservationRegistry 是 ReservationRegistry 的 MySQL 实现。
type GormReservationRegistry struct {
	db *gorm.DB
}

func NewGormReservationRegistry(db *gorm.DB) *GormReservationRegistry {
	return &GormReservationRegistry{db: db}
}

func (r *GormReservationRegistry) Create(ctx context.Context, res *domain.Reservation) error {
	return errors.Wrap(r.db.WithContext(ctx).Create(toReservationModel(res)).Error, "insert reservation")
}

func (r *GormReservationRegistry) Get(ctx context.Context, id string) (*domain.Reservation, error) {
	var m ReservationModel
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Wrapf(domain.ErrReservationNotFound, "reservation %s", id)
		}
		return nil, errors.Wrap(err, "query reservation")
	}
	return toDomainReservation(&m), nil
}

// Transition 用条件 UPDATE 实现状态 CAS：WHERE 带上期望的 from 状态，
// RowsAffected == 0 即竞争失败。数据库保证并发下恰好一个赢家。
func (r *GormReservationRegistry) Transition(ctx context.Context, id string, from, to domain.ReservationStatus) error {
	res := r.db.WithContext(ctx).Model(&ReservationModel{}).
		Where("id = ? AND status = ?", id, string(from)).
		Updates(map[string]interface{}{"status": string(to), "updated_at": time.Now()})
	if res.Error != nil {
		return errors.Wrap(res.Error, "transition reservation")
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := r.db.WithContext(ctx).Model(&ReservationModel{}).Where("id = ?", id).Count(&count).Error; err != nil {
			return errors.Wrap(err, "recheck reservation existence")
		}
		if count == 0 {
			return errors.Wrapf(domain.ErrReservationNotFound, "reservation %s", id)
		}
		return errors.Wrapf(domain.ErrTransitionConflict, "reservation %s not in %s", id, from)
	}
	return nil
}

func (r *GormReservationRegistry) ListExpired(ctx context.Context, cutoff time.Time, limit int) ([]*domain.Reservation, error) {
	var models []ReservationModel
	err := r.db.WithContext(ctx).
		Where("status = ? AND expires_at < ?", string(domain.StatusActive), cutoff).
		Order("expires_at ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, errors.Wrap(err, "list expired reservations")
	}
	out := make([]*domain.Reservation, 0, len(models))
	for i := range models {
		out = append(out, toDomainReservation(&models[i]))
	}
	return out, nil
}

func (r *GormReservationRegistry) ListActiveBySKU(ctx context.Context, productID string) ([]*domain.Reservation, error) {
	var models []ReservationModel
	err := r.db.WithContext(ctx).
		Where("product_id = ? AND status = ?", productID, string(domain.StatusActive)).
		Find(&models).Error
	if err != nil {
		return nil, errors.Wrap(err, "list active reservations")
	}
	out := make([]*domain.Reservation, 0, len(models))
	for i := range models {
		out = append(out, toDomainReservation(&models[i]))
	}
	return out, nil
}

// GormLedgerStore 是 LedgerStore 的 MySQL 实现。表只有 INSERT 路径。
type GormLedgerStore struct {
	db *gorm.DB
}

func NewGormLedgerStore(db *gorm.DB) *GormLedgerStore {
	return &GormLedgerStore{db: db}
}

func (l *GormLedgerStore) Append(ctx context.Context, entry *domain.LedgerEntry) (*domain.LedgerEntry, error) {
	m := toEntryModel(entry)
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	if err := l.db.WithContext(ctx).Create(m).Error; err != nil {
		return nil, errors.Wrap(err, "append ledger entry")
	}
	return toDomainEntry(m), nil
}

func (l *GormLedgerStore) Query(ctx context.Context, productID string, from, to time.Time) ([]*domain.LedgerEntry, error) {
	q := l.db.WithContext(ctx).Where("product_id = ?", productID)
	if !from.IsZero() {
		q = q.Where("created_at >= ?", from)
	}
	if !to.IsZero() {
		q = q.Where("created_at <= ?", to)
	}
	var models []LedgerEntryModel
	if err := q.Order("sequence ASC").Find(&models).Error; err != nil {
		return nil, errors.Wrap(err, "query ledger entries")
	}
	out := make([]*domain.LedgerEntry, 0, len(models))
	for i := range models {
		out = append(out, toDomainEntry(&models[i]))
	}
	return out, nil
}
