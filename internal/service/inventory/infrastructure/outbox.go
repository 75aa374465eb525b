// internal/service/inventory/infrastructure/outbox.go
package infrastructure

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"stockledger/internal/service/inventory/domain"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

const (
	outboxStatusPending   = "PENDING"
	outboxStatusPublished = "PUBLISHED"
	outboxStatusFailed    = "FAILED"
)

// OutboxStore 是事务外盒的存储端口：事件先落库，由中继器异步投递。
type OutboxStore interface {
	Enqueue(ctx context.Context, key string, payload []byte) error
	PendingBatch(ctx context.Context, limit int) ([]*OutboxModel, error)
	MarkPublished(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64, cause string) error
}

// OutboxPublisher 把领域事件写入外盒而不是直接发 Kafka。
// 投递语义是 at-least-once：中继器重试直到成功，消费方按 ReservationID 幂等。
type OutboxPublisher struct {
	store OutboxStore
}

func NewOutboxPublisher(store OutboxStore) *OutboxPublisher {
	return &OutboxPublisher{store: store}
}

func (p *OutboxPublisher) Publish(ctx context.Context, event *domain.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "marshal outbox event")
	}
	return p.store.Enqueue(ctx, event.ProductID, payload)
}

// GormOutbox 是 OutboxStore 的 MySQL 实现。
type GormOutbox struct {
	db *gorm.DB
}

func NewGormOutbox(db *gorm.DB) *GormOutbox {
	return &GormOutbox{db: db}
}

func (o *GormOutbox) Enqueue(ctx context.Context, key string, payload []byte) error {
	rec := &OutboxModel{
		MessageKey: key,
		Payload:    payload,
		Status:     outboxStatusPending,
		CreatedAt:  time.Now(),
	}
	return errors.Wrap(o.db.WithContext(ctx).Create(rec).Error, "enqueue outbox record")
}

func (o *GormOutbox) PendingBatch(ctx context.Context, limit int) ([]*OutboxModel, error) {
	var records []*OutboxModel
	err := o.db.WithContext(ctx).
		Where("status = ?", outboxStatusPending).
		Order("id ASC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, errors.Wrap(err, "load pending outbox records")
	}
	return records, nil
}

func (o *GormOutbox) MarkPublished(ctx context.Context, id int64) error {
	now := time.Now()
	return errors.Wrap(o.db.WithContext(ctx).Model(&OutboxModel{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"status": outboxStatusPublished, "published_at": &now}).Error,
		"mark outbox record published")
}

func (o *GormOutbox) MarkFailed(ctx context.Context, id int64, cause string) error {
	if len(cause) > 512 {
		cause = cause[:512]
	}
	return errors.Wrap(o.db.WithContext(ctx).Model(&OutboxModel{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     outboxStatusFailed,
			"attempts":   gorm.Expr("attempts + 1"),
			"last_error": cause,
		}).Error,
		"mark outbox record failed")
}

// MemoryOutbox 是内存实现，供 memory 存储模式和测试使用。
type MemoryOutbox struct {
	mu      sync.Mutex
	nextID  int64
	records []*OutboxModel
}

func NewMemoryOutbox() *MemoryOutbox {
	return &MemoryOutbox{nextID: 1}
}

func (o *MemoryOutbox) Enqueue(_ context.Context, key string, payload []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.records = append(o.records, &OutboxModel{
		ID:         o.nextID,
		MessageKey: key,
		Payload:    payload,
		Status:     outboxStatusPending,
		CreatedAt:  time.Now(),
	})
	o.nextID++
	return nil
}

func (o *MemoryOutbox) PendingBatch(_ context.Context, limit int) ([]*OutboxModel, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]*OutboxModel, 0, limit)
	for _, rec := range o.records {
		if rec.Status != outboxStatusPending {
			continue
		}
		cp := *rec
		out = append(out, &cp)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (o *MemoryOutbox) MarkPublished(_ context.Context, id int64) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, rec := range o.records {
		if rec.ID == id {
			now := time.Now()
			rec.Status = outboxStatusPublished
			rec.PublishedAt = &now
			return nil
		}
	}
	return errors.Errorf("outbox record %d not found", id)
}

func (o *MemoryOutbox) MarkFailed(_ context.Context, id int64, cause string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, rec := range o.records {
		if rec.ID == id {
			rec.Status = outboxStatusFailed
			rec.Attempts++
			rec.LastError = cause
			return nil
		}
	}
	return errors.Errorf("outbox record %d not found", id)
}
