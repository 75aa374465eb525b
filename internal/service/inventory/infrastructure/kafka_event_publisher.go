// internal/service/inventory/infrastructure/kafka_event_publisher.go
package infrastructure

import (
	"context"
	"encoding/json"

	"stockledger/internal/pkg/logger"
	"stockledger/internal/pkg/mq"
	"stockledger/internal/service/inventory/domain"
	"stockledger/internal/service/inventory/domain/port"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
)

// KafkaEventPublisher 直接把领域事件写入 Kafka，以 SKU 为 Key 保证分区内有序。
// memory 存储模式下没有外盒表，用这条直发路径。
type KafkaEventPublisher struct {
	writer *kafka.Writer
}

func NewKafkaEventPublisher(writer *kafka.Writer) *KafkaEventPublisher {
	return &KafkaEventPublisher{writer: writer}
}

func (p *KafkaEventPublisher) Publish(ctx context.Context, event *domain.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "marshal event")
	}
	if err := mq.ProduceMessage(ctx, p.writer, []byte(event.ProductID), payload); err != nil {
		return errors.Wrapf(err, "publish %s event", event.Type)
	}
	logger.Ctx(ctx).Debug().
		Str("event_type", string(event.Type)).
		Str("product_id", event.ProductID).
		Msg("event published to kafka")
	return nil
}

func (p *KafkaEventPublisher) Close() error {
	return p.writer.Close()
}

// CompositePublisher 把同一事件扇出给多个发布器，例如 Kafka 加 WebSocket 广播。
// 任一下游失败即返回错误，调用方按 at-least-once 处理。
type CompositePublisher struct {
	targets []port.EventPublisher
}

func NewCompositePublisher(targets ...port.EventPublisher) *CompositePublisher {
	return &CompositePublisher{targets: targets}
}

func (p *CompositePublisher) Publish(ctx context.Context, event *domain.Event) error {
	var firstErr error
	for _, t := range p.targets {
		if err := t.Publish(ctx, event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
