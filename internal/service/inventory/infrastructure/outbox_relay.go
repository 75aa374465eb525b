// internal/service/inventory/infrastructure/outbox_relay.go
package infrastructure

import (
	"context"
	"time"

	"stockledger/internal/pkg/logger"
	"stockledger/internal/pkg/mq"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// OutboxRelay 轮询外盒表中的待投递记录并写入 Kafka。
// 单条记录投递失败不会阻塞同批其他记录，失败记录标记后由运维介入。
type OutboxRelay struct {
	store     OutboxStore
	writer    *kafka.Writer
	interval  time.Duration
	batchSize int
	tracer    trace.Tracer
}

func NewOutboxRelay(store OutboxStore, writer *kafka.Writer, interval time.Duration, batchSize int) *OutboxRelay {
	return &OutboxRelay{
		store:     store,
		writer:    writer,
		interval:  interval,
		batchSize: batchSize,
		tracer:    otel.Tracer("outbox-relay"),
	}
}

// Start 阻塞运行中继循环，ctx 取消后退出。
func (r *OutboxRelay) Start(ctx context.Context) {
	logger.Logger().Info().
		Dur("interval", r.interval).
		Int("batch_size", r.batchSize).
		Msg("outbox relay started")

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Logger().Info().Msg("outbox relay stopped")
			return
		case <-ticker.C:
			if err := r.relayBatch(ctx); err != nil {
				logger.Ctx(ctx).Error().Err(err).Msg("outbox relay batch failed")
			}
		}
	}
}

func (r *OutboxRelay) relayBatch(ctx context.Context) error {
	ctx, span := r.tracer.Start(ctx, "OutboxRelay.relayBatch")
	defer span.End()

	records, err := r.store.PendingBatch(ctx, r.batchSize)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}
	span.SetAttributes(attribute.Int("outbox.batch", len(records)))

	for _, rec := range records {
		if err := mq.ProduceMessage(ctx, r.writer, []byte(rec.MessageKey), rec.Payload); err != nil {
			logger.Ctx(ctx).Error().Err(err).
				Int64("outbox_id", rec.ID).
				Str("key", rec.MessageKey).
				Msg("failed to relay outbox record")
			if markErr := r.store.MarkFailed(ctx, rec.ID, err.Error()); markErr != nil {
				logger.Ctx(ctx).Error().Err(markErr).Int64("outbox_id", rec.ID).Msg("failed to mark outbox record failed")
			}
			continue
		}
		if err := r.store.MarkPublished(ctx, rec.ID); err != nil {
			// 标记失败会导致该记录重投，at-least-once 语义下可接受
			logger.Ctx(ctx).Warn().Err(err).Int64("outbox_id", rec.ID).Msg("failed to mark outbox record published")
		}
	}
	return nil
}
