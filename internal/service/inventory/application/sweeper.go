// internal/service/inventory/application/sweeper.go
package application

import (
	"context"
	"time"

	"stockledger/internal/pkg/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var (
	sweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "stockledger_sweep_duration_seconds",
		Help:    "Duration of expiry sweep batches.",
		Buckets: prometheus.DefBuckets,
	})
	sweepExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stockledger_sweep_expired_total",
		Help: "Reservations expired by the sweeper.",
	})
)

// ExpirySweeper 是周期性的过期预留清扫器。
// 清扫本身是幂等的（注册表 CAS 兜底），可以安全地重跑或在多实例上并行。
type ExpirySweeper struct {
	engine    *ReservationEngine
	interval  time.Duration
	batchSize int
	tracer    trace.Tracer
}

// NewExpirySweeper 创建清扫器。interval 决定轮询周期，batchSize 限制单次处理量。
func NewExpirySweeper(engine *ReservationEngine, interval time.Duration, batchSize int) *ExpirySweeper {
	return &ExpirySweeper{
		engine:    engine,
		interval:  interval,
		batchSize: batchSize,
		tracer:    otel.Tracer("expiry-sweeper"),
	}
}

// Start 阻塞运行清扫循环，直到 ctx 被取消。调用方负责放进独立的 goroutine。
func (s *ExpirySweeper) Start(ctx context.Context) {
	logger.Ctx(ctx).Info().
		Dur("interval", s.interval).
		Int("batch_size", s.batchSize).
		Msg("expiry sweeper started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := s.RunExpirySweep(ctx); err != nil {
				logger.Ctx(ctx).Error().Err(err).Msg("expiry sweep tick failed")
			}
		case <-ctx.Done():
			logger.Ctx(ctx).Info().Msg("expiry sweeper stopped")
			return
		}
	}
}

// RunExpirySweep 执行一次清扫，返回本次转为 Expired 的预留数。
// 这是暴露给宿主进程的调度钩子，也可以被外部定时任务直接调用。
func (s *ExpirySweeper) RunExpirySweep(ctx context.Context) (int, error) {
	ctx, span := s.tracer.Start(ctx, "sweeper.RunExpirySweep")
	defer span.End()

	started := time.Now()
	swept, err := s.engine.ExpireSweep(ctx, s.batchSize)
	sweepDuration.Observe(time.Since(started).Seconds())
	if err != nil {
		span.RecordError(err)
		return 0, err
	}
	sweepExpired.Add(float64(swept))
	if swept > 0 {
		span.SetAttributes(attribute.Int("swept", swept))
		logger.Ctx(ctx).Info().Int("swept", swept).Msg("expired reservations released")
	}
	return swept, nil
}
