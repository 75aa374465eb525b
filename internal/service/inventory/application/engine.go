// internal/service/inventory/application/engine.go
package application

import (
	"context"
	"sync/atomic"
	"time"

	"stockledger/internal/pkg/logger"
	"stockledger/internal/service/inventory/domain"
	"stockledger/internal/service/inventory/domain/port"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// ReservationEngine 是库存预留的编排核心。
// 它对单个 SKU 的所有变更做串行化（SKULocker），
// 原子地推进 计数器 + 注册表 + 流水，并在落账后发布事件。
// 不同 SKU 之间完全并行，没有全局锁。
type ReservationEngine struct {
	items    port.InventoryStore
	registry port.ReservationRegistry
	ledger   port.LedgerStore
	locker   port.SKULocker
	events   port.EventPublisher
	policy   port.ReplenishmentPolicy // 可为 nil，表示不做补货评估

	lockWait time.Duration
	tracer   trace.Tracer
}

// NewReservationEngine 组装引擎。policy 传 nil 则关闭补货告警。
func NewReservationEngine(
	items port.InventoryStore,
	registry port.ReservationRegistry,
	ledger port.LedgerStore,
	locker port.SKULocker,
	events port.EventPublisher,
	policy port.ReplenishmentPolicy,
	lockWait time.Duration,
) *ReservationEngine {
	return &ReservationEngine{
		items:    items,
		registry: registry,
		ledger:   ledger,
		locker:   locker,
		events:   events,
		policy:   policy,
		lockWait: lockWait,
		tracer:   otel.Tracer("reservation-engine"),
	}
}

// Reserve 为客户预占 quantity 件库存，TTL 内未确认则被扫描器回收。
// 步骤 2-5（读、校验、计数器、注册表、流水）在 SKU 锁内作为一个单元执行，
// 其他调用方看不到任何中间状态。
func (e *ReservationEngine) Reserve(ctx context.Context, req *ReserveRequest) (*ReservationResult, error) {
	ctx, span := e.tracer.Start(ctx, "engine.Reserve", trace.WithAttributes(
		attribute.String("product.id", req.ProductID),
		attribute.Int("quantity", req.Quantity),
	))
	defer span.End()

	// 非法入参在加锁之前拒绝
	reservation, err := domain.NewReservation(req.ProductID, req.CustomerID, req.Quantity, req.TTL)
	if err != nil {
		span.SetStatus(codes.Error, "invalid reserve request")
		return nil, err
	}

	release, err := e.locker.Acquire(ctx, req.ProductID, e.lockWait)
	if err != nil {
		span.SetStatus(codes.Error, "sku lock not acquired")
		return nil, err
	}
	defer release()

	item, err := e.items.Get(ctx, req.ProductID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if item.Retired {
		return nil, errors.Wrapf(domain.ErrItemRetired, "product %s", req.ProductID)
	}

	// 库存不足：正常业务结果，无任何变更、无流水
	if req.Quantity > item.QuantityAvailable {
		span.AddEvent("insufficient stock", trace.WithAttributes(
			attribute.Int("available", item.QuantityAvailable),
		))
		logger.Ctx(ctx).Info().
			Str("product_id", req.ProductID).
			Int("requested", req.Quantity).
			Int("available", item.QuantityAvailable).
			Msg("reserve rejected: insufficient stock")
		return &ReservationResult{Success: false, FailureReason: FailureInsufficientStock}, nil
	}

	if _, err := e.items.ApplyDelta(ctx, req.ProductID, req.Quantity, 0); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "apply reserve delta failed")
		return nil, err
	}

	if err := e.registry.Create(ctx, reservation); err != nil {
		// 注册失败要把刚占用的计数器退回去，不能留下悬挂的占用
		e.compensateDelta(ctx, req.ProductID, -req.Quantity, 0)
		span.RecordError(err)
		span.SetStatus(codes.Error, "create reservation failed")
		return nil, errors.Wrap(err, "create reservation")
	}

	if _, err := e.ledger.Append(ctx, &domain.LedgerEntry{
		InventoryItem: req.ProductID,
		EntryType:     domain.EntryReserve,
		QuantityDelta: req.Quantity,
		Reference:     reservation.ID,
		Actor:         req.CustomerID,
		CreatedAt:     time.Now(),
	}); err != nil {
		// 流水写入失败视为整个预占失败：回滚注册表和计数器
		if terr := e.registry.Transition(ctx, reservation.ID, domain.StatusActive, domain.StatusCancelled); terr != nil {
			logger.Ctx(ctx).Error().Err(terr).
				Str("reservation_id", reservation.ID).
				Msg("CRITICAL: rollback transition failed after ledger append error")
		}
		e.compensateDelta(ctx, req.ProductID, -req.Quantity, 0)
		span.RecordError(err)
		span.SetStatus(codes.Error, "ledger append failed")
		return nil, errors.Wrap(err, "append reserve ledger entry")
	}

	e.publish(ctx, &domain.Event{
		Type:          domain.EventStockReserved,
		ProductID:     req.ProductID,
		ReservationID: reservation.ID,
		CustomerID:    req.CustomerID,
		Quantity:      req.Quantity,
	})

	span.AddEvent("stock reserved", trace.WithAttributes(attribute.String("reservation.id", reservation.ID)))
	logger.Ctx(ctx).Info().
		Str("product_id", req.ProductID).
		Str("reservation_id", reservation.ID).
		Int("quantity", req.Quantity).
		Msg("stock reserved")

	return &ReservationResult{Success: true, ReservationID: reservation.ID}, nil
}

// Confirm 把预留转为永久消耗。对已 Confirmed 的预留重复调用是幂等成功；
// 对 Cancelled/Expired 返回 ErrReservationNotActive。
func (e *ReservationEngine) Confirm(ctx context.Context, reservationID string) error {
	return e.finalize(ctx, reservationID, domain.StatusConfirmed, "")
}

// Cancel 取消一个 Active 预留，库存退回可用池。
func (e *ReservationEngine) Cancel(ctx context.Context, reservationID string) error {
	return e.finalize(ctx, reservationID, domain.StatusCancelled, "")
}

// Release 是 Cancel 的别名，给下单方的补偿路径使用。
func (e *ReservationEngine) Release(ctx context.Context, reservationID string) error {
	return e.Cancel(ctx, reservationID)
}

// finalize 推进一个 Active 预留到终态。
// CAS 门在任何变更之前：竞争的失败方不会写入任何计数器或流水。
func (e *ReservationEngine) finalize(ctx context.Context, reservationID string, to domain.ReservationStatus, actor string) error {
	ctx, span := e.tracer.Start(ctx, "engine.Finalize", trace.WithAttributes(
		attribute.String("reservation.id", reservationID),
		attribute.String("target.status", string(to)),
	))
	defer span.End()

	if reservationID == "" {
		return errors.Wrap(domain.ErrInvalidArgument, "reservation id is empty")
	}

	r, err := e.registry.Get(ctx, reservationID)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if actor == "" {
		actor = r.CustomerID
	}

	release, err := e.locker.Acquire(ctx, r.ProductID, e.lockWait)
	if err != nil {
		span.SetStatus(codes.Error, "sku lock not acquired")
		return err
	}
	defer release()

	if err := e.registry.Transition(ctx, reservationID, domain.StatusActive, to); err != nil {
		if !errors.Is(err, domain.ErrTransitionConflict) {
			span.RecordError(err)
			return err
		}
		// CAS 失败：重读当前状态决定结局
		current, gerr := e.registry.Get(ctx, reservationID)
		if gerr != nil {
			span.RecordError(gerr)
			return gerr
		}
		if to == domain.StatusConfirmed && current.Status == domain.StatusConfirmed {
			// 重复 Confirm：幂等成功，不再落账、不再扣减
			span.AddEvent("confirm idempotent no-op")
			return nil
		}
		span.AddEvent("reservation already terminal", trace.WithAttributes(
			attribute.String("current.status", string(current.Status)),
		))
		return errors.Wrapf(domain.ErrReservationNotActive, "reservation %s is %s", reservationID, current.Status)
	}

	// CAS 赢家才能走到这里，以下变更恰好执行一次
	reservedDelta := -r.Quantity
	onHandDelta := 0
	entryType := domain.EntryRelease
	eventType := domain.EventStockReleased
	switch to {
	case domain.StatusConfirmed:
		onHandDelta = -r.Quantity
		entryType = domain.EntryConfirm
		eventType = domain.EventReservationConfirmed
	case domain.StatusExpired:
		entryType = domain.EntryExpire
		eventType = domain.EventReservationExpired
	}

	item, err := e.items.ApplyDelta(ctx, r.ProductID, reservedDelta, onHandDelta)
	if err != nil {
		// CAS 已经成功而计数器失败，说明状态被破坏；只上报，不自动修正
		logger.Ctx(ctx).Error().Err(err).
			Str("reservation_id", reservationID).
			Str("product_id", r.ProductID).
			Msg("CRITICAL: counter update failed after status transition")
		span.RecordError(err)
		span.SetStatus(codes.Error, "invariant violation")
		return err
	}

	if _, err := e.ledger.Append(ctx, &domain.LedgerEntry{
		InventoryItem: r.ProductID,
		EntryType:     entryType,
		QuantityDelta: -r.Quantity,
		Reference:     reservationID,
		Actor:         actor,
		CreatedAt:     time.Now(),
	}); err != nil {
		logger.Ctx(ctx).Error().Err(err).
			Str("reservation_id", reservationID).
			Msg("CRITICAL: ledger append failed after counter update")
		span.RecordError(err)
		return errors.Wrap(err, "append closing ledger entry")
	}

	e.publish(ctx, &domain.Event{
		Type:          eventType,
		ProductID:     r.ProductID,
		ReservationID: reservationID,
		CustomerID:    r.CustomerID,
		Quantity:      r.Quantity,
	})
	e.maybeReorder(ctx, item)

	logger.Ctx(ctx).Info().
		Str("reservation_id", reservationID).
		Str("status", string(to)).
		Msg("reservation finalized")
	return nil
}

// ExpireSweep 清扫一批过期的 Active 预留。
// 单条失败只记录日志不中断批次；注册表 CAS 保证与用户侧 Confirm/Cancel
// 竞争时每条预留只有一个赢家，多实例并行清扫也是安全的。
func (e *ReservationEngine) ExpireSweep(ctx context.Context, batchSize int) (int, error) {
	ctx, span := e.tracer.Start(ctx, "engine.ExpireSweep")
	defer span.End()

	expired, err := e.registry.ListExpired(ctx, time.Now(), batchSize)
	if err != nil {
		span.RecordError(err)
		return 0, errors.Wrap(err, "list expired reservations")
	}
	if len(expired) == 0 {
		return 0, nil
	}

	var g errgroup.Group
	g.SetLimit(8)
	var swept atomic.Int64
	for _, r := range expired {
		g.Go(func() error {
			if err := e.finalize(ctx, r.ID, domain.StatusExpired, "sweeper"); err != nil {
				// 预留可能刚被用户 Confirm/Cancel 抢走，这是正常竞争
				if errors.Is(err, domain.ErrReservationNotActive) {
					return nil
				}
				logger.Ctx(ctx).Warn().Err(err).
					Str("reservation_id", r.ID).
					Msg("failed to expire reservation, will retry next sweep")
				return nil
			}
			swept.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	span.SetAttributes(
		attribute.Int("expired.candidates", len(expired)),
		attribute.Int64("expired.swept", swept.Load()),
	)
	return int(swept.Load()), nil
}

// CreateItem 为一个 SKU 建档。初始库存作为一条 Adjustment 流水落账，
// 保证从零回放流水能重建当前计数器。
func (e *ReservationEngine) CreateItem(ctx context.Context, productID string, onHand, reorderLevel, maxStockLevel int, location, actor string) (*domain.InventoryItem, error) {
	ctx, span := e.tracer.Start(ctx, "engine.CreateItem", trace.WithAttributes(
		attribute.String("product.id", productID),
	))
	defer span.End()

	item, err := domain.NewInventoryItem(productID, onHand, reorderLevel, maxStockLevel, location)
	if err != nil {
		return nil, err
	}
	if err := e.items.Create(ctx, item); err != nil {
		span.RecordError(err)
		return nil, err
	}
	if onHand > 0 {
		if _, err := e.ledger.Append(ctx, &domain.LedgerEntry{
			InventoryItem: productID,
			EntryType:     domain.EntryAdjustment,
			QuantityDelta: onHand,
			Reference:     "onboarding",
			Actor:         actor,
			CreatedAt:     time.Now(),
		}); err != nil {
			span.RecordError(err)
			return nil, errors.Wrap(err, "append onboarding ledger entry")
		}
	}
	return item, nil
}

// AdjustStock 人工调整在库数量（盘点、损耗）。
// 不变式门会拒绝让 OnHand 低于 Reserved 的调整，避免把现有预留架空。
func (e *ReservationEngine) AdjustStock(ctx context.Context, productID string, delta int, reference, actor string) (*domain.InventoryItem, error) {
	ctx, span := e.tracer.Start(ctx, "engine.AdjustStock", trace.WithAttributes(
		attribute.String("product.id", productID),
		attribute.Int("delta", delta),
	))
	defer span.End()

	if delta == 0 {
		return nil, errors.Wrap(domain.ErrInvalidArgument, "adjustment delta is zero")
	}

	release, err := e.locker.Acquire(ctx, productID, e.lockWait)
	if err != nil {
		return nil, err
	}
	defer release()

	item, err := e.items.ApplyDelta(ctx, productID, 0, delta)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if _, err := e.ledger.Append(ctx, &domain.LedgerEntry{
		InventoryItem: productID,
		EntryType:     domain.EntryAdjustment,
		QuantityDelta: delta,
		Reference:     reference,
		Actor:         actor,
		CreatedAt:     time.Now(),
	}); err != nil {
		logger.Ctx(ctx).Error().Err(err).
			Str("product_id", productID).
			Msg("CRITICAL: ledger append failed after adjustment")
		return nil, errors.Wrap(err, "append adjustment ledger entry")
	}

	e.publish(ctx, &domain.Event{
		Type:      domain.EventStockAdjusted,
		ProductID: productID,
		Quantity:  delta,
	})
	e.maybeReorder(ctx, item)
	return item, nil
}

// RetireItem 软下架一个 SKU。存在 Active 预留时拒绝。
func (e *ReservationEngine) RetireItem(ctx context.Context, productID string) error {
	release, err := e.locker.Acquire(ctx, productID, e.lockWait)
	if err != nil {
		return err
	}
	defer release()

	active, err := e.registry.ListActiveBySKU(ctx, productID)
	if err != nil {
		return err
	}
	if len(active) > 0 {
		return errors.Errorf("cannot retire %s: %d active reservations still reference it", productID, len(active))
	}
	return e.items.Retire(ctx, productID)
}

// Snapshot 返回 SKU 当前计数器快照，供审计/报表方查询。
func (e *ReservationEngine) Snapshot(ctx context.Context, productID string) (*domain.InventoryItem, error) {
	return e.items.Get(ctx, productID)
}

// GetReservation 查询单条预留。
func (e *ReservationEngine) GetReservation(ctx context.Context, reservationID string) (*domain.Reservation, error) {
	return e.registry.Get(ctx, reservationID)
}

// LedgerEntries 按 SKU 和可选时间范围查询流水。
func (e *ReservationEngine) LedgerEntries(ctx context.Context, productID string, from, to time.Time) ([]*domain.LedgerEntry, error) {
	return e.ledger.Query(ctx, productID, from, to)
}

// VerifyLedger 回放一个 SKU 的全部流水并与当前计数器对账。
func (e *ReservationEngine) VerifyLedger(ctx context.Context, productID string) (*ReplayReport, error) {
	ctx, span := e.tracer.Start(ctx, "engine.VerifyLedger")
	defer span.End()

	item, err := e.items.Get(ctx, productID)
	if err != nil {
		return nil, err
	}
	entries, err := e.ledger.Query(ctx, productID, time.Time{}, time.Time{})
	if err != nil {
		return nil, err
	}
	onHand, reserved := domain.ReplayState(entries)

	report := &ReplayReport{
		ProductID:       productID,
		Entries:         len(entries),
		LedgerOnHand:    onHand,
		LedgerReserved:  reserved,
		CurrentOnHand:   item.QuantityOnHand,
		CurrentReserved: item.QuantityReserved,
		Consistent:      onHand == item.QuantityOnHand && reserved == item.QuantityReserved,
	}
	if !report.Consistent {
		logger.Ctx(ctx).Error().
			Str("product_id", productID).
			Int("ledger_on_hand", onHand).
			Int("ledger_reserved", reserved).
			Int("current_on_hand", item.QuantityOnHand).
			Int("current_reserved", item.QuantityReserved).
			Msg("CRITICAL: ledger replay mismatch")
	}
	return report, nil
}

// compensateDelta 回滚一次计数器变更。补偿失败是严重事件，需要人工介入。
func (e *ReservationEngine) compensateDelta(ctx context.Context, productID string, reservedDelta, onHandDelta int) {
	if _, err := e.items.ApplyDelta(ctx, productID, reservedDelta, onHandDelta); err != nil {
		logger.Ctx(ctx).Error().Err(err).
			Str("product_id", productID).
			Int("reserved_delta", reservedDelta).
			Int("on_hand_delta", onHandDelta).
			Msg("CRITICAL: compensation delta failed")
	}
}

// publish 发布领域事件。投递由 outbox 保证 at-least-once，
// 这里的失败只记录，不回滚已落账的业务变更。
func (e *ReservationEngine) publish(ctx context.Context, event *domain.Event) {
	event.EventID = uuid.New().String()
	event.OccurredAt = time.Now()
	if err := e.events.Publish(ctx, event); err != nil {
		logger.Ctx(ctx).Error().Err(err).
			Str("event_type", string(event.Type)).
			Str("product_id", event.ProductID).
			Msg("failed to publish domain event")
	}
}

// maybeReorder 在库存变化后评估补货规则，命中则发布告警事件。
func (e *ReservationEngine) maybeReorder(ctx context.Context, item *domain.InventoryItem) {
	if e.policy == nil || item == nil {
		return
	}
	ok, rule, err := e.policy.ShouldReorder(ctx, item)
	if err != nil {
		logger.Ctx(ctx).Warn().Err(err).
			Str("product_id", item.ProductID).
			Msg("replenishment policy evaluation failed")
		return
	}
	if ok {
		e.publish(ctx, &domain.Event{
			Type:      domain.EventReorderAlert,
			ProductID: item.ProductID,
			Quantity:  item.QuantityAvailable,
			Rule:      rule,
		})
	}
}
