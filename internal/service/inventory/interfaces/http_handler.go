// internal/service/inventory/interfaces/http_handler.go
package interfaces

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"stockledger/internal/service/inventory/application"
	"stockledger/internal/service/inventory/domain"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
)

const serviceName = "inventory-service"

// InventoryHandler 封装了库存引擎的 HTTP 处理器
type InventoryHandler struct {
	engine *application.ReservationEngine
}

// NewInventoryHandler 创建一个新的 HTTP 处理器实例
func NewInventoryHandler(engine *application.ReservationEngine) *InventoryHandler {
	return &InventoryHandler{engine: engine}
}

// RegisterRoutes 在 ServeMux 上注册所有路由
func (h *InventoryHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/reserve", h.reserveHandler)
	mux.HandleFunc("/confirm", h.confirmHandler)
	mux.HandleFunc("/cancel", h.cancelHandler)
	mux.HandleFunc("/reservations/get", h.getReservationHandler)

	mux.HandleFunc("/items/create", h.createItemHandler)
	mux.HandleFunc("/items/adjust", h.adjustStockHandler)
	mux.HandleFunc("/items/retire", h.retireItemHandler)
	mux.HandleFunc("/items/snapshot", h.snapshotHandler)
	mux.HandleFunc("/items/ledger", h.ledgerHandler)
	mux.HandleFunc("/items/replay", h.replayHandler)
}

type reserveBody struct {
	ProductID  string `json:"productId"`
	CustomerID string `json:"customerId"`
	Quantity   int    `json:"quantity"`
	TTLSeconds int    `json:"ttlSeconds"`
}

func (h *InventoryHandler) reserveHandler(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	ctx, span := otel.Tracer(serviceName).Start(ctx, "http.Reserve")
	defer span.End()

	var body reserveBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	span.SetAttributes(
		attribute.String("product.id", body.ProductID),
		attribute.Int("quantity", body.Quantity),
	)

	result, err := h.engine.Reserve(ctx, &application.ReserveRequest{
		ProductID:  body.ProductID,
		CustomerID: body.CustomerID,
		Quantity:   body.Quantity,
		TTL:        time.Duration(body.TTLSeconds) * time.Second,
	})
	if err != nil {
		reserveTotal.WithLabelValues(reserveOutcome(err)).Inc()
		writeDomainError(w, err)
		return
	}
	if result.Success {
		reserveTotal.WithLabelValues("reserved").Inc()
	} else {
		reserveTotal.WithLabelValues("insufficient").Inc()
	}
	writeJSON(w, result)
}

type finalizeBody struct {
	ReservationID string `json:"reservationId"`
}

func (h *InventoryHandler) confirmHandler(w http.ResponseWriter, r *http.Request) {
	h.finalize(w, r, "http.Confirm", "confirmed", h.engine.Confirm)
}

func (h *InventoryHandler) cancelHandler(w http.ResponseWriter, r *http.Request) {
	h.finalize(w, r, "http.Cancel", "cancelled", h.engine.Cancel)
}

func (h *InventoryHandler) finalize(w http.ResponseWriter, r *http.Request, spanName, status string, op func(ctx context.Context, id string) error) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	ctx, span := otel.Tracer(serviceName).Start(ctx, spanName)
	defer span.End()

	var body finalizeBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	span.SetAttributes(attribute.String("reservation.id", body.ReservationID))

	if err := op(ctx, body.ReservationID); err != nil {
		finalizeTotal.WithLabelValues(status, "error").Inc()
		writeDomainError(w, err)
		return
	}
	finalizeTotal.WithLabelValues(status, "ok").Inc()
	writeJSON(w, map[string]bool{"success": true})
}

func (h *InventoryHandler) getReservationHandler(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

	res, err := h.engine.GetReservation(ctx, r.URL.Query().Get("reservationId"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, res)
}

type createItemBody struct {
	ProductID     string `json:"productId"`
	OnHand        int    `json:"onHand"`
	ReorderLevel  int    `json:"reorderLevel"`
	MaxStockLevel int    `json:"maxStockLevel"`
	Location      string `json:"location"`
	Actor         string `json:"actor"`
}

func (h *InventoryHandler) createItemHandler(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	ctx, span := otel.Tracer(serviceName).Start(ctx, "http.CreateItem")
	defer span.End()

	var body createItemBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	item, err := h.engine.CreateItem(ctx, body.ProductID, body.OnHand, body.ReorderLevel, body.MaxStockLevel, body.Location, body.Actor)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, item)
}

type adjustBody struct {
	ProductID string `json:"productId"`
	Delta     int    `json:"delta"`
	Reference string `json:"reference"`
	Actor     string `json:"actor"`
}

func (h *InventoryHandler) adjustStockHandler(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	ctx, span := otel.Tracer(serviceName).Start(ctx, "http.AdjustStock")
	defer span.End()

	var body adjustBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	item, err := h.engine.AdjustStock(ctx, body.ProductID, body.Delta, body.Reference, body.Actor)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, item)
}

func (h *InventoryHandler) retireItemHandler(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	ctx, span := otel.Tracer(serviceName).Start(ctx, "http.RetireItem")
	defer span.End()

	var body struct {
		ProductID string `json:"productId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	if err := h.engine.RetireItem(ctx, body.ProductID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, map[string]bool{"success": true})
}

func (h *InventoryHandler) snapshotHandler(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

	item, err := h.engine.Snapshot(ctx, r.URL.Query().Get("productId"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, item)
}

func (h *InventoryHandler) ledgerHandler(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

	from, err := parseTimeParam(r.URL.Query().Get("from"))
	if err != nil {
		http.Error(w, "invalid from timestamp", http.StatusBadRequest)
		return
	}
	to, err := parseTimeParam(r.URL.Query().Get("to"))
	if err != nil {
		http.Error(w, "invalid to timestamp", http.StatusBadRequest)
		return
	}

	entries, err := h.engine.LedgerEntries(ctx, r.URL.Query().Get("productId"), from, to)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, entries)
}

func (h *InventoryHandler) replayHandler(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

	report, err := h.engine.VerifyLedger(ctx, r.URL.Query().Get("productId"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, report)
}

func parseTimeParam(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, raw)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// writeDomainError 把领域错误映射到 HTTP 状态码。
// ErrSKUBusy 返回 503 并带 Retry-After，提示调用方退避重试。
func writeDomainError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrItemNotFound), errors.Is(err, domain.ErrReservationNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrItemExists),
		errors.Is(err, domain.ErrItemRetired),
		errors.Is(err, domain.ErrReservationNotActive),
		errors.Is(err, domain.ErrTransitionConflict):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrSKUBusy):
		status = http.StatusServiceUnavailable
		w.Header().Set("Retry-After", "1")
	}
	http.Error(w, err.Error(), status)
}

func reserveOutcome(err error) string {
	switch {
	case errors.Is(err, domain.ErrSKUBusy):
		return "busy"
	default:
		return "error"
	}
}
