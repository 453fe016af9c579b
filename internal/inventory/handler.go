package inventory

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/stockpile-ims/stockpile/internal/platform/httpx"
	"github.com/stockpile-ims/stockpile/internal/rbac"
	"github.com/stockpile-ims/stockpile/internal/shared"
)

// IdempotencyHeader carries the client supplied posting key.
const IdempotencyHeader = "Idempotency-Key"

// Handler exposes stock, ledger and adjustment endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler constructs the inventory HTTP handler.
func NewHandler(logger *slog.Logger, service *Service, rbacMW rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbacMW}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.rbac.RequireAny(shared.PermInventoryView)).Get("/", h.listStock)
	r.With(h.rbac.RequireAny(shared.PermInventoryView)).Get("/ledger", h.listLedger)

	r.With(h.rbac.RequireAny(shared.PermInventoryStockIn)).Post("/", h.stockIn)
	r.With(h.rbac.RequireAny(shared.PermInventoryStockIn)).Post("/bulk", h.bulkStockIn)
	r.With(h.rbac.RequireAny(shared.PermInventoryStockOut)).Post("/stock-out", h.stockOut)
	r.With(h.rbac.RequireAny(shared.PermInventoryTransfer)).Post("/transfer", h.transfer)

	r.Route("/adjustments", func(r chi.Router) {
		r.With(h.rbac.RequireAny(shared.PermInventoryView, shared.PermInventoryAdjust, shared.PermInventoryApproveAdj)).Get("/", h.listAdjustments)
		r.With(h.rbac.RequireAny(shared.PermInventoryAdjust)).Post("/request", h.requestAdjustment)
		r.With(h.rbac.RequireAny(shared.PermInventoryApproveAdj)).Post("/{id}/approve", h.approveAdjustment)
		r.With(h.rbac.RequireAny(shared.PermInventoryApproveAdj)).Post("/{id}/reject", h.rejectAdjustment)
	})
}

type stockInForm struct {
	ProductID   uuid.UUID `json:"product_id"`
	WarehouseID uuid.UUID `json:"warehouse_id"`
	Quantity    int64     `json:"quantity"`
	Reason      string    `json:"reason"`
}

type bulkStockInForm struct {
	Lines []stockInForm `json:"lines"`
}

type transferForm struct {
	ProductID       uuid.UUID `json:"product_id"`
	FromWarehouseID uuid.UUID `json:"from_warehouse_id"`
	ToWarehouseID   uuid.UUID `json:"to_warehouse_id"`
	Quantity        int64     `json:"quantity"`
	Reason          string    `json:"reason"`
}

type adjustmentForm struct {
	ProductID   uuid.UUID `json:"product_id"`
	WarehouseID uuid.UUID `json:"warehouse_id"`
	Delta       int64     `json:"delta"`
	Reason      string    `json:"reason"`
}

type rejectForm struct {
	Reason string `json:"reason"`
}

func (h *Handler) listStock(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := StockFilters{Page: 1, Limit: 20, Search: q.Get("search")}
	if page, err := strconv.Atoi(q.Get("page")); err == nil && page > 0 {
		f.Page = page
	}
	if limit, err := strconv.Atoi(q.Get("per_page")); err == nil && limit > 0 && limit <= 100 {
		f.Limit = limit
	}
	if id, err := uuid.Parse(q.Get("warehouse_id")); err == nil {
		f.WarehouseID = id
	}
	if id, err := uuid.Parse(q.Get("product_id")); err == nil {
		f.ProductID = id
	}

	items, total, err := h.service.ListStock(r.Context(), f)
	if err != nil {
		h.logger.Error("list stock", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if items == nil {
		items = []StockRow{}
	}
	pg := shared.NewPagination(f.Page, f.Limit, total)
	httpx.List(w, items, httpx.ListMeta{Page: pg.Page, PerPage: pg.PerPage, Total: pg.Total, TotalPages: pg.TotalPages})
}

func (h *Handler) listLedger(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := LedgerFilters{Page: 1, Limit: 20, Type: q.Get("type")}
	if page, err := strconv.Atoi(q.Get("page")); err == nil && page > 0 {
		f.Page = page
	}
	if limit, err := strconv.Atoi(q.Get("per_page")); err == nil && limit > 0 && limit <= 100 {
		f.Limit = limit
	}
	if id, err := uuid.Parse(q.Get("product_id")); err == nil {
		f.ProductID = id
	}
	if id, err := uuid.Parse(q.Get("warehouse_id")); err == nil {
		f.WarehouseID = id
	}
	if t, err := time.Parse("2006-01-02", q.Get("from")); err == nil {
		f.From = &t
	}
	if t, err := time.Parse("2006-01-02", q.Get("to")); err == nil {
		end := t.AddDate(0, 0, 1)
		f.To = &end
	}

	items, total, err := h.service.ListLedger(r.Context(), f)
	if err != nil {
		h.logger.Error("list ledger", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if items == nil {
		items = []LedgerRow{}
	}
	pg := shared.NewPagination(f.Page, f.Limit, total)
	httpx.List(w, items, httpx.ListMeta{Page: pg.Page, PerPage: pg.PerPage, Total: pg.Total, TotalPages: pg.TotalPages})
}

func (h *Handler) stockIn(w http.ResponseWriter, r *http.Request) {
	var form stockInForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	stock, err := h.service.StockIn(r.Context(), StockInInput{
		ProductID:      form.ProductID,
		WarehouseID:    form.WarehouseID,
		Quantity:       form.Quantity,
		Reason:         form.Reason,
		ActorID:        actorID(r),
		IdempotencyKey: r.Header.Get(IdempotencyHeader),
	})
	if err != nil {
		h.respondError(w, "stock in", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, stock)
}

func (h *Handler) bulkStockIn(w http.ResponseWriter, r *http.Request) {
	var form bulkStockInForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	lines := make([]BulkStockInLine, 0, len(form.Lines))
	for _, l := range form.Lines {
		lines = append(lines, BulkStockInLine{
			ProductID:   l.ProductID,
			WarehouseID: l.WarehouseID,
			Quantity:    l.Quantity,
			Reason:      l.Reason,
		})
	}
	stocks, err := h.service.BulkStockIn(r.Context(), lines, actorID(r))
	if err != nil {
		h.respondError(w, "bulk stock in", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"stocks": stocks})
}

func (h *Handler) stockOut(w http.ResponseWriter, r *http.Request) {
	var form stockInForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	stock, err := h.service.StockOut(r.Context(), StockOutInput{
		ProductID:      form.ProductID,
		WarehouseID:    form.WarehouseID,
		Quantity:       form.Quantity,
		Reason:         form.Reason,
		ActorID:        actorID(r),
		IdempotencyKey: r.Header.Get(IdempotencyHeader),
	})
	if err != nil {
		h.respondError(w, "stock out", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, stock)
}

func (h *Handler) transfer(w http.ResponseWriter, r *http.Request) {
	var form transferForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	src, dst, err := h.service.Transfer(r.Context(), TransferInput{
		ProductID:       form.ProductID,
		FromWarehouseID: form.FromWarehouseID,
		ToWarehouseID:   form.ToWarehouseID,
		Quantity:        form.Quantity,
		Reason:          form.Reason,
		ActorID:         actorID(r),
		IdempotencyKey:  r.Header.Get(IdempotencyHeader),
	})
	if err != nil {
		h.respondError(w, "transfer", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"source": src, "destination": dst})
}

func (h *Handler) listAdjustments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := AdjustmentFilters{Page: 1, Limit: 20, Status: q.Get("status")}
	if page, err := strconv.Atoi(q.Get("page")); err == nil && page > 0 {
		f.Page = page
	}
	if limit, err := strconv.Atoi(q.Get("per_page")); err == nil && limit > 0 && limit <= 100 {
		f.Limit = limit
	}

	items, total, err := h.service.ListAdjustments(r.Context(), f)
	if err != nil {
		h.logger.Error("list adjustments", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if items == nil {
		items = []AdjustmentRow{}
	}
	pg := shared.NewPagination(f.Page, f.Limit, total)
	httpx.List(w, items, httpx.ListMeta{Page: pg.Page, PerPage: pg.PerPage, Total: pg.Total, TotalPages: pg.TotalPages})
}

func (h *Handler) requestAdjustment(w http.ResponseWriter, r *http.Request) {
	var form adjustmentForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	adj, err := h.service.RequestAdjustment(r.Context(), Adjustment{
		ProductID:   form.ProductID,
		WarehouseID: form.WarehouseID,
		Delta:       form.Delta,
		Reason:      form.Reason,
		RequestedBy: actorID(r),
	})
	if err != nil {
		h.respondError(w, "request adjustment", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, adj)
}

func (h *Handler) approveAdjustment(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	adj, err := h.service.ApproveAdjustment(r.Context(), id, actorID(r))
	if err != nil {
		h.respondError(w, "approve adjustment", err)
		return
	}
	httpx.JSON(w, http.StatusOK, adj)
}

func (h *Handler) rejectAdjustment(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	var form rejectForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	adj, err := h.service.RejectAdjustment(r.Context(), id, actorID(r), form.Reason)
	if err != nil {
		h.respondError(w, "reject adjustment", err)
		return
	}
	httpx.JSON(w, http.StatusOK, adj)
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, shared.ErrIdempotencyConflict) {
		httpx.Problem(w, http.StatusConflict, "Duplicate Request", err.Error())
		return
	}
	if !errors.Is(err, httpx.ErrValidation) && !errors.Is(err, httpx.ErrNotFound) && !errors.Is(err, httpx.ErrInvalidState) {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func actorID(r *http.Request) int64 {
	return shared.ActorID(r)
}
