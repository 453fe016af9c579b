package procurement

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/stockpile-ims/stockpile/internal/platform/httpx"
	"github.com/stockpile-ims/stockpile/internal/rbac"
	"github.com/stockpile-ims/stockpile/internal/shared"
)

// IdempotencyHeader carries the client supplied posting key.
const IdempotencyHeader = "Idempotency-Key"

// Handler exposes requisition, order and receipt endpoints. Routes mount
// under the inventory prefix.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	renderer *Renderer
	rbac     rbac.Middleware
}

// NewHandler constructs the procurement HTTP handler.
func NewHandler(logger *slog.Logger, service *Service, renderer *Renderer, rbacMW rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, renderer: renderer, rbac: rbacMW}
}

// MountRoutes registers procurement routes.
func (h *Handler) MountRoutes(r chi.Router) {
	read := h.rbac.RequireAny(shared.PermOrdersView, shared.PermPOCreate)
	write := h.rbac.RequireAny(shared.PermPOCreate)

	r.Route("/pr", func(r chi.Router) {
		r.With(read).Get("/", h.listRequisitions)
		r.With(read).Get("/{id}", h.getRequisition)
		r.With(write).Post("/", h.createRequisition)
		r.With(write).Post("/{id}/approve", h.approveRequisition)
		r.With(write).Post("/{id}/reject", h.rejectRequisition)
	})

	r.Route("/po", func(r chi.Router) {
		r.With(read).Get("/", h.listOrders)
		r.With(read).Get("/{id}", h.getOrder)
		r.With(read).Get("/{id}/pdf", h.orderPDF)
		r.With(write).Post("/from-pr/{pr_id}", h.createOrder)
		r.With(write).Post("/{id}/approve", h.approveOrder)
		r.With(write).Post("/{id}/reject", h.rejectOrder)
	})

	r.Route("/grn", func(r chi.Router) {
		r.With(read).Get("/", h.listReceipts)
		r.With(read).Get("/{id}", h.getReceipt)
		r.With(read).Get("/{id}/pdf", h.receiptPDF)
		r.With(write).Post("/", h.createReceipt)
		r.With(write).Post("/{id}/approve", h.approveReceipt)
		r.With(write).Post("/{id}/reject", h.rejectReceipt)
	})
}

func parseFilters(r *http.Request) Filters {
	q := r.URL.Query()
	f := Filters{Page: 1, Limit: 20, Status: q.Get("status")}
	if page, err := strconv.Atoi(q.Get("page")); err == nil && page > 0 {
		f.Page = page
	}
	if limit, err := strconv.Atoi(q.Get("per_page")); err == nil && limit > 0 && limit <= 100 {
		f.Limit = limit
	}
	return f
}

type requisitionForm struct {
	WarehouseID uuid.UUID `json:"warehouse_id"`
	Notes       string    `json:"notes"`
	Lines       []struct {
		ProductID uuid.UUID `json:"product_id"`
		Quantity  int64     `json:"quantity"`
	} `json:"lines"`
}

type orderForm struct {
	SupplierID uuid.UUID `json:"supplier_id"`
	Lines      []struct {
		ProductID uuid.UUID       `json:"product_id"`
		Quantity  int64           `json:"quantity"`
		Rate      decimal.Decimal `json:"rate"`
	} `json:"lines"`
}

type receiptForm struct {
	OrderID uuid.UUID `json:"order_id"`
	Notes   string    `json:"notes"`
	Lines   []struct {
		ProductID uuid.UUID `json:"product_id"`
		Quantity  int64     `json:"quantity"`
	} `json:"lines"`
}

type rejectForm struct {
	Reason string `json:"reason"`
}

func (h *Handler) listRequisitions(w http.ResponseWriter, r *http.Request) {
	f := parseFilters(r)
	items, total, err := h.service.ListRequisitions(r.Context(), f)
	if err != nil {
		h.logger.Error("list requisitions", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if items == nil {
		items = []RequisitionRow{}
	}
	respondList(w, items, f, total)
}

func (h *Handler) getRequisition(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	req, err := h.service.GetRequisition(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, req)
}

func (h *Handler) createRequisition(w http.ResponseWriter, r *http.Request) {
	var form requisitionForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	lines := make([]ReqLine, 0, len(form.Lines))
	for _, l := range form.Lines {
		lines = append(lines, ReqLine{ProductID: l.ProductID, Quantity: l.Quantity})
	}
	req, err := h.service.CreateRequisition(r.Context(), CreateRequisitionInput{
		WarehouseID: form.WarehouseID,
		Notes:       form.Notes,
		Lines:       lines,
		ActorID:     shared.ActorID(r),
	})
	if err != nil {
		h.respondError(w, "create requisition", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, req)
}

func (h *Handler) approveRequisition(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	req, err := h.service.ApproveRequisition(r.Context(), id, shared.ActorID(r))
	if err != nil {
		h.respondError(w, "approve requisition", err)
		return
	}
	httpx.JSON(w, http.StatusOK, req)
}

func (h *Handler) rejectRequisition(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var form rejectForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	req, err := h.service.RejectRequisition(r.Context(), id, shared.ActorID(r), form.Reason)
	if err != nil {
		h.respondError(w, "reject requisition", err)
		return
	}
	httpx.JSON(w, http.StatusOK, req)
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	f := parseFilters(r)
	items, total, err := h.service.ListOrders(r.Context(), f)
	if err != nil {
		h.logger.Error("list orders", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if items == nil {
		items = []OrderRow{}
	}
	respondList(w, items, f, total)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	order, err := h.service.GetOrder(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	prID, err := uuid.Parse(chi.URLParam(r, "pr_id"))
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	var form orderForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	lines := make([]OrderLineInput, 0, len(form.Lines))
	for _, l := range form.Lines {
		lines = append(lines, OrderLineInput{ProductID: l.ProductID, Quantity: l.Quantity, Rate: l.Rate})
	}
	order, err := h.service.CreateOrderFromRequisition(r.Context(), CreateOrderInput{
		RequisitionID: prID,
		SupplierID:    form.SupplierID,
		Lines:         lines,
		ActorID:       shared.ActorID(r),
	})
	if err != nil {
		h.respondError(w, "create order", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, order)
}

func (h *Handler) approveOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	order, err := h.service.ApproveOrder(r.Context(), id, shared.ActorID(r))
	if err != nil {
		h.respondError(w, "approve order", err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) rejectOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var form rejectForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	order, err := h.service.RejectOrder(r.Context(), id, shared.ActorID(r), form.Reason)
	if err != nil {
		h.respondError(w, "reject order", err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) orderPDF(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	order, err := h.service.GetOrder(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	supplierName, err := h.service.SupplierName(r.Context(), order.SupplierID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	warehouseName, err := h.service.WarehouseName(r.Context(), order.WarehouseID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	pdf, err := h.renderer.RenderOrder(r.Context(), order, supplierName, warehouseName)
	if err != nil {
		h.logger.Error("render order pdf", slog.Any("error", err))
		httpx.Problem(w, http.StatusBadGateway, "Render Failed", "document service unavailable")
		return
	}
	servePDF(w, "purchase-order-"+order.Number+".pdf", pdf)
}

func (h *Handler) listReceipts(w http.ResponseWriter, r *http.Request) {
	f := parseFilters(r)
	items, total, err := h.service.ListReceipts(r.Context(), f)
	if err != nil {
		h.logger.Error("list receipts", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if items == nil {
		items = []ReceiptRow{}
	}
	respondList(w, items, f, total)
}

func (h *Handler) getReceipt(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	receipt, err := h.service.GetReceipt(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, receipt)
}

func (h *Handler) createReceipt(w http.ResponseWriter, r *http.Request) {
	var form receiptForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	lines := make([]ReceiptLine, 0, len(form.Lines))
	for _, l := range form.Lines {
		lines = append(lines, ReceiptLine{ProductID: l.ProductID, Quantity: l.Quantity})
	}
	receipt, err := h.service.CreateReceipt(r.Context(), CreateReceiptInput{
		OrderID: form.OrderID,
		Notes:   form.Notes,
		Lines:   lines,
		ActorID: shared.ActorID(r),
	})
	if err != nil {
		h.respondError(w, "create receipt", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, receipt)
}

func (h *Handler) approveReceipt(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	receipt, err := h.service.ApproveReceipt(r.Context(), id, shared.ActorID(r), r.Header.Get(IdempotencyHeader))
	if err != nil {
		h.respondError(w, "approve receipt", err)
		return
	}
	httpx.JSON(w, http.StatusOK, receipt)
}

func (h *Handler) rejectReceipt(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var form rejectForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	receipt, err := h.service.RejectReceipt(r.Context(), id, shared.ActorID(r), form.Reason)
	if err != nil {
		h.respondError(w, "reject receipt", err)
		return
	}
	httpx.JSON(w, http.StatusOK, receipt)
}

func (h *Handler) receiptPDF(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	receipt, err := h.service.GetReceipt(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	order, err := h.service.GetOrder(r.Context(), receipt.OrderID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	warehouseName, err := h.service.WarehouseName(r.Context(), receipt.WarehouseID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	pdf, err := h.renderer.RenderReceipt(r.Context(), receipt, order.Number, warehouseName)
	if err != nil {
		h.logger.Error("render receipt pdf", slog.Any("error", err))
		httpx.Problem(w, http.StatusBadGateway, "Render Failed", "document service unavailable")
		return
	}
	servePDF(w, "goods-receipt-"+receipt.Number+".pdf", pdf)
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, shared.ErrIdempotencyConflict) {
		httpx.Problem(w, http.StatusConflict, "Duplicate Request", err.Error())
		return
	}
	if !errors.Is(err, httpx.ErrValidation) && !errors.Is(err, httpx.ErrNotFound) &&
		!errors.Is(err, httpx.ErrInvalidState) && !errors.Is(err, httpx.ErrDuplicate) {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return uuid.Nil, false
	}
	return id, true
}

func respondList(w http.ResponseWriter, items any, f Filters, total int) {
	pg := shared.NewPagination(f.Page, f.Limit, total)
	httpx.List(w, items, httpx.ListMeta{Page: pg.Page, PerPage: pg.PerPage, Total: pg.Total, TotalPages: pg.TotalPages})
}

func servePDF(w http.ResponseWriter, filename string, data []byte) {
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
