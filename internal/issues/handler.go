package issues

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/stockpile-ims/stockpile/internal/platform/httpx"
	"github.com/stockpile-ims/stockpile/internal/rbac"
	"github.com/stockpile-ims/stockpile/internal/shared"
)

// IdempotencyHeader carries the client supplied posting key.
const IdempotencyHeader = "Idempotency-Key"

// Handler exposes issue slip endpoints. Routes mount under the inventory
// prefix.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	renderer *Renderer
	rbac     rbac.Middleware
}

// NewHandler constructs the issue HTTP handler.
func NewHandler(logger *slog.Logger, service *Service, renderer *Renderer, rbacMW rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, renderer: renderer, rbac: rbacMW}
}

// MountRoutes registers issue slip routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/issue-slips", func(r chi.Router) {
		r.With(h.rbac.RequireAny(shared.PermIssueView, shared.PermIssueCreate, shared.PermIssueApprove)).Get("/", h.list)
		r.With(h.rbac.RequireAny(shared.PermIssueView, shared.PermIssueCreate, shared.PermIssueApprove)).Get("/{id}", h.get)
		r.With(h.rbac.RequireAny(shared.PermIssueView, shared.PermIssueCreate, shared.PermIssueApprove)).Get("/{id}/pdf", h.slipPDF)
		r.With(h.rbac.RequireAny(shared.PermIssueCreate)).Post("/", h.create)
		r.With(h.rbac.RequireAny(shared.PermIssueApprove)).Post("/{id}/approve", h.approve)
		r.With(h.rbac.RequireAny(shared.PermIssueApprove)).Post("/{id}/reject", h.reject)
	})
	r.With(h.rbac.RequireAny(shared.PermIssueCreate, shared.PermIssueApprove)).Post("/issue/{id}/execute", h.execute)
	r.With(h.rbac.RequireAny(shared.PermIssueView, shared.PermIssueCreate, shared.PermIssueApprove)).Get("/issues/{id}/pass/pdf", h.passPDF)
}

type createForm struct {
	Type        string    `json:"type"`
	WarehouseID uuid.UUID `json:"warehouse_id"`
	Purpose     string    `json:"purpose"`
	Lines       []struct {
		ProductID uuid.UUID `json:"product_id"`
		Quantity  int64     `json:"quantity"`
	} `json:"lines"`
}

type rejectForm struct {
	Reason string `json:"reason"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := Filters{Page: 1, Limit: 20, Status: q.Get("status"), Type: q.Get("type")}
	if page, err := strconv.Atoi(q.Get("page")); err == nil && page > 0 {
		f.Page = page
	}
	if limit, err := strconv.Atoi(q.Get("per_page")); err == nil && limit > 0 && limit <= 100 {
		f.Limit = limit
	}

	items, total, err := h.service.List(r.Context(), f)
	if err != nil {
		h.logger.Error("list issue slips", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if items == nil {
		items = []SlipRow{}
	}
	pg := shared.NewPagination(f.Page, f.Limit, total)
	httpx.List(w, items, httpx.ListMeta{Page: pg.Page, PerPage: pg.PerPage, Total: pg.Total, TotalPages: pg.TotalPages})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	slip, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, slip)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var form createForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	lines := make([]Line, 0, len(form.Lines))
	for _, l := range form.Lines {
		lines = append(lines, Line{ProductID: l.ProductID, Quantity: l.Quantity})
	}
	slip, err := h.service.Create(r.Context(), CreateInput{
		Type:        form.Type,
		WarehouseID: form.WarehouseID,
		Purpose:     form.Purpose,
		Lines:       lines,
		ActorID:     shared.ActorID(r),
	})
	if err != nil {
		h.respondError(w, "create issue slip", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, slip)
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	slip, err := h.service.Approve(r.Context(), id, shared.ActorID(r))
	if err != nil {
		h.respondError(w, "approve issue slip", err)
		return
	}
	httpx.JSON(w, http.StatusOK, slip)
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
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
	slip, err := h.service.Reject(r.Context(), id, shared.ActorID(r), form.Reason)
	if err != nil {
		h.respondError(w, "reject issue slip", err)
		return
	}
	httpx.JSON(w, http.StatusOK, slip)
}

func (h *Handler) execute(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	slip, pass, err := h.service.Execute(r.Context(), id, shared.ActorID(r), r.Header.Get(IdempotencyHeader))
	if err != nil {
		h.respondError(w, "execute issue slip", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"slip": slip, "pass": pass})
}

func (h *Handler) slipPDF(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	slip, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	warehouseName, err := h.service.WarehouseName(r.Context(), slip.WarehouseID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	pdf, err := h.renderer.RenderSlip(r.Context(), slip, warehouseName)
	if err != nil {
		h.logger.Error("render slip pdf", slog.Any("error", err))
		httpx.Problem(w, http.StatusBadGateway, "Render Failed", "document service unavailable")
		return
	}
	servePDF(w, "issue-slip-"+slip.Number+".pdf", pdf)
}

func (h *Handler) passPDF(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	slip, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	pass, err := h.service.Pass(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	warehouseName, err := h.service.WarehouseName(r.Context(), slip.WarehouseID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	pdf, err := h.renderer.RenderPass(r.Context(), slip, pass, warehouseName)
	if err != nil {
		h.logger.Error("render pass pdf", slog.Any("error", err))
		httpx.Problem(w, http.StatusBadGateway, "Render Failed", "document service unavailable")
		return
	}
	servePDF(w, "issue-pass-"+pass.Number+".pdf", pdf)
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

func servePDF(w http.ResponseWriter, filename string, data []byte) {
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
