package products

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	mdshared "github.com/stockpile-ims/stockpile/internal/masterdata/shared"
	"github.com/stockpile-ims/stockpile/internal/platform/httpx"
	"github.com/stockpile-ims/stockpile/internal/rbac"
	"github.com/stockpile-ims/stockpile/internal/shared"
)

// Handler exposes product CRUD endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler constructs the product HTTP handler.
func NewHandler(logger *slog.Logger, service *Service, rbacMW rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbacMW}
}

// MountRoutes registers product routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermInventoryView, shared.PermProductManage))
		r.Get("/", h.list)
		r.Get("/{id}", h.get)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermProductManage))
		r.Post("/", h.create)
		r.Put("/{id}", h.update)
		r.Delete("/{id}", h.remove)
	})
}

type productForm struct {
	SKU         string          `json:"sku"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Unit        string          `json:"unit"`
	IsActive    *bool           `json:"is_active"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	filters := mdshared.ParseListFilters(r)
	items, total, err := h.service.List(r.Context(), filters)
	if err != nil {
		h.logger.Error("list products", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if items == nil {
		items = []Product{}
	}
	pg := shared.NewPagination(filters.Page, filters.Limit, total)
	httpx.List(w, items, httpx.ListMeta{Page: pg.Page, PerPage: pg.PerPage, Total: pg.Total, TotalPages: pg.TotalPages})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, mdshared.ErrValidation)
		return
	}
	product, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, product)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var form productForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.RespondError(w, mdshared.ErrValidation)
		return
	}
	product, err := h.service.Create(r.Context(), form.toProduct())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, product)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, mdshared.ErrValidation)
		return
	}
	var form productForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.RespondError(w, mdshared.ErrValidation)
		return
	}
	if err := h.service.Update(r.Context(), id, form.toProduct()); err != nil {
		httpx.RespondError(w, err)
		return
	}
	product, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, product)
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, mdshared.ErrValidation)
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (f productForm) toProduct() Product {
	active := true
	if f.IsActive != nil {
		active = *f.IsActive
	}
	return Product{
		SKU:         f.SKU,
		Name:        f.Name,
		Description: f.Description,
		Price:       f.Price,
		Unit:        f.Unit,
		IsActive:    active,
	}
}
