package companies

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	mdshared "github.com/stockpile-ims/stockpile/internal/masterdata/shared"
	"github.com/stockpile-ims/stockpile/internal/platform/httpx"
	"github.com/stockpile-ims/stockpile/internal/rbac"
	"github.com/stockpile-ims/stockpile/internal/shared"
)

// Handler exposes the company profile endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler constructs the company HTTP handler.
func NewHandler(logger *slog.Logger, service *Service, rbacMW rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbacMW}
}

// MountRoutes registers company routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermInventoryView, shared.PermCompanyManage))
		r.Get("/", h.get)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermCompanyManage))
		r.Put("/", h.save)
	})
}

type companyForm struct {
	Name      string `json:"name" validate:"required"`
	Address   string `json:"address"`
	Phone     string `json:"phone"`
	Email     string `json:"email"`
	TaxNumber string `json:"tax_number"`
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	company, err := h.service.Get(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, company)
}

func (h *Handler) save(w http.ResponseWriter, r *http.Request) {
	var form companyForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.RespondError(w, mdshared.ErrValidation)
		return
	}
	company, err := h.service.Save(r.Context(), Company{
		Name:      form.Name,
		Address:   form.Address,
		Phone:     form.Phone,
		Email:     form.Email,
		TaxNumber: form.TaxNumber,
	})
	if err != nil {
		h.logger.Error("save company", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, company)
}
