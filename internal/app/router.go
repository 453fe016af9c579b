package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/stockpile-ims/stockpile/internal/audit"
	"github.com/stockpile-ims/stockpile/internal/auth"
	"github.com/stockpile-ims/stockpile/internal/inventory"
	"github.com/stockpile-ims/stockpile/internal/issues"
	"github.com/stockpile-ims/stockpile/internal/masterdata/companies"
	"github.com/stockpile-ims/stockpile/internal/masterdata/products"
	"github.com/stockpile-ims/stockpile/internal/masterdata/suppliers"
	"github.com/stockpile-ims/stockpile/internal/masterdata/warehouses"
	"github.com/stockpile-ims/stockpile/internal/observability"
	"github.com/stockpile-ims/stockpile/internal/procurement"
	"github.com/stockpile-ims/stockpile/internal/rbac"
	"github.com/stockpile-ims/stockpile/internal/reports"
	"github.com/stockpile-ims/stockpile/internal/shared"
	"github.com/stockpile-ims/stockpile/jobs"
)

// RouterParams collects handlers and shared infrastructure for the router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager
	Metrics        *observability.Metrics

	AuthHandler        *auth.Handler
	RoleHandler        *rbac.Handler
	ProductHandler     *products.Handler
	WarehouseHandler   *warehouses.Handler
	SupplierHandler    *suppliers.Handler
	CompanyHandler     *companies.Handler
	InventoryHandler   *inventory.Handler
	IssueHandler       *issues.Handler
	ProcurementHandler *procurement.Handler
	ReportsHandler     *reports.Handler
	AuditHandler       *audit.Handler
	JobHandler         *jobs.Handler
}

// NewRouter wires the HTTP routes.
func NewRouter(p RouterParams) chi.Router {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         p.Logger,
		Config:         p.Config,
		SessionManager: p.SessionManager,
		CSRFManager:    p.CSRFManager,
		Metrics:        p.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	if p.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", p.Metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		if p.AuthHandler != nil {
			p.AuthHandler.MountRoutes(r)
		}
		if p.RoleHandler != nil {
			r.Route("/roles", p.RoleHandler.MountRoutes)
		}
		if p.ProductHandler != nil {
			r.Route("/products", p.ProductHandler.MountRoutes)
		}
		if p.WarehouseHandler != nil {
			r.Route("/warehouses", p.WarehouseHandler.MountRoutes)
		}
		if p.SupplierHandler != nil {
			r.Route("/suppliers", p.SupplierHandler.MountRoutes)
		}
		if p.CompanyHandler != nil {
			r.Route("/company", p.CompanyHandler.MountRoutes)
		}
		r.Route("/inventory", func(r chi.Router) {
			if p.InventoryHandler != nil {
				p.InventoryHandler.MountRoutes(r)
			}
			if p.IssueHandler != nil {
				p.IssueHandler.MountRoutes(r)
			}
			if p.ProcurementHandler != nil {
				p.ProcurementHandler.MountRoutes(r)
			}
		})
		if p.ReportsHandler != nil {
			r.Route("/reports", func(r chi.Router) {
				p.ReportsHandler.MountRoutes(r)
				// The audit trail doubles as a report surface.
				if p.AuditHandler != nil {
					r.Route("/audit", p.AuditHandler.MountRoutes)
				}
			})
		}
		if p.AuditHandler != nil {
			r.Route("/audit", p.AuditHandler.MountRoutes)
		}
		if p.JobHandler != nil {
			r.Route("/jobs", p.JobHandler.MountRoutes)
		}
	})

	return r
}
