package audit

import (
	"encoding/csv"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/stockpile-ims/stockpile/internal/platform/httpx"
	"github.com/stockpile-ims/stockpile/internal/rbac"
	"github.com/stockpile-ims/stockpile/internal/shared"
)

// Handler exposes the audit trail.
type Handler struct {
	logger *slog.Logger
	repo   Repository
	rbac   rbac.Middleware
}

// NewHandler constructs the audit HTTP handler.
func NewHandler(logger *slog.Logger, repo Repository, rbacMW rbac.Middleware) *Handler {
	return &Handler{logger: logger, repo: repo, rbac: rbacMW}
}

// MountRoutes registers audit routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermAuditView))
		r.Get("/", h.list)
	})
}

func parseFilters(r *http.Request) Filters {
	q := r.URL.Query()
	filters := Filters{
		Entity:   q.Get("entity"),
		EntityID: q.Get("entity_id"),
		Action:   q.Get("action"),
		Page:     1,
		PerPage:  20,
	}
	if actor, err := strconv.ParseInt(q.Get("actor_id"), 10, 64); err == nil {
		filters.ActorID = actor
	}
	if t, err := time.Parse("2006-01-02", q.Get("from")); err == nil {
		filters.From = t
	}
	if t, err := time.Parse("2006-01-02", q.Get("to")); err == nil {
		filters.To = t.AddDate(0, 0, 1)
	}
	if page, err := strconv.Atoi(q.Get("page")); err == nil && page > 0 {
		filters.Page = page
	}
	if perPage, err := strconv.Atoi(q.Get("per_page")); err == nil && perPage > 0 {
		filters.PerPage = perPage
	}
	if filters.PerPage > 100 {
		filters.PerPage = 100
	}
	return filters
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	filters := parseFilters(r)
	if r.URL.Query().Get("format") == "csv" {
		// Export ignores pagination. The filters still apply.
		filters.Page = 1
		filters.PerPage = 0
	}

	items, total, err := h.repo.List(r.Context(), filters)
	if err != nil {
		h.logger.Error("list audit logs", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if items == nil {
		items = []Entry{}
	}

	if r.URL.Query().Get("format") == "csv" {
		h.writeCSV(w, items)
		return
	}

	pg := shared.NewPagination(filters.Page, filters.PerPage, total)
	httpx.List(w, items, httpx.ListMeta{Page: pg.Page, PerPage: pg.PerPage, Total: pg.Total, TotalPages: pg.TotalPages})
}

func (h *Handler) writeCSV(w http.ResponseWriter, items []Entry) {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="audit-trail.csv"`)

	writer := csv.NewWriter(w)
	defer writer.Flush()

	if err := writer.Write([]string{"ID", "Actor", "Action", "Entity", "Entity ID", "Old Data", "New Data", "Occurred At"}); err != nil {
		h.logger.Error("write audit csv", slog.Any("error", err))
		return
	}
	for _, e := range items {
		oldJSON, _ := json.Marshal(e.OldData)
		newJSON, _ := json.Marshal(e.NewData)
		if err := writer.Write([]string{
			strconv.FormatInt(e.ID, 10),
			strconv.FormatInt(e.ActorID, 10),
			e.Action,
			e.Entity,
			e.EntityID,
			string(oldJSON),
			string(newJSON),
			e.OccurredAt.Format(time.RFC3339),
		}); err != nil {
			h.logger.Error("write audit csv", slog.Any("error", err))
			return
		}
	}
}
