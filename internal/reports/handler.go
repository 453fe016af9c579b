package reports

import (
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

// Handler exposes report endpoints. Every report supports JSON,
// ?format=csv and a /pdf variant.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	renderer *Renderer
	rbac     rbac.Middleware
}

// NewHandler constructs the reports HTTP handler.
func NewHandler(logger *slog.Logger, service *Service, renderer *Renderer, rbacMW rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, renderer: renderer, rbac: rbacMW}
}

// MountRoutes registers report routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermReportsView))
		r.Get("/dashboard", h.dashboard)
		r.Get("/stock", h.stock)
		r.Get("/stock/pdf", h.stockPDF)
		r.Get("/movement", h.movement)
		r.Get("/movement/pdf", h.movementPDF)
		r.Get("/valuation", h.valuation)
		r.Get("/valuation/pdf", h.valuationPDF)
		r.Get("/low-stock", h.lowStock)
		r.Get("/low-stock/pdf", h.lowStockPDF)
		r.Get("/monthly-stock", h.monthlyStock)
		r.Get("/monthly-stock/pdf", h.monthlyStockPDF)
		r.Get("/aging", h.aging)
		r.Get("/aging/pdf", h.agingPDF)
		r.Get("/orders", h.orders)
		r.Get("/orders/pdf", h.ordersPDF)
	})
}

func (h *Handler) dashboard(w http.ResponseWriter, r *http.Request) {
	data, err := h.service.Dashboard(r.Context())
	if err != nil {
		h.logger.Error("dashboard", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, data)
}

func wantsCSV(r *http.Request) bool {
	return r.URL.Query().Get("format") == "csv"
}

func serveCSV(w http.ResponseWriter, filename string, write func(w http.ResponseWriter) error, logger *slog.Logger) {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	if err := write(w); err != nil {
		logger.Error("write csv", slog.Any("error", err))
	}
}

func (h *Handler) servePDFTable(w http.ResponseWriter, r *http.Request, filename string, table Table) {
	pdf, err := h.renderer.Render(r.Context(), table)
	if err != nil {
		h.logger.Error("render report pdf", slog.Any("error", err))
		httpx.Problem(w, http.StatusBadGateway, "Render Failed", "document service unavailable")
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}

func (h *Handler) stockRows(r *http.Request) ([]StockReportRow, error) {
	warehouseID, _ := uuid.Parse(r.URL.Query().Get("warehouse_id"))
	return h.service.StockReport(r.Context(), warehouseID)
}

func (h *Handler) stock(w http.ResponseWriter, r *http.Request) {
	rows, err := h.stockRows(r)
	if err != nil {
		h.logger.Error("stock report", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if wantsCSV(r) {
		serveCSV(w, "stock-report.csv", func(w http.ResponseWriter) error {
			return WriteStockCSV(w, rows)
		}, h.logger)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"rows": rows})
}

func (h *Handler) stockPDF(w http.ResponseWriter, r *http.Request) {
	rows, err := h.stockRows(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	table := Table{
		Title:   "Stock Report",
		Headers: []string{"SKU", "Product", "Warehouse", "Quantity", "Unit Price", "Value"},
	}
	for _, row := range rows {
		table.Rows = append(table.Rows, []string{
			row.ProductSKU, row.ProductName, row.WarehouseName,
			formatCount(row.Quantity), row.UnitPrice.StringFixed(2), row.Value.StringFixed(2),
		})
	}
	h.servePDFTable(w, r, "stock-report.pdf", table)
}

func (h *Handler) movementRange(r *http.Request) (time.Time, time.Time) {
	q := r.URL.Query()
	to := time.Now().UTC().Truncate(24 * time.Hour)
	from := to.AddDate(0, 0, -30)
	if t, err := time.Parse("2006-01-02", q.Get("from")); err == nil {
		from = t
	}
	if t, err := time.Parse("2006-01-02", q.Get("to")); err == nil {
		to = t
	}
	return from, to
}

func (h *Handler) movement(w http.ResponseWriter, r *http.Request) {
	from, to := h.movementRange(r)
	rows, err := h.service.MovementReport(r.Context(), from, to)
	if err != nil {
		h.logger.Error("movement report", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if wantsCSV(r) {
		serveCSV(w, "movement-report.csv", func(w http.ResponseWriter) error {
			return WriteMovementCSV(w, rows)
		}, h.logger)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"rows": rows, "from": from, "to": to})
}

func (h *Handler) movementPDF(w http.ResponseWriter, r *http.Request) {
	from, to := h.movementRange(r)
	rows, err := h.service.MovementReport(r.Context(), from, to)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	table := Table{
		Title:    "Stock Movement Report",
		Subtitle: from.Format("January 2, 2006") + " to " + to.Format("January 2, 2006"),
		Headers:  []string{"Date", "Type", "Entries", "Quantity"},
	}
	for _, row := range rows {
		table.Rows = append(table.Rows, []string{
			row.Date.Format("2006-01-02"), row.Type,
			formatCount(row.Entries), formatCount(row.Quantity),
		})
	}
	h.servePDFTable(w, r, "movement-report.pdf", table)
}

func (h *Handler) valuation(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.Valuation(r.Context())
	if err != nil {
		h.logger.Error("valuation report", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if wantsCSV(r) {
		serveCSV(w, "valuation-report.csv", func(w http.ResponseWriter) error {
			return WriteValuationCSV(w, report)
		}, h.logger)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) valuationPDF(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.Valuation(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	table := Table{
		Title:    "Inventory Valuation",
		Subtitle: "Grand total: " + report.Total.StringFixed(2),
		Headers:  []string{"SKU", "Product", "Quantity", "Unit Price", "Value"},
	}
	for _, row := range report.Rows {
		table.Rows = append(table.Rows, []string{
			row.ProductSKU, row.ProductName,
			formatCount(row.Quantity), row.UnitPrice.StringFixed(2), row.Value.StringFixed(2),
		})
	}
	h.servePDFTable(w, r, "valuation-report.pdf", table)
}

func (h *Handler) lowStockRows(r *http.Request) ([]LowStockRow, error) {
	threshold, _ := strconv.ParseInt(r.URL.Query().Get("threshold"), 10, 64)
	return h.service.LowStock(r.Context(), threshold)
}

func (h *Handler) lowStock(w http.ResponseWriter, r *http.Request) {
	rows, err := h.lowStockRows(r)
	if err != nil {
		h.logger.Error("low stock report", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if wantsCSV(r) {
		serveCSV(w, "low-stock-report.csv", func(w http.ResponseWriter) error {
			return WriteLowStockCSV(w, rows)
		}, h.logger)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"rows": rows})
}

func (h *Handler) lowStockPDF(w http.ResponseWriter, r *http.Request) {
	rows, err := h.lowStockRows(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	table := Table{
		Title:   "Low Stock Report",
		Headers: []string{"SKU", "Product", "Warehouse", "Quantity", "Threshold"},
	}
	for _, row := range rows {
		table.Rows = append(table.Rows, []string{
			row.ProductSKU, row.ProductName, row.WarehouseName,
			formatCount(row.Quantity), formatCount(row.Threshold),
		})
	}
	h.servePDFTable(w, r, "low-stock-report.pdf", table)
}

func (h *Handler) monthlyPeriod(r *http.Request) (int, time.Month) {
	now := time.Now().UTC()
	year, month := now.Year(), now.Month()
	if t, err := time.Parse("2006-01", r.URL.Query().Get("month")); err == nil {
		year, month = t.Year(), t.Month()
	}
	return year, month
}

func (h *Handler) monthlyStock(w http.ResponseWriter, r *http.Request) {
	year, month := h.monthlyPeriod(r)
	rows, err := h.service.MonthlyStock(r.Context(), year, month)
	if err != nil {
		h.logger.Error("monthly stock report", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if wantsCSV(r) {
		serveCSV(w, "monthly-stock-report.csv", func(w http.ResponseWriter) error {
			return WriteMonthlyStockCSV(w, rows)
		}, h.logger)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"rows": rows, "period": time.Date(year, month, 1, 0, 0, 0, 0, time.UTC).Format("2006-01")})
}

func (h *Handler) monthlyStockPDF(w http.ResponseWriter, r *http.Request) {
	year, month := h.monthlyPeriod(r)
	rows, err := h.service.MonthlyStock(r.Context(), year, month)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	table := Table{
		Title:    "Monthly Stock Report",
		Subtitle: time.Date(year, month, 1, 0, 0, 0, 0, time.UTC).Format("January 2006"),
		Headers:  []string{"SKU", "Product", "Opening", "In", "Out", "Closing"},
	}
	for _, row := range rows {
		table.Rows = append(table.Rows, []string{
			row.ProductSKU, row.ProductName,
			formatCount(row.Opening), formatCount(row.In),
			formatCount(row.Out), formatCount(row.Closing),
		})
	}
	h.servePDFTable(w, r, "monthly-stock-report.pdf", table)
}

func (h *Handler) aging(w http.ResponseWriter, r *http.Request) {
	rows, err := h.service.Aging(r.Context())
	if err != nil {
		h.logger.Error("aging report", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if wantsCSV(r) {
		serveCSV(w, "aging-report.csv", func(w http.ResponseWriter) error {
			return WriteAgingCSV(w, rows)
		}, h.logger)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"rows": rows})
}

func (h *Handler) agingPDF(w http.ResponseWriter, r *http.Request) {
	rows, err := h.service.Aging(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	table := Table{
		Title:   "Stock Aging Report",
		Headers: []string{"SKU", "Product", "Warehouse", "Quantity", "Bucket"},
	}
	for _, row := range rows {
		table.Rows = append(table.Rows, []string{
			row.ProductSKU, row.ProductName, row.WarehouseName,
			formatCount(row.Quantity), row.Bucket,
		})
	}
	h.servePDFTable(w, r, "aging-report.pdf", table)
}

func (h *Handler) orders(w http.ResponseWriter, r *http.Request) {
	rows, err := h.service.OrdersReport(r.Context())
	if err != nil {
		h.logger.Error("orders report", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if wantsCSV(r) {
		serveCSV(w, "orders-report.csv", func(w http.ResponseWriter) error {
			return WriteOrdersCSV(w, rows)
		}, h.logger)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"rows": rows})
}

func (h *Handler) ordersPDF(w http.ResponseWriter, r *http.Request) {
	rows, err := h.service.OrdersReport(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	table := Table{
		Title:   "Procurement Documents Report",
		Headers: []string{"Document", "Status", "Count", "Total"},
	}
	for _, row := range rows {
		table.Rows = append(table.Rows, []string{
			row.Document, row.Status, formatCount(row.Count), row.Total.StringFixed(2),
		})
	}
	h.servePDFTable(w, r, "orders-report.pdf", table)
}
