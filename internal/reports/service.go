package reports

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// Service computes inventory reports. Heavy aggregates go through the
// versioned Redis cache.
type Service struct {
	pool              *pgxpool.Pool
	cache             *Cache
	lowStockThreshold int64
	logger            *slog.Logger
}

// NewService constructs the report service.
func NewService(pool *pgxpool.Pool, cache *Cache, lowStockThreshold int64, logger *slog.Logger) *Service {
	if lowStockThreshold <= 0 {
		lowStockThreshold = 10
	}
	return &Service{pool: pool, cache: cache, lowStockThreshold: lowStockThreshold, logger: logger}
}

// DefaultLowStockThreshold exposes the configured threshold.
func (s *Service) DefaultLowStockThreshold() int64 {
	return s.lowStockThreshold
}

// Invalidate bumps the report cache version.
func (s *Service) Invalidate(ctx context.Context) error {
	return s.cache.Bump(ctx)
}

func (s *Service) StockReport(ctx context.Context, warehouseID uuid.UUID) ([]StockReportRow, error) {
	var rows []StockReportRow
	key, err := s.cache.BuildKey(ctx, "reports", "stock", warehouseID.String())
	if err != nil {
		return nil, err
	}
	err = s.cache.FetchJSON(ctx, key, &rows, func(ctx context.Context) (interface{}, error) {
		return s.loadStockReport(ctx, warehouseID)
	})
	return rows, err
}

func (s *Service) loadStockReport(ctx context.Context, warehouseID uuid.UUID) ([]StockReportRow, error) {
	query := `SELECT p.sku, p.name, w.name, s.quantity, p.price
FROM stocks s
JOIN products p ON p.id = s.product_id
JOIN warehouses w ON w.id = s.warehouse_id
WHERE p.deleted_at IS NULL`
	args := []any{}
	if warehouseID != uuid.Nil {
		query += ` AND s.warehouse_id = $1`
		args = append(args, warehouseID)
	}
	query += ` ORDER BY p.sku ASC, w.name ASC`

	res, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer res.Close()

	rows := []StockReportRow{}
	for res.Next() {
		var row StockReportRow
		if err := res.Scan(&row.ProductSKU, &row.ProductName, &row.WarehouseName, &row.Quantity, &row.UnitPrice); err != nil {
			return nil, err
		}
		row.Value = row.UnitPrice.Mul(decimal.NewFromInt(row.Quantity))
		rows = append(rows, row)
	}
	return rows, res.Err()
}

func (s *Service) MovementReport(ctx context.Context, from, to time.Time) ([]MovementReportRow, error) {
	if to.Before(from) {
		from, to = to, from
	}
	var rows []MovementReportRow
	key, err := s.cache.BuildKey(ctx, "reports", "movement", from.Format("2006-01-02"), to.Format("2006-01-02"))
	if err != nil {
		return nil, err
	}
	err = s.cache.FetchJSON(ctx, key, &rows, func(ctx context.Context) (interface{}, error) {
		return s.loadMovementReport(ctx, from, to)
	})
	return rows, err
}

func (s *Service) loadMovementReport(ctx context.Context, from, to time.Time) ([]MovementReportRow, error) {
	res, err := s.pool.Query(ctx, `SELECT date_trunc('day', created_at)::date, type, COUNT(*), SUM(ABS(change))
FROM stock_ledger
WHERE created_at >= $1 AND created_at < $2
GROUP BY 1, 2
ORDER BY 1 ASC, 2 ASC`, from, to.AddDate(0, 0, 1))
	if err != nil {
		return nil, err
	}
	defer res.Close()

	rows := []MovementReportRow{}
	for res.Next() {
		var row MovementReportRow
		if err := res.Scan(&row.Date, &row.Type, &row.Entries, &row.Quantity); err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, res.Err()
}

func (s *Service) Valuation(ctx context.Context) (ValuationReport, error) {
	var report ValuationReport
	key, err := s.cache.BuildKey(ctx, "reports", "valuation")
	if err != nil {
		return ValuationReport{}, err
	}
	err = s.cache.FetchJSON(ctx, key, &report, func(ctx context.Context) (interface{}, error) {
		return s.loadValuation(ctx)
	})
	return report, err
}

func (s *Service) loadValuation(ctx context.Context) (ValuationReport, error) {
	res, err := s.pool.Query(ctx, `SELECT p.sku, p.name, COALESCE(SUM(s.quantity), 0), p.price
FROM products p
LEFT JOIN stocks s ON s.product_id = p.id
WHERE p.deleted_at IS NULL
GROUP BY p.id, p.sku, p.name, p.price
ORDER BY p.sku ASC`)
	if err != nil {
		return ValuationReport{}, err
	}
	defer res.Close()

	report := ValuationReport{Rows: []ValuationReportRow{}, Total: decimal.Zero}
	for res.Next() {
		var row ValuationReportRow
		if err := res.Scan(&row.ProductSKU, &row.ProductName, &row.Quantity, &row.UnitPrice); err != nil {
			return ValuationReport{}, err
		}
		row.Value = row.UnitPrice.Mul(decimal.NewFromInt(row.Quantity))
		report.Total = report.Total.Add(row.Value)
		report.Rows = append(report.Rows, row)
	}
	return report, res.Err()
}

func (s *Service) LowStock(ctx context.Context, threshold int64) ([]LowStockRow, error) {
	if threshold <= 0 {
		threshold = s.lowStockThreshold
	}
	var rows []LowStockRow
	key, err := s.cache.BuildKey(ctx, "reports", "low_stock", strconv.FormatInt(threshold, 10))
	if err != nil {
		return nil, err
	}
	err = s.cache.FetchJSON(ctx, key, &rows, func(ctx context.Context) (interface{}, error) {
		return s.loadLowStock(ctx, threshold)
	})
	return rows, err
}

func (s *Service) loadLowStock(ctx context.Context, threshold int64) ([]LowStockRow, error) {
	res, err := s.pool.Query(ctx, `SELECT s.product_id, p.sku, p.name, s.warehouse_id, w.name, s.quantity
FROM stocks s
JOIN products p ON p.id = s.product_id
JOIN warehouses w ON w.id = s.warehouse_id
WHERE p.deleted_at IS NULL AND p.is_active AND s.quantity <= $1
ORDER BY s.quantity ASC, p.sku ASC`, threshold)
	if err != nil {
		return nil, err
	}
	defer res.Close()

	rows := []LowStockRow{}
	for res.Next() {
		var row LowStockRow
		if err := res.Scan(&row.ProductID, &row.ProductSKU, &row.ProductName, &row.WarehouseID, &row.WarehouseName, &row.Quantity); err != nil {
			return nil, err
		}
		row.Threshold = threshold
		rows = append(rows, row)
	}
	return rows, res.Err()
}

func (s *Service) MonthlyStock(ctx context.Context, year int, month time.Month) ([]MonthlyStockRow, error) {
	var rows []MonthlyStockRow
	key, err := s.cache.BuildKey(ctx, "reports", "monthly_stock", fmt.Sprintf("%04d-%02d", year, month))
	if err != nil {
		return nil, err
	}
	err = s.cache.FetchJSON(ctx, key, &rows, func(ctx context.Context) (interface{}, error) {
		return s.loadMonthlyStock(ctx, year, month)
	})
	return rows, err
}

func (s *Service) loadMonthlyStock(ctx context.Context, year int, month time.Month) ([]MonthlyStockRow, error) {
	start := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)

	res, err := s.pool.Query(ctx, `SELECT p.sku, p.name,
COALESCE(SUM(l.change) FILTER (WHERE l.created_at < $1), 0),
COALESCE(SUM(l.change) FILTER (WHERE l.created_at >= $1 AND l.created_at < $2 AND l.change > 0), 0),
COALESCE(SUM(-l.change) FILTER (WHERE l.created_at >= $1 AND l.created_at < $2 AND l.change < 0), 0)
FROM products p
JOIN stock_ledger l ON l.product_id = p.id
WHERE p.deleted_at IS NULL
GROUP BY p.id, p.sku, p.name
ORDER BY p.sku ASC`, start, end)
	if err != nil {
		return nil, err
	}
	defer res.Close()

	rows := []MonthlyStockRow{}
	for res.Next() {
		var row MonthlyStockRow
		if err := res.Scan(&row.ProductSKU, &row.ProductName, &row.Opening, &row.In, &row.Out); err != nil {
			return nil, err
		}
		row.Closing = row.Opening + row.In - row.Out
		rows = append(rows, row)
	}
	return rows, res.Err()
}

func (s *Service) Aging(ctx context.Context) ([]AgingRow, error) {
	var rows []AgingRow
	key, err := s.cache.BuildKey(ctx, "reports", "aging")
	if err != nil {
		return nil, err
	}
	err = s.cache.FetchJSON(ctx, key, &rows, func(ctx context.Context) (interface{}, error) {
		return s.loadAging(ctx)
	})
	return rows, err
}

func (s *Service) loadAging(ctx context.Context) ([]AgingRow, error) {
	res, err := s.pool.Query(ctx, `SELECT p.sku, p.name, w.name, s.quantity,
(SELECT MAX(l.created_at) FROM stock_ledger l WHERE l.stock_id = s.id)
FROM stocks s
JOIN products p ON p.id = s.product_id
JOIN warehouses w ON w.id = s.warehouse_id
WHERE p.deleted_at IS NULL AND s.quantity > 0
ORDER BY p.sku ASC, w.name ASC`)
	if err != nil {
		return nil, err
	}
	defer res.Close()

	now := time.Now().UTC()
	rows := []AgingRow{}
	for res.Next() {
		var row AgingRow
		if err := res.Scan(&row.ProductSKU, &row.ProductName, &row.WarehouseName, &row.Quantity, &row.LastMovement); err != nil {
			return nil, err
		}
		row.Bucket = agingBucket(now, row.LastMovement)
		rows = append(rows, row)
	}
	return rows, res.Err()
}

// Dashboard aggregates the overview widgets. The sections load concurrently
// and each one goes through its own cache key.
type Dashboard struct {
	Valuation ValuationReport     `json:"valuation"`
	LowStock  []LowStockRow       `json:"low_stock"`
	Orders    []OrdersReportRow   `json:"orders"`
	Movement  []MovementReportRow `json:"movement"`
}

func (s *Service) Dashboard(ctx context.Context) (Dashboard, error) {
	var d Dashboard
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		report, err := s.Valuation(ctx)
		if err != nil {
			return err
		}
		d.Valuation = report
		return nil
	})
	g.Go(func() error {
		rows, err := s.LowStock(ctx, 0)
		if err != nil {
			return err
		}
		d.LowStock = rows
		return nil
	})
	g.Go(func() error {
		rows, err := s.OrdersReport(ctx)
		if err != nil {
			return err
		}
		d.Orders = rows
		return nil
	})
	g.Go(func() error {
		to := time.Now().UTC().Truncate(24 * time.Hour)
		rows, err := s.MovementReport(ctx, to.AddDate(0, 0, -7), to)
		if err != nil {
			return err
		}
		d.Movement = rows
		return nil
	})

	if err := g.Wait(); err != nil {
		return Dashboard{}, err
	}
	return d, nil
}

// agingBucket classifies a stock row by days since its last movement.
func agingBucket(now time.Time, last *time.Time) string {
	if last == nil {
		return "90+"
	}
	days := int(now.Sub(*last).Hours() / 24)
	switch {
	case days <= 30:
		return "0-30"
	case days <= 60:
		return "31-60"
	case days <= 90:
		return "61-90"
	default:
		return "90+"
	}
}

func (s *Service) OrdersReport(ctx context.Context) ([]OrdersReportRow, error) {
	var rows []OrdersReportRow
	key, err := s.cache.BuildKey(ctx, "reports", "orders")
	if err != nil {
		return nil, err
	}
	err = s.cache.FetchJSON(ctx, key, &rows, func(ctx context.Context) (interface{}, error) {
		return s.loadOrdersReport(ctx)
	})
	return rows, err
}

func (s *Service) loadOrdersReport(ctx context.Context) ([]OrdersReportRow, error) {
	res, err := s.pool.Query(ctx, `SELECT doc, status, COUNT(*), SUM(total) FROM (
SELECT 'PR' AS doc, status, 0::numeric AS total FROM purchase_requisitions
UNION ALL
SELECT 'PO', status, total FROM purchase_orders
UNION ALL
SELECT 'GRN', status, 0::numeric FROM goods_receipts
) docs
GROUP BY doc, status
ORDER BY doc ASC, status ASC`)
	if err != nil {
		return nil, err
	}
	defer res.Close()

	rows := []OrdersReportRow{}
	for res.Next() {
		var row OrdersReportRow
		if err := res.Scan(&row.Document, &row.Status, &row.Count, &row.Total); err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, res.Err()
}
