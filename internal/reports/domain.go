package reports

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// StockReportRow is one balance line of the stock report.
type StockReportRow struct {
	ProductSKU    string          `json:"product_sku"`
	ProductName   string          `json:"product_name"`
	WarehouseName string          `json:"warehouse_name"`
	Quantity      int64           `json:"quantity"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	Value         decimal.Decimal `json:"value"`
}

// MovementReportRow aggregates ledger activity per day and type.
type MovementReportRow struct {
	Date     time.Time `json:"date"`
	Type     string    `json:"type"`
	Entries  int64     `json:"entries"`
	Quantity int64     `json:"quantity"`
}

// ValuationReportRow values one product across all warehouses.
type ValuationReportRow struct {
	ProductSKU  string          `json:"product_sku"`
	ProductName string          `json:"product_name"`
	Quantity    int64           `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Value       decimal.Decimal `json:"value"`
}

// ValuationReport is the valuation rows with the grand total.
type ValuationReport struct {
	Rows  []ValuationReportRow `json:"rows"`
	Total decimal.Decimal      `json:"total"`
}

// LowStockRow flags a balance below the threshold.
type LowStockRow struct {
	ProductID     uuid.UUID `json:"product_id"`
	ProductSKU    string    `json:"product_sku"`
	ProductName   string    `json:"product_name"`
	WarehouseID   uuid.UUID `json:"warehouse_id"`
	WarehouseName string    `json:"warehouse_name"`
	Quantity      int64     `json:"quantity"`
	Threshold     int64     `json:"threshold"`
}

// MonthlyStockRow shows opening/in/out/closing per product for one month.
type MonthlyStockRow struct {
	ProductSKU  string `json:"product_sku"`
	ProductName string `json:"product_name"`
	Opening     int64  `json:"opening"`
	In          int64  `json:"in"`
	Out         int64  `json:"out"`
	Closing     int64  `json:"closing"`
}

// AgingRow buckets a stock row by days since its last movement.
type AgingRow struct {
	ProductSKU    string     `json:"product_sku"`
	ProductName   string     `json:"product_name"`
	WarehouseName string     `json:"warehouse_name"`
	Quantity      int64      `json:"quantity"`
	LastMovement  *time.Time `json:"last_movement,omitempty"`
	Bucket        string     `json:"bucket"`
}

// OrdersReportRow counts procurement documents per status. Total is zero for
// document types without money amounts.
type OrdersReportRow struct {
	Document string          `json:"document"`
	Status   string          `json:"status"`
	Count    int64           `json:"count"`
	Total    decimal.Decimal `json:"total"`
}
