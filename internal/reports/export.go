package reports

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"
)

// WriteStockCSV serialises stock balances to CSV.
func WriteStockCSV(w io.Writer, rows []StockReportRow) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if err := writer.Write([]string{"SKU", "Product", "Warehouse", "Quantity", "Unit Price", "Value"}); err != nil {
		return err
	}
	for _, row := range rows {
		if err := writer.Write([]string{
			row.ProductSKU,
			row.ProductName,
			row.WarehouseName,
			strconv.FormatInt(row.Quantity, 10),
			row.UnitPrice.StringFixed(2),
			row.Value.StringFixed(2),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteMovementCSV emits daily ledger activity as CSV.
func WriteMovementCSV(w io.Writer, rows []MovementReportRow) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if err := writer.Write([]string{"Date", "Type", "Entries", "Quantity"}); err != nil {
		return err
	}
	for _, row := range rows {
		if err := writer.Write([]string{
			row.Date.Format("2006-01-02"),
			row.Type,
			strconv.FormatInt(row.Entries, 10),
			strconv.FormatInt(row.Quantity, 10),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteValuationCSV emits the valuation report with its grand total.
func WriteValuationCSV(w io.Writer, report ValuationReport) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if err := writer.Write([]string{"SKU", "Product", "Quantity", "Unit Price", "Value"}); err != nil {
		return err
	}
	for _, row := range report.Rows {
		if err := writer.Write([]string{
			row.ProductSKU,
			row.ProductName,
			strconv.FormatInt(row.Quantity, 10),
			row.UnitPrice.StringFixed(2),
			row.Value.StringFixed(2),
		}); err != nil {
			return err
		}
	}
	if err := writer.Write([]string{"Total", "", "", "", report.Total.StringFixed(2)}); err != nil {
		return err
	}
	writer.Flush()
	return writer.Error()
}

// WriteLowStockCSV prints low stock rows to CSV.
func WriteLowStockCSV(w io.Writer, rows []LowStockRow) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if err := writer.Write([]string{"SKU", "Product", "Warehouse", "Quantity", "Threshold"}); err != nil {
		return err
	}
	for _, row := range rows {
		if err := writer.Write([]string{
			row.ProductSKU,
			row.ProductName,
			row.WarehouseName,
			strconv.FormatInt(row.Quantity, 10),
			strconv.FormatInt(row.Threshold, 10),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteMonthlyStockCSV emits opening/in/out/closing per product.
func WriteMonthlyStockCSV(w io.Writer, rows []MonthlyStockRow) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if err := writer.Write([]string{"SKU", "Product", "Opening", "In", "Out", "Closing"}); err != nil {
		return err
	}
	for _, row := range rows {
		if err := writer.Write([]string{
			row.ProductSKU,
			row.ProductName,
			strconv.FormatInt(row.Opening, 10),
			strconv.FormatInt(row.In, 10),
			strconv.FormatInt(row.Out, 10),
			strconv.FormatInt(row.Closing, 10),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteAgingCSV prints aging buckets to CSV.
func WriteAgingCSV(w io.Writer, rows []AgingRow) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if err := writer.Write([]string{"SKU", "Product", "Warehouse", "Quantity", "Last Movement", "Bucket"}); err != nil {
		return err
	}
	for _, row := range rows {
		last := ""
		if row.LastMovement != nil {
			last = row.LastMovement.Format(time.RFC3339)
		}
		if err := writer.Write([]string{
			row.ProductSKU,
			row.ProductName,
			row.WarehouseName,
			strconv.FormatInt(row.Quantity, 10),
			last,
			row.Bucket,
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteOrdersCSV prints procurement document counts per status.
func WriteOrdersCSV(w io.Writer, rows []OrdersReportRow) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if err := writer.Write([]string{"Document", "Status", "Count", "Total"}); err != nil {
		return err
	}
	for _, row := range rows {
		if err := writer.Write([]string{
			row.Document,
			row.Status,
			strconv.FormatInt(row.Count, 10),
			row.Total.StringFixed(2),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
