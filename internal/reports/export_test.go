package reports

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestWriteStockCSV(t *testing.T) {
	rows := []StockReportRow{
		{
			ProductSKU:    "SKU-001",
			ProductName:   "Widget",
			WarehouseName: "Main",
			Quantity:      12,
			UnitPrice:     decimal.NewFromFloat(2.5),
			Value:         decimal.NewFromFloat(30),
		},
	}

	buf := &bytes.Buffer{}
	require.NoError(t, WriteStockCSV(buf, rows))

	records, err := csv.NewReader(buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, []string{"SKU", "Product", "Warehouse", "Quantity", "Unit Price", "Value"}, records[0])
	require.Equal(t, []string{"SKU-001", "Widget", "Main", "12", "2.50", "30.00"}, records[1])
}

func TestWriteValuationCSVAppendsTotal(t *testing.T) {
	report := ValuationReport{
		Rows: []ValuationReportRow{
			{ProductSKU: "SKU-001", ProductName: "Widget", Quantity: 3, UnitPrice: decimal.NewFromInt(10), Value: decimal.NewFromInt(30)},
			{ProductSKU: "SKU-002", ProductName: "Gadget", Quantity: 1, UnitPrice: decimal.NewFromInt(5), Value: decimal.NewFromInt(5)},
		},
		Total: decimal.NewFromInt(35),
	}

	buf := &bytes.Buffer{}
	require.NoError(t, WriteValuationCSV(buf, report))

	records, err := csv.NewReader(buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 4)
	last := records[len(records)-1]
	require.Equal(t, "Total", last[0])
	require.Equal(t, "35.00", last[len(last)-1])
}

func TestWriteMonthlyStockCSV(t *testing.T) {
	rows := []MonthlyStockRow{
		{ProductSKU: "SKU-001", ProductName: "Widget", Opening: 10, In: 5, Out: 3, Closing: 12},
	}

	buf := &bytes.Buffer{}
	require.NoError(t, WriteMonthlyStockCSV(buf, rows))

	out := buf.String()
	require.True(t, strings.HasPrefix(out, "SKU,Product,Opening,In,Out,Closing\n"))
	require.Contains(t, out, "SKU-001,Widget,10,5,3,12")
}

func TestWriteAgingCSVHandlesMissingLastMovement(t *testing.T) {
	last := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	rows := []AgingRow{
		{ProductSKU: "SKU-001", ProductName: "Widget", WarehouseName: "Main", Quantity: 4, LastMovement: &last, Bucket: "61-90"},
		{ProductSKU: "SKU-002", ProductName: "Gadget", WarehouseName: "Main", Quantity: 2, Bucket: "90+"},
	}

	buf := &bytes.Buffer{}
	require.NoError(t, WriteAgingCSV(buf, rows))

	records, err := csv.NewReader(buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	require.Equal(t, "2026-05-01T12:00:00Z", records[1][4])
	require.Equal(t, "", records[2][4])
	require.Equal(t, "90+", records[2][5])
}

func TestAgingBucket(t *testing.T) {
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		name string
		last *time.Time
		want string
	}{
		{name: "never moved", last: nil, want: "90+"},
		{name: "fresh", last: ptrTime(now.AddDate(0, 0, -5)), want: "0-30"},
		{name: "edge of first bucket", last: ptrTime(now.AddDate(0, 0, -30)), want: "0-30"},
		{name: "second bucket", last: ptrTime(now.AddDate(0, 0, -45)), want: "31-60"},
		{name: "third bucket", last: ptrTime(now.AddDate(0, 0, -90)), want: "61-90"},
		{name: "stale", last: ptrTime(now.AddDate(0, 0, -120)), want: "90+"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, agingBucket(now, tc.last))
		})
	}
}

func ptrTime(t time.Time) *time.Time {
	return &t
}
