package procurement

import (
	"bytes"
	"context"
	"html/template"
	"time"

	"github.com/shopspring/decimal"
)

type pdfClient interface {
	RenderHTML(ctx context.Context, html string) ([]byte, error)
}

// Renderer produces printable purchase order and goods receipt documents.
type Renderer struct {
	client pdfClient
}

// NewRenderer constructs the PDF renderer.
func NewRenderer(client pdfClient) *Renderer {
	return &Renderer{client: client}
}

var docFuncs = template.FuncMap{
	"formatDate": func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.Format("January 2, 2006")
	},
	"money": func(d decimal.Decimal) string {
		return d.StringFixed(2)
	},
}

var orderTemplate = template.Must(template.New("order").Funcs(docFuncs).Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<style>
body { font-family: Helvetica, Arial, sans-serif; font-size: 12px; color: #111; }
h1 { font-size: 18px; margin-bottom: 0; }
.meta td { padding: 2px 16px 2px 0; }
table.lines { width: 100%; border-collapse: collapse; margin-top: 16px; }
table.lines th, table.lines td { border: 1px solid #999; padding: 6px 8px; text-align: left; }
table.lines th { background: #eee; }
td.num, th.num { text-align: right; }
.total { margin-top: 12px; text-align: right; font-weight: bold; }
</style>
</head>
<body>
<h1>Purchase Order</h1>
<table class="meta">
<tr><td>Number</td><td>{{.Order.Number}}</td></tr>
<tr><td>Supplier</td><td>{{.SupplierName}}</td></tr>
<tr><td>Deliver To</td><td>{{.WarehouseName}}</td></tr>
<tr><td>Status</td><td>{{.Order.Status}}</td></tr>
<tr><td>Date</td><td>{{formatDate .Order.CreatedAt}}</td></tr>
</table>
<table class="lines">
<tr><th>SKU</th><th>Product</th><th class="num">Qty</th><th class="num">Rate</th><th class="num">Amount</th></tr>
{{range .Order.Lines}}<tr><td>{{.ProductSKU}}</td><td>{{.ProductName}}</td><td class="num">{{.Quantity}}</td><td class="num">{{money .Rate}}</td><td class="num">{{money .Amount}}</td></tr>
{{end}}</table>
<p class="total">Total: {{money .Order.Total}}</p>
</body>
</html>`))

var receiptTemplate = template.Must(template.New("receipt").Funcs(docFuncs).Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<style>
body { font-family: Helvetica, Arial, sans-serif; font-size: 12px; color: #111; }
h1 { font-size: 18px; margin-bottom: 0; }
.meta td { padding: 2px 16px 2px 0; }
table.lines { width: 100%; border-collapse: collapse; margin-top: 16px; }
table.lines th, table.lines td { border: 1px solid #999; padding: 6px 8px; text-align: left; }
table.lines th { background: #eee; }
td.num, th.num { text-align: right; }
</style>
</head>
<body>
<h1>Goods Receipt Note</h1>
<table class="meta">
<tr><td>Number</td><td>{{.Receipt.Number}}</td></tr>
<tr><td>Purchase Order</td><td>{{.OrderNumber}}</td></tr>
<tr><td>Warehouse</td><td>{{.WarehouseName}}</td></tr>
<tr><td>Status</td><td>{{.Receipt.Status}}</td></tr>
<tr><td>Date</td><td>{{formatDate .Receipt.CreatedAt}}</td></tr>
<tr><td>Notes</td><td>{{.Receipt.Notes}}</td></tr>
</table>
<table class="lines">
<tr><th>SKU</th><th>Product</th><th class="num">Received Qty</th></tr>
{{range .Receipt.Lines}}<tr><td>{{.ProductSKU}}</td><td>{{.ProductName}}</td><td class="num">{{.Quantity}}</td></tr>
{{end}}</table>
</body>
</html>`))

type orderDoc struct {
	Order         Order
	SupplierName  string
	WarehouseName string
}

type receiptDoc struct {
	Receipt       Receipt
	OrderNumber   string
	WarehouseName string
}

// RenderOrder produces the purchase order PDF.
func (r *Renderer) RenderOrder(ctx context.Context, order Order, supplierName, warehouseName string) ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := orderTemplate.Execute(buf, orderDoc{Order: order, SupplierName: supplierName, WarehouseName: warehouseName}); err != nil {
		return nil, err
	}
	return r.client.RenderHTML(ctx, buf.String())
}

// RenderReceipt produces the goods receipt PDF.
func (r *Renderer) RenderReceipt(ctx context.Context, receipt Receipt, orderNumber, warehouseName string) ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := receiptTemplate.Execute(buf, receiptDoc{Receipt: receipt, OrderNumber: orderNumber, WarehouseName: warehouseName}); err != nil {
		return nil, err
	}
	return r.client.RenderHTML(ctx, buf.String())
}
