package issues

import (
	"bytes"
	"context"
	"html/template"
	"time"
)

type pdfClient interface {
	RenderHTML(ctx context.Context, html string) ([]byte, error)
}

// Renderer produces printable slip and gate pass documents.
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
	"formatDatePtr": func(t *time.Time) string {
		if t == nil || t.IsZero() {
			return ""
		}
		return t.Format("January 2, 2006 15:04")
	},
}

var slipTemplate = template.Must(template.New("slip").Funcs(docFuncs).Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<style>
body { font-family: Helvetica, Arial, sans-serif; font-size: 12px; color: #111; }
h1 { font-size: 18px; margin-bottom: 0; }
.meta { margin: 12px 0; }
.meta td { padding: 2px 16px 2px 0; }
table.lines { width: 100%; border-collapse: collapse; margin-top: 16px; }
table.lines th, table.lines td { border: 1px solid #999; padding: 6px 8px; text-align: left; }
table.lines th { background: #eee; }
.status { font-weight: bold; }
</style>
</head>
<body>
<h1>Stock Issue Slip</h1>
<table class="meta">
<tr><td>Number</td><td>{{.Slip.Number}}</td></tr>
<tr><td>Type</td><td>{{.Slip.Type}}</td></tr>
<tr><td>Warehouse</td><td>{{.WarehouseName}}</td></tr>
<tr><td>Status</td><td class="status">{{.Slip.Status}}</td></tr>
<tr><td>Purpose</td><td>{{.Slip.Purpose}}</td></tr>
<tr><td>Created</td><td>{{formatDate .Slip.CreatedAt}}</td></tr>
<tr><td>Issued</td><td>{{formatDatePtr .Slip.IssuedAt}}</td></tr>
</table>
<table class="lines">
<tr><th>SKU</th><th>Product</th><th>Quantity</th></tr>
{{range .Slip.Lines}}<tr><td>{{.ProductSKU}}</td><td>{{.ProductName}}</td><td>{{.Quantity}}</td></tr>
{{end}}</table>
</body>
</html>`))

var passTemplate = template.Must(template.New("pass").Funcs(docFuncs).Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<style>
body { font-family: Helvetica, Arial, sans-serif; font-size: 13px; color: #111; }
h1 { font-size: 20px; }
.frame { border: 2px solid #111; padding: 24px; margin-top: 16px; }
.meta td { padding: 4px 16px 4px 0; }
table.lines { width: 100%; border-collapse: collapse; margin-top: 16px; }
table.lines th, table.lines td { border: 1px solid #999; padding: 6px 8px; text-align: left; }
.sign { margin-top: 48px; display: flex; justify-content: space-between; }
.sign div { width: 40%; border-top: 1px solid #111; text-align: center; padding-top: 6px; }
</style>
</head>
<body>
<h1>Issue Pass</h1>
<div class="frame">
<table class="meta">
<tr><td>Pass Number</td><td>{{.Pass.Number}}</td></tr>
<tr><td>Slip Number</td><td>{{.Slip.Number}}</td></tr>
<tr><td>Warehouse</td><td>{{.WarehouseName}}</td></tr>
<tr><td>Issued At</td><td>{{formatDate .Pass.IssuedAt}}</td></tr>
</table>
<table class="lines">
<tr><th>SKU</th><th>Product</th><th>Quantity</th></tr>
{{range .Slip.Lines}}<tr><td>{{.ProductSKU}}</td><td>{{.ProductName}}</td><td>{{.Quantity}}</td></tr>
{{end}}</table>
<div class="sign">
<div>Issued By</div>
<div>Gate Security</div>
</div>
</div>
</body>
</html>`))

type slipDoc struct {
	Slip          Slip
	WarehouseName string
}

type passDoc struct {
	Slip          Slip
	Pass          Pass
	WarehouseName string
}

// RenderSlip produces the slip PDF.
func (r *Renderer) RenderSlip(ctx context.Context, slip Slip, warehouseName string) ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := slipTemplate.Execute(buf, slipDoc{Slip: slip, WarehouseName: warehouseName}); err != nil {
		return nil, err
	}
	return r.client.RenderHTML(ctx, buf.String())
}

// RenderPass produces the gate pass PDF.
func (r *Renderer) RenderPass(ctx context.Context, slip Slip, pass Pass, warehouseName string) ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := passTemplate.Execute(buf, passDoc{Slip: slip, Pass: pass, WarehouseName: warehouseName}); err != nil {
		return nil, err
	}
	return r.client.RenderHTML(ctx, buf.String())
}
