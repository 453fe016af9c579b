package reports

import (
	"bytes"
	"context"
	"html/template"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// countPrinter groups digits for human-readable quantities in PDF output.
// CSV exports keep raw numbers.
var countPrinter = message.NewPrinter(language.English)

func formatCount(n int64) string {
	return countPrinter.Sprintf("%d", n)
}

type pdfClient interface {
	RenderHTML(ctx context.Context, html string) ([]byte, error)
}

// Renderer turns tabular report data into PDF documents.
type Renderer struct {
	client pdfClient
}

// NewRenderer constructs the report PDF renderer.
func NewRenderer(client pdfClient) *Renderer {
	return &Renderer{client: client}
}

// Table is a generic tabular document. Every report renders through the same
// layout.
type Table struct {
	Title    string
	Subtitle string
	Headers  []string
	Rows     [][]string
}

var tableTemplate = template.Must(template.New("table").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<style>
body { font-family: Helvetica, Arial, sans-serif; font-size: 11px; color: #111; }
h1 { font-size: 16px; margin-bottom: 2px; }
p.sub { margin-top: 0; color: #555; }
table { width: 100%; border-collapse: collapse; margin-top: 12px; }
th, td { border: 1px solid #999; padding: 5px 8px; text-align: left; }
th { background: #eee; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
{{if .Subtitle}}<p class="sub">{{.Subtitle}}</p>{{end}}
<table>
<tr>{{range .Headers}}<th>{{.}}</th>{{end}}</tr>
{{range .Rows}}<tr>{{range .}}<td>{{.}}</td>{{end}}</tr>
{{end}}</table>
</body>
</html>`))

// Render produces the PDF for a table.
func (r *Renderer) Render(ctx context.Context, table Table) ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := tableTemplate.Execute(buf, table); err != nil {
		return nil, err
	}
	return r.client.RenderHTML(ctx, buf.String())
}
