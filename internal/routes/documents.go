package routes

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"strings"
	"text/template"
	"time"

	"github.com/shopspring/decimal"
)

// ChecklistRow is one stop on the loading checklist. Prepared and Loaded are
// ticked independently by the crew.
type ChecklistRow struct {
	Sequence     int      `json:"sequence"`
	Customer     string   `json:"customer"`
	Address      string   `json:"address,omitempty"`
	OrderNumbers []string `json:"order_numbers"`
	Prepared     bool     `json:"prepared"`
	Loaded       bool     `json:"loaded"`
}

// Checklist is the itinerary-ordered projection of a route.
type Checklist struct {
	Route string         `json:"route_name"`
	Date  time.Time      `json:"date"`
	Rows  []ChecklistRow `json:"rows"`
}

// BlindSummary lists what to load without customer identity.
type BlindSummary struct {
	Route      string            `json:"route_name"`
	Date       time.Time         `json:"date"`
	Categories []CategorySummary `json:"categories"`
	Stops      int               `json:"stops"`
}

// NewChecklist projects a route into checklist rows in sequence order.
func NewChecklist(r Route) Checklist {
	c := Checklist{Route: r.Name, Date: r.Date, Rows: make([]ChecklistRow, 0, len(r.Stops))}
	for _, s := range r.Stops {
		c.Rows = append(c.Rows, ChecklistRow{
			Sequence:     s.Sequence,
			Customer:     s.Customer,
			Address:      s.Address,
			OrderNumbers: append([]string(nil), s.OrderNumbers...),
		})
	}
	return c
}

// NewBlindSummary projects a route into its category totals.
func NewBlindSummary(r Route) BlindSummary {
	return BlindSummary{Route: r.Name, Date: r.Date, Categories: r.Categories, Stops: len(r.Stops)}
}

func box(checked bool) string {
	if checked {
		return "[x]"
	}
	return "[ ]"
}

func qty(d decimal.Decimal) string {
	return d.StringFixed(3)
}

var funcs = template.FuncMap{
	"box":  box,
	"qty":  qty,
	"join": strings.Join,
	"date": func(t time.Time) string { return t.Format("2006-01-02") },
}

var checklistText = template.Must(template.New("checklist").Funcs(funcs).Parse(
	`Loading checklist: {{.Route}} ({{date .Date}})
{{range .Rows}}{{printf "%3d" .Sequence}}. {{.Customer}}{{if .Address}}, {{.Address}}{{end}}
     orders: {{join .OrderNumbers ", "}}
     prepared {{box .Prepared}}  loaded {{box .Loaded}}
{{end}}`))

var blindText = template.Must(template.New("blind").Funcs(funcs).Parse(
	`Load summary: {{.Route}} ({{date .Date}}), {{.Stops}} stops
{{range .Categories}}
{{.Category}}
{{range .Items}}  {{printf "%-32s" .Name}} {{printf "%12s" (qty .Quantity)}} {{.Unit}}
{{end}}{{end}}`))

const pageStyle = `<style>body{font-family:sans-serif;font-size:12px}table{border-collapse:collapse;width:100%}td,th{border:1px solid #999;padding:4px;text-align:left}td.num{text-align:right}</style>`

var checklistHTML = htmltemplate.Must(htmltemplate.New("checklist").Funcs(htmltemplate.FuncMap(funcs)).Parse(
	`<html><head><meta charset="utf-8"><title>{{.Route}}</title>` + pageStyle + `</head><body>
<h1>{{.Route}} {{date .Date}}</h1>
<table><tr><th>#</th><th>Customer</th><th>Address</th><th>Orders</th><th>Prepared</th><th>Loaded</th></tr>
{{range .Rows}}<tr><td>{{.Sequence}}</td><td>{{.Customer}}</td><td>{{.Address}}</td><td>{{join .OrderNumbers ", "}}</td><td>{{box .Prepared}}</td><td>{{box .Loaded}}</td></tr>
{{end}}</table></body></html>`))

var blindHTML = htmltemplate.Must(htmltemplate.New("blind").Funcs(htmltemplate.FuncMap(funcs)).Parse(
	`<html><head><meta charset="utf-8"><title>{{.Route}}</title>` + pageStyle + `</head><body>
<h1>{{.Route}} {{date .Date}}</h1>
{{range .Categories}}<h2>{{.Category}}</h2>
<table>{{range .Items}}<tr><td>{{.Name}}</td><td class="num">{{qty .Quantity}}</td><td>{{.Unit}}</td></tr>{{end}}</table>
{{end}}</body></html>`))

// Text renders the checklist for plain-text printing.
func (c Checklist) Text() (string, error) {
	return execute(checklistText, c)
}

// HTML renders the checklist for PDF conversion.
func (c Checklist) HTML() (string, error) {
	return executeHTML(checklistHTML, c)
}

// Text renders the blind summary for plain-text printing.
func (b BlindSummary) Text() (string, error) {
	return execute(blindText, b)
}

// HTML renders the blind summary for PDF conversion.
func (b BlindSummary) HTML() (string, error) {
	return executeHTML(blindHTML, b)
}

func execute(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s: %w", t.Name(), err)
	}
	return buf.String(), nil
}

func executeHTML(t *htmltemplate.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s: %w", t.Name(), err)
	}
	return buf.String(), nil
}
