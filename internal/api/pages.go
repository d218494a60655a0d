package api

import (
	"fmt"
	"html/template"
)

var pageFuncs = template.FuncMap{
	"money": func(v float64) string { return fmt.Sprintf("$%.2f", v) },
	"line":  func(price float64, qty int) string { return fmt.Sprintf("$%.2f", price*float64(qty)) },
}

// paymentPages renders the dummy checkout. Each page is a named template.
var paymentPages = template.Must(template.New("pages").Funcs(pageFuncs).Parse(`
{{define "head"}}<!DOCTYPE html>
<html lang="en"><head><meta charset="utf-8"><meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.}} | CommerceBridge</title>
<style>body{font-family:sans-serif;max-width:480px;margin:2rem auto;padding:0 1rem}table{width:100%;border-collapse:collapse}td,th{padding:.4rem;border-bottom:1px solid #ddd;text-align:left}.total{font-weight:bold}button{padding:.7rem 1.4rem;font-size:1rem}</style>
</head><body>{{end}}

{{define "items"}}<table><tr><th>Item</th><th>Qty</th><th>Amount</th></tr>
{{range .Items}}<tr><td>{{.Name}}</td><td>{{.Quantity}}</td><td>{{line .Price .Quantity}}</td></tr>
{{end}}<tr class="total"><td colspan="2">Total</td><td>{{money .Total}}</td></tr></table>{{end}}

{{define "pay"}}{{template "head" "Pay"}}
<h1>Complete your payment</h1>
<p>Order <code>{{.ID}}</code></p>
{{template "items" .}}
<form method="post" action="/api/pay/dummy/{{.ID}}/confirm"><p><button type="submit">Pay {{money .Total}}</button></p></form>
<p><small>This is a test checkout. No card is charged.</small></p>
</body></html>{{end}}

{{define "receipt"}}{{template "head" "Receipt"}}
<h1>Payment received</h1>
<p>Order <code>{{.ID}}</code> was paid{{if .PaidAt}} on {{.PaidAt.Format "Jan 2, 2006 15:04 MST"}}{{end}}.</p>
{{template "items" .}}
<p>You can return to WhatsApp. We will keep you posted on your order.</p>
</body></html>{{end}}

{{define "notfound"}}{{template "head" "Not found"}}
<h1>Order not found</h1><p>{{.}}</p>
</body></html>{{end}}
`))
