package payroll

import (
	"bytes"
	"context"
	"html/template"

	"github.com/shopspring/decimal"
)

// Renderer converts an HTML document into PDF bytes.
type Renderer interface {
	RenderHTML(ctx context.Context, html []byte) ([]byte, error)
}

var payslipTemplate = template.Must(template.New("payslip").Funcs(template.FuncMap{
	"amount": func(d decimal.Decimal) string { return d.StringFixed(2) },
}).Parse(`<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>Payslip {{.Slip.EmployeeName}} {{.Slip.Period}}</title>
<style>
body{font-family:sans-serif;font-size:12px}
table{width:100%;border-collapse:collapse;margin-bottom:12px}
td,th{border:1px solid #ccc;padding:4px 6px}
td.num{text-align:right}
</style></head>
<body>
<h1>{{.Organization}}</h1>
<h2>Payslip for {{.Slip.Period.Label}}</h2>
<p>{{.Slip.EmployeeName}}{{with .Slip.Designation}}, {{.}}{{end}}</p>
<p>Monthly CTC: {{amount .Slip.MonthlyCTC}}</p>
<table>
<tr><th>Earnings</th><th>Amount</th></tr>
{{range .Slip.Earnings}}<tr><td>{{.Name}}</td><td class="num">{{amount .Amount}}</td></tr>
{{end}}{{range .Slip.AdditionalEarnings}}<tr><td>{{.Name}}</td><td class="num">{{amount .Amount}}</td></tr>
{{end}}<tr><th>Gross salary</th><th class="num">{{amount .Slip.GrossSalary}}</th></tr>
</table>
<table>
<tr><th>Deductions</th><th>Amount</th></tr>
{{range .Slip.Deductions}}<tr><td>{{.Name}}</td><td class="num">{{amount .Amount}}</td></tr>
{{end}}{{range .Slip.AdditionalDeductions}}<tr><td>{{.Name}}</td><td class="num">{{amount .Amount}}</td></tr>
{{end}}<tr><th>Total deductions</th><th class="num">{{amount .Slip.TotalDeductions}}</th></tr>
</table>
<h3>Net pay: {{amount .Slip.NetPay}}</h3>
</body></html>
`))

// PayslipHTML renders slip as a standalone HTML page.
func PayslipHTML(organization string, slip Payslip) ([]byte, error) {
	var buf bytes.Buffer
	err := payslipTemplate.Execute(&buf, struct {
		Organization string
		Slip         Payslip
	}{organization, slip})
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// PayslipPDF renders the payslip of employeeID in runID through r.
func (s *Service) PayslipPDF(ctx context.Context, r Renderer, tenant, organization, runID, employeeID string) ([]byte, error) {
	slip, err := s.Payslip(ctx, tenant, runID, employeeID)
	if err != nil {
		return nil, err
	}
	html, err := PayslipHTML(organization, slip)
	if err != nil {
		return nil, err
	}
	return r.RenderHTML(ctx, html)
}
