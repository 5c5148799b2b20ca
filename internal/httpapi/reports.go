package httpapi

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"bakerypos/backend/internal/domain"
)

func dailyReportToCSV(report domain.DailyReport) string {
	lines := []string{
		"section,key,value",
		fmt.Sprintf("summary,date,%s", report.Date),
		fmt.Sprintf("summary,sales,%d", report.Sales),
		fmt.Sprintf("summary,orders,%d", report.Orders),
		fmt.Sprintf("summary,settlements,%d", report.Settlements),
		fmt.Sprintf("summary,sales_total,%.2f", report.SalesTotal),
		fmt.Sprintf("summary,advance_collected,%.2f", report.AdvanceCollected),
		fmt.Sprintf("summary,settlement_total,%.2f", report.SettlementTotal),
		fmt.Sprintf("summary,cash_collected,%.2f", report.CashCollected),
		fmt.Sprintf("summary,expenses,%.2f", report.Expenses),
		fmt.Sprintf("summary,net,%.2f", report.Net),
		fmt.Sprintf("summary,outstanding_balance,%.2f", report.OutstandingBalance),
	}
	for _, payment := range report.ByPayment {
		lines = append(lines, fmt.Sprintf("payment,%s_transactions,%d", payment.PaymentType, payment.Transactions))
		lines = append(lines, fmt.Sprintf("payment,%s_total,%.2f", payment.PaymentType, payment.Total))
	}
	return strings.Join(lines, "\n") + "\n"
}

// dailyReportHTMLTmpl renders the printable daily report. html/template escapes
// every field.
var dailyReportHTMLTmpl = template.Must(template.New("daily-report").Funcs(template.FuncMap{
	"money": func(v float64) string { return fmt.Sprintf("%.2f", v) },
}).Parse(`<!doctype html>
<html>
<head>
  <meta charset="utf-8" />
  <title>Daily Report {{.Date}}</title>
  <style>
    body { font-family: sans-serif; margin: 24px; }
    table { width: 100%; border-collapse: collapse; margin-top: 8px; }
    th, td { border: 1px solid #ddd; padding: 6px; font-size: 13px; }
    h2, h3 { margin-bottom: 4px; }
  </style>
</head>
<body>
  <h2>Daily Report {{.Date}}</h2>
  <p>Sales: {{.Sales}} | Orders: {{.Orders}} | Settlements: {{.Settlements}}</p>
  <p>Sales: {{money .SalesTotal}} | Advances: {{money .AdvanceCollected}} | Settlements: {{money .SettlementTotal}}</p>
  <p>Collected: {{money .CashCollected}} | Expenses: {{money .Expenses}} | Net: {{money .Net}}</p>
  <p>Outstanding on today's orders: {{money .OutstandingBalance}}</p>

  <h3>By Payment</h3>
  <table>
    <thead><tr><th>Payment</th><th>Transactions</th><th>Total</th></tr></thead>
    <tbody>{{range .ByPayment}}<tr><td>{{.PaymentType}}</td><td style="text-align:right;">{{.Transactions}}</td><td style="text-align:right;">{{money .Total}}</td></tr>{{end}}</tbody>
  </table>
</body>
</html>
`))

func dailyReportToPrintableHTML(report domain.DailyReport) string {
	var buf bytes.Buffer
	if err := dailyReportHTMLTmpl.Execute(&buf, report); err != nil {
		return "<!doctype html><html><body><p>Report rendering error.</p></body></html>"
	}
	return buf.String()
}
