package notifier

import (
	"fmt"
	"html"
	"strings"

	"github.com/DebtanChowdhury1/QuantoraAI/internal/market"
	"github.com/DebtanChowdhury1/QuantoraAI/internal/model"
)

func actionBadge(a model.Action) (emoji, color string) {
	switch a {
	case model.ActionBuy:
		return "📈", "#16a34a"
	case model.ActionSell:
		return "📉", "#dc2626"
	default:
		return "⏸️", "#6b7280"
	}
}

// FormatAlert renders the subject and HTML body for a signal alert.
func FormatAlert(p *model.Prediction, snap *model.Snapshot) (subject, body string) {
	emoji, color := actionBadge(p.Action)
	name := snap.Name
	if name == "" {
		name = p.AssetID
	}
	subject = fmt.Sprintf("%s %s signal: %s (%s)", emoji, p.Action, name, p.Symbol)

	change := fmt.Sprintf("%+.2f%%", p.Change24h)
	changeColor := "#16a34a"
	if p.Change24h < 0 {
		changeColor = "#dc2626"
	}

	var b strings.Builder
	b.WriteString(`<div style="font-family:Arial,sans-serif;max-width:560px;margin:0 auto">`)
	fmt.Fprintf(&b, `<h2 style="margin-bottom:4px">%s %s <span style="color:#6b7280">(%s)</span></h2>`,
		emoji, html.EscapeString(name), html.EscapeString(p.Symbol))
	fmt.Fprintf(&b, `<p style="font-size:22px;margin:8px 0"><b style="color:%s">%s</b>`+
		` &middot; confidence %.0f%%</p>`, color, p.Action, p.Confidence*100)

	b.WriteString(`<table style="border-collapse:collapse;width:100%">`)
	row := func(label, value string) {
		fmt.Fprintf(&b, `<tr><td style="padding:6px 8px;color:#6b7280">%s</td>`+
			`<td style="padding:6px 8px;text-align:right">%s</td></tr>`, label, value)
	}
	row("Current price", "$"+market.DisplayPrice(p.MarketPrice))
	row("24h change", fmt.Sprintf(`<span style="color:%s">%s</span>`, changeColor, change))
	row(fmt.Sprintf("%v-day average", p.PeriodDays), "$"+market.DisplayPrice(p.AveragePrice))
	row("Volatility", fmt.Sprintf("%.2f%%", p.Volatility))
	b.WriteString(`</table>`)

	fmt.Fprintf(&b, `<p style="background:#f3f4f6;padding:12px;border-radius:6px">%s</p>`,
		html.EscapeString(p.Reason))
	fmt.Fprintf(&b, `<p style="color:#9ca3af;font-size:12px">Generated %s UTC. `+
		`Automated analysis, not financial advice.</p>`,
		p.CreatedAt.UTC().Format("2006-01-02 15:04"))
	b.WriteString(`</div>`)
	return subject, b.String()
}
