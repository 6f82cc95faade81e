package export

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/shopspring/decimal"

	"github.com/mauv0809/concession-impact/internal/analysis"
	"github.com/mauv0809/concession-impact/internal/models"
)

// FormatPounds renders d as pounds sterling with thousands separators and
// two decimal places, e.g. £1,234.56 or -£20.00.
func FormatPounds(d decimal.Decimal) string {
	s := d.Abs().StringFixed(2)
	whole, frac, _ := strings.Cut(s, ".")

	var b strings.Builder
	if d.Round(2).IsNegative() {
		b.WriteByte('-')
	}
	b.WriteString("£")
	for i, c := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	b.WriteByte('.')
	b.WriteString(frac)
	return b.String()
}

// WriteSummary prints the first n monthly totals in month order, followed by
// the grand total over every month in totals. n <= 0 prints all months.
func WriteSummary(w io.Writer, totals []models.MonthlyImpact, n int) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "Month\tAdditional cost\tEpisodes\t")

	shown := len(totals)
	if n > 0 && n < shown {
		shown = n
	}
	for _, t := range totals[:shown] {
		fmt.Fprintf(tw, "%s\t%s\t%d\t\n", t.Month.Label(), FormatPounds(t.AdditionalCost), t.Contributors)
	}
	fmt.Fprintf(tw, "Total (%d months)\t%s\t\t\n", len(totals), FormatPounds(analysis.GrandTotal(totals)))
	return tw.Flush()
}
