package analysis

import (
	"slices"

	"github.com/shopspring/decimal"

	"github.com/mauv0809/concession-impact/internal/models"
)

var penceToPounds = decimal.New(1, -2)

// CalculateImpact right-joins episode price deltas onto quantity windows by
// (BNF code, anchor month = window start). Every quantity window yields at
// least one record; a window matched by several episodes yields one record
// per episode, in the deltas' order.
func CalculateImpact(deltas []models.EpisodePriceDelta, quantities []models.RollingQuantity) []models.CostImpactRecord {
	byAnchor := make(map[bnfMonth][]int, len(deltas))
	for i, d := range deltas {
		if d.BNFCode == "" {
			continue
		}
		key := bnfMonth{d.BNFCode, d.ImpactAnchorMonth}
		byAnchor[key] = append(byAnchor[key], i)
	}

	records := make([]models.CostImpactRecord, 0, len(quantities))
	for _, q := range quantities {
		matches := byAnchor[bnfMonth{q.BNFCode, q.WindowStart}]
		if len(matches) == 0 {
			records = append(records, models.CostImpactRecord{RollingQuantity: q})
			continue
		}
		for _, i := range matches {
			d := deltas[i]
			records = append(records, models.CostImpactRecord{
				RollingQuantity: q,
				Delta:           &d,
				AdditionalCost:  AdditionalCost(q.Quantity, d.PackQuantity, d.PrePrice, d.PostPrice),
			})
		}
	}
	return records
}

// AdditionalCost converts a price delta in pence per pack into pounds over
// quantity units: 0.01 * (quantity/pack) * (post-pre). Returns nil when any
// input is unknown or the pack size is zero.
func AdditionalCost(quantity decimal.Decimal, pack, pre, post *decimal.Decimal) *decimal.Decimal {
	if pack == nil || pre == nil || post == nil || pack.IsZero() {
		return nil
	}
	cost := penceToPounds.Mul(quantity.Div(*pack)).Mul(post.Sub(*pre))
	return &cost
}

// MonthlyTotals sums additional cost per window start, ascending by month.
// Unknown costs contribute nothing; a month whose costs are all unknown
// still appears with a zero total.
func MonthlyTotals(records []models.CostImpactRecord) []models.MonthlyImpact {
	totals := make(map[models.Month]*models.MonthlyImpact)
	var months []models.Month
	for _, r := range records {
		t, ok := totals[r.WindowStart]
		if !ok {
			t = &models.MonthlyImpact{Month: r.WindowStart, AdditionalCost: decimal.Zero}
			totals[r.WindowStart] = t
			months = append(months, r.WindowStart)
		}
		if r.AdditionalCost != nil {
			t.AdditionalCost = t.AdditionalCost.Add(*r.AdditionalCost)
			t.Contributors++
		}
	}

	slices.Sort(months)
	out := make([]models.MonthlyImpact, 0, len(months))
	for _, m := range months {
		out = append(out, *totals[m])
	}
	return out
}

// GrandTotal sums the monthly totals.
func GrandTotal(totals []models.MonthlyImpact) decimal.Decimal {
	sum := decimal.Zero
	for _, t := range totals {
		sum = sum.Add(t.AdditionalCost)
	}
	return sum
}
