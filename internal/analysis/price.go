package analysis

import (
	"github.com/shopspring/decimal"

	"github.com/mauv0809/concession-impact/internal/models"
)

// PriceTable holds the rolling mean price series and the per-drug reference
// data needed by the joiner. Lookups are exact (drug, month) matches.
type PriceTable struct {
	Rolling []models.RollingPrice
	index   map[drugMonth]*decimal.Decimal
	refs    map[string]models.DrugReference
}

// BuildPriceTable computes a trailing rolling mean over each drug's price
// observations. The window is positional: it spans the previous window-1
// observations in month order, whatever calendar gap lies between them, and
// is nil until window observations exist or while any of them lacks a price.
// Duplicate (drug, month) observations keep the first one seen.
func BuildPriceTable(points []models.PricePoint, window int) *PriceTable {
	points = dedupePrices(points)
	sorted, groups := groupByDrug(points,
		func(p models.PricePoint) string { return p.DrugID },
		func(p models.PricePoint) models.Month { return p.Month },
	)

	pt := &PriceTable{
		Rolling: make([]models.RollingPrice, 0, len(sorted)),
		index:   make(map[drugMonth]*decimal.Decimal, len(sorted)),
		refs:    make(map[string]models.DrugReference, len(groups)),
	}
	divisor := decimal.NewFromInt(int64(window))

	for _, g := range groups {
		series := sorted[g[0]:g[1]]
		for i, p := range series {
			var mean *decimal.Decimal
			if i+1 >= window {
				mean = windowMean(series[i+1-window:i+1], divisor)
			}
			pt.Rolling = append(pt.Rolling, models.RollingPrice{DrugID: p.DrugID, Month: p.Month, Mean: mean})
			pt.index[drugMonth{p.DrugID, p.Month}] = mean

			if _, ok := pt.refs[p.DrugID]; !ok && p.BNFCode != "" {
				pt.refs[p.DrugID] = models.DrugReference{
					DrugID:       p.DrugID,
					BNFCode:      p.BNFCode,
					Name:         p.Name,
					PackQuantity: p.PackQuantity,
				}
			}
		}
	}
	return pt
}

// At returns the rolling mean for drug at month, or nil when there is no
// entry or the entry is undefined.
func (pt *PriceTable) At(drugID string, month models.Month) *decimal.Decimal {
	return pt.index[drugMonth{drugID, month}]
}

// Reference returns the earliest price row's BNF code, name and pack size.
func (pt *PriceTable) Reference(drugID string) (models.DrugReference, bool) {
	ref, ok := pt.refs[drugID]
	return ref, ok
}

func windowMean(window []models.PricePoint, divisor decimal.Decimal) *decimal.Decimal {
	sum := decimal.Zero
	for _, p := range window {
		if p.UnitPricePence == nil {
			return nil
		}
		sum = sum.Add(*p.UnitPricePence)
	}
	mean := sum.Div(divisor)
	return &mean
}

func dedupePrices(points []models.PricePoint) []models.PricePoint {
	seen := make(map[drugMonth]struct{}, len(points))
	out := make([]models.PricePoint, 0, len(points))
	for _, p := range points {
		key := drugMonth{p.DrugID, p.Month}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, p)
	}
	return out
}
