package analysis

import (
	"cmp"
	"slices"

	"github.com/shopspring/decimal"

	"github.com/mauv0809/concession-impact/internal/models"
)

type bnfMonth struct {
	bnfCode string
	month   models.Month
}

// QuantityFilter restricts prescribing input before aggregation. A zero
// Since or a nil BNFCodes set disables that restriction.
type QuantityFilter struct {
	Since    models.Month
	BNFCodes map[string]struct{}
}

// Apply returns the records that pass the filter.
func (f QuantityFilter) Apply(records []models.PrescribingRecord) []models.PrescribingRecord {
	out := make([]models.PrescribingRecord, 0, len(records))
	for _, r := range records {
		if f.Since != 0 && r.Month < f.Since {
			continue
		}
		if f.BNFCodes != nil {
			if _, ok := f.BNFCodes[r.BNFCode]; !ok {
				continue
			}
		}
		out = append(out, r)
	}
	return out
}

// RollingQuantities sums dispensed quantity over [start, start+window-1] for
// every (BNF code, month) present in records. The window is calendar based:
// months with no records contribute nothing. Windows running past the latest
// month in records are dropped so that every emitted sum is fully observed.
// Output is ordered by window start descending, then BNF code.
func RollingQuantities(records []models.PrescribingRecord, window int) []models.RollingQuantity {
	if len(records) == 0 {
		return nil
	}

	monthly := make(map[bnfMonth]decimal.Decimal, len(records))
	latest := records[0].Month
	for _, r := range records {
		key := bnfMonth{r.BNFCode, r.Month}
		monthly[key] = monthly[key].Add(r.Quantity)
		latest = max(latest, r.Month)
	}

	out := make([]models.RollingQuantity, 0, len(monthly))
	for key := range monthly {
		if key.month.AddMonths(window-1) > latest {
			continue
		}
		sum := decimal.Zero
		for offset := 0; offset < window; offset++ {
			if q, ok := monthly[bnfMonth{key.bnfCode, key.month.AddMonths(offset)}]; ok {
				sum = sum.Add(q)
			}
		}
		out = append(out, models.RollingQuantity{BNFCode: key.bnfCode, WindowStart: key.month, Quantity: sum})
	}

	slices.SortFunc(out, func(a, b models.RollingQuantity) int {
		if c := cmp.Compare(b.WindowStart, a.WindowStart); c != 0 {
			return c
		}
		return cmp.Compare(a.BNFCode, b.BNFCode)
	})
	return out
}
