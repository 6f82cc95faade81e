package analysis

import (
	"cmp"
	"slices"

	"github.com/shopspring/decimal"

	"github.com/mauv0809/concession-impact/internal/models"
)

// Offsets, in months, used to align prices and quantities around an episode
// for a measurement window of w months:
//
//	pre price   rolling mean at first-1   covers first-w .. first-1
//	post price  rolling mean at last+w    covers last+1  .. last+w
//	anchor      last+w+1                  quantity window last+w+1 .. last+2w
const prePriceOffset = -1

// PostPriceMonth is the month whose trailing rolling price covers the w
// months strictly after the episode.
func PostPriceMonth(ep models.Episode, window int) models.Month {
	return ep.LastMonth.AddMonths(window)
}

// ImpactAnchorMonth is the first month of the quantity window, one month
// after the post-price window ends.
func ImpactAnchorMonth(ep models.Episode, window int) models.Month {
	return ep.LastMonth.AddMonths(window + 1)
}

// JoinEpisodePrices attaches pre- and post-episode rolling prices to each
// episode. Episodes are never dropped: missing lookups leave nil prices.
// Output is ordered most recent LastMonth first.
func JoinEpisodePrices(episodes []models.Episode, prices *PriceTable, window int) []models.EpisodePriceDelta {
	deltas := make([]models.EpisodePriceDelta, 0, len(episodes))
	for _, ep := range episodes {
		d := models.EpisodePriceDelta{
			Episode:           ep,
			PrePrice:          prices.At(ep.DrugID, ep.FirstMonth.AddMonths(prePriceOffset)),
			PostPrice:         prices.At(ep.DrugID, PostPriceMonth(ep, window)),
			ImpactAnchorMonth: ImpactAnchorMonth(ep, window),
		}
		if ref, ok := prices.Reference(ep.DrugID); ok {
			d.BNFCode = ref.BNFCode
			d.Name = ref.Name
			pack := ref.PackQuantity
			d.PackQuantity = &pack
		}
		d.PctChange = PctChange(d.PrePrice, d.PostPrice)
		deltas = append(deltas, d)
	}

	slices.SortStableFunc(deltas, func(a, b models.EpisodePriceDelta) int {
		if c := cmp.Compare(b.LastMonth, a.LastMonth); c != 0 {
			return c
		}
		if c := cmp.Compare(a.DrugID, b.DrugID); c != 0 {
			return c
		}
		return cmp.Compare(a.FirstMonth, b.FirstMonth)
	})
	return deltas
}

// PctChange returns post/pre - 1, or nil when either side is unknown or pre
// is zero.
func PctChange(pre, post *decimal.Decimal) *decimal.Decimal {
	if pre == nil || post == nil || pre.IsZero() {
		return nil
	}
	change := post.Div(*pre).Sub(decimal.NewFromInt(1))
	return &change
}
