package analysis

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mauv0809/concession-impact/internal/models"
)

// concessionScenario: drug A is on concession Jan..Mar 2023 and its tariff
// price steps from 100p to 110p afterwards; 1000 packs of size 1 are
// dispensed every month. Drug B widens the calendar to Jun 2022..Dec 2023.
func concessionScenario() Inputs {
	var in Inputs
	for m := month(2023, time.January); m <= month(2023, time.March); m++ {
		in.Flags = append(in.Flags, flag("A", m, true))
	}
	in.Flags = append(in.Flags,
		flag("B", month(2022, time.June), true),
		flag("B", month(2023, time.December), true),
	)

	for m := month(2022, time.October); m <= month(2023, time.December); m++ {
		p := int64(100)
		switch {
		case m >= month(2023, time.April):
			p = 110
		case m >= month(2023, time.January):
			p = 150
		}
		in.Prices = append(in.Prices, price("A", m, p))
	}

	for m := month(2022, time.January); m <= month(2023, time.December); m++ {
		in.Prescribing = append(in.Prescribing,
			rx("bnf-A", m, 1000),
			rx("not-conceded", m, 5),
		)
	}
	return in
}

func scenarioOptions() Options {
	opts := DefaultOptions()
	opts.PrescribingSince = month(2022, time.April)
	return opts
}

func TestRun_EndToEnd(t *testing.T) {
	res, err := Run(concessionScenario(), scenarioOptions())
	require.NoError(t, err)

	assert.Equal(t, month(2023, time.December), res.LatestMonth)
	assert.Len(t, res.Timeline, 2*19)

	// B's December episode is too recent to evaluate.
	assert.Len(t, res.AllEpisodes, 3)
	require.Len(t, res.Episodes, 2)

	require.Len(t, res.Deltas, 2)
	a := res.Deltas[0]
	assert.Equal(t, "A", a.DrugID)
	assertDecimal(t, "100", a.PrePrice)
	assertDecimal(t, "110", a.PostPrice)
	assert.Equal(t, month(2023, time.July), a.ImpactAnchorMonth)

	// Only bnf-A windows from Apr 2022 through Oct 2023 survive.
	for _, q := range res.Quantities {
		assert.Equal(t, "bnf-A", q.BNFCode)
		assert.True(t, q.Quantity.Equal(decimal.NewFromInt(3000)), "window %s", q.WindowStart)
	}
	assert.Len(t, res.Quantities, 19)
	assert.Len(t, res.Impact, 19)

	// 0.01 * (3000/1) * (110-100) = £300, attributed to July 2023 only.
	var costed []models.CostImpactRecord
	for _, r := range res.Impact {
		if r.AdditionalCost != nil {
			costed = append(costed, r)
		}
	}
	require.Len(t, costed, 1)
	assert.Equal(t, month(2023, time.July), costed[0].WindowStart)
	assertDecimal(t, "300", costed[0].AdditionalCost)

	require.Len(t, res.MonthlyTotals, 19)
	assert.Equal(t, month(2022, time.April), res.MonthlyTotals[0].Month)
	assert.True(t, GrandTotal(res.MonthlyTotals).Equal(decimal.NewFromInt(300)))
}

func TestRun_Idempotent(t *testing.T) {
	first, err := Run(concessionScenario(), scenarioOptions())
	require.NoError(t, err)
	second, err := Run(concessionScenario(), scenarioOptions())
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestRun_InvalidWindow(t *testing.T) {
	opts := DefaultOptions()
	opts.QuantityWindow = 0

	_, err := Run(Inputs{}, opts)

	assert.True(t, errors.Is(err, ErrInvalidWindow))
}

func TestRun_EmptyInputs(t *testing.T) {
	res, err := Run(Inputs{}, DefaultOptions())

	require.NoError(t, err)
	assert.Empty(t, res.Episodes)
	assert.Empty(t, res.Impact)
	assert.Empty(t, res.MonthlyTotals)
}

func TestRun_WiderWindowMeasuresMonthsAfterEpisode(t *testing.T) {
	in := concessionScenario()
	in.Prices = nil
	for m := month(2022, time.June); m <= month(2023, time.December); m++ {
		p := int64(110)
		switch {
		case m < month(2023, time.January):
			p = 100
		case m <= month(2023, time.March):
			p = 150
		case m == month(2023, time.April):
			p = 200
		}
		in.Prices = append(in.Prices, price("A", m, p))
	}

	opts := WindowOptions(4)
	opts.PrescribingSince = month(2022, time.April)
	res, err := Run(in, opts)
	require.NoError(t, err)

	var a *models.EpisodePriceDelta
	for i := range res.Deltas {
		if res.Deltas[i].DrugID == "A" {
			a = &res.Deltas[i]
		}
	}
	require.NotNil(t, a)
	assertDecimal(t, "100", a.PrePrice)
	// mean(Apr..Jul) = (200+110+110+110)/4
	assertDecimal(t, "132.5", a.PostPrice)
	assert.Equal(t, month(2023, time.August), a.ImpactAnchorMonth)
}

func TestRun_PriceWindowMustMatchMeasurementWindow(t *testing.T) {
	opts := WindowOptions(4)
	opts.PriceWindow = DefaultWindow

	_, err := Run(concessionScenario(), opts)

	assert.ErrorIs(t, err, ErrInvalidWindow)
}
