package analysis

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/mauv0809/concession-impact/internal/models"
)

func month(year int, m time.Month) models.Month { return models.NewMonth(year, m) }

func dec(v int64) *decimal.Decimal {
	d := decimal.NewFromInt(v)
	return &d
}

func flag(drug string, m models.Month, on bool) models.ConcessionFlag {
	return models.ConcessionFlag{DrugID: drug, Month: m, IsConcession: on}
}

func price(drug string, m models.Month, pence int64) models.PricePoint {
	return models.PricePoint{
		DrugID:         drug,
		Month:          m,
		UnitPricePence: dec(pence),
		PackQuantity:   decimal.NewFromInt(1),
		BNFCode:        "bnf-" + drug,
		Name:           "drug " + drug,
	}
}

// series builds a flag sequence for one drug starting at start.
func series(drug string, start models.Month, values ...bool) []models.ConcessionFlag {
	out := make([]models.ConcessionFlag, len(values))
	for i, v := range values {
		out[i] = flag(drug, start.AddMonths(i), v)
	}
	return out
}

// assertDecimal compares numerically; decimal values with equal magnitude
// can differ in internal exponent, so reflect-based equality is not usable.
func assertDecimal(t *testing.T, want string, got *decimal.Decimal, msgAndArgs ...interface{}) {
	t.Helper()
	if !assert.NotNil(t, got, msgAndArgs...) {
		return
	}
	assert.True(t, decimal.RequireFromString(want).Equal(*got), "want %s, got %s", want, got.String())
}
