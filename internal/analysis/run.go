// Package analysis derives concession episodes and estimates the cost of
// post-concession price changes. Every stage is a pure function that reads
// its inputs by value and returns a new table; nothing here performs I/O.
package analysis

import (
	"errors"
	"fmt"

	"github.com/mauv0809/concession-impact/internal/models"
)

// ErrInvalidWindow is returned when a window length is below one month or
// the price and measurement windows differ.
var ErrInvalidWindow = errors.New("window must be at least one month")

// DefaultWindow is the measurement, price and quantity window in months.
const DefaultWindow = 3

// Options controls the window lengths and the prescribing pre-filter.
type Options struct {
	// MeasurementWindow is the number of months after an episode over which
	// the post price is measured, and the number of months of data that must
	// exist after an episode for it to be evaluated.
	MeasurementWindow int
	PriceWindow       int
	QuantityWindow    int

	// PrescribingSince drops prescribing months before it when non-zero.
	PrescribingSince models.Month
}

// DefaultOptions returns three-month windows and no prescribing cut-off.
func DefaultOptions() Options {
	return WindowOptions(DefaultWindow)
}

// WindowOptions uses the same length for the measurement, price and quantity
// windows.
func WindowOptions(window int) Options {
	return Options{
		MeasurementWindow: window,
		PriceWindow:       window,
		QuantityWindow:    window,
	}
}

func (o Options) validate() error {
	windows := []struct {
		name string
		size int
	}{
		{"measurement", o.MeasurementWindow},
		{"price", o.PriceWindow},
		{"quantity", o.QuantityWindow},
	}
	for _, w := range windows {
		if w.size < 1 {
			return fmt.Errorf("%s window %d: %w", w.name, w.size, ErrInvalidWindow)
		}
	}
	// The post price is the trailing mean at last+MeasurementWindow, which
	// only spans the months after the episode when both windows agree.
	if o.PriceWindow != o.MeasurementWindow {
		return fmt.Errorf("price window %d differs from measurement window %d: %w",
			o.PriceWindow, o.MeasurementWindow, ErrInvalidWindow)
	}
	return nil
}

// Inputs are the three parsed source tables.
type Inputs struct {
	Flags       []models.ConcessionFlag
	Prices      []models.PricePoint
	Prescribing []models.PrescribingRecord
}

// Result holds every intermediate table of a run.
type Result struct {
	Timeline      []models.ConcessionFlag
	LatestMonth   models.Month
	AllEpisodes   []models.Episode
	Episodes      []models.Episode
	RollingPrices []models.RollingPrice
	Deltas        []models.EpisodePriceDelta
	Quantities    []models.RollingQuantity
	Impact        []models.CostImpactRecord
	MonthlyTotals []models.MonthlyImpact
}

// Run executes the whole pipeline. Prescribing input is restricted to BNF
// codes of drugs that were ever on concession, and to months from
// opts.PrescribingSince.
func Run(in Inputs, opts Options) (*Result, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	res := &Result{Timeline: BuildTimeline(in.Flags)}
	latest, ok := LatestMonth(res.Timeline)
	if ok {
		res.LatestMonth = latest
		res.AllEpisodes = ExtractEpisodes(res.Timeline)
		res.Episodes = EvaluableEpisodes(res.AllEpisodes, latest, opts.MeasurementWindow)
	}

	prices := BuildPriceTable(in.Prices, opts.PriceWindow)
	res.RollingPrices = prices.Rolling
	res.Deltas = JoinEpisodePrices(res.Episodes, prices, opts.MeasurementWindow)

	filter := QuantityFilter{
		Since:    opts.PrescribingSince,
		BNFCodes: concededBNFCodes(res.Timeline, prices),
	}
	res.Quantities = RollingQuantities(filter.Apply(in.Prescribing), opts.QuantityWindow)

	res.Impact = CalculateImpact(res.Deltas, res.Quantities)
	res.MonthlyTotals = MonthlyTotals(res.Impact)
	return res, nil
}

func concededBNFCodes(timeline []models.ConcessionFlag, prices *PriceTable) map[string]struct{} {
	codes := make(map[string]struct{})
	for _, f := range timeline {
		if !f.IsConcession {
			continue
		}
		if ref, ok := prices.Reference(f.DrugID); ok {
			codes[ref.BNFCode] = struct{}{}
		}
	}
	return codes
}
