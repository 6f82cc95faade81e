package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mauv0809/concession-impact/internal/config"
	"github.com/mauv0809/concession-impact/internal/export"
	"github.com/mauv0809/concession-impact/internal/ingest"
	"github.com/mauv0809/concession-impact/internal/models"
)

// tableSource serves fixed tables keyed by query name.
type tableSource struct {
	tables map[string]*ingest.Table
	calls  map[string]int
}

func (s *tableSource) Fetch(_ context.Context, q ingest.Query) (*ingest.Table, error) {
	s.calls[q.Name]++
	t, ok := s.tables[q.Name]
	if !ok {
		return nil, fmt.Errorf("unexpected query %s", q.Name)
	}
	return t, nil
}

func newTable(cols ...string) *ingest.Table {
	t := &ingest.Table{}
	for _, c := range cols {
		t.Columns = append(t.Columns, ingest.Column{Name: c, Type: "String"})
	}
	return t
}

func mo(year int, m time.Month) models.Month { return models.NewMonth(year, m) }

// scenarioSource: VMPP A is on concession Jan..Mar 2023 and its tariff price
// moves from 100p before to 110p after; 1000 packs a month are dispensed.
// VMPP B only widens the calendar to Jun 2022..Dec 2023.
func scenarioSource() *tableSource {
	concessions := newTable(ingest.ColDrugID, ingest.ColMonth, ingest.ColConcession)
	for m := mo(2023, time.January); m <= mo(2023, time.March); m++ {
		concessions.Data = append(concessions.Data, []interface{}{"A", m.String(), true})
	}
	concessions.Data = append(concessions.Data,
		[]interface{}{"B", "2022-06-01", true},
		[]interface{}{"B", "2023-12-01", true},
	)

	tariff := newTable(ingest.ColBNFCode, ingest.ColName, ingest.ColUnitQuantity, ingest.ColDrugID, ingest.ColDate, ingest.ColPricePence)
	for m := mo(2022, time.October); m <= mo(2023, time.December); m++ {
		p := "100"
		switch {
		case m >= mo(2023, time.April):
			p = "110"
		case m >= mo(2023, time.January):
			p = "150"
		}
		tariff.Data = append(tariff.Data, []interface{}{"bnf-A", "Drug A", "1", "A", m.String(), p})
	}

	rx := newTable(ingest.ColBNFCode, ingest.ColMonth, ingest.ColQuantity)
	for m := mo(2022, time.January); m <= mo(2023, time.December); m++ {
		rx.Data = append(rx.Data,
			[]interface{}{"bnf-A", m.String(), "1000"},
			[]interface{}{"unrelated", m.String(), "5"},
		)
	}

	return &tableSource{
		tables: map[string]*ingest.Table{
			"concessions": concessions,
			"tariff":      tariff,
			"prescribing": rx,
		},
		calls: map[string]int{},
	}
}

func testConfig(t *testing.T) *config.Config {
	dir := t.TempDir()
	return &config.Config{
		DataDir:            filepath.Join(dir, "data"),
		PrescribingStart:   "2022-04-01",
		MeasurementWindow:  3,
		ImpactExportPath:   filepath.Join(dir, "out", "3_months_post.csv"),
		EpisodesExportPath: filepath.Join(dir, "out", "episodes.csv"),
		ImpactParquetPath:  filepath.Join(dir, "out", "impact.parquet"),
	}
}

func TestRunner_EndToEnd(t *testing.T) {
	cfg := testConfig(t)
	src := scenarioSource()

	report, err := NewRunner(cfg, src, zerolog.Nop()).Run(context.Background())
	require.NoError(t, err)

	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, []string{cfg.ImpactExportPath, cfg.EpisodesExportPath, cfg.ImpactParquetPath}, report.Written)

	res := report.Result
	assert.Len(t, res.Quantities, 19)
	assert.Len(t, res.Impact, 19)

	var july *models.MonthlyImpact
	for i := range res.MonthlyTotals {
		if res.MonthlyTotals[i].Month == mo(2023, time.July) {
			july = &res.MonthlyTotals[i]
		}
	}
	require.NotNil(t, july)
	assert.True(t, decimal.NewFromInt(300).Equal(july.AdditionalCost), "got %s", july.AdditionalCost)

	// The impact export reads back to the same monthly totals.
	records, err := export.ReadImpactCSV(cfg.ImpactExportPath)
	require.NoError(t, err)
	assert.Len(t, records, 19)

	rows, err := parquet.ReadFile[export.ImpactParquetRow](cfg.ImpactParquetPath)
	require.NoError(t, err)
	assert.Len(t, rows, 19)

	// Every query went to the source once and was cached.
	assert.Equal(t, map[string]int{"concessions": 1, "tariff": 1, "prescribing": 1}, src.calls)
	for _, name := range []string{ingest.ConcessionsCacheFile, ingest.TariffCacheFile, ingest.PrescribingCacheFile} {
		assert.FileExists(t, filepath.Join(cfg.DataDir, name))
	}
}

func TestRunner_ServesFromCacheAndIsDeterministic(t *testing.T) {
	cfg := testConfig(t)
	cfg.EpisodesExportPath = ""
	cfg.ImpactParquetPath = ""

	_, err := NewRunner(cfg, scenarioSource(), zerolog.Nop()).Run(context.Background())
	require.NoError(t, err)
	first, err := os.ReadFile(cfg.ImpactExportPath)
	require.NoError(t, err)

	cfg.UseCacheConcessions = true
	cfg.UseCacheTariff = true
	cfg.UseCachePrescribing = true
	report, err := NewRunner(cfg, nil, zerolog.Nop()).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{cfg.ImpactExportPath}, report.Written)

	second, err := os.ReadFile(cfg.ImpactExportPath)
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))
}

func TestRunner_MeasurementWindowSetsPriceWindow(t *testing.T) {
	cfg := testConfig(t)
	cfg.MeasurementWindow = 4
	src := scenarioSource()

	tariff := newTable(ingest.ColBNFCode, ingest.ColName, ingest.ColUnitQuantity, ingest.ColDrugID, ingest.ColDate, ingest.ColPricePence)
	for m := mo(2022, time.June); m <= mo(2023, time.December); m++ {
		p := "110"
		switch {
		case m < mo(2023, time.January):
			p = "100"
		case m <= mo(2023, time.March):
			p = "150"
		case m == mo(2023, time.April):
			p = "200"
		}
		tariff.Data = append(tariff.Data, []interface{}{"bnf-A", "Drug A", "1", "A", m.String(), p})
	}
	src.tables["tariff"] = tariff

	report, err := NewRunner(cfg, src, zerolog.Nop()).Run(context.Background())
	require.NoError(t, err)

	var a *models.EpisodePriceDelta
	for i := range report.Result.Deltas {
		if report.Result.Deltas[i].DrugID == "A" {
			a = &report.Result.Deltas[i]
		}
	}
	require.NotNil(t, a)
	require.NotNil(t, a.PostPrice)
	// Apr..Jul, the four months after the episode.
	assert.True(t, decimal.RequireFromString("132.5").Equal(*a.PostPrice), "got %s", a.PostPrice)
	assert.Equal(t, mo(2023, time.August), a.ImpactAnchorMonth)
}

func TestRunner_SourceFailure(t *testing.T) {
	cfg := testConfig(t)
	src := scenarioSource()
	delete(src.tables, "tariff")

	_, err := NewRunner(cfg, src, zerolog.Nop()).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tariff")
	assert.NoFileExists(t, cfg.ImpactExportPath)
}

func TestRunner_MissingColumnStopsRun(t *testing.T) {
	cfg := testConfig(t)
	src := scenarioSource()
	src.tables["prescribing"] = newTable(ingest.ColBNFCode, ingest.ColMonth)

	_, err := NewRunner(cfg, src, zerolog.Nop()).Run(context.Background())
	assert.ErrorIs(t, err, ingest.ErrMissingColumn)
}
