// Package pipeline runs one end-to-end estimate: it extracts the three source
// tables through the cache, runs the analysis and writes the exports.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mauv0809/concession-impact/internal/analysis"
	"github.com/mauv0809/concession-impact/internal/config"
	"github.com/mauv0809/concession-impact/internal/export"
	"github.com/mauv0809/concession-impact/internal/ingest"
	"github.com/mauv0809/concession-impact/internal/models"
)

// Runner executes the pipeline for one configuration.
type Runner struct {
	cfg    *config.Config
	reader *ingest.CachedReader
	runID  uuid.UUID
	logger zerolog.Logger
}

// Report is the outcome of a run.
type Report struct {
	RunID    string
	Result   *analysis.Result
	Written  []string
	Duration time.Duration
}

// NewRunner creates a runner reading through source. source may be nil when
// every table is served from cache.
func NewRunner(cfg *config.Config, source ingest.Source, logger zerolog.Logger) *Runner {
	runID := uuid.New()
	logger = logger.With().Str("run_id", runID.String()).Logger()
	return &Runner{
		cfg:    cfg,
		reader: ingest.NewCachedReader(source, logger),
		runID:  runID,
		logger: logger,
	}
}

// Run extracts, analyses and exports.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	start := time.Now()

	since, err := r.cfg.PrescribingSince()
	if err != nil {
		return nil, err
	}

	in, err := r.extract(ctx, since)
	if err != nil {
		return nil, err
	}

	opts := analysis.WindowOptions(r.cfg.MeasurementWindow)
	opts.PrescribingSince = since
	res, err := analysis.Run(in, opts)
	if err != nil {
		return nil, fmt.Errorf("analysis: %w", err)
	}
	r.logger.Info().
		Int("timeline_rows", len(res.Timeline)).
		Str("latest_month", res.LatestMonth.String()).
		Int("episodes", len(res.AllEpisodes)).
		Int("evaluable_episodes", len(res.Episodes)).
		Int("quantity_windows", len(res.Quantities)).
		Int("impact_rows", len(res.Impact)).
		Msg("analysis complete")

	written, err := r.writeExports(res)
	if err != nil {
		return nil, err
	}

	report := &Report{
		RunID:    r.runID.String(),
		Result:   res,
		Written:  written,
		Duration: time.Since(start),
	}
	r.logger.Info().
		Str("total", export.FormatPounds(analysis.GrandTotal(res.MonthlyTotals))).
		Dur("elapsed", report.Duration).
		Msg("pipeline complete")
	return report, nil
}

func (r *Runner) extract(ctx context.Context, since models.Month) (analysis.Inputs, error) {
	var in analysis.Inputs

	concessions, err := r.reader.Read(ctx, ingest.ConcessionsQuery(), r.cfg.CachePath(ingest.ConcessionsCacheFile), r.cfg.UseCacheConcessions)
	if err != nil {
		return in, err
	}
	if in.Flags, err = ingest.ParseConcessionFlags(concessions); err != nil {
		return in, err
	}

	tariff, err := r.reader.Read(ctx, ingest.TariffQuery(), r.cfg.CachePath(ingest.TariffCacheFile), r.cfg.UseCacheTariff)
	if err != nil {
		return in, err
	}
	if in.Prices, err = ingest.ParsePricePoints(tariff); err != nil {
		return in, err
	}

	rx, err := r.reader.Read(ctx, ingest.PrescribingQuery(since), r.cfg.CachePath(ingest.PrescribingCacheFile), r.cfg.UseCachePrescribing)
	if err != nil {
		return in, err
	}
	if in.Prescribing, err = ingest.ParsePrescribing(rx); err != nil {
		return in, err
	}

	r.logger.Info().
		Int("concession_rows", len(in.Flags)).
		Int("price_rows", len(in.Prices)).
		Int("prescribing_rows", len(in.Prescribing)).
		Msg("inputs loaded")
	return in, nil
}

func (r *Runner) writeExports(res *analysis.Result) ([]string, error) {
	var written []string

	if err := export.WriteImpactCSV(r.cfg.ImpactExportPath, res.Impact); err != nil {
		return nil, err
	}
	written = append(written, r.cfg.ImpactExportPath)

	if path := r.cfg.EpisodesExportPath; path != "" {
		if err := export.WriteEpisodesCSV(path, res.Deltas); err != nil {
			return nil, err
		}
		written = append(written, path)
	}

	if path := r.cfg.ImpactParquetPath; path != "" {
		if err := export.WriteImpactParquet(path, res.Impact); err != nil {
			return nil, err
		}
		written = append(written, path)
	}

	r.logger.Info().Strs("files", written).Msg("exports written")
	return written, nil
}
