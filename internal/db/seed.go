package db

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/mauv0809/concession-impact/internal/ingest"
)

// SeedResult counts the rows written by Seed.
type SeedResult struct {
	Concessions int `json:"concessions"`
	TariffRows  int `json:"tariff_rows"`
	Prescribing int `json:"prescribing"`
}

// Seed loads the three cache CSV files from dataDir into the warehouse so
// the pipeline can run against a local database.
func (r *Repository) Seed(ctx context.Context, dataDir string, logger zerolog.Logger) (SeedResult, error) {
	var res SeedResult

	concessions, err := ingest.ReadCSVTable(filepath.Join(dataDir, ingest.ConcessionsCacheFile))
	if err != nil {
		return res, err
	}
	flags, err := ingest.ParseConcessionFlags(concessions)
	if err != nil {
		return res, err
	}
	if res.Concessions, err = r.UpsertConcessions(ctx, flags); err != nil {
		return res, err
	}
	logger.Info().Int("rows", res.Concessions).Msg("seeded concessions")

	tariff, err := ingest.ReadCSVTable(filepath.Join(dataDir, ingest.TariffCacheFile))
	if err != nil {
		return res, err
	}
	points, err := ingest.ParsePricePoints(tariff)
	if err != nil {
		return res, err
	}
	if res.TariffRows, err = r.UpsertTariff(ctx, points); err != nil {
		return res, err
	}
	logger.Info().Int("rows", res.TariffRows).Msg("seeded tariff prices")

	rx, err := ingest.ReadCSVTable(filepath.Join(dataDir, ingest.PrescribingCacheFile))
	if err != nil {
		return res, err
	}
	records, err := ingest.ParsePrescribing(rx)
	if err != nil {
		return res, err
	}
	if res.Prescribing, err = r.UpsertPrescribing(ctx, records); err != nil {
		return res, fmt.Errorf("seeding prescribing: %w", err)
	}
	logger.Info().Int("rows", res.Prescribing).Msg("seeded prescribing")

	return res, nil
}
