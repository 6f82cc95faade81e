package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/mauv0809/concession-impact/internal/models"
)

// Repository loads concession, tariff and prescribing rows into the local
// warehouse tables.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// UpsertConcessions stores the months each VMPP was on concession. Flags
// with IsConcession unset are skipped. Returns the number of rows written.
func (r *Repository) UpsertConcessions(ctx context.Context, flags []models.ConcessionFlag) (int, error) {
	batch := &pgx.Batch{}
	for _, f := range flags {
		if !f.IsConcession {
			continue
		}
		batch.Queue(`
			INSERT INTO dmd_ncso_concession (vmpp, date)
			VALUES ($1, $2)
			ON CONFLICT (vmpp, date) DO NOTHING
		`, f.DrugID, f.Month.Time())
	}
	return r.sendBatch(ctx, batch, "concession")
}

// UpsertTariff stores Drug Tariff prices and the VMPP metadata carried on
// them. The first row seen for a VMPP with a BNF code supplies its metadata,
// and the first price seen for a (vmpp, month) is the one stored.
func (r *Repository) UpsertTariff(ctx context.Context, points []models.PricePoint) (int, error) {
	points = firstPricePerMonth(points)

	refs := make(map[string]models.PricePoint)
	order := make([]string, 0)
	for _, p := range points {
		existing, ok := refs[p.DrugID]
		if !ok {
			order = append(order, p.DrugID)
		}
		if !ok || (existing.BNFCode == "" && p.BNFCode != "") {
			refs[p.DrugID] = p
		}
	}

	batch := &pgx.Batch{}
	for _, id := range order {
		ref := refs[id]
		batch.Queue(`
			INSERT INTO dmd_vmpp (id, bnf_code, nm, qtyval, updated_at)
			VALUES ($1, $2, $3, $4, NOW())
			ON CONFLICT (id) DO UPDATE SET
				bnf_code = EXCLUDED.bnf_code,
				nm = EXCLUDED.nm,
				qtyval = EXCLUDED.qtyval,
				updated_at = NOW()
		`, id, nullString(ref.BNFCode), ref.Name, ref.PackQuantity)
	}
	vmpps, err := r.sendBatch(ctx, batch, "vmpp")
	if err != nil {
		return vmpps, err
	}

	batch = &pgx.Batch{}
	for _, p := range points {
		batch.Queue(`
			INSERT INTO dmd_tariff_price (vmpp, date, price_pence)
			VALUES ($1, $2, $3)
			ON CONFLICT (vmpp, date) DO UPDATE SET
				price_pence = EXCLUDED.price_pence
		`, p.DrugID, p.Month.Time(), decimalPtr(p.UnitPricePence))
	}
	return r.sendBatch(ctx, batch, "tariff price")
}

// firstPricePerMonth drops repeated (vmpp, month) prices, keeping the
// earliest in input order.
func firstPricePerMonth(points []models.PricePoint) []models.PricePoint {
	type key struct {
		vmpp  string
		month models.Month
	}
	seen := make(map[key]struct{}, len(points))
	out := make([]models.PricePoint, 0, len(points))
	for _, p := range points {
		k := key{p.DrugID, p.Month}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, p)
	}
	return out
}

// UpsertPrescribing stores monthly quantities per BNF code. Records sharing
// a (bnf_code, month) are summed before writing.
func (r *Repository) UpsertPrescribing(ctx context.Context, records []models.PrescribingRecord) (int, error) {
	type key struct {
		bnf   string
		month models.Month
	}
	totals := make(map[key]decimal.Decimal)
	order := make([]key, 0)
	for _, rec := range records {
		k := key{rec.BNFCode, rec.Month}
		if _, ok := totals[k]; !ok {
			order = append(order, k)
		}
		totals[k] = totals[k].Add(rec.Quantity)
	}

	batch := &pgx.Batch{}
	for _, k := range order {
		batch.Queue(`
			INSERT INTO prescribing (month, bnf_code, practice, quantity)
			VALUES ($1, $2, '', $3)
			ON CONFLICT (month, bnf_code, practice) DO UPDATE SET
				quantity = EXCLUDED.quantity
		`, k.month.Time(), k.bnf, totals[k])
	}
	return r.sendBatch(ctx, batch, "prescribing")
}

// TableCounts reports row counts for the warehouse tables.
type TableCounts struct {
	VMPPs       int `json:"vmpps"`
	Concessions int `json:"concessions"`
	TariffRows  int `json:"tariff_rows"`
	Prescribing int `json:"prescribing"`
}

// Counts returns the number of rows in each warehouse table.
func (r *Repository) Counts(ctx context.Context) (TableCounts, error) {
	var c TableCounts
	err := r.pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM dmd_vmpp),
			(SELECT COUNT(*) FROM dmd_ncso_concession),
			(SELECT COUNT(*) FROM dmd_tariff_price),
			(SELECT COUNT(*) FROM prescribing)
	`).Scan(&c.VMPPs, &c.Concessions, &c.TariffRows, &c.Prescribing)
	if err != nil {
		return c, fmt.Errorf("counting rows: %w", err)
	}
	return c, nil
}

func (r *Repository) sendBatch(ctx context.Context, batch *pgx.Batch, what string) (int, error) {
	if batch.Len() == 0 {
		return 0, nil
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()

	count := 0
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			return count, fmt.Errorf("upserting %s: %w", what, err)
		}
		count++
	}

	return count, nil
}

// decimalPtr converts a *decimal.Decimal to interface{} for database insertion.
func decimalPtr(d *decimal.Decimal) interface{} {
	if d == nil {
		return nil
	}
	return *d
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
