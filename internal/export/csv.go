// Package export writes the pipeline's result tables to disk and reads the
// cost-impact table back for reporting.
package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/mauv0809/concession-impact/internal/models"
)

// ImpactColumns is the header of the cost-impact CSV.
var ImpactColumns = []string{
	"bnf_code", "window_start", "rolling_quantity",
	"drug_id", "name", "pack_quantity",
	"first_month", "last_month", "duration_months",
	"pre_price", "post_price", "pct_change", "impact_anchor_month",
	"additional_cost",
}

// EpisodeColumns is the header of the episode/price CSV.
var EpisodeColumns = []string{
	"drug_id", "bnf_code", "name", "pack_quantity",
	"first_month", "last_month", "duration_months",
	"pre_price", "post_price", "pct_change", "impact_anchor_month",
}

// ErrBadHeader is returned when a CSV being read back does not carry the
// expected columns.
var ErrBadHeader = errors.New("unexpected csv header")

// WriteImpactCSV writes records to path, creating parent directories.
func WriteImpactCSV(path string, records []models.CostImpactRecord) error {
	return writeFile(path, func(w io.Writer) error { return EncodeImpactCSV(w, records) })
}

// EncodeImpactCSV writes one row per cost-impact record in the given order.
// Unknown values are written as empty cells.
func EncodeImpactCSV(w io.Writer, records []models.CostImpactRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ImpactColumns); err != nil {
		return err
	}
	for _, r := range records {
		row := []string{r.BNFCode, r.WindowStart.String(), r.Quantity.String()}
		if r.Delta != nil {
			row = append(row, deltaCells(r.Delta)...)
		} else {
			row = append(row, make([]string, 10)...)
		}
		row = append(row, decimalCell(r.AdditionalCost))
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// deltaCells renders the episode columns shared by both CSV layouts, from
// drug_id through impact_anchor_month.
func deltaCells(d *models.EpisodePriceDelta) []string {
	return []string{
		d.DrugID, d.Name, decimalCell(d.PackQuantity),
		d.FirstMonth.String(), d.LastMonth.String(), strconv.Itoa(d.DurationMonths),
		decimalCell(d.PrePrice), decimalCell(d.PostPrice), decimalCell(d.PctChange),
		d.ImpactAnchorMonth.String(),
	}
}

// WriteEpisodesCSV writes the episode/price table to path.
func WriteEpisodesCSV(path string, deltas []models.EpisodePriceDelta) error {
	return writeFile(path, func(w io.Writer) error { return EncodeEpisodesCSV(w, deltas) })
}

// EncodeEpisodesCSV writes one row per episode in the given order.
func EncodeEpisodesCSV(w io.Writer, deltas []models.EpisodePriceDelta) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(EpisodeColumns); err != nil {
		return err
	}
	for i := range deltas {
		cells := deltaCells(&deltas[i])
		row := append([]string{cells[0], deltas[i].BNFCode}, cells[1:]...)
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadImpactCSV loads a cost-impact CSV written by WriteImpactCSV.
func ReadImpactCSV(path string) ([]models.CostImpactRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	records, err := DecodeImpactCSV(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return records, nil
}

// DecodeImpactCSV is the inverse of EncodeImpactCSV.
func DecodeImpactCSV(r io.Reader) ([]models.CostImpactRecord, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(ImpactColumns)

	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	for i, col := range ImpactColumns {
		if header[i] != col {
			return nil, fmt.Errorf("%w: column %d is %q, want %q", ErrBadHeader, i, header[i], col)
		}
	}

	var out []models.CostImpactRecord
	for line := 2; ; line++ {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		rec, err := decodeImpactRow(row)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func decodeImpactRow(row []string) (models.CostImpactRecord, error) {
	var (
		rec models.CostImpactRecord
		p   cellParser
	)
	rec.BNFCode = row[0]
	rec.WindowStart = p.month(row[1])
	if q := p.decimal(row[2]); q != nil {
		rec.Quantity = *q
	}

	if row[3] != "" {
		d := &models.EpisodePriceDelta{
			Episode: models.Episode{
				DrugID:         row[3],
				FirstMonth:     p.month(row[6]),
				LastMonth:      p.month(row[7]),
				DurationMonths: p.int(row[8]),
			},
			BNFCode:           rec.BNFCode,
			Name:              row[4],
			PackQuantity:      p.decimal(row[5]),
			PrePrice:          p.decimal(row[9]),
			PostPrice:         p.decimal(row[10]),
			PctChange:         p.decimal(row[11]),
			ImpactAnchorMonth: p.month(row[12]),
		}
		rec.Delta = d
	}
	rec.AdditionalCost = p.decimal(row[13])
	return rec, p.err
}

// cellParser keeps the first conversion error so a row can be decoded
// without checking every field.
type cellParser struct {
	err error
}

func (p *cellParser) month(s string) models.Month {
	m, err := models.ParseMonth(s)
	if err != nil && p.err == nil {
		p.err = err
	}
	return m
}

func (p *cellParser) decimal(s string) *decimal.Decimal {
	if s == "" {
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		if p.err == nil {
			p.err = err
		}
		return nil
	}
	return &d
}

func (p *cellParser) int(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil && p.err == nil {
		p.err = err
	}
	return n
}

func decimalCell(d *decimal.Decimal) string {
	if d == nil {
		return ""
	}
	return d.String()
}

// writeFile encodes into a temporary file next to path and renames it into
// place, so readers of path see either the previous file or the new one.
func writeFile(path string, encode func(io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())

	if err := encode(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return os.Rename(tmp.Name(), path)
}
