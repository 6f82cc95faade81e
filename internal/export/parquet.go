package export

import (
	"fmt"
	"io"

	"github.com/parquet-go/parquet-go"
	"github.com/shopspring/decimal"

	"github.com/mauv0809/concession-impact/internal/models"
)

// ImpactParquetRow is the Parquet layout of a cost-impact record. Money and
// quantities are stored as float64 for downstream analytics tools; months
// as ISO dates.
type ImpactParquetRow struct {
	BNFCode           string   `parquet:"bnf_code"`
	WindowStart       string   `parquet:"window_start"`
	RollingQuantity   float64  `parquet:"rolling_quantity"`
	DrugID            *string  `parquet:"drug_id,optional"`
	Name              *string  `parquet:"name,optional"`
	PackQuantity      *float64 `parquet:"pack_quantity,optional"`
	FirstMonth        *string  `parquet:"first_month,optional"`
	LastMonth         *string  `parquet:"last_month,optional"`
	DurationMonths    *int32   `parquet:"duration_months,optional"`
	PrePrice          *float64 `parquet:"pre_price,optional"`
	PostPrice         *float64 `parquet:"post_price,optional"`
	PctChange         *float64 `parquet:"pct_change,optional"`
	ImpactAnchorMonth *string  `parquet:"impact_anchor_month,optional"`
	AdditionalCost    *float64 `parquet:"additional_cost,optional"`
}

// NewImpactParquetRow flattens r into its Parquet layout.
func NewImpactParquetRow(r models.CostImpactRecord) ImpactParquetRow {
	row := ImpactParquetRow{
		BNFCode:         r.BNFCode,
		WindowStart:     r.WindowStart.String(),
		RollingQuantity: r.Quantity.InexactFloat64(),
		AdditionalCost:  floatPtr(r.AdditionalCost),
	}
	if d := r.Delta; d != nil {
		duration := int32(d.DurationMonths)
		row.DrugID = &d.DrugID
		row.Name = &d.Name
		row.PackQuantity = floatPtr(d.PackQuantity)
		row.FirstMonth = monthPtr(d.FirstMonth)
		row.LastMonth = monthPtr(d.LastMonth)
		row.DurationMonths = &duration
		row.PrePrice = floatPtr(d.PrePrice)
		row.PostPrice = floatPtr(d.PostPrice)
		row.PctChange = floatPtr(d.PctChange)
		row.ImpactAnchorMonth = monthPtr(d.ImpactAnchorMonth)
	}
	return row
}

// WriteImpactParquet writes records to a Snappy-compressed Parquet file.
func WriteImpactParquet(path string, records []models.CostImpactRecord) error {
	rows := make([]ImpactParquetRow, len(records))
	for i, r := range records {
		rows[i] = NewImpactParquetRow(r)
	}

	return writeFile(path, func(w io.Writer) error {
		writer := parquet.NewGenericWriter[ImpactParquetRow](w,
			parquet.Compression(&parquet.Snappy),
			parquet.CreatedBy("concession-impact", "1.0", ""),
		)
		if _, err := writer.Write(rows); err != nil {
			return fmt.Errorf("failed to write parquet records: %w", err)
		}
		if err := writer.Close(); err != nil {
			return fmt.Errorf("failed to close parquet writer: %w", err)
		}
		return nil
	})
}

func floatPtr(d *decimal.Decimal) *float64 {
	if d == nil {
		return nil
	}
	f := d.InexactFloat64()
	return &f
}

func monthPtr(m models.Month) *string {
	s := m.String()
	return &s
}
