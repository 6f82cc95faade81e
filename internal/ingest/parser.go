package ingest

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mauv0809/concession-impact/internal/models"
)

// Column names produced by the warehouse queries and the cache files.
const (
	ColDrugID        = "vmpp"
	ColMonth         = "month"
	ColConcession    = "concession_bool"
	ColDate          = "date"
	ColPricePence    = "price_pence"
	ColBNFCode       = "bnf_code"
	ColName          = "nm"
	ColUnitQuantity  = "unit_qty"
	ColQuantity      = "quantity"
	concessionsTable = "concessions"
	tariffTable      = "tariff"
	prescribingTable = "prescribing"
)

// buildColumnIndex creates a map from column name to array index.
func buildColumnIndex(columns []Column) map[string]int {
	idx := make(map[string]int, len(columns))
	for i, col := range columns {
		idx[col.Name] = i
	}
	return idx
}

// requireColumns fails on the first required column absent from idx.
func requireColumns(table string, idx map[string]int, cols ...string) error {
	for _, col := range cols {
		if _, ok := idx[col]; !ok {
			return &MissingColumnError{Table: table, Column: col}
		}
	}
	return nil
}

// cell returns the raw value, or nil when absent.
func cell(row []interface{}, idx map[string]int, col string) interface{} {
	i, ok := idx[col]
	if !ok || i >= len(row) {
		return nil
	}
	return row[i]
}

// getString safely extracts a string from row data.
func getString(row []interface{}, idx map[string]int, col string) string {
	switch v := cell(row, idx, col).(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(v, 10)
	case int:
		return strconv.Itoa(v)
	case time.Time:
		return v.Format("2006-01-02")
	default:
		return fmt.Sprintf("%v", v)
	}
}

// getBool safely extracts a boolean from row data.
func getBool(row []interface{}, idx map[string]int, col string) bool {
	switch v := cell(row, idx, col).(type) {
	case bool:
		return v
	case string:
		v = strings.TrimSpace(v)
		return v == "Y" || strings.EqualFold(v, "true") || v == "1" || v == "1.0"
	case json.Number:
		f, err := v.Float64()
		return err == nil && f != 0
	case float64:
		return v != 0
	case int64:
		return v != 0
	case int:
		return v != 0
	}
	return false
}

// getDecimal extracts a decimal from row data. A nil result with ok=true
// means the cell was empty; ok=false means it held something unparseable.
func getDecimal(row []interface{}, idx map[string]int, col string) (d *decimal.Decimal, ok bool) {
	var (
		out decimal.Decimal
		err error
	)
	switch v := cell(row, idx, col).(type) {
	case nil:
		return nil, true
	case string:
		v = strings.ReplaceAll(strings.TrimSpace(v), ",", "")
		if v == "" {
			return nil, true
		}
		out, err = decimal.NewFromString(v)
	case json.Number:
		out, err = decimal.NewFromString(v.String())
	case float64:
		out = decimal.NewFromFloat(v)
	case int64:
		out = decimal.NewFromInt(v)
	case int:
		out = decimal.NewFromInt(int64(v))
	case decimal.Decimal:
		out = v
	default:
		return nil, false
	}
	if err != nil {
		return nil, false
	}
	return &out, true
}

var timeFormats = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05.000Z",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05-07:00",
	"2006-01",
}

// getTime extracts a time from row data, with the same nil/ok convention as
// getDecimal.
func getTime(row []interface{}, idx map[string]int, col string) (*time.Time, bool) {
	switch v := cell(row, idx, col).(type) {
	case nil:
		return nil, true
	case time.Time:
		return &v, true
	case string:
		v = strings.TrimSpace(v)
		if v == "" {
			return nil, true
		}
		for _, format := range timeFormats {
			if t, err := time.Parse(format, v); err == nil {
				return &t, true
			}
		}
	}
	return nil, false
}

// requireMonth decodes a mandatory month cell.
func requireMonth(table string, rowNum int, row []interface{}, idx map[string]int, col string) (models.Month, error) {
	t, ok := getTime(row, idx, col)
	if !ok || t == nil {
		return 0, &CellError{Table: table, Row: rowNum, Column: col, Value: cell(row, idx, col)}
	}
	return models.MonthOf(*t), nil
}

// requireString decodes a mandatory, non-empty text cell.
func requireString(table string, rowNum int, row []interface{}, idx map[string]int, col string) (string, error) {
	s := getString(row, idx, col)
	if s == "" {
		return "", &CellError{Table: table, Row: rowNum, Column: col, Value: cell(row, idx, col)}
	}
	return s, nil
}

// ParseConcessionFlags decodes (vmpp, month, concession_bool) rows.
func ParseConcessionFlags(t *Table) ([]models.ConcessionFlag, error) {
	idx := buildColumnIndex(t.Columns)
	if err := requireColumns(concessionsTable, idx, ColDrugID, ColMonth, ColConcession); err != nil {
		return nil, err
	}

	flags := make([]models.ConcessionFlag, 0, len(t.Data))
	for i, row := range t.Data {
		drug, err := requireString(concessionsTable, i, row, idx, ColDrugID)
		if err != nil {
			return nil, err
		}
		month, err := requireMonth(concessionsTable, i, row, idx, ColMonth)
		if err != nil {
			return nil, err
		}
		flags = append(flags, models.ConcessionFlag{
			DrugID:       drug,
			Month:        month,
			IsConcession: getBool(row, idx, ColConcession),
		})
	}
	return flags, nil
}

// ParsePricePoints decodes Drug Tariff rows joined to their VMPP metadata.
// An empty price cell is kept as an unknown price; an empty pack size is
// zero, which later makes cost unknown rather than infinite.
func ParsePricePoints(t *Table) ([]models.PricePoint, error) {
	idx := buildColumnIndex(t.Columns)
	if err := requireColumns(tariffTable, idx, ColDrugID, ColDate, ColPricePence, ColBNFCode, ColName, ColUnitQuantity); err != nil {
		return nil, err
	}

	points := make([]models.PricePoint, 0, len(t.Data))
	for i, row := range t.Data {
		drug, err := requireString(tariffTable, i, row, idx, ColDrugID)
		if err != nil {
			return nil, err
		}
		month, err := requireMonth(tariffTable, i, row, idx, ColDate)
		if err != nil {
			return nil, err
		}
		price, ok := getDecimal(row, idx, ColPricePence)
		if !ok {
			return nil, &CellError{Table: tariffTable, Row: i, Column: ColPricePence, Value: cell(row, idx, ColPricePence)}
		}
		pack, ok := getDecimal(row, idx, ColUnitQuantity)
		if !ok {
			return nil, &CellError{Table: tariffTable, Row: i, Column: ColUnitQuantity, Value: cell(row, idx, ColUnitQuantity)}
		}

		p := models.PricePoint{
			DrugID:         drug,
			Month:          month,
			UnitPricePence: price,
			BNFCode:        getString(row, idx, ColBNFCode),
			Name:           getString(row, idx, ColName),
		}
		if pack != nil {
			p.PackQuantity = *pack
		}
		points = append(points, p)
	}
	return points, nil
}

// ParsePrescribing decodes monthly dispensed quantities per BNF code. Empty
// quantities count as zero.
func ParsePrescribing(t *Table) ([]models.PrescribingRecord, error) {
	idx := buildColumnIndex(t.Columns)
	if err := requireColumns(prescribingTable, idx, ColBNFCode, ColMonth, ColQuantity); err != nil {
		return nil, err
	}

	records := make([]models.PrescribingRecord, 0, len(t.Data))
	for i, row := range t.Data {
		bnf, err := requireString(prescribingTable, i, row, idx, ColBNFCode)
		if err != nil {
			return nil, err
		}
		month, err := requireMonth(prescribingTable, i, row, idx, ColMonth)
		if err != nil {
			return nil, err
		}
		qty, ok := getDecimal(row, idx, ColQuantity)
		if !ok {
			return nil, &CellError{Table: prescribingTable, Row: i, Column: ColQuantity, Value: cell(row, idx, ColQuantity)}
		}

		r := models.PrescribingRecord{BNFCode: bnf, Month: month}
		if qty != nil {
			r.Quantity = *qty
		}
		records = append(records, r)
	}
	return records, nil
}
