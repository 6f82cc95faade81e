package db

import (
	"context"
	"database/sql/driver"
	"fmt"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mauv0809/concession-impact/internal/ingest"
)

// Warehouse runs extraction queries directly against Postgres. It is the
// ingest.Source used when WAREHOUSE_SOURCE=postgres.
type Warehouse struct {
	pool *pgxpool.Pool
}

// NewWarehouse creates a warehouse source backed by pool.
func NewWarehouse(pool *pgxpool.Pool) *Warehouse {
	return &Warehouse{pool: pool}
}

var _ ingest.Source = (*Warehouse)(nil)

// Fetch executes q and returns its rows as a Table.
func (w *Warehouse) Fetch(ctx context.Context, q ingest.Query) (*ingest.Table, error) {
	rows, err := w.pool.Query(ctx, q.SQL, q.Args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", q.Name, err)
	}
	defer rows.Close()

	fieldDescs := rows.FieldDescriptions()
	t := &ingest.Table{Columns: make([]ingest.Column, len(fieldDescs))}
	typeMap := rows.Conn().TypeMap()
	for i, fd := range fieldDescs {
		typeName := "unknown"
		if dt, ok := typeMap.TypeForOID(fd.DataTypeOID); ok {
			typeName = dt.Name
		}
		t.Columns[i] = ingest.Column{Name: fd.Name, Type: typeName}
	}

	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("query %s: %w", q.Name, err)
		}
		row := make([]interface{}, len(values))
		for i, v := range values {
			cell, err := normalizeValue(v)
			if err != nil {
				return nil, fmt.Errorf("query %s column %s: %w", q.Name, fieldDescs[i].Name, err)
			}
			row[i] = cell
		}
		t.Data = append(t.Data, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query %s: %w", q.Name, err)
	}

	return t, nil
}

// normalizeValue maps pgx row values onto the cell types ingest parsers
// understand. NUMERIC becomes its exact text form.
func normalizeValue(v interface{}) (interface{}, error) {
	switch x := v.(type) {
	case pgtype.Numeric:
		val, err := x.Value()
		if err != nil {
			return nil, err
		}
		return val, nil
	case driver.Valuer:
		return x.Value()
	case int32:
		return int64(x), nil
	case int16:
		return int64(x), nil
	case float32:
		return float64(x), nil
	default:
		return v, nil
	}
}
