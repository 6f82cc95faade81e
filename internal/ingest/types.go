package ingest

import (
	"context"
)

// Table is a column-oriented result set: columns define the schema, Data
// holds rows as positional cell arrays. Cells are nil, string, bool,
// json.Number, float64, int64 or time.Time.
type Table struct {
	Data    [][]interface{} `json:"data"`
	Columns []Column        `json:"columns"`
}

// Column describes a column in a Table.
type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// ColumnNames returns the column names in order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.Data) }

// Response is the raw datatable API response.
type Response struct {
	Datatable Table `json:"datatable"`
	Meta      struct {
		NextCursorID *string `json:"next_cursor_id"`
	} `json:"meta"`
}

// Query describes one warehouse extraction. Name labels it in logs and
// errors; SQL uses $n placeholders bound to Args.
type Query struct {
	Name string
	SQL  string
	Args []interface{}
}

// Source returns the result of a query as a Table.
type Source interface {
	Fetch(ctx context.Context, q Query) (*Table, error)
}
