package ingest

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingColumn is returned when a table lacks a column a parser
	// requires. Parsing stops before any row is decoded.
	ErrMissingColumn = errors.New("missing required column")

	// ErrInvalidCell is returned when a required cell is empty or cannot be
	// converted to the column's type.
	ErrInvalidCell = errors.New("invalid cell")
)

// MissingColumnError names the table and column that were expected.
type MissingColumnError struct {
	Table  string
	Column string
}

func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("%s: missing required column %q", e.Table, e.Column)
}

func (e *MissingColumnError) Unwrap() error {
	return ErrMissingColumn
}

// CellError locates a bad value by table, row and column.
type CellError struct {
	Table  string
	Row    int
	Column string
	Value  interface{}
}

func (e *CellError) Error() string {
	return fmt.Sprintf("%s: row %d column %q: cannot use value %v", e.Table, e.Row, e.Column, e.Value)
}

func (e *CellError) Unwrap() error {
	return ErrInvalidCell
}
