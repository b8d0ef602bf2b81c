package engine

import (
	"strings"
	"time"
)

// Field names and types one column of a query result.
type Field struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Table is a row-major query result with typed columns.
type Table struct {
	Fields []Field
	Rows   [][]any
}

// NumRows returns the number of rows.
func (t *Table) NumRows() int {
	return len(t.Rows)
}

// NumCols returns the number of columns.
func (t *Table) NumCols() int {
	return len(t.Fields)
}

// ColumnIndex returns the index of the named column, or -1.
func (t *Table) ColumnIndex(name string) int {
	for i, f := range t.Fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// Column returns a copy of column i across all rows.
func (t *Table) Column(i int) []any {
	out := make([]any, len(t.Rows))
	for r, row := range t.Rows {
		if i < len(row) {
			out[r] = row[i]
		}
	}
	return out
}

// Value returns the cell at (row, col).
func (t *Table) Value(row, col int) any {
	return t.Rows[row][col]
}

// QuoteIdent quotes s as an SQL identifier.
func QuoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// inferType names the type of a result column whose declared type is not
// known (expressions such as COUNT(*)).
func inferType(v any) string {
	switch v.(type) {
	case int64, int:
		return "BIGINT"
	case uint64:
		return "UBIGINT"
	case float64:
		return "DOUBLE"
	case string:
		return "VARCHAR"
	case []byte:
		return "BLOB"
	case bool:
		return "BOOLEAN"
	case time.Time:
		return "TIMESTAMP"
	default:
		return ""
	}
}
